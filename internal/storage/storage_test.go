package storage

import (
	"testing"

	"github.com/andresuchdata/autopo-forecast/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	s, err := New(config.StorageConfig{})
	require.NoError(t, err)
	assert.Nil(t, s)

	s, err = New(config.StorageConfig{
		Provider:  "minio",
		Endpoint:  "http://localhost:9000",
		AccessKey: "minio",
		SecretKey: "minio123",
		Bucket:    "forecasts",
	})
	require.NoError(t, err)
	assert.IsType(t, &MinioClient{}, s)

	_, err = New(config.StorageConfig{Provider: "ftp", Bucket: "x"})
	assert.Error(t, err)

	_, err = New(config.StorageConfig{Provider: "minio", Bucket: "x"})
	assert.Error(t, err)
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "text/csv", ContentType("runs/a/predictions.CSV"))
	assert.Contains(t, ContentType("predictions.xlsx"), "spreadsheetml")
	assert.Equal(t, "application/octet-stream", ContentType("notes"))
}

func TestEndpointURL(t *testing.T) {
	assert.Equal(t, "https://s3.example.com", endpointURL("s3.example.com", true))
	assert.Equal(t, "http://s3.example.com", endpointURL("//s3.example.com", false))
	assert.Equal(t, "http://localhost:9000", endpointURL("http://localhost:9000", true))
}
