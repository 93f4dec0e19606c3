package drive

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/andresuchdata/autopo-forecast/internal/sheet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDrive struct {
	files    []*File
	contents map[string][]byte
	fail     map[string]bool
}

func (f *fakeDrive) ListFiles(_ context.Context, _ string) ([]*File, error) {
	return f.files, nil
}

func (f *fakeDrive) DownloadFile(_ context.Context, id string, w io.Writer) error {
	if f.fail[id] {
		return errors.New("quota exceeded")
	}
	_, err := w.Write(f.contents[id])
	return err
}

func salesWorkbook(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, sheet.WriteTable(&buf, sheet.FormatXLSX, sheet.PivotSheet, &sheet.Table{
		Header: []string{"Item Number", "2024-01-01", "2024-02-01"},
		Rows:   [][]string{{"A", "3", "4"}},
	}))
	return buf.Bytes()
}

func newFake(t *testing.T) *fakeDrive {
	return &fakeDrive{
		files: []*File{
			{ID: "1", Name: "sales-jan.csv", ModifiedTime: "2024-01-31T10:00:00Z"},
			{ID: "2", Name: "notes.txt", ModifiedTime: "2024-03-01T10:00:00Z"},
			{ID: "3", Name: "sales-feb.xlsx", ModifiedTime: "2024-02-29T10:00:00Z"},
			{ID: "4", Name: "stock.csv", ModifiedTime: "2024-02-01T10:00:00Z"},
		},
		contents: map[string][]byte{
			"1": []byte("Item Number,2024-01-01\nA,3\n"),
			"3": salesWorkbook(t),
			"4": []byte("sku,qty\n"),
		},
	}
}

func TestDownloader_FiltersAndOrders(t *testing.T) {
	dir := t.TempDir()
	paths, err := NewDownloader(newFake(t)).Download(context.Background(), DownloadOptions{
		DownloadDir: dir,
		Pattern:     "sales-*",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "sales-feb.xlsx"),
		filepath.Join(dir, "sales-jan.csv"),
	}, paths)

	data, err := os.ReadFile(paths[1])
	require.NoError(t, err)
	assert.Equal(t, "Item Number,2024-01-01\nA,3\n", string(data))
}

func TestDownloader_LatestOnlyConvertsWorkbook(t *testing.T) {
	dir := t.TempDir()
	paths, err := NewDownloader(newFake(t)).Download(context.Background(), DownloadOptions{
		DownloadDir: dir,
		LatestOnly:  true,
		ConvertCSV:  true,
	})
	require.NoError(t, err)
	require.Equal(t, []string{filepath.Join(dir, "sales-feb.csv")}, paths)
	assert.NoFileExists(t, filepath.Join(dir, "sales-feb.xlsx"))

	pivot, err := sheet.ReadPivot(paths[0])
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-01-01", "2024-02-01"}, pivot.Headers)
	require.Len(t, pivot.Rows, 1)
	assert.Equal(t, []string{"3", "4"}, pivot.Rows[0].Cells)
}

func TestDownloader_Errors(t *testing.T) {
	fake := newFake(t)
	d := NewDownloader(fake)

	_, err := d.Download(context.Background(), DownloadOptions{})
	assert.Error(t, err)

	_, err = d.Download(context.Background(), DownloadOptions{DownloadDir: t.TempDir(), Pattern: "["})
	assert.Error(t, err)

	fake.fail = map[string]bool{"1": true}
	dir := t.TempDir()
	_, err = d.Download(context.Background(), DownloadOptions{DownloadDir: dir, Pattern: "*.csv"})
	assert.ErrorContains(t, err, "quota exceeded")
	assert.NoFileExists(t, filepath.Join(dir, "sales-jan.csv"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewDownloader(newFake(t)).Download(ctx, DownloadOptions{DownloadDir: t.TempDir()})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEscapeQuery(t *testing.T) {
	assert.Equal(t, `Bob\'s \\ sales`, escapeQuery(`Bob's \ sales`))
}
