package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/andresuchdata/autopo-forecast/internal/domain"
	"github.com/andresuchdata/autopo-forecast/internal/forecast"
	"github.com/andresuchdata/autopo-forecast/internal/metrics"
	"github.com/andresuchdata/autopo-forecast/internal/pipeline"
	"github.com/andresuchdata/autopo-forecast/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var today = time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC)

func pivotCSV() string {
	var b strings.Builder
	b.WriteString("Item Number")
	start := domain.Period{Year: 2022, Month: time.January}
	for i := 0; i < 24; i++ {
		b.WriteString("," + start.AddMonths(i).Header())
	}
	b.WriteString("\nTREND")
	for i := 0; i < 24; i++ {
		fmt.Fprintf(&b, ",%d", 10+2*i)
	}
	b.WriteString("\nSPARSE" + strings.Repeat(",", 21) + "40,,61,\n")
	return b.String()
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	m := metrics.New(nil)
	o := pipeline.NewOrchestrator(pipeline.DefaultPipelineConfig(t.TempDir()), forecast.DefaultOptions(today), pipeline.Dependencies{Metrics: m})
	return NewRouter(&Services{
		ForecastService: service.NewForecastService(o, nil, t.TempDir()),
		Metrics:         m,
	}, RouterOptions{AllowedOrigins: []string{"*"}, MaxUploadBytes: 1 << 20})
}

func uploadRequest(t *testing.T, filename, content string, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if filename != "" {
		part, err := w.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/forecast/runs", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func serve(router *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

type runResponse struct {
	Run struct {
		ID            string           `json:"id"`
		Status        domain.RunStatus `json:"status"`
		ReferenceDate time.Time        `json:"reference_date"`
		TotalItems    int              `json:"total_items"`
	} `json:"run"`
	Report struct {
		Pivot domain.ForecastPivot `json:"pivot"`
	} `json:"report"`
	Error string `json:"error"`
}

func TestHealth(t *testing.T) {
	rec := serve(newTestRouter(t), httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestCreateRunAndFetch(t *testing.T) {
	router := newTestRouter(t)

	rec := serve(router, uploadRequest(t, "sales.csv", pivotCSV(), nil))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created runResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, domain.RunCompleted, created.Run.Status)
	assert.Equal(t, 2, created.Run.TotalItems)
	assert.Equal(t, []string{"TREND", "SPARSE"}, created.Report.Pivot.Items)
	assert.Len(t, created.Report.Pivot.Periods, 12)

	rec = serve(router, httptest.NewRequest(http.MethodGet, "/api/v1/forecast/runs/"+created.Run.ID, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var detail struct {
		Run    map[string]any         `json:"run"`
		Points []domain.ForecastPoint `json:"points"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	assert.Equal(t, created.Run.ID, detail.Run["id"])
	assert.NotEmpty(t, detail.Points)

	rec = serve(router, httptest.NewRequest(http.MethodGet, "/api/v1/forecast/runs?limit=5", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var runs []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	assert.Len(t, runs, 1)

	rec = serve(router, httptest.NewRequest(http.MethodGet, "/api/v1/forecast/runs/"+created.Run.ID+"/predictions?format=csv", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Body.String(), "Item Number,2024-01-01"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), created.Run.ID)

	rec = serve(router, httptest.NewRequest(http.MethodGet, "/api/v1/forecast/runs/"+created.Run.ID+"/predictions?format=pdf", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(router, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `forecast_runs_total{status="completed"} 1`)
}

func TestCreateRun_TodayField(t *testing.T) {
	router := newTestRouter(t)

	rec := serve(router, uploadRequest(t, "sales.csv", pivotCSV(), map[string]string{"today": "2023-12-01"}))
	require.Equal(t, http.StatusCreated, rec.Code)
	var created runResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, time.Date(2023, time.December, 1, 0, 0, 0, 0, time.UTC), created.Run.ReferenceDate)

	rec = serve(router, uploadRequest(t, "sales.csv", pivotCSV(), map[string]string{"today": "01/12/2023"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateRun_BadRequests(t *testing.T) {
	router := newTestRouter(t)

	rec := serve(router, uploadRequest(t, "", "", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(router, uploadRequest(t, "sales.txt", "x", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(router, uploadRequest(t, "sales.csv", "Item Number,Jan,Feb\nA,1,2\n", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var failed runResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &failed))
	assert.Equal(t, domain.RunFailed, failed.Run.Status)
	assert.Contains(t, failed.Error, "Jan")
}

func TestNotFoundAndDriveDisabled(t *testing.T) {
	router := newTestRouter(t)

	rec := serve(router, httptest.NewRequest(http.MethodGet, "/api/v1/forecast/runs/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(router, httptest.NewRequest(http.MethodGet, "/api/v1/drive/files", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/forecast/runs/drive", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	rec = serve(router, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/forecast/runs/drive", strings.NewReader(`{"file_id":"abc"}`))
	req.Header.Set("Content-Type", "application/json")
	rec = serve(router, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestNormalizeAllowedOrigins(t *testing.T) {
	origins, all := normalizeAllowedOrigins([]string{"http://a.test, http://b.test", " ", "http://c.test"})
	assert.False(t, all)
	assert.Equal(t, []string{"http://a.test", "http://b.test", "http://c.test"}, origins)

	_, all = normalizeAllowedOrigins([]string{"http://a.test,*"})
	assert.True(t, all)
}
