package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/andresuchdata/autopo-forecast/internal/domain"
	"github.com/andresuchdata/autopo-forecast/internal/forecast"
	"github.com/andresuchdata/autopo-forecast/internal/pipeline"
	"github.com/andresuchdata/autopo-forecast/internal/service"
	"github.com/andresuchdata/autopo-forecast/internal/sheet"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type ForecastHandler struct {
	service        *service.ForecastService
	maxUploadBytes int64
}

func NewForecastHandler(service *service.ForecastService, maxUploadBytes int64) *ForecastHandler {
	return &ForecastHandler{service: service, maxUploadBytes: maxUploadBytes}
}

type driveRunRequest struct {
	FileID string `json:"file_id" binding:"required"`
	Kind   string `json:"kind"`
	Today  string `json:"today"`
}

// CreateRun forecasts an uploaded pivot or order export
func (h *ForecastHandler) CreateRun(c *gin.Context) {
	if h.maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	}

	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("file exceeds %d bytes", tooLarge.Limit)})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}

	today, err := parseToday(c.PostForm("today"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read uploaded file"})
		return
	}
	defer f.Close()

	kind := service.InputKind(strings.ToLower(c.DefaultPostForm("kind", string(service.InputPivot))))
	res, err := h.service.RunUpload(c.Request.Context(), fh.Filename, f, kind, today)
	if err != nil {
		runError(c, res, err)
		return
	}

	c.JSON(http.StatusCreated, res)
}

// CreateDriveRun forecasts a sales file stored in Google Drive
func (h *ForecastHandler) CreateDriveRun(c *gin.Context) {
	var req driveRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file_id is required"})
		return
	}

	today, err := parseToday(req.Today)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.service.RunDriveFile(c.Request.Context(), req.FileID, service.InputKind(strings.ToLower(req.Kind)), today)
	if err != nil {
		runError(c, res, err)
		return
	}

	c.JSON(http.StatusCreated, res)
}

// ListRuns returns recent runs
func (h *ForecastHandler) ListRuns(c *gin.Context) {
	limit := parsePositiveIntWithDefault(c.Query("limit"), 50)

	runs, err := h.service.ListRuns(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch runs"})
		return
	}

	c.JSON(http.StatusOK, runs)
}

// GetRun returns a run with its stored predictions
func (h *ForecastHandler) GetRun(c *gin.Context) {
	detail, err := h.service.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, detail)
}

// DownloadPredictions renders the stored predictions of a run as a pivot
// workbook or CSV
func (h *ForecastHandler) DownloadPredictions(c *gin.Context) {
	format := sheet.Format(strings.ToLower(c.DefaultQuery("format", string(sheet.FormatXLSX))))
	contentType := "text/csv"
	switch format {
	case sheet.FormatXLSX:
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case sheet.FormatCSV:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "format must be xlsx or csv"})
		return
	}

	detail, err := h.service.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.Header("Content-Type", contentType)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=predictions_%s.%s", detail.Run.ID, format))
	if err := sheet.WritePredictions(c.Writer, format, forecast.PivotFromPoints(detail.Points)); err != nil {
		log.Error().Err(err).Str("run", detail.Run.ID).Msg("Failed to write predictions")
	}
}

// ListDriveFiles lists a Drive folder by folder_id or path
func (h *ForecastHandler) ListDriveFiles(c *gin.Context) {
	files, err := h.service.ListDriveFiles(c.Request.Context(), c.Query("folder_id"), c.Query("path"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, files)
}

func runError(c *gin.Context, res *pipeline.RunResult, err error) {
	status := statusFor(err)
	body := gin.H{"error": err.Error()}
	if res != nil && res.Run != nil {
		body["run"] = res.Run
	}
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Msg("Forecast run failed")
	}
	c.JSON(status, body)
}

func statusFor(err error) int {
	var (
		malformed *domain.MalformedScheduleError
		empty     *domain.EmptyInputError
	)
	switch {
	case errors.Is(err, pipeline.ErrRunNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrDriveDisabled):
		return http.StatusServiceUnavailable
	case errors.Is(err, service.ErrUnsupportedFile),
		errors.Is(err, service.ErrInvalidInput),
		errors.As(err, &malformed),
		errors.As(err, &empty):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// parseToday reads an optional YYYY-MM-DD reference date. Empty means the
// configured default.
func parseToday(value string) (time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return time.Time{}, nil
	}
	return pipeline.ResolveToday(value, time.Time{})
}

func parsePositiveIntWithDefault(value string, fallback int) int {
	if v, err := strconv.Atoi(strings.TrimSpace(value)); err == nil && v > 0 {
		return v
	}
	return fallback
}
