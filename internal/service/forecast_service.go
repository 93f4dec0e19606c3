package service

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/andresuchdata/autopo-forecast/internal/domain"
	"github.com/andresuchdata/autopo-forecast/internal/drive"
	"github.com/andresuchdata/autopo-forecast/internal/pipeline"
	"github.com/andresuchdata/autopo-forecast/internal/sheet"
	"github.com/rs/zerolog/log"
)

// InputKind tells how an uploaded file is laid out
type InputKind string

const (
	InputPivot  InputKind = "pivot"
	InputOrders InputKind = "orders"
)

// DriveSource resolves and downloads Drive files for a run
type DriveSource interface {
	ListFiles(ctx context.Context, folderID string) ([]*drive.File, error)
	GetFile(ctx context.Context, fileID string) (*drive.File, error)
	DownloadFile(ctx context.Context, fileID string, w io.Writer) error
	FindFolderByPath(ctx context.Context, path string) (string, error)
}

// RunDetail is a stored run with its predictions
type RunDetail struct {
	Run    *pipeline.ForecastRun  `json:"run"`
	Points []domain.ForecastPoint `json:"points"`
}

type ForecastService struct {
	orchestrator *pipeline.Orchestrator
	store        pipeline.RunStore
	drive        DriveSource
	downloadDir  string
}

// NewForecastService creates the service. files may be nil when no Drive
// credentials are configured.
func NewForecastService(orchestrator *pipeline.Orchestrator, files DriveSource, downloadDir string) *ForecastService {
	if downloadDir == "" {
		downloadDir = "data/downloads"
	}
	return &ForecastService{
		orchestrator: orchestrator,
		store:        orchestrator.Store(),
		drive:        files,
		downloadDir:  downloadDir,
	}
}

// DriveEnabled reports whether Drive-backed runs are available
func (s *ForecastService) DriveEnabled() bool {
	return s.drive != nil
}

// RunUpload parses an uploaded sales file and forecasts it
func (s *ForecastService) RunUpload(ctx context.Context, filename string, r io.Reader, kind InputKind, today time.Time) (*pipeline.RunResult, error) {
	format, err := sheet.FormatFromPath(filename)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFile, err)
	}

	var pivot domain.Pivot
	switch kind {
	case InputOrders:
		t, err := sheet.ReadTableFrom(r, format, "")
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
		if pivot, err = sheet.BuildPivotFromOrders(t); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
	case InputPivot, "":
		if pivot, err = sheet.ReadPivotFrom(r, format); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
	default:
		return nil, fmt.Errorf("%w: unknown input kind %q", ErrInvalidInput, kind)
	}

	return s.orchestrator.Run(ctx, pipeline.PivotSource{Label: filepath.Base(filename), Pivot: pivot}, today)
}

// RunDriveFile downloads a Drive file and forecasts it
func (s *ForecastService) RunDriveFile(ctx context.Context, fileID string, kind InputKind, today time.Time) (*pipeline.RunResult, error) {
	if s.drive == nil {
		return nil, ErrDriveDisabled
	}
	meta, err := s.drive.GetFile(ctx, fileID)
	if err != nil {
		return nil, err
	}

	path, err := drive.NewDownloader(s.drive).DownloadFile(ctx, meta, s.downloadDir)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := os.Remove(path); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Failed to remove downloaded file")
		}
	}()

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	return s.RunUpload(ctx, meta.Name, f, kind, today)
}

// ListDriveFiles lists a Drive folder given by id or by path
func (s *ForecastService) ListDriveFiles(ctx context.Context, folderID, folderPath string) ([]*drive.File, error) {
	if s.drive == nil {
		return nil, ErrDriveDisabled
	}
	if folderPath != "" {
		id, err := s.drive.FindFolderByPath(ctx, folderPath)
		if err != nil {
			return nil, err
		}
		folderID = id
	}
	return s.drive.ListFiles(ctx, folderID)
}

// GetRun returns a run with its stored predictions
func (s *ForecastService) GetRun(ctx context.Context, id string) (*RunDetail, error) {
	run, err := s.store.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	points, err := s.store.GetPoints(ctx, id)
	if err != nil {
		return nil, err
	}
	return &RunDetail{Run: run, Points: points}, nil
}

// ListRuns returns recent runs, newest first
func (s *ForecastService) ListRuns(ctx context.Context, limit int) ([]pipeline.ForecastRun, error) {
	return s.store.ListRuns(ctx, limit)
}
