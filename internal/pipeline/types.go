package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/andresuchdata/autopo-forecast/internal/domain"
	"github.com/andresuchdata/autopo-forecast/internal/sheet"
	"github.com/andresuchdata/autopo-forecast/internal/storage"
	"github.com/lib/pq"
)

// ErrRunNotFound is returned when a run id is unknown to the store.
var ErrRunNotFound = errors.New("forecast run not found")

// Source supplies the sales pivot of a run
type Source interface {
	// Name identifies the input in run records
	Name() string

	// Load reads the pivot
	Load(ctx context.Context) (domain.Pivot, error)
}

// FileSource reads a pivot workbook or CSV from disk
type FileSource struct {
	Path string
}

func (s FileSource) Name() string { return filepath.Base(s.Path) }

func (s FileSource) Load(ctx context.Context) (domain.Pivot, error) {
	if err := ctx.Err(); err != nil {
		return domain.Pivot{}, err
	}
	return sheet.ReadPivot(s.Path)
}

// OrdersSource reads a raw order export and pivots it by item and month
type OrdersSource struct {
	Path string
}

func (s OrdersSource) Name() string { return filepath.Base(s.Path) }

func (s OrdersSource) Load(ctx context.Context) (domain.Pivot, error) {
	if err := ctx.Err(); err != nil {
		return domain.Pivot{}, err
	}
	t, err := sheet.ReadTable(s.Path, "")
	if err != nil {
		return domain.Pivot{}, err
	}
	return sheet.BuildPivotFromOrders(t)
}

// PivotSource wraps an already parsed pivot, such as an HTTP upload
type PivotSource struct {
	Label string
	Pivot domain.Pivot
}

func (s PivotSource) Name() string { return s.Label }

func (s PivotSource) Load(ctx context.Context) (domain.Pivot, error) {
	return s.Pivot, ctx.Err()
}

// ObjectSource downloads a pivot or order export from object storage into
// Dir before reading it
type ObjectSource struct {
	Storage storage.ObjectStorage
	Key     string
	Dir     string
	Orders  bool
}

func (s ObjectSource) Name() string { return s.Key }

func (s ObjectSource) Load(ctx context.Context) (domain.Pivot, error) {
	if s.Storage == nil {
		return domain.Pivot{}, errors.New("object storage is not configured")
	}
	if err := ensureDir(s.Dir); err != nil {
		return domain.Pivot{}, err
	}
	local := filepath.Join(s.Dir, path.Base(s.Key))
	if err := s.Storage.DownloadObject(ctx, s.Key, local); err != nil {
		return domain.Pivot{}, fmt.Errorf("failed to download %s: %w", s.Key, err)
	}
	defer os.Remove(local)

	if s.Orders {
		return OrdersSource{Path: local}.Load(ctx)
	}
	return FileSource{Path: local}.Load(ctx)
}

// PipelineConfig holds configuration for the forecast pipeline
type PipelineConfig struct {
	Name         string
	OutputDir    string // Directory receiving one sub-directory per run
	UploadPrefix string // Object key prefix for uploaded outputs
	Upload       bool   // Upload outputs when object storage is configured
}

// DefaultPipelineConfig returns sensible defaults
func DefaultPipelineConfig(outputDir string) PipelineConfig {
	if outputDir == "" {
		outputDir = "data/output"
	}
	return PipelineConfig{
		Name:         "forecast",
		OutputDir:    outputDir,
		UploadPrefix: "forecasts/",
	}
}

// ForecastRun tracks a single execution of the forecaster
type ForecastRun struct {
	ID                string           `db:"id" json:"id"`
	Source            string           `db:"source" json:"source"`
	ReferenceDate     time.Time        `db:"reference_date" json:"reference_date"`
	Model             string           `db:"model" json:"model"`
	Status            domain.RunStatus `db:"status" json:"status"`
	TotalItems        int              `db:"total_items" json:"total_items"`
	HeuristicItems    int              `db:"heuristic_items" json:"heuristic_items"`
	StatisticalItems  int              `db:"statistical_items" json:"statistical_items"`
	HorizonMisses     int              `db:"horizon_misses" json:"horizon_misses"`
	FailedItems       int              `db:"failed_items" json:"failed_items"`
	ForecastedPeriods int              `db:"forecasted_periods" json:"forecasted_periods"`
	CapValue          *float64         `db:"cap_value" json:"cap_value,omitempty"`
	CapError          string           `db:"cap_error" json:"cap_error,omitempty"`
	CacheHit          bool             `db:"cache_hit" json:"cache_hit"`
	Outputs           pq.StringArray   `db:"outputs" json:"outputs"`
	StartedAt         time.Time        `db:"started_at" json:"started_at"`
	CompletedAt       *time.Time       `db:"completed_at" json:"completed_at,omitempty"`
	ErrorMessage      string           `db:"error_message" json:"error_message,omitempty"`
}

// ApplySummary copies run counts from a report summary
func (r *ForecastRun) ApplySummary(s domain.RunSummary) {
	r.TotalItems = s.TotalItems
	r.HeuristicItems = s.HeuristicItems
	r.StatisticalItems = s.StatisticalItems
	r.HorizonMisses = s.HorizonMisses
	r.FailedItems = s.FailedItems
	r.ForecastedPeriods = s.ForecastedPeriods
}

// RunStore persists runs and their per-item results
type RunStore interface {
	CreateRun(ctx context.Context, run *ForecastRun) error
	UpdateRun(ctx context.Context, run *ForecastRun) error
	SaveResults(ctx context.Context, runID string, points []domain.ForecastPoint, failures []domain.ItemFailure) error
	GetRun(ctx context.Context, id string) (*ForecastRun, error)
	ListRuns(ctx context.Context, limit int) ([]ForecastRun, error)
	GetPoints(ctx context.Context, runID string) ([]domain.ForecastPoint, error)
}

func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	return nil
}
