package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/andresuchdata/autopo-forecast/internal/domain"
	"github.com/andresuchdata/autopo-forecast/internal/repository/postgres"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Schema creates the run tracking tables
const Schema = `
CREATE TABLE IF NOT EXISTS forecast_runs (
	id                 TEXT PRIMARY KEY,
	source             TEXT NOT NULL,
	reference_date     DATE NOT NULL,
	model              TEXT NOT NULL,
	status             TEXT NOT NULL,
	total_items        INTEGER NOT NULL DEFAULT 0,
	heuristic_items    INTEGER NOT NULL DEFAULT 0,
	statistical_items  INTEGER NOT NULL DEFAULT 0,
	horizon_misses     INTEGER NOT NULL DEFAULT 0,
	failed_items       INTEGER NOT NULL DEFAULT 0,
	forecasted_periods INTEGER NOT NULL DEFAULT 0,
	cap_value          DOUBLE PRECISION,
	cap_error          TEXT NOT NULL DEFAULT '',
	cache_hit          BOOLEAN NOT NULL DEFAULT FALSE,
	outputs            TEXT[] NOT NULL DEFAULT '{}',
	started_at         TIMESTAMPTZ NOT NULL,
	completed_at       TIMESTAMPTZ,
	error_message      TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS forecast_points (
	run_id             TEXT NOT NULL REFERENCES forecast_runs(id) ON DELETE CASCADE,
	item_id            TEXT NOT NULL,
	period             DATE NOT NULL,
	predicted_quantity BIGINT NOT NULL,
	method             TEXT NOT NULL,
	PRIMARY KEY (run_id, item_id, period)
);

CREATE TABLE IF NOT EXISTS forecast_failures (
	run_id  TEXT NOT NULL REFERENCES forecast_runs(id) ON DELETE CASCADE,
	item_id TEXT NOT NULL,
	method  TEXT NOT NULL DEFAULT '',
	reason  TEXT NOT NULL
);
`

// Repository handles database operations for forecast run tracking
type Repository struct {
	db *postgres.DB
}

// NewRepository creates a new run repository
func NewRepository(db *postgres.DB) *Repository {
	return &Repository{db: db}
}

// EnsureSchema creates the tables when missing
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to create forecast schema: %w", err)
	}
	return nil
}

const runColumns = `
	id, source, reference_date, model, status, total_items, heuristic_items,
	statistical_items, horizon_misses, failed_items, forecasted_periods,
	cap_value, cap_error, cache_hit, outputs, started_at, completed_at, error_message`

// CreateRun inserts a new run record
func (r *Repository) CreateRun(ctx context.Context, run *ForecastRun) error {
	if run.Outputs == nil {
		run.Outputs = pq.StringArray{}
	}
	query := `INSERT INTO forecast_runs (` + runColumns + `) VALUES (
		:id, :source, :reference_date, :model, :status, :total_items, :heuristic_items,
		:statistical_items, :horizon_misses, :failed_items, :forecasted_periods,
		:cap_value, :cap_error, :cache_hit, :outputs, :started_at, :completed_at, :error_message
	)`

	_, err := r.db.NamedExecContext(ctx, query, run)
	return err
}

// UpdateRun updates an existing run
func (r *Repository) UpdateRun(ctx context.Context, run *ForecastRun) error {
	if run.Outputs == nil {
		run.Outputs = pq.StringArray{}
	}
	query := `
		UPDATE forecast_runs
		SET status = :status, total_items = :total_items, heuristic_items = :heuristic_items,
		    statistical_items = :statistical_items, horizon_misses = :horizon_misses,
		    failed_items = :failed_items, forecasted_periods = :forecasted_periods,
		    cap_value = :cap_value, cap_error = :cap_error, cache_hit = :cache_hit,
		    outputs = :outputs, completed_at = :completed_at, error_message = :error_message
		WHERE id = :id
	`

	res, err := r.db.NamedExecContext(ctx, query, run)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrRunNotFound
	}
	return nil
}

// SaveResults replaces the stored predictions and failures of a run
func (r *Repository) SaveResults(ctx context.Context, runID string, points []domain.ForecastPoint, failures []domain.ItemFailure) error {
	items := make([]string, len(points))
	periods := make([]string, len(points))
	quantities := make([]int64, len(points))
	methods := make([]string, len(points))
	for i, p := range points {
		items[i] = p.ItemID
		periods[i] = p.Period.Header()
		quantities[i] = p.PredictedQuantity
		methods[i] = string(p.Method)
	}

	failedItems := make([]string, len(failures))
	failedMethods := make([]string, len(failures))
	reasons := make([]string, len(failures))
	for i, f := range failures {
		failedItems[i] = f.ItemID
		failedMethods[i] = string(f.Method)
		reasons[i] = f.Reason
	}

	return r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM forecast_points WHERE run_id = $1`, runID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM forecast_failures WHERE run_id = $1`, runID); err != nil {
			return err
		}

		// Repeated item ids in the pivot are merged so the primary key holds.
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO forecast_points (run_id, item_id, period, predicted_quantity, method)
			SELECT $1, item_id, period, SUM(qty), MIN(method)
			FROM unnest($2::text[], $3::date[], $4::bigint[], $5::text[]) AS t(item_id, period, qty, method)
			GROUP BY item_id, period
		`, runID, pq.Array(items), pq.Array(periods), pq.Array(quantities), pq.Array(methods)); err != nil {
			return fmt.Errorf("failed to insert forecast points: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO forecast_failures (run_id, item_id, method, reason)
			SELECT $1, * FROM unnest($2::text[], $3::text[], $4::text[])
		`, runID, pq.Array(failedItems), pq.Array(failedMethods), pq.Array(reasons)); err != nil {
			return fmt.Errorf("failed to insert forecast failures: %w", err)
		}
		return nil
	})
}

// GetRun retrieves a run by ID
func (r *Repository) GetRun(ctx context.Context, id string) (*ForecastRun, error) {
	run := &ForecastRun{}
	err := r.db.GetContext(ctx, run, `SELECT `+runColumns+` FROM forecast_runs WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns returns the most recent runs first
func (r *Repository) ListRuns(ctx context.Context, limit int) ([]ForecastRun, error) {
	if limit <= 0 {
		limit = 50
	}
	runs := make([]ForecastRun, 0)
	err := r.db.SelectContext(ctx, &runs,
		`SELECT `+runColumns+` FROM forecast_runs ORDER BY started_at DESC LIMIT $1`, limit)
	return runs, err
}

type pointRow struct {
	ItemID            string    `db:"item_id"`
	Period            time.Time `db:"period"`
	PredictedQuantity int64     `db:"predicted_quantity"`
	Method            string    `db:"method"`
}

// GetPoints returns the stored predictions of a run ordered by item and month
func (r *Repository) GetPoints(ctx context.Context, runID string) ([]domain.ForecastPoint, error) {
	var rows []pointRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT item_id, period, predicted_quantity, method
		FROM forecast_points
		WHERE run_id = $1
		ORDER BY item_id, period
	`, runID)
	if err != nil {
		return nil, err
	}

	points := make([]domain.ForecastPoint, len(rows))
	for i, row := range rows {
		points[i] = domain.ForecastPoint{
			ItemID:            row.ItemID,
			Period:            domain.PeriodOf(row.Period),
			PredictedQuantity: row.PredictedQuantity,
			Method:            domain.ForecastMethod(row.Method),
		}
	}
	return points, nil
}

var _ RunStore = (*Repository)(nil)
