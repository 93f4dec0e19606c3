package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/andresuchdata/autopo-forecast/internal/cache"
	"github.com/andresuchdata/autopo-forecast/internal/domain"
	"github.com/andresuchdata/autopo-forecast/internal/forecast"
	"github.com/andresuchdata/autopo-forecast/internal/metrics"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Dependencies are the collaborators of an Orchestrator. Nil members fall
// back to in-memory or no-op implementations.
type Dependencies struct {
	Store    RunStore
	Cache    cache.ReportCache
	Exporter *Exporter
	Metrics  *metrics.Metrics
}

// RunResult is a tracked run together with its report
type RunResult struct {
	Run    *ForecastRun     `json:"run"`
	Report *forecast.Report `json:"report"`
}

// Orchestrator loads an input, runs the forecast engine and records,
// exports and caches the outcome.
type Orchestrator struct {
	cfg  PipelineConfig
	opts forecast.Options
	deps Dependencies
	now  func() time.Time
}

// NewOrchestrator creates a new Orchestrator. opts are the engine defaults;
// each run may override the reference date.
func NewOrchestrator(cfg PipelineConfig, opts forecast.Options, deps Dependencies) *Orchestrator {
	if deps.Store == nil {
		deps.Store = NewMemoryStore()
	}
	if deps.Cache == nil {
		deps.Cache = cache.NewNoopReportCache()
	}
	return &Orchestrator{cfg: cfg, opts: opts, deps: deps, now: time.Now}
}

// Store returns the run store
func (o *Orchestrator) Store() RunStore {
	return o.deps.Store
}

// Run executes one forecast for src. A zero today uses the configured
// reference date, or the current date when none is configured. The run
// record is persisted in every outcome; the returned error is the cause of a
// failed run.
func (o *Orchestrator) Run(ctx context.Context, src Source, today time.Time) (*RunResult, error) {
	started := o.now()
	opts := o.opts
	switch {
	case !today.IsZero():
		opts.Today = today
	case opts.Today.IsZero():
		opts.Today = time.Date(started.Year(), started.Month(), started.Day(), 0, 0, 0, 0, time.UTC)
	}

	run := &ForecastRun{
		ID:            uuid.NewString(),
		Source:        src.Name(),
		ReferenceDate: opts.Today,
		Model:         opts.Model,
		Status:        domain.RunPending,
		StartedAt:     started,
	}
	if err := o.deps.Store.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to create forecast run: %w", err)
	}

	logger := log.With().Str("run", run.ID).Str("source", run.Source).Logger()
	logger.Info().Str("today", opts.Today.Format("2006-01-02")).Msg("Forecast run started")

	report, err := o.execute(ctx, run, src, opts)
	if err != nil {
		o.finish(ctx, run, domain.RunFailed, err.Error(), started)
		logger.Error().Err(err).Msg("Forecast run failed")
		return &RunResult{Run: run}, err
	}

	o.finish(ctx, run, domain.RunCompleted, "", started)
	if o.deps.Metrics != nil {
		o.deps.Metrics.ObserveRun(run.Status, report.Summary, report.CapError != "", o.now().Sub(started))
	}
	logger.Info().
		Int("items", run.TotalItems).
		Int("failed", run.FailedItems).
		Bool("cache_hit", run.CacheHit).
		Msg("Forecast run completed")

	return &RunResult{Run: run, Report: report}, nil
}

func (o *Orchestrator) execute(ctx context.Context, run *ForecastRun, src Source, opts forecast.Options) (*forecast.Report, error) {
	// 1. Load input
	pivot, err := src.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", src.Name(), err)
	}

	run.Status = domain.RunProcessing
	if err := o.deps.Store.UpdateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to update forecast run: %w", err)
	}

	// 2. Forecast, or reuse a cached report for identical inputs
	key := cache.ReportKey(pivot, opts)
	report, hit, err := o.deps.Cache.GetReport(ctx, key)
	if err != nil {
		log.Warn().Err(err).Msg("Report cache lookup failed")
	}
	if hit {
		run.CacheHit = true
		if o.deps.Metrics != nil {
			o.deps.Metrics.CacheHits.Inc()
		}
	} else {
		engine, err := forecast.NewEngine(opts)
		if err != nil {
			return nil, err
		}
		report, err = engine.Run(ctx, pivot)
		if err != nil {
			return nil, err
		}
		if err := o.deps.Cache.SetReport(ctx, key, report); err != nil {
			log.Warn().Err(err).Msg("Report cache store failed")
		}
	}

	run.ApplySummary(report.Summary)
	run.CapError = report.CapError
	if report.CapError == "" {
		capValue := report.Cap
		run.CapValue = &capValue
	}

	// 3. Persist item results
	if err := o.deps.Store.SaveResults(ctx, run.ID, report.Points(), report.Failures); err != nil {
		return nil, fmt.Errorf("failed to save forecast results: %w", err)
	}

	// 4. Export
	if o.deps.Exporter != nil {
		outputs, err := o.deps.Exporter.Export(ctx, run.ID, report)
		run.Outputs = outputs
		if err != nil {
			return nil, err
		}
	}

	return report, nil
}

func (o *Orchestrator) finish(ctx context.Context, run *ForecastRun, status domain.RunStatus, message string, started time.Time) {
	now := o.now()
	run.Status = status
	run.ErrorMessage = message
	run.CompletedAt = &now

	// The caller's context may already be cancelled; the final status still needs writing.
	if err := o.deps.Store.UpdateRun(context.WithoutCancel(ctx), run); err != nil {
		log.Error().Err(err).Str("run", run.ID).Msg("Failed to record run status")
	}
	if status == domain.RunFailed && o.deps.Metrics != nil {
		o.deps.Metrics.ObserveRun(status, domain.RunSummary{}, false, now.Sub(started))
	}
}
