package forecast

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/andresuchdata/autopo-forecast/internal/domain"
	"github.com/andresuchdata/autopo-forecast/internal/model"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Options configures an Engine. Zero numeric fields and a zero ratio take
// the package defaults, so only Today is required.
type Options struct {
	Today            time.Time       // Reference date anchoring the heuristic window
	Horizon          int             // Months forecast ahead
	MinDistinctDates int             // Largest distinct-date count routed to the heuristic
	HeuristicRatio   decimal.Decimal // Share of trailing volume the heuristic predicts
	TrailingMonths   int             // Heuristic look-back window
	Workers          int             // Concurrent item forecasts
	Model            string          // Per-item statistical model name
	ETS              bool            // Add the Holt-Winters aggregate comparison

	// Heuristic and Statistical replace the default forecasters when set.
	Heuristic   Forecaster
	Statistical Forecaster

	Logger *zerolog.Logger
}

// DefaultOptions returns the defaults anchored on today
func DefaultOptions(today time.Time) Options {
	return Options{
		Today:            today,
		Horizon:          DefaultHorizon,
		MinDistinctDates: DefaultMinDistinctDates,
		HeuristicRatio:   DefaultHeuristicRatio,
		TrailingMonths:   DefaultTrailingMonths,
		Workers:          runtime.NumCPU(),
		Model:            model.NameAdditive,
	}
}

// Engine runs the hybrid forecast over a pivot
type Engine struct {
	opts        Options
	classifier  Classifier
	heuristic   Forecaster
	statistical Forecaster
	logger      zerolog.Logger
}

type itemJob struct {
	index int
	row   domain.PivotRow
}

// NewEngine validates opts and builds the forecasters
func NewEngine(opts Options) (*Engine, error) {
	if opts.Today.IsZero() {
		return nil, errors.New("reference date is required")
	}
	if opts.Horizon < 1 {
		opts.Horizon = DefaultHorizon
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Model == "" {
		opts.Model = model.NameAdditive
	}

	e := &Engine{
		opts:        opts,
		classifier:  NewClassifier(opts.MinDistinctDates),
		heuristic:   opts.Heuristic,
		statistical: opts.Statistical,
		logger:      log.Logger,
	}
	if opts.Logger != nil {
		e.logger = *opts.Logger
	}
	if e.heuristic == nil {
		e.heuristic = NewHeuristic(opts.Today, opts.HeuristicRatio, opts.TrailingMonths)
	}
	if e.statistical == nil {
		fitter, err := model.New(opts.Model)
		if err != nil {
			return nil, err
		}
		e.statistical = NewStatistical(fitter)
	}
	return e, nil
}

// Options returns the effective engine options
func (e *Engine) Options() Options {
	return e.opts
}

// Run forecasts every pivot row and assembles the report. Schedule and empty
// input errors abort the run before any item is forecast; item errors are
// collected on the report.
func (e *Engine) Run(ctx context.Context, pivot domain.Pivot) (*Report, error) {
	if len(pivot.Rows) == 0 {
		return nil, &domain.EmptyInputError{Reason: "pivot has no items"}
	}
	if len(pivot.Headers) == 0 {
		return nil, &domain.EmptyInputError{Reason: "pivot has no month columns"}
	}

	// 1. Parse the shared month schedule
	schedule, err := ParseSchedule(pivot.Headers)
	if err != nil {
		return nil, err
	}

	e.logger.Info().
		Int("items", len(pivot.Rows)).
		Int("months", len(schedule)).
		Int("workers", e.opts.Workers).
		Str("today", e.opts.Today.Format("2006-01-02")).
		Msg("Starting forecast run")

	// 2. Forecast items concurrently
	results, err := e.forecastItems(ctx, schedule, pivot.Rows)
	if err != nil {
		return nil, err
	}

	// 3. Aggregate and cross-check
	report := &Report{
		ReferenceDate: e.opts.Today,
		Horizon:       e.opts.Horizon,
		Model:         e.opts.Model,
		Items:         results,
	}
	report.Pivot = BuildPivot(results)
	report.Aggregate = SumByPeriod(report.Points())

	series := make([]domain.ItemSeries, 0, len(results))
	for _, r := range results {
		series = append(series, r.Series)
	}
	report.Historical = HistoricalAggregate(series, schedule.Periods())

	capForecast, err := FitCapModel(report.Historical, e.opts.Horizon)
	if err != nil {
		e.logger.Warn().Err(err).Msg("Cap model fit failed")
		report.CapError = err.Error()
	} else {
		report.Cap = capForecast.Cap
		report.CapForecast = capForecast.Series
	}

	if e.opts.ETS {
		ets, err := FitETS(report.Historical, e.opts.Horizon)
		if err != nil {
			e.logger.Warn().Err(err).Msg("ETS aggregate fit failed")
			report.ETSError = err.Error()
		} else {
			report.ETSForecast = ets
		}
	}

	// 4. Report
	report.Comparison = Compare(report.Aggregate, report.CapForecast)
	report.Failures = Failures(results)
	report.Summary = Summarize(results, report.Pivot)

	e.logger.Info().
		Int("heuristic", report.Summary.HeuristicItems).
		Int("statistical", report.Summary.StatisticalItems).
		Int("horizon_misses", report.Summary.HorizonMisses).
		Int("failed", report.Summary.FailedItems).
		Int("periods", report.Summary.ForecastedPeriods).
		Msg("Forecast run completed")

	return report, nil
}

// forecastItems fans rows out over the worker pool. Each worker writes only
// its job's slot, so results keep input order without locking.
func (e *Engine) forecastItems(ctx context.Context, schedule Schedule, rows []domain.PivotRow) ([]ItemResult, error) {
	results := make([]ItemResult, len(rows))
	jobChan := make(chan itemJob, e.opts.Workers)
	var wg sync.WaitGroup

	for i := 0; i < e.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobChan {
				results[job.index] = e.forecastItem(ctx, schedule, job)
			}
		}()
	}

	var cancelled error
enqueue:
	for i, row := range rows {
		if cancelled = ctx.Err(); cancelled != nil {
			break
		}
		select {
		case <-ctx.Done():
			cancelled = ctx.Err()
			break enqueue
		case jobChan <- itemJob{index: i, row: row}:
		}
	}
	close(jobChan)
	wg.Wait()

	if cancelled != nil {
		return nil, fmt.Errorf("forecast run cancelled: %w", cancelled)
	}
	return results, nil
}

func (e *Engine) forecastItem(ctx context.Context, schedule Schedule, job itemJob) ItemResult {
	res := ItemResult{Index: job.index, ItemID: job.row.ItemID}

	series, err := BuildSeries(job.row.ItemID, schedule, job.row.Cells)
	if err != nil {
		res.Err = err
		e.logger.Warn().Err(err).Str("item", res.ItemID).Msg("Skipping item with invalid quantities")
		return res
	}
	res.Series = series
	res.DistinctDates = DistinctDates(series)

	forecaster := e.heuristic
	if e.classifier.Classify(series) == Sufficient {
		forecaster = e.statistical
	}
	res.Method = forecaster.Method()

	points, err := forecaster.Forecast(ctx, series, e.opts.Horizon)
	if err != nil {
		res.Err = err
		e.logger.Warn().Err(err).Str("item", res.ItemID).Str("method", string(res.Method)).Msg("Item forecast failed")
		return res
	}
	res.Points = points
	res.HorizonMiss = len(points) == 0 && res.Method == domain.MethodHeuristic

	e.logger.Debug().
		Str("item", res.ItemID).
		Str("method", string(res.Method)).
		Int("distinct_dates", res.DistinctDates).
		Int("points", len(points)).
		Msg("Item forecast")
	return res
}
