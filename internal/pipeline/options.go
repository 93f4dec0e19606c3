package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/andresuchdata/autopo-forecast/internal/config"
	"github.com/andresuchdata/autopo-forecast/internal/forecast"
	"github.com/shopspring/decimal"
)

// OptionsFromConfig converts forecast settings into engine options. The
// reference date is resolved from the configured value, falling back to now.
func OptionsFromConfig(cfg config.ForecastConfig, now time.Time) (forecast.Options, error) {
	today, err := ResolveToday(cfg.ReferenceDate, now)
	if err != nil {
		return forecast.Options{}, err
	}

	opts := forecast.DefaultOptions(today)
	opts.MinDistinctDates = cfg.MinDistinctDates
	if cfg.Horizon > 0 {
		opts.Horizon = cfg.Horizon
	}
	if cfg.TrailingMonths > 0 {
		opts.TrailingMonths = cfg.TrailingMonths
	}
	if cfg.Workers > 0 {
		opts.Workers = cfg.Workers
	}
	if cfg.Model != "" {
		opts.Model = cfg.Model
	}
	opts.ETS = cfg.ETSEnabled

	if ratio := strings.TrimSpace(cfg.HeuristicRatio); ratio != "" {
		r, err := decimal.NewFromString(ratio)
		if err != nil {
			return forecast.Options{}, fmt.Errorf("invalid heuristic ratio %q: %w", ratio, err)
		}
		if !r.IsPositive() || r.GreaterThan(decimal.NewFromInt(1)) {
			return forecast.Options{}, fmt.Errorf("heuristic ratio must be in (0, 1], got %s", ratio)
		}
		opts.HeuristicRatio = r
	}
	return opts, nil
}

// ResolveToday parses a YYYY-MM-DD reference date, or returns now's date
// when value is empty.
func ResolveToday(value string, now time.Time) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid reference date %q (want YYYY-MM-DD): %w", value, err)
	}
	return t, nil
}
