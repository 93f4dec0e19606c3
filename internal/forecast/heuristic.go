package forecast

import (
	"context"
	"time"

	"github.com/andresuchdata/autopo-forecast/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// DefaultHeuristicRatio is the share of trailing volume predicted for next year.
var DefaultHeuristicRatio = decimal.RequireFromString("0.5")

// DefaultTrailingMonths is the size of the heuristic look-back window.
const DefaultTrailingMonths = 12

// Heuristic forecasts sparse items as a fixed share of their trailing volume,
// placed one horizon after the last sale.
type Heuristic struct {
	today          time.Time
	ratio          decimal.Decimal
	trailingMonths int
}

// NewHeuristic returns a heuristic forecaster anchored on today. A
// non-positive ratio or window falls back to the defaults.
func NewHeuristic(today time.Time, ratio decimal.Decimal, trailingMonths int) *Heuristic {
	if !ratio.IsPositive() {
		ratio = DefaultHeuristicRatio
	}
	if trailingMonths <= 0 {
		trailingMonths = DefaultTrailingMonths
	}
	return &Heuristic{
		today:          truncateDay(today),
		ratio:          ratio,
		trailingMonths: trailingMonths,
	}
}

// Method returns MethodHeuristic
func (h *Heuristic) Method() domain.ForecastMethod {
	return domain.MethodHeuristic
}

// Forecast emits at most one point:
//   - no sales inside the window: zero at today + horizon
//   - otherwise floor(ratio × total) at last sale + horizon, provided that
//     date does not fall after today + horizon
func (h *Heuristic) Forecast(ctx context.Context, series domain.ItemSeries, horizon int) ([]domain.ForecastPoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if horizon < 1 {
		horizon = DefaultHorizon
	}

	windowStart := domain.ShiftMonths(h.today, -h.trailingMonths)
	limit := domain.ShiftMonths(h.today, horizon)

	total := decimal.Zero
	var last time.Time
	found := false
	for _, r := range series.Records {
		t := r.Period.Time()
		if t.Before(windowStart) {
			continue
		}
		total = total.Add(r.Quantity)
		if !found || t.After(last) {
			last = t
		}
		found = true
	}

	if !found {
		return []domain.ForecastPoint{{
			ItemID:            series.ItemID,
			Period:            domain.PeriodOf(limit),
			PredictedQuantity: 0,
			Method:            domain.MethodHeuristic,
		}}, nil
	}

	predicted := total.Mul(h.ratio).Floor().IntPart()
	if predicted < 0 {
		predicted = 0
	}

	target := domain.ShiftMonths(last, horizon)
	if target.After(limit) {
		log.Debug().
			Str("item", series.ItemID).
			Str("target", target.Format("2006-01-02")).
			Msg("heuristic target outside horizon")
		return []domain.ForecastPoint{}, nil
	}

	return []domain.ForecastPoint{{
		ItemID:            series.ItemID,
		Period:            domain.PeriodOf(target),
		PredictedQuantity: predicted,
		Method:            domain.MethodHeuristic,
	}}, nil
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
