// Package forecast turns a wide item × month sales pivot into per-item
// forecasts. Each item is routed to a heuristic or a statistical forecaster
// depending on how much history it has, and the per-item results are then
// aggregated and cross-checked against an aggregate-level model.
package forecast

import (
	"context"

	"github.com/andresuchdata/autopo-forecast/internal/domain"
)

// DefaultHorizon is the number of months forecast ahead
const DefaultHorizon = 12

// Forecaster produces the forecast points of one item
type Forecaster interface {
	// Method identifies the path recorded on every point produced
	Method() domain.ForecastMethod

	// Forecast predicts series over horizon months. An empty result with a
	// nil error means the item has nothing to report inside the horizon.
	Forecast(ctx context.Context, series domain.ItemSeries, horizon int) ([]domain.ForecastPoint, error)
}
