package forecast

import (
	"context"
	"fmt"
	"math"

	"github.com/andresuchdata/autopo-forecast/internal/domain"
	"github.com/andresuchdata/autopo-forecast/internal/model"
)

// Statistical fits a model per item and projects it over the horizon.
type Statistical struct {
	fitter model.Fitter
}

// NewStatistical wraps fitter as a forecaster
func NewStatistical(fitter model.Fitter) *Statistical {
	return &Statistical{fitter: fitter}
}

// Method returns MethodStatistical
func (s *Statistical) Method() domain.ForecastMethod {
	return domain.MethodStatistical
}

// Forecast returns one point per month after the last observation, each
// clamped to a non-negative whole quantity. Any model failure is reported as
// a ForecastFitError for the item.
func (s *Statistical) Forecast(ctx context.Context, series domain.ItemSeries, horizon int) ([]domain.ForecastPoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if horizon < 1 {
		horizon = DefaultHorizon
	}

	fitErr := func(err error) error {
		return &domain.ForecastFitError{ItemID: series.ItemID, Model: s.fitter.Name(), Err: err}
	}

	history := make([]model.Observation, len(series.Records))
	for i, r := range series.Records {
		history[i] = model.Observation{Time: r.Period.Time(), Value: r.Quantity.InexactFloat64()}
	}

	fitted, err := s.fitter.Fit(history)
	if err != nil {
		return nil, fitErr(err)
	}
	preds, err := fitted.Forecast(horizon)
	if err != nil {
		return nil, fitErr(err)
	}

	points := make([]domain.ForecastPoint, 0, len(preds))
	for _, p := range preds {
		if math.IsNaN(p.Value) || math.IsInf(p.Value, 0) {
			return nil, fitErr(fmt.Errorf("%w: non-finite prediction for %s", domain.ErrDegenerateSeries, p.Time.Format("2006-01")))
		}
		points = append(points, domain.ForecastPoint{
			ItemID:            series.ItemID,
			Period:            domain.PeriodOf(p.Time),
			PredictedQuantity: clampQuantity(p.Value),
			Method:            domain.MethodStatistical,
		})
	}
	return points, nil
}

func clampQuantity(v float64) int64 {
	f := math.Floor(v)
	if f <= 0 {
		return 0
	}
	if f >= math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(f)
}
