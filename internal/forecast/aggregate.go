package forecast

import (
	"errors"
	"fmt"
	"math"

	"github.com/andresuchdata/autopo-forecast/internal/domain"
	"github.com/andresuchdata/autopo-forecast/internal/model"
)

// ErrNoHistory is returned when the historical aggregate has no months to fit.
var ErrNoHistory = errors.New("historical aggregate is empty")

// SumByPeriod totals forecast points per month, in chronological order.
func SumByPeriod(points []domain.ForecastPoint) domain.AggregateSeries {
	totals := make(map[domain.Period]int64)
	periods := make([]domain.Period, 0)
	for _, p := range points {
		if _, ok := totals[p.Period]; !ok {
			periods = append(periods, p.Period)
		}
		totals[p.Period] += p.PredictedQuantity
	}
	sortPeriods(periods)

	out := make(domain.AggregateSeries, len(periods))
	for i, p := range periods {
		out[i] = domain.AggregatePoint{Period: p, Quantity: float64(totals[p])}
	}
	return out
}

// HistoricalAggregate sums every item's cleaned history per schedule month.
// Months without any sale are kept with a zero total.
func HistoricalAggregate(series []domain.ItemSeries, periods []domain.Period) domain.AggregateSeries {
	totals := make(map[domain.Period]float64, len(periods))
	for _, s := range series {
		for _, r := range s.Records {
			totals[r.Period] += r.Quantity.InexactFloat64()
		}
	}

	out := make(domain.AggregateSeries, len(periods))
	for i, p := range periods {
		out[i] = domain.AggregatePoint{Period: p, Quantity: totals[p]}
	}
	return out
}

// PivotHistory parses a pivot and sums its cleaned history per month. Rows
// with unreadable cells are left out of the total and returned as failures.
func PivotHistory(pivot domain.Pivot) (domain.AggregateSeries, []domain.ItemFailure, error) {
	if len(pivot.Rows) == 0 || len(pivot.Headers) == 0 {
		return nil, nil, &domain.EmptyInputError{Reason: "pivot has no items or month columns"}
	}
	schedule, err := ParseSchedule(pivot.Headers)
	if err != nil {
		return nil, nil, err
	}

	series := make([]domain.ItemSeries, 0, len(pivot.Rows))
	failures := []domain.ItemFailure{}
	for _, row := range pivot.Rows {
		s, err := BuildSeries(row.ItemID, schedule, row.Cells)
		if err != nil {
			failures = append(failures, domain.ItemFailure{ItemID: row.ItemID, Reason: err.Error(), Err: err})
			continue
		}
		series = append(series, s)
	}
	return HistoricalAggregate(series, schedule.Periods()), failures, nil
}

// CapForecast is the capped-growth projection of the historical aggregate
type CapForecast struct {
	Cap    float64
	Series domain.AggregateSeries
}

// FitCapModel fits a logistic trend capped at the historical maximum and
// projects horizon months after the last historical month.
func FitCapModel(history domain.AggregateSeries, horizon int) (*CapForecast, error) {
	if len(history) == 0 {
		return nil, ErrNoHistory
	}
	capacity := 0.0
	for _, pt := range history {
		capacity = math.Max(capacity, pt.Quantity)
	}

	series, err := fitAggregate(&model.Logistic{Cap: capacity, Epsilon: 1e-3}, history, horizon)
	if err != nil {
		return nil, err
	}
	return &CapForecast{Cap: capacity, Series: series}, nil
}

// FitETS projects the historical aggregate with additive Holt-Winters.
func FitETS(history domain.AggregateSeries, horizon int) (domain.AggregateSeries, error) {
	if len(history) == 0 {
		return nil, ErrNoHistory
	}
	return fitAggregate(model.NewHoltWinters(), history, horizon)
}

func fitAggregate(fitter model.Fitter, history domain.AggregateSeries, horizon int) (domain.AggregateSeries, error) {
	if horizon < 1 {
		horizon = DefaultHorizon
	}
	obs := make([]model.Observation, len(history))
	for i, pt := range history {
		obs[i] = model.Observation{Time: pt.Period.Time(), Value: pt.Quantity}
	}

	fitted, err := fitter.Fit(obs)
	if err != nil {
		return nil, fmt.Errorf("fit %s aggregate model: %w", fitter.Name(), err)
	}
	preds, err := fitted.Forecast(horizon)
	if err != nil {
		return nil, fmt.Errorf("forecast %s aggregate model: %w", fitter.Name(), err)
	}

	out := make(domain.AggregateSeries, len(preds))
	for i, p := range preds {
		if math.IsNaN(p.Value) || math.IsInf(p.Value, 0) {
			return nil, fmt.Errorf("%s aggregate model: %w", fitter.Name(), domain.ErrDegenerateSeries)
		}
		out[i] = domain.AggregatePoint{Period: domain.PeriodOf(p.Time), Quantity: p.Value}
	}
	return out, nil
}
