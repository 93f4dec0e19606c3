package forecast

import (
	"time"

	"github.com/andresuchdata/autopo-forecast/internal/domain"
)

// ItemResult is the outcome of forecasting one pivot row
type ItemResult struct {
	Index         int                    `json:"index"`
	ItemID        string                 `json:"item_id"`
	Series        domain.ItemSeries      `json:"-"`
	DistinctDates int                    `json:"distinct_dates"`
	Method        domain.ForecastMethod  `json:"method,omitempty"`
	Points        []domain.ForecastPoint `json:"points"`
	HorizonMiss   bool                   `json:"horizon_miss,omitempty"`
	Err           error                  `json:"-"`
}

// Failed reports whether the item produced an error instead of a forecast
func (r ItemResult) Failed() bool {
	return r.Err != nil
}

// Report is everything a run produced. Per-item and aggregate-level results
// are kept side by side and never reconciled.
type Report struct {
	ReferenceDate time.Time                 `json:"reference_date"`
	Horizon       int                       `json:"horizon"`
	Model         string                    `json:"model"`
	Items         []ItemResult              `json:"items"`
	Pivot         domain.ForecastPivot      `json:"pivot"`
	Aggregate     domain.AggregateSeries    `json:"aggregate"`
	Historical    domain.AggregateSeries    `json:"historical"`
	Cap           float64                   `json:"cap"`
	CapForecast   domain.AggregateSeries    `json:"cap_forecast"`
	CapError      string                    `json:"cap_error,omitempty"`
	ETSForecast   domain.AggregateSeries    `json:"ets_forecast,omitempty"`
	ETSError      string                    `json:"ets_error,omitempty"`
	Comparison    []domain.PeriodComparison `json:"comparison"`
	Failures      []domain.ItemFailure      `json:"failures"`
	Summary       domain.RunSummary         `json:"summary"`
}

// Points returns every forecast point in item order
func (r *Report) Points() []domain.ForecastPoint {
	var out []domain.ForecastPoint
	for _, item := range r.Items {
		out = append(out, item.Points...)
	}
	return out
}

// BuildPivot lays item results out as an item × month table. Items keep
// their first input position, repeated ids are summed, periods are the sorted
// union of every point and missing cells are zero. Items without points are
// left out.
func BuildPivot(results []ItemResult) domain.ForecastPivot {
	rowOf := make(map[string]int)
	colOf := make(map[domain.Period]int)
	var items []string
	var periods []domain.Period

	for _, res := range results {
		if len(res.Points) == 0 {
			continue
		}
		if _, ok := rowOf[res.ItemID]; !ok {
			rowOf[res.ItemID] = len(items)
			items = append(items, res.ItemID)
		}
		for _, p := range res.Points {
			if _, ok := colOf[p.Period]; !ok {
				colOf[p.Period] = 0
				periods = append(periods, p.Period)
			}
		}
	}
	sortPeriods(periods)
	for j, p := range periods {
		colOf[p] = j
	}

	values := make([][]int64, len(items))
	for i := range values {
		values[i] = make([]int64, len(periods))
	}
	for _, res := range results {
		for _, p := range res.Points {
			values[rowOf[res.ItemID]][colOf[p.Period]] += p.PredictedQuantity
		}
	}

	return domain.ForecastPivot{Items: items, Periods: periods, Values: values}
}

// PivotFromPoints rebuilds the prediction pivot from stored points, keeping
// items in first-seen order.
func PivotFromPoints(points []domain.ForecastPoint) domain.ForecastPivot {
	index := make(map[string]int)
	var results []ItemResult
	for _, p := range points {
		i, ok := index[p.ItemID]
		if !ok {
			i = len(results)
			index[p.ItemID] = i
			results = append(results, ItemResult{ItemID: p.ItemID})
		}
		results[i].Points = append(results[i].Points, p)
	}
	return BuildPivot(results)
}

// Compare lines up the per-item total and the cap-model value for every month
// either series covers.
func Compare(aggregate, capSeries domain.AggregateSeries) []domain.PeriodComparison {
	seen := make(map[domain.Period]struct{})
	var periods []domain.Period
	for _, s := range []domain.AggregateSeries{aggregate, capSeries} {
		for _, pt := range s {
			if _, ok := seen[pt.Period]; ok {
				continue
			}
			seen[pt.Period] = struct{}{}
			periods = append(periods, pt.Period)
		}
	}
	sortPeriods(periods)

	out := make([]domain.PeriodComparison, len(periods))
	for i, p := range periods {
		total, _ := aggregate.Lookup(p)
		cmp := domain.PeriodComparison{Period: p, ItemTotal: int64(total)}
		if c, ok := capSeries.Lookup(p); ok {
			capValue := c
			divergence := total - c
			cmp.CapForecast = &capValue
			cmp.Divergence = &divergence
		}
		out[i] = cmp
	}
	return out
}

// Summarize counts items by the path that handled them
func Summarize(results []ItemResult, pivot domain.ForecastPivot) domain.RunSummary {
	s := domain.RunSummary{TotalItems: len(results), ForecastedPeriods: len(pivot.Periods)}
	for _, r := range results {
		switch {
		case r.Failed():
			s.FailedItems++
		case r.Method == domain.MethodHeuristic:
			s.HeuristicItems++
			if r.HorizonMiss {
				s.HorizonMisses++
			}
		case r.Method == domain.MethodStatistical:
			s.StatisticalItems++
		}
	}
	return s
}

// Failures lists the failed items in input order
func Failures(results []ItemResult) []domain.ItemFailure {
	out := make([]domain.ItemFailure, 0)
	for _, r := range results {
		if r.Err == nil {
			continue
		}
		out = append(out, domain.ItemFailure{
			ItemID: r.ItemID,
			Method: r.Method,
			Reason: r.Err.Error(),
			Err:    r.Err,
		})
	}
	return out
}
