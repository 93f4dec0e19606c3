// internal/domain/models.go
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SalesRecord is one item's sold quantity for one calendar month
type SalesRecord struct {
	ItemID   string          `json:"item_id"`
	Period   Period          `json:"period"`
	Quantity decimal.Decimal `json:"quantity"`
}

// ItemSeries is the chronological, zero-free sales history of a single item
type ItemSeries struct {
	ItemID  string        `json:"item_id"`
	Records []SalesRecord `json:"records"`
}

// Len returns the number of observations in the series
func (s ItemSeries) Len() int {
	return len(s.Records)
}

// Values returns the quantities as float64 in series order
func (s ItemSeries) Values() []float64 {
	out := make([]float64, len(s.Records))
	for i, r := range s.Records {
		out[i] = r.Quantity.InexactFloat64()
	}
	return out
}

// Times returns the observation dates in series order
func (s ItemSeries) Times() []time.Time {
	out := make([]time.Time, len(s.Records))
	for i, r := range s.Records {
		out[i] = r.Period.Time()
	}
	return out
}

// Last returns the latest observed period. ok is false for an empty series.
func (s ItemSeries) Last() (Period, bool) {
	if len(s.Records) == 0 {
		return Period{}, false
	}
	return s.Records[len(s.Records)-1].Period, true
}

// ForecastPoint is a predicted quantity for one item and month
type ForecastPoint struct {
	ItemID            string         `json:"item_id" db:"item_id"`
	Period            Period         `json:"period" db:"-"`
	PredictedQuantity int64          `json:"predicted_quantity" db:"predicted_quantity"`
	Method            ForecastMethod `json:"method" db:"method"`
}

// AggregatePoint is a total quantity for one month
type AggregatePoint struct {
	Period   Period  `json:"period"`
	Quantity float64 `json:"quantity"`
}

// AggregateSeries is a chronological list of monthly totals
type AggregateSeries []AggregatePoint

// Lookup returns the quantity for p, or zero when p is absent
func (s AggregateSeries) Lookup(p Period) (float64, bool) {
	for _, pt := range s {
		if pt.Period == p {
			return pt.Quantity, true
		}
	}
	return 0, false
}

// Pivot is the wide item × month sales table handed in by the I/O layer.
// Headers are the raw month column headers; every row has one cell per header.
type Pivot struct {
	Headers []string   `json:"headers"`
	Rows    []PivotRow `json:"rows"`
}

// PivotRow is one item's row of raw cells
type PivotRow struct {
	ItemID string   `json:"item_id"`
	Cells  []string `json:"cells"`
}

// ForecastPivot is the item × month prediction table. Values[i][j] belongs to
// Items[i] and Periods[j]; missing predictions are zero.
type ForecastPivot struct {
	Items   []string  `json:"items"`
	Periods []Period  `json:"periods"`
	Values  [][]int64 `json:"values"`
}

// ColumnTotals sums every period column across items
func (p ForecastPivot) ColumnTotals() []int64 {
	totals := make([]int64, len(p.Periods))
	for _, row := range p.Values {
		for j, v := range row {
			totals[j] += v
		}
	}
	return totals
}

// ItemFailure records why an item produced no forecast
type ItemFailure struct {
	ItemID string         `json:"item_id"`
	Method ForecastMethod `json:"method,omitempty"`
	Reason string         `json:"reason"`
	Err    error          `json:"-"`
}

// RunSummary counts items by the path that handled them
type RunSummary struct {
	TotalItems        int `json:"total_items"`
	HeuristicItems    int `json:"heuristic_items"`
	StatisticalItems  int `json:"statistical_items"`
	HorizonMisses     int `json:"horizon_misses"`
	FailedItems       int `json:"failed_items"`
	ForecastedPeriods int `json:"forecasted_periods"`
}

// PeriodComparison lines up the two independently derived totals for a month
type PeriodComparison struct {
	Period      Period   `json:"period"`
	ItemTotal   int64    `json:"item_total"`
	CapForecast *float64 `json:"cap_forecast,omitempty"`
	Divergence  *float64 `json:"divergence,omitempty"`
}
