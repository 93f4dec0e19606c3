package forecast

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/andresuchdata/autopo-forecast/internal/domain"
	"github.com/shopspring/decimal"
)

func jan(year int) domain.Period {
	return domain.Period{Year: year, Month: time.January}
}

func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}

func repeat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// seriesOf builds a consecutive monthly series starting at start.
func seriesOf(item string, start domain.Period, values ...float64) domain.ItemSeries {
	s := domain.ItemSeries{ItemID: item}
	for i, v := range values {
		s.Records = append(s.Records, domain.SalesRecord{
			ItemID:   item,
			Period:   start.AddMonths(i),
			Quantity: decimal.NewFromFloat(v),
		})
	}
	return s
}

// monthHeaders returns n consecutive month headers starting at start.
func monthHeaders(start domain.Period, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = start.AddMonths(i).Header()
	}
	return out
}

func cells(values ...float64) []string {
	out := make([]string, len(values))
	for i, v := range values {
		if v == 0 {
			continue
		}
		out[i] = fmt.Sprintf("%g", v)
	}
	return out
}

type countingForecaster struct {
	method domain.ForecastMethod
	calls  atomic.Int64
}

func (c *countingForecaster) Method() domain.ForecastMethod { return c.method }

func (c *countingForecaster) Forecast(_ context.Context, s domain.ItemSeries, _ int) ([]domain.ForecastPoint, error) {
	c.calls.Add(1)
	return []domain.ForecastPoint{{ItemID: s.ItemID, Period: jan(2030), PredictedQuantity: 1, Method: c.method}}, nil
}
