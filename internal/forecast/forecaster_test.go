package forecast

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/andresuchdata/autopo-forecast/internal/domain"
	"github.com/andresuchdata/autopo-forecast/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var today = day(2024, time.June, 15)

func sparse(item string, obs map[domain.Period]string) domain.ItemSeries {
	s := domain.ItemSeries{ItemID: item}
	for p, q := range obs {
		s.Records = append(s.Records, domain.SalesRecord{ItemID: item, Period: p, Quantity: decimal.RequireFromString(q)})
	}
	sort.Slice(s.Records, func(i, j int) bool { return s.Records[i].Period.Before(s.Records[j].Period) })
	return s
}

func TestHeuristic_HalfOfTrailingYear(t *testing.T) {
	h := NewHeuristic(today, DefaultHeuristicRatio, DefaultTrailingMonths)
	series := sparse("A", map[domain.Period]string{
		{Year: 2023, Month: time.September}: "40",
		{Year: 2024, Month: time.February}:  "60",
	})

	points, err := h.Forecast(context.Background(), series, 12)
	require.NoError(t, err)
	require.Len(t, points, 1)

	assert.Equal(t, domain.ForecastPoint{
		ItemID:            "A",
		Period:            domain.Period{Year: 2025, Month: time.February},
		PredictedQuantity: 50,
		Method:            domain.MethodHeuristic,
	}, points[0])
}

func TestHeuristic_FloorsAndIgnoresOldSales(t *testing.T) {
	h := NewHeuristic(today, DefaultHeuristicRatio, DefaultTrailingMonths)
	series := sparse("A", map[domain.Period]string{
		{Year: 2023, Month: time.June}:    "1000", // before 2023-06-15
		{Year: 2023, Month: time.July}:    "3.5",
		{Year: 2024, Month: time.January}: "4",
	})

	points, err := h.Forecast(context.Background(), series, 12)
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, int64(3), points[0].PredictedQuantity)
	assert.Equal(t, domain.Period{Year: 2025, Month: time.January}, points[0].Period)
}

func TestHeuristic_NoRecentSalesPredictsZero(t *testing.T) {
	h := NewHeuristic(today, DefaultHeuristicRatio, DefaultTrailingMonths)
	series := sparse("B", map[domain.Period]string{
		{Year: 2022, Month: time.January}: "10",
		{Year: 2022, Month: time.May}:     "12",
	})

	points, err := h.Forecast(context.Background(), series, 12)
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, domain.Period{Year: 2025, Month: time.June}, points[0].Period)
	assert.Zero(t, points[0].PredictedQuantity)

	empty, err := h.Forecast(context.Background(), domain.ItemSeries{ItemID: "C"}, 12)
	require.NoError(t, err)
	require.Len(t, empty, 1)
	assert.Zero(t, empty[0].PredictedQuantity)
}

func TestHeuristic_TargetOutsideHorizon(t *testing.T) {
	h := NewHeuristic(today, DefaultHeuristicRatio, DefaultTrailingMonths)
	series := sparse("A", map[domain.Period]string{
		{Year: 2024, Month: time.January}: "10",
		{Year: 2024, Month: time.August}:  "10",
	})

	points, err := h.Forecast(context.Background(), series, 12)
	require.NoError(t, err)
	assert.NotNil(t, points)
	assert.Empty(t, points)
}

func TestHeuristic_BoundaryIsInclusive(t *testing.T) {
	h := NewHeuristic(day(2024, time.June, 1), DefaultHeuristicRatio, DefaultTrailingMonths)
	series := sparse("A", map[domain.Period]string{
		{Year: 2024, Month: time.June}: "9",
	})

	points, err := h.Forecast(context.Background(), series, 12)
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, domain.Period{Year: 2025, Month: time.June}, points[0].Period)
	assert.Equal(t, int64(4), points[0].PredictedQuantity)
}

func TestHeuristic_LeapDayWindow(t *testing.T) {
	h := NewHeuristic(day(2024, time.February, 29), DefaultHeuristicRatio, DefaultTrailingMonths)
	series := sparse("A", map[domain.Period]string{
		{Year: 2023, Month: time.March}: "20",
	})

	points, err := h.Forecast(context.Background(), series, 12)
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, int64(10), points[0].PredictedQuantity)
	assert.Equal(t, domain.Period{Year: 2024, Month: time.March}, points[0].Period)
}

func TestStatistical_TwelveNonNegativePoints(t *testing.T) {
	values := make([]float64, 24)
	for i := range values {
		values[i] = 50 + 3*float64(i)
	}
	s := NewStatistical(model.NewAdditive())

	points, err := s.Forecast(context.Background(), seriesOf("C", jan(2022), values...), 12)
	require.NoError(t, err)
	require.Len(t, points, 12)

	for i, p := range points {
		assert.Equal(t, jan(2024).AddMonths(i), p.Period)
		assert.GreaterOrEqual(t, p.PredictedQuantity, int64(0))
		assert.Equal(t, domain.MethodStatistical, p.Method)
		assert.Equal(t, "C", p.ItemID)
	}
	assert.Greater(t, points[11].PredictedQuantity, points[0].PredictedQuantity)
}

func TestStatistical_ClampsDecliningSeries(t *testing.T) {
	values := make([]float64, 23)
	for i := range values {
		values[i] = 230 - 10*float64(i)
	}
	s := NewStatistical(model.NewAdditive())

	points, err := s.Forecast(context.Background(), seriesOf("D", jan(2022), values...), 12)
	require.NoError(t, err)
	for _, p := range points {
		assert.GreaterOrEqual(t, p.PredictedQuantity, int64(0))
	}
	assert.Zero(t, points[11].PredictedQuantity)
}

func TestStatistical_SparseSufficientHistories(t *testing.T) {
	annual := map[domain.Period]string{}
	for i, q := range []string{"10", "12", "11", "13", "12", "14", "13"} {
		annual[domain.Period{Year: 2018 + i, Month: time.March}] = q
	}
	everyOther := map[domain.Period]string{}
	for i := 0; i < 12; i++ {
		everyOther[jan(2022).AddMonths(2*i)] = []string{"10", "11"}[i%2]
	}
	irregular := map[domain.Period]string{
		{Year: 2022, Month: time.January}:  "5",
		{Year: 2022, Month: time.April}:    "8",
		{Year: 2022, Month: time.May}:      "3",
		{Year: 2022, Month: time.November}: "9",
		{Year: 2023, Month: time.February}: "6",
		{Year: 2023, Month: time.March}:    "7",
		{Year: 2023, Month: time.August}:   "4",
		{Year: 2023, Month: time.December}: "10",
		{Year: 2024, Month: time.June}:     "6",
	}

	tests := []struct {
		name   string
		fitter model.Fitter
		obs    map[domain.Period]string
		first  domain.Period
	}{
		{"annual seller", model.NewAdditive(), annual, domain.Period{Year: 2024, Month: time.April}},
		{"every other month", model.NewAdditive(), everyOther, domain.Period{Year: 2023, Month: time.December}},
		{"irregular gaps", model.NewAdditive(), irregular, domain.Period{Year: 2024, Month: time.July}},
		{"irregular gaps logistic", model.NewLogistic(), irregular, domain.Period{Year: 2024, Month: time.July}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			series := sparse("S", tt.obs)
			require.Equal(t, Sufficient, NewClassifier(DefaultMinDistinctDates).Classify(series))

			points, err := NewStatistical(tt.fitter).Forecast(context.Background(), series, 12)
			require.NoError(t, err)
			require.Len(t, points, 12)
			for i, p := range points {
				assert.Equal(t, tt.first.AddMonths(i), p.Period)
				assert.GreaterOrEqual(t, p.PredictedQuantity, int64(0))
				assert.Equal(t, domain.MethodStatistical, p.Method)
			}
		})
	}
}

func TestStatistical_AnnualSellerFollowsTrend(t *testing.T) {
	series := sparse("X", map[domain.Period]string{
		{Year: 2018, Month: time.March}: "10",
		{Year: 2019, Month: time.March}: "12",
		{Year: 2020, Month: time.March}: "11",
		{Year: 2021, Month: time.March}: "13",
		{Year: 2022, Month: time.March}: "12",
		{Year: 2023, Month: time.March}: "14",
		{Year: 2024, Month: time.March}: "13",
	})

	points, err := NewStatistical(model.NewAdditive()).Forecast(context.Background(), series, 12)
	require.NoError(t, err)
	require.Len(t, points, 12)
	for _, p := range points {
		assert.InDelta(t, 13, p.PredictedQuantity, 2)
	}
}

func TestStatistical_FitFailure(t *testing.T) {
	s := NewStatistical(model.NewAdditive())

	_, err := s.Forecast(context.Background(), seriesOf("E", jan(2023), 7, 7, 7, 7, 7), 12)
	require.Error(t, err)

	var fitErr *domain.ForecastFitError
	require.True(t, errors.As(err, &fitErr))
	assert.Equal(t, "E", fitErr.ItemID)
	assert.Equal(t, model.NameAdditive, fitErr.Model)
	assert.ErrorIs(t, err, domain.ErrDegenerateSeries)
}

func TestClampQuantity(t *testing.T) {
	assert.Equal(t, int64(0), clampQuantity(-4.2))
	assert.Equal(t, int64(0), clampQuantity(0.99))
	assert.Equal(t, int64(12), clampQuantity(12.7))
}
