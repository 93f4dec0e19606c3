package model

import (
	"math"
	"testing"
	"time"

	"github.com/andresuchdata/autopo-forecast/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func monthly(start time.Time, values ...float64) []Observation {
	out := make([]Observation, len(values))
	for i, v := range values {
		out[i] = Observation{Time: start.AddDate(0, i, 0), Value: v}
	}
	return out
}

var jan2022 = time.Date(2022, time.January, 1, 0, 0, 0, 0, time.UTC)

func TestAdditive_LinearTrend(t *testing.T) {
	values := make([]float64, 24)
	for i := range values {
		values[i] = 10 + 2*float64(i)
	}

	fit, err := NewAdditive().Fit(monthly(jan2022, values...))
	require.NoError(t, err)

	preds, err := fit.Forecast(12)
	require.NoError(t, err)
	require.Len(t, preds, 12)

	assert.Equal(t, time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC), preds[0].Time)
	assert.Equal(t, time.Date(2024, time.December, 1, 0, 0, 0, 0, time.UTC), preds[11].Time)
	assert.InDelta(t, 58, preds[0].Value, 2)
	assert.Greater(t, preds[11].Value, preds[0].Value)
}

func TestAdditive_YearlySeasonality(t *testing.T) {
	values := make([]float64, 36)
	for i := range values {
		values[i] = 100 + 20*math.Sin(2*math.Pi*float64(i)/12)
	}

	fit, err := NewAdditive().Fit(monthly(jan2022, values...))
	require.NoError(t, err)

	preds, err := fit.Forecast(12)
	require.NoError(t, err)
	for h, p := range preds {
		want := 100 + 20*math.Sin(2*math.Pi*float64(36+h)/12)
		assert.InDelta(t, want, p.Value, 5, "month %d", h)
	}
}

func TestAdditive_Errors(t *testing.T) {
	_, err := NewAdditive().Fit(monthly(jan2022, 5, 5, 5, 5, 5))
	assert.ErrorIs(t, err, domain.ErrDegenerateSeries)

	_, err = NewAdditive().Fit(monthly(jan2022, 1, 2))
	assert.ErrorIs(t, err, ErrInsufficientHistory)

	fit, err := NewAdditive().Fit(monthly(jan2022, 1, 2, 4, 3))
	require.NoError(t, err)
	_, err = fit.Forecast(0)
	assert.Error(t, err)
}

func TestAdditive_AnnualSellerUsesTrendOnly(t *testing.T) {
	values := []float64{10, 12, 11, 13, 12, 14, 13}
	history := make([]Observation, len(values))
	for i, v := range values {
		history[i] = Observation{Time: time.Date(2018+i, time.March, 1, 0, 0, 0, 0, time.UTC), Value: v}
	}

	fit, err := NewAdditive().Fit(history)
	require.NoError(t, err)
	assert.Zero(t, fit.(*additiveFit).order)

	preds, err := fit.Forecast(12)
	require.NoError(t, err)
	require.Len(t, preds, 12)
	assert.Equal(t, time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC), preds[0].Time)
	for _, p := range preds {
		assert.InDelta(t, 14, p.Value, 1.5)
	}
}

func TestAdditive_HarmonicsLimitedByCalendarMonths(t *testing.T) {
	// two selling months a year cannot identify a yearly harmonic
	var history []Observation
	for year := 2021; year <= 2023; year++ {
		history = append(history,
			Observation{Time: time.Date(year, time.May, 1, 0, 0, 0, 0, time.UTC), Value: 40 + float64(year-2021)},
			Observation{Time: time.Date(year, time.November, 1, 0, 0, 0, 0, time.UTC), Value: 15},
		)
	}

	fit, err := NewAdditive().Fit(history)
	require.NoError(t, err)
	assert.Zero(t, fit.(*additiveFit).order)

	preds, err := fit.Forecast(12)
	require.NoError(t, err)
	assert.Len(t, preds, 12)
}

func TestAdditive_DoesNotReorderInput(t *testing.T) {
	history := []Observation{
		{Time: jan2022.AddDate(0, 3, 0), Value: 4},
		{Time: jan2022, Value: 1},
		{Time: jan2022.AddDate(0, 1, 0), Value: 2},
		{Time: jan2022.AddDate(0, 2, 0), Value: 3},
	}
	_, err := NewAdditive().Fit(history)
	require.NoError(t, err)
	assert.Equal(t, 4.0, history[0].Value)
}

func TestLogistic_StaysUnderCap(t *testing.T) {
	history := monthly(jan2022, 10, 20, 35, 50, 65, 75, 82, 88, 91, 93, 94, 95)

	fit, err := NewLogistic().Fit(history)
	require.NoError(t, err)

	preds, err := fit.Forecast(12)
	require.NoError(t, err)
	require.Len(t, preds, 12)
	for _, p := range preds {
		assert.LessOrEqual(t, p.Value, 95.0)
		assert.Greater(t, p.Value, 0.0)
	}
	assert.GreaterOrEqual(t, preds[11].Value, preds[0].Value)
	assert.Equal(t, time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC), preds[0].Time)
}

func TestLogistic_ExplicitCap(t *testing.T) {
	fit, err := (&Logistic{Cap: 200}).Fit(monthly(jan2022, 10, 20, 40, 80))
	require.NoError(t, err)

	capped, ok := fit.(interface{ Cap() float64 })
	require.True(t, ok)
	assert.Equal(t, 200.0, capped.Cap())
}

func TestLogistic_Errors(t *testing.T) {
	_, err := NewLogistic().Fit(monthly(jan2022, 10))
	assert.ErrorIs(t, err, ErrInsufficientHistory)

	_, err = NewLogistic().Fit(monthly(jan2022, 0, 0, 0))
	assert.ErrorIs(t, err, domain.ErrDegenerateSeries)
}

func TestHoltWinters_RepeatsSeasonalPattern(t *testing.T) {
	history := monthly(jan2022, 10, 20, 30, 10, 20, 30, 10, 20, 30, 10, 20, 30)

	fit, err := NewHoltWinters().Fit(history)
	require.NoError(t, err)

	preds, err := fit.Forecast(6)
	require.NoError(t, err)
	want := []float64{10, 20, 30, 10, 20, 30}
	for i, p := range preds {
		assert.InDelta(t, want[i], p.Value, 1.0, "h=%d", i+1)
	}
}

func TestHoltWinters_ShortHistoryUsesSimpleSmoothing(t *testing.T) {
	fit, err := NewHoltWinters().Fit(monthly(jan2022, 12, 15, 11, 14, 13))
	require.NoError(t, err)

	preds, err := fit.Forecast(4)
	require.NoError(t, err)
	for _, p := range preds[1:] {
		assert.Equal(t, preds[0].Value, p.Value)
	}
}

func TestHoltWinters_GapsCountAsZeroSales(t *testing.T) {
	var gapped, filled []Observation
	for i := 0; i < 23; i++ {
		v := 0.0
		if i%2 == 0 {
			v = 10 + float64((i/2)%2)
			gapped = append(gapped, Observation{Time: jan2022.AddDate(0, i, 0), Value: v})
		}
		filled = append(filled, Observation{Time: jan2022.AddDate(0, i, 0), Value: v})
	}

	fromGapped, err := NewHoltWinters().Fit(gapped)
	require.NoError(t, err)
	fromFilled, err := NewHoltWinters().Fit(filled)
	require.NoError(t, err)

	a, err := fromGapped.Forecast(12)
	require.NoError(t, err)
	b, err := fromFilled.Forecast(12)
	require.NoError(t, err)
	assert.Equal(t, b, a)
	assert.Equal(t, time.Date(2023, time.December, 1, 0, 0, 0, 0, time.UTC), a[0].Time)
}

func TestHoltWinters_SingleMonth(t *testing.T) {
	_, err := NewHoltWinters().Fit([]Observation{{Time: jan2022, Value: 3}, {Time: jan2022.AddDate(0, 0, 9), Value: 4}})
	assert.ErrorIs(t, err, ErrInsufficientHistory)
}

func TestMonthlyGrid(t *testing.T) {
	data, last := monthlyGrid([]Observation{
		{Time: time.Date(2023, time.March, 1, 0, 0, 0, 0, time.UTC), Value: 4},
		{Time: time.Date(2022, time.November, 1, 0, 0, 0, 0, time.UTC), Value: 1},
		{Time: time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC), Value: 2},
		{Time: time.Date(2023, time.January, 20, 0, 0, 0, 0, time.UTC), Value: 3},
	})
	assert.Equal(t, []float64{1, 0, 5, 0, 4}, data)
	assert.Equal(t, time.Date(2023, time.March, 1, 0, 0, 0, 0, time.UTC), last)
}

func TestHoltWinters_ConstantIsDegenerate(t *testing.T) {
	_, err := NewHoltWinters().Fit(monthly(jan2022, 7, 7, 7, 7, 7, 7, 7, 7, 7))
	assert.ErrorIs(t, err, domain.ErrDegenerateSeries)
}

func TestNew(t *testing.T) {
	m, err := New("")
	require.NoError(t, err)
	assert.Equal(t, NameAdditive, m.Name())

	m, err = New(" Logistic ")
	require.NoError(t, err)
	assert.Equal(t, NameLogistic, m.Name())

	for _, name := range []string{"prophet", "holt_winters", "ets"} {
		_, err = New(name)
		assert.Error(t, err, name)
	}
}
