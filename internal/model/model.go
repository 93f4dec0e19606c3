// Package model holds the statistical forecasting models used behind the
// forecaster. Each model is fitted on a history and then asked for a number
// of monthly periods following the last observation.
package model

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ErrInsufficientHistory is returned when a model needs more observations than it was given.
var ErrInsufficientHistory = errors.New("insufficient history")

// Observation is a single dated value of a series
type Observation struct {
	Time  time.Time
	Value float64
}

// Prediction is a forecast value for the month starting at Time
type Prediction struct {
	Time  time.Time
	Value float64
}

// Fitter trains a model on a history
type Fitter interface {
	// Name returns the model identifier
	Name() string

	// Fit trains the model and returns a handle able to forecast
	Fit(history []Observation) (Fitted, error)
}

// Fitted is a trained model
type Fitted interface {
	// Forecast predicts horizon monthly periods after the last observation
	Forecast(horizon int) ([]Prediction, error)
}

const (
	NameAdditive    = "additive"
	NameHoltWinters = "holt_winters"
	NameLogistic    = "logistic"
)

// New returns the per-item model registered under name. Holt-Winters is not
// offered here: its fixed quarterly season only suits the zero-filled
// monthly totals it projects in the aggregate comparison.
func New(name string) (Fitter, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", NameAdditive:
		return NewAdditive(), nil
	case NameLogistic:
		return NewLogistic(), nil
	default:
		return nil, fmt.Errorf("unknown model: %s", name)
	}
}

// sortedCopy returns history ordered by time without touching the caller's slice.
func sortedCopy(history []Observation) []Observation {
	out := make([]Observation, len(history))
	copy(out, history)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out
}

// monthlyGrid sums history into one value per calendar month from the first
// to the last observed month. Months without observations are zero. It also
// returns the time of the last observation.
func monthlyGrid(history []Observation) ([]float64, time.Time) {
	obs := sortedCopy(history)
	first, last := obs[0].Time, obs[len(obs)-1].Time
	data := make([]float64, monthIndex(first, last)+1)
	for _, o := range obs {
		data[monthIndex(first, o.Time)] += o.Value
	}
	return data, last
}

func monthIndex(from, t time.Time) int {
	return (t.Year()-from.Year())*12 + int(t.Month()) - int(from.Month())
}

// monthsAfter returns the first instant of each of the n months following last.
func monthsAfter(last time.Time, n int) []time.Time {
	start := time.Date(last.Year(), last.Month(), 1, 0, 0, 0, 0, time.UTC)
	out := make([]time.Time, n)
	for i := 0; i < n; i++ {
		out[i] = start.AddDate(0, i+1, 0)
	}
	return out
}

func checkHorizon(horizon int) error {
	if horizon < 1 {
		return fmt.Errorf("horizon must be at least 1, got %d", horizon)
	}
	return nil
}
