package model

import (
	"fmt"
	"math"
	"time"

	"github.com/andresuchdata/autopo-forecast/internal/domain"
	"gonum.org/v1/gonum/stat"
)

// HoltWinters implements additive triple exponential smoothing:
//
//	Level:    L_t = α(Y_t - S_{t-m}) + (1-α)(L_{t-1} + T_{t-1})
//	Trend:    T_t = β(L_t - L_{t-1}) + (1-β)T_{t-1}
//	Seasonal: S_t = γ(Y_t - L_t) + (1-γ)S_{t-m}
//	Forecast: F_{t+h} = L_t + h·T_t + S_{t-m+h}
//
// The history is laid out on a contiguous monthly grid with missing months
// counted as zero sales. Histories shorter than MinSeasonalPoints fall back
// to simple exponential smoothing.
type HoltWinters struct {
	SeasonalPeriod    int
	MinSeasonalPoints int
}

// NewHoltWinters returns the quarterly-seasonal configuration.
func NewHoltWinters() *HoltWinters {
	return &HoltWinters{
		SeasonalPeriod:    3,
		MinSeasonalPoints: 8,
	}
}

// Name returns the model identifier
func (hw *HoltWinters) Name() string {
	return NameHoltWinters
}

// Fit chooses between the seasonal model and simple smoothing and fits it
// with a grid search over the smoothing parameters.
func (hw *HoltWinters) Fit(history []Observation) (Fitted, error) {
	if len(history) < 2 {
		return nil, fmt.Errorf("%w: need 2 observations, got %d", ErrInsufficientHistory, len(history))
	}
	data, last := monthlyGrid(history)
	if len(data) < 2 {
		return nil, fmt.Errorf("%w: history covers a single month", ErrInsufficientHistory)
	}
	if stat.Variance(data, nil) == 0 {
		return nil, domain.ErrDegenerateSeries
	}

	m := hw.SeasonalPeriod
	if m < 2 || len(data) < hw.MinSeasonalPoints || len(data) < 2*m {
		return fitSES(data, last), nil
	}

	best := math.MaxFloat64
	var fit *hwFit
	for alpha := 0.1; alpha <= 0.9; alpha += 0.1 {
		for beta := 0.01; beta <= 0.5; beta += 0.05 {
			for gamma := 0.01; gamma <= 0.5; gamma += 0.05 {
				cand := &hwFit{alpha: alpha, beta: beta, gamma: gamma, m: m, n: len(data), last: last}
				cand.initialize(data)
				sse := cand.run(data)
				if sse < best {
					best = sse
					fit = cand
				}
			}
		}
	}
	if fit == nil {
		return nil, fmt.Errorf("%w: no finite parameter set", domain.ErrDegenerateSeries)
	}
	return fit, nil
}

type hwFit struct {
	alpha, beta, gamma float64
	m, n               int
	level, trend       float64
	seasonals          []float64
	last               time.Time
}

// initialize sets level to the first season's mean, trend to the average
// change between the first two seasons, and seasonals as offsets from level.
func (f *hwFit) initialize(data []float64) {
	m := f.m
	var sum float64
	for i := 0; i < m; i++ {
		sum += data[i]
	}
	f.level = sum / float64(m)

	var trendSum float64
	for i := 0; i < m; i++ {
		trendSum += (data[m+i] - data[i]) / float64(m)
	}
	f.trend = trendSum / float64(m)

	f.seasonals = make([]float64, m)
	var seasonalSum float64
	for i := 0; i < m; i++ {
		f.seasonals[i] = data[i] - f.level
		seasonalSum += f.seasonals[i]
	}
	avg := seasonalSum / float64(m)
	for i := range f.seasonals {
		f.seasonals[i] -= avg
	}
}

// run smooths over data from the second season on, leaving the final state
// on f, and returns the one-step-ahead SSE.
func (f *hwFit) run(data []float64) float64 {
	var sse float64
	for t := f.m; t < len(data); t++ {
		idx := t % f.m
		forecast := f.level + f.trend + f.seasonals[idx]
		e := data[t] - forecast
		sse += e * e

		prevLevel := f.level
		f.level = f.alpha*(data[t]-f.seasonals[idx]) + (1-f.alpha)*(f.level+f.trend)
		f.trend = f.beta*(f.level-prevLevel) + (1-f.beta)*f.trend
		f.seasonals[idx] = f.gamma*(data[t]-f.level) + (1-f.gamma)*f.seasonals[idx]
	}
	return sse
}

// Forecast predicts horizon monthly periods after the last observation
func (f *hwFit) Forecast(horizon int) ([]Prediction, error) {
	if err := checkHorizon(horizon); err != nil {
		return nil, err
	}
	times := monthsAfter(f.last, horizon)
	out := make([]Prediction, len(times))
	for h := 1; h <= horizon; h++ {
		idx := (f.n + h - 1) % f.m
		out[h-1] = Prediction{
			Time:  times[h-1],
			Value: f.level + float64(h)*f.trend + f.seasonals[idx],
		}
	}
	return out, nil
}

type sesFit struct {
	alpha float64
	level float64
	last  time.Time
}

func fitSES(data []float64, last time.Time) *sesFit {
	best := &sesFit{alpha: 0.1, last: last}
	bestSSE := math.MaxFloat64
	for alpha := 0.1; alpha <= 0.9; alpha += 0.1 {
		level := data[0]
		var sse float64
		for _, y := range data[1:] {
			e := y - level
			sse += e * e
			level = alpha*y + (1-alpha)*level
		}
		if sse < bestSSE {
			bestSSE = sse
			best = &sesFit{alpha: alpha, level: level, last: last}
		}
	}
	return best
}

// Forecast repeats the final smoothed level for every period
func (f *sesFit) Forecast(horizon int) ([]Prediction, error) {
	if err := checkHorizon(horizon); err != nil {
		return nil, err
	}
	times := monthsAfter(f.last, horizon)
	out := make([]Prediction, len(times))
	for i, t := range times {
		out[i] = Prediction{Time: t, Value: f.level}
	}
	return out, nil
}
