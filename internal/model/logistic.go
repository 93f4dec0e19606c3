package model

import (
	"fmt"
	"math"
	"time"

	"github.com/andresuchdata/autopo-forecast/internal/domain"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Logistic is a capped-growth trend model
//
//	y(t) = cap / (1 + exp(-(k·t + m)))
//
// fitted by linear regression on logit(y/cap). It carries no seasonality.
type Logistic struct {
	// Cap is the saturation bound. Zero means the maximum of the history.
	Cap float64
	// Epsilon keeps y/cap away from 0 and 1 before taking the logit.
	Epsilon float64
}

// NewLogistic returns a logistic model whose cap is the historical maximum.
func NewLogistic() *Logistic {
	return &Logistic{Epsilon: 1e-3}
}

// Name returns the model identifier
func (l *Logistic) Name() string {
	return NameLogistic
}

// Fit regresses the logit of the capped history on scaled time.
func (l *Logistic) Fit(history []Observation) (Fitted, error) {
	if len(history) < 2 {
		return nil, fmt.Errorf("%w: need 2 observations, got %d", ErrInsufficientHistory, len(history))
	}
	obs := sortedCopy(history)

	ys := make([]float64, len(obs))
	for i, o := range obs {
		ys[i] = o.Value
	}
	capacity := l.Cap
	if capacity <= 0 {
		capacity = floats.Max(ys)
	}
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: cap must be positive, got %v", domain.ErrDegenerateSeries, capacity)
	}

	start := obs[0].Time
	span := obs[len(obs)-1].Time.Sub(start)
	if span <= 0 {
		return nil, fmt.Errorf("%w: history covers a single instant", domain.ErrDegenerateSeries)
	}

	eps := l.Epsilon
	if eps <= 0 || eps >= 0.5 {
		eps = 1e-3
	}

	ts := make([]float64, len(obs))
	zs := make([]float64, len(obs))
	for i, o := range obs {
		ts[i] = float64(o.Time.Sub(start)) / float64(span)
		r := math.Min(math.Max(o.Value/capacity, eps), 1-eps)
		zs[i] = math.Log(r / (1 - r))
	}

	intercept, slope := stat.LinearRegression(ts, zs, nil, false)
	if math.IsNaN(intercept) || math.IsNaN(slope) {
		return nil, fmt.Errorf("%w: logistic regression did not converge", domain.ErrDegenerateSeries)
	}

	return &logisticFit{
		cap:       capacity,
		start:     start,
		span:      span,
		last:      obs[len(obs)-1].Time,
		intercept: intercept,
		slope:     slope,
	}, nil
}

type logisticFit struct {
	cap       float64
	start     time.Time
	span      time.Duration
	last      time.Time
	intercept float64
	slope     float64
}

// Cap returns the saturation bound used by the fit
func (f *logisticFit) Cap() float64 {
	return f.cap
}

// Forecast predicts horizon monthly periods after the last observation
func (f *logisticFit) Forecast(horizon int) ([]Prediction, error) {
	if err := checkHorizon(horizon); err != nil {
		return nil, err
	}
	times := monthsAfter(f.last, horizon)
	out := make([]Prediction, len(times))
	for i, t := range times {
		x := float64(t.Sub(f.start)) / float64(f.span)
		out[i] = Prediction{Time: t, Value: f.cap / (1 + math.Exp(-(f.intercept + f.slope*x)))}
	}
	return out, nil
}
