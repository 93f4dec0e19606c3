package model

import (
	"fmt"
	"math"
	"time"

	"github.com/andresuchdata/autopo-forecast/internal/domain"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

const (
	daysPerYear = 365.25
	day         = 24 * time.Hour
)

// Additive is a regression model of the form
//
//	y(t) = a + b·t + Σ_k [c_k·sin(2πk·d/365.25) + s_k·cos(2πk·d/365.25)]
//
// where t is time scaled to [0, 1] over the history and d is days since epoch.
// Yearly seasonality is only added once the history spans MinSeasonalSpan.
type Additive struct {
	YearlyOrder     int
	MinSeasonalSpan time.Duration
	MinObservations int
}

// NewAdditive returns the default additive model.
func NewAdditive() *Additive {
	return &Additive{
		YearlyOrder:     3,
		MinSeasonalSpan: 2 * 365 * day,
		MinObservations: 3,
	}
}

// Name returns the model identifier
func (a *Additive) Name() string {
	return NameAdditive
}

// Fit solves the least-squares problem for the trend and seasonal coefficients.
func (a *Additive) Fit(history []Observation) (Fitted, error) {
	if len(history) < a.MinObservations {
		return nil, fmt.Errorf("%w: need %d observations, got %d", ErrInsufficientHistory, a.MinObservations, len(history))
	}

	obs := sortedCopy(history)
	ys := make([]float64, len(obs))
	for i, o := range obs {
		ys[i] = o.Value
	}
	if stat.Variance(ys, nil) == 0 {
		return nil, domain.ErrDegenerateSeries
	}

	start := obs[0].Time
	span := obs[len(obs)-1].Time.Sub(start)
	if span <= 0 {
		return nil, fmt.Errorf("%w: history covers a single instant", domain.ErrDegenerateSeries)
	}

	order := 0
	if span >= a.MinSeasonalSpan {
		order = a.YearlyOrder
	}
	// keep at least one residual degree of freedom, and never ask for more
	// harmonics than the distinct calendar months can identify
	months := distinctMonths(obs)
	for order > 0 && (2+2*order > len(obs)-1 || 2*order+1 > months) {
		order--
	}

	scale := math.Max(floats.Max(ys), math.Abs(floats.Min(ys)))
	for {
		f, err := solveAdditive(obs, start, span, order, scale)
		if err == nil {
			return f, nil
		}
		if order == 0 {
			return nil, err
		}
		// an ill-conditioned seasonal design falls back to fewer harmonics
		order--
	}
}

func solveAdditive(obs []Observation, start time.Time, span time.Duration, order int, scale float64) (*additiveFit, error) {
	f := &additiveFit{
		start: start,
		span:  span,
		order: order,
		last:  obs[len(obs)-1].Time,
		scale: scale,
	}

	cols := f.width()
	x := mat.NewDense(len(obs), cols, nil)
	y := mat.NewVecDense(len(obs), nil)
	for i, o := range obs {
		x.SetRow(i, f.features(o.Time))
		y.SetVec(i, o.Value/f.scale)
	}

	var beta mat.VecDense
	if err := beta.SolveVec(x, y); err != nil {
		return nil, fmt.Errorf("least squares: %w", err)
	}
	f.beta = make([]float64, cols)
	for i := range f.beta {
		f.beta[i] = beta.AtVec(i)
		if math.IsNaN(f.beta[i]) || math.IsInf(f.beta[i], 0) {
			return nil, fmt.Errorf("%w: non-finite coefficient", domain.ErrDegenerateSeries)
		}
	}

	return f, nil
}

// distinctMonths counts the calendar months (January..December) present in obs.
func distinctMonths(obs []Observation) int {
	var seen [13]bool
	n := 0
	for _, o := range obs {
		if m := o.Time.Month(); !seen[m] {
			seen[m] = true
			n++
		}
	}
	return n
}

type additiveFit struct {
	start time.Time
	span  time.Duration
	last  time.Time
	order int
	scale float64
	beta  []float64
}

func (f *additiveFit) width() int {
	return 2 + 2*f.order
}

func (f *additiveFit) features(t time.Time) []float64 {
	row := make([]float64, f.width())
	row[0] = 1
	row[1] = float64(t.Sub(f.start)) / float64(f.span)
	d := float64(t.Unix()) / 86400
	for k := 1; k <= f.order; k++ {
		arg := 2 * math.Pi * float64(k) * d / daysPerYear
		row[2*k] = math.Sin(arg)
		row[2*k+1] = math.Cos(arg)
	}
	return row
}

func (f *additiveFit) predict(t time.Time) float64 {
	return floats.Dot(f.features(t), f.beta) * f.scale
}

// Forecast predicts horizon monthly periods after the last observation
func (f *additiveFit) Forecast(horizon int) ([]Prediction, error) {
	if err := checkHorizon(horizon); err != nil {
		return nil, err
	}
	times := monthsAfter(f.last, horizon)
	out := make([]Prediction, len(times))
	for i, t := range times {
		out[i] = Prediction{Time: t, Value: f.predict(t)}
	}
	return out, nil
}
