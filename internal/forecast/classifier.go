package forecast

import "github.com/andresuchdata/autopo-forecast/internal/domain"

// DefaultMinDistinctDates is the largest distinct-date count still routed to the heuristic.
const DefaultMinDistinctDates = 3

// Sufficiency tags whether a series carries enough signal for a statistical model.
type Sufficiency int

const (
	Insufficient Sufficiency = iota
	Sufficient
)

func (s Sufficiency) String() string {
	if s == Sufficient {
		return "sufficient"
	}
	return "insufficient"
}

// Method returns the forecasting path used for this classification
func (s Sufficiency) Method() domain.ForecastMethod {
	if s == Sufficient {
		return domain.MethodStatistical
	}
	return domain.MethodHeuristic
}

// Classifier routes series by their number of distinct observation dates.
type Classifier struct {
	threshold int
}

// NewClassifier returns a classifier treating series with at most threshold
// distinct dates as insufficient. Zero or negative thresholds use the default.
func NewClassifier(threshold int) Classifier {
	if threshold <= 0 {
		threshold = DefaultMinDistinctDates
	}
	return Classifier{threshold: threshold}
}

// Threshold returns the configured distinct-date threshold
func (c Classifier) Threshold() int {
	return c.threshold
}

// Classify tags the series
func (c Classifier) Classify(series domain.ItemSeries) Sufficiency {
	if DistinctDates(series) <= c.threshold {
		return Insufficient
	}
	return Sufficient
}

// DistinctDates counts the distinct observation dates of the series
func DistinctDates(series domain.ItemSeries) int {
	seen := make(map[domain.Period]struct{}, len(series.Records))
	for _, r := range series.Records {
		seen[r.Period] = struct{}{}
	}
	return len(seen)
}
