package domain

import "strings"

// ForecastMethod names the path that produced an item's forecast
type ForecastMethod string

const (
	MethodHeuristic   ForecastMethod = "heuristic"
	MethodStatistical ForecastMethod = "statistical"
)

var forecastMethodLabels = map[ForecastMethod]string{
	MethodHeuristic:   "Heuristic (50% of trailing year)",
	MethodStatistical: "Statistical model",
}

// Label returns a human-readable label for the method.
func (m ForecastMethod) Label() string {
	if label, ok := forecastMethodLabels[m]; ok {
		return label
	}

	return "Unknown"
}

// ParseForecastMethod returns the method for a given name (case-insensitive).
func ParseForecastMethod(name string) (ForecastMethod, bool) {
	m := ForecastMethod(strings.ToLower(strings.TrimSpace(name)))
	_, ok := forecastMethodLabels[m]

	return m, ok
}

// RunStatus represents the state of a forecast run
type RunStatus string

const (
	RunPending    RunStatus = "pending"
	RunProcessing RunStatus = "processing"
	RunCompleted  RunStatus = "completed"
	RunFailed     RunStatus = "failed"
)
