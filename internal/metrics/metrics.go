package metrics

import (
	"net/http"
	"time"

	"github.com/andresuchdata/autopo-forecast/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for forecast runs
type Metrics struct {
	RunsTotal     *prometheus.CounterVec
	ItemsTotal    *prometheus.CounterVec
	HorizonMisses prometheus.Counter
	RunDuration   prometheus.Histogram
	CacheHits     prometheus.Counter
	CapFitErrors  prometheus.Counter

	gatherer prometheus.Gatherer
}

// New creates the collectors and registers them with reg. A nil reg uses a
// private registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		RunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "forecast_runs_total",
				Help: "Forecast runs by final status",
			},
			[]string{"status"},
		),
		ItemsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "forecast_items_total",
				Help: "Items forecast by method and outcome",
			},
			[]string{"method", "outcome"},
		),
		HorizonMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "forecast_heuristic_horizon_misses_total",
			Help: "Heuristic items whose target month fell outside the horizon",
		}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "forecast_run_duration_seconds",
			Help:    "Wall time of forecast runs",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "forecast_report_cache_hits_total",
			Help: "Runs answered from the report cache",
		}),
		CapFitErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "forecast_cap_model_errors_total",
			Help: "Runs whose aggregate cap model failed to fit",
		}),
		gatherer: reg,
	}
}

// ObserveRun records the outcome of a finished run
func (m *Metrics) ObserveRun(status domain.RunStatus, summary domain.RunSummary, capFailed bool, elapsed time.Duration) {
	m.RunsTotal.WithLabelValues(string(status)).Inc()
	m.RunDuration.Observe(elapsed.Seconds())
	if status != domain.RunCompleted {
		return
	}

	m.ItemsTotal.WithLabelValues(string(domain.MethodHeuristic), "ok").Add(float64(summary.HeuristicItems))
	m.ItemsTotal.WithLabelValues(string(domain.MethodStatistical), "ok").Add(float64(summary.StatisticalItems))
	m.ItemsTotal.WithLabelValues("any", "failed").Add(float64(summary.FailedItems))
	m.HorizonMisses.Add(float64(summary.HorizonMisses))
	if capFailed {
		m.CapFitErrors.Inc()
	}
}

// Handler serves the registered collectors
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
