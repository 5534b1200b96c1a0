// Package metrics exposes Prometheus instruments for research runs.
// A nil *Recorder is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// #region recorder

// Recorder owns a private registry so tests and multiple engines in one
// process never collide on the global default.
type Recorder struct {
	registry *prometheus.Registry

	runs        *prometheus.CounterVec
	outcomes    *prometheus.CounterVec
	attempts    prometheus.Counter
	inFlight    prometheus.Gauge
	runDuration prometheus.Histogram
}

// New creates a Recorder with all instruments registered.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	r := &Recorder{
		registry: reg,
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "research_runs_total",
			Help: "Research runs by terminal status.",
		}, []string{"status"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "research_retrieval_outcomes_total",
			Help: "Per-sub-query retrieval outcomes by result kind.",
		}, []string{"result"}),
		attempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "research_retrieval_attempts_total",
			Help: "Evidence source calls, including retries.",
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "research_retrievals_in_flight",
			Help: "Evidence source calls currently executing.",
		}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "research_run_duration_seconds",
			Help:    "Wall time of research runs.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
	}
	reg.MustRegister(r.runs, r.outcomes, r.attempts, r.inFlight, r.runDuration)
	return r
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// #endregion recorder

// #region observations

// RunFinished records a terminal run.
func (r *Recorder) RunFinished(status string, d time.Duration) {
	if r == nil {
		return
	}
	r.runs.WithLabelValues(status).Inc()
	r.runDuration.Observe(d.Seconds())
}

// Outcome records one sub-query outcome; result is "success" or an error kind.
func (r *Recorder) Outcome(result string) {
	if r == nil {
		return
	}
	r.outcomes.WithLabelValues(result).Inc()
}

// AttemptStarted counts a source call and marks it in flight.
// The returned func marks it finished.
func (r *Recorder) AttemptStarted() func() {
	if r == nil {
		return func() {}
	}
	r.attempts.Inc()
	r.inFlight.Inc()
	return r.inFlight.Dec
}

// #endregion observations
