// Package metrics exposes Prometheus collectors for batch runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chocosync"

// Metrics holds the collectors updated by the workflows. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	messages    *prometheus.CounterVec
	runs        prometheus.Counter
	lastRun     prometheus.Gauge
	runDuration prometheus.Histogram
}

// New registers the collectors with reg and returns them.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		messages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "messages_total",
				Help:      "Notification messages handled, by workflow and outcome.",
			},
			[]string{"workflow", "outcome"},
		),
		runs: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Completed batch runs.",
			},
		),
		lastRun: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_run_timestamp_seconds",
				Help:      "Unix time at which the last batch run finished.",
			},
		),
		runDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of batch runs.",
				Buckets:   prometheus.DefBuckets,
			},
		),
	}

	reg.MustRegister(m.messages, m.runs, m.lastRun, m.runDuration)
	return m
}

// ObserveMessage counts one message with the given outcome.
func (m *Metrics) ObserveMessage(workflow, outcome string) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(workflow, outcome).Inc()
}

// ObserveRun records a finished batch run.
func (m *Metrics) ObserveRun(finished time.Time, took time.Duration) {
	if m == nil {
		return
	}
	m.runs.Inc()
	m.lastRun.Set(float64(finished.Unix()))
	m.runDuration.Observe(took.Seconds())
}

// Handler serves the collectors of g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
