// Package metrics exposes pipeline counters on a private Prometheus registry.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the lectern collectors.
type Metrics struct {
	registry *prometheus.Registry

	steps       *prometheus.CounterVec
	calls       *prometheus.HistogramVec
	inflight    prometheus.Gauge
	tokens      prometheus.Counter
	queueItems  *prometheus.CounterVec
	biasFlags   *prometheus.CounterVec
	videoStatus *prometheus.CounterVec
}

// New creates the collectors and registers them with a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lectern",
			Name:      "steps_total",
			Help:      "Pipeline step attempts by step and outcome.",
		}, []string{"step", "status"}),
		calls: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "lectern",
			Name:      "capability_call_seconds",
			Help:      "Duration of external capability calls.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"capability", "outcome"}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "lectern",
			Name:      "capability_calls_inflight",
			Help:      "External calls currently running.",
		}),
		tokens: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lectern",
			Name:      "tokens_used_total",
			Help:      "Tokens reported by the analysis capability.",
		}),
		queueItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lectern",
			Name:      "queue_items_total",
			Help:      "Optimization queue items reaching a status, by action and tier.",
		}, []string{"action", "tier", "status"}),
		biasFlags: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lectern",
			Name:      "bias_flags_total",
			Help:      "Bias flags written, by type and severity.",
		}, []string{"bias_type", "severity"}),
		videoStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lectern",
			Name:      "video_transitions_total",
			Help:      "Ingestion status transitions, by target status.",
		}, []string{"status"}),
	}
	m.registry.MustRegister(
		m.steps, m.calls, m.inflight, m.tokens, m.queueItems, m.biasFlags, m.videoStatus,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Step counts one processing log row.
func (m *Metrics) Step(step, status string) {
	if m == nil {
		return
	}
	m.steps.WithLabelValues(step, status).Inc()
}

// CallStarted marks an external call as running and returns a func that
// records its duration and outcome when called.
func (m *Metrics) CallStarted(capability string) func(err error) {
	if m == nil {
		return func(error) {}
	}
	start := time.Now()
	m.inflight.Inc()
	return func(err error) {
		m.inflight.Dec()
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		m.calls.WithLabelValues(capability, outcome).Observe(time.Since(start).Seconds())
	}
}

// Tokens adds n to the token counter.
func (m *Metrics) Tokens(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.tokens.Add(float64(n))
}

// QueueItem counts a queue item reaching status.
func (m *Metrics) QueueItem(action, tier, status string) {
	if m == nil {
		return
	}
	m.queueItems.WithLabelValues(action, tier, status).Inc()
}

// BiasFlag counts a written bias flag.
func (m *Metrics) BiasFlag(biasType, severity string) {
	if m == nil {
		return
	}
	m.biasFlags.WithLabelValues(biasType, severity).Inc()
}

// VideoTransition counts a video entering status.
func (m *Metrics) VideoTransition(status string) {
	if m == nil {
		return
	}
	m.videoStatus.WithLabelValues(status).Inc()
}
