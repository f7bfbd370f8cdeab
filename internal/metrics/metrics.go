// Package metrics provides Prometheus instrumentation and process
// health collection.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes named counters and duration histograms backed by a
// private Prometheus registry. It satisfies the engine's telemetry
// sink.
type Metrics struct {
	registry  *prometheus.Registry
	counters  *prometheus.CounterVec
	durations *prometheus.HistogramVec
}

// New creates a Metrics with Go runtime and process collectors
// registered alongside the application series.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	counters := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "alertd",
		Name:      "events_total",
		Help:      "Count of named application events.",
	}, []string{"event"})
	durations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "alertd",
		Name:      "operation_duration_seconds",
		Help:      "Duration of named operations.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})
	registry.MustRegister(counters, durations)

	return &Metrics{
		registry:  registry,
		counters:  counters,
		durations: durations,
	}
}

// Increment bumps the named event counter.
func (m *Metrics) Increment(name string) {
	m.counters.WithLabelValues(name).Inc()
}

// Observe records one duration sample for the named operation.
func (m *Metrics) Observe(name string, d time.Duration) {
	m.durations.WithLabelValues(name).Observe(d.Seconds())
}

// Handler returns the scrape endpoint handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
