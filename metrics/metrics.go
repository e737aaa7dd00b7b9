// Package metrics holds the service's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics groups the collectors the HTTP layer records into.
type Metrics struct {
	Registry *prometheus.Registry

	// AuthFailures counts rejected credentials by failure kind. The kind
	// is never shown to the client.
	AuthFailures *prometheus.CounterVec

	// NoteOps counts note operations by operation and result.
	NoteOps *prometheus.CounterVec

	// RequestDuration observes request latency by route and status.
	RequestDuration *prometheus.HistogramVec
}

// New registers the collectors on a fresh registry, alongside the Go and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		AuthFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lumi",
			Name:      "auth_failures_total",
			Help:      "Rejected credentials by failure kind.",
		}, []string{"kind"}),
		NoteOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lumi",
			Name:      "note_operations_total",
			Help:      "Note operations by operation and result.",
		}, []string{"op", "result"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "lumi",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.AuthFailures,
		m.NoteOps,
		m.RequestDuration,
	)
	return m
}

// NoteOp records one note operation.
func (m *Metrics) NoteOp(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.NoteOps.WithLabelValues(op, result).Inc()
}
