package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/acheong08/avtag/internal/aggregate"
)

// Metrics exposes run counters in Prometheus format
type Metrics struct {
	registry       *prometheus.Registry
	recordsRead    prometheus.Counter
	samplesTagged  prometheus.Counter
	recordsSkipped prometheus.Counter
	samplesFailed  prometheus.Counter
	runs           *prometheus.CounterVec
}

// NewMetrics creates the counters on a private registry
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		recordsRead: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "avtag_records_read_total",
			Help: "Non-blank input records read.",
		}),
		samplesTagged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "avtag_samples_tagged_total",
			Help: "Samples that received at least one ranked tag.",
		}),
		recordsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "avtag_records_skipped_total",
			Help: "Records without usable scan data or identity.",
		}),
		samplesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "avtag_samples_failed_total",
			Help: "Samples whose processing failed.",
		}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "avtag_runs_total",
			Help: "Labeling runs by outcome.",
		}, []string{"status"}),
	}
	m.registry.MustRegister(m.recordsRead, m.samplesTagged, m.recordsSkipped, m.samplesFailed, m.runs)
	return m
}

// Observe adds the counters of one finished run
func (m *Metrics) Observe(c aggregate.Counters) {
	m.recordsRead.Add(float64(c.Reads))
	m.samplesTagged.Add(float64(c.Tagged))
	m.recordsSkipped.Add(float64(c.NoScans))
	m.samplesFailed.Add(float64(c.Failed))
}

// RunFinished counts one run by outcome: "ok", "cancelled" or "error"
func (m *Metrics) RunFinished(status string) {
	m.runs.WithLabelValues(status).Inc()
}

// Handler serves the registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
