package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Result label values
const (
	ResultOK      = "ok"
	ResultEmpty   = "empty"
	ResultFailed  = "failed"
	ResultInvalid = "invalid"
)

// Metrics bundles purchase entry metrics.
type Metrics struct {
	ImportsTotal      *prometheus.CounterVec
	ImportLatency     *prometheus.HistogramVec
	AllocationsTotal  prometheus.Counter
	EntriesSavedTotal *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New constructs metrics and registers them on reg. A nil reg gets a fresh
// registry, so several instances can live in one process.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		ImportsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nfe_entry_imports_total",
				Help: "Total invoice imports by result",
			},
			[]string{"result"},
		),
		ImportLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nfe_entry_import_latency_seconds",
				Help:    "Invoice import latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		),
		AllocationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nfe_entry_allocations_total",
			Help: "Total allocation recomputations",
		}),
		EntriesSavedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nfe_entry_entries_saved_total",
				Help: "Total purchase entry submissions by result",
			},
			[]string{"result"},
		),
		gatherer: reg,
	}
	reg.MustRegister(
		m.ImportsTotal,
		m.ImportLatency,
		m.AllocationsTotal,
		m.EntriesSavedTotal,
	)
	return m
}

// ObserveImport records one import attempt
func (m *Metrics) ObserveImport(result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ImportsTotal.WithLabelValues(result).Inc()
	m.ImportLatency.WithLabelValues(result).Observe(elapsed.Seconds())
}

// ObserveAllocation records one allocation pass
func (m *Metrics) ObserveAllocation() {
	if m == nil {
		return
	}
	m.AllocationsTotal.Inc()
}

// ObserveSave records one submission
func (m *Metrics) ObserveSave(result string) {
	if m == nil {
		return
	}
	m.EntriesSavedTotal.WithLabelValues(result).Inc()
}

// Handler exposes the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
