package flowsync

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// metricsNamespace prefixes every exported metric name.
const metricsNamespace = "flowsync"

// Outcome label values for documents.
const (
	outcomeResolved = "resolved"
	outcomeFailed   = "failed"
)

// Metrics records run counters on a private registry. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry  *prometheus.Registry
	documents *prometheus.CounterVec
	changes   *prometheus.CounterVec
	inventory *prometheus.GaugeVec
	phases    *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		documents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "documents_total",
			Help:      "Documents processed by the resolution pipeline, by class and outcome.",
		}, []string{"class", "outcome"}),
		changes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "changes_total",
			Help:      "Resources created, updated or archived on the instance.",
		}, []string{"class", "action"}),
		inventory: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "inventory_entries",
			Help:      "Inventory entries collected, by resource kind.",
		}, []string{"kind"}),
		phases: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "phase_duration_seconds",
			Help:      "Wall time of each run phase.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"phase"}),
	}
	m.registry.MustRegister(m.documents, m.changes, m.inventory, m.phases)
	return m
}

// Registry exposes the underlying registry, e.g. for an HTTP handler.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) document(class, outcome string) {
	if m == nil {
		return
	}
	m.documents.WithLabelValues(class, outcome).Inc()
}

func (m *Metrics) change(class, action string) {
	if m == nil {
		return
	}
	m.changes.WithLabelValues(class, action).Inc()
}

func (m *Metrics) inventorySize(counts map[string]int) {
	if m == nil {
		return
	}
	for kind, n := range counts {
		m.inventory.WithLabelValues(kind).Set(float64(n))
	}
}

// observePhase records the time elapsed since start.
func (m *Metrics) observePhase(phase string, start time.Time) {
	if m == nil {
		return
	}
	m.phases.WithLabelValues(phase).Observe(time.Since(start).Seconds())
}

// WriteTextfile writes the registry in the text exposition format, for the
// node exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
