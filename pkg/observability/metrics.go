package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics must be global for registration
var (
	// RefreshTotal tracks refresh runs per namespace by outcome
	RefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lookupd_refresh_total",
			Help: "Total number of namespace refresh runs",
		},
		[]string{"namespace", "status"}, // status: applied, noop, error
	)

	// RefreshDuration measures refresh duration in seconds
	RefreshDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lookupd_refresh_duration_seconds",
			Help:    "Namespace refresh duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms to ~10s
		},
		[]string{"namespace"},
	)

	// NamespaceEntries tracks the size of each namespace's forward mapping
	NamespaceEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lookupd_namespace_entries",
			Help: "Number of keys in the namespace's forward mapping",
		},
		[]string{"namespace"},
	)

	// NamespacesRegistered tracks the number of currently scheduled namespaces
	NamespacesRegistered = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lookupd_namespaces_registered",
			Help: "Number of currently scheduled namespaces",
		},
	)

	// ErrorsTotal counts errors by component and type
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lookupd_errors_total",
			Help: "Total errors by component and type",
		},
		[]string{"component", "error_type"},
	)
)

// RecordRefresh records the outcome and duration of one refresh run
func RecordRefresh(namespace, status string, duration float64) {
	RefreshTotal.WithLabelValues(namespace, status).Inc()
	RefreshDuration.WithLabelValues(namespace).Observe(duration)
}

// RecordNamespaceEntries updates the entry-count gauge for a namespace
func RecordNamespaceEntries(namespace string, count float64) {
	NamespaceEntries.WithLabelValues(namespace).Set(count)
}

// RecordNamespaceRegistered marks a namespace as scheduled
func RecordNamespaceRegistered(namespace string) {
	NamespacesRegistered.Inc()
	NamespaceEntries.WithLabelValues(namespace).Set(0)
}

// RecordNamespaceUnregistered marks a namespace as deleted
func RecordNamespaceUnregistered(namespace string) {
	NamespacesRegistered.Dec()
	NamespaceEntries.DeleteLabelValues(namespace)
	RefreshDuration.DeleteLabelValues(namespace)
}

// RecordError increments the error counter
func RecordError(component, errorType string) {
	ErrorsTotal.WithLabelValues(component, errorType).Inc()
}
