package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics.
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "catweave",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "catweave",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
		},
		[]string{"method", "path"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "catweave",
			Subsystem: "http",
			Name:      "requests_in_flight",
			Help:      "Current number of in-flight HTTP requests",
		},
	)

	// Lifecycle metrics.
	transitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "catweave",
			Subsystem: "lifecycle",
			Name:      "transitions_total",
			Help:      "Total number of lifecycle transitions",
		},
		[]string{"operation", "kind", "status"},
	)

	ledgerEntriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "catweave",
			Subsystem: "ledger",
			Name:      "entries_total",
			Help:      "Total number of audit ledger entries appended",
		},
		[]string{"type", "action"},
	)

	// Reference validation metrics.
	referenceValidationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "catweave",
			Subsystem: "refcheck",
			Name:      "validations_total",
			Help:      "Total number of reference validations",
		},
		[]string{"kind", "status"},
	)

	// Storage metrics.
	storageOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "catweave",
			Subsystem: "storage",
			Name:      "operation_duration_seconds",
			Help:      "Storage operation duration in seconds",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		},
		[]string{"operation", "status"},
	)
)

// RecordHTTPRequest records a completed HTTP request.
func RecordHTTPRequest(method, path string, statusCode int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// IncHTTPInFlight increments the in-flight request gauge.
func IncHTTPInFlight() {
	httpRequestsInFlight.Inc()
}

// DecHTTPInFlight decrements the in-flight request gauge.
func DecHTTPInFlight() {
	httpRequestsInFlight.Dec()
}

// RecordTransition records a lifecycle transition attempt.
func RecordTransition(operation, kind, status string) {
	transitionsTotal.WithLabelValues(operation, kind, status).Inc()
}

// RecordLedgerEntry records an appended audit ledger entry.
func RecordLedgerEntry(entryType, action string) {
	ledgerEntriesTotal.WithLabelValues(entryType, action).Inc()
}

// RecordReferenceValidation records a reference validation outcome.
func RecordReferenceValidation(kind, status string) {
	referenceValidationsTotal.WithLabelValues(kind, status).Inc()
}

// RecordStorageOperation records a storage operation.
func RecordStorageOperation(operation, status string, duration time.Duration) {
	storageOperationDuration.WithLabelValues(operation, status).Observe(duration.Seconds())
}
