package sweep

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sweepRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "catweave",
			Subsystem: "sweeps",
			Name:      "runs_total",
			Help:      "Total number of sweep runs",
		},
		[]string{"sweep", "status"},
	)

	sweepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "catweave",
			Subsystem: "sweeps",
			Name:      "duration_seconds",
			Help:      "Sweep run duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1.0, 5.0, 10.0, 30.0, 60.0, 300.0},
		},
		[]string{"sweep"},
	)

	sweepFindingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "catweave",
			Subsystem: "sweeps",
			Name:      "findings_total",
			Help:      "Total number of drifted items found by sweeps",
		},
		[]string{"sweep"},
	)

	sweepItemFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "catweave",
			Subsystem: "sweeps",
			Name:      "item_failures_total",
			Help:      "Total number of items a sweep failed to process",
		},
		[]string{"sweep"},
	)

	pidsRegisteredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "catweave",
			Subsystem: "sweeps",
			Name:      "pids_registered_total",
			Help:      "Total number of persistent identifiers registered by the reconciler",
		},
	)
)

// RecordSweepRun records a completed sweep run.
func RecordSweepRun(sweep, status string, duration time.Duration) {
	sweepRunsTotal.WithLabelValues(sweep, status).Inc()
	sweepDuration.WithLabelValues(sweep).Observe(duration.Seconds())
}

// RecordFindings records drifted items found by a sweep.
func RecordFindings(sweep string, count int) {
	sweepFindingsTotal.WithLabelValues(sweep).Add(float64(count))
}

// RecordItemFailure records an item a sweep could not process.
func RecordItemFailure(sweep string) {
	sweepItemFailuresTotal.WithLabelValues(sweep).Inc()
}

// RecordPIDRegistered records a handle registered by the reconciler.
func RecordPIDRegistered() {
	pidsRegisteredTotal.Inc()
}
