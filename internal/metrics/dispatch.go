// Package metrics exposes Prometheus collectors for batch dispatch and the
// HTTP surface.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Batch results.
const (
	ResultCompleted     = "completed"
	ResultInvalid       = "invalid"
	ResultMisconfigured = "misconfigured"
	ResultFailed        = "failed"
)

var (
	// batchesTotal counts finished batches.
	// Labels:
	// - source: http | kafka
	// - result: completed | invalid | misconfigured | failed
	batchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dispatch",
			Subsystem: "batch",
			Name:      "total",
			Help:      "Finished dispatch batches by source and result.",
		},
		[]string{"source", "result"},
	)

	// outcomesTotal counts per-recipient outcomes.
	// Labels:
	// - status: sent | error
	outcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dispatch",
			Subsystem: "recipient",
			Name:      "outcomes_total",
			Help:      "Per-recipient dispatch outcomes by status.",
		},
		[]string{"status"},
	)

	// batchDurationSeconds observes the wall time of a whole fan-out.
	batchDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "dispatch",
		Subsystem: "batch",
		Name:      "duration_seconds",
		Help:      "Batch dispatch duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	})
)

// IncBatch increments the batch counter.
func IncBatch(source, result string) {
	if source == "" {
		source = "unknown"
	}
	if result == "" {
		result = "unknown"
	}
	batchesTotal.WithLabelValues(source, result).Inc()
}

// AddOutcomes records sent and failed recipient counts.
func AddOutcomes(sent, failed int) {
	if sent > 0 {
		outcomesTotal.WithLabelValues("sent").Add(float64(sent))
	}
	if failed > 0 {
		outcomesTotal.WithLabelValues("error").Add(float64(failed))
	}
}

// ObserveBatchDuration records a batch duration in seconds.
func ObserveBatchDuration(seconds float64) { batchDurationSeconds.Observe(seconds) }
