// Package metrics provides Prometheus metrics for bulk operations.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "bulkops"

var (
	// Runs counts pipeline runs per operation and terminal outcome.
	Runs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Total bulk pipeline runs",
		},
		[]string{"operation", "outcome"}, // outcome: SUCCEEDED/PARTIAL/FAILED
	)

	// FailedSlugs counts objects rejected by the import engine per phase.
	FailedSlugs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failed_slugs_total",
			Help:      "Total objects rejected by the import engine",
		},
		[]string{"operation", "phase"}, // phase: update/complete/verify
	)

	// ImportDuration tracks import engine call latency.
	ImportDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "import_duration_seconds",
			Help:      "Import engine call latency in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"operation", "phase"},
	)

	// QueueDepth tracks tasks waiting for a worker.
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Background tasks waiting for a worker",
		},
	)

	// Tasks counts background task transitions into terminal states.
	Tasks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_total",
			Help:      "Total background tasks finished",
		},
		[]string{"name", "status"},
	)
)
