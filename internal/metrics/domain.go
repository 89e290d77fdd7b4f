package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CommitsTotal counts publish attempts by kind ("new", "back") and
	// outcome ("ok", "conflict", "in_progress", "upstream", "error").
	CommitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runnable_commits_total",
			Help: "Container commit attempts by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	CleanupRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runnable_cleanup_runs_total",
			Help: "Cleanup reconciliation runs by outcome",
		},
		[]string{"outcome"},
	)

	CleanupPrunedContainers = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "runnable_cleanup_pruned_containers_total",
			Help: "Containers deleted by cleanup reconciliation",
		},
	)

	ImageSyncsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runnable_image_syncs_total",
			Help: "Image sync attempts by outcome",
		},
		[]string{"outcome"},
	)

	DelistNotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runnable_delist_notifications_total",
			Help: "Delist notifications by outcome",
		},
		[]string{"outcome"},
	)

	HarbourmasterRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "harbourmaster_request_duration_seconds",
			Help:    "Build service request duration by operation and outcome",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "outcome"},
	)
)
