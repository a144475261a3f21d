package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Item outcomes recorded by the processing loop.
const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
	OutcomeSkipped = "skipped"
)

var (
	// ItemsProcessed tracks per-item outcomes of the processing loop
	ItemsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trendplate_items_total",
			Help: "Total number of extracted items by outcome",
		},
		[]string{"outcome"},
	)

	// ErrorsTotal tracks classified pipeline errors
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trendplate_errors_total",
			Help: "Total number of classified pipeline errors",
		},
		[]string{"phase", "error_type"},
	)

	// RecoveryActions tracks executed recovery strategies
	RecoveryActions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trendplate_recovery_actions_total",
			Help: "Total number of recovery strategies executed",
		},
		[]string{"strategy", "handled"},
	)

	// JobsTotal tracks finished jobs per type and terminal status
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trendplate_jobs_total",
			Help: "Total number of finished ETL jobs",
		},
		[]string{"type", "status"},
	)

	// JobDuration tracks end-to-end job duration
	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trendplate_job_duration_seconds",
			Help:    "ETL job duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"type"},
	)
)
