package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsClaimed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opsflow_events_claimed_total",
			Help: "Total number of events claimed by workers",
		},
		[]string{"worker_id"},
	)

	EventsRedelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opsflow_events_redelivered_total",
			Help: "Claimed events that had been attempted before",
		},
		[]string{"worker_id"},
	)

	EventsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opsflow_events_processed_total",
			Help: "Total number of processed events by outcome",
		},
		[]string{"object_type", "type", "outcome"},
	)

	DeadLetters = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opsflow_dead_letters_total",
			Help: "Events dead-lettered after exhausting retry attempts",
		},
		[]string{"object_type", "type"},
	)

	ProcessingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "opsflow_processing_duration_seconds",
			Help:    "Event handler execution duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		},
		[]string{"object_type", "type"},
	)

	OutstandingDocuments = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "opsflow_outstanding_documents",
			Help: "Required document obligations currently outstanding per workflow",
		},
		[]string{"tenant_id", "workflow_id"},
	)

	ClaimErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opsflow_claim_errors_total",
			Help: "Transient storage errors during claim calls",
		},
		[]string{"worker_id"},
	)
)
