// Package telemetry holds the Prometheus collectors exported on /metrics.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "analytics",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by route and status",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "analytics",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "route"},
	)

	// EventsIngested counts ingestion results by event type and outcome
	// (created, matched, duplicate, updated, unattributable, failed).
	EventsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "analytics",
			Subsystem: "ingest",
			Name:      "events_total",
			Help:      "Total number of ingested events by type and outcome",
		},
		[]string{"event_type", "outcome"},
	)

	// MetricUnits counts aggregation units by outcome (written, unchanged, failed).
	MetricUnits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "analytics",
			Subsystem: "aggregation",
			Name:      "units_total",
			Help:      "Total number of (channel, date) units recomputed by outcome",
		},
		[]string{"outcome"},
	)

	SweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "analytics",
			Subsystem: "aggregation",
			Name:      "sweep_duration_seconds",
			Help:      "Duration of recompute sweeps in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 300},
		},
	)

	QueueJobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "analytics",
			Subsystem: "queue",
			Name:      "jobs_total",
			Help:      "Total number of queue jobs processed by type and status",
		},
		[]string{"job_type", "status"},
	)

	DeadLettered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "analytics",
			Subsystem: "queue",
			Name:      "dead_lettered_total",
			Help:      "Total number of jobs moved to a dead letter queue",
		},
		[]string{"queue"},
	)
)
