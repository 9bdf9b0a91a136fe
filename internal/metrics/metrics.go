// Package metrics holds the Prometheus collectors exported at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Ingestion
var (
	EventsIngested = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ddos_events_ingested_total",
			Help: "Events accepted into the ingestion queue",
		},
	)

	// reason: malformed, private, blocked, queue_full, capacity, closed
	EventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ddos_events_dropped_total",
			Help: "Events dropped before reaching the traffic store",
		},
		[]string{"reason"},
	)

	EventsProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ddos_events_processed_total",
			Help: "Events applied to the traffic store",
		},
	)

	ProcessingPanics = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ddos_processing_panics_total",
			Help: "Events skipped after a recovered panic",
		},
	)

	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ddos_ingest_queue_depth",
			Help: "Events waiting in the ingestion queue",
		},
	)
)

// Traffic state
var (
	TrackedSources = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ddos_tracked_sources",
			Help: "Sources with a live traffic record",
		},
	)

	SourcesEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ddos_sources_evicted_total",
			Help: "Traffic records removed by maintenance",
		},
	)

	SweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ddos_maintenance_sweep_seconds",
			Help:    "Duration of maintenance sweeps",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		},
	)
)

// Alerts and side effects
var (
	AlertsRaised = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ddos_alerts_total",
			Help: "Alerts raised by attack type",
		},
		[]string{"attack_type"},
	)

	AlertsSuppressed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ddos_alerts_suppressed_total",
			Help: "Alerts withheld by the dedup window",
		},
	)

	// op: block, unblock; result: ok, error
	EnforcementActions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ddos_enforcement_actions_total",
			Help: "Enforcer calls by operation and result",
		},
		[]string{"op", "result"},
	)

	BlockedSources = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ddos_blocked_sources",
			Help: "Sources currently blocked",
		},
	)

	// result: ok, error, circuit_open
	Reports = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ddos_reports_total",
			Help: "Attack reports by delivery result",
		},
		[]string{"result"},
	)

	ReportLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ddos_report_duration_seconds",
			Help:    "Latency of attack report delivery",
			Buckets: prometheus.DefBuckets,
		},
	)

	DispatchDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ddos_dispatch_dropped_total",
			Help: "Enforcement or report jobs dropped because the worker queue was full",
		},
	)

	// sink: redis, websocket
	SinkErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ddos_alert_sink_errors_total",
			Help: "Failed alert sink deliveries",
		},
		[]string{"sink"},
	)
)

// Capture
var (
	PacketsCaptured = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ddos_packets_captured_total",
			Help: "Packets decoded from the capture source",
		},
	)

	PacketsUndecodable = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ddos_packets_undecodable_total",
			Help: "Captured packets without a usable network layer",
		},
	)
)
