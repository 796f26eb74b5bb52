package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Consumer metrics
	MessagesConsumedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agrosense_messages_consumed_total",
			Help: "Total number of queue messages settled, by outcome",
		},
		[]string{"outcome"}, // outcome: acked, rejected, requeued
	)

	MessageProcessingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "agrosense_message_processing_duration_seconds",
			Help:    "End-to-end processing time per queue message",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	QueueReconnectsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agrosense_queue_reconnects_total",
			Help: "Total number of queue reconnection attempts",
		},
	)

	// Rule engine metrics
	RuleTriggersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agrosense_rule_triggers_total",
			Help: "Total number of rule evaluations that produced a candidate",
		},
		[]string{"alert_type"},
	)

	ReadingsPersistedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agrosense_readings_persisted_total",
			Help: "Total number of sensor readings written to the store",
		},
	)

	// Dedup metrics
	AlertsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agrosense_alerts_created_total",
			Help: "Total number of alerts created",
		},
		[]string{"alert_type"},
	)

	AlertsSuppressedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agrosense_alerts_suppressed_total",
			Help: "Total number of candidates suppressed by an existing active alert",
		},
		[]string{"alert_type"},
	)

	// Store metrics
	StoreOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agrosense_store_op_duration_seconds",
			Help:    "Persistence call latency by operation",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"op"},
	)

	// Notification metrics
	NotifyPublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agrosense_notify_publish_total",
			Help: "Total number of alert events published to Kafka",
		},
		[]string{"status"}, // status: success, failed, dropped
	)

	NotifyPublishDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "agrosense_notify_publish_duration_seconds",
			Help:    "Time taken to publish alert events to Kafka",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	NotifyPublishRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agrosense_notify_publish_retries_total",
			Help: "Total number of alert event publish retries",
		},
	)

	// HTTP metrics (ops endpoints)
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agrosense_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agrosense_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "endpoint", "status"},
	)

	// Panic recovery
	PanicsRecovered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agrosense_panics_recovered_total",
			Help: "Total number of panics recovered",
		},
		[]string{"component"},
	)
)
