package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedisErrorRate counts Redis errors by operation type.
	RedisErrorRate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "askallery_redis_error_rate_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})

	// LedgerOperations counts social graph mutations by operation and result.
	LedgerOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "askallery_ledger_operations_total",
		Help: "Social graph ledger operations by operation and result",
	}, []string{"op", "result"})

	// LedgerDuration records how long each ledger transaction takes.
	LedgerDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "askallery_ledger_operation_duration_seconds",
		Help:    "Ledger transaction latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	// GateDecisions counts content gate verdicts.
	GateDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "askallery_gate_decisions_total",
		Help: "Content gate verdicts by result",
	}, []string{"result"})

	// GateOracleAttempts counts individual classification oracle calls.
	GateOracleAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "askallery_gate_oracle_attempts_total",
		Help: "Classification oracle calls by outcome",
	}, []string{"outcome"})

	// NotificationsPublished counts events pushed to Redis channels.
	NotificationsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "askallery_notifications_published_total",
		Help: "Notification events published by type",
	}, []string{"type"})

	// NotificationStreams is the gauge of open websocket notification streams.
	NotificationStreams = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "askallery_notification_streams",
		Help: "Open websocket notification streams",
	})
)
