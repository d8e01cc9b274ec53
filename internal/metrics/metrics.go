package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Gateway metrics
var (
	// GatewayActiveConnections tracks live WebSocket sessions
	GatewayActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gateway_active_connections",
			Help: "Number of live WebSocket sessions",
		},
	)

	// GatewayHandshakesTotal tracks accepted handshakes by principal kind
	GatewayHandshakesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_handshakes_total",
			Help: "Accepted WebSocket handshakes by principal kind (user/guest)",
		},
		[]string{"principal"},
	)

	// GatewayEvictionsTotal tracks heartbeat-timeout evictions by the wheel
	GatewayEvictionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gateway_evictions_total",
			Help: "Connections evicted by the timeout wheel",
		},
	)

	// GatewayProtocolErrorsTotal tracks connections closed for malformed messages
	GatewayProtocolErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gateway_protocol_errors_total",
			Help: "Connections closed due to malformed client messages",
		},
	)

	// GatewayRejectedConnectionsTotal tracks handshakes rejected by limits
	GatewayRejectedConnectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_rejected_connections_total",
			Help: "Handshakes rejected by connection limits, by reason",
		},
		[]string{"reason"},
	)
)

// Broadcast metrics
var (
	// BroadcastsTotal tracks broadcast calls by outcome
	BroadcastsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broadcasts_total",
			Help: "Broadcast calls by outcome (delivered/untagged/no_targets)",
		},
		[]string{"outcome"},
	)

	// BroadcastTargets tracks resolved target counts per broadcast
	BroadcastTargets = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "broadcast_targets",
			Help:    "Resolved target connections per broadcast",
			Buckets: []float64{0, 1, 5, 10, 50, 100, 500, 1000, 5000},
		},
	)

	// DeliveryDropsTotal tracks per-target delivery drops by reason
	DeliveryDropsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delivery_drops_total",
			Help: "Per-target delivery drops by reason (closed/slow)",
		},
		[]string{"reason"},
	)
)

// Ingestion metrics
var (
	// IngestMessagesTotal tracks consumed broker messages by outcome
	IngestMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_messages_total",
			Help: "Broker messages consumed, by outcome (broadcast/filtered/untagged/malformed)",
		},
		[]string{"outcome"},
	)

	// IngestEnrichmentFailuresTotal tracks non-fatal enrichment lookup failures
	IngestEnrichmentFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_enrichment_failures_total",
			Help: "Non-fatal enrichment lookup failures by lookup",
		},
		[]string{"lookup"},
	)

	// BrokerReconnectsTotal tracks broker channel re-establishments
	BrokerReconnectsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "broker_reconnects_total",
			Help: "Broker connection re-establishments",
		},
	)
)

// Redis metrics
var (
	// RedisOpsTotal tracks total Redis operations by operation type and status
	RedisOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redis_operations_total",
			Help: "Total Redis operations by operation and status",
		},
		[]string{"operation", "status"},
	)

	// RedisOpDuration tracks Redis operation latency in seconds
	RedisOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redis_operation_duration_seconds",
			Help:    "Redis operation duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)

	// RedisConnectionErrors tracks Redis connection errors
	RedisConnectionErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "redis_connection_errors_total",
			Help: "Total Redis connection errors",
		},
	)

	// CircuitBreakerStateChanges tracks circuit breaker state transitions
	CircuitBreakerStateChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_changes_total",
			Help: "Circuit breaker state transitions by component and new state",
		},
		[]string{"component", "state"},
	)

	// CircuitBreakerState tracks current circuit breaker state (0=closed, 1=half-open, 2=open)
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"component"},
	)
)
