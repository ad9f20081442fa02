package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Broadcast Metrics
var (
	// PublishesTotal tracks Publish calls by outcome (dispatched/throttled/empty)
	PublishesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broadcast_publishes_total",
			Help: "Total publish calls by outcome (dispatched/throttled/empty)",
		},
		[]string{"outcome"},
	)

	// DeliveriesTotal tracks per-recipient dispatch results
	DeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broadcast_deliveries_total",
			Help: "Per-recipient delivery attempts by result (sent/failed/filtered/skipped)",
		},
		[]string{"result"},
	)

	// GroupsCurrent tracks the number of live groups in the index
	GroupsCurrent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "broadcast_groups_current",
			Help: "Current number of groups with at least one member",
		},
	)

	// ConnectionsCurrent tracks registered connections across all channels
	ConnectionsCurrent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "broadcast_connections_current",
			Help: "Current number of registered connections across all channels",
		},
	)

	// RateLimitedCommandsTotal tracks client commands rejected by the error-rate tracker
	RateLimitedCommandsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "broadcast_rate_limited_commands_total",
			Help: "Total client commands rejected because the connection's error budget was exhausted",
		},
	)

	// ConnectionsThrottledCurrent tracks connections currently in the throttled state
	ConnectionsThrottledCurrent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "broadcast_connections_throttled_current",
			Help: "Connections currently throttled by the error-rate tracker",
		},
	)
)

// WebSocket Metrics
var (
	// WebSocketConnectionsTotal tracks connection attempts by result
	WebSocketConnectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_connections_total",
			Help: "Total WebSocket connection attempts by result (success/error/rejected)",
		},
		[]string{"result"},
	)

	// WebSocketConnectionsRejected tracks rejected connection attempts by reason
	WebSocketConnectionsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_connections_rejected_total",
			Help: "Total WebSocket connections rejected by reason (rate_limit/per_ip_limit/global_limit)",
		},
		[]string{"reason"},
	)

	// WebSocketMessageSendDuration tracks WebSocket message send duration
	WebSocketMessageSendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "websocket_message_send_duration_seconds",
			Help:    "WebSocket message send duration in seconds",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25},
		},
	)

	// WebSocketPingFailures tracks WebSocket ping failures
	WebSocketPingFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_ping_failures_total",
			Help: "Total WebSocket ping failures (client not responding)",
		},
	)

	// WebSocketIdleDisconnects tracks disconnects due to idle timeout
	WebSocketIdleDisconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_idle_disconnects_total",
			Help: "Total WebSocket connections closed due to idle timeout",
		},
	)
)

// Producer Metrics
var (
	// ProducerEventsTotal tracks simulated producer emissions by producer name
	ProducerEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "producer_events_total",
			Help: "Total events emitted by simulated producers",
		},
		[]string{"producer"},
	)
)
