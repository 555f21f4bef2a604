package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for the multiplayer relay.
//
// Naming convention: namespace_subsystem_name
// - namespace: multiplayer_relay (application-level grouping)
// - subsystem: websocket, room, handshake, bus (feature-level grouping)
// - name: specific metric (connections_active, events_total, etc.)
//
// Metric Types:
// - Gauge: Current state (connections, rooms, players)
// - Counter: Cumulative events (handshakes, teardowns, rejections)
// - Histogram: Latency distributions (tick processing time)

var (
	// ActiveConnections tracks the current number of active relay connections.
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "multiplayer_relay",
		Subsystem: "websocket",
		Name:      "connections_active",
		Help:      "Current number of active WebSocket connections",
	})

	// ActiveRooms tracks the current number of active rooms.
	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "multiplayer_relay",
		Subsystem: "room",
		Name:      "rooms_active",
		Help:      "Current number of active rooms",
	})

	// RoomPlayers tracks the number of players in each room, keyed by composite key.
	RoomPlayers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "multiplayer_relay",
		Subsystem: "room",
		Name:      "players_count",
		Help:      "Number of players currently registered in each room",
	}, []string{"composite_key"})

	// HandshakeOutcomes tracks handshake results (created/joined/rejected) by reason.
	HandshakeOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "multiplayer_relay",
		Subsystem: "handshake",
		Name:      "outcomes_total",
		Help:      "Total handshake outcomes by result",
	}, []string{"result"})

	// RouterTeardowns tracks per-connection teardown reasons.
	RouterTeardowns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "multiplayer_relay",
		Subsystem: "router",
		Name:      "teardowns_total",
		Help:      "Total relay router connection teardowns by reason",
	}, []string{"reason"})

	// BroadcastLagDisconnects tracks laggard disconnects caused by a full broadcast channel.
	BroadcastLagDisconnects = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "multiplayer_relay",
		Subsystem: "router",
		Name:      "broadcast_lag_disconnects_total",
		Help:      "Total connections disconnected for lagging on the broadcast channel",
	})

	// TickDuration tracks time spent processing a single host tick.
	TickDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "multiplayer_relay",
		Subsystem: "session",
		Name:      "host_tick_seconds",
		Help:      "Time spent processing a single host tick",
		Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25},
	}, []string{"step"})

	// RateLimitExceeded tracks requests rejected by the rate limiter.
	RateLimitExceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "multiplayer_relay",
		Subsystem: "rate_limit",
		Name:      "exceeded_total",
		Help:      "Total number of requests that exceeded the rate limit",
	}, []string{"endpoint"})

	// RateLimitRequests tracks requests checked against the rate limiter.
	RateLimitRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "multiplayer_relay",
		Subsystem: "rate_limit",
		Name:      "requests_total",
		Help:      "Total number of requests checked against the rate limiter",
	}, []string{"endpoint"})

	// BusOperationsTotal tracks cross-pod lobby bus publish/subscribe operations.
	BusOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "multiplayer_relay",
		Subsystem: "bus",
		Name:      "operations_total",
		Help:      "Total number of lobby event bus operations",
	}, []string{"operation", "status"})

	// BusOperationDuration tracks lobby bus operation latency.
	BusOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "multiplayer_relay",
		Subsystem: "bus",
		Name:      "operation_duration_seconds",
		Help:      "Duration of lobby event bus operations",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})

	// CircuitBreakerState tracks the bus circuit breaker's current state.
	// 0: Closed (Healthy), 1: Open (Failure), 2: Half-Open (Recovering)
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "multiplayer_relay",
		Subsystem: "circuit_breaker",
		Name:      "state",
		Help:      "Current state of the circuit breaker (0: Closed, 1: Open, 2: Half-Open)",
	}, []string{"service"})
)

func IncConnection() {
	ActiveConnections.Inc()
}

func DecConnection() {
	ActiveConnections.Dec()
}
