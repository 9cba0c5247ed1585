// Package metrics declares the process's Prometheus metrics.
//
// Naming convention: namespace_subsystem_name
//   - namespace: media_orchestrator (application-level grouping)
//   - subsystem: websocket, room, webrtc, worker, hls, circuit_breaker, rate_limit, redis, store
//   - name: specific metric (connections_active, events_total, etc.)
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveWebSocketConnections tracks the current number of active WebSocket connections.
	ActiveWebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "media_orchestrator",
		Subsystem: "websocket",
		Name:      "connections_active",
		Help:      "Current number of active WebSocket connections",
	})

	// ActiveRooms tracks the current number of live rooms.
	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "media_orchestrator",
		Subsystem: "room",
		Name:      "rooms_active",
		Help:      "Current number of live rooms",
	})

	// RoomParticipants tracks the number of participants in each room.
	RoomParticipants = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "media_orchestrator",
		Subsystem: "room",
		Name:      "participants_count",
		Help:      "Number of participants in each room",
	}, []string{"room_id"})

	// WebsocketEvents tracks the total number of signaling events processed.
	WebsocketEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "media_orchestrator",
		Subsystem: "websocket",
		Name:      "events_total",
		Help:      "Total signaling events processed",
	}, []string{"event_type", "status"})

	// MessageProcessingDuration tracks the time spent handling one signaling event.
	MessageProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "media_orchestrator",
		Subsystem: "websocket",
		Name:      "message_processing_seconds",
		Help:      "Time spent processing one signaling message",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"event_type"})

	// WebrtcConnectionAttempts tracks transport connect attempts by outcome.
	WebrtcConnectionAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "media_orchestrator",
		Subsystem: "webrtc",
		Name:      "connection_attempts_total",
		Help:      "Total WebRTC transport connect attempts",
	}, []string{"status"})

	// ActiveProducers tracks currently open producers, by kind.
	ActiveProducers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "media_orchestrator",
		Subsystem: "webrtc",
		Name:      "producers_active",
		Help:      "Current number of open producers",
	}, []string{"kind"})

	// ActiveConsumers tracks currently open consumers, by kind.
	ActiveConsumers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "media_orchestrator",
		Subsystem: "webrtc",
		Name:      "consumers_active",
		Help:      "Current number of open consumers",
	}, []string{"kind"})

	// ActiveWorkers tracks currently live media-router worker shards.
	ActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "media_orchestrator",
		Subsystem: "worker",
		Name:      "workers_active",
		Help:      "Current number of live media-router worker shards",
	})

	// WorkerRespawns counts supervisor-triggered worker replacements.
	WorkerRespawns = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "media_orchestrator",
		Subsystem: "worker",
		Name:      "respawns_total",
		Help:      "Total worker shards respawned by the supervisor after an unexpected death",
	})

	// ActiveRouters tracks live routers, one per live room.
	ActiveRouters = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "media_orchestrator",
		Subsystem: "worker",
		Name:      "routers_active",
		Help:      "Current number of live routers",
	})

	// HLSPipelineState tracks the HLS controller's state per room.
	// 0: OFF, 1: STARTING, 2: RUNNING, 3: RESTARTING, 4: STOPPING
	HLSPipelineState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "media_orchestrator",
		Subsystem: "hls",
		Name:      "pipeline_state",
		Help:      "Current HLS pipeline state per room (0=OFF,1=STARTING,2=RUNNING,3=RESTARTING,4=STOPPING)",
	}, []string{"room_id"})

	// HLSTranscoderSpawns counts transcoder process launches.
	HLSTranscoderSpawns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "media_orchestrator",
		Subsystem: "hls",
		Name:      "transcoder_spawns_total",
		Help:      "Total transcoder subprocess launches",
	}, []string{"status"})

	// HLSTranscoderCrashes counts unexpected transcoder exits observed in RUNNING.
	HLSTranscoderCrashes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "media_orchestrator",
		Subsystem: "hls",
		Name:      "transcoder_crashes_total",
		Help:      "Total unexpected transcoder exits observed while RUNNING",
	})

	// CircuitBreakerState tracks the current state of a circuit breaker.
	// 0: Closed (Healthy), 1: Open (Failure), 2: Half-Open (Recovering)
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "media_orchestrator",
		Subsystem: "circuit_breaker",
		Name:      "state",
		Help:      "Current state of the circuit breaker (0: Closed, 1: Open, 2: Half-Open)",
	}, []string{"service"})

	// CircuitBreakerFailures tracks the total number of requests rejected by the circuit breaker.
	CircuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "media_orchestrator",
		Subsystem: "circuit_breaker",
		Name:      "failures_total",
		Help:      "Total requests rejected by the circuit breaker",
	}, []string{"service"})

	// RateLimitExceeded tracks the total number of requests that exceeded the rate limit.
	RateLimitExceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "media_orchestrator",
		Subsystem: "rate_limit",
		Name:      "exceeded_total",
		Help:      "Total number of requests that exceeded the rate limit",
	}, []string{"endpoint", "reason"})

	// RateLimitRequests tracks the total number of requests checked against the rate limiter.
	RateLimitRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "media_orchestrator",
		Subsystem: "rate_limit",
		Name:      "requests_total",
		Help:      "Total number of requests checked against the rate limiter",
	}, []string{"endpoint"})

	// RedisOperationsTotal tracks the total number of Redis operations.
	RedisOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "media_orchestrator",
		Subsystem: "redis",
		Name:      "operations_total",
		Help:      "Total number of Redis operations",
	}, []string{"operation", "status"})

	// RedisOperationDuration tracks the duration of Redis operations.
	RedisOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "media_orchestrator",
		Subsystem: "redis",
		Name:      "operation_duration_seconds",
		Help:      "Duration of Redis operations",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})

	// StoreOperationsTotal tracks metadata store (Postgres) operations.
	StoreOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "media_orchestrator",
		Subsystem: "store",
		Name:      "operations_total",
		Help:      "Total number of metadata store operations",
	}, []string{"operation", "status"})
)

func IncConnection() {
	ActiveWebSocketConnections.Inc()
}

func DecConnection() {
	ActiveWebSocketConnections.Dec()
}
