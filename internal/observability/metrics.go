package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequestsTotal  *prometheus.CounterVec
	httpLatencySeconds *prometheus.HistogramVec
	httpErrorsTotal    *prometheus.CounterVec

	chatActiveSessions   *prometheus.GaugeVec
	chatSessionsTotal    *prometheus.CounterVec
	chatCommandsTotal    *prometheus.CounterVec
	chatEventsPublished  *prometheus.CounterVec
	chatSlowConsumerDrop prometheus.Counter
	chatRelayReceived    *prometheus.CounterVec
	chatTypingSwept      prometheus.Counter
)

// RegisterMetrics initialises the Prometheus collectors used by the API and the realtime core.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "teamchat_http_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "teamchat_http_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		httpErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "teamchat_http_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		chatActiveSessions = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "teamchat_active_sessions",
			Help: "Websocket sessions currently in the ACTIVE state.",
		}, []string{"scope"})

		chatSessionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "teamchat_sessions_total",
			Help: "Websocket sessions by how their handshake ended.",
		}, []string{"scope", "outcome"})

		chatCommandsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "teamchat_commands_total",
			Help: "Inbound websocket commands by type and result.",
		}, []string{"command", "result"})

		chatEventsPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "teamchat_events_published_total",
			Help: "Outbound events published to broadcast groups.",
		}, []string{"type"})

		chatSlowConsumerDrop = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "teamchat_slow_consumer_drops_total",
			Help: "Sessions dropped because their outbound queue was full.",
		})

		chatRelayReceived = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "teamchat_relay_received_total",
			Help: "Events received from other nodes through the relay backbone.",
		}, []string{"relay"})

		chatTypingSwept = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "teamchat_typing_swept_total",
			Help: "Stale typing indicators removed by the sweeper.",
		})

		prometheus.MustRegister(
			httpRequestsTotal, httpLatencySeconds, httpErrorsTotal,
			chatActiveSessions, chatSessionsTotal, chatCommandsTotal, chatEventsPublished,
			chatSlowConsumerDrop, chatRelayReceived, chatTypingSwept,
		)
	})
}

// HTTPRequests exposes the counter for API requests.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the latency histogram for API requests.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// HTTPErrors exposes the counter for API error responses.
func HTTPErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return httpErrorsTotal
}

// ActiveSessions exposes the gauge of live websocket sessions.
func ActiveSessions() *prometheus.GaugeVec {
	RegisterMetrics()
	return chatActiveSessions
}

// SessionsTotal exposes the counter of websocket handshakes by outcome.
func SessionsTotal() *prometheus.CounterVec {
	RegisterMetrics()
	return chatSessionsTotal
}

// CommandsTotal exposes the counter of inbound commands.
func CommandsTotal() *prometheus.CounterVec {
	RegisterMetrics()
	return chatCommandsTotal
}

// EventsPublished exposes the counter of outbound events.
func EventsPublished() *prometheus.CounterVec {
	RegisterMetrics()
	return chatEventsPublished
}

// SlowConsumerDrops exposes the counter of sessions dropped for falling behind.
func SlowConsumerDrops() prometheus.Counter {
	RegisterMetrics()
	return chatSlowConsumerDrop
}

// RelayReceived exposes the counter of relayed events.
func RelayReceived() *prometheus.CounterVec {
	RegisterMetrics()
	return chatRelayReceived
}

// TypingSwept exposes the counter of swept typing indicators.
func TypingSwept() prometheus.Counter {
	RegisterMetrics()
	return chatTypingSwept
}
