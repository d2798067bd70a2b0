// Package metrics defines the Prometheus collectors shared by the chat client
// and the demo server. All recording methods are safe on a nil *Metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mentionchat"

// Metrics bundles every collector the binaries export.
type Metrics struct {
	registry *prometheus.Registry

	connectionState    prometheus.Gauge
	reconnectAttempts  prometheus.Counter
	reconnectExhausted prometheus.Counter
	messagesReceived   prometheus.Counter
	messagesSent       prometheus.Counter
	malformedPayloads  prometheus.Counter

	sessions      prometheus.Gauge
	botReplies    prometheus.Counter
	rateLimited   prometheus.Counter
	echoRequests  *prometheus.CounterVec
	httpDurations *prometheus.HistogramVec
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		connectionState: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "connection_state",
			Help:      "Current connection state (0 disconnected, 1 connecting, 2 connected).",
		}),
		reconnectAttempts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "reconnect_attempts_total",
			Help:      "Reconnect attempts scheduled after a connection loss.",
		}),
		reconnectExhausted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "reconnect_exhausted_total",
			Help:      "Times the client gave up reconnecting.",
		}),
		messagesReceived: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "messages_received_total",
			Help:      "Inbound messages delivered to the display.",
		}),
		messagesSent: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "messages_sent_total",
			Help:      "Outbound messages written to the connection.",
		}),
		malformedPayloads: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "malformed_payloads_total",
			Help:      "Inbound frames dropped because they could not be decoded.",
		}),
		sessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "sessions",
			Help:      "Open WebSocket sessions on the bot endpoint.",
		}),
		botReplies: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "bot_replies_total",
			Help:      "Replies queued by the bot endpoint.",
		}),
		rateLimited: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "rate_limited_total",
			Help:      "Inbound frames discarded by the per-session rate limiter.",
		}),
		echoRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "echo_requests_total",
			Help:      "Requests handled by the JSON echo endpoint, by status code.",
		}, []string{"code"}),
		httpDurations: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) SetConnectionState(v int) {
	if m == nil {
		return
	}
	m.connectionState.Set(float64(v))
}

func (m *Metrics) RecordReconnectAttempt() {
	if m == nil {
		return
	}
	m.reconnectAttempts.Inc()
}

func (m *Metrics) RecordReconnectExhausted() {
	if m == nil {
		return
	}
	m.reconnectExhausted.Inc()
}

func (m *Metrics) RecordMessageReceived() {
	if m == nil {
		return
	}
	m.messagesReceived.Inc()
}

func (m *Metrics) RecordMessageSent() {
	if m == nil {
		return
	}
	m.messagesSent.Inc()
}

func (m *Metrics) RecordMalformedPayload() {
	if m == nil {
		return
	}
	m.malformedPayloads.Inc()
}

func (m *Metrics) SetSessions(n int) {
	if m == nil {
		return
	}
	m.sessions.Set(float64(n))
}

func (m *Metrics) RecordBotReply() {
	if m == nil {
		return
	}
	m.botReplies.Inc()
}

func (m *Metrics) RecordRateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}

func (m *Metrics) RecordEchoRequest(code string) {
	if m == nil {
		return
	}
	m.echoRequests.WithLabelValues(code).Inc()
}

func (m *Metrics) ObserveHTTPDuration(method string, seconds float64) {
	if m == nil {
		return
	}
	m.httpDurations.WithLabelValues(method).Observe(seconds)
}
