// ABOUTME: Prometheus metrics for tool invocations and connection lifecycle.
// ABOUTME: Uses a private registry so the exposition surface carries only our series.

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the gateway's instrumentation. A nil *Metrics is valid and
// turns every record method into a no-op, so callers never branch on
// whether metrics are enabled.
type Metrics struct {
	registry *prometheus.Registry

	toolInvocations  *prometheus.CounterVec
	toolDuration     *prometheus.HistogramVec
	connectionsLive  prometheus.Gauge
	connectionEvents *prometheus.CounterVec
	messages         *prometheus.CounterVec
}

// New builds and registers the gateway metric set.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		toolInvocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ward",
			Subsystem: "tools",
			Name:      "invocations_total",
			Help:      "Tool invocations by tool name and outcome.",
		}, []string{"tool", "outcome"}),
		toolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ward",
			Subsystem: "tools",
			Name:      "invocation_duration_seconds",
			Help:      "Tool handler execution time.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tool"}),
		connectionsLive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ward",
			Subsystem: "connections",
			Name:      "live",
			Help:      "Current number of live duplex connections.",
		}),
		connectionEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ward",
			Subsystem: "connections",
			Name:      "events_total",
			Help:      "Connection lifecycle events by kind (accepted, rejected, evicted).",
		}, []string{"event"}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ward",
			Subsystem: "messages",
			Name:      "total",
			Help:      "Protocol messages by direction and kind.",
		}, []string{"direction", "kind"}),
	}

	m.registry.MustRegister(
		m.toolInvocations,
		m.toolDuration,
		m.connectionsLive,
		m.connectionEvents,
		m.messages,
	)
	return m
}

// Handler returns the exposition endpoint for this metric set.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ToolInvoked records one tool execution and its duration in seconds.
func (m *Metrics) ToolInvoked(tool string, success bool, seconds float64) {
	if m == nil {
		return
	}
	outcome := "success"
	if !success {
		outcome = "error"
	}
	m.toolInvocations.WithLabelValues(tool, outcome).Inc()
	m.toolDuration.WithLabelValues(tool).Observe(seconds)
}

// SetLiveConnections tracks the registry's live count.
func (m *Metrics) SetLiveConnections(n int) {
	if m == nil {
		return
	}
	m.connectionsLive.Set(float64(n))
}

// ConnectionEvent counts a lifecycle event: accepted, rejected, evicted.
func (m *Metrics) ConnectionEvent(event string) {
	if m == nil {
		return
	}
	m.connectionEvents.WithLabelValues(event).Inc()
}

// Message counts one protocol message. Direction is "in" or "out".
func (m *Metrics) Message(direction string, kind string) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(direction, kind).Inc()
}
