package ws

import (
	"github.com/prometheus/client_golang/prometheus"
)

type relayMetrics struct {
	activeConnections   prometheus.Gauge
	connectionsTotal    prometheus.Counter
	messagesRelayed     prometheus.Counter
	signalsRelayed      *prometheus.CounterVec
	storeErrors         prometheus.Counter
	unauthorizedDeletes prometheus.Counter
	unreachableCalls    prometheus.Counter
	pushNudges          prometheus.Counter
}

func newRelayMetrics(reg prometheus.Registerer) *relayMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &relayMetrics{
		activeConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "zvonok_connections_active",
			Help: "Current number of live websocket connections.",
		}),
		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "zvonok_connections_total",
			Help: "Total number of connections handled since start.",
		}),
		messagesRelayed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "zvonok_messages_relayed_total",
			Help: "Chat messages persisted and relayed.",
		}),
		signalsRelayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "zvonok_signals_relayed_total",
			Help: "Call signaling events relayed, by event kind.",
		}, []string{"event"}),
		storeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "zvonok_store_errors_total",
			Help: "Persistence failures observed by the relay.",
		}),
		unauthorizedDeletes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "zvonok_unauthorized_deletes_total",
			Help: "Message deletions rejected because the requester is not the sender.",
		}),
		unreachableCalls: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "zvonok_calls_unreachable_total",
			Help: "callUser events addressed to a user with no live connection.",
		}),
		pushNudges: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "zvonok_push_nudges_total",
			Help: "Web push nudges attempted for offline receivers.",
		}),
	}

	reg.MustRegister(
		m.activeConnections,
		m.connectionsTotal,
		m.messagesRelayed,
		m.signalsRelayed,
		m.storeErrors,
		m.unauthorizedDeletes,
		m.unreachableCalls,
		m.pushNudges,
	)
	return m
}

func (m *relayMetrics) incConnection() {
	if m == nil {
		return
	}
	m.activeConnections.Inc()
	m.connectionsTotal.Inc()
}

func (m *relayMetrics) decConnection() {
	if m == nil {
		return
	}
	m.activeConnections.Dec()
}

func (m *relayMetrics) recordMessage() {
	if m == nil {
		return
	}
	m.messagesRelayed.Inc()
}

func (m *relayMetrics) recordSignal(event string) {
	if m == nil {
		return
	}
	m.signalsRelayed.WithLabelValues(event).Inc()
}

func (m *relayMetrics) recordStoreError() {
	if m == nil {
		return
	}
	m.storeErrors.Inc()
}

func (m *relayMetrics) recordUnauthorizedDelete() {
	if m == nil {
		return
	}
	m.unauthorizedDeletes.Inc()
}

func (m *relayMetrics) recordUnreachableCall() {
	if m == nil {
		return
	}
	m.unreachableCalls.Inc()
}

func (m *relayMetrics) recordPushNudge() {
	if m == nil {
		return
	}
	m.pushNudges.Inc()
}
