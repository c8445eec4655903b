// Package metrics exposes room server counters and gauges to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "collabrooms"

type Metrics struct {
	ActiveRooms       prometheus.Gauge
	JoinedConnections prometheus.Gauge
	PendingRequests   prometheus.Gauge
	OpenSockets       prometheus.Gauge
	InboundEvents     *prometheus.CounterVec
	RejectedEvents    *prometheus.CounterVec
	StoreFailures     *prometheus.CounterVec
	DroppedClients    prometheus.Counter

	gatherer prometheus.Gatherer
}

// New registers all collectors on reg. Pass prometheus.NewRegistry() in tests.
func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ActiveRooms: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_rooms",
			Help:      "Rooms currently held in the directory.",
		}),
		JoinedConnections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "joined_connections",
			Help:      "Connections currently bound to a room.",
		}),
		PendingRequests: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_join_requests",
			Help:      "Join requests awaiting an admin decision.",
		}),
		OpenSockets: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_sockets",
			Help:      "Open WebSocket connections.",
		}),
		InboundEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inbound_events_total",
			Help:      "Inbound events processed, by event name.",
		}, []string{"event"}),
		RejectedEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejected_events_total",
			Help:      "Inbound events answered with an error, by event name.",
		}, []string{"event"}),
		StoreFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_store_failures_total",
			Help:      "Chat history store calls that failed, by operation.",
		}, []string{"op"}),
		DroppedClients: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_clients_total",
			Help:      "Connections dropped because their send buffer was full.",
		}),
		gatherer: reg,
	}
}

// Handler exposes the registry at /metrics
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
