package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsActive tracks currently open chat connections.
	ConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chat_connections_active",
		Help: "Currently open WebSocket connections",
	})

	// AuthRejected counts connections closed during authentication.
	AuthRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_auth_rejected_total",
		Help: "Connections rejected during token verification",
	})

	// MessagesBroadcast counts chat messages fanned out, by room.
	MessagesBroadcast = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_messages_broadcast_total",
		Help: "Chat messages persisted and broadcast",
	}, []string{"room"})

	// DeliveriesDropped counts per-member sends skipped because the
	// member's buffer was full or it was tearing down.
	DeliveriesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_deliveries_dropped_total",
		Help: "Per-member event deliveries dropped",
	})
)

// Handler exposes Prometheus metrics at /metrics
func Handler() http.Handler {
	return promhttp.Handler()
}
