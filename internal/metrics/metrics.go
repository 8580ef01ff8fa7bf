// Package metrics holds the Prometheus collectors of the delivery core.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "whisper"

// Metrics groups every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Connections      prometheus.Gauge
	OnlineUsers      prometheus.Gauge
	MessagesStored   prometheus.Counter
	DeliveryFailures *prometheus.CounterVec
	AuthFailures     *prometheus.CounterVec
	EventsReceived   *prometheus.CounterVec
	EventsRejected   *prometheus.CounterVec
}

// New creates the collectors without registering them
func New() *Metrics {
	return &Metrics{
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Number of active websocket connections.",
		}),
		OnlineUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "online_users",
			Help:      "Number of identities with at least one live connection.",
		}),
		MessagesStored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_stored_total",
			Help:      "Messages persisted by the router.",
		}),
		DeliveryFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_failures_total",
			Help:      "Outbound frames that could not be queued on a connection.",
		}, []string{"event"}),
		AuthFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_failures_total",
			Help:      "Rejected connection handshakes.",
		}, []string{"stage"}),
		EventsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_received_total",
			Help:      "Inbound events by type.",
		}, []string{"event"}),
		EventsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_rejected_total",
			Help:      "Inbound events answered with an error event.",
		}, []string{"event"}),
	}
}

// Register adds every collector to r
func (m *Metrics) Register(r prometheus.Registerer) {
	r.MustRegister(
		m.Connections,
		m.OnlineUsers,
		m.MessagesStored,
		m.DeliveryFailures,
		m.AuthFailures,
		m.EventsReceived,
		m.EventsRejected,
	)
}

// Handler serves the collectors of reg in the Prometheus exposition format
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		Registry:          reg,
		EnableOpenMetrics: true,
	})
}

func (m *Metrics) ConnectionOpened() {
	if m != nil {
		m.Connections.Inc()
	}
}

func (m *Metrics) ConnectionClosed() {
	if m != nil {
		m.Connections.Dec()
	}
}

func (m *Metrics) SetOnlineUsers(n int) {
	if m != nil {
		m.OnlineUsers.Set(float64(n))
	}
}

func (m *Metrics) MessageStored() {
	if m != nil {
		m.MessagesStored.Inc()
	}
}

func (m *Metrics) DeliveryFailed(event string) {
	if m != nil {
		m.DeliveryFailures.WithLabelValues(event).Inc()
	}
}

func (m *Metrics) AuthFailed(stage string) {
	if m != nil {
		m.AuthFailures.WithLabelValues(stage).Inc()
	}
}

func (m *Metrics) EventReceived(event string) {
	if m != nil {
		m.EventsReceived.WithLabelValues(event).Inc()
	}
}

func (m *Metrics) EventRejected(event string) {
	if m != nil {
		m.EventsRejected.WithLabelValues(event).Inc()
	}
}
