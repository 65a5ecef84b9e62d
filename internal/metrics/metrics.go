package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vovakirdan/coderoom-server/internal/core"
)

const namespace = "coderoom"

// Metrics holds the relay and transport collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	roomsActive      prometheus.Gauge
	participants     prometheus.Gauge
	eventsRelayed    *prometheus.CounterVec
	deliveryFailures *prometheus.CounterVec
	connections      prometheus.Gauge
	inboundFrames    *prometheus.CounterVec
}

// New registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		roomsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rooms_active",
			Help:      "Rooms with at least one participant.",
		}),
		participants: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "participants",
			Help:      "Participants across all rooms.",
		}),
		eventsRelayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_delivered_total",
			Help:      "Events enqueued to recipients, by kind.",
		}, []string{"kind"}),
		deliveryFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_failures_total",
			Help:      "Per-recipient delivery failures, by kind and reason.",
		}, []string{"kind", "code"}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_connections",
			Help:      "Open WebSocket connections.",
		}),
		inboundFrames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inbound_frames_total",
			Help:      "Inbound frames, by type and outcome.",
		}, []string{"type", "result"}),
	}

	m.registry.MustRegister(
		m.roomsActive,
		m.participants,
		m.eventsRelayed,
		m.deliveryFailures,
		m.connections,
		m.inboundFrames,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) RoomCreated(string)  { m.roomsActive.Inc() }
func (m *Metrics) RoomDeleted(string)  { m.roomsActive.Dec() }
func (m *Metrics) MemberJoined(string) { m.participants.Inc() }
func (m *Metrics) MemberLeft(string)   { m.participants.Dec() }

func (m *Metrics) EventRelayed(kind core.EventKind, recipients int) {
	m.eventsRelayed.WithLabelValues(kind.String()).Add(float64(recipients))
}

func (m *Metrics) DeliveryFailed(kind core.EventKind, code string) {
	m.deliveryFailures.WithLabelValues(kind.String(), code).Inc()
}

// ConnOpened and ConnClosed track live WebSocket connections.
func (m *Metrics) ConnOpened() { m.connections.Inc() }
func (m *Metrics) ConnClosed() { m.connections.Dec() }

// Frame counts one inbound frame. result is "ok", "malformed",
// "rate_limited" or a relay error code.
func (m *Metrics) Frame(frameType, result string) {
	if frameType == "" {
		frameType = "unknown"
	}
	m.inboundFrames.WithLabelValues(frameType, result).Inc()
}

var _ core.Observer = (*Metrics)(nil)
