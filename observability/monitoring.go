package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "chat"

// Rejection reasons of the gateway.
const (
	ReasonUnauthenticated = "unauthenticated"
	ReasonForbidden       = "forbidden"
	ReasonUnavailable     = "unavailable"
	ReasonShuttingDown    = "shutting_down"
)

// Metrics groups every collector of the service.
// A nil *Metrics is valid and records nothing, which keeps tests free of registries.
type Metrics struct {
	ActiveConnections   prometheus.Gauge
	RejectedConnections *prometheus.CounterVec
	ActiveRooms         prometheus.Gauge
	MessagesPersisted   prometheus.Counter
	PersistenceFailures prometheus.Counter
	EventsDelivered     prometheus.Counter
	SlowConsumers       prometheus.Counter
	ProcessCPUPercent   prometheus.Gauge
	ProcessRSSBytes     prometheus.Gauge
}

func NewMetrics(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		ActiveConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_connections",
			Help:      "WebSocket connections currently joined to a room.",
		}),
		RejectedConnections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejected_connections_total",
			Help:      "WebSocket connections closed before joining, by reason.",
		}, []string{"reason"}),
		ActiveRooms: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_rooms",
			Help:      "Rooms with at least one live subscriber.",
		}),
		MessagesPersisted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_persisted_total",
			Help:      "Messages appended to the store.",
		}),
		PersistenceFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persistence_failures_total",
			Help:      "Messages the store refused.",
		}),
		EventsDelivered: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_delivered_total",
			Help:      "Events handed to subscriber queues.",
		}),
		SlowConsumers: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slow_consumers_evicted_total",
			Help:      "Subscribers evicted because their queue was full.",
		}),
		ProcessCPUPercent: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "process_cpu_percent",
			Help:      "CPU usage of the server process.",
		}),
		ProcessRSSBytes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "process_rss_bytes",
			Help:      "Resident memory of the server process.",
		}),
	}
}

func (m *Metrics) ConnectionJoined() {
	if m != nil {
		m.ActiveConnections.Inc()
	}
}

func (m *Metrics) ConnectionLeft() {
	if m != nil {
		m.ActiveConnections.Dec()
	}
}

func (m *Metrics) ConnectionRejected(reason string) {
	if m != nil {
		m.RejectedConnections.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) RoomOpened() {
	if m != nil {
		m.ActiveRooms.Inc()
	}
}

func (m *Metrics) RoomClosed() {
	if m != nil {
		m.ActiveRooms.Dec()
	}
}

func (m *Metrics) MessagePersisted() {
	if m != nil {
		m.MessagesPersisted.Inc()
	}
}

func (m *Metrics) PersistenceFailed() {
	if m != nil {
		m.PersistenceFailures.Inc()
	}
}

func (m *Metrics) EventDelivered() {
	if m != nil {
		m.EventsDelivered.Inc()
	}
}

func (m *Metrics) SlowConsumerEvicted() {
	if m != nil {
		m.SlowConsumers.Inc()
	}
}

func (m *Metrics) ProcessStats(cpuPercent float64, rssBytes uint64) {
	if m != nil {
		m.ProcessCPUPercent.Set(cpuPercent)
		m.ProcessRSSBytes.Set(float64(rssBytes))
	}
}
