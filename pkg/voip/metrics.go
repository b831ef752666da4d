package voip

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	directionInbound  = "inbound"
	directionOutbound = "outbound"
)

// Metrics метрики контроллера сессии. Нулевой указатель допустим:
// все методы в этом случае ничего не делают.
type Metrics struct {
	packets      *prometheus.CounterVec
	bytes        *prometheus.CounterVec
	dropped      *prometheus.CounterVec
	socketErrors *prometheus.CounterVec
	sessionState prometheus.Gauge
	sessions     prometheus.Counter
	completions  *prometheus.CounterVec
}

// NewMetrics регистрирует метрики в reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		packets: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voip",
			Subsystem: "transport",
			Name:      "packets_total",
			Help:      "Number of RTP/RTCP packets forwarded between engine and sockets",
		}, []string{"direction", "kind"}),
		bytes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voip",
			Subsystem: "transport",
			Name:      "bytes_total",
			Help:      "Number of RTP/RTCP payload bytes forwarded",
		}, []string{"direction", "kind"}),
		dropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voip",
			Subsystem: "transport",
			Name:      "dropped_packets_total",
			Help:      "Number of packets dropped because no session or socket was available",
		}, []string{"direction", "kind"}),
		socketErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voip",
			Subsystem: "transport",
			Name:      "socket_errors_total",
			Help:      "Number of socket send failures",
		}, []string{"kind"}),
		sessionState: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "voip",
			Subsystem: "session",
			Name:      "state",
			Help:      "Session state: 0 idle, 1 starting, 2 active, 3 stopping",
		}),
		sessions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "voip",
			Subsystem: "session",
			Name:      "started_total",
			Help:      "Number of successfully started sessions",
		}),
		completions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voip",
			Subsystem: "session",
			Name:      "completions_total",
			Help:      "Number of reported operation outcomes",
		}, []string{"operation", "success"}),
	}
}

func (m *Metrics) packetForwarded(direction string, kind packetKind, size int) {
	if m == nil {
		return
	}
	m.packets.WithLabelValues(direction, kind.String()).Inc()
	m.bytes.WithLabelValues(direction, kind.String()).Add(float64(size))
}

func (m *Metrics) packetDropped(direction string, kind packetKind) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(direction, kind.String()).Inc()
}

func (m *Metrics) socketError(kind packetKind) {
	if m == nil {
		return
	}
	m.socketErrors.WithLabelValues(kind.String()).Inc()
}

func (m *Metrics) stateChanged(state string) {
	if m == nil {
		return
	}
	switch state {
	case stateIdle:
		m.sessionState.Set(0)
	case stateStarting:
		m.sessionState.Set(1)
	case stateActive:
		m.sessionState.Set(2)
	case stateStopping:
		m.sessionState.Set(3)
	}
}

func (m *Metrics) sessionStarted() {
	if m == nil {
		return
	}
	m.sessions.Inc()
}

func (m *Metrics) completed(op Operation, success bool) {
	if m == nil {
		return
	}
	m.completions.WithLabelValues(op.String(), strconv.FormatBool(success)).Inc()
}
