package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/seika-app/pomosync/src/types"
)

var allStatuses = []types.Status{
	types.StatusDisconnected,
	types.StatusConnecting,
	types.StatusConnected,
	types.StatusReconnecting,
	types.StatusError,
}

// Metrics holds the connection collectors. A nil *Metrics records nothing.
type Metrics struct {
	status     *prometheus.GaugeVec
	reconnects prometheus.Counter
	messages   *prometheus.CounterVec
	queueDepth prometheus.Gauge
	frameDrops prometheus.Counter
}

// NewMetrics registers the collectors on reg, or on a private registry
// when reg is nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	m := &Metrics{
		status: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pomosync_connection_status",
			Help: "1 for the current connection status, 0 otherwise.",
		}, []string{"status"}),
		reconnects: f.NewCounter(prometheus.CounterOpts{
			Name: "pomosync_reconnect_attempts_total",
			Help: "Reconnect attempts scheduled.",
		}),
		messages: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pomosync_messages_total",
			Help: "Frames written and received.",
		}, []string{"direction"}),
		queueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "pomosync_message_queue_depth",
			Help: "Messages waiting for the connection to open.",
		}),
		frameDrops: f.NewCounter(prometheus.CounterOpts{
			Name: "pomosync_dropped_frames_total",
			Help: "Inbound frames dropped as malformed.",
		}),
	}
	m.setStatus(types.StatusDisconnected)
	return m
}

func (m *Metrics) setStatus(s types.Status) {
	if m == nil {
		return
	}
	for _, st := range allStatuses {
		v := 0.0
		if st == s {
			v = 1
		}
		m.status.WithLabelValues(string(st)).Set(v)
	}
}

func (m *Metrics) reconnectScheduled() {
	if m != nil {
		m.reconnects.Inc()
	}
}

func (m *Metrics) outbound() {
	if m != nil {
		m.messages.WithLabelValues("out").Inc()
	}
}

func (m *Metrics) inbound() {
	if m != nil {
		m.messages.WithLabelValues("in").Inc()
	}
}

func (m *Metrics) setQueueDepth(n int) {
	if m != nil {
		m.queueDepth.Set(float64(n))
	}
}

func (m *Metrics) dropped() {
	if m != nil {
		m.frameDrops.Inc()
	}
}
