package transport

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Send results used as the "result" label.
const (
	resultOK          = "ok"
	resultUnknown     = "unknown_destination"
	resultUnreachable = "unreachable"
	resultFailed      = "failed"
	resultCancelled   = "cancelled"
	resultClosed      = "closed"
)

// unroutedLabel is the "endpoint" label of sends rejected before routing,
// so callers cannot create series for arbitrary destinations.
const unroutedLabel = "unrouted"

// Reconnect outcomes used as the "outcome" label.
const (
	outcomeFailed    = "failed"
	outcomeConnected = "connected"
)

// Metrics holds the client's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	sends      *prometheus.CounterVec
	bytes      *prometheus.CounterVec
	reconnects *prometheus.CounterVec
	evictions  prometheus.Counter
	endpoints  prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg when reg
// is non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mixtcp",
			Subsystem: "client",
			Name:      "sends_total",
			Help:      "Send calls by endpoint and result.",
		}, []string{"endpoint", "result"}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mixtcp",
			Subsystem: "client",
			Name:      "bytes_written_total",
			Help:      "Payload bytes written by endpoint.",
		}, []string{"endpoint"}),
		reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mixtcp",
			Subsystem: "client",
			Name:      "reconnect_attempts_total",
			Help:      "Reconnection dial attempts by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mixtcp",
			Subsystem: "client",
			Name:      "evictions_total",
			Help:      "Endpoints removed after reconnection gave up.",
		}),
		endpoints: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mixtcp",
			Subsystem: "client",
			Name:      "endpoints",
			Help:      "Endpoints currently routed to.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.sends, m.bytes, m.reconnects, m.evictions, m.endpoints)
	}
	return m
}

func (m *Metrics) send(ep Endpoint, result string, n int) {
	if m == nil {
		return
	}
	m.sends.WithLabelValues(ep.String(), result).Inc()
	if result == resultOK {
		m.bytes.WithLabelValues(ep.String()).Add(float64(n))
	}
}

func (m *Metrics) rejected(result string) {
	if m == nil {
		return
	}
	m.sends.WithLabelValues(unroutedLabel, result).Inc()
}

func (m *Metrics) reconnectAttempt(ep Endpoint, err error) {
	if m == nil {
		return
	}
	outcome := outcomeConnected
	if err != nil {
		outcome = outcomeFailed
	}
	m.reconnects.WithLabelValues(ep.String(), outcome).Inc()
}

func (m *Metrics) evicted(remaining int) {
	if m == nil {
		return
	}
	m.evictions.Inc()
	m.endpoints.Set(float64(remaining))
}

func (m *Metrics) setEndpoints(n int) {
	if m == nil {
		return
	}
	m.endpoints.Set(float64(n))
}
