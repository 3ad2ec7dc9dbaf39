package remote

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes service counters to Prometheus. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	state           prometheus.Gauge
	transitions     *prometheus.CounterVec
	pending         prometheus.Gauge
	resolved        *prometheus.CounterVec
	connectAttempts prometheus.Counter
	authFailures    prometheus.Counter
	framesSent      prometheus.Counter
	framesReceived  prometheus.Counter
	intercepted     prometheus.Counter
}

// NewMetrics creates the collectors under namespace (e.g. "musikremote").
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		state: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_state",
			Help:      "Current connection state (0=disconnected, 1=connecting, 2=connected).",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "Connection state transitions.",
		}, []string{"from", "to"}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_calls",
			Help:      "Requests awaiting a reply.",
		}),
		resolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_resolved_total",
			Help:      "Pending calls resolved, by outcome.",
		}, []string{"outcome"}),
		connectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connect_attempts_total",
			Help:      "Connect attempts started.",
		}),
		authFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "authentication_failures_total",
			Help:      "Connect attempts rejected by the server.",
		}),
		framesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_sent_total",
			Help:      "Messages written to the transport.",
		}),
		framesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Messages received from the transport or a responder.",
		}),
		intercepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_intercepted_total",
			Help:      "Outgoing messages claimed by an interceptor.",
		}),
	}
}

// Register registers every collector with reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	var errs []error
	for _, c := range m.collectors() {
		if err := reg.Register(c); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.state, m.transitions, m.pending, m.resolved, m.connectAttempts,
		m.authFailures, m.framesSent, m.framesReceived, m.intercepted,
	}
}

func (m *Metrics) observeState(oldState, newState State) {
	if m == nil {
		return
	}
	m.state.Set(float64(newState))
	m.transitions.WithLabelValues(oldState.String(), newState.String()).Inc()
}

func (m *Metrics) observePending(n int) {
	if m == nil {
		return
	}
	m.pending.Set(float64(n))
}

func (m *Metrics) observeResolved(outcome string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.resolved.WithLabelValues(outcome).Add(float64(n))
}

func (m *Metrics) observeConnectAttempt() {
	if m == nil {
		return
	}
	m.connectAttempts.Inc()
}

func (m *Metrics) observeAuthFailure() {
	if m == nil {
		return
	}
	m.authFailures.Inc()
}

func (m *Metrics) observeSent() {
	if m == nil {
		return
	}
	m.framesSent.Inc()
}

func (m *Metrics) observeReceived() {
	if m == nil {
		return
	}
	m.framesReceived.Inc()
}

func (m *Metrics) observeIntercepted() {
	if m == nil {
		return
	}
	m.intercepted.Inc()
}
