package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the collectors of the contracts service. A nil *Metrics is valid and records nothing.
type Metrics struct {
	transitions      *prometheus.CounterVec
	eventsDispatched *prometheus.CounterVec
	sweepRuns        *prometheus.CounterVec
	sweepDissolved   prometheus.Counter
	sweepSkipped     prometheus.Counter
	connections      prometheus.Gauge
	gatewayRequests  *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "contracts_transitions_total",
				Help: "Contract lifecycle transitions by name and outcome",
			},
			[]string{"transition", "outcome"},
		),
		eventsDispatched: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "contracts_events_dispatched_total",
				Help: "Realtime events by kind and delivery result",
			},
			[]string{"event", "result"},
		),
		sweepRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "contracts_sweep_runs_total",
				Help: "Dissolution sweep runs by outcome",
			},
			[]string{"outcome"},
		),
		sweepDissolved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "contracts_sweep_dissolved_total",
			Help: "Contracts dissolved by the sweep",
		}),
		sweepSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "contracts_sweep_skipped_total",
			Help: "Malformed or failed records skipped by the sweep",
		}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "contracts_realtime_connections",
			Help: "Open realtime push connections",
		}),
		gatewayRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "contracts_payment_gateway_requests_total",
				Help: "Payment gateway order requests by outcome",
			},
			[]string{"outcome"},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.transitions,
			m.eventsDispatched,
			m.sweepRuns,
			m.sweepDissolved,
			m.sweepSkipped,
			m.connections,
			m.gatewayRequests,
		)
	}
	return m
}

func (m *Metrics) Transition(name string, err error) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(name, outcome(err)).Inc()
}

func (m *Metrics) EventDispatched(event string, delivered bool) {
	if m == nil {
		return
	}
	result := "dropped"
	if delivered {
		result = "delivered"
	}
	m.eventsDispatched.WithLabelValues(event, result).Inc()
}

func (m *Metrics) SweepRun(err error) {
	if m == nil {
		return
	}
	m.sweepRuns.WithLabelValues(outcome(err)).Inc()
}

func (m *Metrics) SweepDissolved() {
	if m == nil {
		return
	}
	m.sweepDissolved.Inc()
}

func (m *Metrics) SweepSkipped() {
	if m == nil {
		return
	}
	m.sweepSkipped.Inc()
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.connections.Inc()
}

func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.connections.Dec()
}

func (m *Metrics) GatewayRequest(err error) {
	if m == nil {
		return
	}
	m.gatewayRequests.WithLabelValues(outcome(err)).Inc()
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
