// Package metrics exposes Prometheus counters for the auth command handlers.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the collectors registered for the service.
type Metrics struct {
	CommandsTotal   *prometheus.CounterVec
	CommandDuration *prometheus.HistogramVec
}

// New registers collectors on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CommandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auth_commands_total",
				Help: "Auth command outcomes by command and result.",
			},
			[]string{"command", "result"},
		),
		CommandDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "auth_command_duration_seconds",
				Help:    "Auth command latencies in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"command"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.CommandsTotal, m.CommandDuration)
	}
	return m
}

// RegisterAuditDropped exports the dispatcher's drop counter without making
// the audit package depend on prometheus.
func RegisterAuditDropped(reg prometheus.Registerer, dropped func() uint64) {
	if reg == nil {
		return
	}
	reg.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Name: "auth_audit_events_dropped_total",
			Help: "Audit events dropped because the dispatch buffer was full.",
		},
		func() float64 { return float64(dropped()) },
	))
}

// Observe records one command outcome. Nil receivers are no-ops so tests can
// skip metrics wiring.
func (m *Metrics) Observe(command, result string, seconds float64) {
	if m == nil {
		return
	}
	m.CommandsTotal.WithLabelValues(command, result).Inc()
	m.CommandDuration.WithLabelValues(command).Observe(seconds)
}

// Handler serves the metrics endpoint for the given gatherer.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
