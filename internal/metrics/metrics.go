package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks the authorization flow: state transitions, sessions and
// identity provider calls.
type Metrics struct {
	FlowTransitions        *prometheus.CounterVec
	SessionsCreated        prometheus.Counter
	UpstreamFailures       *prometheus.CounterVec
	AllowListDenials       prometheus.Counter
	AuthenticationDuration prometheus.Histogram
}

// New registers the broker metrics with reg. Pass prometheus.DefaultRegisterer
// in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		FlowTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "idbroker_flow_transitions_total",
			Help: "Authorization flow state transitions",
		}, []string{"from", "to"}),
		SessionsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "idbroker_sessions_created_total",
			Help: "Browser sessions created after a successful login",
		}),
		UpstreamFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "idbroker_upstream_failures_total",
			Help: "Identity provider failures by stage (exchange, identity)",
		}, []string{"stage"}),
		AllowListDenials: factory.NewCounter(prometheus.CounterOpts{
			Name: "idbroker_allowlist_denials_total",
			Help: "Logins refused because the email is not on the allow-list",
		}),
		AuthenticationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "idbroker_authentication_duration_seconds",
			Help:    "Duration of the code exchange and identity fetch at callback",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
	}
}

// RecordTransition counts one flow state change
func (m *Metrics) RecordTransition(from, to string) {
	m.FlowTransitions.WithLabelValues(from, to).Inc()
}

// IncrementSessionsCreated records a new browser session
func (m *Metrics) IncrementSessionsCreated() {
	m.SessionsCreated.Inc()
}

// IncrementUpstreamFailure records a provider failure at stage
func (m *Metrics) IncrementUpstreamFailure(stage string) {
	m.UpstreamFailures.WithLabelValues(stage).Inc()
}

// IncrementAllowListDenial records a refused login
func (m *Metrics) IncrementAllowListDenial() {
	m.AllowListDenials.Inc()
}

// ObserveAuthentication records the callback authentication duration.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveAuthentication(start time.Time) {
	m.AuthenticationDuration.Observe(time.Since(start).Seconds())
}
