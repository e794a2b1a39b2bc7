package server

import (
	"testing"

	"github.com/dgellow/idbroker/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestFlowState_Transitions(t *testing.T) {
	tests := []struct {
		from, to flowState
		want     bool
	}{
		{stateNewRequest, stateAwaitingLogin, true},
		{stateNewRequest, stateAwaitingConsent, true},
		{stateNewRequest, stateError, true},
		{stateAwaitingLogin, stateAwaitingConsent, true},
		{stateAwaitingLogin, stateError, true},
		{stateAwaitingConsent, stateApproved, true},
		{stateAwaitingConsent, stateRejected, true},
		{stateAwaitingConsent, stateError, true},
		{stateNewRequest, stateApproved, false},
		{stateAwaitingLogin, stateApproved, false},
		{stateApproved, stateError, false},
		{stateRejected, stateAwaitingConsent, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.canTransitionTo(tt.to))
		})
	}
}

func TestTransition_RecordsMetric(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	h := &AuthHandlers{metrics: m}

	h.transition(stateAwaitingConsent, stateApproved, map[string]any{"client_id": "cli"})
	h.transition(stateAwaitingConsent, stateApproved, nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.FlowTransitions.WithLabelValues("AWAITING_CONSENT", "APPROVED")))
}

func TestTransition_WithoutMetrics(t *testing.T) {
	h := &AuthHandlers{}
	assert.NotPanics(t, func() {
		h.transition(stateNewRequest, stateAwaitingLogin, nil)
	})
}
