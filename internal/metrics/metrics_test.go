package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordTransition("NEW_REQUEST", "AWAITING_LOGIN")
	m.RecordTransition("NEW_REQUEST", "AWAITING_LOGIN")
	m.RecordTransition("AWAITING_LOGIN", "ERROR")
	m.IncrementSessionsCreated()
	m.IncrementUpstreamFailure("exchange")
	m.IncrementAllowListDenial()
	m.ObserveAuthentication(time.Now().Add(-time.Second))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.FlowTransitions.WithLabelValues("NEW_REQUEST", "AWAITING_LOGIN")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FlowTransitions.WithLabelValues("AWAITING_LOGIN", "ERROR")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionsCreated))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UpstreamFailures.WithLabelValues("exchange")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AllowListDenials))

	count, err := testutil.GatherAndCount(reg, "idbroker_authentication_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestNew_SeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}
