package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.ConnOpened()
	m.ConnOpened()
	m.ConnClosed()
	m.Event("send-message", "ok")
	m.Event("send-message", "ok")
	m.Event("join-room", "PERMISSION_DENIED")
	m.MessageStored()
	m.SlowConsumer()
	m.AuthAttempt("ok")
	m.LookupTimeout()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Connections))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Events.WithLabelValues("send-message", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Events.WithLabelValues("join-room", "PERMISSION_DENIED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MessagesStored))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SlowConsumers))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuthAttempts.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LookupTimeouts))
}

func TestMetrics_DoubleRegistrationFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)
	_, err = New(reg)
	assert.Error(t, err)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ConnOpened()
		m.Event("x", "ok")
		m.AuthAttempt("ok")
		m.SlowConsumer()
	})
}
