package metrics

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMetrics exercises every recorder method once. It must be the only
// test in this package that calls New: promauto registers collectors
// against the global default registry, and a second registration of the
// same metric name panics.
func TestMetrics(t *testing.T) {
	total := 0
	m := New(func() int { return total })

	assert.Equal(t, float64(0), testutil.ToFloat64(m.broadcastSent))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.broadcastFailed))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.heartbeatTimeout))

	m.BroadcastSent(3)
	m.BroadcastFailed(1)
	m.HeartbeatTimeout()
	m.HeartbeatTimeout()

	assert.Equal(t, float64(3), testutil.ToFloat64(m.broadcastSent))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.broadcastFailed))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.heartbeatTimeout))

	total = 5
	// gauge func reads through the closure, not a stored value
	mfs, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	gauge := float64(-1)
	for _, mf := range mfs {
		if mf.GetName() == "signalhub_sessions_registered" {
			gauge = mf.GetMetric()[0].GetGauge().GetValue()
		}
	}
	assert.Equal(t, float64(5), gauge)

	require.NoError(t, Serve(context.Background(), "127.0.0.1", 0))
}
