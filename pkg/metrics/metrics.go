// Package metrics exposes the signaling hub's Prometheus gauges and
// counters (SPEC_FULL.md §4.9, C9), grounded on the promauto.NewGaugeFunc /
// prometheus.NewCounterVec idiom in
// cmd/traffic/cmd/manager/prometheus.go.
package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/datawire/dlib/dhttp"
	"github.com/datawire/dlib/dlog"
)

// Metrics holds the process's Prometheus collectors and satisfies
// manager.MetricsRecorder.
type Metrics struct {
	broadcastSent    prometheus.Counter
	broadcastFailed  prometheus.Counter
	heartbeatTimeout prometheus.Counter
}

// New registers the hub's collectors: signalhub_sessions_registered (a
// gauge func over registryTotal, by org aggregated to a process total),
// signalhub_broadcast_sent_total / signalhub_broadcast_failed_total, and
// signalhub_heartbeat_timeouts_total.
func New(registryTotal func() int) *Metrics {
	promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "signalhub_sessions_registered",
		Help: "Number of sessions currently registered across all organizations.",
	}, func() float64 { return float64(registryTotal()) })

	return &Metrics{
		broadcastSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "signalhub_broadcast_sent_total",
			Help: "Number of broadcast sends that succeeded.",
		}),
		broadcastFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "signalhub_broadcast_failed_total",
			Help: "Number of broadcast sends that failed.",
		}),
		heartbeatTimeout: promauto.NewCounter(prometheus.CounterOpts{
			Name: "signalhub_heartbeat_timeouts_total",
			Help: "Number of sessions torn down for missing a pong deadline.",
		}),
	}
}

func (m *Metrics) BroadcastSent(n int)   { m.broadcastSent.Add(float64(n)) }
func (m *Metrics) BroadcastFailed(n int) { m.broadcastFailed.Add(float64(n)) }
func (m *Metrics) HeartbeatTimeout()     { m.heartbeatTimeout.Add(1) }

// Serve starts the /metrics listener on port. A port of 0 disables the
// server entirely, matching servePrometheus's env.PrometheusPort == 0
// short-circuit in the teacher.
func Serve(ctx context.Context, host string, port int) error {
	if port == 0 {
		dlog.Info(ctx, "metrics: server not started (PROMETHEUS_PORT=0)")
		return nil
	}
	sc := &dhttp.ServerConfig{Handler: promhttp.Handler()}
	addr := fmt.Sprintf("%s:%d", host, port)
	dlog.Infof(ctx, "metrics: server started on %s", addr)
	defer dlog.Info(ctx, "metrics: server stopped")
	return sc.ListenAndServe(ctx, addr)
}
