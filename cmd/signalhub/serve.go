package main

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/datawire/dlib/dgroup"
	"github.com/datawire/dlib/dhttp"
	"github.com/datawire/dlib/dlog"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"

	"github.com/signalhub/hub/pkg/auth"
	"github.com/signalhub/hub/pkg/clock"
	"github.com/signalhub/hub/pkg/config"
	"github.com/signalhub/hub/pkg/httpapi"
	"github.com/signalhub/hub/pkg/ipam"
	"github.com/signalhub/hub/pkg/manager"
	"github.com/signalhub/hub/pkg/metrics"
	"github.com/signalhub/hub/pkg/store"
	"github.com/signalhub/hub/pkg/wsserver"
)

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the signaling hub",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

// runServe builds every collaborator the core needs (Persistence Port,
// Auth Adapter, Presence Registry, Broadcaster, Heartbeat Supervisor,
// Virtual-IP Service, Metrics) and runs two named goroutines in a
// dgroup.Group: "httpd", one listener serving both /ws/ and the HTTP
// control-plane from one router, and "metrics". This mirrors
// cmd/traffic/cmd/manager/manager.go's dgroup.NewGroup / g.Go("name", fn).
func runServe(ctx context.Context) error {
	env, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	st, closeStore, err := openStore(env)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	verifier := auth.NewJWTVerifier(env.JWTSecret)
	wallClock := clock.Wall{}

	pingInterval, err := time.ParseDuration(env.PingInterval)
	if err != nil {
		return fmt.Errorf("parse PING_INTERVAL: %w", err)
	}
	pongTimeout, err := time.ParseDuration(env.PongTimeout)
	if err != nil {
		return fmt.Errorf("parse PONG_TIMEOUT: %w", err)
	}
	pongCheckPeriod, err := time.ParseDuration(env.PongCheckPeriod)
	if err != nil {
		return fmt.Errorf("parse PONG_CHECK_PERIOD: %w", err)
	}

	registry := manager.NewRegistry()
	m := metrics.New(registry.Total)

	broadcaster := manager.NewBroadcaster(registry)
	broadcaster.Metrics = m

	heartbeat := manager.NewHeartbeat(pingInterval, pongTimeout, pongCheckPeriod)

	actor := &manager.Actor{
		Store:     st,
		Registry:  registry,
		Broadcast: broadcaster,
		Heartbeat: heartbeat,
		Clock:     wallClock,
		Metrics:   m,
	}

	ipamSvc := ipam.New(st)
	wsHandler := wsserver.NewHandler(verifier, st, actor)
	api := httpapi.New(st, ipamSvc, verifier)

	var started atomic.Bool
	router := api.Router(started.Load)
	router.Handle("/ws/", wsHandler).Methods(http.MethodGet)

	g := dgroup.NewGroup(ctx, dgroup.GroupConfig{
		EnableSignalHandling: true,
		SoftShutdownTimeout:  10 * time.Second,
		HardShutdownTimeout:  10 * time.Second,
	})

	g.Go("httpd", func(ctx context.Context) error {
		addr := fmt.Sprintf("%s:%s", env.ServerHost, env.ServerPort)
		dlog.Infof(ctx, "signalhub listening on %q", addr)
		sc := &dhttp.ServerConfig{Handler: router}
		return sc.ListenAndServe(ctx, addr)
	})

	g.Go("metrics", func(ctx context.Context) error {
		return metrics.Serve(ctx, env.ServerHost, env.PrometheusPort)
	})

	started.Store(true)

	// Aggregate the listener-group's shutdown error with the store close
	// error, the way cmd/traffic/cmd/manager shuts down its own
	// collaborators after g.Wait() returns.
	var result *multierror.Error
	result = multierror.Append(result, g.Wait())
	result = multierror.Append(result, closeStore())
	return result.ErrorOrNil()
}

func openStore(env config.Env) (store.Store, func() error, error) {
	if env.DatabaseURL == "" {
		return store.NewMemory(), func() error { return nil }, nil
	}
	pg, err := store.Open(env.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	return pg, pg.Close, nil
}
