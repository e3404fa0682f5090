// cmd/server is the entrypoint for one replicated-log node.
//
// A single binary serves either role; the role and everything else come
// from flags or REPLOG_-prefixed environment variables.
//
// Example — primary with two secondaries:
//
//	./server --role master --addr :8000 \
//	         --secondaries http://localhost:8001,http://localhost:8002
//	./server --role secondary --addr :8001
//	./server --role secondary --addr :8002 --repl-delay-secs 3
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"replicated-log/internal/api"
	"replicated-log/internal/config"
	"replicated-log/internal/health"
	"replicated-log/internal/logstore"
	"replicated-log/internal/replication"
	"replicated-log/internal/transport"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "replog-server",
		Short:         "Primary/secondary replicated append-only log node",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				return err
			}
			return run(cfg)
		},
	}

	f := cmd.Flags()
	f.String("role", config.RolePrimary, `Node role: "master" or "secondary"`)
	f.String("addr", ":8000", "Listen address (host:port)")
	f.StringSlice("secondaries", nil, "Secondary base URLs (primary only)")
	f.Float64("repl-timeout-secs", 30, "Per-call replicate timeout")
	f.Float64("repl-delay-secs", 0, "Artificial delay before applying inbound replication (secondary)")
	f.Int("repl-retries", 2, "Attempts in the fire-and-forget burst on w=1 appends")
	f.Float64("heartbeat-interval-secs", 5, "Heartbeat probe period")
	f.Float64("heartbeat-timeout-secs", 2, "Per-probe timeout")
	f.Int("suspect-threshold", 2, "Missed beats before a secondary is Suspected")
	f.Int("unhealthy-threshold", 4, "Missed beats before a secondary is Unhealthy")
	f.Float64("sync-poll-interval-secs", 2, "Catch-up sync tick")
	f.Bool("require-quorum", false, "Reject writes unless a strict majority of the fleet is not Unhealthy")
	return cmd
}

func run(cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := logstore.New()

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(api.RequestID(), api.Logger(), api.Recovery())

	var handler *api.Handler
	if cfg.IsPrimary() {
		tr := transport.NewHTTP(cfg.ReplTimeout, cfg.HeartbeatTimeout)
		tracker := health.NewTracker(cfg.Secondaries, tr,
			health.Thresholds{Suspect: cfg.SuspectThreshold, Unhealthy: cfg.UnhealthyThreshold},
			cfg.HeartbeatInterval, cfg.HeartbeatTimeout)
		manager := replication.NewManager(store, tr, tracker, cfg.Secondaries, cfg.SyncPollInterval)
		replicator := replication.NewReplicator(tr, tracker, manager)
		appender := replication.NewAppender(store, replicator, tracker,
			cfg.Secondaries, cfg.ReplRetries, cfg.RequireQuorum)

		go tracker.Run(ctx)
		go manager.Run(ctx)

		handler = api.NewHandler(cfg.Role, 0, store, appender, manager, tracker)
	} else {
		handler = api.NewHandler(cfg.Role, cfg.ReplDelay, store, nil, nil, nil)
	}
	handler.Register(router)

	// No WriteTimeout: an append under w > 1 legitimately blocks until
	// enough secondaries ACK.
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("%s node listening on %s (%d secondaries)",
			cfg.Role, cfg.Addr, len(cfg.Secondaries))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Printf("shutting down %s node", cfg.Role)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
