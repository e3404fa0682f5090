package api_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"replicated-log/internal/api"
	"replicated-log/internal/config"
	"replicated-log/internal/health"
	"replicated-log/internal/logstore"
	"replicated-log/internal/replication"
	"replicated-log/internal/transport"
)

// The tests below run real nodes — actual components behind httptest
// servers, talking real HTTP to each other — with timings scaled down from
// the production defaults so a full catch-up or health transition fits in
// a test run.

type secondaryNode struct {
	srv    *httptest.Server
	store  *logstore.Store
	paused atomic.Bool
}

// pause makes the node answer 503 to everything, the moral equivalent of a
// stopped container. Unpause restores it untouched.
func (n *secondaryNode) pause(p bool) { n.paused.Store(p) }

func (n *secondaryNode) url() string { return n.srv.URL }

func startSecondary(t *testing.T, replDelay time.Duration) *secondaryNode {
	t.Helper()
	gin.SetMode(gin.TestMode)

	n := &secondaryNode{store: logstore.New()}
	handler := api.NewHandler(config.RoleSecondary, replDelay, n.store, nil, nil, nil)
	router := gin.New()
	handler.Register(router)

	n.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if n.paused.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		router.ServeHTTP(w, r)
	}))
	t.Cleanup(n.srv.Close)
	return n
}

type primaryNode struct {
	srv     *httptest.Server
	store   *logstore.Store
	tracker *health.Tracker
	manager *replication.Manager
}

func (n *primaryNode) url() string { return n.srv.URL }

func startPrimary(t *testing.T, secondaries []string, requireQuorum bool) *primaryNode {
	t.Helper()
	gin.SetMode(gin.TestMode)

	n := &primaryNode{store: logstore.New()}
	tr := transport.NewHTTP(500*time.Millisecond, 200*time.Millisecond)
	n.tracker = health.NewTracker(secondaries, tr,
		health.Thresholds{Suspect: 2, Unhealthy: 4},
		50*time.Millisecond, 200*time.Millisecond)
	n.manager = replication.NewManager(n.store, tr, n.tracker, secondaries, 50*time.Millisecond)
	replicator := replication.NewReplicator(tr, n.tracker, n.manager)
	appender := replication.NewAppender(n.store, replicator, n.tracker, secondaries, 2, requireQuorum)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go n.tracker.Run(ctx)
	go n.manager.Run(ctx)

	handler := api.NewHandler(config.RolePrimary, 0, n.store, appender, n.manager, n.tracker)
	router := gin.New()
	handler.Register(router)

	n.srv = httptest.NewServer(router)
	t.Cleanup(n.srv.Close)
	return n
}

func jsonBody(s string) io.Reader {
	return strings.NewReader(s)
}

func contents(msgs []logstore.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Content
	}
	return out
}
