// Package api binds the log's operations — Append, ListAll,
// ReceiveReplication, Health — to HTTP routes on a Gin engine. Role gating
// lives here: append is primary-only, replicate is secondary-only, and the
// wrong role gets a 405.
package api

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"replicated-log/internal/config"
	"replicated-log/internal/health"
	"replicated-log/internal/logstore"
	"replicated-log/internal/replication"
)

// Handler holds the components injected from main. appender, manager, and
// tracker are nil on a secondary; replDelay is zero on a primary.
type Handler struct {
	role      string
	replDelay time.Duration
	store     *logstore.Store
	appender  *replication.Appender
	manager   *replication.Manager
	tracker   *health.Tracker
}

// NewHandler creates a Handler for the given role.
func NewHandler(role string, replDelay time.Duration, s *logstore.Store,
	a *replication.Appender, m *replication.Manager, t *health.Tracker) *Handler {
	return &Handler{
		role:      role,
		replDelay: replDelay,
		store:     s,
		appender:  a,
		manager:   m,
		tracker:   t,
	}
}

// Register mounts all routes on r.
func (h *Handler) Register(r *gin.Engine) {
	// Public log API — used by clients.
	r.POST("/append", h.Append)
	r.GET("/log", h.ListAll)

	// Peer-only endpoint fed by the primary's replication machinery.
	r.POST("/replicate", h.Replicate)

	r.GET("/health", h.Health)
}

// AppendIn is the append request body. w defaults to 1 when omitted.
type AppendIn struct {
	Content string `json:"content" binding:"required"`
	W       int    `json:"w"`
}

// Append handles POST /append (primary only).
func (h *Handler) Append(c *gin.Context) {
	if h.role != config.RolePrimary {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "append only allowed on master"})
		return
	}

	var in AppendIn
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if in.W == 0 {
		in.W = 1
	}

	msg, err := h.appender.Append(c.Request.Context(), in.Content, in.W)
	switch {
	case errors.Is(err, replication.ErrInvalidWriteConcern):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, replication.ErrNoQuorum):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case err != nil:
		var insufficient *replication.InsufficientError
		if errors.As(err, &insufficient) {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, msg)
	}
}

// ListAll handles GET /log. Available on every role.
func (h *Handler) ListAll(c *gin.Context) {
	c.JSON(http.StatusOK, h.store.ListAll())
}

// Replicate handles POST /replicate (secondary only): the receiving half of
// replication, with dedup, gap buffering, and total ordering done by the
// store. A buffered result still ACKs ok — the secondary promises to commit
// once the gap closes.
func (h *Handler) Replicate(c *gin.Context) {
	if h.role == config.RolePrimary {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "replicate endpoint only for secondaries"})
		return
	}

	var msg logstore.Message
	if err := c.ShouldBindJSON(&msg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if msg.ID < 1 || msg.Content == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "replicated message needs id >= 1 and non-empty content"})
		return
	}

	// Artificial apply delay, a knob for demonstrating eventual consistency.
	if h.replDelay > 0 {
		log.Printf("delaying replication of id=%d by %s", msg.ID, h.replDelay)
		time.Sleep(h.replDelay)
	}

	res, err := h.store.Receive(msg)
	switch {
	case errors.Is(err, logstore.ErrConflictingRecord), errors.Is(err, logstore.ErrUnexpectedID):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	ack := gin.H{"status": "ok", "id": msg.ID}
	if res.Dedup {
		ack["dedup"] = true
	}
	if res.Buffered {
		ack["buffered"] = true
	}
	c.JSON(http.StatusOK, ack)
}

// Health handles GET /health. Both roles report counts; the primary adds
// per-secondary health and the quorum verdict.
func (h *Handler) Health(c *gin.Context) {
	resp := gin.H{
		"ok":                   true,
		"role":                 h.role,
		"ts":                   time.Now().UTC(),
		"message_count":        h.store.Len(),
		"pending_out_of_order": h.store.PendingCount(),
	}

	if h.tracker != nil {
		secondaries := gin.H{}
		for url, st := range h.tracker.Snapshot() {
			secondaries[url] = gin.H{
				"status":           st.Status.String(),
				"missed":           st.Missed,
				"last_seen":        st.LastSeen,
				"pending_messages": h.manager.PendingCount(url),
			}
		}
		resp["secondaries"] = secondaries
		resp["has_quorum"] = h.tracker.HasQuorum()
	}

	c.JSON(http.StatusOK, resp)
}
