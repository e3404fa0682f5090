// Package replication holds the primary's write-path machinery: the
// Appender that commits locally and blocks on write concern, the per-Append
// Replicator fan-out, and the persistent per-secondary catch-up Manager
// with its delivered-id bookkeeping.
package replication

import (
	"context"
	"log"
	"sync"
	"time"

	"replicated-log/internal/health"
	"replicated-log/internal/logstore"
	"replicated-log/internal/transport"
)

// Sender is the slice of the transport adapter the replication machinery
// needs. Implemented by transport.HTTP.
type Sender interface {
	SendReplicate(ctx context.Context, url string, msg logstore.Message) (transport.Ack, error)
}

// ackTally counts secondary ACKs for a single Append and fires done exactly
// once when the count first reaches required.
type ackTally struct {
	mu       sync.Mutex
	acks     int
	required int
	fired    bool
	done     chan struct{}
}

func newAckTally(required int) *ackTally {
	t := &ackTally{required: required, done: make(chan struct{})}
	if required <= 0 {
		t.fired = true
		close(t.done)
	}
	return t
}

func (t *ackTally) ack() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.acks++
	if !t.fired && t.acks >= t.required {
		t.fired = true
		close(t.done)
	}
}

func (t *ackTally) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.acks
}

// Replicator delivers one message to one secondary on behalf of an Append,
// retrying with a backoff that scales with the target's health. Retries end
// when the message is ACKed or the per-Append context is cancelled; from
// then on the Manager owns eventual delivery.
type Replicator struct {
	sender  Sender
	tracker *health.Tracker
	manager *Manager
}

// NewReplicator creates a Replicator sharing the primary's tracker and manager.
func NewReplicator(sender Sender, tracker *health.Tracker, manager *Manager) *Replicator {
	return &Replicator{sender: sender, tracker: tracker, manager: manager}
}

// replicateOne sends msg to url until ACKed. maxAttempts > 0 bounds the
// attempts (the fire-and-forget burst); 0 retries until ctx is cancelled.
// Reports whether the secondary ACKed.
func (r *Replicator) replicateOne(ctx context.Context, url string, msg logstore.Message, maxAttempts int) bool {
	attempt := 0
	for {
		attempt++
		if attempt > 1 {
			st := r.tracker.Get(url)
			delay := health.BackoffFor(st.Status, attempt)
			log.Printf("retry %d to %s for id=%d (status=%s), waiting %s",
				attempt, url, msg.ID, st.Status, delay)
			select {
			case <-ctx.Done():
				return false
			case <-time.After(delay):
			}
		}

		_, err := r.sender.SendReplicate(ctx, url, msg)
		if err == nil {
			// An ACK doubles as a heartbeat.
			r.tracker.RecordSuccess(url)
			r.manager.MarkDelivered(url, msg.ID)
			return true
		}
		log.Printf("replicate id=%d to %s attempt %d: %v", msg.ID, url, attempt, err)

		if ctx.Err() != nil {
			return false
		}
		if maxAttempts > 0 && attempt >= maxAttempts {
			return false
		}
	}
}
