package replication

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"replicated-log/internal/health"
	"replicated-log/internal/logstore"
)

// ErrInvalidWriteConcern rejects an Append whose w is below 1 or exceeds
// the fleet size (primary + secondaries).
var ErrInvalidWriteConcern = errors.New("invalid write concern")

// ErrNoQuorum rejects an Append before any id is assigned when the nodes
// that are not Unhealthy (self included) fall short of a strict majority of
// the fleet. Only raised when quorum gating is enabled.
var ErrNoQuorum = errors.New("no quorum: majority of nodes unreachable")

// InsufficientError reports that the requested write concern was not met
// before the per-Append tasks gave up. The message is still committed on
// the primary and the Manager keeps delivering it in the background.
type InsufficientError struct {
	Got  int
	Want int
}

func (e *InsufficientError) Error() string {
	return fmt.Sprintf("replication failed: got %d/%d secondary ACKs", e.Got, e.Want)
}

// Appender owns the primary's write path: id assignment, the local commit,
// and the fan-out under write concern w.
type Appender struct {
	store         *logstore.Store
	replicator    *Replicator
	tracker       *health.Tracker
	secondaries   []string
	replRetries   int
	requireQuorum bool
}

// NewAppender wires the write path together. replRetries bounds the
// fire-and-forget burst on the w=1 path; requireQuorum enables the
// optional pre-write quorum gate.
func NewAppender(store *logstore.Store, replicator *Replicator, tracker *health.Tracker,
	secondaries []string, replRetries int, requireQuorum bool) *Appender {
	return &Appender{
		store:         store,
		replicator:    replicator,
		tracker:       tracker,
		secondaries:   secondaries,
		replRetries:   replRetries,
		requireQuorum: requireQuorum,
	}
}

// Append commits content locally and blocks until w-1 secondaries ACK. The
// commit is never rolled back: a non-nil error past validation means only
// that the write concern was not met within this request.
//
// ctx scopes the per-request replication tasks. When it is cancelled the
// outstanding tasks stop retrying and Append reports how far it got; the
// Manager finishes the job.
func (a *Appender) Append(ctx context.Context, content string, w int) (logstore.Message, error) {
	if w < 1 || w > 1+len(a.secondaries) {
		return logstore.Message{}, fmt.Errorf("%w: w=%d with %d secondaries",
			ErrInvalidWriteConcern, w, len(a.secondaries))
	}
	if a.requireQuorum && !a.tracker.HasQuorum() {
		return logstore.Message{}, ErrNoQuorum
	}

	msg := a.store.ReserveAndCommit(content, time.Now().UTC())
	log.Printf("committed locally id=%d content_length=%d", msg.ID, len(msg.Content))

	if w == 1 {
		// Fire-and-forget: a bounded burst of attempts per secondary,
		// detached from the request lifetime. The Manager covers
		// whatever the burst misses.
		for _, url := range a.secondaries {
			go a.replicator.replicateOne(context.WithoutCancel(ctx), url, msg, a.replRetries)
		}
		return msg, nil
	}

	required := w - 1
	tally := newAckTally(required)

	rctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	for _, url := range a.secondaries {
		wg.Add(1)
		go func(u string) {
			defer wg.Done()
			if a.replicator.replicateOne(rctx, u, msg, 0) {
				tally.ack()
			}
		}(url)
	}
	allDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(allDone)
	}()

	select {
	case <-tally.done:
		log.Printf("w=%d satisfied for id=%d", w, msg.ID)
		return msg, nil
	case <-allDone:
		// Every task terminated: either each secondary resolved, or the
		// request context was cancelled out from under them.
		if got := tally.count(); got < required {
			return msg, &InsufficientError{Got: got, Want: required}
		}
		return msg, nil
	}
}
