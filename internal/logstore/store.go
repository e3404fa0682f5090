// Package logstore holds the in-memory append-only log shared by every
// component of a node: the primary's appender commits into it directly, a
// secondary commits inbound replication through the total-ordering gate in
// Receive, and every role serves ListAll straight out of it.
//
// There is no disk persistence. Everything lives in the map and is gone on
// restart.
package logstore

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ErrConflictingRecord is returned when a commit or replicate attempt would
// overwrite an existing id with different bytes. It always indicates a bug
// in the primary or a split-brain, never a transient condition — callers
// must not retry it.
var ErrConflictingRecord = errors.New("conflicting record")

// ErrUnexpectedID is the defensive error for a replicated message whose id
// is behind next_id but has no matching local record. Under a correctly
// behaving primary this should never happen.
var ErrUnexpectedID = errors.New("unexpected id")

// Message is one committed entry of the log. Immutable after Commit.
type Message struct {
	ID      uint64    `json:"id"`
	Content string    `json:"content"`
	TS      time.Time `json:"ts"`
}

// Equal reports byte-for-byte equality, the only notion of "same record"
// this package knows about.
func (m Message) Equal(other Message) bool {
	return m.ID == other.ID && m.Content == other.Content && m.TS.Equal(other.TS)
}

// ReceiveResult reports how Receive classified an inbound replicated
// message: fresh commit (both false), a duplicate of an already-committed
// record (Dedup), or an out-of-order arrival parked in PendingBuffer
// (Buffered).
type ReceiveResult struct {
	Dedup    bool
	Buffered bool
}

// Store is the committed log plus the out-of-order pending buffer. Both
// live under the same mutex: a flush commits from the buffer and mutates
// both together.
type Store struct {
	mu      sync.Mutex
	byID    map[uint64]Message
	nextID  uint64
	pending map[uint64]Message
}

// New creates an empty Store with next_id = 1.
func New() *Store {
	return &Store{
		byID:    make(map[uint64]Message),
		pending: make(map[uint64]Message),
		nextID:  1,
	}
}

// ReserveID peeks the next id to be assigned without mutating state — the
// receiving side's "next expected id" (Receive reads the same field inline,
// under the lock it already holds). Primary-side writers must use
// ReserveAndCommit instead, which closes the race a peek-then-commit
// sequence would have.
func (s *Store) ReserveID() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextID
}

// ReserveAndCommit atomically assigns the next id to content and commits it
// in a single critical section, so two concurrent appends can never observe
// or claim the same id.
func (s *Store) ReserveAndCommit(content string, ts time.Time) Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	m := Message{ID: id, Content: content, TS: ts}
	s.insertLocked(m)
	return m
}

// Commit inserts m, idempotent iff m byte-equals an existing record at
// m.ID; otherwise a lower-than-next_id id is a permanent ErrConflictingRecord.
func (s *Store) Commit(m Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commitLocked(m)
}

func (s *Store) commitLocked(m Message) error {
	if existing, ok := s.byID[m.ID]; ok {
		if existing.Equal(m) {
			return nil
		}
		return fmt.Errorf("%w: id %d", ErrConflictingRecord, m.ID)
	}
	if m.ID < s.nextID {
		return fmt.Errorf("%w: id %d below next_id %d", ErrConflictingRecord, m.ID, s.nextID)
	}
	s.insertLocked(m)
	return nil
}

// insertLocked assumes the caller has already ruled out a conflicting
// existing record at m.ID.
func (s *Store) insertLocked(m Message) {
	s.byID[m.ID] = m
	if m.ID >= s.nextID {
		s.nextID = m.ID + 1
	}
}

// GetByID returns the committed record at id, if any.
func (s *Store) GetByID(id uint64) (Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byID[id]
	return m, ok
}

// ListAll returns every committed message, ascending by id.
func (s *Store) ListAll() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Message, 0, len(s.byID))
	for _, m := range s.byID {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len reports the number of committed messages.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

// PendingCount reports how many messages are parked in PendingBuffer
// waiting for a gap to close.
func (s *Store) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Receive applies one replicated message on the receiving side: dedup by
// byte-equality, total-order gating against the next expected id, buffering
// for arrivals ahead of it, and a flush that drains the buffer whenever the
// gap closes. No network I/O happens under the lock; everything here is
// pure map bookkeeping.
func (s *Store) Receive(m Message) (ReceiveResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.byID[m.ID]; ok {
		if existing.Equal(m) {
			return ReceiveResult{Dedup: true}, nil
		}
		return ReceiveResult{}, fmt.Errorf("%w: id %d", ErrConflictingRecord, m.ID)
	}

	expected := s.nextID
	switch {
	case m.ID == expected:
		s.insertLocked(m)
		s.flushPendingLocked()
		return ReceiveResult{}, nil

	case m.ID > expected:
		if existing, ok := s.pending[m.ID]; ok && !existing.Equal(m) {
			return ReceiveResult{}, fmt.Errorf("%w: id %d", ErrConflictingRecord, m.ID)
		}
		s.pending[m.ID] = m
		return ReceiveResult{Buffered: true}, nil

	default: // m.ID < expected and no existing record at m.ID
		return ReceiveResult{}, fmt.Errorf("%w: id %d (expected >= %d)", ErrUnexpectedID, m.ID, expected)
	}
}

// flushPendingLocked drains PendingBuffer while the next expected id is
// present, terminating as soon as it isn't. Caller holds s.mu.
func (s *Store) flushPendingLocked() {
	for {
		next := s.nextID
		m, ok := s.pending[next]
		if !ok {
			return
		}
		delete(s.pending, next)
		s.insertLocked(m)
	}
}
