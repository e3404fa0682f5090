package replication

import (
	"context"
	"log"
	"sync"
	"time"

	"replicated-log/internal/health"
	"replicated-log/internal/logstore"
)

// deliveredSet records which ids one secondary has ACKed. Grows
// monotonically; its own mutex keeps the per-request Replicator and the
// sync loop from racing on the same secondary.
type deliveredSet struct {
	mu  sync.Mutex
	ids map[uint64]struct{}
}

func newDeliveredSet() *deliveredSet {
	return &deliveredSet{ids: make(map[uint64]struct{})}
}

func (d *deliveredSet) add(id uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ids[id] = struct{}{}
}

func (d *deliveredSet) has(id uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.ids[id]
	return ok
}

// Manager is the primary's safety net: one persistent catch-up loop per
// secondary that diffs the delivered set against the log each tick and
// streams whatever is missing, strictly ascending by id. Per-request
// replication tasks die with their request; this loop runs for the life of
// the process.
type Manager struct {
	store     *logstore.Store
	sender    Sender
	tracker   *health.Tracker
	interval  time.Duration
	delivered map[string]*deliveredSet // keys fixed at construction
}

// NewManager creates a Manager for the given secondaries. interval is the
// sync poll tick.
func NewManager(store *logstore.Store, sender Sender, tracker *health.Tracker,
	secondaries []string, interval time.Duration) *Manager {
	delivered := make(map[string]*deliveredSet, len(secondaries))
	for _, url := range secondaries {
		delivered[url] = newDeliveredSet()
	}
	return &Manager{
		store:     store,
		sender:    sender,
		tracker:   tracker,
		interval:  interval,
		delivered: delivered,
	}
}

// Run starts one sync loop per secondary and blocks until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for url := range m.delivered {
		wg.Add(1)
		go func(u string) {
			defer wg.Done()
			m.syncLoop(ctx, u)
		}(url)
	}
	wg.Wait()
}

func (m *Manager) syncLoop(ctx context.Context, url string) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.syncOnce(ctx, url)
		}
	}
}

// syncOnce streams every message url is missing, in id order. The first
// failure ends the round; the next tick starts over. An Unhealthy
// secondary is skipped entirely rather than hammered.
func (m *Manager) syncOnce(ctx context.Context, url string) {
	if m.tracker.Get(url).Status == health.Unhealthy {
		return
	}
	for _, msg := range m.Missing(url) {
		if _, err := m.sender.SendReplicate(ctx, url, msg); err != nil {
			log.Printf("sync to %s stopped at id=%d: %v", url, msg.ID, err)
			return
		}
		m.MarkDelivered(url, msg.ID)
		m.tracker.RecordSuccess(url)
		log.Printf("sync delivered id=%d to %s", msg.ID, url)
	}
}

// Missing returns the committed messages url has not ACKed, ascending by id.
func (m *Manager) Missing(url string) []logstore.Message {
	set := m.delivered[url]
	if set == nil {
		return nil
	}
	var out []logstore.Message
	for _, msg := range m.store.ListAll() {
		if !set.has(msg.ID) {
			out = append(out, msg)
		}
	}
	return out
}

// MarkDelivered records an ACK of id by url. Called both by the sync loop
// and by per-request Replicator tasks.
func (m *Manager) MarkDelivered(url string, id uint64) {
	if set := m.delivered[url]; set != nil {
		set.add(id)
	}
}

// PendingCount reports how many committed messages url has yet to ACK.
func (m *Manager) PendingCount(url string) int {
	return len(m.Missing(url))
}
