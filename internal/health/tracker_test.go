package health

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type flakyProber struct {
	mu   sync.Mutex
	fail map[string]bool
}

func (p *flakyProber) set(url string, fail bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail == nil {
		p.fail = make(map[string]bool)
	}
	p.fail[url] = fail
}

func (p *flakyProber) ProbeHealth(ctx context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail[url] {
		return errors.New("probe failed")
	}
	return nil
}

func newTestTracker(secondaries ...string) *Tracker {
	return NewTracker(secondaries, &flakyProber{}, Thresholds{Suspect: 2, Unhealthy: 4},
		time.Hour, time.Second)
}

func TestTrackerStartsHealthy(t *testing.T) {
	tr := newTestTracker("http://s1")
	st := tr.Get("http://s1")
	require.Equal(t, Healthy, st.Status)
	require.Zero(t, st.Missed)
}

func TestTrackerTransitionsThroughThresholds(t *testing.T) {
	tr := newTestTracker("http://s1")

	tr.recordFailure("http://s1")
	require.Equal(t, Healthy, tr.Get("http://s1").Status)

	tr.recordFailure("http://s1")
	require.Equal(t, Suspected, tr.Get("http://s1").Status)

	tr.recordFailure("http://s1")
	require.Equal(t, Suspected, tr.Get("http://s1").Status)

	tr.recordFailure("http://s1")
	require.Equal(t, Unhealthy, tr.Get("http://s1").Status)
	require.Equal(t, 4, tr.Get("http://s1").Missed)
}

func TestRecordSuccessResetsFromAnyState(t *testing.T) {
	tr := newTestTracker("http://s1")
	for i := 0; i < 10; i++ {
		tr.recordFailure("http://s1")
	}
	require.Equal(t, Unhealthy, tr.Get("http://s1").Status)

	tr.RecordSuccess("http://s1")
	st := tr.Get("http://s1")
	require.Equal(t, Healthy, st.Status)
	require.Zero(t, st.Missed)
	require.False(t, st.LastSeen.IsZero())
}

func TestGetUnknownURLReportsUnhealthy(t *testing.T) {
	tr := newTestTracker("http://s1")
	require.Equal(t, Unhealthy, tr.Get("http://nope").Status)
}

func TestHasQuorum(t *testing.T) {
	// Fleet of 3: self plus two secondaries. Quorum needs 2 non-Unhealthy.
	tr := newTestTracker("http://s1", "http://s2")
	require.True(t, tr.HasQuorum())

	for i := 0; i < 4; i++ {
		tr.recordFailure("http://s1")
	}
	require.True(t, tr.HasQuorum(), "self + one live secondary is still a majority of 3")

	for i := 0; i < 4; i++ {
		tr.recordFailure("http://s2")
	}
	require.False(t, tr.HasQuorum(), "self alone is not a majority of 3")

	// Suspected still counts toward quorum.
	tr.RecordSuccess("http://s1")
	tr.recordFailure("http://s1")
	tr.recordFailure("http://s1")
	require.Equal(t, Suspected, tr.Get("http://s1").Status)
	require.True(t, tr.HasQuorum())
}

func TestHasQuorumSingleNodeFleet(t *testing.T) {
	tr := newTestTracker()
	require.True(t, tr.HasQuorum(), "a primary with no secondaries is its own majority")
}

func TestRunLoopDrivesFSM(t *testing.T) {
	prober := &flakyProber{}
	tr := NewTracker([]string{"http://s1"}, prober, Thresholds{Suspect: 2, Unhealthy: 4},
		5*time.Millisecond, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go tr.Run(ctx)

	prober.set("http://s1", true)
	require.Eventually(t, func() bool { return tr.Get("http://s1").Status == Suspected },
		2*time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return tr.Get("http://s1").Status == Unhealthy },
		2*time.Second, time.Millisecond)

	prober.set("http://s1", false)
	require.Eventually(t, func() bool { return tr.Get("http://s1").Status == Healthy },
		2*time.Second, time.Millisecond)
}

func TestSnapshotCopiesState(t *testing.T) {
	tr := newTestTracker("http://s1", "http://s2")
	tr.recordFailure("http://s1")
	tr.recordFailure("http://s1")

	snap := tr.Snapshot()
	require.Len(t, snap, 2)
	require.Equal(t, Suspected, snap["http://s1"].Status)
	require.Equal(t, Healthy, snap["http://s2"].Status)

	// Mutating the snapshot must not touch the tracker.
	s := snap["http://s1"]
	s.Missed = 99
	snap["http://s1"] = s
	require.Equal(t, 2, tr.Get("http://s1").Missed)
}

func TestBackoffTable(t *testing.T) {
	cases := []struct {
		status  Status
		attempt int
		want    time.Duration
	}{
		{Healthy, 2, time.Second},
		{Healthy, 100, 5 * time.Second},
		{Suspected, 3, 3 * time.Second},
		{Suspected, 100, 10 * time.Second},
		{Unhealthy, 2, 10 * time.Second},
		{Unhealthy, 100, 30 * time.Second},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, BackoffFor(tc.status, tc.attempt),
			"status=%s attempt=%d", tc.status, tc.attempt)
	}
}
