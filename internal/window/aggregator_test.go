package window

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerpulse/engine/internal/store"
)

// fakeClock is a manually advanced clock for eviction tests.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

func payment(id string, amount uint64, at time.Time) store.Transaction {
	return store.Transaction{
		ID:          id,
		Amount:      amount,
		Source:      "rHb9CJAWyB4rj91VRWn96DkukG4bwdtyTh",
		Destination: "rPEPPER7kfTD9w2To4CQk6UCfuHM9c6GDY",
		ObservedAt:  at,
		Kind:        store.KindPayment,
	}
}

func TestAggregatorRollingScenario(t *testing.T) {
	clock := newFakeClock()
	t0 := clock.Now()
	agg := New(60*time.Second, WithClock(clock.Now))

	at := func(sec int) time.Time { return t0.Add(time.Duration(sec) * time.Second) }

	clock.Set(at(0))
	require.True(t, agg.Insert(payment("A", 100, at(0))))
	clock.Set(at(10))
	require.True(t, agg.Insert(payment("B", 200, at(10))))
	clock.Set(at(30))
	require.True(t, agg.Insert(payment("C", 9_000_000, at(30))))

	clock.Set(at(45))
	snap := agg.Snapshot()
	assert.Equal(t, 3, snap.Count)
	assert.Equal(t, uint64(9_000_300), snap.VolumeInWindow)
	assert.Equal(t, uint64(9_000_000), snap.MaxAmountInWindow)
	assert.InDelta(t, 3.0/60.0, snap.ThroughputPerSecond, 1e-9)

	// t=0 falls out; t=10 stays because the cutoff now-window (t=5) is inclusive,
	// so the volume is 9,000,000 + 200
	clock.Set(at(65))
	snap = agg.Snapshot()
	assert.Equal(t, 2, snap.Count)
	assert.Equal(t, uint64(9_000_200), snap.VolumeInWindow)

	clock.Set(at(71))
	snap = agg.Snapshot()
	assert.Equal(t, 1, snap.Count)
	assert.Equal(t, uint64(9_000_000), snap.VolumeInWindow)
	assert.Equal(t, uint64(9_000_000), snap.MaxAmountInWindow)
	assert.Equal(t, at(11), snap.WindowStart)
	assert.Equal(t, at(71), snap.WindowEnd)
}

func TestAggregatorEmptyWindow(t *testing.T) {
	clock := newFakeClock()
	agg := New(time.Minute, WithClock(clock.Now))

	snap := agg.Snapshot()
	assert.Zero(t, snap.Count)
	assert.Zero(t, snap.VolumeInWindow)
	assert.Zero(t, snap.MaxAmountInWindow)
	assert.Zero(t, snap.ThroughputPerSecond)
	assert.Empty(t, snap.Events)

	agg.Insert(payment("A", 500, clock.Now()))
	clock.Set(clock.Now().Add(2 * time.Minute))

	snap = agg.Snapshot()
	assert.Zero(t, snap.Count)
	assert.Zero(t, snap.VolumeInWindow)
	assert.Zero(t, snap.MaxAmountInWindow)
	assert.Zero(t, snap.ThroughputPerSecond)
}

func TestAggregatorBoundaryIsInclusive(t *testing.T) {
	clock := newFakeClock()
	t0 := clock.Now()
	agg := New(time.Minute, WithClock(clock.Now))

	agg.Insert(payment("A", 1, t0))
	clock.Set(t0.Add(time.Minute))
	assert.Equal(t, 1, agg.Snapshot().Count)

	clock.Set(t0.Add(time.Minute + time.Nanosecond))
	assert.Equal(t, 0, agg.Snapshot().Count)
}

func TestAggregatorRejectsDuplicates(t *testing.T) {
	clock := newFakeClock()
	agg := New(time.Minute, WithClock(clock.Now))

	require.True(t, agg.Insert(payment("A", 100, clock.Now())))
	assert.False(t, agg.Insert(payment("A", 100, clock.Now())))

	snap := agg.Snapshot()
	assert.Equal(t, 1, snap.Count)
	assert.Equal(t, uint64(100), snap.VolumeInWindow)

	// once evicted, the same hash may be observed again
	clock.Set(clock.Now().Add(2 * time.Minute))
	assert.True(t, agg.Insert(payment("A", 100, clock.Now())))
}

func TestAggregatorRejectsEventsOlderThanWindow(t *testing.T) {
	clock := newFakeClock()
	agg := New(time.Minute, WithClock(clock.Now))

	assert.False(t, agg.Insert(payment("old", 100, clock.Now().Add(-2*time.Minute))))
	assert.Equal(t, 0, agg.Len())
}

func TestAggregatorOrdersOutOfOrderInserts(t *testing.T) {
	clock := newFakeClock()
	t0 := clock.Now()
	clock.Set(t0.Add(30 * time.Second))
	agg := New(time.Minute, WithClock(clock.Now))

	agg.Insert(payment("late", 3, t0.Add(20*time.Second)))
	agg.Insert(payment("early", 1, t0.Add(5*time.Second)))
	agg.Insert(payment("tie-a", 2, t0.Add(10*time.Second)))
	agg.Insert(payment("tie-b", 2, t0.Add(10*time.Second)))

	snap := agg.Snapshot()
	ids := make([]string, 0, len(snap.Events))
	for _, ev := range snap.Events {
		ids = append(ids, ev.ID)
	}
	assert.Equal(t, []string{"early", "tie-a", "tie-b", "late"}, ids)
}

func TestAggregatorSnapshotIsIdempotent(t *testing.T) {
	clock := newFakeClock()
	agg := New(time.Minute, WithClock(clock.Now))
	agg.Insert(payment("A", 10, clock.Now()))
	agg.Insert(payment("B", 20, clock.Now()))

	first := agg.Snapshot()
	second := agg.Snapshot()
	assert.Equal(t, first, second)

	// callers own the returned slice
	first.Events[0].Amount = 999
	assert.Equal(t, uint64(10), agg.Snapshot().Events[0].Amount)
}

func TestAggregatorMatchesFullRecomputation(t *testing.T) {
	clock := newFakeClock()
	t0 := clock.Now()
	length := 30 * time.Second
	agg := New(length, WithClock(clock.Now))
	rng := rand.New(rand.NewSource(7))

	var all []store.Transaction
	for i := 0; i < 2000; i++ {
		now := t0.Add(time.Duration(i) * 250 * time.Millisecond)
		clock.Set(now)

		// a few arrive slightly late
		observed := now.Add(-time.Duration(rng.Intn(3)) * time.Second)
		tx := payment(fmt.Sprintf("tx-%d", i), uint64(rng.Intn(5_000_000)+1), observed)
		if agg.Insert(tx) {
			all = append(all, tx)
		}

		if i%37 != 0 {
			continue
		}
		snap := agg.Snapshot()
		cutoff := now.Add(-length)
		var count int
		var volume, max uint64
		for _, ev := range all {
			if ev.ObservedAt.Before(cutoff) {
				continue
			}
			count++
			volume += ev.Amount
			if ev.Amount > max {
				max = ev.Amount
			}
		}
		require.Equal(t, count, snap.Count, "step %d", i)
		require.Equal(t, volume, snap.VolumeInWindow, "step %d", i)
		require.Equal(t, max, snap.MaxAmountInWindow, "step %d", i)
	}
}

func TestAggregatorConcurrentUse(t *testing.T) {
	agg := New(time.Minute)

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 250; i++ {
				agg.Insert(payment(fmt.Sprintf("%d-%d", w, i), 1, time.Now()))
				if i%50 == 0 {
					agg.Snapshot()
				}
			}
		}(w)
	}
	wg.Wait()

	snap := agg.Snapshot()
	assert.Equal(t, 1000, snap.Count)
	assert.Equal(t, uint64(1000), snap.VolumeInWindow)
}

func TestNewDefaultsLength(t *testing.T) {
	assert.Equal(t, 5*time.Minute, New(0).Length())
}
