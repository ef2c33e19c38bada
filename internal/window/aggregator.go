// Package window maintains rolling statistics over a fixed lookback horizon.
package window

import (
	"sync"
	"time"

	"github.com/ledgerpulse/engine/internal/store"
)

// compactThreshold is the number of evicted slots tolerated at the head of
// the queue before the backing slice is copied down.
const compactThreshold = 4096

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithClock overrides the wall clock used for eviction.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		a.now = now
	}
}

// Aggregator holds the transactions observed within the last window length
// and keeps volume and maximum up to date incrementally.
//
// Insert and Snapshot are safe for concurrent use.
type Aggregator struct {
	mu     sync.Mutex
	length time.Duration
	now    func() time.Time

	// events[head:] is the live window, ordered by ObservedAt
	events []store.Transaction
	head   int
	ids    map[string]struct{}

	volume   uint64
	max      uint64
	maxDirty bool
}

// New creates an Aggregator with the given window length.
func New(length time.Duration, opts ...Option) *Aggregator {
	if length <= 0 {
		length = 5 * time.Minute
	}
	a := &Aggregator{
		length: length,
		now:    time.Now,
		events: make([]store.Transaction, 0, 1024),
		ids:    make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Length returns the configured window length.
func (a *Aggregator) Length() time.Duration {
	return a.length
}

// Insert evicts stale events and then adds tx. It returns false when tx is a
// duplicate of an event still in the window or is already older than the
// window start.
func (a *Aggregator) Insert(tx store.Transaction) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	cutoff := a.sweep(a.now())

	if tx.ObservedAt.Before(cutoff) {
		return false
	}
	if _, dup := a.ids[tx.ID]; dup {
		return false
	}

	a.events = append(a.events, tx)
	// Keep ObservedAt order; equal timestamps stay in arrival order.
	for i := len(a.events) - 1; i > a.head && a.events[i-1].ObservedAt.After(tx.ObservedAt); i-- {
		a.events[i], a.events[i-1] = a.events[i-1], a.events[i]
	}

	a.ids[tx.ID] = struct{}{}
	a.volume += tx.Amount
	if tx.Amount > a.max {
		a.max = tx.Amount
	}
	return true
}

// Snapshot evicts stale events and returns a copy of the current window.
func (a *Aggregator) Snapshot() store.WindowSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	cutoff := a.sweep(now)

	live := a.events[a.head:]
	events := make([]store.Transaction, len(live))
	copy(events, live)

	snap := store.WindowSnapshot{
		WindowStart:       cutoff,
		WindowEnd:         now,
		Events:            events,
		Count:             len(events),
		VolumeInWindow:    a.volume,
		MaxAmountInWindow: a.max,
	}
	if len(events) > 0 {
		snap.ThroughputPerSecond = float64(len(events)) / a.length.Seconds()
	}
	return snap
}

// Len returns the number of events currently held, without sweeping.
func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.events) - a.head
}

// sweep drops every event observed before now-length and returns that cutoff.
// Must be called with lock held.
func (a *Aggregator) sweep(now time.Time) time.Time {
	cutoff := now.Add(-a.length)

	for a.head < len(a.events) {
		ev := a.events[a.head]
		if !ev.ObservedAt.Before(cutoff) {
			break
		}
		a.volume -= ev.Amount
		if ev.Amount == a.max {
			a.maxDirty = true
		}
		delete(a.ids, ev.ID)
		a.events[a.head] = store.Transaction{}
		a.head++
	}

	if a.head == len(a.events) {
		a.events = a.events[:0]
		a.head = 0
		a.volume = 0
		a.max = 0
		a.maxDirty = false
	} else if a.head > compactThreshold && a.head*2 > len(a.events) {
		n := copy(a.events, a.events[a.head:])
		clear(a.events[n:])
		a.events = a.events[:n]
		a.head = 0
	}

	if a.maxDirty {
		a.recomputeMax()
	}
	return cutoff
}

// recomputeMax rescans the live window. Must be called with lock held.
func (a *Aggregator) recomputeMax() {
	var max uint64
	for _, ev := range a.events[a.head:] {
		if ev.Amount > max {
			max = ev.Amount
		}
	}
	a.max = max
	a.maxDirty = false
}
