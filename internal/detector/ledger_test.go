package detector

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerpulse/engine/internal/store"
)

type ledgerClock struct{ t time.Time }

func (c *ledgerClock) now() time.Time { return c.t }

func whaleAt(id string, amount uint64, at time.Time) store.WhaleEvent {
	return store.WhaleEvent{Transaction: store.Transaction{ID: id, Amount: amount, ObservedAt: at}}
}

func TestWhaleLedgerSummary(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	clock := &ledgerClock{t: base}
	l := NewWhaleLedger(WithLedgerClock(clock.now))

	l.Record(whaleAt("A", 2_000_000_000_000, base.Add(-5*time.Hour)))
	l.Record(whaleAt("B", 3_000_000_000_000, base.Add(-5*time.Hour+10*time.Minute)))
	l.Record(whaleAt("C", 1_500_000_000_000, base))

	sum := l.Summary()
	assert.Equal(t, 3, sum.Count)
	assert.Equal(t, uint64(6_500_000_000_000), sum.TotalMoved)
	assert.Equal(t, uint64(3_000_000_000_000), sum.Largest)
	assert.Equal(t, base.Truncate(time.Hour).Add(-23*time.Hour), sum.Since)
	assert.Equal(t, base, sum.Until)

	require.Len(t, sum.Hourly, LedgerHours)
	last := sum.Hourly[LedgerHours-1]
	assert.Equal(t, base.Truncate(time.Hour), last.Hour)
	assert.Equal(t, 1, last.Count)
	assert.Equal(t, uint64(1_500_000_000_000), last.Volume)

	fiveAgo := sum.Hourly[LedgerHours-6]
	assert.Equal(t, 2, fiveAgo.Count)
	assert.Equal(t, uint64(5_000_000_000_000), fiveAgo.Volume)

	require.Len(t, sum.Recent, 3)
	assert.Equal(t, "C", sum.Recent[0].Transaction.ID)
	assert.Equal(t, "A", sum.Recent[2].Transaction.ID)
}

func TestWhaleLedgerAgesOutOldHours(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 15, 0, 0, time.UTC)
	clock := &ledgerClock{t: base}
	l := NewWhaleLedger(WithLedgerClock(clock.now))

	l.Record(whaleAt("old", 7, base))
	clock.t = base.Add(23 * time.Hour)
	assert.Equal(t, 1, l.Summary().Count)

	// the bucket slot is reused a day later
	clock.t = base.Add(24 * time.Hour)
	sum := l.Summary()
	assert.Zero(t, sum.Count)
	assert.Zero(t, sum.TotalMoved)
	assert.Empty(t, sum.Recent)

	l.Record(whaleAt("new", 9, clock.t))
	sum = l.Summary()
	assert.Equal(t, 1, sum.Count)
	assert.Equal(t, uint64(9), sum.TotalMoved)
	assert.Equal(t, uint64(9), sum.Largest)
}

func TestWhaleLedgerIgnoresOutOfRangeEvents(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := NewWhaleLedger(WithLedgerClock(func() time.Time { return base }))

	l.Record(whaleAt("stale", 1, base.Add(-24*time.Hour)))
	l.Record(whaleAt("future", 1, base.Add(2*time.Hour)))

	sum := l.Summary()
	assert.Zero(t, sum.Count)
	assert.Empty(t, sum.Recent)
}

func TestWhaleLedgerKeepsBoundedRecentList(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := NewWhaleLedger(WithLedgerClock(func() time.Time { return base }))

	for i := 0; i < LedgerRecent+5; i++ {
		l.Record(whaleAt(string(rune('a'+i)), uint64(i+1), base))
	}

	sum := l.Summary()
	assert.Equal(t, LedgerRecent+5, sum.Count)
	require.Len(t, sum.Recent, LedgerRecent)
	assert.Equal(t, string(rune('a'+LedgerRecent+4)), sum.Recent[0].Transaction.ID)
	assert.Equal(t, string(rune('a'+5)), sum.Recent[LedgerRecent-1].Transaction.ID)
}
