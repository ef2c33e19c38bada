package detector

import (
	"sync"
	"time"

	"github.com/ledgerpulse/engine/internal/store"
)

const (
	// LedgerHours is the number of hourly buckets kept by a WhaleLedger.
	LedgerHours = 24
	// LedgerRecent is the number of most recent whales kept for display.
	LedgerRecent = 20
)

// HourlyVolume is one hour of whale activity.
type HourlyVolume struct {
	Hour   time.Time // start of the hour
	Count  int
	Volume uint64 // drops
}

// WhaleSummary describes whale activity over the last LedgerHours hours,
// counting the current partial hour.
type WhaleSummary struct {
	Since      time.Time
	Until      time.Time
	Count      int
	TotalMoved uint64             // drops
	Largest    uint64             // drops
	Hourly     []HourlyVolume     // oldest first, always LedgerHours entries
	Recent     []store.WhaleEvent // newest first
}

type hourBucket struct {
	hour    time.Time
	count   int
	volume  uint64
	largest uint64
}

// WhaleLedger aggregates whale events into a ring of hourly buckets. It holds
// a fixed amount of memory no matter how many whales it sees.
type WhaleLedger struct {
	mu      sync.Mutex
	buckets [LedgerHours]hourBucket
	recent  []store.WhaleEvent
	now     func() time.Time
}

// LedgerOption configures a WhaleLedger.
type LedgerOption func(*WhaleLedger)

// WithLedgerClock overrides the clock used to age buckets.
func WithLedgerClock(now func() time.Time) LedgerOption {
	return func(l *WhaleLedger) { l.now = now }
}

// NewWhaleLedger creates an empty ledger.
func NewWhaleLedger(opts ...LedgerOption) *WhaleLedger {
	l := &WhaleLedger{
		recent: make([]store.WhaleEvent, 0, LedgerRecent),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Record adds ev to the bucket of its ObservedAt hour. Events outside the
// tracked hours are ignored.
func (l *WhaleLedger) Record(ev store.WhaleEvent) {
	hour := ev.Transaction.ObservedAt.Truncate(time.Hour)

	l.mu.Lock()
	defer l.mu.Unlock()

	current := l.now().Truncate(time.Hour)
	if hour.After(current) || !hour.After(current.Add(-LedgerHours*time.Hour)) {
		return
	}

	b := &l.buckets[slot(hour)]
	if !b.hour.Equal(hour) {
		*b = hourBucket{hour: hour}
	}
	b.count++
	b.volume += ev.Transaction.Amount
	if ev.Transaction.Amount > b.largest {
		b.largest = ev.Transaction.Amount
	}

	if len(l.recent) == LedgerRecent {
		copy(l.recent[1:], l.recent[:LedgerRecent-1])
		l.recent[0] = ev
	} else {
		l.recent = append([]store.WhaleEvent{ev}, l.recent...)
	}
}

// Summary returns the activity of the last LedgerHours hours.
func (l *WhaleLedger) Summary() WhaleSummary {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	current := now.Truncate(time.Hour)
	since := current.Add(-(LedgerHours - 1) * time.Hour)

	sum := WhaleSummary{
		Since:  since,
		Until:  now,
		Hourly: make([]HourlyVolume, LedgerHours),
	}
	for i := range LedgerHours {
		hour := since.Add(time.Duration(i) * time.Hour)
		sum.Hourly[i].Hour = hour

		b := l.buckets[slot(hour)]
		if !b.hour.Equal(hour) {
			continue
		}
		sum.Hourly[i].Count = b.count
		sum.Hourly[i].Volume = b.volume
		sum.Count += b.count
		sum.TotalMoved += b.volume
		if b.largest > sum.Largest {
			sum.Largest = b.largest
		}
	}

	sum.Recent = make([]store.WhaleEvent, 0, len(l.recent))
	for _, ev := range l.recent {
		if !ev.Transaction.ObservedAt.Before(since) {
			sum.Recent = append(sum.Recent, ev)
		}
	}
	return sum
}

func slot(hour time.Time) int {
	h := hour.Unix() / int64(time.Hour/time.Second)
	return int(((h % LedgerHours) + LedgerHours) % LedgerHours)
}
