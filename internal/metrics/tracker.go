// Package metrics provides real-time feed metrics for the engine.
package metrics

import (
	"sync"
	"time"

	"github.com/axiomhq/hyperloglog"

	"github.com/ledgerpulse/engine/internal/store"
)

// rateWindow is the lookback used for the instantaneous message rate.
const rateWindow = 60 * time.Second

// FeedStats is a point-in-time view of lifetime feed counters.
type FeedStats struct {
	MessagesTotal   int64
	PushMessages    int64
	PullMessages    int64
	Accepted        int64
	Duplicates      int64
	RejectedTotal   int64
	RejectedByCause map[string]int64
	Whales          int64
	LifetimeVolume  uint64
	LargestEver     uint64
	UniqueSenders   uint64
	UniqueReceivers uint64
	UniqueAccounts  uint64
	MessageRate     float64 // messages per second over the last minute
	Uptime          time.Duration
	LastTxAt        time.Time
	State           string
}

// Tracker provides thread-safe lifetime counters. Unique account counts are
// HyperLogLog estimates. When Collectors are attached, every counter is
// mirrored to Prometheus.
type Tracker struct {
	mu             sync.Mutex
	messagesTotal  int64
	pushMessages   int64
	pullMessages   int64
	accepted       int64
	duplicates     int64
	rejected       map[string]int64
	whales         int64
	lifetimeVolume uint64
	largestEver    uint64
	sendersHLL     *hyperloglog.Sketch
	receiversHLL   *hyperloglog.Sketch
	accountsHLL    *hyperloglog.Sketch
	startTime      time.Time
	lastTxAt       time.Time
	msgTimestamps  []time.Time // for rate calculation
	state          store.ConnectionState
	prom           *Collectors
}

// NewTracker creates a Tracker. prom may be nil.
func NewTracker(prom *Collectors) *Tracker {
	return &Tracker{
		rejected:      make(map[string]int64),
		sendersHLL:    hyperloglog.New14(),
		receiversHLL:  hyperloglog.New14(),
		accountsHLL:   hyperloglog.New14(),
		startTime:     time.Now(),
		msgTimestamps: make([]time.Time, 0, 1024),
		prom:          prom,
	}
}

// Collectors returns the attached Prometheus collectors, or nil.
func (m *Tracker) Collectors() *Collectors {
	return m.prom
}

// RecordMessage counts one raw message from transport.
func (m *Tracker) RecordMessage(transport store.Transport) {
	now := time.Now()

	m.mu.Lock()
	m.messagesTotal++
	if transport == store.TransportPull {
		m.pullMessages++
	} else {
		m.pushMessages++
	}

	m.msgTimestamps = append(m.msgTimestamps, now)
	m.evictTimestamps(now)
	m.mu.Unlock()

	if m.prom != nil {
		m.prom.MessagesReceived.WithLabelValues(transport.String()).Inc()
	}
}

// RecordAccepted counts a payment that entered the window.
func (m *Tracker) RecordAccepted(tx store.Transaction) {
	m.mu.Lock()
	m.accepted++
	m.lifetimeVolume += tx.Amount
	if tx.Amount > m.largestEver {
		m.largestEver = tx.Amount
	}
	m.lastTxAt = tx.ObservedAt
	m.sendersHLL.Insert([]byte(tx.Source))
	m.receiversHLL.Insert([]byte(tx.Destination))
	m.accountsHLL.Insert([]byte(tx.Source))
	m.accountsHLL.Insert([]byte(tx.Destination))
	m.mu.Unlock()

	if m.prom != nil {
		m.prom.TxAccepted.Inc()
	}
}

// RecordDuplicate counts a payment already present in the window.
func (m *Tracker) RecordDuplicate() {
	m.mu.Lock()
	m.duplicates++
	m.mu.Unlock()

	if m.prom != nil {
		m.prom.TxDuplicates.Inc()
	}
}

// RecordRejected counts a decode failure under reason.
func (m *Tracker) RecordRejected(reason string) {
	m.mu.Lock()
	m.rejected[reason]++
	m.mu.Unlock()

	if m.prom != nil {
		m.prom.DecodeErrors.WithLabelValues(reason).Inc()
	}
}

// RecordWhale counts a whale event.
func (m *Tracker) RecordWhale() {
	m.mu.Lock()
	m.whales++
	m.mu.Unlock()

	if m.prom != nil {
		m.prom.WhalesDetected.Inc()
	}
}

// SetState matches the ingest.Manager transition callback.
func (m *Tracker) SetState(_, to store.ConnectionState) {
	m.mu.Lock()
	m.state = to
	m.mu.Unlock()
}

// evictTimestamps drops message times outside the rate window. Callers hold
// m.mu.
func (m *Tracker) evictTimestamps(now time.Time) {
	cutoff := now.Add(-rateWindow)
	drop := 0
	for drop < len(m.msgTimestamps) && !m.msgTimestamps[drop].After(cutoff) {
		drop++
	}
	if drop > 0 {
		m.msgTimestamps = append(m.msgTimestamps[:0], m.msgTimestamps[drop:]...)
	}
}

// Snapshot returns a point-in-time snapshot of the counters. It takes the
// write lock because sparse sketches merge their buffers on Estimate.
func (m *Tracker) Snapshot() FeedStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	// messages per second over the last minute
	now := time.Now()
	m.evictTimestamps(now)
	msgRate := 0.0
	if len(m.msgTimestamps) > 0 {
		elapsed := now.Sub(m.startTime)
		if elapsed > rateWindow {
			elapsed = rateWindow
		}
		if secs := elapsed.Seconds(); secs > 0 {
			msgRate = float64(len(m.msgTimestamps)) / secs
		}
	}

	rejected := make(map[string]int64, len(m.rejected))
	var rejectedTotal int64
	for k, v := range m.rejected {
		rejected[k] = v
		rejectedTotal += v
	}

	return FeedStats{
		MessagesTotal:   m.messagesTotal,
		PushMessages:    m.pushMessages,
		PullMessages:    m.pullMessages,
		Accepted:        m.accepted,
		Duplicates:      m.duplicates,
		RejectedTotal:   rejectedTotal,
		RejectedByCause: rejected,
		Whales:          m.whales,
		LifetimeVolume:  m.lifetimeVolume,
		LargestEver:     m.largestEver,
		UniqueSenders:   m.sendersHLL.Estimate(),
		UniqueReceivers: m.receiversHLL.Estimate(),
		UniqueAccounts:  m.accountsHLL.Estimate(),
		MessageRate:     msgRate,
		Uptime:          now.Sub(m.startTime),
		LastTxAt:        m.lastTxAt,
		State:           m.state.String(),
	}
}
