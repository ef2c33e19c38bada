package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/ledgerpulse/engine/internal/store"
)

func TestTrackerCounters(t *testing.T) {
	prom := NewCollectors("test")
	tr := NewTracker(prom)

	tr.RecordMessage(store.TransportPush)
	tr.RecordMessage(store.TransportPush)
	tr.RecordMessage(store.TransportPull)
	tr.RecordAccepted(store.Transaction{Amount: 300, Source: "rA", Destination: "rB", ObservedAt: time.Now()})
	tr.RecordAccepted(store.Transaction{Amount: 100, Source: "rA", Destination: "rC", ObservedAt: time.Now()})
	tr.RecordDuplicate()
	tr.RecordRejected("not_transaction")
	tr.RecordRejected("not_transaction")
	tr.RecordRejected("invalid_amount")
	tr.RecordWhale()
	tr.SetState(store.StateConnecting, store.StateLive)

	s := tr.Snapshot()
	assert.Equal(t, int64(3), s.MessagesTotal)
	assert.Equal(t, int64(2), s.PushMessages)
	assert.Equal(t, int64(1), s.PullMessages)
	assert.Equal(t, int64(2), s.Accepted)
	assert.Equal(t, int64(1), s.Duplicates)
	assert.Equal(t, int64(3), s.RejectedTotal)
	assert.Equal(t, int64(2), s.RejectedByCause["not_transaction"])
	assert.Equal(t, int64(1), s.Whales)
	assert.Equal(t, uint64(400), s.LifetimeVolume)
	assert.Equal(t, uint64(300), s.LargestEver)
	assert.Equal(t, uint64(1), s.UniqueSenders)
	assert.Equal(t, uint64(2), s.UniqueReceivers)
	assert.Equal(t, uint64(3), s.UniqueAccounts)
	assert.Equal(t, "live", s.State)
	assert.Greater(t, s.MessageRate, 0.0)

	assert.Equal(t, 2.0, testutil.ToFloat64(prom.MessagesReceived.WithLabelValues("push")))
	assert.Equal(t, 1.0, testutil.ToFloat64(prom.MessagesReceived.WithLabelValues("pull")))
	assert.Equal(t, 2.0, testutil.ToFloat64(prom.TxAccepted))
	assert.Equal(t, 2.0, testutil.ToFloat64(prom.DecodeErrors.WithLabelValues("not_transaction")))
	assert.Equal(t, 1.0, testutil.ToFloat64(prom.WhalesDetected))
}

func TestTrackerMessageRateDecaysWhenFeedGoesQuiet(t *testing.T) {
	tr := NewTracker(nil)
	for i := 0; i < 120; i++ {
		tr.RecordMessage(store.TransportPush)
	}

	// a full minute of uptime makes the live rate exactly 120/60
	tr.mu.Lock()
	tr.startTime = time.Now().Add(-10 * time.Minute)
	tr.mu.Unlock()
	assert.InDelta(t, 2.0, tr.Snapshot().MessageRate, 0.01)

	// no messages for five minutes
	tr.mu.Lock()
	for i := range tr.msgTimestamps {
		tr.msgTimestamps[i] = tr.msgTimestamps[i].Add(-5 * time.Minute)
	}
	tr.mu.Unlock()

	s := tr.Snapshot()
	assert.Zero(t, s.MessageRate)
	assert.Equal(t, int64(120), s.MessagesTotal)
}

func TestTrackerSnapshotIsCopy(t *testing.T) {
	tr := NewTracker(nil)
	tr.RecordRejected("malformed_json")

	s := tr.Snapshot()
	s.RejectedByCause["malformed_json"] = 99
	assert.Equal(t, int64(1), tr.Snapshot().RejectedByCause["malformed_json"])
}

func TestTrackerUniqueAccountEstimate(t *testing.T) {
	tr := NewTracker(nil)
	for i := 0; i < 5000; i++ {
		tr.RecordAccepted(store.Transaction{
			Amount:      1,
			Source:      fmt.Sprintf("rSender%d", i%1000),
			Destination: "rSink",
		})
	}

	s := tr.Snapshot()
	assert.InDelta(t, 1000, float64(s.UniqueSenders), 50)
	assert.Equal(t, uint64(1), s.UniqueReceivers)
}

func TestCollectorsObserve(t *testing.T) {
	prom := NewCollectors("")

	prom.ObserveTransition(store.StateLive, store.StateDegraded)
	assert.Equal(t, float64(store.StateDegraded), testutil.ToFloat64(prom.ConnectionState))
	assert.Equal(t, 1.0, testutil.ToFloat64(prom.StateTransitions.WithLabelValues("degraded")))

	prom.ObserveSnapshot(store.WindowSnapshot{
		Count:               4,
		VolumeInWindow:      2_500_000,
		MaxAmountInWindow:   2_000_000,
		ThroughputPerSecond: 0.5,
	})
	assert.Equal(t, 4.0, testutil.ToFloat64(prom.WindowEvents))
	assert.Equal(t, 2.5, testutil.ToFloat64(prom.WindowVolumeXRP))
	assert.Equal(t, 2.0, testutil.ToFloat64(prom.WindowMaxXRP))
	assert.Equal(t, 0.5, testutil.ToFloat64(prom.ThroughputPerSec))
}
