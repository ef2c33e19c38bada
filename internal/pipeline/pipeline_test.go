package pipeline

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerpulse/engine/internal/detector"
	"github.com/ledgerpulse/engine/internal/ingest"
	"github.com/ledgerpulse/engine/internal/metrics"
	"github.com/ledgerpulse/engine/internal/store"
	"github.com/ledgerpulse/engine/internal/window"
)

const (
	genesis = "rHb9CJAWyB4rj91VRWn96DkukG4bwdtyTh"
	pepper  = "rPEPPER7kfTD9w2To4CQk6UCfuHM9c6GDY"
)

type whaleRecorder struct {
	mu     sync.Mutex
	events []store.WhaleEvent
}

func (w *whaleRecorder) PushWhale(ev store.WhaleEvent) {
	w.mu.Lock()
	w.events = append(w.events, ev)
	w.mu.Unlock()
}

func pushFrame(hash string, drops uint64) []byte {
	return []byte(fmt.Sprintf(`{
		"type": "transaction",
		"validated": true,
		"engine_result": "tesSUCCESS",
		"transaction": {
			"TransactionType": "Payment",
			"Account": %q,
			"Destination": %q,
			"Amount": "%d",
			"hash": %q
		}
	}`, genesis, pepper, drops, hash))
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

func TestPipelineRollingScenario(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	c := &clock{t: t0}
	at := func(sec int) time.Time { return t0.Add(time.Duration(sec) * time.Second) }

	agg := window.New(60*time.Second, window.WithClock(c.Now))
	dec := ingest.NewDecoder(ingest.WithStrictAddresses(true), ingest.WithDecodeClock(c.Now))
	whales := &whaleRecorder{}
	tracker := metrics.NewTracker(metrics.NewCollectors("test"))
	p := New(dec, agg, detector.NewDetector(5_000_000), whales, tracker)

	c.Set(at(0))
	p.Handle(pushFrame("A", 100), store.TransportPush)
	c.Set(at(10))
	p.Handle(pushFrame("B", 200), store.TransportPush)
	c.Set(at(30))
	p.Handle(pushFrame("C", 9_000_000), store.TransportPush)

	c.Set(at(45))
	snap := agg.Snapshot()
	assert.Equal(t, uint64(9_000_300), snap.VolumeInWindow)
	assert.Equal(t, uint64(9_000_000), snap.MaxAmountInWindow)
	require.Len(t, whales.events, 1)
	assert.Equal(t, "C", whales.events[0].Transaction.ID)
	assert.Equal(t, "Genesis Account", whales.events[0].SourceLabel)
	assert.Equal(t, "Ripple (1)", whales.events[0].DestinationLabel)

	// observedAt >= now-window keeps t=10 at t=65 while t=0 expires
	c.Set(at(65))
	assert.Equal(t, uint64(9_000_200), agg.Snapshot().VolumeInWindow)

	c.Set(at(71))
	snap = agg.Snapshot()
	assert.Equal(t, uint64(9_000_000), snap.VolumeInWindow)
	assert.Equal(t, 1, snap.Count)

	feed := tracker.Snapshot()
	assert.Equal(t, int64(3), feed.Accepted)
	assert.Equal(t, int64(1), feed.Whales)
}

func TestPipelineCountsRejectsAndDuplicates(t *testing.T) {
	agg := window.New(time.Minute)
	tracker := metrics.NewTracker(nil)
	whales := &whaleRecorder{}
	p := New(ingest.NewDecoder(), agg, detector.NewDetector(1_000_000_000_000), whales, tracker)

	p.Handle([]byte(`{"type":"response","status":"success"}`), store.TransportPush)
	p.Handle([]byte(`not json`), store.TransportPush)
	p.Handle(pushFrame("dup", 10), store.TransportPush)
	p.Handle(pushFrame("dup", 10), store.TransportPush)

	// the same payment seen by the poller is deduplicated too
	p.Handle([]byte(`{"hash":"DUP","source":"`+genesis+`","destination":"`+pepper+`","delivered_amount":"10"}`), store.TransportPull)

	feed := tracker.Snapshot()
	assert.Equal(t, int64(5), feed.MessagesTotal)
	assert.Equal(t, int64(1), feed.PullMessages)
	assert.Equal(t, int64(1), feed.Accepted)
	assert.Equal(t, int64(2), feed.Duplicates)
	assert.Equal(t, int64(1), feed.RejectedByCause["not_transaction"])
	assert.Equal(t, int64(1), feed.RejectedByCause["malformed_json"])
	assert.Equal(t, 1, agg.Len())
	assert.Empty(t, whales.events)
}

func TestPipelineNeverInsertsRejectedAmounts(t *testing.T) {
	agg := window.New(time.Minute)
	p := New(ingest.NewDecoder(), agg, detector.NewDetector(1), &whaleRecorder{}, nil)

	for i, amount := range []string{`"-1"`, `"1.5"`, `{"currency":"USD","value":"5","issuer":"` + pepper + `"}`, `"abc"`} {
		raw := fmt.Sprintf(`{"type":"transaction","transaction":{"TransactionType":"Payment","Account":%q,"Destination":%q,"Amount":%s,"hash":"N%d"}}`,
			genesis, pepper, amount, i)
		p.Handle([]byte(raw), store.TransportPush)
	}

	assert.Zero(t, agg.Len())
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "ABC", truncateID("ABC"))
	assert.Equal(t, "0123456789AB...", truncateID("0123456789ABCDEF"))
}
