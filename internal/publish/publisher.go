// Package publish emits window statistics to subscribers at a fixed cadence.
package publish

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ledgerpulse/engine/internal/detector"
	"github.com/ledgerpulse/engine/internal/ingest"
	"github.com/ledgerpulse/engine/internal/metrics"
	"github.com/ledgerpulse/engine/internal/store"
)

// Update is one published stats message. Subscribers must treat it as
// read-only; slices may be shared between subscribers.
type Update struct {
	Seq          uint64
	PublishedAt  time.Time
	State        store.ConnectionState
	Stale        bool
	Snapshot     store.WindowSnapshot
	Whales       []store.WhaleEvent
	WhaleSummary detector.WhaleSummary
	Feed         metrics.FeedStats
	Health       ingest.Health
}

// WindowSource supplies window snapshots.
type WindowSource interface {
	Snapshot() store.WindowSnapshot
}

// HealthSource supplies connection health.
type HealthSource interface {
	Health() ingest.Health
}

// FeedSource supplies lifetime feed counters.
type FeedSource interface {
	Snapshot() metrics.FeedStats
}

// Config holds publisher settings.
type Config struct {
	Interval         time.Duration
	MaxPendingWhales int
	// Ledger receives every pushed whale. A fresh ledger is used when nil.
	Ledger *detector.WhaleLedger
}

// Publisher reads the window on every tick and fans the result out to all
// subscribers. Slow subscribers only ever hold the newest update.
type Publisher struct {
	cfg    Config
	window WindowSource
	health HealthSource
	feed   FeedSource
	prom   *metrics.Collectors
	ledger *detector.WhaleLedger

	mu       sync.Mutex
	subs     map[string]*Subscription
	pending  []store.WhaleEvent
	seq      uint64
	latest   Update
	hasLast  bool
	lastGood store.WindowSnapshot
}

// New creates a Publisher. feed and prom may be nil.
func New(cfg Config, window WindowSource, health HealthSource, feed FeedSource, prom *metrics.Collectors) *Publisher {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.MaxPendingWhales <= 0 {
		cfg.MaxPendingWhales = 256
	}
	if cfg.Ledger == nil {
		cfg.Ledger = detector.NewWhaleLedger()
	}
	return &Publisher{
		cfg:    cfg,
		window: window,
		health: health,
		feed:   feed,
		prom:   prom,
		ledger: cfg.Ledger,
		subs:   make(map[string]*Subscription),
	}
}

// Run publishes every interval until ctx is cancelled, then closes every
// subscription.
func (p *Publisher) Run(ctx context.Context) error {
	slog.Info("publisher_started", "interval", p.cfg.Interval)

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.closeAll()
			slog.Info("publisher_stopped")
			return nil
		case <-ticker.C:
			p.Publish()
		}
	}
}

// Publish emits one update immediately and returns it.
func (p *Publisher) Publish() Update {
	snap := p.window.Snapshot()
	health := p.health.Health()
	stale := health.State != store.StateLive &&
		!(health.State == store.StateDegraded && health.LastPollOK)

	var feed metrics.FeedStats
	if p.feed != nil {
		feed = p.feed.Snapshot()
	}
	summary := p.ledger.Summary()

	p.mu.Lock()
	if snap.Count > 0 {
		p.lastGood = snap
	} else if stale && p.lastGood.Count > 0 {
		snap = p.lastGood
	}

	whales := p.pending
	p.pending = nil
	p.seq++

	u := Update{
		Seq:          p.seq,
		PublishedAt:  time.Now(),
		State:        health.State,
		Stale:        stale,
		Snapshot:     snap,
		Whales:       whales,
		WhaleSummary: summary,
		Feed:         feed,
		Health:       health,
	}
	p.latest = u
	p.hasLast = true

	subs := make([]*Subscription, 0, len(p.subs))
	for _, s := range p.subs {
		subs = append(subs, s)
	}
	p.mu.Unlock()

	replaced := 0
	for _, s := range subs {
		if s.deliver(u) {
			replaced++
		}
	}

	if p.prom != nil {
		p.prom.UpdatesPublished.Inc()
		p.prom.UpdatesReplaced.Add(float64(replaced))
		p.prom.ObserveSnapshot(snap)
	}

	slog.Debug("stats_published",
		"seq", u.Seq,
		"state", u.State.String(),
		"stale", u.Stale,
		"count", snap.Count,
		"whales", len(whales),
		"subscribers", len(subs),
	)
	return u
}

// PushWhale records ev in the whale ledger and queues it for the next
// update. When the queue is full the oldest event is dropped.
func (p *Publisher) PushWhale(ev store.WhaleEvent) {
	p.ledger.Record(ev)

	p.mu.Lock()
	var dropped *store.WhaleEvent
	if len(p.pending) >= p.cfg.MaxPendingWhales {
		d := p.pending[0]
		dropped = &d
		p.pending = p.pending[1:]
	}
	p.pending = append(p.pending, ev)
	p.mu.Unlock()

	if dropped != nil {
		slog.Warn("whale_queue_full", "dropped_tx", dropped.Transaction.ID, "limit", p.cfg.MaxPendingWhales)
		if p.prom != nil {
			p.prom.WhalesDropped.Inc()
		}
	}
}

// Latest returns the most recently published update.
func (p *Publisher) Latest() (Update, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.latest, p.hasLast
}

// WhaleSummary returns whale activity over the last day.
func (p *Publisher) WhaleSummary() detector.WhaleSummary {
	return p.ledger.Summary()
}

// Subscribe registers a new subscriber. The latest update, without its
// whales, is delivered straight away so new clients do not wait a tick.
func (p *Publisher) Subscribe() *Subscription {
	s := &Subscription{
		id: uuid.NewString(),
		ch: make(chan Update, 1),
	}

	p.mu.Lock()
	p.subs[s.id] = s
	count := len(p.subs)
	latest, ok := p.latest, p.hasLast
	p.mu.Unlock()

	if ok {
		latest.Whales = nil
		s.deliver(latest)
	}
	if p.prom != nil {
		p.prom.Subscribers.Set(float64(count))
	}
	slog.Debug("subscriber_added", "id", s.id, "total", count)
	return s
}

// Unsubscribe removes the subscriber and closes its channel.
func (p *Publisher) Unsubscribe(id string) {
	p.mu.Lock()
	s, ok := p.subs[id]
	delete(p.subs, id)
	count := len(p.subs)
	p.mu.Unlock()

	if !ok {
		return
	}
	s.close()
	if p.prom != nil {
		p.prom.Subscribers.Set(float64(count))
	}
	slog.Debug("subscriber_removed", "id", id, "total", count)
}

// SubscriberCount returns the number of live subscriptions.
func (p *Publisher) SubscriberCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subs)
}

func (p *Publisher) closeAll() {
	p.mu.Lock()
	subs := p.subs
	p.subs = make(map[string]*Subscription)
	p.mu.Unlock()

	for _, s := range subs {
		s.close()
	}
	if p.prom != nil {
		p.prom.Subscribers.Set(0)
	}
}
