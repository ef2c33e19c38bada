// Package wire defines the JSON shapes sent to dashboards, sinks and HTTP
// clients.
package wire

import (
	"time"

	"github.com/ledgerpulse/engine/internal/detector"
	"github.com/ledgerpulse/engine/internal/ingest"
	"github.com/ledgerpulse/engine/internal/publish"
	"github.com/ledgerpulse/engine/internal/store"
)

// Stats is the JSON form of a published update.
type Stats struct {
	Seq         uint64       `json:"seq"`
	PublishedAt time.Time    `json:"published_at"`
	State       string       `json:"state"`
	Stale       bool         `json:"stale"`
	Window      Window       `json:"window"`
	Whales      []Whale      `json:"whales"`
	Whales24h   WhaleSummary `json:"whales_24h"`
	Feed        Feed         `json:"feed"`
}

// Window summarises the sliding window. Recent holds at most the configured
// number of newest events; Count is always the full count.
type Window struct {
	Start               time.Time     `json:"start"`
	End                 time.Time     `json:"end"`
	Count               int           `json:"count"`
	ThroughputPerSecond float64       `json:"throughput_per_second"`
	VolumeDrops         uint64        `json:"volume_drops"`
	VolumeXRP           string        `json:"volume_xrp"`
	MaxAmountDrops      uint64        `json:"max_amount_drops"`
	MaxAmountXRP        string        `json:"max_amount_xrp"`
	Recent              []Transaction `json:"recent"`
}

// Transaction is one payment.
type Transaction struct {
	Hash        string    `json:"hash"`
	From        string    `json:"from"`
	To          string    `json:"to"`
	AmountDrops uint64    `json:"amount_drops"`
	AmountXRP   string    `json:"amount_xrp"`
	ObservedAt  time.Time `json:"observed_at"`
	Transport   string    `json:"transport"`
	LedgerIndex uint64    `json:"ledger_index,omitempty"`
}

// Whale is a payment at or above the threshold.
type Whale struct {
	Transaction
	ThresholdXRP string `json:"threshold_xrp"`
	FromLabel    string `json:"from_label,omitempty"`
	ToLabel      string `json:"to_label,omitempty"`
}

// WhaleSummary is whale activity over the last day. Recent is only filled
// by the /api/whales endpoint.
type WhaleSummary struct {
	Since           time.Time `json:"since"`
	Until           time.Time `json:"until"`
	Count           int       `json:"count"`
	TotalMovedDrops uint64    `json:"total_moved_drops"`
	TotalMovedXRP   string    `json:"total_moved_xrp"`
	LargestDrops    uint64    `json:"largest_drops"`
	LargestXRP      string    `json:"largest_xrp"`
	Hourly          []Hour    `json:"hourly"`
	Recent          []Whale   `json:"recent,omitempty"`
}

// Hour is one hourly bucket of whale activity.
type Hour struct {
	Hour        time.Time `json:"hour"`
	Count       int       `json:"count"`
	VolumeDrops uint64    `json:"volume_drops"`
	VolumeXRP   string    `json:"volume_xrp"`
}

// Feed carries lifetime counters.
type Feed struct {
	MessagesTotal  int64            `json:"messages_total"`
	Accepted       int64            `json:"accepted"`
	Duplicates     int64            `json:"duplicates"`
	Rejected       map[string]int64 `json:"rejected"`
	Whales         int64            `json:"whales"`
	LifetimeVolume string           `json:"lifetime_volume_xrp"`
	LargestEverXRP string           `json:"largest_ever_xrp"`
	UniqueAccounts uint64           `json:"unique_accounts"`
	MessageRate    float64          `json:"message_rate"`
	UptimeSeconds  int64            `json:"uptime_seconds"`
	Polling        bool             `json:"polling"`
	Endpoint       string           `json:"endpoint,omitempty"`
	LastPollAt     *time.Time       `json:"last_poll_at,omitempty"`
	LastMessageAt  *time.Time       `json:"last_message_at,omitempty"`
	Reconnects     int              `json:"reconnects"`
}

// Health is the /healthz body.
type Health struct {
	State         string     `json:"state"`
	Healthy       bool       `json:"healthy"`
	Endpoint      string     `json:"endpoint,omitempty"`
	Polling       bool       `json:"polling"`
	LastPollOK    bool       `json:"last_poll_ok"`
	LastPollAt    *time.Time `json:"last_poll_at,omitempty"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
	Reconnects    int        `json:"reconnects"`
}

// NewStats converts u. recentLimit caps the number of window events
// included; zero omits them.
func NewStats(u publish.Update, recentLimit int) Stats {
	snap := u.Snapshot

	events := snap.Events
	if recentLimit < 0 {
		recentLimit = 0
	}
	if len(events) > recentLimit {
		events = events[len(events)-recentLimit:]
	}
	recent := make([]Transaction, 0, len(events))
	// newest first
	for i := len(events) - 1; i >= 0; i-- {
		recent = append(recent, NewTransaction(events[i]))
	}

	whales := make([]Whale, 0, len(u.Whales))
	for _, ev := range u.Whales {
		whales = append(whales, NewWhale(ev))
	}

	return Stats{
		Seq:         u.Seq,
		PublishedAt: u.PublishedAt,
		State:       u.State.String(),
		Stale:       u.Stale,
		Window: Window{
			Start:               snap.WindowStart,
			End:                 snap.WindowEnd,
			Count:               snap.Count,
			ThroughputPerSecond: snap.ThroughputPerSecond,
			VolumeDrops:         snap.VolumeInWindow,
			VolumeXRP:           ingest.FormatXRP(snap.VolumeInWindow),
			MaxAmountDrops:      snap.MaxAmountInWindow,
			MaxAmountXRP:        ingest.FormatXRP(snap.MaxAmountInWindow),
			Recent:              recent,
		},
		Whales:    whales,
		Whales24h: NewWhaleSummary(u.WhaleSummary, false),
		Feed: Feed{
			MessagesTotal:  u.Feed.MessagesTotal,
			Accepted:       u.Feed.Accepted,
			Duplicates:     u.Feed.Duplicates,
			Rejected:       u.Feed.RejectedByCause,
			Whales:         u.Feed.Whales,
			LifetimeVolume: ingest.FormatXRP(u.Feed.LifetimeVolume),
			LargestEverXRP: ingest.FormatXRP(u.Feed.LargestEver),
			UniqueAccounts: u.Feed.UniqueAccounts,
			MessageRate:    u.Feed.MessageRate,
			UptimeSeconds:  int64(u.Feed.Uptime.Seconds()),
			Polling:        u.Health.Polling,
			Endpoint:       u.Health.Endpoint,
			LastPollAt:     optionalTime(u.Health.LastPollAt),
			LastMessageAt:  optionalTime(u.Health.LastMessageAt),
			Reconnects:     u.Health.Reconnects,
		},
	}
}

// NewTransaction converts tx.
func NewTransaction(tx store.Transaction) Transaction {
	return Transaction{
		Hash:        tx.ID,
		From:        tx.Source,
		To:          tx.Destination,
		AmountDrops: tx.Amount,
		AmountXRP:   ingest.FormatXRP(tx.Amount),
		ObservedAt:  tx.ObservedAt,
		Transport:   tx.Transport.String(),
		LedgerIndex: tx.LedgerIndex,
	}
}

// NewWhale converts ev.
func NewWhale(ev store.WhaleEvent) Whale {
	return Whale{
		Transaction:  NewTransaction(ev.Transaction),
		ThresholdXRP: ingest.FormatXRP(ev.Threshold),
		FromLabel:    ev.SourceLabel,
		ToLabel:      ev.DestinationLabel,
	}
}

// NewWhaleSummary converts s, including the recent whales when withRecent
// is set.
func NewWhaleSummary(s detector.WhaleSummary, withRecent bool) WhaleSummary {
	out := WhaleSummary{
		Since:           s.Since,
		Until:           s.Until,
		Count:           s.Count,
		TotalMovedDrops: s.TotalMoved,
		TotalMovedXRP:   ingest.FormatXRP(s.TotalMoved),
		LargestDrops:    s.Largest,
		LargestXRP:      ingest.FormatXRP(s.Largest),
		Hourly:          make([]Hour, 0, len(s.Hourly)),
	}
	for _, h := range s.Hourly {
		out.Hourly = append(out.Hourly, Hour{
			Hour:        h.Hour,
			Count:       h.Count,
			VolumeDrops: h.Volume,
			VolumeXRP:   ingest.FormatXRP(h.Volume),
		})
	}
	if withRecent {
		out.Recent = make([]Whale, 0, len(s.Recent))
		for _, ev := range s.Recent {
			out.Recent = append(out.Recent, NewWhale(ev))
		}
	}
	return out
}

// NewHealth converts h. The feed is healthy while live, or while degraded
// with a working poll fallback.
func NewHealth(h ingest.Health) Health {
	return Health{
		State:         h.State.String(),
		Healthy:       h.State == store.StateLive || (h.State == store.StateDegraded && h.LastPollOK),
		Endpoint:      h.Endpoint,
		Polling:       h.Polling,
		LastPollOK:    h.LastPollOK,
		LastPollAt:    optionalTime(h.LastPollAt),
		LastMessageAt: optionalTime(h.LastMessageAt),
		Reconnects:    h.Reconnects,
	}
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
