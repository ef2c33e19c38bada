// Package pipeline wires decoding, windowing and classification for each
// raw feed message.
package pipeline

import (
	"log/slog"
	"time"

	"github.com/ledgerpulse/engine/internal/detector"
	"github.com/ledgerpulse/engine/internal/ingest"
	"github.com/ledgerpulse/engine/internal/metrics"
	"github.com/ledgerpulse/engine/internal/store"
	"github.com/ledgerpulse/engine/internal/window"
)

// WhaleSink receives classified whale events.
type WhaleSink interface {
	PushWhale(ev store.WhaleEvent)
}

// Pipeline processes raw messages on behalf of the connection manager. Handle
// is called from a single goroutine.
type Pipeline struct {
	decoder  *ingest.Decoder
	window   *window.Aggregator
	detector *detector.Detector
	whales   WhaleSink
	tracker  *metrics.Tracker
}

// New creates a Pipeline. tracker may be nil.
func New(dec *ingest.Decoder, agg *window.Aggregator, det *detector.Detector, whales WhaleSink, tracker *metrics.Tracker) *Pipeline {
	return &Pipeline{
		decoder:  dec,
		window:   agg,
		detector: det,
		whales:   whales,
		tracker:  tracker,
	}
}

// Handle decodes raw, inserts the payment into the window and queues it as a
// whale when it crosses the threshold. It matches ingest.Handler.
func (p *Pipeline) Handle(raw []byte, transport store.Transport) {
	start := time.Now()
	if p.tracker != nil {
		p.tracker.RecordMessage(transport)
		if prom := p.tracker.Collectors(); prom != nil {
			defer func() { prom.HandleLatency.Observe(time.Since(start).Seconds()) }()
		}
	}

	tx, err := p.decoder.Decode(raw, transport)
	if err != nil {
		reason := ingest.ReasonOf(err)
		if p.tracker != nil {
			p.tracker.RecordRejected(reason)
		}
		slog.Debug("message_rejected", "transport", transport.String(), "reason", reason, "error", err)
		return
	}

	if !p.window.Insert(tx) {
		if p.tracker != nil {
			p.tracker.RecordDuplicate()
		}
		slog.Debug("transaction_skipped", "tx", truncateID(tx.ID), "transport", transport.String())
		return
	}
	if p.tracker != nil {
		p.tracker.RecordAccepted(tx)
	}

	ev := p.detector.Detect(tx)
	if ev == nil {
		return
	}
	if p.tracker != nil {
		p.tracker.RecordWhale()
	}
	slog.Info("whale_detected",
		"tx", truncateID(tx.ID),
		"xrp", ingest.FormatXRP(tx.Amount),
		"from", coalesceLabel(ev.SourceLabel, tx.Source),
		"to", coalesceLabel(ev.DestinationLabel, tx.Destination),
		"transport", transport.String(),
	)
	p.whales.PushWhale(*ev)
}

// truncateID shortens a transaction hash for display.
func truncateID(id string) string {
	if len(id) <= 12 {
		return id
	}
	return id[:12] + "..."
}

func coalesceLabel(label, address string) string {
	if label != "" {
		return label
	}
	return address
}
