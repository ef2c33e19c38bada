// Package detector classifies canonical transactions as whale events.
package detector

import (
	"github.com/ledgerpulse/engine/internal/store"
)

// Classify returns a WhaleEvent when tx.Amount is at or above threshold, and
// nil otherwise. It has no side effects.
func Classify(tx store.Transaction, threshold uint64) *store.WhaleEvent {
	if tx.Amount < threshold {
		return nil
	}
	return &store.WhaleEvent{
		Transaction: tx,
		Threshold:   threshold,
	}
}

// Detector applies the configured whale threshold and attaches known-account
// labels to the events it produces.
type Detector struct {
	threshold uint64
}

// NewDetector creates a Detector for threshold, in drops.
func NewDetector(threshold uint64) *Detector {
	return &Detector{threshold: threshold}
}

// Threshold returns the configured threshold in drops.
func (d *Detector) Threshold() uint64 {
	return d.threshold
}

// Detect classifies tx and labels the resulting whale, if any. Known
// accounts win over names supplied by the feed.
func (d *Detector) Detect(tx store.Transaction) *store.WhaleEvent {
	ev := Classify(tx, d.threshold)
	if ev == nil {
		return nil
	}
	ev.SourceLabel = labelOr(tx.Source, tx.SourceName)
	ev.DestinationLabel = labelOr(tx.Destination, tx.DestinationName)
	return ev
}

func labelOr(address, fallback string) string {
	if label := LabelFor(address); label != "" {
		return label
	}
	return fallback
}
