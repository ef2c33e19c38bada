package ingest

import (
	"math/rand"
	"time"
)

// Reconnection shape. Initial and maximum delays come from configuration.
const (
	BackoffFactor = 2.0
	JitterPercent = 0.2
)

// Backoff produces exponentially growing, jittered reconnect delays.
// It is not safe for concurrent use; the Manager owns it.
type Backoff struct {
	initial time.Duration
	max     time.Duration
	current time.Duration
	rand    func() float64
}

// NewBackoff creates a Backoff starting at initial and capped at max.
func NewBackoff(initial, max time.Duration) *Backoff {
	if initial <= 0 {
		initial = time.Second
	}
	if max < initial {
		max = initial
	}
	return &Backoff{
		initial: initial,
		max:     max,
		current: initial,
		rand:    rand.Float64,
	}
}

// Next returns the delay before the next attempt and grows the base delay
// for the one after.
func (b *Backoff) Next() time.Duration {
	jitter := time.Duration(float64(b.current) * JitterPercent * (b.rand()*2 - 1))
	wait := b.current + jitter
	if wait > b.max {
		wait = b.max
	}

	b.current = time.Duration(float64(b.current) * BackoffFactor)
	if b.current > b.max {
		b.current = b.max
	}
	return wait
}

// Reset returns the delay to its initial value after a successful connect.
func (b *Backoff) Reset() {
	b.current = b.initial
}
