package publish

import (
	"sync"

	"github.com/ledgerpulse/engine/internal/store"
)

// Subscription receives published updates. The channel holds at most one
// update; an undelivered update is replaced by the next one, and its whales
// are carried forward so none are lost.
type Subscription struct {
	id string
	ch chan Update

	mu     sync.Mutex
	closed bool
}

// ID returns the subscription identifier used with Unsubscribe.
func (s *Subscription) ID() string {
	return s.id
}

// Updates returns the delivery channel. It is closed on Unsubscribe and when
// the publisher stops.
func (s *Subscription) Updates() <-chan Update {
	return s.ch
}

// deliver places u in the slot without blocking and reports whether an
// older update was replaced.
func (s *Subscription) deliver(u Update) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}

	replaced := false
	select {
	case old := <-s.ch:
		if len(old.Whales) > 0 {
			merged := make([]store.WhaleEvent, 0, len(old.Whales)+len(u.Whales))
			merged = append(merged, old.Whales...)
			u.Whales = append(merged, u.Whales...)
		}
		replaced = true
	default:
	}

	// only deliver sends, under s.mu, so the slot is free here
	s.ch <- u
	return replaced
}

func (s *Subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}
