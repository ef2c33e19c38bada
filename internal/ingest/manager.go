package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ledgerpulse/engine/internal/store"
)

// Stream is an open push subscription.
type Stream interface {
	// Next blocks until the next raw message arrives or the stream fails.
	Next() ([]byte, error)
	Close() error
	Endpoint() string
}

// PushTransport opens push subscriptions.
type PushTransport interface {
	Dial(ctx context.Context) (Stream, error)
}

// PullTransport fetches one batch of recent messages.
type PullTransport interface {
	Poll(ctx context.Context) ([]json.RawMessage, error)
}

// Handler receives every raw message along with the transport that
// delivered it. It is called from the Manager's goroutine only.
type Handler func(raw []byte, transport store.Transport)

// ManagerConfig holds the timing knobs of the connection state machine.
type ManagerConfig struct {
	ConnectTimeout      time.Duration
	PollInterval        time.Duration
	InitialBackoff      time.Duration
	MaxBackoff          time.Duration
	MaxImmediateRetries int
}

// Health is a point-in-time view of the feed connection.
type Health struct {
	State         store.ConnectionState
	Endpoint      string
	Polling       bool
	LastPollAt    time.Time
	LastPollOK    bool
	LastMessageAt time.Time
	Reconnects    int
}

var errRetriesExhausted = errors.New("immediate retries exhausted")

// Manager owns the feed connection. It prefers the push transport, falls
// back to polling while push is unavailable and hands raw messages to a
// Handler without looking at their contents.
type Manager struct {
	cfg     ManagerConfig
	push    PushTransport
	pull    PullTransport
	handle  Handler
	backoff *Backoff

	mu        sync.RWMutex
	health    Health
	observers []func(from, to store.ConnectionState)
}

// NewManager creates a Manager. pull may be nil, in which case Degraded only
// retries the push transport.
func NewManager(cfg ManagerConfig, push PushTransport, pull PullTransport, handle Handler) *Manager {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Minute
	}
	return &Manager{
		cfg:     cfg,
		push:    push,
		pull:    pull,
		handle:  handle,
		backoff: NewBackoff(cfg.InitialBackoff, cfg.MaxBackoff),
	}
}

// OnTransition registers fn to be called after every state change. Register
// observers before Run.
func (m *Manager) OnTransition(fn func(from, to store.ConnectionState)) {
	m.mu.Lock()
	m.observers = append(m.observers, fn)
	m.mu.Unlock()
}

// State returns the current connection state.
func (m *Manager) State() store.ConnectionState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.health.State
}

// Health returns a copy of the connection health.
func (m *Manager) Health() Health {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.health
}

// Run drives the connection until ctx is cancelled. Transport failures are
// never returned; the state is Disconnected when Run returns.
func (m *Manager) Run(ctx context.Context) error {
	defer m.setState(store.StateDisconnected)

	m.setState(store.StateConnecting)
	stream, err := m.dial(ctx)

	for {
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			stream, err = m.degraded(ctx)
			if err != nil {
				return nil
			}
		}

		m.backoff.Reset()
		m.mu.Lock()
		m.health.Endpoint = stream.Endpoint()
		m.mu.Unlock()
		m.setState(store.StateLive)

		m.consume(ctx, stream)
		if ctx.Err() != nil {
			return nil
		}

		m.mu.Lock()
		m.health.Reconnects++
		m.mu.Unlock()
		m.setState(store.StateConnecting)
		stream, err = m.reconnect(ctx)
	}
}

// dial makes one push attempt bounded by the connect timeout.
func (m *Manager) dial(ctx context.Context) (Stream, error) {
	dctx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
	defer cancel()

	stream, err := m.push.Dial(dctx)
	if err != nil {
		slog.Warn("ws_connect_failed", "error", err)
		return nil, err
	}
	slog.Info("ws_connected", "endpoint", stream.Endpoint())
	return stream, nil
}

// consume reads the stream until it fails or ctx is cancelled.
func (m *Manager) consume(ctx context.Context, stream Stream) {
	stop := context.AfterFunc(ctx, func() { stream.Close() })
	defer stop()
	defer stream.Close()

	for {
		raw, err := stream.Next()
		if err != nil {
			if ctx.Err() == nil {
				slog.Warn("ws_read_error", "endpoint", stream.Endpoint(), "error", err)
			}
			return
		}

		m.mu.Lock()
		m.health.LastMessageAt = time.Now()
		m.mu.Unlock()

		m.handle(raw, store.TransportPush)
	}
}

// reconnect retries the push transport a bounded number of times.
func (m *Manager) reconnect(ctx context.Context) (Stream, error) {
	for attempt := 1; attempt <= m.cfg.MaxImmediateRetries; attempt++ {
		wait := m.backoff.Next()
		slog.Debug("ws_waiting_backoff", "attempt", attempt, "duration", wait)
		if !sleep(ctx, wait) {
			return nil, ctx.Err()
		}

		stream, err := m.dial(ctx)
		if err == nil {
			return stream, nil
		}
	}
	return nil, errRetriesExhausted
}

// degraded polls the pull transport immediately and then every poll
// interval, while re-dialing push on the backoff schedule. It returns the
// first stream that connects.
func (m *Manager) degraded(ctx context.Context) (Stream, error) {
	m.setState(store.StateDegraded)
	m.setPolling(true)
	defer m.setPolling(false)

	m.poll(ctx)

	pollTicker := time.NewTicker(m.cfg.PollInterval)
	defer pollTicker.Stop()

	dialTimer := time.NewTimer(m.backoff.Next())
	defer dialTimer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-pollTicker.C:
			m.poll(ctx)
		case <-dialTimer.C:
			stream, err := m.dial(ctx)
			if err == nil {
				return stream, nil
			}
			dialTimer.Reset(m.backoff.Next())
		}
	}
}

// poll fetches one batch and hands each item to the handler. Failures are
// logged and recorded, never retried.
func (m *Manager) poll(ctx context.Context) {
	if m.pull == nil {
		return
	}

	items, err := m.pull.Poll(ctx)

	m.mu.Lock()
	m.health.LastPollAt = time.Now()
	m.health.LastPollOK = err == nil
	m.mu.Unlock()

	if err != nil {
		if ctx.Err() == nil {
			slog.Warn("poll_failed", "error", err)
		}
		return
	}

	slog.Info("poll_completed", "count", len(items))
	for _, raw := range items {
		m.handle(raw, store.TransportPull)
	}
}

func (m *Manager) setPolling(on bool) {
	m.mu.Lock()
	m.health.Polling = on
	m.mu.Unlock()
}

// setState records a transition and notifies observers outside the lock.
func (m *Manager) setState(to store.ConnectionState) {
	m.mu.Lock()
	from := m.health.State
	if from == to {
		m.mu.Unlock()
		return
	}
	m.health.State = to
	observers := make([]func(from, to store.ConnectionState), len(m.observers))
	copy(observers, m.observers)
	m.mu.Unlock()

	slog.Info("connection_state", "from", from.String(), "to", to.String())
	for _, fn := range observers {
		fn(from, to)
	}
}

// sleep waits for d or until ctx is done. It reports whether d elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
