package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// WriteTimeout bounds control and subscribe writes.
	WriteTimeout = 10 * time.Second

	// maxFrameSize guards against a misbehaving server.
	maxFrameSize = 4 << 20
)

// ErrLivenessTimeout is returned by a stream that saw no traffic within the
// liveness timeout.
var ErrLivenessTimeout = errors.New("liveness timeout")

// subscribeRequest asks the server for every validated transaction.
type subscribeRequest struct {
	ID      string   `json:"id,omitempty"`
	Command string   `json:"command"`
	Streams []string `json:"streams"`
}

// subscribeResponse is the server's reply to subscribeRequest.
type subscribeResponse struct {
	Type   string `json:"type"`
	Status string `json:"status"`
	Error  string `json:"error"`
}

// WSTransport dials XRPL WebSocket servers, rotating through the configured
// endpoints when one fails.
type WSTransport struct {
	urls     []string
	liveness time.Duration
	dialer   websocket.Dialer

	mu   sync.Mutex
	next int
}

// NewWSTransport creates a push transport for urls. liveness is the longest
// silence tolerated on an open stream.
func NewWSTransport(urls []string, liveness time.Duration) *WSTransport {
	return &WSTransport{
		urls:     urls,
		liveness: liveness,
		dialer: websocket.Dialer{
			HandshakeTimeout:  10 * time.Second,
			EnableCompression: true,
		},
	}
}

// Dial connects and subscribes, trying each endpoint at most once starting
// from the one after the last failure. ctx bounds the whole attempt.
func (t *WSTransport) Dial(ctx context.Context) (Stream, error) {
	if len(t.urls) == 0 {
		return nil, errors.New("no websocket endpoints configured")
	}

	t.mu.Lock()
	start := t.next
	t.mu.Unlock()

	var errs []error
	for i := range t.urls {
		idx := (start + i) % len(t.urls)
		url := t.urls[idx]

		stream, err := t.dialOne(ctx, url)
		if err == nil {
			t.mu.Lock()
			t.next = idx
			t.mu.Unlock()
			return stream, nil
		}

		slog.Warn("ws_endpoint_failed", "endpoint", url, "error", err)
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}

	t.mu.Lock()
	t.next = (start + 1) % len(t.urls)
	t.mu.Unlock()
	return nil, errors.Join(errs...)
}

// dialOne opens url and waits for the subscribe acknowledgement.
func (t *WSTransport) dialOne(ctx context.Context, url string) (*wsStream, error) {
	conn, resp, err := t.dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s failed with status %d: %w", url, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial %s failed: %w", url, err)
	}
	conn.SetReadLimit(maxFrameSize)

	deadline := time.Now().Add(WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	conn.SetWriteDeadline(deadline)
	req := subscribeRequest{ID: "ledgerpulse", Command: "subscribe", Streams: []string{"transactions"}}
	if err := conn.WriteJSON(req); err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribe failed: %w", err)
	}

	// The acknowledgement normally arrives first, but a transaction can race
	// it; keep that one for the first Next.
	conn.SetReadDeadline(deadline)
	_, first, err := conn.ReadMessage()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribe ack failed: %w", err)
	}
	var ack subscribeResponse
	if json.Unmarshal(first, &ack) == nil && ack.Type == "response" {
		if ack.Status != "success" {
			conn.Close()
			return nil, fmt.Errorf("subscribe rejected: %s", ack.Error)
		}
		first = nil
	}

	s := newWSStream(conn, url, t.liveness, first)
	slog.Info("ws_subscribed", "endpoint", url, "stream", "transactions")
	return s, nil
}

// wsStream is one live subscription.
type wsStream struct {
	conn     *websocket.Conn
	endpoint string
	liveness time.Duration
	pending  []byte

	done      chan struct{}
	closeOnce sync.Once
}

func newWSStream(conn *websocket.Conn, endpoint string, liveness time.Duration, pending []byte) *wsStream {
	s := &wsStream{
		conn:     conn,
		endpoint: endpoint,
		liveness: liveness,
		pending:  pending,
		done:     make(chan struct{}),
	}
	conn.SetReadDeadline(time.Now().Add(liveness))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(liveness))
	})
	go s.pinger()
	return s
}

// Next blocks for the next frame. Every frame and every pong pushes the read
// deadline out by the liveness timeout.
func (s *wsStream) Next() ([]byte, error) {
	if s.pending != nil {
		msg := s.pending
		s.pending = nil
		return msg, nil
	}

	_, msg, err := s.conn.ReadMessage()
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, fmt.Errorf("%w after %s: %v", ErrLivenessTimeout, s.liveness, err)
		}
		return nil, fmt.Errorf("read error: %w", err)
	}
	s.conn.SetReadDeadline(time.Now().Add(s.liveness))
	return msg, nil
}

// Endpoint returns the URL this stream is connected to.
func (s *wsStream) Endpoint() string {
	return s.endpoint
}

// Close stops the pinger and closes the connection. Safe to call more than once.
func (s *wsStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		err = s.conn.Close()
		slog.Info("ws_disconnected", "endpoint", s.endpoint)
	})
	return err
}

// pinger keeps quiet connections alive so the pong handler can extend the
// read deadline.
func (s *wsStream) pinger() {
	interval := s.liveness / 3
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(WriteTimeout)); err != nil {
				slog.Debug("ws_ping_failed", "endpoint", s.endpoint, "error", err)
				return
			}
		}
	}
}
