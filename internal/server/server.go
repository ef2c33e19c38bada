// Package server exposes published stats over HTTP and WebSocket.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ledgerpulse/engine/internal/ingest"
	"github.com/ledgerpulse/engine/internal/metrics"
	"github.com/ledgerpulse/engine/internal/publish"
	"github.com/ledgerpulse/engine/internal/wire"
)

const (
	writeWait       = 10 * time.Second
	pongWait        = 60 * time.Second
	pingPeriod      = (pongWait * 9) / 10
	shutdownTimeout = 5 * time.Second
)

// HealthSource supplies connection health.
type HealthSource interface {
	Health() ingest.Health
}

// Server serves /ws, /api/stats, /healthz and /metrics.
type Server struct {
	addr        string
	pub         *publish.Publisher
	health      HealthSource
	prom        *metrics.Collectors
	recentLimit int
	upgrader    websocket.Upgrader
}

// New creates a Server. prom may be nil, in which case /metrics is not
// registered.
func New(addr string, pub *publish.Publisher, health HealthSource, prom *metrics.Collectors, recentLimit int) *Server {
	return &Server{
		addr:        addr,
		pub:         pub,
		health:      health,
		prom:        prom,
		recentLimit: recentLimit,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// read-only public feed
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /api/whales", s.handleWhales)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.prom != nil {
		mux.Handle("GET /metrics", s.prom.Handler())
	}
	return mux
}

// Run listens until ctx is cancelled and then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http_server_started", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http_shutdown_error", "error", err)
		return err
	}
	slog.Info("http_server_stopped")
	return nil
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	u, ok := s.pub.Latest()
	if !ok {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no stats published yet"})
		return
	}
	writeJSON(w, http.StatusOK, wire.NewStats(u, s.recentLimit))
}

func (s *Server) handleWhales(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, wire.NewWhaleSummary(s.pub.WhaleSummary(), true))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := wire.NewHealth(s.health.Health())
	status := http.StatusOK
	if !h.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, h)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("ws_upgrade_failed", "error", err)
		return
	}

	sub := s.pub.Subscribe()
	slog.Info("ws_client_connected", "id", sub.ID(), "remote", r.RemoteAddr)

	c := &client{
		conn:        conn,
		sub:         sub,
		recentLimit: s.recentLimit,
	}
	go c.readPump(func() { s.pub.Unsubscribe(sub.ID()) })
	c.writePump()
	slog.Info("ws_client_disconnected", "id", sub.ID())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("http_write_failed", "error", err)
	}
}
