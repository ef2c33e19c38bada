package server

import (
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ledgerpulse/engine/internal/publish"
	"github.com/ledgerpulse/engine/internal/wire"
)

// client streams updates to one WebSocket connection. The subscription
// channel is its only queue, so a slow client sees the newest update.
type client struct {
	conn        *websocket.Conn
	sub         *publish.Subscription
	recentLimit int
}

// writePump sends every update and periodic pings until the subscription
// closes or a write fails.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case u, ok := <-c.sub.Updates():
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
				return
			}
			if err := c.conn.WriteJSON(wire.NewStats(u, c.recentLimit)); err != nil {
				slog.Debug("ws_client_write_failed", "id", c.sub.ID(), "error", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards client frames and keeps the pong deadline. When the
// client goes away it calls done, which ends writePump by closing the
// subscription.
func (c *client) readPump(done func()) {
	defer done()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("ws_client_read_error", "id", c.sub.ID(), "error", err)
			}
			return
		}
	}
}
