// Package sink forwards whale events and stats updates to external systems.
package sink

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/ledgerpulse/engine/internal/publish"
)

// Envelope wraps every outbound payload.
type Envelope struct {
	Type string          `json:"type"`
	TS   int64           `json:"ts"` // unix millis
	Data json.RawMessage `json:"data"`
}

func encode(typ string, v any, now time.Time) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: typ, TS: now.UnixMilli(), Data: data})
}

// UpdateFunc consumes one published update.
type UpdateFunc func(ctx context.Context, u publish.Update) error

// Forward feeds every update from sub into fn until the subscription closes
// or ctx is cancelled. Errors from fn are logged under name and never stop
// forwarding.
func Forward(ctx context.Context, name string, sub *publish.Subscription, fn UpdateFunc) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case u, ok := <-sub.Updates():
			if !ok {
				return nil
			}
			if err := fn(ctx, u); err != nil {
				logSinkError(name, u.Seq, err)
			}
		}
	}
}

func logSinkError(name string, seq uint64, err error) {
	slog.Warn("sink_emit_failed", "sink", name, "seq", seq, "error", err)
}
