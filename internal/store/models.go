// Package store provides the data models shared across the engine.
package store

import "time"

// KindPayment is the only transaction kind that reaches the aggregator.
const KindPayment = "Payment"

// DropsPerXRP is the number of drops in one XRP.
const DropsPerXRP = 1_000_000

// Transport identifies which feed path delivered a message.
type Transport int

const (
	// TransportPush is the persistent WebSocket subscription.
	TransportPush Transport = iota
	// TransportPull is the periodic REST fallback.
	TransportPull
)

// String returns the transport name used in logs and metric labels.
func (t Transport) String() string {
	switch t {
	case TransportPush:
		return "push"
	case TransportPull:
		return "pull"
	default:
		return "unknown"
	}
}

// Transaction is the canonical record produced by the decoder.
type Transaction struct {
	// ID is the transaction hash (upper-case hex)
	ID string

	// Amount is the delivered value in drops
	Amount uint64

	// Source is the sending account
	Source string

	// Destination is the receiving account
	Destination string

	// ObservedAt is when the decoder produced the record, not the ledger close time
	ObservedAt time.Time

	// Kind is the ledger transaction type (always Payment once accepted)
	Kind string

	// Transport is the feed path that delivered the record
	Transport Transport

	// LedgerIndex is the validated ledger sequence, 0 when unknown
	LedgerIndex uint64

	// SourceName and DestinationName are display names supplied by the poll
	// provider, empty on the push feed
	SourceName      string
	DestinationName string
}

// WindowSnapshot is an immutable point-in-time view of the sliding window.
type WindowSnapshot struct {
	WindowStart         time.Time
	WindowEnd           time.Time
	Events              []Transaction
	Count               int
	ThroughputPerSecond float64
	VolumeInWindow      uint64
	MaxAmountInWindow   uint64
}

// WhaleEvent is a transaction at or above the configured threshold.
type WhaleEvent struct {
	Transaction      Transaction
	Threshold        uint64
	SourceLabel      string
	DestinationLabel string
}

// ConnectionState is the lifecycle of the feed subscription.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateLive
	StateDegraded
)

// String returns the lower-case state name.
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateLive:
		return "live"
	case StateDegraded:
		return "degraded"
	default:
		return "unknown"
	}
}
