// Package ingest connects to the XRP Ledger feed and turns its messages into
// canonical transactions.
package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ledgerpulse/engine/internal/store"
)

// Decode failure reasons. Each sentinel's text is the reason label used in
// logs and metrics.
var (
	ErrMalformedJSON   = errors.New("malformed_json")
	ErrNotTransaction  = errors.New("not_transaction")
	ErrUnsupportedKind = errors.New("unsupported_kind")
	ErrMissingID       = errors.New("missing_id")
	ErrMissingAccount  = errors.New("missing_account")
	ErrInvalidAddress  = errors.New("invalid_address")
	ErrNonNativeAmount = errors.New("non_native_amount")
	ErrInvalidAmount   = errors.New("invalid_amount")
	ErrNegativeAmount  = errors.New("negative_amount")
	ErrNotValidated    = errors.New("not_validated")
	ErrFailedResult    = errors.New("failed_result")
)

// DecodeError describes why a raw message was rejected.
type DecodeError struct {
	Reason string
	Detail string
	err    error
}

func (e *DecodeError) Error() string {
	if e.Detail == "" {
		return "decode: " + e.Reason
	}
	return "decode: " + e.Reason + ": " + e.Detail
}

func (e *DecodeError) Unwrap() error { return e.err }

func reject(sentinel error, format string, args ...any) *DecodeError {
	return &DecodeError{
		Reason: sentinel.Error(),
		Detail: fmt.Sprintf(format, args...),
		err:    sentinel,
	}
}

// ReasonOf returns the reason label for err, or "unknown".
func ReasonOf(err error) string {
	var de *DecodeError
	if errors.As(err, &de) {
		return de.Reason
	}
	return "unknown"
}

// pushFrame is a message from the transactions stream. API v1 servers put
// the body under "transaction", v2 under "tx_json".
type pushFrame struct {
	Type         string          `json:"type"`
	Transaction  json.RawMessage `json:"transaction"`
	TxJSON       json.RawMessage `json:"tx_json"`
	Hash         string          `json:"hash"`
	Meta         *pushMeta       `json:"meta"`
	Validated    *bool           `json:"validated"`
	EngineResult string          `json:"engine_result"`
	LedgerIndex  flexUint        `json:"ledger_index"`
}

type pushMeta struct {
	DeliveredAmount   json.RawMessage `json:"delivered_amount"`
	TransactionResult string          `json:"TransactionResult"`
}

type pushBody struct {
	TransactionType string          `json:"TransactionType"`
	Account         string          `json:"Account"`
	Destination     string          `json:"Destination"`
	Amount          json.RawMessage `json:"Amount"`
	DeliverMax      json.RawMessage `json:"DeliverMax"`
	Hash            string          `json:"hash"`
}

// pollItem is one entry of a REST "recent payments" response. Field names
// differ between providers, so several aliases are accepted.
type pollItem struct {
	Hash               string          `json:"hash"`
	TxHash             string          `json:"tx_hash"`
	Source             string          `json:"source"`
	Account            string          `json:"account"`
	Sender             string          `json:"sender"`
	Destination        string          `json:"destination"`
	Recipient          string          `json:"recipient"`
	Amount             json.RawMessage `json:"amount"`
	DeliveredAmount    json.RawMessage `json:"delivered_amount"`
	Type               string          `json:"type"`
	Currency           string          `json:"currency"`
	LedgerIndex        flexUint        `json:"ledger_index"`
	SourceTagName      string          `json:"source_tag_name"`
	SourceName         string          `json:"source_name"`
	DestinationTagName string          `json:"destination_tag_name"`
	DestinationName    string          `json:"destination_name"`
}

// Decoder validates raw feed messages and produces canonical transactions.
// A Decoder is immutable after construction and safe for concurrent use.
type Decoder struct {
	strictAddresses bool
	now             func() time.Time
}

// DecoderOption configures a Decoder.
type DecoderOption func(*Decoder)

// WithStrictAddresses enables checksum validation of account addresses.
func WithStrictAddresses(strict bool) DecoderOption {
	return func(d *Decoder) { d.strictAddresses = strict }
}

// WithDecodeClock overrides the clock used for ObservedAt.
func WithDecodeClock(now func() time.Time) DecoderOption {
	return func(d *Decoder) { d.now = now }
}

// NewDecoder creates a Decoder.
func NewDecoder(opts ...DecoderOption) *Decoder {
	d := &Decoder{now: time.Now}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Decode turns one raw message into a Transaction. Failures are returned as
// *DecodeError and match the exported sentinels with errors.Is.
func (d *Decoder) Decode(raw []byte, transport store.Transport) (store.Transaction, error) {
	if transport == store.TransportPull {
		return d.decodePoll(raw)
	}
	return d.decodePush(raw)
}

func (d *Decoder) decodePush(raw []byte) (store.Transaction, error) {
	var frame pushFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return store.Transaction{}, reject(ErrMalformedJSON, "%v", err)
	}
	if frame.Type != "transaction" {
		return store.Transaction{}, reject(ErrNotTransaction, "type %q", frame.Type)
	}

	bodyRaw := frame.Transaction
	if len(bodyRaw) == 0 {
		bodyRaw = frame.TxJSON
	}
	if len(bodyRaw) == 0 {
		return store.Transaction{}, reject(ErrNotTransaction, "no transaction body")
	}
	var body pushBody
	if err := json.Unmarshal(bodyRaw, &body); err != nil {
		return store.Transaction{}, reject(ErrMalformedJSON, "transaction body: %v", err)
	}

	if body.TransactionType != store.KindPayment {
		return store.Transaction{}, reject(ErrUnsupportedKind, "%q", body.TransactionType)
	}
	if frame.Validated != nil && !*frame.Validated {
		return store.Transaction{}, reject(ErrNotValidated, "")
	}
	result := frame.EngineResult
	if result == "" && frame.Meta != nil {
		result = frame.Meta.TransactionResult
	}
	if result != "" && result != "tesSUCCESS" {
		return store.Transaction{}, reject(ErrFailedResult, "%s", result)
	}

	// Partial payments can deliver less than Amount; "unavailable" appears on
	// ledgers older than the delivered_amount field.
	amountRaw := body.Amount
	if len(amountRaw) == 0 {
		amountRaw = body.DeliverMax
	}
	if frame.Meta != nil && len(frame.Meta.DeliveredAmount) > 0 &&
		!bytes.Equal(bytes.TrimSpace(frame.Meta.DeliveredAmount), []byte(`"unavailable"`)) {
		amountRaw = frame.Meta.DeliveredAmount
	}

	return d.build(
		coalesce(body.Hash, frame.Hash),
		body.Account,
		body.Destination,
		amountRaw,
		unitDrops,
		store.TransportPush,
		uint64(frame.LedgerIndex),
	)
}

func (d *Decoder) decodePoll(raw []byte) (store.Transaction, error) {
	var item pollItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return store.Transaction{}, reject(ErrMalformedJSON, "%v", err)
	}

	if item.Type != "" && item.Type != store.KindPayment {
		return store.Transaction{}, reject(ErrUnsupportedKind, "%q", item.Type)
	}
	if item.Currency != "" && !strings.EqualFold(item.Currency, "XRP") {
		return store.Transaction{}, reject(ErrNonNativeAmount, "currency %q", item.Currency)
	}

	amountRaw, unit := item.Amount, unitXRP
	if len(item.DeliveredAmount) > 0 && string(item.DeliveredAmount) != "null" {
		amountRaw, unit = item.DeliveredAmount, unitDrops
	}

	tx, err := d.build(
		coalesce(item.Hash, item.TxHash),
		coalesce(item.Source, item.Account, item.Sender),
		coalesce(item.Destination, item.Recipient),
		amountRaw,
		unit,
		store.TransportPull,
		uint64(item.LedgerIndex),
	)
	if err != nil {
		return store.Transaction{}, err
	}
	tx.SourceName = strings.TrimSpace(coalesce(item.SourceTagName, item.SourceName))
	tx.DestinationName = strings.TrimSpace(coalesce(item.DestinationTagName, item.DestinationName))
	return tx, nil
}

// build applies the checks shared by both message shapes.
func (d *Decoder) build(hash, source, destination string, amountRaw json.RawMessage, unit amountUnit, transport store.Transport, ledger uint64) (store.Transaction, error) {
	hash = strings.TrimSpace(hash)
	if hash == "" {
		return store.Transaction{}, reject(ErrMissingID, "")
	}
	if source == "" || destination == "" {
		return store.Transaction{}, reject(ErrMissingAccount, "source=%q destination=%q", source, destination)
	}
	if d.strictAddresses {
		if !ValidAddress(source) {
			return store.Transaction{}, reject(ErrInvalidAddress, "source %q", source)
		}
		if !ValidAddress(destination) {
			return store.Transaction{}, reject(ErrInvalidAddress, "destination %q", destination)
		}
	}

	amount, err := parseAmount(amountRaw, unit)
	if err != nil {
		return store.Transaction{}, err
	}

	return store.Transaction{
		ID:          strings.ToUpper(hash),
		Amount:      amount,
		Source:      source,
		Destination: destination,
		ObservedAt:  d.now(),
		Kind:        store.KindPayment,
		Transport:   transport,
		LedgerIndex: ledger,
	}, nil
}

// SplitPollBody frames a poll response into one raw message per item. The
// body is either a JSON array or an object holding a "payments" or
// "transactions" array.
func SplitPollBody(body []byte) ([]json.RawMessage, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrMalformedResponse)
	}

	switch body[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(body, &items); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		return items, nil
	case '{':
		var env struct {
			Payments     *[]json.RawMessage `json:"payments"`
			Transactions *[]json.RawMessage `json:"transactions"`
		}
		if err := json.Unmarshal(body, &env); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		if env.Payments != nil {
			return *env.Payments, nil
		}
		if env.Transactions != nil {
			return *env.Transactions, nil
		}
		return nil, fmt.Errorf("%w: no payments or transactions array", ErrMalformedResponse)
	default:
		return nil, fmt.Errorf("%w: unexpected leading byte %q", ErrMalformedResponse, body[0])
	}
}

// flexUint accepts a JSON number or numeric string. Anything else decodes
// as zero rather than failing the whole message.
type flexUint uint64

func (f *flexUint) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if n, err := strconv.ParseUint(s, 10, 64); err == nil {
		*f = flexUint(n)
	}
	return nil
}

// coalesce returns the first non-empty string.
func coalesce(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
