package ingest

import (
	"encoding/json"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ledgerpulse/engine/internal/store"
)

// amountUnit tells parseAmount how to scale a plain numeric value.
type amountUnit int

const (
	unitDrops amountUnit = iota
	unitXRP
)

// issuedAmount is the object form of an Amount field. XRP never appears in
// this shape on the ledger itself, but some REST APIs use it for XRP too.
type issuedAmount struct {
	Currency string `json:"currency"`
	Value    string `json:"value"`
	Issuer   string `json:"issuer"`
}

// parseAmount converts a JSON amount (string, number, or currency object)
// into drops. unit applies to string and number forms only.
func parseAmount(raw json.RawMessage, unit amountUnit) (uint64, error) {
	raw = json.RawMessage(strings.TrimSpace(string(raw)))
	if len(raw) == 0 || string(raw) == "null" {
		return 0, reject(ErrInvalidAmount, "amount missing")
	}

	switch raw[0] {
	case '{':
		var obj issuedAmount
		if err := json.Unmarshal(raw, &obj); err != nil {
			return 0, reject(ErrInvalidAmount, "amount object: %v", err)
		}
		if !strings.EqualFold(obj.Currency, "XRP") || obj.Issuer != "" {
			return 0, reject(ErrNonNativeAmount, "currency %q", obj.Currency)
		}
		return parseDecimal(obj.Value, unitXRP)
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, reject(ErrInvalidAmount, "amount string: %v", err)
		}
		return parseDecimal(s, unit)
	default:
		return parseDecimal(string(raw), unit)
	}
}

// Amount text limits. Scaling a decimal materialises 10^|exponent|, so the
// exponent is bounded before any arithmetic. A uint64 has 20 digits; with at
// most maxAmountLen coefficient digits, an exponent below minAmountExponent
// can never yield whole drops.
const (
	maxAmountLen      = 40
	maxAmountExponent = 20
	minAmountExponent = -(maxAmountLen + 6)
)

// parseDecimal parses s exactly and scales it to drops. Fractional drops,
// negative values and values beyond uint64 are rejected.
func parseDecimal(s string, unit amountUnit) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, reject(ErrInvalidAmount, "empty amount")
	}
	if len(s) > maxAmountLen {
		return 0, reject(ErrInvalidAmount, "amount too long (%d chars)", len(s))
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, reject(ErrInvalidAmount, "amount %q: %v", s, err)
	}
	if d.IsNegative() {
		return 0, reject(ErrNegativeAmount, "amount %q", s)
	}
	if d.IsZero() {
		return 0, nil
	}
	if exp := d.Exponent(); exp > maxAmountExponent || exp < minAmountExponent {
		return 0, reject(ErrInvalidAmount, "amount %q exponent %d out of range", s, exp)
	}
	if unit == unitXRP {
		d = d.Shift(6)
	}
	if !d.Equal(d.Truncate(0)) {
		return 0, reject(ErrInvalidAmount, "fractional drops in %q", s)
	}

	n := d.BigInt()
	if !n.IsUint64() {
		return 0, reject(ErrInvalidAmount, "amount %q out of range", s)
	}
	return n.Uint64(), nil
}

// DropsToXRP returns drops as an exact XRP decimal.
func DropsToXRP(drops uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(drops), -6)
}

// FormatXRP renders drops as an XRP string without trailing zeros.
func FormatXRP(drops uint64) string {
	return DropsToXRP(drops).String()
}

// WholeXRP reports drops as whole XRP, rounding down.
func WholeXRP(drops uint64) uint64 {
	return drops / store.DropsPerXRP
}
