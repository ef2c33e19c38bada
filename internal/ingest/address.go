package ingest

import (
	"bytes"
	"crypto/sha256"

	"github.com/mr-tron/base58"
)

// rippleAlphabet is the base58 dictionary used by XRPL account addresses.
var rippleAlphabet = base58.NewAlphabet("rpshnaf39wBUDNEGHJKLM4PQRST7VWXYZ2bcdeCg65jkm8oFqi1tuvAxyz")

const (
	accountIDVersion = 0x00
	accountIDLen     = 20
	checksumLen      = 4
)

// ValidAddress reports whether s is a well-formed classic XRPL address:
// version byte 0, a 20 byte account id and a double SHA-256 checksum.
func ValidAddress(s string) bool {
	if len(s) < 25 || len(s) > 35 || s[0] != 'r' {
		return false
	}

	payload, err := base58.DecodeAlphabet(s, rippleAlphabet)
	if err != nil || len(payload) != 1+accountIDLen+checksumLen {
		return false
	}
	if payload[0] != accountIDVersion {
		return false
	}

	body := payload[:1+accountIDLen]
	first := sha256.Sum256(body)
	second := sha256.Sum256(first[:])
	return bytes.Equal(second[:checksumLen], payload[1+accountIDLen:])
}
