package detector

// Category groups known accounts.
type Category string

const (
	CategoryGenesis  Category = "genesis"
	CategoryRipple   Category = "ripple"
	CategoryExchange Category = "exchange"
	CategoryOther    Category = "other"
)

// KnownAccount is a publicly attributed ledger account.
type KnownAccount struct {
	Label    string
	Category Category
}

var knownAccounts = map[string]KnownAccount{
	"rHb9CJAWyB4rj91VRWn96DkukG4bwdtyTh": {"Genesis Account", CategoryGenesis},

	"rPEPPER7kfTD9w2To4CQk6UCfuHM9c6GDY": {"Ripple (1)", CategoryRipple},
	"rDsbeomae4FXwgQTJp9Rs64Qg9vDiTCdBv": {"Ripple (2)", CategoryRipple},
	"r3kmLJN5D28dHuH8vZNUZpMC43pEHpaocV": {"Ripple (3)", CategoryRipple},
	"rKLpjpCoXgLQQYQyj13rxfczEFhH1yrGr4": {"Ripple (4)", CategoryRipple},
	"rHKueQebtVU9cEAmvquRvBYfXPbBQrBXaD": {"Ripple (5)", CategoryRipple},
	"rEy8TFcrAPvhpKrwyrscNYyqBGUkE7vF9T": {"Ripple (6)", CategoryRipple},
	"rUobSiUpYMXoJRqmMcrFnGLEsN7UyGMpVc": {"Ripple (7)", CategoryRipple},
	"rpXTzCuXtjiPDFysxq8uNmtZBe9Xo97JbW": {"Ripple Escrow (1)", CategoryRipple},
	"rBg2FuYrwFQBMYjAoFMDkP3wXzmztW1LUU": {"Ripple Escrow (2)", CategoryRipple},
	"r9cZA1mLK5R5Am25ArfXFmqgNwjZgnfk59": {"Ripple (OG)", CategoryRipple},

	"rLHzPsX6oXkzU2qL12kHCH8G8cnZv1rBJh": {"Binance (1)", CategoryExchange},
	"rEb8TK3gBgk5auZkwc6sHnwrGVJH8DuaLh": {"Binance (2)", CategoryExchange},
	"rNxp4h8apvRis6mJf9Sh8C6iRxfrDWN7AV": {"Binance (3)", CategoryExchange},
	"rLNaPoKeeBjZe2qs6x52yVPKpg8HU36Mfq": {"Uphold (1)", CategoryExchange},
	"rPVMhWBsfF9iMXYj3aAzJVkPDTFNSyWdKy": {"Bitfinex (1)", CategoryExchange},
	"rhub8VRN55s94qWKDv6jmDy1pUykJzF3wq": {"GateHub (1)", CategoryExchange},
	"rKiCet8SdvWxPXnAgYarFUXMh1zCPz432Y": {"Bitstamp (1)", CategoryExchange},
	"rDCjE83Gs4ECrgqv4nz2XLLQX3LVH7N3JV": {"Bitstamp (2)", CategoryExchange},
	"rN7v3dWXMwkiJ4Dyqe67gBTWYezXe3rVUU": {"Bitstamp (3)", CategoryExchange},
	"r3fqUSmTXAyJhsmTGDSCTQR7qCEkHo7WGq": {"Kraken (1)", CategoryExchange},
	"rLbKbPyuvs4wc1Jo165VTcGeHhKrAMN1QK": {"Kraken (2)", CategoryExchange},
	"rGDreBvnHrX1get7na3CE4hYyGnGHgXUfm": {"Bittrex (1)", CategoryExchange},
	"rwU8rAiE2eyEPz3sikfbHuqCuiAtdXqa2v": {"Coinbase (1)", CategoryExchange},
	"rw2ciyaNshpHe7bCHo4bRHq4pqmGNy4998": {"Coinbase (2)", CategoryExchange},

	"rf1BiGeXwwQoi8Z2ueFYTEXSwuJYfV2Jpn": {"Jed McCaleb", CategoryOther},
	"rrrrrrrrrrrrrrrrrrrrrhoLvTp":        {"Account Zero (Burn)", CategoryOther},
	"rrrrrrrrrrrrrrrrrNAMEtxvNvQ":        {"Name Reservation", CategoryOther},
}

// Lookup returns the attribution for address, if any.
func Lookup(address string) (KnownAccount, bool) {
	acct, ok := knownAccounts[address]
	return acct, ok
}

// LabelFor returns the label for address, or "" when it is not known.
func LabelFor(address string) string {
	return knownAccounts[address].Label
}
