// Package types holds the static chain registry and common chain types.
package types

import (
	"errors"
	"math/big"

	"github.com/shopspring/decimal"
)

// Chain families. Chains within one family share an execution model, an address format and a signing
// scheme, allowing one keypair to serve every chain in the family.
const (
	FamilyEVM    = "evm"
	FamilySolana = "solana"
)

// Spec describes one supported chain: its identifier, the ledger token symbol it credits, its family
// and the base-10 scale of its smallest unit.
type Spec struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Family   string `json:"family"`
	Decimals int32  `json:"decimals"`
}

// registry is the static table of supported chains. Every chain credits a distinct ledger symbol:
// delta detection diffs the observed per-chain balance against the ledger entry of that chain's
// symbol, so two chains must never share one. Bitcoin is not supported: there is no real key
// derivation nor balance API for it in this system.
var registry = []Spec{
	{Name: "ethereum", Symbol: "ETH", Family: FamilyEVM, Decimals: 18},
	{Name: "bsc", Symbol: "BNB", Family: FamilyEVM, Decimals: 18},
	{Name: "polygon", Symbol: "MATIC", Family: FamilyEVM, Decimals: 18},
	{Name: "arbitrum", Symbol: "ARB", Family: FamilyEVM, Decimals: 18},
	{Name: "base", Symbol: "BASE", Family: FamilyEVM, Decimals: 18},
	{Name: "avalanche", Symbol: "AVAX", Family: FamilyEVM, Decimals: 18},
	{Name: "solana", Symbol: "SOL", Family: FamilySolana, Decimals: 9},
}

// Registry returns a copy of the supported chain table.
func Registry() []Spec {
	r := make([]Spec, len(registry))
	copy(r, registry)

	return r
}

// Lookup returns the Spec for the named chain.
func Lookup(name string) (Spec, bool) {
	for _, s := range registry {
		if s.Name == name {
			return s, true
		}
	}

	return Spec{}, false
}

// Symbols returns the ledger token symbols of every supported chain. It is the default zero-balance
// set a new user's ledger entry is created with.
func Symbols() []string {
	ss := make([]string, 0, len(registry))
	for _, s := range registry {
		ss = append(ss, s.Symbol)
	}

	return ss
}

// ToUnits converts a raw smallest-unit amount to whole units using the chain's base-10 scale.
func ToUnits(raw *big.Int, decimals int32) decimal.Decimal {
	return decimal.NewFromBigInt(raw, -decimals)
}

// Error codes.
var (
	ErrRead      = errors.New("chain balance read failed")
	ErrNoAddress = errors.New("malformed or empty address")
)
