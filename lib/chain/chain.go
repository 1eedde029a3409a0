// Package chain defines the interface required for all blockchain connections.
package chain

import (
	"context"
	"log"

	"github.com/shopspring/decimal"

	"github.com/cexcore/custody/lib/chain/evm"
	"github.com/cexcore/custody/lib/chain/solana"
	"github.com/cexcore/custody/lib/chain/types"
	"github.com/cexcore/custody/lib/config"
)

// Chain is the read-only view of one blockchain. It has been designed to be as small as possible: the
// deposit engine only ever reads confirmed balances, it never signs nor broadcasts. Balance returns the
// confirmed native-asset balance of the address in whole units; a failed read reports types.ErrRead and
// means "no information", never "zero balance".
type Chain interface {
	Name() string
	Symbol() string
	Balance(ctx context.Context, address string) (decimal.Decimal, error)
	Close()
}

// Init loads a client for every configured chain that has a registry entry into a map. Configured
// chains without a registry entry are ignored.
func Init(cc []config.ChainConfig) (m map[string]Chain, err error) {
	m = make(map[string]Chain)

	for _, c := range cc {
		spec, ok := types.Lookup(c.Name)
		if !ok {
			log.Printf("Chain interface not defined for %s. Ignoring...\n", c.Name)

			continue
		}

		var tmp Chain

		switch spec.Family {
		case types.FamilyEVM:
			if tmp, err = evm.Init(spec, c.Node, c.Secret); err != nil {
				return
			}
		case types.FamilySolana:
			if tmp, err = solana.Init(spec, c.Node); err != nil {
				return
			}
		}

		m[c.Name] = tmp
	}

	return
}

// End closes gracefully all the chain clients opened.
func End(m map[string]Chain) {
	for _, c := range m {
		c.Close()
	}
}
