// Implements the balance-read interface for EVM-family chains.
package evm

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
	"github.com/tarancss/ethcli"

	"github.com/cexcore/custody/lib/chain/types"
)

// EVM implements a read-only connection to an EVM-family chain.
type EVM struct {
	c    *ethcli.EthCli
	spec types.Spec
}

// Init returns a connection to an EVM node, using secret if necessary for authentication.
func Init(spec types.Spec, node, secret string) (*EVM, error) {
	var c *ethcli.EthCli
	if c = ethcli.Init(node, secret); c == nil {
		return nil, errors.New("cannot connect to EVM chain in " + node)
	}

	return &EVM{c: c, spec: spec}, nil
}

// Name returns the chain identifier.
func (e *EVM) Name() string {
	return e.spec.Name
}

// Symbol returns the ledger token symbol this chain credits.
func (e *EVM) Symbol() string {
	return e.spec.Symbol
}

// Close ends the connection.
func (e *EVM) Close() {
	e.c.End()
}

// Balance returns the confirmed native-asset balance of the address in whole units. The underlying RPC
// call is raced against the context so one unreachable endpoint cannot stall a reconciliation cycle
// beyond its deadline.
func (e *EVM) Balance(ctx context.Context, address string) (decimal.Decimal, error) {
	if len(address) == 0 {
		return decimal.Zero, types.ErrNoAddress
	}

	type result struct {
		wei *big.Int
		err error
	}

	ch := make(chan result, 1)

	go func() {
		wei, tok := new(big.Int), new(big.Int)
		err := e.c.GetBalance(address, "", wei, tok)
		ch <- result{wei: wei, err: err}
	}()

	select {
	case <-ctx.Done():
		return decimal.Zero, fmt.Errorf("%w: %s", types.ErrRead, ctx.Err())
	case r := <-ch:
		if r.err != nil {
			return decimal.Zero, fmt.Errorf("%w: %s", types.ErrRead, r.err)
		}

		return types.ToUnits(r.wei, e.spec.Decimals), nil
	}
}
