// Implements the balance-read interface for the solana account-model chain.
package solana

import (
	"context"
	"fmt"
	"math/big"

	sol "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"

	"github.com/cexcore/custody/lib/chain/types"
)

// Solana implements a read-only connection to a solana RPC node.
type Solana struct {
	c    *rpc.Client
	spec types.Spec
}

// Init returns a connection to a solana RPC node.
func Init(spec types.Spec, node string) (*Solana, error) {
	return &Solana{c: rpc.New(node), spec: spec}, nil
}

// Name returns the chain identifier.
func (s *Solana) Name() string {
	return s.spec.Name
}

// Symbol returns the ledger token symbol this chain credits.
func (s *Solana) Symbol() string {
	return s.spec.Symbol
}

// Close ends the connection.
func (s *Solana) Close() {
	// the rpc client does not hold a persistent connection
}

// Balance returns the finalized lamport balance of the account converted to whole SOL units.
func (s *Solana) Balance(ctx context.Context, address string) (decimal.Decimal, error) {
	pk, err := sol.PublicKeyFromBase58(address)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s", types.ErrNoAddress, err)
	}

	out, err := s.c.GetBalance(ctx, pk, rpc.CommitmentFinalized)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s", types.ErrRead, err)
	}

	lamports := new(big.Int).SetUint64(out.Value)

	return types.ToUnits(lamports, s.spec.Decimals), nil
}
