package monitor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cexcore/custody/lib/chain"
	"github.com/cexcore/custody/lib/chain/types"
	"github.com/cexcore/custody/lib/msg"
	"github.com/cexcore/custody/lib/store"
	"github.com/cexcore/custody/lib/store/db"
)

// stubChain serves canned balances per address and can be switched into a failing mode.
type stubChain struct {
	name   string
	symbol string

	mu   sync.Mutex
	bals map[string]decimal.Decimal
	fail bool
}

func newStubChain(name, symbol string) *stubChain {
	return &stubChain{name: name, symbol: symbol, bals: make(map[string]decimal.Decimal)}
}

func (c *stubChain) Name() string   { return c.name }
func (c *stubChain) Symbol() string { return c.symbol }
func (c *stubChain) Close()         {}

func (c *stubChain) Balance(ctx context.Context, address string) (decimal.Decimal, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.fail {
		return decimal.Zero, types.ErrRead
	}

	return c.bals[address], nil
}

func (c *stubChain) set(address, amount string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bals[address] = decimal.RequireFromString(amount)
}

func (c *stubChain) setFail(fail bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fail = fail
}

// stubBroker records published deposit events.
type stubBroker struct {
	mu   sync.Mutex
	deps []msg.Deposit
}

func (b *stubBroker) Setup(interface{}) error            { return nil }
func (b *stubBroker) Close() error                       { return nil }
func (b *stubBroker) SendWalletReq(r msg.WalletReq) error { return nil }

func (b *stubBroker) GetDeposits(chain string, mut *sync.Mutex) (<-chan msg.Deposit, <-chan error, error) {
	return make(chan msg.Deposit), make(chan error), nil
}

func (b *stubBroker) GetWalletReqs(mut *sync.Mutex) (<-chan msg.WalletReq, <-chan error, error) {
	return make(chan msg.WalletReq), make(chan error), nil
}

func (b *stubBroker) SendDeposits(chain string, d []msg.Deposit) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deps = append(b.deps, d...)

	return nil
}

func (b *stubBroker) sent() []msg.Deposit {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]msg.Deposit, len(b.deps))
	copy(out, b.deps)

	return out
}

// seedWallet stores a wallet record with one address per given chain plus a zero ledger.
func seedWallet(t *testing.T, s store.DB, userID string, chains map[string]string) {
	t.Helper()

	w := store.Wallet{
		UserID:    userID,
		Addresses: make(map[string]string),
		Keys:      make(map[string]string),
		CreatedAt: time.Now().UTC(),
	}

	symbols := []string{}

	for net, addr := range chains {
		w.Addresses[net] = addr
		w.Keys[net] = "enc:" + addr

		spec, ok := types.Lookup(net)
		if !ok {
			t.Fatalf("[%s] no registry entry", net)
		}

		symbols = append(symbols, spec.Symbol)
	}

	if err := s.SaveWallet(w); err != nil {
		t.Fatalf("Error saving wallet:%e", err)
	}

	if err := s.EnsureBalances(userID, symbols); err != nil {
		t.Fatalf("Error ensuring balances:%e", err)
	}
}

func testMonitor(t *testing.T, bc map[string]chain.Chain) (*Monitor, store.DB, *stubBroker) {
	t.Helper()

	s, err := db.New(db.MEMORY, "")
	if err != nil {
		t.Fatalf("Error creating store:%e", err)
	}

	mb := &stubBroker{}

	return New(db.MEMORY, s, mb, bc, time.Minute, time.Second), s, mb
}

func TestCycleCreditsDeposit(t *testing.T) {
	eth := newStubChain("ethereum", "ETH")
	m, s, mb := testMonitor(t, map[string]chain.Chain{"ethereum": eth})

	seedWallet(t, s, "user1", map[string]string{"ethereum": "0xabc"})
	eth.set("0xabc", "0.5")

	m.runCycle(context.Background(), time.Now())

	bals, err := s.GetBalances("user1")
	if err != nil {
		t.Fatalf("Error getting balances:%e", err)
	}

	if !bals["ETH"].Equal(decimal.RequireFromString("0.5")) {
		t.Errorf("Error in balance:%s expected:0.5", bals["ETH"])
	}

	txs, err := s.ListTransactions("user1")
	if err != nil || len(txs) != 1 {
		t.Fatalf("Error in transactions:%d err:%e expected:1", len(txs), err)
	}

	tx := txs[0]
	if tx.Type != store.TxDeposit || tx.Status != store.StatusCompleted || tx.Token != "ETH" ||
		tx.Chain != "ethereum" || !tx.Amount.Equal(decimal.RequireFromString("0.5")) {
		t.Errorf("Error in transaction:%+v", tx)
	}

	deps := mb.sent()
	if len(deps) != 1 || deps[0].UserID != "user1" || deps[0].Ref != tx.Ref {
		t.Errorf("Error in deposit events:%+v", deps)
	}
}

func TestCycleUnchangedIsNoop(t *testing.T) {
	eth := newStubChain("ethereum", "ETH")
	m, s, _ := testMonitor(t, map[string]chain.Chain{"ethereum": eth})

	seedWallet(t, s, "user1", map[string]string{"ethereum": "0xabc"})
	eth.set("0xabc", "0.5")

	m.runCycle(context.Background(), time.Now())
	m.runCycle(context.Background(), time.Now().Add(time.Minute))

	txs, _ := s.ListTransactions("user1")
	if len(txs) != 1 {
		t.Errorf("Error in transactions:%d expected:1", len(txs))
	}

	bals, _ := s.GetBalances("user1")
	if !bals["ETH"].Equal(decimal.RequireFromString("0.5")) {
		t.Errorf("Error in balance:%s expected:0.5", bals["ETH"])
	}
}

func TestCycleCreditsOnlyDelta(t *testing.T) {
	eth := newStubChain("ethereum", "ETH")
	m, s, _ := testMonitor(t, map[string]chain.Chain{"ethereum": eth})

	seedWallet(t, s, "user1", map[string]string{"ethereum": "0xabc"})
	eth.set("0xabc", "0.5")
	m.runCycle(context.Background(), time.Now())

	// a later deposit raises the observed balance to 1.2, only 0.7 is new
	eth.set("0xabc", "1.2")
	m.runCycle(context.Background(), time.Now().Add(time.Minute))

	bals, _ := s.GetBalances("user1")
	if !bals["ETH"].Equal(decimal.RequireFromString("1.2")) {
		t.Errorf("Error in balance:%s expected:1.2", bals["ETH"])
	}

	txs, _ := s.ListTransactions("user1")
	if len(txs) != 2 {
		t.Fatalf("Error in transactions:%d expected:2", len(txs))
	}

	if !txs[1].Amount.Equal(decimal.RequireFromString("0.7")) {
		t.Errorf("Error in credited amount:%s expected:0.7", txs[1].Amount)
	}
}

func TestCycleIsolatesReadErrors(t *testing.T) {
	eth := newStubChain("ethereum", "ETH")
	sol := newStubChain("solana", "SOL")
	m, s, _ := testMonitor(t, map[string]chain.Chain{"ethereum": eth, "solana": sol})

	seedWallet(t, s, "user1", map[string]string{"ethereum": "0xabc", "solana": "So1abc"})
	eth.setFail(true)
	sol.set("So1abc", "2")

	m.runCycle(context.Background(), time.Now())

	bals, _ := s.GetBalances("user1")
	// the failing chain contributes nothing, the healthy one still credits
	if !bals["ETH"].IsZero() {
		t.Errorf("Error in balance:%s expected:0 after read error", bals["ETH"])
	}

	if !bals["SOL"].Equal(decimal.RequireFromString("2")) {
		t.Errorf("Error in balance:%s expected:2", bals["SOL"])
	}

	// once the chain recovers the full amount is credited, nothing was lost
	eth.setFail(false)
	eth.set("0xabc", "0.5")
	m.runCycle(context.Background(), time.Now().Add(time.Minute))

	bals, _ = s.GetBalances("user1")
	if !bals["ETH"].Equal(decimal.RequireFromString("0.5")) {
		t.Errorf("Error in balance:%s expected:0.5", bals["ETH"])
	}
}

func TestCycleRefIdempotent(t *testing.T) {
	eth := newStubChain("ethereum", "ETH")
	m, s, _ := testMonitor(t, map[string]chain.Chain{"ethereum": eth})

	seedWallet(t, s, "user1", map[string]string{"ethereum": "0xabc"})
	eth.set("0xabc", "0.5")

	// two cycles sharing a start time share refs; the second must not double-credit
	start := time.Now()
	m.runCycle(context.Background(), start)
	m.credit("user1", "ethereum", "ETH", decimal.RequireFromString("0.5"), start.UTC().Format(time.RFC3339))

	bals, _ := s.GetBalances("user1")
	if !bals["ETH"].Equal(decimal.RequireFromString("0.5")) {
		t.Errorf("Error in balance:%s expected:0.5", bals["ETH"])
	}

	txs, _ := s.ListTransactions("user1")
	if len(txs) != 1 {
		t.Errorf("Error in transactions:%d expected:1", len(txs))
	}
}

func TestCycleSkipsKeylessAddresses(t *testing.T) {
	eth := newStubChain("ethereum", "ETH")
	m, s, _ := testMonitor(t, map[string]chain.Chain{"ethereum": eth})

	// a record holding an address but no signing key is not custodial, never credited
	w := store.Wallet{
		UserID:    "user1",
		Addresses: map[string]string{"ethereum": "0xabc"},
		Keys:      map[string]string{},
		CreatedAt: time.Now().UTC(),
	}
	if err := s.SaveWallet(w); err != nil {
		t.Fatalf("Error saving wallet:%e", err)
	}

	if err := s.EnsureBalances("user1", []string{"ETH"}); err != nil {
		t.Fatalf("Error ensuring balances:%e", err)
	}

	eth.set("0xabc", "5")
	m.runCycle(context.Background(), time.Now())

	bals, _ := s.GetBalances("user1")
	if !bals["ETH"].IsZero() {
		t.Errorf("Error in balance:%s expected:0", bals["ETH"])
	}
}

func TestStartStop(t *testing.T) {
	eth := newStubChain("ethereum", "ETH")
	m, s, _ := testMonitor(t, map[string]chain.Chain{"ethereum": eth})

	seedWallet(t, s, "user1", map[string]string{"ethereum": "0xabc"})
	eth.set("0xabc", "0.5")

	done := make(chan struct{})

	go func() {
		m.Start(context.Background())
		close(done)
	}()

	// the first cycle runs immediately, before the first tick
	deadline := time.After(2 * time.Second)

	for {
		bals, err := s.GetBalances("user1")
		if err == nil && bals["ETH"].Equal(decimal.RequireFromString("0.5")) {
			break
		}

		select {
		case <-deadline:
			t.Fatalf("Error: first cycle did not run")
		case <-time.After(10 * time.Millisecond):
		}
	}

	m.Stop()
	m.Stop() // stopping twice is safe

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Errorf("Error: Start did not return after Stop")
	}
}
