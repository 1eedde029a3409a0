// Package memory implements the store interface in process memory. It is selected by configuration
// (dbtype "memory") for non-production mode and for unit tests that must not require external services.
package memory

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cexcore/custody/lib/store"
)

// Memory implements the store.DB interface over mutex-guarded maps.
type Memory struct {
	mu      sync.RWMutex
	wallets map[string]store.Wallet
	ledgers map[string]map[string]decimal.Decimal
	txs     []store.Transaction
	refs    map[string]struct{}
}

// New returns an empty in-memory store.
func New() *Memory {
	return &Memory{
		wallets: make(map[string]store.Wallet),
		ledgers: make(map[string]map[string]decimal.Decimal),
		refs:    make(map[string]struct{}),
	}
}

// Close releases the store. Provided for symmetry with the database implementations.
func (m *Memory) Close() error {
	return nil
}

func copyWallet(w store.Wallet) store.Wallet {
	c := w
	c.Addresses = make(map[string]string, len(w.Addresses))
	c.Keys = make(map[string]string, len(w.Keys))

	for k, v := range w.Addresses {
		c.Addresses[k] = v
	}

	for k, v := range w.Keys {
		c.Keys[k] = v
	}

	return c
}

// SaveWallet replaces the user's wallet record as one full document.
func (m *Memory) SaveWallet(w store.Wallet) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.wallets[w.UserID] = copyWallet(w)

	return nil
}

// LoadWallet returns the user's wallet record. Absent and tombstoned records both report
// store.ErrWalletNotFound.
func (m *Memory) LoadWallet(userID string) (store.Wallet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	w, ok := m.wallets[userID]
	if !ok || w.Deleted {
		return store.Wallet{}, store.ErrWalletNotFound
	}

	return copyWallet(w), nil
}

// TombstoneWallet marks the user's wallet record deleted.
func (m *Memory) TombstoneWallet(userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.wallets[userID]
	if !ok {
		return store.ErrWalletNotFound
	}

	now := time.Now().UTC()
	w.Deleted = true
	w.DeletedAt = &now
	m.wallets[userID] = w

	return nil
}

// ListWallets returns every live wallet record.
func (m *Memory) ListWallets() ([]store.Wallet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ws := []store.Wallet{}

	for _, w := range m.wallets {
		if !w.Deleted {
			ws = append(ws, copyWallet(w))
		}
	}

	return ws, nil
}

// EnsureBalances creates the user's ledger entry with zero balances if it does not exist yet.
func (m *Memory) EnsureBalances(userID string, symbols []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.ledgers[userID]; ok {
		return nil
	}

	l := make(map[string]decimal.Decimal, len(symbols))
	for _, s := range symbols {
		l[s] = decimal.Zero
	}

	m.ledgers[userID] = l

	return nil
}

// GetBalances returns the user's ledger balances.
func (m *Memory) GetBalances(userID string) (map[string]decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	l, ok := m.ledgers[userID]
	if !ok {
		return nil, store.ErrUserNotFound
	}

	bals := make(map[string]decimal.Decimal, len(l))
	for sym, b := range l {
		bals[sym] = b
	}

	return bals, nil
}

// IncrementBalance atomically adds amount to the user's balance for the symbol.
func (m *Memory) IncrementBalance(userID, symbol string, amount decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.ledgers[userID]
	if !ok {
		return store.ErrUserNotFound
	}

	l[symbol] = l[symbol].Add(amount)

	return nil
}

// AddTransaction appends one entry to the transaction log, rejecting duplicate refs with
// store.ErrDuplicateTx.
func (m *Memory) AddTransaction(tx store.Transaction) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.refs[tx.Ref]; ok {
		return "", store.ErrDuplicateTx
	}

	m.refs[tx.Ref] = struct{}{}
	m.txs = append(m.txs, tx)

	return tx.ID, nil
}

// SetTransactionStatus transitions one transaction log entry's status.
func (m *Memory) SetTransactionStatus(id, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.txs {
		if m.txs[i].ID == id {
			m.txs[i].Status = status

			return nil
		}
	}

	return store.ErrTxNotFound
}

// ListTransactions returns the user's transaction log entries in insertion order.
func (m *Memory) ListTransactions(userID string) ([]store.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	txs := []store.Transaction{}

	for _, tx := range m.txs {
		if tx.UserID == userID {
			txs = append(txs, tx)
		}
	}

	return txs, nil
}
