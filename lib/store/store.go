// Package store defines the interface for database implementations to the wallet and monitor microservices.
package store

import (
	"errors"

	"github.com/shopspring/decimal"
)

// DB defines the document-style store shared by the services: wallet records, the per-user balance
// ledger and the append-only transaction log. Implementations guarantee per-document atomic updates
// only; IncrementBalance is the sole concurrency-safety primitive shared between the reconciliation
// loop and any other balance mutator.
type DB interface {
	// wallet records
	SaveWallet(w Wallet) error
	LoadWallet(userID string) (Wallet, error)
	TombstoneWallet(userID string) error
	ListWallets() ([]Wallet, error)
	// balance ledger
	EnsureBalances(userID string, symbols []string) error
	GetBalances(userID string) (map[string]decimal.Decimal, error)
	IncrementBalance(userID, symbol string, amount decimal.Decimal) error
	// transaction log
	AddTransaction(tx Transaction) (string, error)
	SetTransactionStatus(id, status string) error
	ListTransactions(userID string) ([]Transaction, error)
}

// Errors returned
var (
	ErrWalletNotFound = errors.New("wallet was not found in store")
	ErrUserNotFound   = errors.New("user ledger was not found in store")
	ErrTxNotFound     = errors.New("transaction was not found in store")
	ErrDuplicateTx    = errors.New("transaction ref already present in store")
)
