// Package msg defines the interface for different message brokers.
package msg

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Actions carried by wallet requests.
const (
	WATCH   = 0
	UNWATCH = 1
)

// WalletReq defines the message the wallet service publishes when a wallet is created or reset, so
// monitors learn about new deposit addresses without waiting for their next store enumeration.
type WalletReq struct {
	UserID string `json:"user_id"`
	Act    int    `json:"act"`
}

// Deposit defines the event the monitor service publishes for every credited deposit. Ref carries the
// idempotency token of the matching transaction log entry, so there is at most one event per entry.
type Deposit struct {
	UserID string          `json:"user_id"`
	Chain  string          `json:"chain"`
	Token  string          `json:"token"`
	Amount decimal.Decimal `json:"amount"`
	TxHash string          `json:"tx_hash"`
	Ref    string          `json:"ref"`
	TS     time.Time       `json:"ts"`
}

type MsgBroker interface {
	Setup(interface{}) error
	Close() error

	// methods for wallet service
	SendWalletReq(r WalletReq) error
	GetDeposits(chain string, mut *sync.Mutex) (<-chan Deposit, <-chan error, error)

	// methods for monitor service
	GetWalletReqs(mut *sync.Mutex) (<-chan WalletReq, <-chan error, error)
	SendDeposits(chain string, d []Deposit) error
}
