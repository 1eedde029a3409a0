package store

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wallet contains the fields for a user's wallet record. Keys holds one encrypted signing key per
// chain; plaintext key material never enters the store. A reset overwrites the record with a tombstone
// before a brand-new wallet is saved in its place.
type Wallet struct {
	UserID    string            `json:"user_id" bson:"_id"`
	Addresses map[string]string `json:"addresses" bson:"addresses"`
	Keys      map[string]string `json:"-" bson:"keys"`
	EncSeed   string            `json:"-" bson:"enc_seed"`
	CreatedAt time.Time         `json:"created_at" bson:"created_at"`
	Deleted   bool              `json:"deleted,omitempty" bson:"deleted,omitempty"`
	DeletedAt *time.Time        `json:"deleted_at,omitempty" bson:"deleted_at,omitempty"`
}

// Transaction types.
const (
	TxDeposit = "deposit"
)

// Transaction statuses. Entries are immutable once written except the status transition from pending
// to completed or failed.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Transaction contains the fields of one credited deposit in the append-only log. Ref is the
// cycle-scoped idempotency token; the store enforces its uniqueness so a ledger credit is applied at
// most once per token.
type Transaction struct {
	ID        string          `json:"id" bson:"_id"`
	UserID    string          `json:"user_id" bson:"user_id"`
	Type      string          `json:"type" bson:"type"`
	Token     string          `json:"token" bson:"token"`
	Amount    decimal.Decimal `json:"amount" bson:"-"`
	Chain     string          `json:"chain" bson:"chain"`
	TxHash    string          `json:"tx_hash" bson:"tx_hash"`
	Ref       string          `json:"ref" bson:"ref"`
	Status    string          `json:"status" bson:"status"`
	Timestamp time.Time       `json:"timestamp" bson:"timestamp"`
}
