// Package mongo implements the store interface for MongoDB.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	mgo "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/cexcore/custody/lib/store"
)

// Mongo implements a connection to a MongoDB database.
type Mongo struct {
	c *mgo.Client
}

// database and collection names
const (
	db           = "custody"
	colWallets   = "wallets"
	colLedgers   = "ledgers"
	colTransacts = "transactions"
)

// mongoLedger implements a store ledger document in MongoDB. Balances are stored as doubles so the
// document store's atomic $inc can be the sole concurrency primitive for credits.
type mongoLedger struct {
	UserID   string             `bson:"_id"`
	Balances map[string]float64 `bson:"balances"`
}

// mongoTransaction implements a store transaction document in MongoDB.
type mongoTransaction struct {
	ID        string    `bson:"_id"`
	UserID    string    `bson:"user_id"`
	Type      string    `bson:"type"`
	Token     string    `bson:"token"`
	Amount    float64   `bson:"amount"`
	Chain     string    `bson:"chain"`
	TxHash    string    `bson:"tx_hash"`
	Ref       string    `bson:"ref"`
	Status    string    `bson:"status"`
	Timestamp time.Time `bson:"timestamp"`
}

// Transaction converts a mongoTransaction to store.Transaction type.
func (t mongoTransaction) Transaction() store.Transaction {
	return store.Transaction{
		ID:        t.ID,
		UserID:    t.UserID,
		Type:      t.Type,
		Token:     t.Token,
		Amount:    decimal.NewFromFloat(t.Amount),
		Chain:     t.Chain,
		TxHash:    t.TxHash,
		Ref:       t.Ref,
		Status:    t.Status,
		Timestamp: t.Timestamp,
	}
}

// New returns a Mongo client connection to the specified MongoDB database uri. The unique index
// backing the transaction log idempotency ref is ensured at connect time.
func New(uri string) (*Mongo, error) {
	c, err := mgo.NewClient(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("cannot connect to mongo DB in %s: %w", uri, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second) //nolint:gomnd // 5 seconds timeout
	defer cancel()

	if err = c.Connect(ctx); err != nil {
		return nil, fmt.Errorf("error connecting to mongo DB: %w", err)
	}

	m := &Mongo{c: c}

	_, err = m.c.Database(db).Collection(colTransacts).Indexes().CreateOne(ctx, mgo.IndexModel{
		Keys:    bson.D{{Key: "ref", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return nil, fmt.Errorf("error ensuring transaction ref index: %w", err)
	}

	return m, nil
}

// CloseMongo will close a database connection. Must be called at termination time.
func (m *Mongo) CloseMongo() error {
	return m.c.Disconnect(context.Background())
}

// SaveWallet replaces the user's wallet record as one full document. Wallet records are never
// partially updated; a reset saves a brand-new record over the tombstone.
func (m *Mongo) SaveWallet(w store.Wallet) error {
	_, err := m.c.Database(db).Collection(colWallets).ReplaceOne(context.Background(),
		bson.M{"_id": w.UserID}, w, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("could not save wallet in db: %w", err)
	}

	return nil
}

// LoadWallet returns the user's wallet record. Absent and tombstoned records both report
// store.ErrWalletNotFound.
func (m *Mongo) LoadWallet(userID string) (store.Wallet, error) {
	var w store.Wallet

	sr := m.c.Database(db).Collection(colWallets).FindOne(context.Background(), bson.M{"_id": userID})

	err := sr.Decode(&w)
	if errors.Is(err, mgo.ErrNoDocuments) {
		return w, store.ErrWalletNotFound
	}

	if err != nil {
		return w, fmt.Errorf("could not load wallet from db: %w", err)
	}

	if w.Deleted {
		return store.Wallet{}, store.ErrWalletNotFound
	}

	return w, nil
}

// TombstoneWallet marks the user's wallet record deleted. The record id is not reused; a subsequent
// save overwrites the tombstone with a wallet generated from a fresh seed.
func (m *Mongo) TombstoneWallet(userID string) error {
	now := time.Now().UTC()

	res, err := m.c.Database(db).Collection(colWallets).UpdateOne(context.Background(),
		bson.M{"_id": userID},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "deleted", Value: true},
			{Key: "deleted_at", Value: now},
		}}})
	if err != nil {
		return fmt.Errorf("could not tombstone wallet in db: %w", err)
	}

	if res.MatchedCount == 0 {
		return store.ErrWalletNotFound
	}

	return nil
}

// ListWallets returns every live wallet record.
func (m *Mongo) ListWallets() ([]store.Wallet, error) {
	docs, err := m.c.Database(db).Collection(colWallets).Find(context.Background(),
		bson.M{"deleted": bson.M{"$ne": true}})
	if err != nil {
		return nil, fmt.Errorf("error listing wallets from db: %w", err)
	}

	ws := []store.Wallet{}

	for docs.Next(context.Background()) {
		var w store.Wallet
		if err = bson.Unmarshal(docs.Current, &w); err == nil {
			ws = append(ws, w)
		}
	}

	return ws, nil
}

// EnsureBalances creates the user's ledger entry with zero balances for the given symbols if it does
// not exist yet. An existing ledger is never overwritten.
func (m *Mongo) EnsureBalances(userID string, symbols []string) error {
	zero := make(map[string]float64, len(symbols))
	for _, s := range symbols {
		zero[s] = 0
	}

	_, err := m.c.Database(db).Collection(colLedgers).UpdateOne(context.Background(),
		bson.M{"_id": userID},
		bson.D{{Key: "$setOnInsert", Value: bson.D{{Key: "balances", Value: zero}}}},
		options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("could not ensure ledger in db: %w", err)
	}

	return nil
}

// GetBalances returns the user's ledger balances, or store.ErrUserNotFound when the user has no
// ledger entry.
func (m *Mongo) GetBalances(userID string) (map[string]decimal.Decimal, error) {
	var l mongoLedger

	sr := m.c.Database(db).Collection(colLedgers).FindOne(context.Background(), bson.M{"_id": userID})

	err := sr.Decode(&l)
	if errors.Is(err, mgo.ErrNoDocuments) {
		return nil, store.ErrUserNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("could not load ledger from db: %w", err)
	}

	bals := make(map[string]decimal.Decimal, len(l.Balances))
	for sym, b := range l.Balances {
		bals[sym] = decimal.NewFromFloat(b)
	}

	return bals, nil
}

// IncrementBalance atomically adds amount to the user's balance for the symbol via $inc. It is an
// increment, never a read-modify-write, so it stays correct under concurrent reconciliation and
// concurrent manual adjustments going through the same method.
func (m *Mongo) IncrementBalance(userID, symbol string, amount decimal.Decimal) error {
	f, _ := amount.Float64()

	res, err := m.c.Database(db).Collection(colLedgers).UpdateOne(context.Background(),
		bson.M{"_id": userID},
		bson.D{{Key: "$inc", Value: bson.D{{Key: "balances." + symbol, Value: f}}}})
	if err != nil {
		return fmt.Errorf("could not increment balance in db: %w", err)
	}

	if res.MatchedCount == 0 {
		return store.ErrUserNotFound
	}

	return nil
}

// AddTransaction appends one deposit entry to the transaction log. The unique index on ref rejects a
// second entry carrying the same idempotency token with store.ErrDuplicateTx.
func (m *Mongo) AddTransaction(tx store.Transaction) (string, error) {
	f, _ := tx.Amount.Float64()

	doc := mongoTransaction{
		ID:        tx.ID,
		UserID:    tx.UserID,
		Type:      tx.Type,
		Token:     tx.Token,
		Amount:    f,
		Chain:     tx.Chain,
		TxHash:    tx.TxHash,
		Ref:       tx.Ref,
		Status:    tx.Status,
		Timestamp: tx.Timestamp,
	}

	_, err := m.c.Database(db).Collection(colTransacts).InsertOne(context.Background(), doc)
	if mgo.IsDuplicateKeyError(err) {
		return "", store.ErrDuplicateTx
	}

	if err != nil {
		return "", fmt.Errorf("could not insert transaction in db: %w", err)
	}

	return tx.ID, nil
}

// SetTransactionStatus transitions one transaction log entry's status. No other field of a written
// entry is ever mutated.
func (m *Mongo) SetTransactionStatus(id, status string) error {
	res, err := m.c.Database(db).Collection(colTransacts).UpdateOne(context.Background(),
		bson.M{"_id": id},
		bson.D{{Key: "$set", Value: bson.D{{Key: "status", Value: status}}}})
	if err != nil {
		return fmt.Errorf("could not update transaction in db: %w", err)
	}

	if res.MatchedCount == 0 {
		return store.ErrTxNotFound
	}

	return nil
}

// ListTransactions returns the user's transaction log entries in insertion order.
func (m *Mongo) ListTransactions(userID string) ([]store.Transaction, error) {
	docs, err := m.c.Database(db).Collection(colTransacts).Find(context.Background(),
		bson.M{"user_id": userID}, options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("error listing transactions from db: %w", err)
	}

	txs := []store.Transaction{}

	for docs.Next(context.Background()) {
		var tx mongoTransaction
		if err = bson.Unmarshal(docs.Current, &tx); err == nil {
			txs = append(txs, tx.Transaction())
		}
	}

	return txs, nil
}
