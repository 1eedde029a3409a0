package wallet

import (
	"errors"
	"log"
	"sync"

	"github.com/cexcore/custody/lib/chain/types"
	"github.com/cexcore/custody/lib/cipher"
	"github.com/cexcore/custody/lib/store"
)

// Errors returned by the wallet store adapter.
var (
	ErrNoReason   = errors.New("signing key access requires a reason")
	ErrKeyNotHeld = errors.New("no signing key held for that chain")
)

// Wallets is the store adapter for wallet records. Loads are read-through-create: an unknown user gets
// a freshly generated wallet, idempotently under concurrent calls for the same user. Addresses are
// exposed freely; signing keys only leave through the audited SigningKey path.
type Wallets struct {
	db  store.DB
	gen *Generator
	enc cipher.Cipher

	mu    sync.Mutex
	locks map[string]*sync.Mutex // per-user creation locks
}

// NewWallets returns a wallet store adapter over the given store.
func NewWallets(db store.DB, gen *Generator, enc cipher.Cipher) *Wallets {
	return &Wallets{
		db:    db,
		gen:   gen,
		enc:   enc,
		locks: make(map[string]*sync.Mutex),
	}
}

func (a *Wallets) userLock(userID string) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()

	l, ok := a.locks[userID]
	if !ok {
		l = new(sync.Mutex)
		a.locks[userID] = l
	}

	return l
}

// Load returns the user's wallet record, creating it first if the user has none. The returned seed
// phrase is non-empty only when this call created the wallet; a concurrent creation that loses the
// race discards its generation and returns the stored record instead.
func (a *Wallets) Load(userID string) (store.Wallet, string, error) {
	w, err := a.db.LoadWallet(userID)
	if err == nil {
		return w, "", nil
	}

	if !errors.Is(err, store.ErrWalletNotFound) {
		return store.Wallet{}, "", err
	}

	l := a.userLock(userID)
	l.Lock()
	defer l.Unlock()

	// re-check under the lock, another call may have created it meanwhile
	if w, err = a.db.LoadWallet(userID); err == nil {
		return w, "", nil
	}

	return a.create(userID)
}

// Reset tombstones the user's wallet record and saves a brand-new wallet generated from a fresh seed
// in its place. The old signing keys become unrecoverable; the new record's addresses differ from the
// previous generation with overwhelming probability.
func (a *Wallets) Reset(userID string) (store.Wallet, string, error) {
	l := a.userLock(userID)
	l.Lock()
	defer l.Unlock()

	if err := a.db.TombstoneWallet(userID); err != nil {
		return store.Wallet{}, "", err
	}

	return a.create(userID)
}

func (a *Wallets) create(userID string) (store.Wallet, string, error) {
	w, mnemonic, err := a.gen.Generate(userID)
	if err != nil {
		return store.Wallet{}, "", err
	}

	if err = a.db.SaveWallet(w); err != nil {
		return store.Wallet{}, "", err
	}

	// a user gets a zero ledger entry together with the first wallet; existing ledgers survive resets
	if err = a.db.EnsureBalances(userID, types.Symbols()); err != nil {
		return store.Wallet{}, "", err
	}

	return w, mnemonic, nil
}

// Addresses returns the user's deposit address per chain. It does not create wallets.
func (a *Wallets) Addresses(userID string) (map[string]string, error) {
	w, err := a.db.LoadWallet(userID)
	if err != nil {
		return nil, err
	}

	return w.Addresses, nil
}

// SigningKey decrypts and returns one signing key. This is the gated access path: callers must state
// a reason and every access is written to the audit log.
func (a *Wallets) SigningKey(userID, chainName, reason string) (string, error) {
	if reason == "" {
		return "", ErrNoReason
	}

	w, err := a.db.LoadWallet(userID)
	if err != nil {
		return "", err
	}

	enc, ok := w.Keys[chainName]
	if !ok {
		return "", ErrKeyNotHeld
	}

	key, err := a.enc.Decrypt(enc)
	if err != nil {
		return "", err
	}

	log.Printf("[audit] signing key accessed user:%s chain:%s reason:%s", userID, chainName, reason)

	return key, nil
}
