package wallet

import (
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	sol "github.com/gagliardetto/solana-go"
	"github.com/tarancss/hd"
	bip39 "github.com/tyler-smith/go-bip39"

	"github.com/cexcore/custody/lib/chain/types"
	"github.com/cexcore/custody/lib/cipher"
	"github.com/cexcore/custody/lib/store"
)

// ErrGenerate is returned when an underlying cryptographic primitive fails during wallet generation.
// Generation is pure; on error nothing partial is returned and nothing must be persisted.
var ErrGenerate = errors.New("wallet generation failed")

// Generator derives the key material for a new wallet: one deposit address and signing key per chain
// in the registry. Persistence is the caller's responsibility.
type Generator struct {
	enc cipher.Cipher
}

// NewGenerator returns a Generator sealing key material with the given cipher.
func NewGenerator(enc cipher.Cipher) *Generator {
	return &Generator{enc: enc}
}

// Generate creates a fresh wallet record for the user and returns it together with the plaintext seed
// phrase. The seed phrase is handed out exactly this once; only its ciphertext enters the record, and
// every per-chain signing key is individually encrypted as well.
//
// All EVM-family chains share one keypair derived from the seed phrase: they share an address format
// and signing scheme, so the first external BIP44 address serves every one of them. The account-model
// chain gets an independently generated keypair via its native primitive, since the derivation schemes
// differ.
func (g *Generator) Generate(userID string) (store.Wallet, string, error) {
	entropy, err := bip39.NewEntropy(128)
	if err != nil {
		return store.Wallet{}, "", fmt.Errorf("%w: entropy: %s", ErrGenerate, err)
	}

	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return store.Wallet{}, "", fmt.Errorf("%w: mnemonic: %s", ErrGenerate, err)
	}

	hdw, err := hd.Init(bip39.NewSeed(mnemonic, ""))
	if err != nil {
		return store.Wallet{}, "", fmt.Errorf("%w: hd wallet: %s", ErrGenerate, err)
	}

	addr, key, _, err := hdw.Address(0, hd.External, 0)
	if err != nil {
		return store.Wallet{}, "", fmt.Errorf("%w: hd address: %s", ErrGenerate, err)
	}

	evmAddr := "0x" + hex.EncodeToString(addr)
	evmKey := hex.EncodeToString(key)

	solw := sol.NewWallet()

	w := store.Wallet{
		UserID:    userID,
		Addresses: make(map[string]string),
		Keys:      make(map[string]string),
		CreatedAt: time.Now().UTC(),
	}

	for _, spec := range types.Registry() {
		var a, k string

		switch spec.Family {
		case types.FamilyEVM:
			a, k = evmAddr, evmKey
		case types.FamilySolana:
			a, k = solw.PublicKey().String(), solw.PrivateKey.String()
		}

		encKey, errEnc := g.enc.Encrypt(k)
		if errEnc != nil {
			return store.Wallet{}, "", fmt.Errorf("%w: key encryption: %s", ErrGenerate, errEnc)
		}

		w.Addresses[spec.Name] = a
		w.Keys[spec.Name] = encKey
	}

	if w.EncSeed, err = g.enc.Encrypt(mnemonic); err != nil {
		return store.Wallet{}, "", fmt.Errorf("%w: seed encryption: %s", ErrGenerate, err)
	}

	return w, mnemonic, nil
}
