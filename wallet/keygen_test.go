package wallet

import (
	"strings"
	"testing"

	"github.com/cexcore/custody/lib/chain/types"
	"github.com/cexcore/custody/lib/cipher"
)

func testCipher(t *testing.T) cipher.Cipher {
	t.Helper()

	c, err := cipher.New("0123456789abcdef0123456789abcdef")
	if err != nil {
		t.Fatalf("Error creating cipher:%e", err)
	}

	return c
}

func TestGenerate(t *testing.T) {
	enc := testCipher(t)
	g := NewGenerator(enc)

	w, mnemonic, err := g.Generate("user1")
	if err != nil {
		t.Fatalf("Error generating wallet:%e", err)
	}

	if w.UserID != "user1" {
		t.Errorf("Error in user id:%s expected:user1", w.UserID)
	}

	// a 128-bit mnemonic has 12 words
	if words := strings.Fields(mnemonic); len(words) != 12 {
		t.Errorf("Error in mnemonic words:%d expected:12", len(words))
	}

	// addresses and keys must cover the registry exactly
	if len(w.Addresses) != len(types.Registry()) || len(w.Keys) != len(types.Registry()) {
		t.Errorf("Error in address count:%d keys:%d expected:%d", len(w.Addresses), len(w.Keys), len(types.Registry()))
	}

	var evmAddr string

	for _, spec := range types.Registry() {
		addr, ok := w.Addresses[spec.Name]
		if !ok || addr == "" {
			t.Errorf("[%s] missing address", spec.Name)

			continue
		}

		key, ok := w.Keys[spec.Name]
		if !ok || key == "" {
			t.Errorf("[%s] missing key", spec.Name)

			continue
		}

		// keys are stored encrypted and must round-trip through the cipher
		plain, errDec := enc.Decrypt(key)
		if errDec != nil {
			t.Errorf("[%s] Error decrypting key:%e", spec.Name, errDec)
		} else if plain == key {
			t.Errorf("[%s] key stored in plaintext", spec.Name)
		}

		switch spec.Family {
		case types.FamilyEVM:
			if !strings.HasPrefix(addr, "0x") {
				t.Errorf("[%s] Error in address format:%s", spec.Name, addr)
			}

			if evmAddr == "" {
				evmAddr = addr
			} else if addr != evmAddr { // the whole EVM family shares one keypair
				t.Errorf("[%s] Error in address:%s expected shared:%s", spec.Name, addr, evmAddr)
			}
		case types.FamilySolana:
			if addr == evmAddr || strings.HasPrefix(addr, "0x") {
				t.Errorf("[%s] Error in address:%s, expected an independent base58 keypair", spec.Name, addr)
			}
		}
	}

	// the seed is persisted encrypted only
	if w.EncSeed == "" || w.EncSeed == mnemonic {
		t.Errorf("Error in encrypted seed:%s", w.EncSeed)
	}

	if plain, errDec := enc.Decrypt(w.EncSeed); errDec != nil || plain != mnemonic {
		t.Errorf("Error in seed round-trip:%s err:%e", plain, errDec)
	}
}

func TestGenerateFresh(t *testing.T) {
	g := NewGenerator(testCipher(t))

	w1, m1, err := g.Generate("user1")
	if err != nil {
		t.Fatalf("Error generating wallet:%e", err)
	}

	w2, m2, err := g.Generate("user1")
	if err != nil {
		t.Fatalf("Error generating wallet:%e", err)
	}

	if m1 == m2 {
		t.Errorf("Error: two generations produced the same mnemonic")
	}

	if w1.Addresses["ethereum"] == w2.Addresses["ethereum"] {
		t.Errorf("Error: two generations produced the same address %s", w1.Addresses["ethereum"])
	}
}
