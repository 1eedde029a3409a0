package cipher

import (
	"testing"
)

// TestCipher checks the key validation and that ciphertexts round-trip.
func TestCipher(t *testing.T) {
	// a key of the wrong length must be rejected
	if _, err := New("too-short"); err != ErrKeyLength {
		t.Errorf("expected ErrKeyLength, got:%e", err)
	}

	c, err := New("0123456789abcdef0123456789abcdef")
	if err != nil {
		t.Errorf("Error creating cipher:%e", err)
		return
	}

	cases := []string{
		"",
		"glove banner thrive lunch mixed crisp market tourist purse tongue claim rocket",
		"0x44b988a54e9d48ae52a5ccdbf09df1d3dbc52fba",
	}
	for _, plain := range cases {
		enc, err := c.Encrypt(plain)
		if err != nil {
			t.Errorf("Error encrypting %q:%e", plain, err)
			continue
		}
		if enc == plain && plain != "" {
			t.Errorf("ciphertext equals plaintext for %q", plain)
		}
		dec, err := c.Decrypt(enc)
		if err != nil || dec != plain {
			t.Errorf("round-trip failed for %q: got %q err:%e", plain, dec, err)
		}
	}

	// two encryptions of the same plaintext must differ (random nonce)
	e1, _ := c.Encrypt("same")
	e2, _ := c.Encrypt("same")
	if e1 == e2 {
		t.Errorf("identical ciphertexts for repeated encryption")
	}

	// garbage must not decrypt
	if _, err := c.Decrypt("bm90IGEgcmVhbCBjaXBoZXJ0ZXh0IGF0IGFsbCE="); err == nil {
		t.Errorf("expected error decrypting garbage")
	}
}
