// Package cipher implements the symmetric cipher used to protect seed phrases and signing keys at rest.
package cipher

import (
	"crypto/aes"
	gcipher "crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// Errors returned
var (
	ErrKeyLength  = errors.New("master key must be 32 bytes for AES-256")
	ErrShortInput = errors.New("ciphertext too short")
)

// Cipher encrypts and decrypts strings. Implementations must round-trip: Decrypt(Encrypt(s)) == s.
type Cipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// AES implements Cipher using AES-256-GCM. Ciphertexts are base64 encoded with the nonce prepended.
type AES struct {
	key []byte
}

// New returns an AES cipher for the given master key. The key may be given raw or base64 encoded; it
// must decode to 32 bytes.
func New(masterKey string) (*AES, error) {
	key := []byte(masterKey)
	if decoded, err := base64.StdEncoding.DecodeString(masterKey); err == nil {
		key = decoded
	}

	if len(key) != 32 {
		return nil, ErrKeyLength
	}

	return &AES{key: key}, nil
}

// Encrypt seals the plaintext with a fresh random nonce and returns the base64 encoded result.
func (a *AES) Encrypt(plaintext string) (string, error) {
	gcm, err := a.gcm()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err = io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("cipher: cannot generate nonce: %w", err)
	}

	return base64.StdEncoding.EncodeToString(gcm.Seal(nonce, nonce, []byte(plaintext), nil)), nil
}

// Decrypt opens a base64 encoded ciphertext produced by Encrypt.
func (a *AES) Decrypt(ciphertext string) (string, error) {
	decoded, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("cipher: cannot decode ciphertext: %w", err)
	}

	gcm, err := a.gcm()
	if err != nil {
		return "", err
	}

	if len(decoded) < gcm.NonceSize() {
		return "", ErrShortInput
	}

	nonce, sealed := decoded[:gcm.NonceSize()], decoded[gcm.NonceSize():]

	plain, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("cipher: decryption failed: %w", err)
	}

	return string(plain), nil
}

func (a *AES) gcm() (gcipher.AEAD, error) {
	block, err := aes.NewCipher(a.key)
	if err != nil {
		return nil, fmt.Errorf("cipher: cannot create cipher: %w", err)
	}

	gcm, err := gcipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher: cannot create GCM: %w", err)
	}

	return gcm, nil
}
