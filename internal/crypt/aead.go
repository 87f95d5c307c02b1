package crypt

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// KeySize is the master key length in bytes.
const KeySize = chacha20poly1305.KeySize

// subkeyInfo prefixes the HKDF info string; the field name follows.
const subkeyInfo = "docmap/field/v1:"

// AEAD is an Adapter using XChaCha20-Poly1305 with per-field subkeys.
//
// Ciphertext layout: 24-byte random nonce followed by the sealed box.
type AEAD struct {
	master []byte

	mu      sync.Mutex
	subkeys map[string]cipher.AEAD
}

// NewAEAD creates an adapter from a KeySize master key.
func NewAEAD(key []byte) (*AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("aead: key must be %d bytes, got %d", KeySize, len(key))
	}
	master := make([]byte, KeySize)
	copy(master, key)
	return &AEAD{master: master, subkeys: make(map[string]cipher.AEAD)}, nil
}

// NewKey returns a random master key.
func NewKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return key, nil
}

// ParseKey decodes a hex master key.
func ParseKey(s string) ([]byte, error) {
	key, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("parse key: %w", err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("parse key: must be %d bytes, got %d", KeySize, len(key))
	}
	return key, nil
}

func (a *AEAD) cipherFor(field string) (cipher.AEAD, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if c, ok := a.subkeys[field]; ok {
		return c, nil
	}
	sub := make([]byte, chacha20poly1305.KeySize)
	kdf := hkdf.New(sha256.New, a.master, nil, []byte(subkeyInfo+field))
	if _, err := io.ReadFull(kdf, sub); err != nil {
		return nil, fmt.Errorf("derive subkey: %w", err)
	}
	c, err := chacha20poly1305.NewX(sub)
	if err != nil {
		return nil, err
	}
	a.subkeys[field] = c
	return c, nil
}

// Encrypt implements Adapter.
func (a *AEAD) Encrypt(field string, plaintext []byte) ([]byte, error) {
	c, err := a.cipherFor(field)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, c.NonceSize(), c.NonceSize()+len(plaintext)+c.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}
	return c.Seal(nonce, nonce, plaintext, []byte(field)), nil
}

// Decrypt implements Adapter.
func (a *AEAD) Decrypt(field string, ciphertext []byte) ([]byte, error) {
	c, err := a.cipherFor(field)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < c.NonceSize()+c.Overhead() {
		return nil, fmt.Errorf("%w: %d bytes", ErrMalformedCiphertext, len(ciphertext))
	}
	nonce, box := ciphertext[:c.NonceSize()], ciphertext[c.NonceSize():]
	plain, err := c.Open(nil, nonce, box, []byte(field))
	if err != nil {
		return nil, ErrAuthentication
	}
	return plain, nil
}
