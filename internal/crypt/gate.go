package crypt

import (
	"encoding/base64"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/roach88/docmap/internal/schema"
)

// valueKey is the key of the one-element envelope document.
const valueKey = "v"

// Adapter encrypts and decrypts opaque byte strings on behalf of a field.
// Decrypt must fail with an error wrapping ErrAuthentication when the
// ciphertext was produced under a different key.
type Adapter interface {
	Encrypt(field string, plaintext []byte) ([]byte, error)
	Decrypt(field string, ciphertext []byte) ([]byte, error)
}

// Gate applies an Adapter to encrypted fields. A nil *Gate, or one
// without an adapter, is a no-op.
type Gate struct {
	adapter Adapter
}

// NewGate creates a gate over an adapter. adapter may be nil.
func NewGate(adapter Adapter) *Gate {
	return &Gate{adapter: adapter}
}

// Enabled reports whether an adapter is configured.
func (g *Gate) Enabled() bool {
	return g != nil && g.adapter != nil
}

// IsEncrypted reports whether values of f pass through the adapter.
func (g *Gate) IsEncrypted(f schema.Field) bool {
	return g.Enabled() && f.Encrypted
}

// Encrypt turns a serializable wire value into its ciphertext string.
// nil stays nil.
func (g *Gate) Encrypt(f schema.Field, value any) (any, error) {
	if !g.IsEncrypted(f) || value == nil {
		return value, nil
	}
	plain, err := bson.Marshal(bson.D{{Key: valueKey, Value: value}})
	if err != nil {
		return nil, &EncryptError{Field: f.Name, Err: err}
	}
	sealed, err := g.adapter.Encrypt(f.Name, plain)
	if err != nil {
		return nil, &EncryptError{Field: f.Name, Err: err}
	}
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt turns a ciphertext string back into the wire value it was
// produced from. nil stays nil.
func (g *Gate) Decrypt(f schema.Field, value any) (any, error) {
	if !g.IsEncrypted(f) || value == nil {
		return value, nil
	}
	s, ok := value.(string)
	if !ok {
		return nil, &DecryptError{Field: f.Name, Err: fmt.Errorf("%w: got %T, want string", ErrMalformedCiphertext, value)}
	}
	sealed, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, &DecryptError{Field: f.Name, Err: fmt.Errorf("%w: %v", ErrMalformedCiphertext, err)}
	}
	plain, err := g.adapter.Decrypt(f.Name, sealed)
	if err != nil {
		return nil, &DecryptError{Field: f.Name, Err: err}
	}
	var env bson.D
	if err := bson.Unmarshal(plain, &env); err != nil {
		return nil, &DecryptError{Field: f.Name, Err: fmt.Errorf("%w: envelope: %v", ErrMalformedCiphertext, err)}
	}
	for _, e := range env {
		if e.Key == valueKey {
			return e.Value, nil
		}
	}
	return nil, &DecryptError{Field: f.Name, Err: fmt.Errorf("%w: empty envelope", ErrMalformedCiphertext)}
}
