// Package crypt routes encrypted fields through a pluggable Adapter.
//
// The Gate is the only caller of an Adapter. It wraps every value into a
// one-element BSON document before encryption so the decrypted value comes
// back with its original wire type, and carries ciphertext on the wire as a
// base64 string. Fields not declared encrypted, and every field when no
// adapter is configured, pass through unchanged.
//
// AEAD is the stock adapter: XChaCha20-Poly1305 with a per-field subkey
// derived from a master key by HKDF-SHA256. The field name is bound as
// associated data, so a ciphertext moved to another field fails to
// authenticate. Decrypting with the wrong key always fails with
// ErrAuthentication; it never yields garbage plaintext.
package crypt
