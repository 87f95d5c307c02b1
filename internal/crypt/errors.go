package crypt

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthentication reports a key mismatch or tampered ciphertext.
	ErrAuthentication = errors.New("ciphertext authentication failed")

	// ErrMalformedCiphertext reports input that cannot be ciphertext at all:
	// not a string, not base64, or too short.
	ErrMalformedCiphertext = errors.New("malformed ciphertext")
)

// DecryptError is returned when a field value cannot be decrypted.
// It is fatal to the operation and never swallowed.
type DecryptError struct {
	// Field is the local name of the field being decrypted.
	Field string

	// Err is the cause, typically ErrAuthentication or ErrMalformedCiphertext.
	Err error
}

// Error implements the error interface.
func (e *DecryptError) Error() string {
	return fmt.Sprintf("decrypt field %q: %v", e.Field, e.Err)
}

func (e *DecryptError) Unwrap() error { return e.Err }

// EncryptError is returned when a field value cannot be encrypted.
type EncryptError struct {
	Field string
	Err   error
}

// Error implements the error interface.
func (e *EncryptError) Error() string {
	return fmt.Sprintf("encrypt field %q: %v", e.Field, e.Err)
}

func (e *EncryptError) Unwrap() error { return e.Err }

// IsDecryptError returns true if the error is a decryption failure.
// Uses errors.As to handle wrapped errors.
func IsDecryptError(err error) bool {
	var de *DecryptError
	return errors.As(err, &de)
}

// IsEncryptError returns true if the error is an encryption failure.
func IsEncryptError(err error) bool {
	var ee *EncryptError
	return errors.As(err, &ee)
}
