// Package crypto provides the cryptographic primitives for blobvault.
//
// This package implements AES-256-GCM authenticated encryption, keyed
// hashing and random byte generation. Every encrypted value produced here
// is self-contained: the 12-byte nonce is prepended and the 16-byte GCM
// authentication tag is appended, so callers store and transmit a single
// opaque byte string.
//
// # Security Features
//
//   - AES-256-GCM authenticated encryption
//   - Fresh random nonce per encryption (two encryptions of identical
//     plaintext under the same key never produce the same output)
//   - HMAC-SHA256 keyed hashing for integrity-only checks outside the
//     AEAD layer
//   - Secure memory wiping for sensitive data
//
// # Example Usage
//
//	// Encrypt data under a 32-byte key
//	sealed, err := crypto.Encrypt(plaintext, key)
//
//	// Decrypt (fails with ErrAuthenticationFailure on tamper or wrong key)
//	plaintext, err := crypto.Decrypt(sealed, key)
//
//	// Securely wipe sensitive data
//	crypto.SecureWipe(key)
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"runtime"
)

// Encryption layout constants.
const (
	// KeyLength is the length of encryption keys in bytes (256 bits).
	KeyLength = 32

	// NonceLength is the length of GCM nonces in bytes (96 bits).
	NonceLength = 12

	// TagLength is the length of the GCM authentication tag in bytes.
	TagLength = 16

	// Overhead is the number of bytes Encrypt adds to a plaintext.
	Overhead = NonceLength + TagLength

	// HMACLength is the length of an HMAC-SHA256 digest in bytes.
	HMACLength = 32
)

// Sentinel errors returned by crypto functions.
var (
	// ErrInvalidKeyLength indicates the key is not 32 bytes.
	ErrInvalidKeyLength = errors.New("crypto: invalid key length, must be 32 bytes")

	// ErrAuthenticationFailure indicates decryption failed: the input was
	// truncated, tampered with, or encrypted under a different key.
	ErrAuthenticationFailure = errors.New("crypto: authentication failure")

	// ErrRandomSource indicates the OS random source failed.
	ErrRandomSource = errors.New("crypto: random source unavailable")
)

// RandomBytes returns count cryptographically secure random bytes.
// It fails only on catastrophic OS RNG failure.
func RandomBytes(count int) ([]byte, error) {
	b := make([]byte, count)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRandomSource, err)
	}
	return b, nil
}

// Encrypt encrypts plaintext using AES-256-GCM authenticated encryption.
//
// A cryptographically secure random nonce is generated per call, so the
// output differs across calls even for identical inputs. The result is
// nonce || ciphertext || tag.
func Encrypt(plaintext, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce, err := RandomBytes(NonceLength)
	if err != nil {
		return nil, err
	}

	// Seal appends ciphertext and tag after the nonce.
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt decrypts data produced by Encrypt.
//
// The authentication tag is verified before any plaintext is returned.
// Truncated input, tag mismatch, and a wrong key are indistinguishable to
// the caller: all fail with ErrAuthenticationFailure.
func Decrypt(data, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	if len(data) < Overhead {
		return nil, ErrAuthenticationFailure
	}

	nonce := data[:NonceLength]
	ciphertext := data[NonceLength:]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrAuthenticationFailure
	}
	return plaintext, nil
}

// newGCM validates the key and constructs the AEAD. The key check runs
// before any cryptographic operation.
func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeyLength {
		return nil, ErrInvalidKeyLength
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to create GCM: %w", err)
	}
	return gcm, nil
}

// ComputeHMAC computes HMAC-SHA256 over the given data.
func ComputeHMAC(data, key []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return h.Sum(nil)
}

// VerifyHMAC verifies an HMAC-SHA256 digest in constant time.
func VerifyHMAC(data, expectedMAC, key []byte) bool {
	return hmac.Equal(ComputeHMAC(data, key), expectedMAC)
}

// SecureWipe overwrites a byte slice with zeros in a way that prevents
// compiler optimization from removing the operation.
func SecureWipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
	// runtime.KeepAlive ensures the write operations are not optimized away
	// by the compiler since b is still "in use" after the loop.
	runtime.KeepAlive(b)
}
