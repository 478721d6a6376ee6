package crypto

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/hkdf"
)

// Argon2id parameters following OWASP recommendations.
const (
	// Argon2Memory is the memory cost in KiB (64MB).
	Argon2Memory = 64 * 1024

	// Argon2Time is the number of iterations.
	Argon2Time = 3

	// Argon2Threads is the degree of parallelism.
	Argon2Threads = 4

	// SaltLength is the length of KDF salts in bytes.
	SaltLength = 16
)

// DeriveKey derives a 256-bit vault key from a passphrase using Argon2id.
//
// The salt should be at least 16 bytes of cryptographically secure random
// data. Key management lives with the caller: the storage core only ever
// sees the resulting opaque 32-byte key.
func DeriveKey(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, Argon2Time, Argon2Memory, Argon2Threads, KeyLength)
}

// DeriveSubkey derives an independent 32-byte key from key using
// HKDF-SHA256 with the given info string. Used to split one share key into
// separate encryption and MAC keys.
func DeriveSubkey(key []byte, info string) ([]byte, error) {
	if len(key) != KeyLength {
		return nil, ErrInvalidKeyLength
	}
	r := hkdf.New(sha256.New, key, nil, []byte(info))
	sub := make([]byte, KeyLength)
	if _, err := io.ReadFull(r, sub); err != nil {
		return nil, fmt.Errorf("crypto: failed to derive subkey: %w", err)
	}
	return sub, nil
}
