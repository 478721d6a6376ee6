// Package blob manages the pre-allocated, random-filled storage regions
// holding a vault's encrypted files, together with the encrypted index
// describing them.
package blob

import "errors"

// Allocator errors.
var (
	// ErrFileNotFound indicates no live entry exists for the given id.
	ErrFileNotFound = errors.New("blob: file not found")

	// ErrInsufficientSpace indicates the encrypted unit does not fit in
	// the remaining contiguous space; the caller must expand the vault.
	ErrInsufficientSpace = errors.New("blob: insufficient space in blob regions")

	// ErrUnitTooLarge indicates the encrypted unit exceeds a whole region
	// and can never be stored, regardless of expansion.
	ErrUnitTooLarge = errors.New("blob: encrypted unit exceeds region size")

	// ErrUnsupportedPolicy indicates the requested reclaim policy is not
	// implemented. Only NeverReclaim is operative; rejecting the rest at
	// construction keeps the never-reclaim invariant explicit.
	ErrUnsupportedPolicy = errors.New("blob: reclaim policy not supported")

	// ErrShareNotFound indicates no share record exists for the given id.
	ErrShareNotFound = errors.New("blob: share record not found")

	// ErrInsufficientDisk indicates the filesystem lacks space for the
	// requested write.
	ErrInsufficientDisk = errors.New("blob: insufficient disk space")

	// ErrShareExpired indicates a shared vault's policy expiry has passed.
	ErrShareExpired = errors.New("blob: shared vault has expired")

	// ErrShareOpenLimit indicates a shared vault's open budget is used up.
	ErrShareOpenLimit = errors.New("blob: shared vault open limit reached")
)
