// Package svdf implements the shared vault data format: a binary container
// packaging a set of encrypted file units, an encrypted manifest, and
// encrypted share metadata into one exportable blob.
//
// Layout:
//
//	[33-byte header][file region][encrypted manifest][encrypted metadata]
//
// The header is fixed-offset: a 4-byte ASCII magic ("SVD4"), a version
// byte, a little-endian file count, and little-endian manifest/metadata
// offsets and sizes. File units sit contiguously right after the header so
// their offsets never move across incremental builds; manifest and
// metadata are rewritten at the tail of every build.
package svdf

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// Format constants.
const (
	// Version is the current container format version.
	Version = 1

	// HeaderSize is the fixed byte length of the container header.
	HeaderSize = 4 + 1 + 4 + 8 + 4 + 8 + 4
)

// Magic identifies an SVDF container.
var Magic = [4]byte{'S', 'V', 'D', '4'}

// Container errors.
var (
	// ErrInvalidFormat indicates a magic or version mismatch, or a
	// truncated buffer.
	ErrInvalidFormat = errors.New("svdf: invalid container format")

	// ErrUnknownFileID indicates a removal referenced an id absent from
	// the prior manifest.
	ErrUnknownFileID = errors.New("svdf: unknown file id")
)

// Header is the fixed-offset container header.
type Header struct {
	Version byte
	// FileCount is the number of active (non-tombstoned) manifest entries.
	FileCount      uint32
	ManifestOffset uint64
	ManifestSize   uint32
	MetadataOffset uint64
	MetadataSize   uint32
}

// ManifestEntry locates one file unit inside the container. Offsets are
// container-relative and unrelated to any local vault index.
type ManifestEntry struct {
	ID      string `json:"id"`
	Offset  int64  `json:"offset"`
	Size    int64  `json:"size"`
	Deleted bool   `json:"deleted"`
}

// Metadata describes the share itself.
type Metadata struct {
	OwnerFingerprint string    `json:"owner_fingerprint"`
	SharedAt         time.Time `json:"shared_at"`
}

// encode serializes the header into its fixed 33-byte form.
func (h *Header) encode() []byte {
	buf := make([]byte, 0, HeaderSize)
	buf = append(buf, Magic[:]...)
	buf = append(buf, h.Version)
	buf = binary.LittleEndian.AppendUint32(buf, h.FileCount)
	buf = binary.LittleEndian.AppendUint64(buf, h.ManifestOffset)
	buf = binary.LittleEndian.AppendUint32(buf, h.ManifestSize)
	buf = binary.LittleEndian.AppendUint64(buf, h.MetadataOffset)
	buf = binary.LittleEndian.AppendUint32(buf, h.MetadataSize)
	return buf
}

// IsSVDF reports whether data begins with the container magic. It is a
// cheap probe for transports branching between formats; it never fails on
// short or garbage input.
func IsSVDF(data []byte) bool {
	return len(data) >= len(Magic) && bytes.Equal(data[:4], Magic[:])
}

// ParseHeader validates the magic and version and reads the fixed-offset
// header fields.
func ParseHeader(data []byte) (*Header, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("%w: %d bytes, header needs %d", ErrInvalidFormat, len(data), HeaderSize)
	}
	if !IsSVDF(data) {
		return nil, fmt.Errorf("%w: magic mismatch", ErrInvalidFormat)
	}

	h := &Header{Version: data[4]}
	if h.Version != Version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidFormat, h.Version)
	}

	off := 5
	h.FileCount = binary.LittleEndian.Uint32(data[off:])
	off += 4
	h.ManifestOffset = binary.LittleEndian.Uint64(data[off:])
	off += 8
	h.ManifestSize = binary.LittleEndian.Uint32(data[off:])
	off += 4
	h.MetadataOffset = binary.LittleEndian.Uint64(data[off:])
	off += 8
	h.MetadataSize = binary.LittleEndian.Uint32(data[off:])

	if h.ManifestOffset < HeaderSize {
		return nil, fmt.Errorf("%w: manifest offset %d inside header", ErrInvalidFormat, h.ManifestOffset)
	}
	if h.MetadataOffset <= h.ManifestOffset {
		return nil, fmt.Errorf("%w: metadata offset %d not after manifest offset %d",
			ErrInvalidFormat, h.MetadataOffset, h.ManifestOffset)
	}
	return h, nil
}
