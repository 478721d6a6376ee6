package filecodec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Fixed-width header field sizes in bytes. Every serialized header has the
// same length regardless of content, so ciphertext length leaks nothing
// about filenames or types.
const (
	FileIDFieldLength   = 36  // canonical UUID string
	FilenameFieldLength = 255 // NFC-normalized, zero-padded
	MimeTypeFieldLength = 100 // zero-padded
	sizeFieldLength     = 8   // uint64 little-endian
	timeFieldLength     = 8   // int64 little-endian, unix seconds

	// HeaderPlaintextLength is the constant serialized header size.
	HeaderPlaintextLength = FileIDFieldLength + FilenameFieldLength +
		MimeTypeFieldLength + sizeFieldLength + timeFieldLength
)

// Header validation errors.
var (
	ErrFilenameTooLong = errors.New("filecodec: filename exceeds 255 bytes")
	ErrMimeTypeTooLong = errors.New("filecodec: mime type exceeds 100 bytes")
	ErrInvalidFileID   = errors.New("filecodec: file id must be a 36-byte uuid string")
)

// FileHeader describes one stored file. It is owned exclusively by the
// encrypted unit that contains it.
type FileHeader struct {
	FileID           string
	OriginalFilename string
	MimeType         string
	OriginalSize     int64
	CreatedAt        time.Time
}

// encode serializes the header into its fixed-length zero-padded form.
func (h *FileHeader) encode() ([]byte, error) {
	filename := norm.NFC.String(h.OriginalFilename)
	if len(filename) > FilenameFieldLength {
		return nil, fmt.Errorf("%w: %d bytes", ErrFilenameTooLong, len(filename))
	}
	if len(h.MimeType) > MimeTypeFieldLength {
		return nil, fmt.Errorf("%w: %d bytes", ErrMimeTypeTooLong, len(h.MimeType))
	}
	if len(h.FileID) != FileIDFieldLength {
		return nil, ErrInvalidFileID
	}

	buf := make([]byte, HeaderPlaintextLength)
	off := 0
	copy(buf[off:off+FileIDFieldLength], h.FileID)
	off += FileIDFieldLength
	copy(buf[off:off+FilenameFieldLength], filename)
	off += FilenameFieldLength
	copy(buf[off:off+MimeTypeFieldLength], h.MimeType)
	off += MimeTypeFieldLength
	binary.LittleEndian.PutUint64(buf[off:], uint64(h.OriginalSize))
	off += sizeFieldLength
	binary.LittleEndian.PutUint64(buf[off:], uint64(h.CreatedAt.Unix()))

	return buf, nil
}

// decodeHeader parses a fixed-length header record.
func decodeHeader(buf []byte) (*FileHeader, error) {
	if len(buf) != HeaderPlaintextLength {
		return nil, fmt.Errorf("%w: header record is %d bytes, want %d",
			ErrCorruptedData, len(buf), HeaderPlaintextLength)
	}

	off := 0
	fileID := string(buf[off : off+FileIDFieldLength])
	off += FileIDFieldLength
	filename := trimPadding(buf[off : off+FilenameFieldLength])
	off += FilenameFieldLength
	mimeType := trimPadding(buf[off : off+MimeTypeFieldLength])
	off += MimeTypeFieldLength
	size := int64(binary.LittleEndian.Uint64(buf[off:]))
	off += sizeFieldLength
	created := int64(binary.LittleEndian.Uint64(buf[off:]))

	return &FileHeader{
		FileID:           fileID,
		OriginalFilename: filename,
		MimeType:         mimeType,
		OriginalSize:     size,
		CreatedAt:        time.Unix(created, 0).UTC(),
	}, nil
}

// trimPadding strips the zero padding from a fixed-width field.
func trimPadding(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}
