package filecodec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mizunoh/blobvault/pkg/crypto"
)

// chunkedMagic marks the chunked unit variant. Whole-buffer units start
// with a 4-byte header length that is always far below this value when
// read little-endian, so the probe is unambiguous.
var chunkedMagic = [4]byte{'B', 'V', 'C', '1'}

// DefaultChunkSize is the plaintext chunk size used when none is given.
const DefaultChunkSize = 1 << 20 // 1 MiB

// IsChunked reports whether data starts with the chunked-unit magic.
// It never fails on short or garbage input.
func IsChunked(data []byte) bool {
	return len(data) >= len(chunkedMagic) && bytes.Equal(data[:4], chunkedMagic[:])
}

// EncryptFileChunked builds a chunked encrypted unit:
//
//	[4-byte magic][4-byte LE header length][encrypted header]
//	[4-byte LE chunk length][encrypted chunk] ...
//
// Each chunk is independently AEAD-encrypted so a decryptor never needs
// more than one chunk of plaintext in memory.
func EncryptFileChunked(content []byte, filename, mimeType string, key []byte, fileID string, chunkSize int) ([]byte, string, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if fileID == "" {
		fileID = uuid.NewString()
	}

	header := &FileHeader{
		FileID:           fileID,
		OriginalFilename: filename,
		MimeType:         mimeType,
		OriginalSize:     int64(len(content)),
		CreatedAt:        time.Now().UTC(),
	}
	headerPlain, err := header.encode()
	if err != nil {
		return nil, "", err
	}
	encHeader, err := crypto.Encrypt(headerPlain, key)
	if err != nil {
		return nil, "", fmt.Errorf("filecodec: failed to encrypt header: %w", err)
	}

	unit := make([]byte, 0, len(chunkedMagic)+lengthPrefixSize+len(encHeader)+len(content)+crypto.Overhead)
	unit = append(unit, chunkedMagic[:]...)
	unit = binary.LittleEndian.AppendUint32(unit, uint32(len(encHeader)))
	unit = append(unit, encHeader...)

	for start := 0; start < len(content) || (len(content) == 0 && start == 0); start += chunkSize {
		end := start + chunkSize
		if end > len(content) {
			end = len(content)
		}
		encChunk, err := crypto.Encrypt(content[start:end], key)
		if err != nil {
			return nil, "", fmt.Errorf("filecodec: failed to encrypt chunk: %w", err)
		}
		unit = binary.LittleEndian.AppendUint32(unit, uint32(len(encChunk)))
		unit = append(unit, encChunk...)
		if len(content) == 0 {
			break
		}
	}

	return unit, fileID, nil
}

// DecryptFileChunked parses and decrypts a chunked unit produced by
// EncryptFileChunked. Error semantics match DecryptFile.
func DecryptFileChunked(data, key []byte) (*FileHeader, []byte, error) {
	if !IsChunked(data) {
		return nil, nil, fmt.Errorf("%w: missing chunked-unit magic", ErrCorruptedData)
	}
	rest := data[len(chunkedMagic):]

	encHeader, rest, err := readLengthPrefixed(rest)
	if err != nil {
		return nil, nil, err
	}
	headerPlain, err := crypto.Decrypt(encHeader, key)
	if err != nil {
		return nil, nil, err
	}
	header, err := decodeHeader(headerPlain)
	if err != nil {
		return nil, nil, err
	}

	content := make([]byte, 0, header.OriginalSize)
	for len(rest) > 0 {
		var encChunk []byte
		encChunk, rest, err = readLengthPrefixed(rest)
		if err != nil {
			return nil, nil, err
		}
		chunk, err := crypto.Decrypt(encChunk, key)
		if err != nil {
			return nil, nil, err
		}
		content = append(content, chunk...)
	}

	if int64(len(content)) != header.OriginalSize {
		return nil, nil, fmt.Errorf("%w: reassembled %d bytes, header says %d",
			ErrCorruptedData, len(content), header.OriginalSize)
	}
	return header, content, nil
}

// DecryptUnit dispatches on the unit form, handling both whole-buffer and
// chunked units.
func DecryptUnit(data, key []byte) (*FileHeader, []byte, error) {
	if IsChunked(data) {
		return DecryptFileChunked(data, key)
	}
	return DecryptFile(data, key)
}

// HeaderPreview returns the unit prefix sufficient for DecryptHeader, for
// both whole-buffer and chunked units.
func HeaderPreview(unit []byte) ([]byte, error) {
	start := 0
	if IsChunked(unit) {
		start = len(chunkedMagic)
	}
	if len(unit) < start+PreviewLength {
		return nil, fmt.Errorf("%w: %d-byte unit is shorter than a header preview", ErrCorruptedData, len(unit))
	}
	return unit[start : start+PreviewLength], nil
}

// readLengthPrefixed consumes one [4-byte LE length][payload] record.
func readLengthPrefixed(data []byte) (payload, rest []byte, err error) {
	if len(data) < lengthPrefixSize {
		return nil, nil, fmt.Errorf("%w: truncated length prefix", ErrCorruptedData)
	}
	n := int(binary.LittleEndian.Uint32(data))
	end := lengthPrefixSize + n
	if n == 0 || end > len(data) {
		return nil, nil, fmt.Errorf("%w: record length %d disagrees with %d-byte buffer",
			ErrCorruptedData, n, len(data))
	}
	return data[lengthPrefixSize:end], data[end:], nil
}
