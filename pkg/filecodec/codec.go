// Package filecodec produces and parses the self-contained encrypted file
// unit used by both the local vault blob and the shared-vault container.
//
// A whole-buffer unit is laid out as
//
//	[4-byte LE header length][encrypted header][encrypted content]
//
// where header and content are independently AEAD-encrypted (separate
// nonces) under the same key. A chunked variant for large files starts with
// a fixed 4-byte magic so callers can branch between whole-buffer and
// chunked decryption without parsing further.
package filecodec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mizunoh/blobvault/pkg/crypto"
)

const (
	// lengthPrefixSize is the size of the little-endian length prefix.
	lengthPrefixSize = 4

	// EncryptedHeaderLength is the constant ciphertext size of a header.
	EncryptedHeaderLength = HeaderPlaintextLength + crypto.Overhead

	// PreviewLength is the number of leading unit bytes sufficient to
	// decrypt the header without reading the content: length prefix plus
	// encrypted header.
	PreviewLength = lengthPrefixSize + EncryptedHeaderLength
)

// ErrCorruptedData indicates the unit's length fields disagree with the
// actual buffer.
var ErrCorruptedData = errors.New("filecodec: corrupted data")

// EncryptFile builds an encrypted unit from content and its descriptive
// fields. If fileID is empty a fresh UUID is generated; the assigned id is
// returned alongside the unit.
func EncryptFile(content []byte, filename, mimeType string, key []byte, fileID string) ([]byte, string, error) {
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
	encContent, err := crypto.Encrypt(content, key)
	if err != nil {
		return nil, "", fmt.Errorf("filecodec: failed to encrypt content: %w", err)
	}

	unit := make([]byte, 0, lengthPrefixSize+len(encHeader)+len(encContent))
	unit = binary.LittleEndian.AppendUint32(unit, uint32(len(encHeader)))
	unit = append(unit, encHeader...)
	unit = append(unit, encContent...)

	return unit, fileID, nil
}

// DecryptFile parses and decrypts a whole-buffer unit.
//
// It fails with ErrCorruptedData when the length prefix disagrees with the
// buffer, and with crypto.ErrAuthenticationFailure when either layer fails
// to decrypt, including under a wrong key. Callers that rely on plausible
// deniability catch that error and treat it as "no data".
func DecryptFile(data, key []byte) (*FileHeader, []byte, error) {
	encHeader, encContent, err := splitUnit(data)
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

	content, err := crypto.Decrypt(encContent, key)
	if err != nil {
		return nil, nil, err
	}

	return header, content, nil
}

// DecryptHeader decrypts only the header from the leading bytes of a unit.
// data needs at least PreviewLength bytes; extra bytes are ignored. Used
// for listing without touching file content.
func DecryptHeader(data, key []byte) (*FileHeader, error) {
	if len(data) < PreviewLength {
		return nil, fmt.Errorf("%w: preview is %d bytes, need %d",
			ErrCorruptedData, len(data), PreviewLength)
	}

	headerLen := binary.LittleEndian.Uint32(data)
	if int(headerLen) != EncryptedHeaderLength {
		return nil, fmt.Errorf("%w: header length %d, want %d",
			ErrCorruptedData, headerLen, EncryptedHeaderLength)
	}

	headerPlain, err := crypto.Decrypt(data[lengthPrefixSize:PreviewLength], key)
	if err != nil {
		return nil, err
	}
	return decodeHeader(headerPlain)
}

// splitUnit validates the length prefix and splits a unit into its
// encrypted header and encrypted content regions.
func splitUnit(data []byte) (encHeader, encContent []byte, err error) {
	if len(data) < lengthPrefixSize {
		return nil, nil, fmt.Errorf("%w: unit is %d bytes", ErrCorruptedData, len(data))
	}

	headerLen := int(binary.LittleEndian.Uint32(data))
	headerEnd := lengthPrefixSize + headerLen
	if headerLen == 0 || headerEnd > len(data) {
		return nil, nil, fmt.Errorf("%w: header length %d disagrees with %d-byte unit",
			ErrCorruptedData, headerLen, len(data))
	}

	return data[lengthPrefixSize:headerEnd], data[headerEnd:], nil
}
