package filecodec

import (
	"bytes"
	"crypto/rand"
	"errors"
	"strings"
	"testing"

	"github.com/mizunoh/blobvault/pkg/crypto"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, crypto.KeyLength)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	return key
}

// TestEncryptDecryptFileRoundTrip verifies a full unit round-trip
// preserves content and header fields.
func TestEncryptDecryptFileRoundTrip(t *testing.T) {
	key := testKey(t)
	content := []byte("photo bytes go here")

	unit, fileID, err := EncryptFile(content, "a.jpg", "image/jpeg", key, "")
	if err != nil {
		t.Fatalf("EncryptFile() error = %v", err)
	}
	if len(fileID) != FileIDFieldLength {
		t.Errorf("EncryptFile() generated id %q, want 36-byte uuid", fileID)
	}

	header, got, err := DecryptFile(unit, key)
	if err != nil {
		t.Fatalf("DecryptFile() error = %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Errorf("DecryptFile() content = %q, want %q", got, content)
	}
	if header.FileID != fileID {
		t.Errorf("header.FileID = %q, want %q", header.FileID, fileID)
	}
	if header.OriginalFilename != "a.jpg" {
		t.Errorf("header.OriginalFilename = %q, want a.jpg", header.OriginalFilename)
	}
	if header.MimeType != "image/jpeg" {
		t.Errorf("header.MimeType = %q, want image/jpeg", header.MimeType)
	}
	if header.OriginalSize != int64(len(content)) {
		t.Errorf("header.OriginalSize = %d, want %d", header.OriginalSize, len(content))
	}
	if header.CreatedAt.IsZero() {
		t.Error("header.CreatedAt is zero")
	}
}

// TestUnitLengthIndependentOfNames verifies the header region has constant
// size regardless of filename and mime content.
func TestUnitLengthIndependentOfNames(t *testing.T) {
	key := testKey(t)
	content := []byte("same content")

	short, _, err := EncryptFile(content, "a", "x", key, "")
	if err != nil {
		t.Fatalf("EncryptFile() error = %v", err)
	}
	long, _, err := EncryptFile(content, strings.Repeat("n", 200), "application/octet-stream", key, "")
	if err != nil {
		t.Fatalf("EncryptFile() error = %v", err)
	}

	if len(short) != len(long) {
		t.Errorf("unit lengths differ: %d vs %d", len(short), len(long))
	}
	if len(short) != PreviewLength+len(content)+crypto.Overhead {
		t.Errorf("unit length = %d, want %d", len(short), PreviewLength+len(content)+crypto.Overhead)
	}
}

// TestDecryptFileWrongKey verifies a wrong key fails with
// crypto.ErrAuthenticationFailure, the branch deniability is built on.
func TestDecryptFileWrongKey(t *testing.T) {
	unit, _, err := EncryptFile([]byte("hidden"), "f.bin", "application/octet-stream", testKey(t), "")
	if err != nil {
		t.Fatalf("EncryptFile() error = %v", err)
	}

	if _, _, err := DecryptFile(unit, testKey(t)); !errors.Is(err, crypto.ErrAuthenticationFailure) {
		t.Errorf("DecryptFile() with wrong key: error = %v, want ErrAuthenticationFailure", err)
	}
}

// TestDecryptFileCorruptedPrefix verifies prefix/buffer disagreement maps
// to ErrCorruptedData.
func TestDecryptFileCorruptedPrefix(t *testing.T) {
	key := testKey(t)
	unit, _, err := EncryptFile([]byte("content"), "f", "t", key, "")
	if err != nil {
		t.Fatalf("EncryptFile() error = %v", err)
	}

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"short prefix", unit[:3]},
		{"prefix beyond buffer", append([]byte{0xff, 0xff, 0xff, 0x7f}, unit[4:]...)},
		{"zero header length", append([]byte{0, 0, 0, 0}, unit[4:]...)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := DecryptFile(tt.data, key); !errors.Is(err, ErrCorruptedData) {
				t.Errorf("DecryptFile() error = %v, want ErrCorruptedData", err)
			}
		})
	}
}

// TestDecryptFileTampered verifies tampering either layer fails
// authentication.
func TestDecryptFileTampered(t *testing.T) {
	key := testKey(t)
	unit, _, err := EncryptFile([]byte("content"), "f", "t", key, "")
	if err != nil {
		t.Fatalf("EncryptFile() error = %v", err)
	}

	// One byte inside the encrypted header, one inside the content.
	for _, idx := range []int{8, len(unit) - 2} {
		corrupted := make([]byte, len(unit))
		copy(corrupted, unit)
		corrupted[idx] ^= 0x01
		if _, _, err := DecryptFile(corrupted, key); !errors.Is(err, crypto.ErrAuthenticationFailure) {
			t.Errorf("DecryptFile() with byte %d flipped: error = %v, want ErrAuthenticationFailure", idx, err)
		}
	}
}

// TestDecryptHeaderFromPreview verifies a header decrypts from just the
// unit's preview prefix.
func TestDecryptHeaderFromPreview(t *testing.T) {
	key := testKey(t)
	unit, fileID, err := EncryptFile([]byte("large content not needed for listing"), "b.jpg", "image/jpeg", key, "")
	if err != nil {
		t.Fatalf("EncryptFile() error = %v", err)
	}

	header, err := DecryptHeader(unit[:PreviewLength], key)
	if err != nil {
		t.Fatalf("DecryptHeader() error = %v", err)
	}
	if header.FileID != fileID || header.OriginalFilename != "b.jpg" {
		t.Errorf("DecryptHeader() = %+v", header)
	}

	if _, err := DecryptHeader(unit[:PreviewLength-1], key); !errors.Is(err, ErrCorruptedData) {
		t.Errorf("DecryptHeader() on short preview: error = %v, want ErrCorruptedData", err)
	}
}

// TestHeaderFieldLimits verifies oversized fields are rejected before
// encryption.
func TestHeaderFieldLimits(t *testing.T) {
	key := testKey(t)

	if _, _, err := EncryptFile(nil, strings.Repeat("x", 256), "t", key, ""); !errors.Is(err, ErrFilenameTooLong) {
		t.Errorf("EncryptFile() long filename: error = %v, want ErrFilenameTooLong", err)
	}
	if _, _, err := EncryptFile(nil, "f", strings.Repeat("x", 101), key, ""); !errors.Is(err, ErrMimeTypeTooLong) {
		t.Errorf("EncryptFile() long mime: error = %v, want ErrMimeTypeTooLong", err)
	}
	if _, _, err := EncryptFile(nil, "f", "t", key, "not-a-uuid"); !errors.Is(err, ErrInvalidFileID) {
		t.Errorf("EncryptFile() bad id: error = %v, want ErrInvalidFileID", err)
	}
}

// TestChunkedRoundTrip verifies the chunked variant reassembles content
// across chunk boundaries.
func TestChunkedRoundTrip(t *testing.T) {
	key := testKey(t)

	tests := []struct {
		name      string
		size      int
		chunkSize int
	}{
		{"empty", 0, 8},
		{"single partial chunk", 5, 8},
		{"exact chunks", 24, 8},
		{"ragged tail", 27, 8},
		{"default chunk size", 100, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			content := make([]byte, tt.size)
			if _, err := rand.Read(content); err != nil {
				t.Fatalf("failed to generate content: %v", err)
			}

			unit, _, err := EncryptFileChunked(content, "big.mov", "video/quicktime", key, "", tt.chunkSize)
			if err != nil {
				t.Fatalf("EncryptFileChunked() error = %v", err)
			}
			if !IsChunked(unit) {
				t.Fatal("IsChunked() = false for chunked unit")
			}

			header, got, err := DecryptFileChunked(unit, key)
			if err != nil {
				t.Fatalf("DecryptFileChunked() error = %v", err)
			}
			if !bytes.Equal(got, content) {
				t.Error("DecryptFileChunked() content mismatch")
			}
			if header.OriginalSize != int64(tt.size) {
				t.Errorf("header.OriginalSize = %d, want %d", header.OriginalSize, tt.size)
			}
		})
	}
}

// TestIsChunkedProbe verifies the probe distinguishes variants and never
// fails on garbage.
func TestIsChunkedProbe(t *testing.T) {
	key := testKey(t)

	whole, _, err := EncryptFile([]byte("x"), "f", "t", key, "")
	if err != nil {
		t.Fatalf("EncryptFile() error = %v", err)
	}
	if IsChunked(whole) {
		t.Error("IsChunked() = true for whole-buffer unit")
	}

	for _, data := range [][]byte{nil, {}, {'B'}, {'B', 'V', 'C'}, []byte("garbage")} {
		if IsChunked(data) {
			t.Errorf("IsChunked(%q) = true", data)
		}
	}
}

func TestDecryptUnitDispatch(t *testing.T) {
	key := testKey(t)
	content := []byte("dispatch me")

	whole, _, err := EncryptFile(content, "w.txt", "text/plain", key, "")
	if err != nil {
		t.Fatalf("EncryptFile() error = %v", err)
	}
	chunked, _, err := EncryptFileChunked(content, "c.txt", "text/plain", key, "", 4)
	if err != nil {
		t.Fatalf("EncryptFileChunked() error = %v", err)
	}

	for _, unit := range [][]byte{whole, chunked} {
		_, got, err := DecryptUnit(unit, key)
		if err != nil {
			t.Fatalf("DecryptUnit() error = %v", err)
		}
		if !bytes.Equal(got, content) {
			t.Errorf("DecryptUnit() content = %q, want %q", got, content)
		}
	}
}

func TestHeaderPreviewBothForms(t *testing.T) {
	key := testKey(t)

	whole, _, err := EncryptFile([]byte("x"), "w.txt", "text/plain", key, "")
	if err != nil {
		t.Fatalf("EncryptFile() error = %v", err)
	}
	chunked, _, err := EncryptFileChunked([]byte("x"), "c.txt", "text/plain", key, "", 0)
	if err != nil {
		t.Fatalf("EncryptFileChunked() error = %v", err)
	}

	tests := []struct {
		name string
		unit []byte
		want string
	}{
		{"whole", whole, "w.txt"},
		{"chunked", chunked, "c.txt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			preview, err := HeaderPreview(tt.unit)
			if err != nil {
				t.Fatalf("HeaderPreview() error = %v", err)
			}
			if len(preview) != PreviewLength {
				t.Errorf("preview length = %d, want %d", len(preview), PreviewLength)
			}
			header, err := DecryptHeader(preview, key)
			if err != nil {
				t.Fatalf("DecryptHeader() error = %v", err)
			}
			if header.OriginalFilename != tt.want {
				t.Errorf("OriginalFilename = %q, want %q", header.OriginalFilename, tt.want)
			}
		})
	}

	if _, err := HeaderPreview([]byte("short")); !errors.Is(err, ErrCorruptedData) {
		t.Errorf("HeaderPreview(short) error = %v, want ErrCorruptedData", err)
	}
}
