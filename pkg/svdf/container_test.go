package svdf

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/mizunoh/blobvault/pkg/crypto"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key, err := crypto.RandomBytes(crypto.KeyLength)
	if err != nil {
		t.Fatalf("RandomBytes() error = %v", err)
	}
	return key
}

func testMeta() Metadata {
	return Metadata{
		OwnerFingerprint: "owner-fp-001",
		SharedAt:         time.Now().UTC().Truncate(time.Second),
	}
}

func TestBuildFullRoundTrip(t *testing.T) {
	key := testKey(t)
	files := []InputFile{
		{Content: []byte("alpha content"), Filename: "a.txt", MimeType: "text/plain"},
		{Content: []byte("bravo"), Filename: "b.jpg", MimeType: "image/jpeg"},
	}

	data, entries, err := BuildFull(files, testMeta(), key)
	if err != nil {
		t.Fatalf("BuildFull() error = %v", err)
	}

	hdr, err := ParseHeader(data)
	if err != nil {
		t.Fatalf("ParseHeader() error = %v", err)
	}
	if hdr.FileCount != 2 {
		t.Errorf("FileCount = %d, want 2", hdr.FileCount)
	}

	var unitBytes uint64
	for _, e := range entries {
		unitBytes += uint64(e.Size)
	}
	if hdr.ManifestOffset != HeaderSize+unitBytes {
		t.Errorf("ManifestOffset = %d, want %d", hdr.ManifestOffset, HeaderSize+unitBytes)
	}
	if hdr.MetadataOffset != hdr.ManifestOffset+uint64(hdr.ManifestSize) {
		t.Errorf("MetadataOffset = %d, want %d", hdr.MetadataOffset, hdr.ManifestOffset+uint64(hdr.ManifestSize))
	}
	if got := uint64(len(data)); got != hdr.MetadataOffset+uint64(hdr.MetadataSize) {
		t.Errorf("container length = %d, want %d", got, hdr.MetadataOffset+uint64(hdr.MetadataSize))
	}

	parsed, err := ParseManifest(data, key)
	if err != nil {
		t.Fatalf("ParseManifest() error = %v", err)
	}
	if len(parsed) != len(files) {
		t.Fatalf("manifest entries = %d, want %d", len(parsed), len(files))
	}
	for i, e := range parsed {
		header, content, err := ExtractFileEntry(data, e, key)
		if err != nil {
			t.Fatalf("ExtractFileEntry(%d) error = %v", i, err)
		}
		if header.OriginalFilename != files[i].Filename {
			t.Errorf("filename = %q, want %q", header.OriginalFilename, files[i].Filename)
		}
		if !bytes.Equal(content, files[i].Content) {
			t.Errorf("content mismatch for %q", files[i].Filename)
		}
	}

	meta, err := ParseMetadata(data, key)
	if err != nil {
		t.Fatalf("ParseMetadata() error = %v", err)
	}
	if meta.OwnerFingerprint != "owner-fp-001" {
		t.Errorf("OwnerFingerprint = %q", meta.OwnerFingerprint)
	}
}

func TestBuildFullEmpty(t *testing.T) {
	key := testKey(t)

	data, entries, err := BuildFull(nil, testMeta(), key)
	if err != nil {
		t.Fatalf("BuildFull() error = %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("entries = %d, want 0", len(entries))
	}

	hdr, err := ParseHeader(data)
	if err != nil {
		t.Fatalf("ParseHeader() error = %v", err)
	}
	if hdr.FileCount != 0 {
		t.Errorf("FileCount = %d, want 0", hdr.FileCount)
	}
	if hdr.ManifestOffset != HeaderSize {
		t.Errorf("ManifestOffset = %d, want %d", hdr.ManifestOffset, HeaderSize)
	}

	parsed, err := ParseManifest(data, key)
	if err != nil {
		t.Fatalf("ParseManifest() error = %v", err)
	}
	if len(parsed) != 0 {
		t.Errorf("manifest entries = %d, want 0", len(parsed))
	}
}

func TestBuildIncrementalAppend(t *testing.T) {
	key := testKey(t)
	prior, _, err := BuildFull([]InputFile{
		{Content: []byte("one"), Filename: "one.txt", MimeType: "text/plain"},
		{Content: []byte("two"), Filename: "two.txt", MimeType: "text/plain"},
	}, testMeta(), key)
	if err != nil {
		t.Fatalf("BuildFull() error = %v", err)
	}
	priorHdr, err := ParseHeader(prior)
	if err != nil {
		t.Fatalf("ParseHeader(prior) error = %v", err)
	}

	next, entries, err := BuildIncremental(prior, []InputFile{
		{Content: []byte("three"), Filename: "three.txt", MimeType: "text/plain"},
	}, nil, testMeta(), key)
	if err != nil {
		t.Fatalf("BuildIncremental() error = %v", err)
	}

	hdr, err := ParseHeader(next)
	if err != nil {
		t.Fatalf("ParseHeader(next) error = %v", err)
	}
	if hdr.FileCount != 3 {
		t.Errorf("FileCount = %d, want 3", hdr.FileCount)
	}

	// Prior file unit bytes must be carried over verbatim at stable offsets.
	if !bytes.Equal(next[HeaderSize:priorHdr.ManifestOffset], prior[HeaderSize:priorHdr.ManifestOffset]) {
		t.Error("prior file region was not preserved verbatim")
	}

	// New unit sits right after the prior file region.
	appended := entries[len(entries)-1]
	if appended.Offset != int64(priorHdr.ManifestOffset) {
		t.Errorf("appended offset = %d, want %d", appended.Offset, priorHdr.ManifestOffset)
	}

	for i, e := range entries {
		header, _, err := ExtractFileEntry(next, e, key)
		if err != nil {
			t.Fatalf("ExtractFileEntry(%d) error = %v", i, err)
		}
		if header.FileID != e.ID {
			t.Errorf("entry %d file id = %q, want %q", i, header.FileID, e.ID)
		}
	}
}

func TestBuildIncrementalRemove(t *testing.T) {
	key := testKey(t)
	prior, priorEntries, err := BuildFull([]InputFile{
		{Content: []byte("keep"), Filename: "keep.txt", MimeType: "text/plain"},
		{Content: []byte("drop"), Filename: "drop.txt", MimeType: "text/plain"},
	}, testMeta(), key)
	if err != nil {
		t.Fatalf("BuildFull() error = %v", err)
	}

	next, _, err := BuildIncremental(prior, nil, []string{priorEntries[1].ID}, testMeta(), key)
	if err != nil {
		t.Fatalf("BuildIncremental() error = %v", err)
	}

	hdr, err := ParseHeader(next)
	if err != nil {
		t.Fatalf("ParseHeader() error = %v", err)
	}
	if hdr.FileCount != 1 {
		t.Errorf("FileCount = %d, want 1", hdr.FileCount)
	}

	entries, err := ParseManifest(next, key)
	if err != nil {
		t.Fatalf("ParseManifest() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("manifest entries = %d, want 2 (tombstone retained)", len(entries))
	}
	if !entries[1].Deleted {
		t.Error("removed entry is not tombstoned")
	}
	if entries[0].Deleted {
		t.Error("surviving entry was tombstoned")
	}
}

func TestBuildIncrementalUnknownID(t *testing.T) {
	key := testKey(t)
	prior, _, err := BuildFull(nil, testMeta(), key)
	if err != nil {
		t.Fatalf("BuildFull() error = %v", err)
	}

	_, _, err = BuildIncremental(prior, nil, []string{"no-such-id"}, testMeta(), key)
	if !errors.Is(err, ErrUnknownFileID) {
		t.Errorf("error = %v, want ErrUnknownFileID", err)
	}
}

func TestParseManifestWrongKey(t *testing.T) {
	key := testKey(t)
	data, _, err := BuildFull([]InputFile{
		{Content: []byte("secret"), Filename: "s.txt", MimeType: "text/plain"},
	}, testMeta(), key)
	if err != nil {
		t.Fatalf("BuildFull() error = %v", err)
	}

	wrong := testKey(t)
	if _, err := ParseManifest(data, wrong); !errors.Is(err, crypto.ErrAuthenticationFailure) {
		t.Errorf("ParseManifest(wrong key) error = %v, want ErrAuthenticationFailure", err)
	}
	if _, err := ParseMetadata(data, wrong); !errors.Is(err, crypto.ErrAuthenticationFailure) {
		t.Errorf("ParseMetadata(wrong key) error = %v, want ErrAuthenticationFailure", err)
	}
}

func TestParseHeaderInvalid(t *testing.T) {
	key := testKey(t)
	valid, _, err := BuildFull(nil, testMeta(), key)
	if err != nil {
		t.Fatalf("BuildFull() error = %v", err)
	}

	badMagic := append([]byte(nil), valid...)
	badMagic[0] = 'X'

	badVersion := append([]byte(nil), valid...)
	badVersion[4] = 99

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"truncated", valid[:HeaderSize-1]},
		{"bad magic", badMagic},
		{"bad version", badVersion},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseHeader(tt.data); !errors.Is(err, ErrInvalidFormat) {
				t.Errorf("ParseHeader() error = %v, want ErrInvalidFormat", err)
			}
		})
	}
}

func TestIsSVDF(t *testing.T) {
	if IsSVDF([]byte("SV")) {
		t.Error("IsSVDF(short) = true")
	}
	if IsSVDF([]byte("not a container")) {
		t.Error("IsSVDF(garbage) = true")
	}
	if !IsSVDF(append(Magic[:], 0, 0, 0)) {
		t.Error("IsSVDF(magic prefix) = false")
	}
}
