package svdf

import (
	"bytes"
	"testing"
	"time"
)

func TestChunkRanges(t *testing.T) {
	tests := []struct {
		name      string
		total     int64
		chunk     int64
		wantCount int
		wantLast  int64
	}{
		{"empty", 0, 1024, 0, 0},
		{"single partial", 100, 1024, 1, 100},
		{"exact multiple", 2048, 1024, 2, 1024},
		{"ragged tail", 2500, 1024, 3, 452},
		{"zero chunk size", 500, 0, 1, 500},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ranges := ChunkRanges(tt.total, tt.chunk)
			if len(ranges) != tt.wantCount {
				t.Fatalf("ranges = %d, want %d", len(ranges), tt.wantCount)
			}
			if tt.wantCount == 0 {
				return
			}
			var covered int64
			for i, r := range ranges {
				if r.Offset != covered {
					t.Errorf("range %d offset = %d, want %d", i, r.Offset, covered)
				}
				covered += r.Length
			}
			if covered != tt.total {
				t.Errorf("covered = %d, want %d", covered, tt.total)
			}
			if got := ranges[len(ranges)-1].Length; got != tt.wantLast {
				t.Errorf("last length = %d, want %d", got, tt.wantLast)
			}
		})
	}
}

// The delta ranges of an incremental build, applied on top of the prior
// container's bytes, must reconstruct the new container exactly.
func TestDeltaRangesReconstruct(t *testing.T) {
	key := testKey(t)
	meta := Metadata{OwnerFingerprint: "fp", SharedAt: time.Now().UTC()}

	prior, entries, err := BuildFull([]InputFile{
		{Content: []byte("first"), Filename: "first.bin", MimeType: "application/octet-stream"},
		{Content: []byte("second"), Filename: "second.bin", MimeType: "application/octet-stream"},
	}, meta, key)
	if err != nil {
		t.Fatalf("BuildFull() error = %v", err)
	}
	priorHdr, err := ParseHeader(prior)
	if err != nil {
		t.Fatalf("ParseHeader() error = %v", err)
	}

	next, _, err := BuildIncremental(prior, []InputFile{
		{Content: []byte("third"), Filename: "third.bin", MimeType: "application/octet-stream"},
	}, []string{entries[0].ID}, meta, key)
	if err != nil {
		t.Fatalf("BuildIncremental() error = %v", err)
	}

	deltas := DeltaRanges(priorHdr, int64(len(next)))

	// Start from the prior bytes and patch in only the delta ranges.
	patched := make([]byte, len(next))
	copy(patched, prior)
	for _, r := range deltas {
		copy(patched[r.Offset:r.End()], next[r.Offset:r.End()])
	}
	if !bytes.Equal(patched, next) {
		t.Error("patched container differs from the rebuilt one")
	}
}
