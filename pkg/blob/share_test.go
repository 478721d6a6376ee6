package blob

import (
	"errors"
	"testing"
	"time"
)

func TestRecordShareOpenOnUnsharedVault(t *testing.T) {
	a := newTestAllocator(t)
	key := testKey(t)

	if _, err := a.Store([]byte("x"), "x.txt", "text/plain", key); err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	if err := a.RecordShareOpen(time.Now().UTC(), key); err != nil {
		t.Errorf("RecordShareOpen() on unshared vault error = %v", err)
	}

	_, _, _, opens, err := a.SharedVaultInfo(key)
	if err != nil {
		t.Fatalf("SharedVaultInfo() error = %v", err)
	}
	if opens != 0 {
		t.Errorf("OpenCount = %d, want 0 for unshared vault", opens)
	}
}

func TestShareOpenLimit(t *testing.T) {
	a := newTestAllocator(t)
	key := testKey(t)

	if _, err := a.Store([]byte("x"), "x.txt", "text/plain", key); err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	maxOpens := 2
	policy := &SharePolicy{MaxOpens: &maxOpens}
	if err := a.MarkSharedVault("svid-1", policy, key); err != nil {
		t.Fatalf("MarkSharedVault() error = %v", err)
	}

	now := time.Now().UTC()
	for i := 0; i < maxOpens; i++ {
		if err := a.RecordShareOpen(now, key); err != nil {
			t.Fatalf("RecordShareOpen(%d) error = %v", i, err)
		}
	}
	if err := a.RecordShareOpen(now, key); !errors.Is(err, ErrShareOpenLimit) {
		t.Errorf("RecordShareOpen() beyond limit error = %v, want ErrShareOpenLimit", err)
	}

	shared, id, _, opens, err := a.SharedVaultInfo(key)
	if err != nil {
		t.Fatalf("SharedVaultInfo() error = %v", err)
	}
	if !shared || id != "svid-1" {
		t.Errorf("SharedVaultInfo() = (%v, %q), want shared svid-1", shared, id)
	}
	if opens != maxOpens {
		t.Errorf("OpenCount = %d, want %d", opens, maxOpens)
	}
}

func TestShareExpiry(t *testing.T) {
	a := newTestAllocator(t)
	key := testKey(t)

	if _, err := a.Store([]byte("x"), "x.txt", "text/plain", key); err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	expires := time.Now().UTC().Add(time.Hour)
	policy := &SharePolicy{ExpiresAt: &expires}
	if err := a.MarkSharedVault("svid-2", policy, key); err != nil {
		t.Fatalf("MarkSharedVault() error = %v", err)
	}

	if err := a.RecordShareOpen(expires.Add(-time.Minute), key); err != nil {
		t.Errorf("RecordShareOpen() before expiry error = %v", err)
	}
	if err := a.RecordShareOpen(expires.Add(time.Minute), key); !errors.Is(err, ErrShareExpired) {
		t.Errorf("RecordShareOpen() after expiry error = %v, want ErrShareExpired", err)
	}
}
