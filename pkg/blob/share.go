package blob

import (
	"fmt"
	"time"
)

// MarkSharedVault flags a vault materialized from a shared container on
// the recipient side. The policy travels with the vault so enforcement
// survives across sessions.
func (a *Allocator) MarkSharedVault(sharedVaultID string, policy *SharePolicy, key []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	res, err := a.LoadIndex(key)
	if err != nil {
		return err
	}
	ix := res.Index
	ix.IsSharedVault = true
	ix.SharedVaultID = sharedVaultID
	ix.SharePolicy = policy
	ix.OpenCount = 0
	return a.persistIndex(ix, key)
}

// RecordShareOpen enforces the share policy and counts one open of a
// shared vault. Vaults that are not shared pass through unchanged.
func (a *Allocator) RecordShareOpen(now time.Time, key []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	res, err := a.LoadIndex(key)
	if err != nil {
		return err
	}
	ix := res.Index
	if !ix.IsSharedVault {
		return nil
	}

	if p := ix.SharePolicy; p != nil {
		if p.ExpiresAt != nil && now.After(*p.ExpiresAt) {
			return fmt.Errorf("%w: expired %s", ErrShareExpired, p.ExpiresAt.Format(time.RFC3339))
		}
		if p.MaxOpens != nil && ix.OpenCount >= *p.MaxOpens {
			return fmt.Errorf("%w: %d of %d opens used", ErrShareOpenLimit, ix.OpenCount, *p.MaxOpens)
		}
	}

	ix.OpenCount++
	return a.persistIndex(ix, key)
}

// SharedVaultInfo reports the recipient-side share state of the vault.
func (a *Allocator) SharedVaultInfo(key []byte) (bool, string, *SharePolicy, int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	res, err := a.LoadIndex(key)
	if err != nil {
		return false, "", nil, 0, err
	}
	ix := res.Index
	return ix.IsSharedVault, ix.SharedVaultID, ix.SharePolicy, ix.OpenCount, nil
}
