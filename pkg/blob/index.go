package blob

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mizunoh/blobvault/pkg/crypto"
)

// IndexFileName is the encrypted index artifact inside the vault directory.
const IndexFileName = "index.bin"

// FileEntry is one row of the vault index. Entries are tombstoned on
// delete, never removed; the row itself only disappears when the whole
// vault is destroyed.
type FileEntry struct {
	FileID string `json:"file_id"`
	Offset int64  `json:"offset"`
	Size   int64  `json:"size"`
	// HeaderPreview is the fixed-size unit prefix sufficient to decrypt
	// the file header without reading the blob.
	HeaderPreview []byte `json:"header_preview"`
	Deleted       bool   `json:"deleted"`
}

// SharePolicy constrains how a recipient may use a shared vault.
type SharePolicy struct {
	ExpiresAt        *time.Time `json:"expires_at,omitempty"`
	MaxOpens         *int       `json:"max_opens,omitempty"`
	AllowScreenshots bool       `json:"allow_screenshots"`
}

// ShareRecord tracks one active share session on the owner side.
type ShareRecord struct {
	ID           string      `json:"id"`
	CreatedAt    time.Time   `json:"created_at"`
	Policy       SharePolicy `json:"policy"`
	LastSyncedAt *time.Time  `json:"last_synced_at,omitempty"`
}

// Index is the per-vault-key bookkeeping structure. It is persisted
// encrypted; a wrong key at load time yields an empty index, not an error.
type Index struct {
	Entries    []FileEntry `json:"entries"`
	NextOffset int64       `json:"next_offset"`
	TotalSize  int64       `json:"total_size"`

	ActiveShares []ShareRecord `json:"active_shares,omitempty"`

	// Recipient-side fields for vaults materialized from a share.
	IsSharedVault bool         `json:"is_shared_vault,omitempty"`
	SharedVaultID string       `json:"shared_vault_id,omitempty"`
	SharePolicy   *SharePolicy `json:"share_policy,omitempty"`
	OpenCount     int          `json:"open_count,omitempty"`
}

// IndexLoadStatus distinguishes a cleanly loaded index from the
// deniability branch.
type IndexLoadStatus int

const (
	// IndexLoaded means the index decrypted and parsed under the key.
	IndexLoaded IndexLoadStatus = iota

	// IndexEmptyOnDecryptFailure means the stored index did not decrypt
	// under the key. The caller gets a fresh empty index; it cannot
	// distinguish "wrong key" from "new vault with nothing in it".
	IndexEmptyOnDecryptFailure
)

// IndexLoadResult models the wrong-key-returns-empty behavior as an
// explicit, testable variant instead of swallowed errors.
type IndexLoadResult struct {
	Status IndexLoadStatus
	Index  *Index
}

// liveEntry returns the non-tombstoned entry for id, or nil.
func (ix *Index) liveEntry(id string) *FileEntry {
	for i := range ix.Entries {
		if ix.Entries[i].FileID == id && !ix.Entries[i].Deleted {
			return &ix.Entries[i]
		}
	}
	return nil
}

// LiveEntries returns non-deleted entries in insertion order.
func (ix *Index) LiveEntries() []FileEntry {
	var live []FileEntry
	for _, e := range ix.Entries {
		if !e.Deleted {
			live = append(live, e)
		}
	}
	return live
}

// LoadIndex reads and decrypts the vault index under key.
//
// A missing index file is a new vault and loads as an empty index. A
// decrypt failure (wrong key or tampered file) is deliberately downgraded
// to IndexEmptyOnDecryptFailure with a fresh empty index. Only I/O
// failures surface as errors.
func (a *Allocator) LoadIndex(key []byte) (IndexLoadResult, error) {
	data, err := os.ReadFile(a.indexPath())
	if err != nil {
		if os.IsNotExist(err) {
			return IndexLoadResult{Status: IndexLoaded, Index: &Index{}}, nil
		}
		return IndexLoadResult{}, fmt.Errorf("blob: failed to read index: %w", err)
	}

	plain, err := crypto.Decrypt(data, key)
	if err != nil {
		return IndexLoadResult{Status: IndexEmptyOnDecryptFailure, Index: &Index{}}, nil
	}
	defer crypto.SecureWipe(plain)

	var ix Index
	if err := json.Unmarshal(plain, &ix); err != nil {
		// Authenticated but unparseable is corruption; it gets the same
		// empty-vault treatment so index loading never leaks structure.
		return IndexLoadResult{Status: IndexEmptyOnDecryptFailure, Index: &Index{}}, nil
	}

	return IndexLoadResult{Status: IndexLoaded, Index: &ix}, nil
}

// persistIndex encrypts and atomically replaces the index file. The blob
// bytes an index refers to are always written before this runs, so a crash
// leaves either the old or the new index, never a dangling reference.
func (a *Allocator) persistIndex(ix *Index, key []byte) error {
	plain, err := json.Marshal(ix)
	if err != nil {
		return fmt.Errorf("blob: failed to marshal index: %w", err)
	}
	defer crypto.SecureWipe(plain)

	sealed, err := crypto.Encrypt(plain, key)
	if err != nil {
		return fmt.Errorf("blob: failed to encrypt index: %w", err)
	}

	return atomicWriteFile(a.indexPath(), sealed, FileMode)
}

// atomicWriteFile writes data to a temp file in the target directory and
// renames it over path.
func atomicWriteFile(path string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("blob: failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("blob: failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("blob: failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("blob: failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, mode); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("blob: failed to set temp file mode: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("blob: failed to replace %s: %w", filepath.Base(path), err)
	}
	return nil
}

// indexPath returns the absolute path of the encrypted index file.
func (a *Allocator) indexPath() string {
	return filepath.Join(a.dir, IndexFileName)
}
