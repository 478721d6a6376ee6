package blob

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mizunoh/blobvault/pkg/audit"
	"github.com/mizunoh/blobvault/pkg/crypto"
	"github.com/mizunoh/blobvault/pkg/filecodec"
)

// Constants
const (
	FileMode = 0600 // Owner read/write only
	DirMode  = 0700 // Owner read/write/execute only

	// DefaultRegionSize is the capacity of one blob region file.
	DefaultRegionSize = 64 * 1024 * 1024

	// DefaultWipeChunkSize bounds memory use during random overwrites, so
	// destroying a large blob stays O(chunk) rather than O(blob).
	DefaultWipeChunkSize = 4 * 1024 * 1024

	// MinDiskSpaceBytes is the minimum free space required for writes.
	MinDiskSpaceBytes = 10 * 1024 * 1024
)

// ReclaimPolicy controls whether tombstoned byte ranges may be reused.
type ReclaimPolicy int

const (
	// NeverReclaim leaves deleted ranges permanently unused. Reusing
	// freed ranges would let forensic timing analysis correlate deletions
	// with later writes.
	NeverReclaim ReclaimPolicy = iota

	// CompactOnDemand is reserved for a future compaction pass. It is
	// rejected at construction.
	CompactOnDemand
)

// Options configures an Allocator.
type Options struct {
	// RegionSize is the capacity of each blob region file.
	RegionSize int64
	// WipeChunkSize bounds buffers for random fill and overwrite.
	WipeChunkSize int
	// Reclaim selects the tombstone reclaim policy.
	Reclaim ReclaimPolicy
}

// Allocator is the handle for one vault's blob regions and index, keyed by
// the vault directory. Construct one per vault and pass it by reference;
// there is no ambient shared instance.
type Allocator struct {
	dir           string
	regionSize    int64
	wipeChunkSize int
	mu            sync.Mutex
	audit         *audit.Logger
}

// New creates an allocator for the vault directory. The directory is
// created on first store.
func New(dir string, opts Options) (*Allocator, error) {
	if opts.Reclaim != NeverReclaim {
		return nil, ErrUnsupportedPolicy
	}
	if opts.RegionSize <= 0 {
		opts.RegionSize = DefaultRegionSize
	}
	if opts.WipeChunkSize <= 0 {
		opts.WipeChunkSize = DefaultWipeChunkSize
	}
	return &Allocator{
		dir:           dir,
		regionSize:    opts.RegionSize,
		wipeChunkSize: opts.WipeChunkSize,
		audit:         audit.NewLogger(filepath.Join(dir, "audit")),
	}, nil
}

// Dir returns the vault directory.
func (a *Allocator) Dir() string {
	return a.dir
}

// RegionSize returns the configured region capacity.
func (a *Allocator) RegionSize() int64 {
	return a.regionSize
}

// SetAuditKey initializes audit logging with a key. Best-effort: vault
// operations proceed even when audit logging is unavailable.
func (a *Allocator) SetAuditKey(key []byte) error {
	return a.audit.SetHMACKey(key)
}

// AuditLogger returns the allocator's audit logger.
func (a *Allocator) AuditLogger() *audit.Logger {
	return a.audit
}

// Store encrypts data and writes it into the blob at the next free offset.
//
// The encrypted unit bytes hit the blob region before the index entry
// referencing them is persisted, so a crash between the two leaves an
// unreferenced (random-looking) range rather than a dangling entry.
func (a *Allocator) Store(data []byte, filename, mimeType string, key []byte) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	res, err := a.LoadIndex(key)
	if err != nil {
		return "", err
	}
	ix := res.Index

	// Large files go through the chunked codec so decryption never holds
	// more than one chunk of ciphertext-sized slack.
	var unit []byte
	var fileID string
	if len(data) > filecodec.DefaultChunkSize {
		unit, fileID, err = filecodec.EncryptFileChunked(data, filename, mimeType, key, "", filecodec.DefaultChunkSize)
	} else {
		unit, fileID, err = filecodec.EncryptFile(data, filename, mimeType, key, "")
	}
	if err != nil {
		_ = a.audit.LogError(audit.OpFileStore, audit.SourceCLI, filename, "ENCRYPT_FAILED", err.Error())
		return "", err
	}
	unitSize := int64(len(unit))
	if unitSize > a.regionSize {
		return "", fmt.Errorf("%w: unit is %d bytes, region is %d", ErrUnitTooLarge, unitSize, a.regionSize)
	}

	// First access allocates the initial region.
	if ix.TotalSize == 0 {
		if err := a.ensureRegion(0); err != nil {
			return "", err
		}
		ix.TotalSize = a.regionSize
	}

	offset, err := a.placeUnit(ix, unitSize)
	if err != nil {
		_ = a.audit.LogError(audit.OpFileStore, audit.SourceCLI, filename, "NO_SPACE", err.Error())
		return "", err
	}

	if err := a.writeRange(offset, unit); err != nil {
		_ = a.audit.LogError(audit.OpFileStore, audit.SourceCLI, filename, "WRITE_FAILED", err.Error())
		return "", err
	}

	preview, err := filecodec.HeaderPreview(unit)
	if err != nil {
		return "", err
	}
	ix.Entries = append(ix.Entries, FileEntry{
		FileID:        fileID,
		Offset:        offset,
		Size:          unitSize,
		HeaderPreview: preview,
	})
	ix.NextOffset = offset + unitSize

	if err := a.persistIndex(ix, key); err != nil {
		return "", err
	}

	_ = a.audit.LogSuccess(audit.OpFileStore, audit.SourceCLI, fileID)
	return fileID, nil
}

// placeUnit picks the write offset for a unit of unitSize. Units never
// span region boundaries: when the tail of the current region cannot hold
// the unit, placement moves to the next region if one exists, otherwise
// the store fails and the caller must Expand. The skipped tail keeps its
// original random fill.
func (a *Allocator) placeUnit(ix *Index, unitSize int64) (int64, error) {
	offset := ix.NextOffset
	regionEnd := (offset/a.regionSize + 1) * a.regionSize
	if offset+unitSize > regionEnd {
		offset = regionEnd
	}
	if offset+unitSize > ix.TotalSize {
		return 0, fmt.Errorf("%w: need %d bytes at offset %d, capacity %d",
			ErrInsufficientSpace, unitSize, offset, ix.TotalSize)
	}
	return offset, nil
}

// Retrieve reads and decrypts the file for id.
func (a *Allocator) Retrieve(id string, key []byte) (*filecodec.FileHeader, []byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	res, err := a.LoadIndex(key)
	if err != nil {
		return nil, nil, err
	}

	entry := res.Index.liveEntry(id)
	if entry == nil {
		_ = a.audit.LogError(audit.OpFileRetrieve, audit.SourceCLI, id, "NOT_FOUND", "no live entry")
		return nil, nil, ErrFileNotFound
	}

	unit, err := a.readRange(entry.Offset, entry.Size)
	if err != nil {
		return nil, nil, err
	}

	header, content, err := filecodec.DecryptUnit(unit, key)
	if err != nil {
		_ = a.audit.LogError(audit.OpFileRetrieve, audit.SourceCLI, id, "DECRYPT_FAILED", err.Error())
		return nil, nil, err
	}

	_ = a.audit.LogSuccess(audit.OpFileRetrieve, audit.SourceCLI, id)
	return header, content, nil
}

// Delete overwrites the entry's byte range with fresh random bytes, then
// tombstones it. If the overwrite fails the tombstone is not set: the
// entry stays visible as live rather than being silently marked gone while
// still recoverable. Freed ranges are never reused for new writes.
func (a *Allocator) Delete(id string, key []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	res, err := a.LoadIndex(key)
	if err != nil {
		return err
	}
	ix := res.Index

	entry := ix.liveEntry(id)
	if entry == nil {
		_ = a.audit.LogError(audit.OpFileDelete, audit.SourceCLI, id, "NOT_FOUND", "no live entry")
		return ErrFileNotFound
	}

	if err := a.overwriteRandom(entry.Offset, entry.Size); err != nil {
		_ = a.audit.LogError(audit.OpFileDelete, audit.SourceCLI, id, "WIPE_FAILED", err.Error())
		return err
	}

	entry.Deleted = true
	entry.HeaderPreview = nil
	if err := a.persistIndex(ix, key); err != nil {
		return err
	}

	_ = a.audit.LogSuccess(audit.OpFileDelete, audit.SourceCLI, id)
	return nil
}

// FileInfo pairs an index entry with its decrypted header.
type FileInfo struct {
	Entry  FileEntry
	Header *filecodec.FileHeader
}

// List returns the live entries in insertion order.
func (a *Allocator) List(key []byte) ([]FileEntry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	res, err := a.LoadIndex(key)
	if err != nil {
		return nil, err
	}
	_ = a.audit.LogSuccess(audit.OpFileList, audit.SourceCLI, "")
	return res.Index.LiveEntries(), nil
}

// ListHeaders returns live entries with headers decrypted from the stored
// previews, never touching blob content.
func (a *Allocator) ListHeaders(key []byte) ([]FileInfo, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	res, err := a.LoadIndex(key)
	if err != nil {
		return nil, err
	}

	var infos []FileInfo
	for _, e := range res.Index.LiveEntries() {
		header, err := filecodec.DecryptHeader(e.HeaderPreview, key)
		if err != nil {
			return nil, fmt.Errorf("blob: failed to decrypt header preview for %s: %w", e.FileID, err)
		}
		infos = append(infos, FileInfo{Entry: e, Header: header})
	}

	_ = a.audit.LogSuccess(audit.OpFileList, audit.SourceCLI, "")
	return infos, nil
}

// Expand allocates one additional random-filled region and raises the
// vault capacity. Called when Store fails with ErrInsufficientSpace.
func (a *Allocator) Expand(key []byte) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	res, err := a.LoadIndex(key)
	if err != nil {
		return 0, err
	}
	ix := res.Index

	next := int(ix.TotalSize / a.regionSize)
	if err := a.ensureRegion(next); err != nil {
		return 0, err
	}

	ix.TotalSize += a.regionSize
	if err := a.persistIndex(ix, key); err != nil {
		return 0, err
	}
	return ix.TotalSize, nil
}

// Destroy overwrites every blob region with random bytes in bounded-size
// chunks, then removes the region files and the index. Requires no key:
// duress destruction must work without proving ownership.
func (a *Allocator) Destroy() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	for i := 0; ; i++ {
		path := a.regionPath(i)
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				break
			}
			return fmt.Errorf("blob: failed to stat region %d: %w", i, err)
		}
		if err := a.wipeFile(path, info.Size()); err != nil {
			return err
		}
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("blob: failed to remove region %d: %w", i, err)
		}
	}

	if err := os.Remove(a.indexPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("blob: failed to remove index: %w", err)
	}
	return nil
}

// AddShareRecord records a new active share on the owner's index.
func (a *Allocator) AddShareRecord(rec ShareRecord, key []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	res, err := a.LoadIndex(key)
	if err != nil {
		return err
	}
	ix := res.Index
	ix.ActiveShares = append(ix.ActiveShares, rec)
	return a.persistIndex(ix, key)
}

// TouchShare updates a share's last-synced timestamp.
func (a *Allocator) TouchShare(shareID string, syncedAt time.Time, key []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	res, err := a.LoadIndex(key)
	if err != nil {
		return err
	}
	ix := res.Index
	for i := range ix.ActiveShares {
		if ix.ActiveShares[i].ID == shareID {
			t := syncedAt
			ix.ActiveShares[i].LastSyncedAt = &t
			return a.persistIndex(ix, key)
		}
	}
	return ErrShareNotFound
}

// ListShares returns the owner's active share records.
func (a *Allocator) ListShares(key []byte) ([]ShareRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	res, err := a.LoadIndex(key)
	if err != nil {
		return nil, err
	}
	return res.Index.ActiveShares, nil
}

// regionPath returns the file path for region i.
func (a *Allocator) regionPath(i int) string {
	if i == 0 {
		return filepath.Join(a.dir, "blob.bin")
	}
	return filepath.Join(a.dir, fmt.Sprintf("blob.%d.bin", i))
}

// ensureRegion creates region i pre-filled with random bytes if it does
// not exist yet.
func (a *Allocator) ensureRegion(i int) error {
	path := a.regionPath(i)
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	if err := os.MkdirAll(a.dir, DirMode); err != nil {
		return fmt.Errorf("blob: failed to create vault directory: %w", err)
	}
	if err := a.checkDiskSpaceForWrite(a.regionSize); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, FileMode)
	if err != nil {
		return fmt.Errorf("blob: failed to create region %d: %w", i, err)
	}

	remaining := a.regionSize
	for remaining > 0 {
		n := int64(a.wipeChunkSize)
		if n > remaining {
			n = remaining
		}
		chunk, err := crypto.RandomBytes(int(n))
		if err != nil {
			f.Close()
			os.Remove(path)
			return err
		}
		if _, err := f.Write(chunk); err != nil {
			f.Close()
			os.Remove(path)
			return fmt.Errorf("blob: failed to fill region %d: %w", i, err)
		}
		remaining -= n
	}

	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("blob: failed to sync region %d: %w", i, err)
	}
	return f.Close()
}

// writeRange writes data at the given global offset. The range never
// crosses a region boundary (placeUnit guarantees this).
func (a *Allocator) writeRange(offset int64, data []byte) error {
	region := int(offset / a.regionSize)
	local := offset % a.regionSize

	f, err := os.OpenFile(a.regionPath(region), os.O_WRONLY, FileMode)
	if err != nil {
		return fmt.Errorf("blob: failed to open region %d: %w", region, err)
	}
	defer f.Close()

	if _, err := f.WriteAt(data, local); err != nil {
		return fmt.Errorf("blob: failed to write %d bytes at offset %d: %w", len(data), offset, err)
	}
	return f.Sync()
}

// readRange reads size bytes at the given global offset.
func (a *Allocator) readRange(offset, size int64) ([]byte, error) {
	region := int(offset / a.regionSize)
	local := offset % a.regionSize

	f, err := os.Open(a.regionPath(region))
	if err != nil {
		return nil, fmt.Errorf("blob: failed to open region %d: %w", region, err)
	}
	defer f.Close()

	buf := make([]byte, size)
	if _, err := f.ReadAt(buf, local); err != nil {
		return nil, fmt.Errorf("blob: failed to read %d bytes at offset %d: %w", size, offset, err)
	}
	return buf, nil
}

// overwriteRandom replaces a byte range with fresh random bytes in bounded
// chunks.
func (a *Allocator) overwriteRandom(offset, size int64) error {
	region := int(offset / a.regionSize)
	local := offset % a.regionSize

	f, err := os.OpenFile(a.regionPath(region), os.O_WRONLY, FileMode)
	if err != nil {
		return fmt.Errorf("blob: failed to open region %d: %w", region, err)
	}
	defer f.Close()

	remaining := size
	pos := local
	for remaining > 0 {
		n := int64(a.wipeChunkSize)
		if n > remaining {
			n = remaining
		}
		chunk, err := crypto.RandomBytes(int(n))
		if err != nil {
			return err
		}
		if _, err := f.WriteAt(chunk, pos); err != nil {
			return fmt.Errorf("blob: failed to overwrite range at %d: %w", offset, err)
		}
		pos += n
		remaining -= n
	}
	return f.Sync()
}

// wipeFile overwrites an entire file with random bytes in bounded chunks.
func (a *Allocator) wipeFile(path string, size int64) error {
	f, err := os.OpenFile(path, os.O_WRONLY, FileMode)
	if err != nil {
		return fmt.Errorf("blob: failed to open %s for wipe: %w", filepath.Base(path), err)
	}
	defer f.Close()

	var pos int64
	for pos < size {
		n := int64(a.wipeChunkSize)
		if n > size-pos {
			n = size - pos
		}
		chunk, err := crypto.RandomBytes(int(n))
		if err != nil {
			return err
		}
		if _, err := f.WriteAt(chunk, pos); err != nil {
			return fmt.Errorf("blob: failed to wipe %s: %w", filepath.Base(path), err)
		}
		pos += n
	}
	return f.Sync()
}

// checkDiskSpaceForWrite verifies sufficient disk space before large
// writes. A failing probe only warns; blocking storage on statfs errors
// would be worse than proceeding.
func (a *Allocator) checkDiskSpaceForWrite(dataSize int64) error {
	info, err := a.checkDiskSpace()
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to check disk space: %v\n", err)
		return nil
	}

	required := uint64(MinDiskSpaceBytes)
	if uint64(dataSize) > required {
		required = uint64(dataSize)
	}
	if info.Available < required {
		return fmt.Errorf("%w: only %d MB available, need at least %d MB",
			ErrInsufficientDisk, info.Available/(1024*1024), required/(1024*1024))
	}
	return nil
}

// DiskSpaceInfo contains disk usage information for the vault directory.
type DiskSpaceInfo struct {
	Total     uint64
	Free      uint64
	Available uint64
}
