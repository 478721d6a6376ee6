//go:build !windows

package blob

import (
	"fmt"
	"path/filepath"
	"syscall"
)

// checkDiskSpace returns disk space information for the vault directory.
func (a *Allocator) checkDiskSpace() (*DiskSpaceInfo, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(a.dir, &stat); err != nil {
		// Vault directory may not exist yet; fall back to the parent.
		if err := syscall.Statfs(filepath.Dir(a.dir), &stat); err != nil {
			return nil, fmt.Errorf("blob: failed to get disk stats: %w", err)
		}
	}

	return &DiskSpaceInfo{
		Total:     stat.Blocks * uint64(stat.Bsize),
		Free:      stat.Bfree * uint64(stat.Bsize),
		Available: stat.Bavail * uint64(stat.Bsize),
	}, nil
}
