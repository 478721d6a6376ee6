// Package cli provides shared file-selection helpers for CLI commands.
package cli

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mizunoh/blobvault/pkg/blob"
)

// MatchFiles selects vault files whose stored filename matches any of the
// glob patterns. A pattern without glob characters (*?[) must equal a
// stored filename exactly. Results keep vault order and are deduplicated
// by file id across patterns.
func MatchFiles(patterns []string, infos []blob.FileInfo) ([]blob.FileInfo, error) {
	seen := make(map[string]bool)
	var result []blob.FileInfo

	for _, pattern := range patterns {
		matched, err := matchPattern(pattern, infos)
		if err != nil {
			return nil, err
		}
		for _, info := range matched {
			if !seen[info.Entry.FileID] {
				seen[info.Entry.FileID] = true
				result = append(result, info)
			}
		}
	}
	return result, nil
}

// MatchOne is MatchFiles for selectors that must identify a single file.
func MatchOne(pattern string, infos []blob.FileInfo) (*blob.FileInfo, error) {
	matched, err := matchPattern(pattern, infos)
	if err != nil {
		return nil, err
	}
	if len(matched) > 1 {
		return nil, fmt.Errorf("pattern '%s' matches %d files; narrow it down", pattern, len(matched))
	}
	return &matched[0], nil
}

func matchPattern(pattern string, infos []blob.FileInfo) ([]blob.FileInfo, error) {
	// Validate pattern syntax up front
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("invalid pattern '%s': %w", pattern, err)
	}

	hasGlob := strings.ContainsAny(pattern, "*?[")

	var matched []blob.FileInfo
	for _, info := range infos {
		name := info.Header.OriginalFilename
		if hasGlob {
			ok, err := filepath.Match(pattern, name)
			if err != nil {
				return nil, err
			}
			if ok {
				matched = append(matched, info)
			}
		} else if name == pattern {
			matched = append(matched, info)
		}
	}

	if len(matched) == 0 {
		if hasGlob {
			return nil, fmt.Errorf("no files match pattern '%s'", pattern)
		}
		return nil, fmt.Errorf("file '%s' not found", pattern)
	}
	return matched, nil
}
