package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mizunoh/blobvault/internal/cli"
	"github.com/mizunoh/blobvault/pkg/blob"

	"github.com/spf13/cobra"
)

var getOutput string

func init() {
	getCmd.Flags().StringVarP(&getOutput, "output", "o", "", "Output path (default: original filename in the current directory)")
}

// getCmd decrypts a stored file back to disk.
var getCmd = &cobra.Command{
	Use:   "get [filename]",
	Short: "Decrypts a stored file back to disk",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		alloc, key, err := openVault()
		if err != nil {
			return err
		}

		// Shared vaults count opens and enforce the received policy.
		if err := alloc.RecordShareOpen(time.Now().UTC(), key); err != nil {
			return err
		}

		info, err := resolveOne(alloc, key, args[0])
		if err != nil {
			return err
		}

		header, content, err := alloc.Retrieve(info.Entry.FileID, key)
		if err != nil {
			return fmt.Errorf("failed to retrieve file: %w", err)
		}

		outPath := getOutput
		if outPath == "" {
			outPath = filepath.Base(header.OriginalFilename)
		}
		if err := os.WriteFile(outPath, content, 0600); err != nil {
			return fmt.Errorf("failed to write %s: %w", outPath, err)
		}

		fmt.Printf("Wrote '%s' (%d bytes)\n", outPath, len(content))
		return nil
	},
}

// resolveOne matches a filename or file id against the vault and requires
// exactly one hit.
func resolveOne(alloc *blob.Allocator, key []byte, arg string) (*blob.FileInfo, error) {
	infos, err := alloc.ListHeaders(key)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}

	// File ids are unambiguous; try them first.
	for i := range infos {
		if infos[i].Entry.FileID == arg {
			return &infos[i], nil
		}
	}

	return cli.MatchOne(arg, infos)
}

// resolveMany matches filename patterns against the vault.
func resolveMany(alloc *blob.Allocator, key []byte, patterns []string) ([]blob.FileInfo, error) {
	infos, err := alloc.ListHeaders(key)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	if len(infos) == 0 {
		return nil, nil
	}
	return cli.MatchFiles(patterns, infos)
}
