package main

import (
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var (
	storeName string
	storeMime string
)

func init() {
	storeCmd.Flags().StringVar(&storeName, "name", "", "Stored filename (default: basename of the source)")
	storeCmd.Flags().StringVar(&storeMime, "mime", "", "MIME type (default: detected from extension and content)")
}

// storeCmd encrypts a file into the vault.
var storeCmd = &cobra.Command{
	Use:   "store [path]",
	Short: "Encrypts a file into the vault",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		srcPath := args[0]

		content, err := os.ReadFile(srcPath)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", srcPath, err)
		}

		name := storeName
		if name == "" {
			name = filepath.Base(srcPath)
		}
		mimeType := storeMime
		if mimeType == "" {
			mimeType = detectMime(srcPath, content)
		}

		alloc, key, err := openVault()
		if err != nil {
			return err
		}

		fileID, err := alloc.Store(content, name, mimeType, key)
		if err != nil {
			return fmt.Errorf("failed to store file: %w", err)
		}

		fmt.Printf("Stored '%s' (%d bytes, %s) as %s\n", name, len(content), mimeType, fileID)
		return nil
	},
}

// detectMime resolves a MIME type from the file extension, falling back
// to content sniffing.
func detectMime(path string, content []byte) string {
	if byExt := mime.TypeByExtension(filepath.Ext(path)); byExt != "" {
		return byExt
	}
	return http.DetectContentType(content)
}
