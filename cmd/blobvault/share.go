package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mizunoh/blobvault/pkg/audit"
	"github.com/mizunoh/blobvault/pkg/blob"
	"github.com/mizunoh/blobvault/pkg/crypto"
	"github.com/mizunoh/blobvault/pkg/svdf"
	"github.com/mizunoh/blobvault/pkg/syncstate"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	shareKeyFile     string
	shareExpires     string
	shareMaxOpens    int
	shareScreenshots bool

	shareAddPaths  []string
	shareRemoveIDs []string

	shareOutputDir string
	shareMarkAll   bool
	shareImportID  string
)

var shareCmd = &cobra.Command{
	Use:   "share",
	Short: "Shared vault container operations",
}

func init() {
	shareCmd.AddCommand(shareExportCmd)
	shareCmd.AddCommand(shareUpdateCmd)
	shareCmd.AddCommand(shareInspectCmd)
	shareCmd.AddCommand(shareExtractCmd)
	shareCmd.AddCommand(shareImportCmd)
	shareCmd.AddCommand(shareRangesCmd)

	shareCmd.PersistentFlags().StringVar(&shareKeyFile, "key-file", "", "Share key file (default: <container>.key)")

	shareExportCmd.Flags().StringVar(&shareExpires, "expires", "", "Share expiration duration (e.g., 72h)")
	shareExportCmd.Flags().IntVar(&shareMaxOpens, "max-opens", 0, "Maximum opens allowed (0 = unlimited)")
	shareExportCmd.Flags().BoolVar(&shareScreenshots, "allow-screenshots", false, "Allow screenshots on the receiving side")

	shareUpdateCmd.Flags().StringArrayVar(&shareAddPaths, "add", nil, "File to add (can be repeated)")
	shareUpdateCmd.Flags().StringArrayVar(&shareRemoveIDs, "remove", nil, "File id to tombstone (can be repeated)")

	shareExtractCmd.Flags().StringVarP(&shareOutputDir, "output", "o", ".", "Directory to extract into")

	shareImportCmd.Flags().StringVar(&shareImportID, "share-id", "", "Share id received from the owner")
	shareImportCmd.Flags().StringVar(&shareExpires, "expires", "", "Policy: expiration duration from now")
	shareImportCmd.Flags().IntVar(&shareMaxOpens, "max-opens", 0, "Policy: maximum opens allowed (0 = unlimited)")

	shareRangesCmd.Flags().BoolVar(&shareMarkAll, "mark-all", false, "Record every pending range as uploaded")
}

// shareExportCmd builds a fresh container from vault files.
var shareExportCmd = &cobra.Command{
	Use:   "export [container] [pattern]...",
	Short: "Exports vault files into a shared container",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		outPath := args[0]

		alloc, key, err := openVault()
		if err != nil {
			return err
		}

		infos, err := resolveMany(alloc, key, args[1:])
		if err != nil {
			return err
		}
		if len(infos) == 0 {
			return fmt.Errorf("no files matched")
		}

		inputs := make([]svdf.InputFile, 0, len(infos))
		for _, info := range infos {
			header, content, err := alloc.Retrieve(info.Entry.FileID, key)
			if err != nil {
				return fmt.Errorf("failed to retrieve '%s': %w", info.Header.OriginalFilename, err)
			}
			inputs = append(inputs, svdf.InputFile{
				Content:  content,
				Filename: header.OriginalFilename,
				MimeType: header.MimeType,
				FileID:   header.FileID,
			})
		}

		shareKey, err := crypto.RandomBytes(crypto.KeyLength)
		if err != nil {
			return fmt.Errorf("failed to generate share key: %w", err)
		}

		shareID := uuid.NewString()
		meta := svdf.Metadata{
			OwnerFingerprint: ownerFingerprint(key),
			SharedAt:         time.Now().UTC(),
		}

		data, _, err := svdf.BuildFull(inputs, meta, shareKey)
		if err != nil {
			return err
		}
		if err := os.WriteFile(outPath, data, 0600); err != nil {
			return fmt.Errorf("failed to write container: %w", err)
		}

		keyPath := shareKeyPath(outPath)
		if err := os.WriteFile(keyPath, []byte(hex.EncodeToString(shareKey)), 0600); err != nil {
			return fmt.Errorf("failed to write share key: %w", err)
		}

		policy := blob.SharePolicy{
			AllowScreenshots: shareScreenshots,
		}
		if shareMaxOpens > 0 {
			maxOpens := shareMaxOpens
			policy.MaxOpens = &maxOpens
		}
		if shareExpires != "" {
			d, err := time.ParseDuration(shareExpires)
			if err != nil {
				return fmt.Errorf("invalid expires format: %w", err)
			}
			expiresAt := time.Now().UTC().Add(d)
			policy.ExpiresAt = &expiresAt
		}
		rec := blob.ShareRecord{
			ID:        shareID,
			CreatedAt: time.Now().UTC(),
			Policy:    policy,
		}
		if err := alloc.AddShareRecord(rec, key); err != nil {
			return fmt.Errorf("failed to record share: %w", err)
		}
		_ = alloc.AuditLogger().LogSuccess(audit.OpShareBuild, audit.SourceCLI, shareID)

		fmt.Printf("Exported %d file(s) to %s (share %s)\n", len(inputs), outPath, shareID)
		fmt.Printf("Share key written to %s - transmit it out of band\n", keyPath)
		return nil
	},
}

// shareUpdateCmd rebuilds a container incrementally: prior file bytes are
// kept verbatim so only the tail needs re-uploading.
var shareUpdateCmd = &cobra.Command{
	Use:   "update [container]",
	Short: "Adds or removes files in a shared container",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		containerPath := args[0]
		if len(shareAddPaths) == 0 && len(shareRemoveIDs) == 0 {
			return fmt.Errorf("nothing to do (use --add or --remove)")
		}

		prior, err := os.ReadFile(containerPath)
		if err != nil {
			return fmt.Errorf("failed to read container: %w", err)
		}
		if !svdf.IsSVDF(prior) {
			return svdf.ErrInvalidFormat
		}
		shareKey, err := readShareKey(containerPath)
		if err != nil {
			return err
		}

		priorHdr, err := svdf.ParseHeader(prior)
		if err != nil {
			return err
		}
		meta, err := svdf.ParseMetadata(prior, shareKey)
		if err != nil {
			return err
		}

		var inputs []svdf.InputFile
		for _, path := range shareAddPaths {
			content, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", path, err)
			}
			inputs = append(inputs, svdf.InputFile{
				Content:  content,
				Filename: filepath.Base(path),
				MimeType: detectMime(path, content),
			})
		}

		next, _, err := svdf.BuildIncremental(prior, inputs, shareRemoveIDs, *meta, shareKey)
		if err != nil {
			return err
		}
		// The container being rewritten is the only copy; replace it
		// atomically so a crash mid-write cannot truncate it.
		if err := writeFileAtomic(containerPath, next, 0600); err != nil {
			return fmt.Errorf("failed to write container: %w", err)
		}

		fmt.Printf("Container updated (%d bytes)\n", len(next))
		for _, r := range svdf.DeltaRanges(priorHdr, int64(len(next))) {
			fmt.Printf("Changed range: offset=%d length=%d\n", r.Offset, r.Length)
		}
		return nil
	},
}

// shareInspectCmd prints container structure and manifest.
var shareInspectCmd = &cobra.Command{
	Use:   "inspect [container]",
	Short: "Shows the structure and contents of a shared container",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read container: %w", err)
		}

		hdr, err := svdf.ParseHeader(data)
		if err != nil {
			return err
		}
		fmt.Printf("Version:  %d\n", hdr.Version)
		fmt.Printf("Files:    %d\n", hdr.FileCount)
		fmt.Printf("Manifest: offset=%d size=%d\n", hdr.ManifestOffset, hdr.ManifestSize)
		fmt.Printf("Metadata: offset=%d size=%d\n", hdr.MetadataOffset, hdr.MetadataSize)

		shareKey, err := readShareKey(args[0])
		if err != nil {
			fmt.Println("(no share key available - header only)")
			return nil
		}

		meta, err := svdf.ParseMetadata(data, shareKey)
		if err != nil {
			return err
		}
		fmt.Printf("Owner:    %s\n", meta.OwnerFingerprint)
		fmt.Printf("Shared:   %s\n", meta.SharedAt.Format(time.RFC3339))

		entries, err := svdf.ParseManifest(data, shareKey)
		if err != nil {
			return err
		}
		for _, e := range entries {
			state := "active"
			if e.Deleted {
				state = "deleted"
			}
			fmt.Printf("  %s  offset=%d size=%d  %s\n", e.ID, e.Offset, e.Size, state)
		}
		return nil
	},
}

// shareExtractCmd decrypts every active file out of a container.
var shareExtractCmd = &cobra.Command{
	Use:   "extract [container]",
	Short: "Extracts all active files from a shared container",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read container: %w", err)
		}
		shareKey, err := readShareKey(args[0])
		if err != nil {
			return err
		}

		entries, err := svdf.ParseManifest(data, shareKey)
		if err != nil {
			return err
		}

		if err := os.MkdirAll(shareOutputDir, 0700); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}

		extracted := 0
		for _, e := range entries {
			if e.Deleted {
				continue
			}
			header, content, err := svdf.ExtractFileEntry(data, e, shareKey)
			if err != nil {
				return fmt.Errorf("failed to extract %s: %w", e.ID, err)
			}
			outPath := filepath.Join(shareOutputDir, filepath.Base(header.OriginalFilename))
			if err := os.WriteFile(outPath, content, 0600); err != nil {
				return fmt.Errorf("failed to write %s: %w", outPath, err)
			}
			fmt.Printf("Extracted '%s' (%d bytes)\n", header.OriginalFilename, len(content))
			extracted++
		}

		fmt.Printf("Extracted %d file(s) to %s\n", extracted, shareOutputDir)
		return nil
	},
}

// shareImportCmd materializes a container into the local vault under the
// recipient's own key and marks the vault as shared so the policy is
// enforced on later opens.
var shareImportCmd = &cobra.Command{
	Use:   "import [container]",
	Short: "Imports a shared container into the local vault",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read container: %w", err)
		}
		shareKey, err := readShareKey(args[0])
		if err != nil {
			return err
		}

		entries, err := svdf.ParseManifest(data, shareKey)
		if err != nil {
			return err
		}
		meta, err := svdf.ParseMetadata(data, shareKey)
		if err != nil {
			return err
		}

		alloc, key, err := openVault()
		if err != nil {
			return err
		}

		imported := 0
		for _, e := range entries {
			if e.Deleted {
				continue
			}
			header, content, err := svdf.ExtractFileEntry(data, e, shareKey)
			if err != nil {
				return fmt.Errorf("failed to extract %s: %w", e.ID, err)
			}
			if _, err := alloc.Store(content, header.OriginalFilename, header.MimeType, key); err != nil {
				return fmt.Errorf("failed to store '%s': %w", header.OriginalFilename, err)
			}
			imported++
		}

		var policy *blob.SharePolicy
		if shareExpires != "" || shareMaxOpens > 0 {
			policy = &blob.SharePolicy{}
			if shareExpires != "" {
				d, err := time.ParseDuration(shareExpires)
				if err != nil {
					return fmt.Errorf("invalid expires format: %w", err)
				}
				expiresAt := time.Now().UTC().Add(d)
				policy.ExpiresAt = &expiresAt
			}
			if shareMaxOpens > 0 {
				maxOpens := shareMaxOpens
				policy.MaxOpens = &maxOpens
			}
		}

		shareID := shareImportID
		if shareID == "" {
			shareID = uuid.NewString()
		}
		if err := alloc.MarkSharedVault(shareID, policy, key); err != nil {
			return fmt.Errorf("failed to mark shared vault: %w", err)
		}
		_ = alloc.AuditLogger().LogSuccess(audit.OpShareExtract, audit.SourceCLI, shareID)

		fmt.Printf("Imported %d file(s) shared by %s at %s\n",
			imported, meta.OwnerFingerprint, meta.SharedAt.Format(time.RFC3339))
		return nil
	},
}

// shareRangesCmd shows which upload chunks of a container are still
// pending according to the sync ledger.
var shareRangesCmd = &cobra.Command{
	Use:   "ranges [container] [share-id]",
	Short: "Shows pending upload ranges for a shared container",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		containerPath, shareID := args[0], args[1]

		fi, err := os.Stat(containerPath)
		if err != nil {
			return fmt.Errorf("failed to stat container: %w", err)
		}

		cfg, err := loadConfig(vaultPath)
		if err != nil {
			return err
		}

		store, err := syncstate.Open(filepath.Join(vaultPath, syncstate.DBFileName))
		if err != nil {
			return err
		}
		defer store.Close()

		chunks := svdf.ChunkRanges(fi.Size(), cfg.ShareChunkSize)
		pending, err := store.PendingRanges(shareID, chunks)
		if err != nil {
			return err
		}

		if len(pending) == 0 {
			fmt.Println("Upload complete - no pending ranges")
			return nil
		}
		for _, r := range pending {
			fmt.Printf("Pending: offset=%d length=%d\n", r.Offset, r.Length)
		}

		if shareMarkAll {
			for _, r := range pending {
				if err := store.MarkUploaded(shareID, r); err != nil {
					return err
				}
			}
			fmt.Printf("Marked %d range(s) as uploaded\n", len(pending))

			alloc, key, err := openVault()
			if err != nil {
				return err
			}
			if err := alloc.TouchShare(shareID, time.Now().UTC(), key); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to record sync time: %v\n", err)
			}
		}
		return nil
	},
}

func shareKeyPath(containerPath string) string {
	return containerPath + ".key"
}

// writeFileAtomic writes data to a temp file in the target directory and
// renames it over path.
func writeFileAtomic(path string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, mode); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to set temp file mode: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace %s: %w", filepath.Base(path), err)
	}
	return nil
}

// readShareKey loads the hex share key from --key-file or the default
// sidecar path.
func readShareKey(containerPath string) ([]byte, error) {
	path := shareKeyFile
	if path == "" {
		path = shareKeyPath(containerPath)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read share key %s: %w", path, err)
	}
	key, err := hex.DecodeString(string(raw))
	if err != nil {
		return nil, fmt.Errorf("invalid share key in %s: %w", path, err)
	}
	if len(key) != crypto.KeyLength {
		return nil, crypto.ErrInvalidKeyLength
	}
	return key, nil
}

// ownerFingerprint derives a stable, non-reversible identifier for the
// vault owner from the master key.
func ownerFingerprint(key []byte) string {
	sub, err := crypto.DeriveSubkey(key, "owner-fingerprint")
	if err != nil {
		return ""
	}
	return hex.EncodeToString(sub[:8])
}
