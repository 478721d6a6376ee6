package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mizunoh/blobvault/pkg/blob"

	"github.com/spf13/cobra"
)

var destroyForce bool

func init() {
	destroyCmd.Flags().BoolVarP(&destroyForce, "force", "f", false, "Skip confirmation prompt")
}

// destroyCmd wipes and removes the whole vault. No passphrase needed:
// destruction must work even when the key is lost.
var destroyCmd = &cobra.Command{
	Use:   "destroy",
	Short: "Wipes all blob regions and removes the vault",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !destroyForce {
			fmt.Printf("This will irreversibly destroy the vault at %s.\n", vaultPath)
			if !confirm("Continue?") {
				fmt.Println("Aborted")
				return nil
			}
		}

		alloc, err := blob.New(vaultPath, blob.Options{})
		if err != nil {
			return err
		}
		if err := alloc.Destroy(); err != nil {
			return fmt.Errorf("failed to destroy vault: %w", err)
		}

		// Salt and config carry no content but have no reason to survive.
		os.Remove(filepath.Join(vaultPath, saltFileName))
		os.Remove(configPath(vaultPath))

		fmt.Println("Vault destroyed")
		return nil
	},
}

// expandCmd appends one more random-filled region.
var expandCmd = &cobra.Command{
	Use:   "expand",
	Short: "Adds one more blob region to the vault",
	RunE: func(cmd *cobra.Command, args []string) error {
		alloc, key, err := openVault()
		if err != nil {
			return err
		}

		fmt.Println("Allocating blob region (this may take a moment)...")
		total, err := alloc.Expand(key)
		if err != nil {
			return fmt.Errorf("failed to expand vault: %w", err)
		}

		fmt.Printf("Vault capacity is now %d bytes\n", total)
		return nil
	},
}

// auditVerifyCmd walks the audit log HMAC chain.
var auditVerifyCmd = &cobra.Command{
	Use:   "audit-verify",
	Short: "Verifies the integrity of the audit log chain",
	RunE: func(cmd *cobra.Command, args []string) error {
		alloc, _, err := openVault()
		if err != nil {
			return err
		}

		result, err := alloc.AuditLogger().Verify()
		if err != nil {
			return fmt.Errorf("audit log verification failed: %w", err)
		}
		if !result.Valid {
			for _, msg := range result.Errors {
				fmt.Fprintln(os.Stderr, msg)
			}
			return fmt.Errorf("audit log chain is broken (%d record(s) checked)", result.RecordsVerified)
		}

		fmt.Printf("Audit log chain verified (%d record(s))\n", result.RecordsVerified)
		return nil
	},
}
