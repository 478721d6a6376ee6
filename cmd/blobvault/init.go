package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mizunoh/blobvault/pkg/blob"
	"github.com/mizunoh/blobvault/pkg/crypto"
	"github.com/mizunoh/blobvault/pkg/passcheck"

	"github.com/spf13/cobra"
)

var initRegionSize int64

func init() {
	initCmd.Flags().Int64Var(&initRegionSize, "region-size", blob.DefaultRegionSize,
		"Size of each pre-allocated blob region in bytes")
}

// initCmd initializes a new vault: salt, config, and the first
// random-filled blob region.
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initializes a new encrypted vault",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("Initializing vault at %s...\n", vaultPath)

		if _, err := os.Stat(filepath.Join(vaultPath, saltFileName)); err == nil {
			return fmt.Errorf("vault already initialized at %s", vaultPath)
		}
		if err := os.MkdirAll(vaultPath, blob.DirMode); err != nil {
			return fmt.Errorf("failed to create vault directory: %w", err)
		}

		pass1, err := promptPassphrase("Enter vault passphrase: ")
		if err != nil {
			return err
		}
		defer crypto.SecureWipe(pass1)

		pass2, err := promptPassphrase("Confirm vault passphrase: ")
		if err != nil {
			return err
		}
		defer crypto.SecureWipe(pass2)

		if string(pass1) != string(pass2) {
			return fmt.Errorf("passphrases do not match")
		}

		result := passcheck.Check(string(pass1))
		if !result.Valid {
			return fmt.Errorf("passphrase validation failed: %s", result.Warnings[0])
		}
		fmt.Printf("Passphrase strength: %s\n", result.Strength)
		for _, warning := range result.Warnings {
			fmt.Printf("Warning: %s\n", warning)
		}

		salt, err := crypto.RandomBytes(crypto.SaltLength)
		if err != nil {
			return fmt.Errorf("failed to generate salt: %w", err)
		}
		if err := os.WriteFile(filepath.Join(vaultPath, saltFileName), salt, blob.FileMode); err != nil {
			return fmt.Errorf("failed to write salt: %w", err)
		}

		cfg := defaultConfig()
		cfg.RegionSize = initRegionSize
		if err := saveConfig(vaultPath, cfg); err != nil {
			return err
		}

		vaultKey = crypto.DeriveKey(pass1, salt)

		alloc, key, err := openVault()
		if err != nil {
			return err
		}

		// Pre-allocate the first region so the on-disk footprint exists
		// from day one instead of appearing on first store.
		fmt.Println("Allocating initial blob region (this may take a moment)...")
		if _, err := alloc.Expand(key); err != nil {
			return fmt.Errorf("failed to allocate blob region: %w", err)
		}

		fmt.Printf("Vault initialized successfully at %s\n", vaultPath)
		return nil
	},
}
