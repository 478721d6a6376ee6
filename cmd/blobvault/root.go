package main

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/mizunoh/blobvault/pkg/blob"
	"github.com/mizunoh/blobvault/pkg/crypto"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const saltFileName = "vault.salt"

var (
	vaultPath string
	vaultKey  []byte
)

var rootCmd = &cobra.Command{
	Use:   "blobvault",
	Short: "blobvault is a local-first encrypted file vault",
	Long: `An encrypted file vault storing content inside pre-allocated,
random-filled blob regions. Without the passphrase the vault is
indistinguishable from random data.`,
	// PersistentPreRunE resolves the vault directory before every
	// subcommand. It does not touch the key: commands prompt only when
	// they actually need it.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if vaultPath != "" {
			return nil
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get user home directory: %w", err)
		}
		vaultPath = filepath.Join(home, ".blobvault")
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&vaultPath, "vault", "", "Vault directory (default: ~/.blobvault)")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(storeCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(rmCmd)
	rootCmd.AddCommand(destroyCmd)
	rootCmd.AddCommand(shareCmd)
	rootCmd.AddCommand(expandCmd)
	rootCmd.AddCommand(auditVerifyCmd)
}

func main() {
	defer func() {
		if vaultKey != nil {
			crypto.SecureWipe(vaultKey)
		}
	}()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// promptPassphrase reads a passphrase without echo.
func promptPassphrase(prompt string) ([]byte, error) {
	fmt.Print(prompt)
	pass, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return nil, fmt.Errorf("failed to read passphrase: %w", err)
	}
	return pass, nil
}

// deriveVaultKey prompts for the passphrase and derives the master key
// from the stored salt. The derived key is cached for the process.
func deriveVaultKey() ([]byte, error) {
	if vaultKey != nil {
		return vaultKey, nil
	}

	salt, err := os.ReadFile(filepath.Join(vaultPath, saltFileName))
	if err != nil {
		return nil, fmt.Errorf("failed to read vault salt (is the vault initialized?): %w", err)
	}

	pass, err := promptPassphrase("Enter vault passphrase: ")
	if err != nil {
		return nil, err
	}
	defer crypto.SecureWipe(pass)

	vaultKey = crypto.DeriveKey(pass, salt)
	return vaultKey, nil
}

// openVault opens the allocator with the configured options and wires the
// audit logger key.
func openVault() (*blob.Allocator, []byte, error) {
	key, err := deriveVaultKey()
	if err != nil {
		return nil, nil, err
	}

	cfg, err := loadConfig(vaultPath)
	if err != nil {
		return nil, nil, err
	}

	alloc, err := blob.New(vaultPath, blob.Options{
		RegionSize:    cfg.RegionSize,
		WipeChunkSize: int(cfg.WipeChunkSize),
	})
	if err != nil {
		return nil, nil, err
	}

	auditKey, err := crypto.DeriveSubkey(key, "audit")
	if err != nil {
		return nil, nil, err
	}
	if err := alloc.SetAuditKey(auditKey); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: audit logging unavailable: %v\n", err)
	}

	return alloc, key, nil
}

// confirm asks a yes/no question on stdin.
func confirm(prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	var answer string
	fmt.Scanln(&answer)
	return answer == "y" || answer == "Y" || answer == "yes"
}
