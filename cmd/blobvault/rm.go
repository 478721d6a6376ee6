package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var rmForce bool

func init() {
	rmCmd.Flags().BoolVarP(&rmForce, "force", "f", false, "Skip confirmation prompt")
}

// rmCmd deletes files: the stored ranges are overwritten with random
// bytes before the index entries become tombstones.
var rmCmd = &cobra.Command{
	Use:   "rm [pattern]...",
	Short: "Securely deletes files from the vault",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		alloc, key, err := openVault()
		if err != nil {
			return err
		}

		infos, err := resolveMany(alloc, key, args)
		if err != nil {
			return err
		}
		if len(infos) == 0 {
			fmt.Println("No matching files")
			return nil
		}

		if !rmForce {
			for _, info := range infos {
				fmt.Println(info.Header.OriginalFilename)
			}
			if !confirm(fmt.Sprintf("Delete %d file(s)?", len(infos))) {
				fmt.Println("Aborted")
				return nil
			}
		}

		for _, info := range infos {
			if err := alloc.Delete(info.Entry.FileID, key); err != nil {
				return fmt.Errorf("failed to delete '%s': %w", info.Header.OriginalFilename, err)
			}
			fmt.Printf("Deleted '%s'\n", info.Header.OriginalFilename)
		}
		return nil
	},
}
