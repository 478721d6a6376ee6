package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var listLong bool

func init() {
	listCmd.Flags().BoolVarP(&listLong, "long", "l", false, "Show file ids, sizes, and timestamps")
}

// listCmd lists stored files from their header previews.
var listCmd = &cobra.Command{
	Use:   "list [pattern]",
	Short: "Lists files stored in the vault",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		alloc, key, err := openVault()
		if err != nil {
			return err
		}

		patterns := []string{"*"}
		if len(args) == 1 {
			patterns = args
		}

		infos, err := resolveMany(alloc, key, patterns)
		if err != nil {
			return err
		}
		if len(infos) == 0 {
			fmt.Println("No files stored")
			return nil
		}

		for _, info := range infos {
			if listLong {
				fmt.Printf("%s  %10d  %s  %s  %s\n",
					info.Entry.FileID,
					info.Header.OriginalSize,
					info.Header.CreatedAt.Format(time.RFC3339),
					info.Header.MimeType,
					info.Header.OriginalFilename)
			} else {
				fmt.Println(info.Header.OriginalFilename)
			}
		}
		return nil
	},
}
