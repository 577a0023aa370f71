package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AliceO2Group/readoutcard/internal/dmamem"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Reclaim orphaned DMA buffer registrations left by crashed processes",
	Long: `Scans the DMA buffer registration directory and removes any entry
whose owning process is no longer alive. It never touches a registration
belonging to a live process (spec.md §5 "Shared-resource policy").`,
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := dmamem.CleanupOrphans()
		if err != nil {
			return fmt.Errorf("cleanup: %w", err)
		}
		fmt.Printf("reclaimed %d orphaned DMA buffer registration(s)\n", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
}
