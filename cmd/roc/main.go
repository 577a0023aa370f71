package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/AliceO2Group/readoutcard/internal/color"
)

var noColor bool

var rootCmd = &cobra.Command{
	Use:   "roc",
	Short: "ALICE Readout Card driver core CLI",
	Long: `roc drives CRU and CRORC readout cards directly through the
driver core: enumerating cards, reading and writing BAR registers,
reporting channel status, and reclaiming orphaned DMA buffer
registrations left behind by crashed processes.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColor {
			color.Disable()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
