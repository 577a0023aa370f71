package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/AliceO2Group/readoutcard/internal/util"
)

var (
	regReadRangeID     string
	regReadRangeBar    int
	regReadRangeOffset string
	regReadRangeCount  int
)

var regReadRangeCmd = &cobra.Command{
	Use:   "reg-read-range",
	Short: "Read a range of consecutive 32-bit registers",
	RunE: func(cmd *cobra.Command, args []string) error {
		offset, err := strconv.ParseInt(regReadRangeOffset, 0, 64)
		if err != nil {
			return fmt.Errorf("invalid --offset %q: %w", regReadRangeOffset, err)
		}
		if regReadRangeCount <= 0 {
			return fmt.Errorf("--count must be positive")
		}

		mapped, cleanup, err := openBar(regReadRangeID, regReadRangeBar)
		if err != nil {
			return err
		}
		defer cleanup()

		for i := 0; i < regReadRangeCount; i++ {
			regOffset := int(offset) + i*4
			v, err := mapped.Read32(regOffset)
			if err != nil {
				return fmt.Errorf("read offset 0x%x: %w", regOffset, err)
			}
			fmt.Printf("0x%06x: %s\n", regOffset, util.BytesToHex(util.U32ToLEBytes(v)))
		}
		return nil
	},
}

func init() {
	bindIDFlag(regReadRangeCmd, &regReadRangeID)
	regReadRangeCmd.Flags().IntVar(&regReadRangeBar, "bar", 0, "BAR index")
	regReadRangeCmd.Flags().StringVar(&regReadRangeOffset, "offset", "0x0", "starting byte offset")
	regReadRangeCmd.Flags().IntVar(&regReadRangeCount, "count", 1, "number of consecutive 32-bit registers to read")
	rootCmd.AddCommand(regReadRangeCmd)
}
