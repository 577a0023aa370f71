package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var (
	regWriteID     string
	regWriteBar    int
	regWriteOffset string
	regWriteValue  string
)

var regWriteCmd = &cobra.Command{
	Use:   "reg-write",
	Short: "Write one 32-bit register",
	RunE: func(cmd *cobra.Command, args []string) error {
		offset, err := strconv.ParseInt(regWriteOffset, 0, 64)
		if err != nil {
			return fmt.Errorf("invalid --offset %q: %w", regWriteOffset, err)
		}
		value, err := strconv.ParseUint(regWriteValue, 0, 32)
		if err != nil {
			return fmt.Errorf("invalid --value %q: %w", regWriteValue, err)
		}

		mapped, cleanup, err := openBar(regWriteID, regWriteBar)
		if err != nil {
			return err
		}
		defer cleanup()

		if err := mapped.Write32(int(offset), uint32(value)); err != nil {
			return err
		}
		fmt.Printf("wrote 0x%08x to offset 0x%x\n", value, offset)
		return nil
	},
}

func init() {
	bindIDFlag(regWriteCmd, &regWriteID)
	regWriteCmd.Flags().IntVar(&regWriteBar, "bar", 0, "BAR index")
	regWriteCmd.Flags().StringVar(&regWriteOffset, "offset", "0x0", "byte offset")
	regWriteCmd.Flags().StringVar(&regWriteValue, "value", "0x0", "32-bit value to write")
	rootCmd.AddCommand(regWriteCmd)
}
