package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var (
	regReadID     string
	regReadBar    int
	regReadOffset string
)

var regReadCmd = &cobra.Command{
	Use:   "reg-read",
	Short: "Read one 32-bit register",
	RunE: func(cmd *cobra.Command, args []string) error {
		offset, err := strconv.ParseInt(regReadOffset, 0, 64)
		if err != nil {
			return fmt.Errorf("invalid --offset %q: %w", regReadOffset, err)
		}

		mapped, cleanup, err := openBar(regReadID, regReadBar)
		if err != nil {
			return err
		}
		defer cleanup()

		v, err := mapped.Read32(int(offset))
		if err != nil {
			return err
		}
		fmt.Printf("0x%08x\n", v)
		return nil
	},
}

func init() {
	bindIDFlag(regReadCmd, &regReadID)
	regReadCmd.Flags().IntVar(&regReadBar, "bar", 0, "BAR index")
	regReadCmd.Flags().StringVar(&regReadOffset, "offset", "0x0", "byte offset (hex with 0x prefix, or decimal)")
	rootCmd.AddCommand(regReadCmd)
}
