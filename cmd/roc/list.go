package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/AliceO2Group/readoutcard/internal/pcidev"
	"github.com/AliceO2Group/readoutcard/internal/registry"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List readout cards visible on the host",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg := registry.New()
		descs, err := reg.Enumerate()
		if err != nil {
			return fmt.Errorf("enumerate cards: %w", err)
		}
		if len(descs) == 0 {
			fmt.Println("No readout cards found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TYPE\tIDENTITY\tVENDOR:DEVICE\tNUMA\tLINK")
		for _, d := range descs {
			link := "?"
			if d.LinkSpeed != 0 {
				link = fmt.Sprintf("%s x%d", pcidev.LinkInfo{Speed: d.LinkSpeed, Width: d.LinkWidth}.SpeedName(), d.LinkWidth)
			}
			fmt.Fprintf(w, "%s\t%s\t%04x:%04x\t%d\t%s\n", d.Type, d.Identity.String(), d.VendorID, d.DeviceID, d.NUMANode, link)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}
