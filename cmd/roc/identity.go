package main

import (
	"github.com/spf13/cobra"

	"github.com/AliceO2Group/readoutcard/internal/registry"
)

// bindIDFlag registers the --id flag shared by every subcommand that
// addresses one card, mirroring spec.md §6's CLI contract ("each uses
// the ChannelFactory with a cardId derivable from --id").
func bindIDFlag(cmd *cobra.Command, dest *string) {
	cmd.Flags().StringVar(dest, "id", "", "card id: BDF (0000:03:00.0), serial:endpoint, or enumeration index")
	cmd.MarkFlagRequired("id")
}

func resolveIdentity(raw string) (registry.Identity, error) {
	return registry.ParseIdentity(raw)
}
