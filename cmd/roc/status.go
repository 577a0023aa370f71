package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AliceO2Group/readoutcard/internal/bar"
	"github.com/AliceO2Group/readoutcard/internal/cardtype"
	"github.com/AliceO2Group/readoutcard/internal/color"
	"github.com/AliceO2Group/readoutcard/internal/pcidev"
	"github.com/AliceO2Group/readoutcard/internal/registry"
	"github.com/AliceO2Group/readoutcard/internal/romio"
)

var statusID string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report a card's identification and health registers",
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := resolveIdentity(statusID)
		if err != nil {
			return err
		}

		reg := registry.New()
		handle, err := reg.Open(id)
		if err != nil {
			return err
		}
		defer handle.Release()

		desc := handle.Descriptor()
		fmt.Printf("%s  %s  %04x:%04x\n", color.Bold(desc.Type.String()), desc.Identity.String(), desc.VendorID, desc.DeviceID)
		if desc.LinkSpeed != 0 {
			li := pcidev.LinkInfo{Speed: desc.LinkSpeed, Width: desc.LinkWidth}
			fmt.Printf("link:        %s x%d\n", li.SpeedName(), li.Width)
		}

		var barIndex int
		switch desc.Type {
		case cardtype.CRU:
			barIndex = bar.CRUBarSerial
		case cardtype.CRORC:
			barIndex = bar.CRORCBarSerial
		default:
			return fmt.Errorf("status is not supported for card type %s", desc.Type)
		}

		mapped, cleanup, err := openBar(statusID, barIndex)
		if err != nil {
			return err
		}
		defer cleanup()

		var acc bar.Accessor
		switch desc.Type {
		case cardtype.CRU:
			cal, err := romio.Calibrate(mapped.Space, bar.CRUOffsetTemp)
			if err != nil {
				return err
			}
			acc = bar.NewCRU(mapped.Space, cal)
		case cardtype.CRORC:
			cal, err := romio.Calibrate(mapped.Space, bar.CRORCOffsetTemp)
			if err != nil {
				return err
			}
			acc = bar.NewCRORC(mapped.Space, cal)
		}

		printAccessorStatus(acc)
		return nil
	},
}

// printAccessorStatus prints the common Accessor fields (serial,
// temperature, firmware info, card id), silently skipping any field
// the card does not currently report.
func printAccessorStatus(acc bar.Accessor) {
	if serial, ok, err := acc.Serial(); err == nil && ok {
		fmt.Printf("serial:      %d\n", serial)
	}
	if temp, ok, err := acc.Temperature(); err == nil && ok {
		fmt.Printf("temperature: %.1f C\n", temp)
	}
	if fw, ok, err := acc.FirmwareInfo(); err == nil && ok {
		fmt.Printf("firmware:    0x%08x\n", fw)
	}
	if cardID, ok, err := acc.CardID(); err == nil && ok {
		fmt.Printf("card id:     %s\n", cardID)
	}
}

func init() {
	bindIDFlag(statusCmd, &statusID)
	rootCmd.AddCommand(statusCmd)
}
