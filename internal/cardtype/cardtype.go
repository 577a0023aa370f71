// Package cardtype identifies readout card families by PCI vendor/device
// ID and name, the way internal/pci/pcidb.go looks up vendor/device names
// and internal/board.Find resolves a board name with a helpful error
// listing the alternatives.
package cardtype

import (
	"fmt"
	"strings"
)

// CardType is a readout card family.
type CardType string

const (
	// CRU is the Common Readout Unit family.
	CRU CardType = "CRU"
	// CRORC is the legacy C-RORC family.
	CRORC CardType = "CRORC"
	// Dummy is the non-hardware testing backend (spec.md §9 Open
	// Questions: "retained here as a testing collaborator but is not
	// part of the production contract").
	Dummy CardType = "Dummy"
)

// String implements fmt.Stringer.
func (t CardType) String() string { return string(t) }

// idEntry binds a PCI (vendor, device) pair to a card family.
type idEntry struct {
	vendor, device uint16
	cardType       CardType
}

// table is the identification policy from spec.md §4.2: "card type is
// selected by (vendor_id, device_id) pair". CERN's registered PCI vendor
// ID (0x10dc) is used for both real families; exact device IDs are
// firmware-variant specific and out of this spec's scope, so placeholder
// device IDs are used for the families this driver recognizes.
var table = []idEntry{
	{vendor: 0x10dc, device: 0x0001, cardType: CRORC},
	{vendor: 0x10dc, device: 0x0002, cardType: CRU},
}

// Identify maps a (vendor, device) PCI ID pair to a CardType. It returns
// ok=false for anything not in the table — such a device is simply not a
// readout card and is excluded from DeviceRegistry.Enumerate.
func Identify(vendor, device uint16) (CardType, bool) {
	for _, e := range table {
		if e.vendor == vendor && e.device == device {
			return e.cardType, true
		}
	}
	return "", false
}

// Parse resolves a case-insensitive card type name, in the spirit of
// internal/board.Find's case-insensitive lookup with a helpful error.
func Parse(name string) (CardType, error) {
	lower := strings.ToLower(strings.TrimSpace(name))
	for _, t := range []CardType{CRU, CRORC, Dummy} {
		if strings.ToLower(string(t)) == lower {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown card type %q, available: CRU, CRORC, Dummy", name)
}
