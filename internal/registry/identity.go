package registry

import (
	"fmt"

	"github.com/AliceO2Group/readoutcard/internal/cardtype"
	"github.com/AliceO2Group/readoutcard/internal/pcidev"
)

// Identity names a physical card without owning it (spec.md §3
// CardIdentity: "Immutable name of a physical card"). ParseIdentity sets
// exactly one of the serial+endpoint, BDF or Index forms, matching the
// three forms DeviceRegistry.Open accepts; descriptors from Enumerate
// carry every form that could be read for the card.
type Identity struct {
	Serial   uint32
	Endpoint int
	HasSE    bool

	BDF    pcidev.BDF
	HasBDF bool

	Index   int
	HasIdx  bool
	rawText string
}

// String renders whichever identity form was populated, for lock names
// and log fields.
func (id Identity) String() string {
	switch {
	case id.HasSE:
		return fmt.Sprintf("serial%d-ep%d", id.Serial, id.Endpoint)
	case id.HasBDF:
		return id.BDF.String()
	case id.HasIdx:
		return fmt.Sprintf("index%d", id.Index)
	default:
		return id.rawText
	}
}

// ParseIdentity resolves the --id CLI form (bdf|serial:endpoint|index)
// described in spec.md §6, without touching the filesystem; resolution
// against actually-enumerated cards happens in Open.
func ParseIdentity(s string) (Identity, error) {
	if bdf, err := pcidev.ParseBDF(s); err == nil {
		return Identity{BDF: bdf, HasBDF: true, rawText: s}, nil
	}

	var serial uint32
	var endpoint int
	if n, _ := fmt.Sscanf(s, "%d:%d", &serial, &endpoint); n == 2 {
		return Identity{Serial: serial, Endpoint: endpoint, HasSE: true, rawText: s}, nil
	}

	var idx int
	if n, _ := fmt.Sscanf(s, "%d", &idx); n == 1 {
		return Identity{Index: idx, HasIdx: true, rawText: s}, nil
	}

	return Identity{}, fmt.Errorf("unrecognized card id %q: expected BDF, serial:endpoint, or index", s)
}

// Descriptor is what Enumerate returns for each discovered card: spec.md
// §3 CardDescriptor.
type Descriptor struct {
	Type      cardtype.CardType
	Identity  Identity
	VendorID  uint16
	DeviceID  uint16
	NUMANode  int
	LinkSpeed uint8 // 0 if unknown
	LinkWidth uint8 // 0 if unknown
}
