// Package bar implements the two card-family BarAccessors (spec.md §4.5):
// CRU and CRORC, each converting semantic intents into register
// sequences over an internal/register.Space.
package bar

// Register offsets shared between internal/registry (device
// identification at enumeration time) and this package (full bring-up).
// spec.md §1 explicitly scopes out "the specific bit layouts of every
// status/control register of every firmware variant"; these are the
// minimal layout facts fixed behaviorally by §4.2 (identification
// policy) and §4.5 (data generator encoding), not a firmware register
// map.
const (
	// CRU: serial is read from BAR 2, endpoint number from BAR 0.
	CRUBarSerial        = 2
	CRUBarEndpoint      = 0
	CRUOffsetSerial     = 0x20
	CRUOffsetEndpoint   = 0x24
	CRUOffsetTemp       = 0x28
	CRUOffsetFwHi       = 0x2c
	CRUOffsetFwLo       = 0x30
	CRUOffsetDataGenCtl = 0x40
	CRUOffsetLinkMask   = 0x44
	CRUOffsetCardReset  = 0x48

	// CRORC: serial lives in BAR 0 flash, endpoint number also BAR 0.
	CRORCBarSerial      = 0
	CRORCBarEndpoint    = 0
	CRORCOffsetSerial   = 0x10
	CRORCOffsetEndpoint = 0x14
	CRORCOffsetTemp     = 0x18
	CRORCOffsetFwHi     = 0x1c
	CRORCOffsetFwLo     = 0x20

	// InvalidCRUSerial is the hardware-fault sentinel from spec.md §4.2:
	// "If a CRU reports serial 0xFFFFFFFF, it is treated as hardware
	// fault (InvalidSerial)."
	InvalidCRUSerial uint32 = 0xFFFFFFFF
)
