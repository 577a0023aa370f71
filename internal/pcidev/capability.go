package pcidev

// The capability linked-list walk below is the only correct way to find
// the PCI Express capability on a standard 256-byte config space; it is
// trimmed to the one capability this driver core actually consumes.
// Walking PCIe extended capabilities (offset 0x100+) to pull a Device
// Serial Number would need the 4KB extended config space, which
// ConfigSpace deliberately does not carry (see its doc comment), so only
// the standard capability list is reachable here.

// capIDPCIExpress is the standard PCI Capability ID for a PCI Express
// capability structure.
const capIDPCIExpress = 0x10

// statusCapabilitiesListBit marks bit 4 of the Status register (offset
// 0x06): "this device implements a capability list".
const statusCapabilitiesListBit = 1 << 4

// ReadU8 returns a single byte from config space, or 0 if out of range.
func (cs *ConfigSpace) ReadU8(offset int) uint8 {
	if offset < 0 || offset >= cs.size {
		return 0
	}
	return cs.data[offset]
}

// HasCapabilities reports whether the Status register's capability-list
// bit is set.
func (cs *ConfigSpace) HasCapabilities() bool {
	if cs.size < 0x08 {
		return false
	}
	status := uint16(cs.data[0x06]) | uint16(cs.data[0x07])<<8
	return status&statusCapabilitiesListBit != 0
}

// CapabilityPointer returns the offset of the first entry in the
// capability linked list (offset 0x34).
func (cs *ConfigSpace) CapabilityPointer() uint8 {
	return cs.ReadU8(0x34)
}

// LinkInfo is the subset of the PCI Express capability this driver core
// reports: the maximum link speed and width advertised in the Link
// Capabilities register (not the currently negotiated values from Link
// Status), used only for display
// (spec.md status/diagnostic surface), never for control-flow decisions.
type LinkInfo struct {
	Speed uint8 // 1=Gen1 (2.5 GT/s), 2=Gen2 (5.0 GT/s), 3=Gen3 (8.0 GT/s)
	Width uint8 // lanes: 1, 2, 4, 8, 16
}

// SpeedName returns a human-readable name for a PCIe link speed value.
func (l LinkInfo) SpeedName() string {
	switch l.Speed {
	case 1:
		return "Gen1 (2.5 GT/s)"
	case 2:
		return "Gen2 (5.0 GT/s)"
	case 3:
		return "Gen3 (8.0 GT/s)"
	default:
		return "unknown"
	}
}

// FindLinkInfo walks the standard capability list looking for the PCI
// Express capability and decodes its Link Capabilities register. The
// second return is false if the device has no capability list or no
// PCI Express capability (both legal: a non-PCIe device, or a config
// space sysfs only exposed in truncated form).
func FindLinkInfo(cs *ConfigSpace) (LinkInfo, bool) {
	if !cs.HasCapabilities() {
		return LinkInfo{}, false
	}

	visited := make(map[int]bool)
	ptr := int(cs.CapabilityPointer()) & 0xFC
	for ptr != 0 && ptr < ConfigSpaceLegacySize && !visited[ptr] {
		visited[ptr] = true

		capID := cs.ReadU8(ptr)
		nextPtr := int(cs.ReadU8(ptr+1)) & 0xFC

		if capID == capIDPCIExpress && ptr+16 <= cs.size {
			linkCap := uint32(cs.ReadU8(ptr+12)) | uint32(cs.ReadU8(ptr+13))<<8 |
				uint32(cs.ReadU8(ptr+14))<<16 | uint32(cs.ReadU8(ptr+15))<<24
			return LinkInfo{
				Speed: uint8(linkCap & 0x0F),
				Width: uint8((linkCap >> 4) & 0x3F),
			}, true
		}

		ptr = nextPtr
	}
	return LinkInfo{}, false
}
