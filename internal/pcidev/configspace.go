package pcidev

import "encoding/binary"

// ConfigSpaceLegacySize is the legacy PCI config space size (256 bytes).
const ConfigSpaceLegacySize = 256

// ConfigSpace is a raw PCI configuration space, trimmed to the legacy
// 256-byte region: identification fields, the BAR registers, and the
// standard capability list, per spec.md §4.2 ("card type is selected by
// (vendor_id, device_id) pair"). It does not carry the 4KB extended
// config space (PCIe extended capabilities), which this driver core has
// no use for.
type ConfigSpace struct {
	data [ConfigSpaceLegacySize]byte
	size int
}

// NewConfigSpaceFromBytes builds a ConfigSpace from raw sysfs "config"
// bytes.
func NewConfigSpaceFromBytes(b []byte) *ConfigSpace {
	cs := &ConfigSpace{size: len(b)}
	copy(cs.data[:], b)
	if cs.size > ConfigSpaceLegacySize {
		cs.size = ConfigSpaceLegacySize
	}
	return cs
}

// VendorID returns the Vendor ID (offset 0x00).
func (cs *ConfigSpace) VendorID() uint16 { return binary.LittleEndian.Uint16(cs.data[0x00:0x02]) }

// DeviceID returns the Device ID (offset 0x02).
func (cs *ConfigSpace) DeviceID() uint16 { return binary.LittleEndian.Uint16(cs.data[0x02:0x04]) }

// BAR returns the raw Base Address Register value at the given index (0-5).
func (cs *ConfigSpace) BAR(index int) uint32 {
	if index < 0 || index > 5 {
		return 0
	}
	offset := 0x10 + index*4
	return binary.LittleEndian.Uint32(cs.data[offset : offset+4])
}
