// Package register implements RegisterSpace: a typed, bounds-checked view
// over one PCI Base Address Region (BAR), per spec.md §4.1. It has no
// knowledge of any specific card family.
package register

import (
	"github.com/AliceO2Group/readoutcard/internal/rocerr"
)

// Space is a bounds-checked 32-bit register window over one BAR.
//
// It holds a raw byte window (backed by a real mmap of a PCI sysfs
// resourceN file, or an in-memory buffer in tests) and
// never caches a read or coalesces a write: every call issues one access
// to the window, matching spec.md §4.1 ("No retries, no caching; every
// call issues an MMIO access").
type Space struct {
	mem      []byte
	barIndex int
}

// New wraps mem (a byte slice addressing one BAR, however it was mapped)
// as a RegisterSpace.
func New(barIndex int, mem []byte) *Space {
	return &Space{mem: mem, barIndex: barIndex}
}

// Index returns the BAR index this Space was opened against.
func (s *Space) Index() int { return s.barIndex }

// Size returns the BAR's size in bytes.
func (s *Space) Size() int { return len(s.mem) }

func (s *Space) checkOffset(byteOffset int, width int) error {
	if byteOffset%4 != 0 {
		return rocerr.New(rocerr.InvalidRegisterOffset,
			"register offset must be 4-byte aligned",
			rocerr.Fields{"bar": s.barIndex, "offset": byteOffset})
	}
	if byteOffset < 0 || byteOffset+width > len(s.mem) {
		return rocerr.New(rocerr.BarOutOfRange,
			"register offset out of range",
			rocerr.Fields{"bar": s.barIndex, "offset": byteOffset, "barSize": len(s.mem)})
	}
	return nil
}

// Read32 reads one little-endian 32-bit register.
func (s *Space) Read32(byteOffset int) (uint32, error) {
	if err := s.checkOffset(byteOffset, 4); err != nil {
		return 0, err
	}
	return le32(s.mem[byteOffset : byteOffset+4]), nil
}

// Write32 writes one little-endian 32-bit register.
func (s *Space) Write32(byteOffset int, value uint32) error {
	if err := s.checkOffset(byteOffset, 4); err != nil {
		return err
	}
	putLE32(s.mem[byteOffset:byteOffset+4], value)
	return nil
}

// Modify performs a read-modify-write of the bit range [bitLsb, bitLsb+width)
// within the 32-bit register at byteOffset. Requires bitLsb+width <= 32 and
// value to fit in width bits.
func (s *Space) Modify(byteOffset int, bitLsb, width uint, value uint32) error {
	if bitLsb+width > 32 {
		return rocerr.New(rocerr.InvalidRegisterOffset,
			"bit range exceeds 32-bit register",
			rocerr.Fields{"bar": s.barIndex, "offset": byteOffset, "bitLsb": bitLsb, "width": width})
	}
	mask := uint32(1)<<width - 1
	if value&^mask != 0 {
		return rocerr.New(rocerr.InvalidRegisterOffset,
			"value does not fit in bit width",
			rocerr.Fields{"bar": s.barIndex, "offset": byteOffset, "width": width, "value": value})
	}

	cur, err := s.Read32(byteOffset)
	if err != nil {
		return err
	}
	cleared := cur &^ (mask << bitLsb)
	next := cleared | (value << bitLsb)
	return s.Write32(byteOffset, next)
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func putLE32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}
