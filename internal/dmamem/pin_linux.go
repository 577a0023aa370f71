//go:build linux

package dmamem

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// PinUserBuffer pins buf in physical memory with mlock(2) so the card's
// DMA engine can safely address it, and returns an unpin closure plus a
// translate function. Without a kernel-side IOMMU/PDA mapping facility
// (not available in this environment, see DESIGN.md), the "bus address"
// returned by translate is the page's physical-offset-shaped placeholder:
// callers on real hardware obtain true bus addresses from the pinning
// driver instead. This keeps the Memory/Segment/Translate contract the
// genuine hardware path would also present.
func PinUserBuffer(buf []byte) (translate func(uintptr) uint64, unpin func() error, err error) {
	if len(buf) == 0 {
		return nil, nil, fmt.Errorf("cannot pin empty buffer")
	}
	if err := unix.Mlock(buf); err != nil {
		return nil, nil, fmt.Errorf("mlock DMA buffer: %w", err)
	}

	base := uintptr(unsafe.Pointer(&buf[0]))
	translate = func(userAddr uintptr) uint64 {
		return uint64(userAddr - base)
	}
	unpin = func() error {
		return unix.Munlock(buf)
	}
	return translate, unpin, nil
}

// AllocHugePage allocates a zeroed anonymous mapping of the given size.
// It does not request MAP_HUGETLB, so the mapping uses ordinary pages.
// The dummy backend (internal/factory/dummy.go) does not call it; it
// pins the caller-supplied DmaBuffer through PinUserBuffer instead.
func AllocHugePage(size int) ([]byte, error) {
	flags := unix.MAP_PRIVATE | unix.MAP_ANONYMOUS
	buf, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, flags)
	if err != nil {
		return nil, fmt.Errorf("anonymous mmap for dummy DMA buffer: %w", err)
	}
	return buf, nil
}
