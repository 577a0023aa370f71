// Package superpage implements the CRU-path and CRORC-path transfer
// unit value types (spec.md §3): Superpage, Page, and Link.
package superpage

import (
	"github.com/AliceO2Group/readoutcard/internal/rocerr"
)

// MinSize is the minimum Superpage size: 32 KiB, the firmware
// descriptor granularity (spec.md §4.6).
const MinSize = 32 * 1024

// Superpage is one client-provided physically contiguous region to be
// filled with many card-pushed pages (spec.md §3).
type Superpage struct {
	Offset   uint64 // offset into the channel's DmaMemory
	Size     uint64 // must be a multiple of 32 KiB
	Ready    bool
	Received uint64
	Tag      any // optional user tag, opaque to the driver
}

// Validate checks a Superpage against spec.md §4.6's pushSuperpage
// preconditions: "InvalidSuperpage if size is zero, not a multiple of
// 32 KiB, offset not 4-byte aligned, or region exceeds buffer."
func (s Superpage) Validate(bufferSize uint64) error {
	if s.Size == 0 || s.Size%MinSize != 0 {
		return rocerr.New(rocerr.InvalidSuperpage,
			"superpage size must be a nonzero multiple of 32 KiB",
			rocerr.Fields{"size": s.Size})
	}
	if s.Offset%4 != 0 {
		return rocerr.New(rocerr.InvalidSuperpage,
			"superpage offset must be 4-byte aligned",
			rocerr.Fields{"offset": s.Offset})
	}
	if s.Offset+s.Size > bufferSize {
		return rocerr.New(rocerr.InvalidSuperpage,
			"superpage region exceeds DMA buffer",
			rocerr.Fields{"offset": s.Offset, "size": s.Size, "bufferSize": bufferSize})
	}
	return nil
}

// MarkComplete sets received=size and ready=true (spec.md §3: "no
// partial-fill semantics are exposed").
func (s *Superpage) MarkComplete() {
	s.Received = s.Size
	s.Ready = true
}

// Page is one fixed-size CRORC Ready-FIFO slot (spec.md §3).
type Page struct {
	RingIndex int
	BusAddr   uint64
	Size      int
	Arrived   bool
	Length    uint32
}

// Link is one logical fibre-optic endpoint on a CRU card (spec.md §3).
// Its TransferQueue is owned separately (internal/queue) since queue
// depth/eviction logic is shared between CRU links and the CRORC
// channel-wide queue.
type Link struct {
	ID            int
	PushedCounter uint32
}
