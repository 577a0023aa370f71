// Package dmamem implements DmaMemory (spec.md §4.3): binding a
// caller-supplied host memory region to a pinned, DMA-addressable
// mapping, and translating user offsets to bus addresses via a sorted
// segment table.
package dmamem

import (
	"sort"

	"github.com/AliceO2Group/readoutcard/internal/rocerr"
)

// PageSizeCRU is the DMA page size on CRU (spec.md §4.3): 8 KiB.
const PageSizeCRU = 8 * 1024

// HugePageSize is the practical granularity DMA buffers are registered
// at, matching spec.md §4.3 ("multiples of 2 MiB in practice, matching
// huge pages").
const HugePageSize = 2 * 1024 * 1024

// Segment is one entry of the scatter-gather list: a contiguous run of
// user memory mapped to a contiguous run of bus-addressable memory.
// Kept as a flat, sorted slice searched by binary search rather than a
// linked list, per spec.md §9 design note.
type Segment struct {
	UserAddr uintptr
	BusAddr  uint64
	Length   uint64
}

// Memory is one channel's pinned DMA buffer registration.
type Memory struct {
	id       uint64
	userBase uintptr
	size     uint64
	pageSize uint64
	segments []Segment

	unpin func() error // platform pin/unpin hook, nil once deregistered
}

// New pins the region [userBase, userBase+size) for DMA, splitting it into
// pageSize-sized segments translated to bus addresses via translate.
// size must be a positive multiple of pageSize.
//
// translate maps a segment's user address to its bus address; on real
// hardware this comes from the kernel pinning facility (PDA/VFIO IOMMU
// map), simulated here for the in-process dummy backend by an
// identity-like offset function (see internal/factory/dummy.go).
func New(id uint64, userBase uintptr, size uint64, pageSize uint64, translate func(uintptr) uint64, unpin func() error) (*Memory, error) {
	if pageSize != 0 && size < pageSize {
		return nil, rocerr.New(rocerr.BufferTooSmall,
			"DMA buffer smaller than one page", rocerr.Fields{"size": size, "pageSize": pageSize})
	}
	if pageSize == 0 || size%pageSize != 0 {
		return nil, rocerr.New(rocerr.BufferUnaligned,
			"DMA buffer size must be a positive multiple of the page size",
			rocerr.Fields{"size": size, "pageSize": pageSize})
	}

	nSegments := size / pageSize
	segments := make([]Segment, 0, nSegments)
	for i := uint64(0); i < nSegments; i++ {
		userAddr := userBase + uintptr(i*pageSize)
		segments = append(segments, Segment{
			UserAddr: userAddr,
			BusAddr:  translate(userAddr),
			Length:   pageSize,
		})
	}

	return &Memory{
		id:       id,
		userBase: userBase,
		size:     size,
		pageSize: pageSize,
		segments: segments,
		unpin:    unpin,
	}, nil
}

// ID returns the unique registration id used for orphan cleanup (spec.md
// §4.3, §6).
func (m *Memory) ID() uint64 { return m.id }

// Size returns the total registered size in bytes.
func (m *Memory) Size() uint64 { return m.size }

// Segments returns a read-only view of the scatter-gather list, used for
// firmware FIFO setup.
func (m *Memory) Segments() []Segment {
	out := make([]Segment, len(m.segments))
	copy(out, m.segments)
	return out
}

// Translate returns the bus address corresponding to userBase+offset, by
// binary-searching the segment table on offset.
func (m *Memory) Translate(offset uint64) (uint64, error) {
	if offset >= m.size {
		return 0, rocerr.New(rocerr.OffsetOutOfRange, "offset beyond DMA buffer",
			rocerr.Fields{"offset": offset, "size": m.size})
	}

	segIdx := offset / m.pageSize
	withinSeg := offset % m.pageSize
	// segIdx is exact because segments are fixed-size and contiguous;
	// sort.Search is used anyway so the lookup generalizes if a future
	// caller builds a Memory from variable-length segments.
	i := sort.Search(len(m.segments), func(i int) bool {
		return uint64(i)*m.pageSize+m.pageSize > offset
	})
	if i >= len(m.segments) || i != int(segIdx) {
		return 0, rocerr.New(rocerr.OffsetOutOfRange, "offset not covered by any segment",
			rocerr.Fields{"offset": offset})
	}
	return m.segments[i].BusAddr + withinSeg, nil
}

// Deregister unpins the buffer. Per spec.md §4.3: "if deregistration
// fails during teardown it is logged fatally because the card may still
// be writing to memory the host will reuse" — the caller (Channel close
// path) is responsible for treating a non-nil return as
// rocerr.BufferDeregistrationFailed and logging it fatally; this function
// itself just surfaces the underlying failure.
func (m *Memory) Deregister() error {
	if m.unpin == nil {
		return nil
	}
	unpin := m.unpin
	m.unpin = nil
	if err := unpin(); err != nil {
		return rocerr.Wrap(rocerr.BufferDeregistrationFailed, "failed to unpin DMA buffer", err,
			rocerr.Fields{"id": m.id})
	}
	return nil
}
