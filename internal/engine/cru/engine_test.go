package cru

import (
	"testing"

	"github.com/AliceO2Group/readoutcard/internal/bar"
	"github.com/AliceO2Group/readoutcard/internal/dmamem"
	"github.com/AliceO2Group/readoutcard/internal/register"
	"github.com/AliceO2Group/readoutcard/internal/rocerr"
	"github.com/AliceO2Group/readoutcard/internal/romio"
	"github.com/AliceO2Group/readoutcard/internal/superpage"
)

// linkSuperpageCounterOffset mirrors bar.CRU's internal doorbell-window
// layout (see internal/bar/cru.go) so tests can simulate firmware
// advancing a link's completion counter without a real card.
func linkSuperpageCounterOffset(link int) int { return 0x1010 + link*0x20 }

func newTestEngine(t *testing.T, linkIDs []int, linkCap, readyCap int) (*Engine, *register.Space) {
	t.Helper()
	space := register.New(bar.CRUBarSerial, make([]byte, 0x4000))
	accessor := bar.NewCRU(space, romio.Calibration{})

	identity := func(u uintptr) uint64 { return uint64(u) }
	mem, err := dmamem.New(1, 0, dmamem.PageSizeCRU*1024, dmamem.PageSizeCRU, identity, func() error { return nil })
	if err != nil {
		t.Fatalf("dmamem.New: %v", err)
	}

	return New(accessor, mem, linkIDs, linkCap, readyCap, 0, bar.PatternIncremental, 256, false, nil), space
}

func TestPushSuperpageSelectsLeastLoadedLink(t *testing.T) {
	e, _ := newTestEngine(t, []int{0, 1}, 4, 16)

	sp := superpage.Superpage{Offset: 0, Size: superpage.MinSize}
	if err := e.PushSuperpage(sp); err != nil {
		t.Fatalf("PushSuperpage: %v", err)
	}
	sp2 := superpage.Superpage{Offset: superpage.MinSize, Size: superpage.MinSize}
	if err := e.PushSuperpage(sp2); err != nil {
		t.Fatalf("PushSuperpage 2: %v", err)
	}

	if e.links[0].transferQ.Len() != 1 || e.links[1].transferQ.Len() != 1 {
		t.Errorf("expected one outstanding per link, got %d/%d", e.links[0].transferQ.Len(), e.links[1].transferQ.Len())
	}
}

func TestPushSuperpageRejectsInvalidSize(t *testing.T) {
	e, _ := newTestEngine(t, []int{0}, 4, 16)
	err := e.PushSuperpage(superpage.Superpage{Offset: 0, Size: 100})
	if !rocerr.HasKind(err, rocerr.InvalidSuperpage) {
		t.Fatalf("err = %v, want InvalidSuperpage", err)
	}
}

func TestFillSuperpagesPromotesCompletions(t *testing.T) {
	e, space := newTestEngine(t, []int{0}, 4, 16)

	sp := superpage.Superpage{Offset: 0, Size: superpage.MinSize}
	if err := e.PushSuperpage(sp); err != nil {
		t.Fatalf("PushSuperpage: %v", err)
	}

	// First fill just establishes the baseline counter.
	if err := e.FillSuperpages(); err != nil {
		t.Fatalf("FillSuperpages (baseline): %v", err)
	}
	if e.GetReadyQueueSize() != 0 {
		t.Fatalf("ready queue should still be empty after baseline fill")
	}

	// Simulate firmware completing the one outstanding superpage.
	if err := space.Write32(linkSuperpageCounterOffset(0), 1); err != nil {
		t.Fatal(err)
	}

	if err := e.FillSuperpages(); err != nil {
		t.Fatalf("FillSuperpages: %v", err)
	}
	if e.GetReadyQueueSize() != 1 {
		t.Fatalf("GetReadyQueueSize() = %d, want 1", e.GetReadyQueueSize())
	}
	got, err := e.PopSuperpage()
	if err != nil {
		t.Fatalf("PopSuperpage: %v", err)
	}
	if !got.Ready || got.Received != got.Size {
		t.Errorf("popped superpage not marked complete: %+v", got)
	}
}

func TestStopDmaDrainsOutstanding(t *testing.T) {
	e, _ := newTestEngine(t, []int{0}, 4, 16)
	if err := e.PushSuperpage(superpage.Superpage{Offset: 0, Size: superpage.MinSize}); err != nil {
		t.Fatal(err)
	}
	if err := e.StopDma(); err != nil {
		t.Fatalf("StopDma: %v", err)
	}
	if e.GetReadyQueueSize() != 1 {
		t.Fatalf("GetReadyQueueSize() = %d, want 1 after drain", e.GetReadyQueueSize())
	}
}

func TestFillSuperpagesDetectsOvercommit(t *testing.T) {
	e, space := newTestEngine(t, []int{0}, 4, 16)
	if err := e.FillSuperpages(); err != nil { // establish baseline
		t.Fatal(err)
	}
	if err := space.Write32(linkSuperpageCounterOffset(0), 5); err != nil {
		t.Fatal(err)
	}
	err := e.FillSuperpages()
	if !rocerr.HasKind(err, rocerr.FirmwareOvercommit) {
		t.Fatalf("err = %v, want FirmwareOvercommit", err)
	}
}
