package crorc

import (
	"testing"

	"github.com/AliceO2Group/readoutcard/internal/bar"
	"github.com/AliceO2Group/readoutcard/internal/dmamem"
	"github.com/AliceO2Group/readoutcard/internal/register"
	"github.com/AliceO2Group/readoutcard/internal/romio"
)

func newTestEngine(t *testing.T, readyFifoDepth int) (*Engine, *register.Space) {
	t.Helper()
	space := register.New(bar.CRORCBarSerial, make([]byte, 0x4000))
	cal, err := romio.Calibrate(space, 0x44)
	if err != nil {
		t.Fatalf("Calibrate: %v", err)
	}
	accessor := bar.NewCRORC(space, cal)

	identity := func(u uintptr) uint64 { return uint64(u) }
	mem, err := dmamem.New(1, 0, dmamem.PageSizeCRU*1024, dmamem.PageSizeCRU, identity, func() error { return nil })
	if err != nil {
		t.Fatalf("dmamem.New: %v", err)
	}

	return New(accessor, mem, 4096, readyFifoDepth, bar.ResetNothing, bar.LoopbackNone, true, false, nil), space
}

func TestStartDmaPrefillsFreeFifo(t *testing.T) {
	e, space := newTestEngine(t, 8)
	// Link status bit 0 set so CheckLink passes.
	if err := space.Write32(0x4c, 1); err != nil {
		t.Fatal(err)
	}

	if err := e.StartDma(); err != nil {
		t.Fatalf("StartDma: %v", err)
	}
	if !e.Running() {
		t.Fatal("engine should be running after StartDma")
	}
	if e.freeQ.Len() != 8 {
		t.Fatalf("freeQ.Len() = %d, want 8 (Ready-FIFO depth)", e.freeQ.Len())
	}
}

func TestPollArrivalsPromotesToReadyQueue(t *testing.T) {
	e, space := newTestEngine(t, 4)
	if err := space.Write32(0x4c, 1); err != nil {
		t.Fatal(err)
	}
	if err := e.StartDma(); err != nil {
		t.Fatalf("StartDma: %v", err)
	}

	// Mark ring entry 0 arrived.
	if err := space.Write32(readyFifoStatusOffsetForTest(0), 0xe0); err != nil {
		t.Fatal(err)
	}
	if err := space.Write32(readyFifoLengthOffsetForTest(0), 4096); err != nil {
		t.Fatal(err)
	}

	if err := e.PollArrivals(); err != nil {
		t.Fatalf("PollArrivals: %v", err)
	}
	if e.readyQ.Len() != 1 {
		t.Fatalf("readyQ.Len() = %d, want 1", e.readyQ.Len())
	}

	page, err := e.PopPage()
	if err != nil {
		t.Fatalf("PopPage: %v", err)
	}
	if page.Length != 4096 || !page.Arrived {
		t.Errorf("popped page = %+v, want arrived with length 4096", page)
	}
	// Popping recycles the ring slot back onto freeQ.
	if e.freeQ.Len() != 4 {
		t.Fatalf("freeQ.Len() after recycle = %d, want 4", e.freeQ.Len())
	}
}

func readyFifoStatusOffsetForTest(ringIndex int) int { return 0x2000 + ringIndex*0x8 }
func readyFifoLengthOffsetForTest(ringIndex int) int { return 0x2000 + ringIndex*0x8 + 4 }
