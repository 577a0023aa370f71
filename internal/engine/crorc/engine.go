// Package crorc implements the page/ready-FIFO TransferEngine for the
// legacy C-RORC family (spec.md §4.6bis).
package crorc

import (
	"github.com/sirupsen/logrus"

	"github.com/AliceO2Group/readoutcard/internal/bar"
	"github.com/AliceO2Group/readoutcard/internal/dmamem"
	"github.com/AliceO2Group/readoutcard/internal/queue"
	"github.com/AliceO2Group/readoutcard/internal/rocerr"
	"github.com/AliceO2Group/readoutcard/internal/superpage"
)

// Engine is the CRORC fixed-size-page engine: pages are recycled
// through a free-FIFO push / Ready-FIFO poll cycle instead of the CRU's
// superpage descriptor model.
type Engine struct {
	accessor *bar.CRORC
	mem      *dmamem.Memory
	log      *logrus.Entry

	pageSize int
	freeQ    *queue.Ring[superpage.Page] // pages pushed to firmware, awaiting arrival
	readyQ   *queue.Ring[superpage.Page]

	nextOffset uint64 // next free byte offset in mem to hand out a page from
	running    bool

	level     bar.ResetLevel
	loopback  bar.Loopback
	noRdyRx   bool
	isGenMode bool
}

// New builds a CRORC engine with the given fixed page size and
// Ready-FIFO depth (spec.md §4.6bis: "fixed depth 128 entries"). level
// is the reset level StartDma applies on bring-up, captured here
// (rather than taken as a StartDma argument) so StartDma takes no
// arguments and satisfies engine.Engine.
func New(accessor *bar.CRORC, mem *dmamem.Memory, pageSize, readyFifoDepth int, level bar.ResetLevel, lb bar.Loopback, noRdyRx, genMode bool, log *logrus.Entry) *Engine {
	return &Engine{
		accessor:  accessor,
		mem:       mem,
		log:       log,
		pageSize:  pageSize,
		freeQ:     queue.NewRing[superpage.Page](readyFifoDepth),
		readyQ:    queue.NewRing[superpage.Page](readyFifoDepth),
		level:     level,
		loopback:  lb,
		noRdyRx:   noRdyRx,
		isGenMode: genMode,
	}
}

// Running reports whether StartDma has been called without a matching
// StopDma.
func (e *Engine) Running() bool { return e.running }

// pushNextFreePage allocates the next page-sized slot from mem and
// pushes it to the card's free-FIFO at ringIndex.
func (e *Engine) pushNextFreePage(ringIndex int) error {
	if e.nextOffset+uint64(e.pageSize) > e.mem.Size() {
		e.nextOffset = 0 // wrap: pages are recycled, spec.md §3 "Page ... Recycled: free -> pushed -> arrived -> read -> free"
	}
	busAddr, err := e.mem.Translate(e.nextOffset)
	if err != nil {
		return err
	}
	page := superpage.Page{RingIndex: ringIndex, BusAddr: busAddr, Size: e.pageSize}
	e.nextOffset += uint64(e.pageSize)

	if err := e.accessor.PushFreeFifoPage(ringIndex, busAddr, e.pageSize/4); err != nil {
		return err
	}
	return e.freeQ.Push(page, rocerr.TransferQueueFull)
}

// StartDma performs CRORC bring-up (spec.md §4.6bis "Bring-up
// (startDma)"): find DIU version, reset at the caller-selected level,
// check the link, pre-fill the Ready-FIFO, then either arm the data
// generator or send RDYRX to the front-end electronics. It issues no
// FIFO reset and does not write a receiver base address to the card.
func (e *Engine) StartDma() error {
	if _, err := e.accessor.InitDiuVersion(); err != nil {
		return err
	}
	if err := e.accessor.ArmDdl(e.level, e.loopback); err != nil {
		return err
	}

	if err := e.accessor.CheckLink(); err != nil {
		return err
	}

	for i := 0; i < e.freeQ.Cap(); i++ {
		if err := e.pushNextFreePage(i); err != nil {
			return err
		}
	}

	if e.isGenMode {
		if err := e.accessor.ArmDataGenerator(0, bar.PatternIncremental, e.pageSize/4, 0); err != nil {
			return err
		}
		if err := e.accessor.StartTrigger(); err != nil {
			return err
		}
	} else if !e.noRdyRx {
		if err := e.accessor.SendRdyRx(); err != nil {
			return err
		}
	}

	e.running = true
	return nil
}

// PollArrivals checks every outstanding free-FIFO entry for arrival
// (spec.md §4.6bis isPageArrived) and promotes arrived pages to the
// ready queue in ring order.
func (e *Engine) PollArrivals() error {
	outstanding := e.freeQ.DrainAll()
	for _, page := range outstanding {
		length, arrived, err := e.accessor.IsPageArrived(page.RingIndex)
		if err != nil {
			return err
		}
		if !arrived {
			if err := e.freeQ.Push(page, rocerr.TransferQueueFull); err != nil {
				return err
			}
			continue
		}
		page.Arrived = true
		page.Length = length
		if err := e.readyQ.Push(page, rocerr.TransferQueueFull); err != nil {
			return err
		}
	}
	return nil
}

// GetPage returns (without popping) the head of the ready queue.
func (e *Engine) GetPage() (superpage.Page, error) {
	return e.readyQ.Peek(rocerr.ReadyQueueEmpty)
}

// PopPage pops the head of the ready queue, then immediately recycles
// its ring slot by pushing a fresh free page at the same index (spec.md
// §3: "Recycled: free -> pushed -> arrived -> read -> free").
func (e *Engine) PopPage() (superpage.Page, error) {
	page, err := e.readyQ.Pop(rocerr.ReadyQueueEmpty)
	if err != nil {
		return page, err
	}
	if err := e.pushNextFreePage(page.RingIndex); err != nil {
		return page, err
	}
	return page, nil
}

// StopDma stops the trigger sequencer and leaves the channel in a state
// where the next StartDma is legal.
func (e *Engine) StopDma() error {
	if err := e.accessor.StopTrigger(); err != nil {
		return err
	}
	e.running = false
	return nil
}
