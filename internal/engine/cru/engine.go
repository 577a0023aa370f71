// Package cru implements the superpage-model TransferEngine for the
// Common Readout Unit family (spec.md §4.6).
package cru

import (
	"github.com/sirupsen/logrus"

	"github.com/AliceO2Group/readoutcard/internal/bar"
	"github.com/AliceO2Group/readoutcard/internal/dmamem"
	"github.com/AliceO2Group/readoutcard/internal/queue"
	"github.com/AliceO2Group/readoutcard/internal/rocerr"
	"github.com/AliceO2Group/readoutcard/internal/superpage"
)

// linkState tracks one enabled link's transfer queue and firmware
// completion bookkeeping.
type linkState struct {
	id          int
	transferQ   *queue.Ring[superpage.Superpage]
	lastCount   uint32 // last value read from firmware's completion counter
	initialized bool
}

// Engine is the CRU superpage scheduler: it places pushed superpages on
// the least-loaded enabled link, polls firmware for completions, and
// promotes finished items into a single channel-wide ready queue
// (spec.md §4.6).
type Engine struct {
	accessor *bar.CRU
	mem      *dmamem.Memory
	log      *logrus.Entry

	links   []*linkState
	readyQ  *queue.Ring[superpage.Superpage]
	running bool

	// linkQueueCapacity is each link's TransferQueue capacity, matching
	// the firmware descriptor-ring depth (spec.md §4.6: "up to 128").
	linkQueueCapacity int

	// startDma inputs, captured at construction time (Parameters are
	// fixed once a Channel is opened) so StartDma itself takes no
	// arguments and satisfies engine.Engine.
	linkMask     uint32
	genPattern   bar.DataGeneratorPattern
	genSize      int
	genRandomLen bool
}

// New builds a CRU engine over the given accessor and DMA buffer, with
// one TransferQueue per link id in linkIDs and a channel-wide ready
// queue of depth readyQueueDepth. linkMask and the generator settings
// are applied by StartDma. log is the already channel-scoped entry from
// internal/rlog.
func New(accessor *bar.CRU, mem *dmamem.Memory, linkIDs []int, linkQueueCapacity, readyQueueDepth int, linkMask uint32, pattern bar.DataGeneratorPattern, sizeBytes int, randomLength bool, log *logrus.Entry) *Engine {
	links := make([]*linkState, len(linkIDs))
	for i, id := range linkIDs {
		links[i] = &linkState{id: id, transferQ: queue.NewRing[superpage.Superpage](linkQueueCapacity)}
	}
	return &Engine{
		accessor:          accessor,
		mem:               mem,
		log:               log,
		links:             links,
		readyQ:            queue.NewRing[superpage.Superpage](readyQueueDepth),
		linkQueueCapacity: linkQueueCapacity,
		linkMask:          linkMask,
		genPattern:        pattern,
		genSize:           sizeBytes,
		genRandomLen:      randomLength,
	}
}

// Running reports whether StartDma has been called without a matching
// StopDma.
func (e *Engine) Running() bool { return e.running }

// leastLoadedLink picks the enabled link whose transfer queue currently
// has the fewest outstanding superpages, ties broken by smallest link
// id (spec.md §4.6 "Link selection").
func (e *Engine) leastLoadedLink() *linkState {
	var best *linkState
	for _, l := range e.links {
		if best == nil || l.transferQ.Len() < best.transferQ.Len() ||
			(l.transferQ.Len() == best.transferQ.Len() && l.id < best.id) {
			best = l
		}
	}
	return best
}

// PushSuperpage places sp on the least-loaded link's transfer queue and
// pushes its descriptor to firmware (spec.md §4.6).
func (e *Engine) PushSuperpage(sp superpage.Superpage) error {
	if err := sp.Validate(e.mem.Size()); err != nil {
		return err
	}

	link := e.leastLoadedLink()
	if link == nil || link.transferQ.Full() {
		return rocerr.New(rocerr.TransferQueueFull, "no link has transfer queue capacity", nil)
	}

	busAddr, err := e.mem.Translate(sp.Offset)
	if err != nil {
		return err
	}
	pagesInSuperpage := uint32(sp.Size / dmamem.PageSizeCRU)
	if err := e.accessor.PushSuperpageDescriptor(link.id, pagesInSuperpage, busAddr); err != nil {
		return err
	}
	return link.transferQ.Push(sp, rocerr.TransferQueueFull)
}

// GetSuperpage returns (without popping) the head of the ready queue.
func (e *Engine) GetSuperpage() (superpage.Superpage, error) {
	return e.readyQ.Peek(rocerr.ReadyQueueEmpty)
}

// PopSuperpage pops and returns the head of the ready queue.
func (e *Engine) PopSuperpage() (superpage.Superpage, error) {
	return e.readyQ.Pop(rocerr.ReadyQueueEmpty)
}

// GetTransferQueueAvailable returns the summed available capacity
// across all links.
func (e *Engine) GetTransferQueueAvailable() int {
	total := 0
	for _, l := range e.links {
		total += l.transferQ.Available()
	}
	return total
}

// GetReadyQueueSize returns the number of items currently in the ready
// queue.
func (e *Engine) GetReadyQueueSize() int { return e.readyQ.Len() }

// FillSuperpages is the housekeeping step: polls each link's firmware
// pushed-count in link-mask (link slice) order, promotes finished
// superpages from transfer queue to ready queue in FIFO order, and
// stops early when the ready queue is full (spec.md §4.6).
func (e *Engine) FillSuperpages() error {
	for _, link := range e.links {
		if e.readyQ.Full() {
			return nil
		}

		count, err := e.accessor.GetSuperpageCount(link.id)
		if err != nil {
			return err
		}
		if !link.initialized {
			link.lastCount = count
			link.initialized = true
			continue
		}
		if count < link.lastCount {
			return rocerr.New(rocerr.FirmwareOvercommit,
				"firmware superpage counter decreased", rocerr.Fields{"link": link.id, "prev": link.lastCount, "cur": count})
		}

		completed := count - link.lastCount
		if uint64(completed) > uint64(link.transferQ.Len()) {
			return rocerr.New(rocerr.FirmwareOvercommit,
				"firmware reported more completions than outstanding", rocerr.Fields{"link": link.id, "completed": completed, "outstanding": link.transferQ.Len()})
		}
		link.lastCount = count

		for i := uint32(0); i < completed && !e.readyQ.Full(); i++ {
			sp, err := link.transferQ.Pop(rocerr.ReadyQueueEmpty)
			if err != nil {
				return err
			}
			sp.MarkComplete()
			if err := e.readyQ.Push(sp, rocerr.TransferQueueFull); err != nil {
				return err
			}
		}
	}
	return nil
}

// StartDma enables the selected links, resets the data generator
// counter, applies pattern/source, resets the card, then toggles the
// emulator enable bit (spec.md §4.6 "Start/stop").
func (e *Engine) StartDma() error {
	if err := e.accessor.SetLinksEnabled(e.linkMask); err != nil {
		return err
	}
	if err := e.accessor.ResetDataGeneratorCounter(); err != nil {
		return err
	}
	if err := e.accessor.SetDataGeneratorPattern(e.genPattern, e.genSize, e.genRandomLen); err != nil {
		return err
	}
	if err := e.accessor.ResetCard(); err != nil {
		return err
	}
	if err := e.accessor.SetDataEmulatorEnabled(true); err != nil {
		return err
	}
	e.running = true
	return nil
}

// StopDma disables the emulator and drains pushed-but-unreceived items
// into the ready queue as "flushed" (size preserved, ready=true),
// logging a one-shot informational count of the drained items (spec.md
// §4.6 "Start/stop").
func (e *Engine) StopDma() error {
	if err := e.accessor.SetDataEmulatorEnabled(false); err != nil {
		return err
	}

	drainedTotal := 0
	for _, link := range e.links {
		for _, sp := range link.transferQ.DrainAll() {
			sp.MarkComplete()
			if e.readyQ.Full() {
				continue
			}
			_ = e.readyQ.Push(sp, rocerr.TransferQueueFull)
			drainedTotal++
		}
	}
	if drainedTotal > 0 && e.log != nil {
		e.log.Infof("stopDma: flushed %d outstanding superpage(s) into the ready queue", drainedTotal)
	}
	e.running = false
	return nil
}
