package factory

import (
	"fmt"
	"unsafe"

	"github.com/AliceO2Group/readoutcard/internal/bar"
	"github.com/AliceO2Group/readoutcard/internal/cardtype"
	"github.com/AliceO2Group/readoutcard/internal/chanlock"
	"github.com/AliceO2Group/readoutcard/internal/dmamem"
	"github.com/AliceO2Group/readoutcard/internal/engine"
	cruengine "github.com/AliceO2Group/readoutcard/internal/engine/cru"
	crorcengine "github.com/AliceO2Group/readoutcard/internal/engine/crorc"
	"github.com/AliceO2Group/readoutcard/internal/register"
	"github.com/AliceO2Group/readoutcard/internal/registry"
	"github.com/AliceO2Group/readoutcard/internal/rlog"
	"github.com/AliceO2Group/readoutcard/internal/romio"
	"github.com/AliceO2Group/readoutcard/internal/rocerr"
)

// Channel is the assembled product of ChannelFactory.Open (spec.md §3:
// "All state for one DMA path"). The Channel exclusively owns its
// DmaMemory registration, its ChannelLock, and the engine built over
// its BAR; ChannelFactory owns the assembled Channel itself.
type Channel struct {
	Type   cardtype.CardType
	Engine engine.Engine

	mem    *dmamem.Memory
	lock   *chanlock.LockGuard
	handle *registry.DeviceHandle
}

// CRU type-asserts Engine to the CRU-specific superpage API, or returns
// nil/false if this channel was not opened against a CRU.
func (c *Channel) CRU() (*cruengine.Engine, bool) {
	e, ok := c.Engine.(*cruengine.Engine)
	return e, ok
}

// CRORC type-asserts Engine to the CRORC-specific page API, or returns
// nil/false if this channel was not opened against a CRORC.
func (c *Channel) CRORC() (*crorcengine.Engine, bool) {
	e, ok := c.Engine.(*crorcengine.Engine)
	return e, ok
}

// Close tears the channel down in the reverse order it was built:
// stop DMA if running, deregister the DMA buffer, release the channel
// lock, release the device handle. The first error is returned, but
// every step is still attempted so a failure partway through does not
// leak the remaining resources.
func (c *Channel) Close() error {
	var firstErr error
	note := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if c.Engine != nil && c.Engine.Running() {
		note(c.Engine.StopDma())
	}
	if c.mem != nil {
		if err := c.mem.Deregister(); err != nil {
			rlog.Base().WithError(err).Error("channel close: DMA buffer deregistration failed")
			note(err)
		}
	}
	if c.lock != nil {
		note(c.lock.Release())
	}
	if c.handle != nil {
		c.handle.Release()
	}
	return firstErr
}

// ChannelFactory composes a Channel from Parameters (spec.md §4.7),
// wiring together internal/registry, internal/chanlock,
// internal/dmamem, internal/bar and internal/engine.
type ChannelFactory struct {
	Registry *registry.Registry
}

// NewChannelFactory returns a ChannelFactory backed by a fresh
// registry.Registry.
func NewChannelFactory() *ChannelFactory {
	return &ChannelFactory{Registry: registry.New()}
}

// Open resolves Parameters.CardID to a physical device, acquires its
// channel lock, pins the DMA buffer, maps the identification BAR, and
// builds the card-family-appropriate TransferEngine.
func (f *ChannelFactory) Open(p *Parameters) (*Channel, error) {
	handle, err := f.Registry.Open(p.CardID)
	if err != nil {
		return nil, err
	}

	ct := handle.Descriptor().Type
	if err := p.Validate(ct); err != nil {
		handle.Release()
		return nil, err
	}

	lockName := chanlock.LockName(handle.Descriptor().Identity.String(), p.ChannelNumber)
	guard, err := chanlock.New(lockName).Acquire()
	if err != nil {
		handle.Release()
		return nil, err
	}

	mem, err := pinBuffer(p)
	if err != nil {
		guard.Release()
		handle.Release()
		return nil, err
	}

	log := rlog.ForChannel(handle.Descriptor().Identity.String(), p.ChannelNumber)

	var barIndex int
	switch ct {
	case cardtype.CRU:
		barIndex = bar.CRUBarSerial
	case cardtype.CRORC:
		barIndex = bar.CRORCBarSerial
	default:
		mem.Deregister()
		guard.Release()
		handle.Release()
		return nil, rocerr.New(rocerr.CardNotFound, "unsupported card type for channel open",
			rocerr.Fields{"cardType": ct})
	}

	mapped, err := register.OpenSysfsResource(handle.SysfsPath(), barIndex)
	if err != nil {
		mem.Deregister()
		guard.Release()
		handle.Release()
		return nil, err
	}

	var eng engine.Engine
	switch ct {
	case cardtype.CRU:
		cal, err := romio.Calibrate(mapped.Space, bar.CRUOffsetTemp)
		if err != nil {
			mapped.Close()
			mem.Deregister()
			guard.Release()
			handle.Release()
			return nil, err
		}
		accessor := bar.NewCRU(mapped.Space, cal)
		if err := accessor.Configure(p.LinkMask, p.bringupOptions()); err != nil {
			mapped.Close()
			mem.Deregister()
			guard.Release()
			handle.Release()
			return nil, err
		}
		linkIDs := enabledLinkIDs(p.LinkMask)
		eng = cruengine.New(accessor, mem, linkIDs, 128, 1024, p.LinkMask, p.GeneratorPattern, p.GeneratorDataSize, p.GeneratorRandomSize, log)
	case cardtype.CRORC:
		cal, err := romio.Calibrate(mapped.Space, bar.CRORCOffsetTemp)
		if err != nil {
			mapped.Close()
			mem.Deregister()
			guard.Release()
			handle.Release()
			return nil, err
		}
		accessor := bar.NewCRORC(mapped.Space, cal)
		eng = crorcengine.New(accessor, mem, p.DmaPageSize, 128, p.InitialResetLevel, p.LoopbackMode, p.NoRdyRx, p.GeneratorEnabled, log)
	}

	return &Channel{Type: ct, Engine: eng, mem: mem, lock: guard, handle: handle}, nil
}

// pinBuffer pins Parameters.DmaBuffer and registers it as DmaMemory.
func pinBuffer(p *Parameters) (*dmamem.Memory, error) {
	translate, unpin, err := dmamem.PinUserBuffer(p.DmaBuffer)
	if err != nil {
		return nil, fmt.Errorf("pin DMA buffer: %w", err)
	}
	userBase := uintptr(unsafe.Pointer(&p.DmaBuffer[0]))
	return dmamem.New(uint64(len(p.DmaBuffer)), userBase, uint64(len(p.DmaBuffer)), uint64(p.DmaPageSize), translate, unpin)
}

// enabledLinkIDs expands a link bitmask into a slice of link ids, in
// ascending order, the iteration order spec.md §5 "Ordering guarantees"
// requires for cross-link ready-queue append order.
func enabledLinkIDs(mask uint32) []int {
	var ids []int
	for i := 0; i < 32; i++ {
		if mask&(1<<uint(i)) != 0 {
			ids = append(ids, i)
		}
	}
	return ids
}
