package factory

import (
	"sync"

	"github.com/AliceO2Group/readoutcard/internal/cardtype"
	"github.com/AliceO2Group/readoutcard/internal/dmamem"
	"github.com/AliceO2Group/readoutcard/internal/rocerr"
)

// dummyEngine is a non-hardware engine.Engine implementation backed by
// in-process memory, used so the factory/engine contracts are
// exercised by tests without a card or root (spec.md §9 Open Question
// #3, resolved in DESIGN.md).
type dummyEngine struct {
	mu      sync.Mutex
	running bool

	mem *dmamem.Memory
}

func (d *dummyEngine) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

func (d *dummyEngine) StartDma() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return rocerr.New(rocerr.ChannelBusy, "dummy engine is already running", nil)
	}
	d.running = true
	return nil
}

func (d *dummyEngine) StopDma() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.running = false
	return nil
}

// OpenDummy builds a Channel against the in-process dummy backend
// instead of a real registry/BAR/sysfs device. It is reachable only by
// explicitly requesting cardtype.Dummy and is never returned by
// registry.Enumerate.
func OpenDummy(p *Parameters) (*Channel, error) {
	if err := p.Validate(cardtype.Dummy); err != nil {
		return nil, err
	}

	mem, err := pinBuffer(p)
	if err != nil {
		return nil, err
	}

	return &Channel{
		Type:   cardtype.Dummy,
		Engine: &dummyEngine{mem: mem},
		mem:    mem,
	}, nil
}
