// Package registry implements DeviceRegistry (spec.md §4.2): turning a
// CardIdentity into a device handle, and listing what readout cards are
// present on the host.
package registry

import (
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/AliceO2Group/readoutcard/internal/cardtype"
	"github.com/AliceO2Group/readoutcard/internal/rlog"
	"github.com/AliceO2Group/readoutcard/internal/rocerr"
)

// Registry enumerates readout cards and resolves identities to handles.
// It lazily initializes its scan state on first use and tears it down
// once the last DeviceHandle referencing it is released (spec.md §4.2
// "Resource discipline").
type Registry struct {
	scanner *sysfsScanner

	mu       sync.Mutex
	refCount int32
	initOnce sync.Once
}

// New creates a Registry. Construction itself does not touch sysfs; the
// scan state is initialized lazily on the first Enumerate/Open call.
func New() *Registry {
	return &Registry{scanner: newSysfsScanner()}
}

func (r *Registry) ensureInit() {
	r.initOnce.Do(func() {
		rlog.Base().Debug("registry: initializing PCIe enumeration state")
	})
}

// Enumerate returns every known-type readout card visible on the PCIe
// bus, in stable (sysfs directory) order.
func (r *Registry) Enumerate() ([]Descriptor, error) {
	r.ensureInit()

	raw, err := r.scanner.scan()
	if err != nil {
		return nil, fmt.Errorf("enumerate PCI devices: %w", err)
	}

	var out []Descriptor
	for _, d := range raw {
		ct, ok := cardtype.Identify(d.vendor, d.device)
		if !ok {
			continue
		}
		idx := len(out) // position among the readout cards listed so far

		devPath := filepath.Join(r.scanner.basePath, d.bdf.String())
		serial, endpoint, err := readSerialAndEndpoint(devPath, ct)
		if err != nil {
			// Unreadable/faulted identification BAR: the card is present
			// but cannot be identified further. It is still listed (spec
			// says nothing about hiding faulted cards from enumerate),
			// just without a usable serial/endpoint identity.
			rlog.Base().WithError(err).Warnf("registry: could not read serial/endpoint for %s", d.bdf)
			out = append(out, Descriptor{
				Type:      ct,
				Identity:  Identity{Index: idx, HasIdx: true, BDF: d.bdf, HasBDF: true},
				VendorID:  d.vendor,
				DeviceID:  d.device,
				NUMANode:  d.numaNode,
				LinkSpeed: d.linkSpeed,
				LinkWidth: d.linkWidth,
			})
			continue
		}

		out = append(out, Descriptor{
			Type: ct,
			Identity: Identity{
				Serial: serial, Endpoint: endpoint, HasSE: true,
				BDF: d.bdf, HasBDF: true,
				Index: idx, HasIdx: true,
			},
			VendorID:  d.vendor,
			DeviceID:  d.device,
			NUMANode:  d.numaNode,
			LinkSpeed: d.linkSpeed,
			LinkWidth: d.linkWidth,
		})
	}
	return out, nil
}

// Open resolves id (serial+endpoint, BDF, or sequence index) to exactly
// one device, returning a shared DeviceHandle. It fails with CardNotFound
// if zero descriptors match and AmbiguousCardId if more than one does.
func (r *Registry) Open(id Identity) (*DeviceHandle, error) {
	descs, err := r.Enumerate()
	if err != nil {
		return nil, err
	}

	var matches []Descriptor
	for _, d := range descs {
		if identityMatches(id, d.Identity) {
			matches = append(matches, d)
		}
	}

	switch len(matches) {
	case 0:
		return nil, rocerr.New(rocerr.CardNotFound, "no readout card matches identity",
			rocerr.Fields{"id": id.String()})
	case 1:
		r.acquire()
		return &DeviceHandle{registry: r, desc: matches[0]}, nil
	default:
		return nil, rocerr.New(rocerr.AmbiguousCardID, "multiple readout cards match identity",
			rocerr.Fields{"id": id.String(), "count": len(matches)})
	}
}

func identityMatches(query, candidate Identity) bool {
	switch {
	case query.HasSE:
		return candidate.HasSE && candidate.Serial == query.Serial && candidate.Endpoint == query.Endpoint
	case query.HasBDF:
		return candidate.HasBDF && candidate.BDF == query.BDF
	case query.HasIdx:
		return candidate.HasIdx && candidate.Index == query.Index
	default:
		return false
	}
}

func (r *Registry) acquire() { atomic.AddInt32(&r.refCount, 1) }

func (r *Registry) release() {
	if atomic.AddInt32(&r.refCount, -1) == 0 {
		r.mu.Lock()
		defer r.mu.Unlock()
		rlog.Base().Debug("registry: last device handle released, tearing down enumeration state")
	}
}

// DeviceHandle is a shared, reference-counted handle to one physical
// device (spec.md §9 "Cyclic ownership": "the device handle is a shared,
// reference-counted root; all other components hold that handle").
type DeviceHandle struct {
	registry *Registry
	desc     Descriptor

	closeOnce sync.Once
}

// Descriptor returns the resolved card descriptor.
func (h *DeviceHandle) Descriptor() Descriptor { return h.desc }

// SysfsPath returns the device's sysfs directory.
func (h *DeviceHandle) SysfsPath() string {
	return filepath.Join("/sys/bus/pci/devices", h.desc.Identity.BDF.String())
}

// Release drops this handle's reference to the owning Registry. It is
// idempotent and safe to call multiple times.
func (h *DeviceHandle) Release() {
	h.closeOnce.Do(func() {
		h.registry.release()
	})
}
