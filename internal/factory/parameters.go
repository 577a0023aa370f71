// Package factory implements ChannelFactory (spec.md §4.7): composing a
// Channel from a Parameters builder by wiring together
// internal/registry, internal/chanlock, internal/dmamem, internal/bar
// and internal/engine.
package factory

import (
	"github.com/AliceO2Group/readoutcard/internal/bar"
	"github.com/AliceO2Group/readoutcard/internal/cardtype"
	"github.com/AliceO2Group/readoutcard/internal/dmamem"
	"github.com/AliceO2Group/readoutcard/internal/registry"
	"github.com/AliceO2Group/readoutcard/internal/rocerr"
)

// Parameters is the ChannelFactory option builder (spec.md §4.7). Each
// With* method returns the receiver so calls chain fluently.
type Parameters struct {
	CardID        registry.Identity
	ChannelNumber int

	DmaBuffer   []byte
	DmaPageSize int // CRORC only; CRU is fixed at dmamem.PageSizeCRU

	LinkMask uint32 // CRU: set of links to enable

	GeneratorEnabled    bool
	GeneratorPattern    bar.DataGeneratorPattern
	GeneratorDataSize   int
	GeneratorRandomSize bool

	LoopbackMode bar.Loopback

	// CRU card-level bring-up options (spec.md §4.7), applied by
	// bar.CRU.Configure via bringupOptions below.
	Clock          bar.ClockSource
	DatapathMode   bar.DatapathMode
	DownstreamData uint32
	GbtMode        bar.GbtMode
	GbtMux         bar.GbtMux
	GbtMuxMap      map[int]bar.GbtMux
	LinkLoopback   bool
	PonUpstream    bool
	OnuAddress     uint32
	CruID          uint32
	AllowRejection bool

	InitialResetLevel bar.ResetLevel

	// NoRdyRx is CRORC-only (spec.md §9 Open Question #1): preserved as
	// an explicit input, never inferred from generator state.
	NoRdyRx bool
}

// NewParameters returns a Parameters with conservative defaults: CRU
// page size, no links enabled, generator disabled, reset level Nothing,
// TTC clock (src/Cru/CruBar.cxx's configure() always switched to TTC
// before this was a Parameters-driven choice).
func NewParameters() *Parameters {
	return &Parameters{
		DmaPageSize:       dmamem.PageSizeCRU,
		InitialResetLevel: bar.ResetNothing,
		Clock:             bar.ClockTTC,
	}
}

func (p *Parameters) WithCardID(id registry.Identity) *Parameters { p.CardID = id; return p }
func (p *Parameters) WithChannelNumber(n int) *Parameters         { p.ChannelNumber = n; return p }
func (p *Parameters) WithDmaBuffer(buf []byte) *Parameters        { p.DmaBuffer = buf; return p }
func (p *Parameters) WithDmaPageSize(n int) *Parameters           { p.DmaPageSize = n; return p }
func (p *Parameters) WithLinkMask(mask uint32) *Parameters        { p.LinkMask = mask; return p }
func (p *Parameters) WithGenerator(pattern bar.DataGeneratorPattern, sizeBytes int, randomSize bool) *Parameters {
	p.GeneratorEnabled = true
	p.GeneratorPattern = pattern
	p.GeneratorDataSize = sizeBytes
	p.GeneratorRandomSize = randomSize
	return p
}
func (p *Parameters) WithLoopbackMode(lb bar.Loopback) *Parameters { p.LoopbackMode = lb; return p }
func (p *Parameters) WithInitialResetLevel(l bar.ResetLevel) *Parameters {
	p.InitialResetLevel = l
	return p
}
func (p *Parameters) WithNoRdyRx(v bool) *Parameters { p.NoRdyRx = v; return p }

// CRU card-level bring-up option setters (spec.md §4.7), consumed by
// bringupOptions below and applied in bar.CRU.Configure.
func (p *Parameters) WithClock(c bar.ClockSource) *Parameters             { p.Clock = c; return p }
func (p *Parameters) WithDatapathMode(m bar.DatapathMode) *Parameters     { p.DatapathMode = m; return p }
func (p *Parameters) WithDownstreamData(v uint32) *Parameters             { p.DownstreamData = v; return p }
func (p *Parameters) WithGbtMode(m bar.GbtMode) *Parameters               { p.GbtMode = m; return p }
func (p *Parameters) WithGbtMux(m bar.GbtMux) *Parameters                 { p.GbtMux = m; return p }
func (p *Parameters) WithGbtMuxMap(m map[int]bar.GbtMux) *Parameters      { p.GbtMuxMap = m; return p }
func (p *Parameters) WithLinkLoopback(v bool) *Parameters                 { p.LinkLoopback = v; return p }
func (p *Parameters) WithPonUpstream(v bool) *Parameters                  { p.PonUpstream = v; return p }
func (p *Parameters) WithOnuAddress(v uint32) *Parameters                 { p.OnuAddress = v; return p }
func (p *Parameters) WithCruID(v uint32) *Parameters                      { p.CruID = v; return p }
func (p *Parameters) WithAllowRejection(v bool) *Parameters               { p.AllowRejection = v; return p }

// bringupOptions projects the CRU-specific fields into a
// bar.BringupOptions for bar.CRU.Configure.
func (p *Parameters) bringupOptions() bar.BringupOptions {
	return bar.BringupOptions{
		Clock:          p.Clock,
		DatapathMode:   p.DatapathMode,
		DownstreamData: p.DownstreamData,
		GbtMode:        p.GbtMode,
		GbtMux:         p.GbtMux,
		GbtMuxMap:      p.GbtMuxMap,
		LinkLoopback:   p.LinkLoopback,
		PonUpstream:    p.PonUpstream,
		OnuAddress:     p.OnuAddress,
		CruID:          p.CruID,
		AllowRejection: p.AllowRejection,
	}
}

// Validate checks Parameters against the card type it will be opened
// for (spec.md §4.7: "Unknown-to-card options are silently ignored if
// they have no effect, and rejected with ParameterNotApplicable if
// specifying one on the wrong card type would hide a bug").
func (p *Parameters) Validate(ct cardtype.CardType) error {
	switch ct {
	case cardtype.CRU:
		if p.DmaPageSize != dmamem.PageSizeCRU {
			return rocerr.New(rocerr.ParameterNotApplicable,
				"dmaPageSize is fixed at 8 KiB on CRU",
				rocerr.Fields{"requested": p.DmaPageSize})
		}
		if p.NoRdyRx {
			return rocerr.New(rocerr.ParameterNotApplicable,
				"noRdyRx only applies to CRORC", nil)
		}
	case cardtype.CRORC:
		if p.LinkMask != 0 {
			return rocerr.New(rocerr.ParameterNotApplicable,
				"linkMask only applies to CRU", rocerr.Fields{"linkMask": p.LinkMask})
		}
		if p.DmaPageSize <= 0 {
			return rocerr.New(rocerr.ParameterNotApplicable,
				"dmaPageSize must be set for CRORC", nil)
		}
	case cardtype.Dummy:
		// The dummy backend accepts any combination; it exists purely
		// to exercise the factory/engine contracts (see DESIGN.md).
	}

	if len(p.DmaBuffer) == 0 {
		return rocerr.New(rocerr.BufferTooSmall, "dmaBuffer must be provided", nil)
	}
	return nil
}
