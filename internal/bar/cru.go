package bar

import (
	"github.com/AliceO2Group/readoutcard/internal/cardtype"
	"github.com/AliceO2Group/readoutcard/internal/register"
	"github.com/AliceO2Group/readoutcard/internal/romio"
	"github.com/AliceO2Group/readoutcard/internal/rocerr"
)

// CRU implements Accessor for the Common Readout Unit family, plus the
// CRU-specific superpage descriptor and bring-up operations (spec.md
// §4.5, §4.6).
type CRU struct {
	space *register.Space
	cal   romio.Calibration
}

// NewCRU wraps an identification-BAR Space (BAR 2) as a CRU accessor.
// cal is the loop-budget calibration Configure uses to time out the GBT
// and TTC calibration sequences without further wall-clock syscalls
// (internal/romio), the same discipline bar.CRORC applies to its
// command/response waits.
func NewCRU(space *register.Space, cal romio.Calibration) *CRU { return &CRU{space: space, cal: cal} }

func (c *CRU) Type() cardtype.CardType { return cardtype.CRU }
func (c *CRU) Index() int              { return c.space.Index() }
func (c *CRU) Size() int               { return c.space.Size() }

func (c *CRU) Serial() (uint32, bool, error) {
	if err := checkBar(c.space, CRUBarSerial); err != nil {
		return 0, false, err
	}
	v, err := c.space.Read32(CRUOffsetSerial)
	if err != nil {
		return 0, false, err
	}
	if v == InvalidCRUSerial {
		return 0, false, rocerr.New(rocerr.InvalidSerial, "CRU reported invalid serial 0xFFFFFFFF", nil)
	}
	return v, true, nil
}

func (c *CRU) Temperature() (float64, bool, error) {
	if err := checkBar(c.space, CRUBarSerial); err != nil {
		return 0, false, err
	}
	raw, err := c.space.Read32(CRUOffsetTemp)
	if err != nil {
		return 0, false, err
	}
	v, ok := decodeTemperature(raw)
	return v, ok, nil
}

func (c *CRU) FirmwareInfo() (uint32, bool, error) {
	if err := checkBar(c.space, CRUBarSerial); err != nil {
		return 0, false, err
	}
	lo, err := c.space.Read32(CRUOffsetFwLo)
	if err != nil {
		return 0, false, err
	}
	return lo, true, nil
}

func (c *CRU) CardID() (string, bool, error) {
	if err := checkBar(c.space, CRUBarSerial); err != nil {
		return "", false, err
	}
	hi, err := c.space.Read32(CRUOffsetFwHi)
	if err != nil {
		return "", false, err
	}
	lo, err := c.space.Read32(CRUOffsetFwLo)
	if err != nil {
		return "", false, err
	}
	return cardIDString(hi, lo), true, nil
}

// Superpage descriptor push offsets, one set per link, derived from the
// link's slot in the doorbell window. Link count is bounded by
// spec.md's "up to 128" descriptor ring depth statement; the doorbell
// window here models one representative register triad per link at a
// link-indexed stride, which is the minimal layout fact needed to
// exercise pushSuperpageDescriptor/getSuperpageCount without committing
// to a specific firmware generation's full map (out of scope, spec.md §1).
const (
	linkDoorbellStride  = 0x20
	linkDoorbellBase    = 0x1000
	linkSuperpageCntOff = 0x1010
)

func linkAddrHiOffset(link int) int  { return linkDoorbellBase + link*linkDoorbellStride }
func linkAddrLoOffset(link int) int  { return linkDoorbellBase + link*linkDoorbellStride + 4 }
func linkPageCountOffset(link int) int {
	return linkDoorbellBase + link*linkDoorbellStride + 8
}
func linkSuperpageCountOffset(link int) int {
	return linkSuperpageCntOff + link*linkDoorbellStride
}

// PushSuperpageDescriptor writes the bus address high/low words followed
// by the page count doorbell write that enqueues the descriptor on the
// card (spec.md §4.5). The caller must have already verified the link's
// firmware FIFO has space.
func (c *CRU) PushSuperpageDescriptor(link int, pagesInSuperpage uint32, busAddress uint64) error {
	if err := c.space.Write32(linkAddrHiOffset(link), uint32(busAddress>>32)); err != nil {
		return err
	}
	if err := c.space.Write32(linkAddrLoOffset(link), uint32(busAddress)); err != nil {
		return err
	}
	return c.space.Write32(linkPageCountOffset(link), pagesInSuperpage)
}

// GetSuperpageCount returns firmware's monotonically non-decreasing
// completed-superpage counter for link.
func (c *CRU) GetSuperpageCount(link int) (uint32, error) {
	return c.space.Read32(linkSuperpageCountOffset(link))
}

// SetLinksEnabled writes the enabled-link bitmask.
func (c *CRU) SetLinksEnabled(mask uint32) error {
	return c.space.Write32(CRUOffsetLinkMask, mask)
}

// SetDataEmulatorEnabled toggles the data generator/emulator enable bit
// without touching the rest of the control word.
func (c *CRU) SetDataEmulatorEnabled(enabled bool) error {
	var bit uint32
	if enabled {
		bit = 1
	}
	return c.space.Modify(CRUOffsetDataGenCtl, 0, 1, bit)
}

// ResetCard pulses the card reset register.
func (c *CRU) ResetCard() error {
	if err := c.space.Write32(CRUOffsetCardReset, 1); err != nil {
		return err
	}
	return c.space.Write32(CRUOffsetCardReset, 0)
}

// resetDataGeneratorCounterOffset is a representative counter-reset
// register placed after the control-word block (clear of the link-mask
// and card-reset registers in layout.go), for the same reason the link
// doorbell window is representative (see its comment above).
const resetDataGeneratorCounterOffset = CRUOffsetDataGenCtl + 20

// ResetDataGeneratorCounter clears the on-card data generator's event
// counter.
func (c *CRU) ResetDataGeneratorCounter() error {
	return c.space.Write32(resetDataGeneratorCounterOffset, 1)
}

// SetDataGeneratorPattern encodes and writes the data generator control
// word (spec.md §4.5 bit-exact encoding).
func (c *CRU) SetDataGeneratorPattern(pattern DataGeneratorPattern, sizeBytes int, randomLength bool) error {
	cur, err := c.space.Read32(CRUOffsetDataGenCtl)
	if err != nil {
		return err
	}
	enable := cur&1 != 0
	word, err := encodeDataGeneratorCtl(enable, pattern, sizeBytes, randomLength)
	if err != nil {
		return err
	}
	return c.space.Write32(CRUOffsetDataGenCtl, word)
}

// DataSource selects where a CRU link's payload comes from.
type DataSource int

const (
	DataSourceFee DataSource = iota
	DataSourceDdg
	DataSourceInternal
)

const dataSourceOffset = CRUOffsetDataGenCtl + 24

// SetDataSource selects the payload source for the enabled links.
func (c *CRU) SetDataSource(source DataSource) error {
	return c.space.Write32(dataSourceOffset, uint32(source))
}

// ClockSource selects the CRU's reference clock.
type ClockSource int

const (
	ClockLocal ClockSource = iota
	ClockTTC
)

const clockSourceOffset = CRUOffsetDataGenCtl + 12

// SetClock selects the reference clock source.
func (c *CRU) SetClock(source ClockSource) error {
	return c.space.Write32(clockSourceOffset, uint32(source))
}

const ponTxOffset = CRUOffsetDataGenCtl + 16

// ConfigurePonTx configures the passive-optical-network TX ONU address
// and waits for calibration to settle, failing PonCalibrationFailed if
// the card never reports lock.
func (c *CRU) ConfigurePonTx(onuAddress uint32) error {
	if err := c.space.Write32(ponTxOffset, onuAddress|1<<31); err != nil {
		return err
	}
	locked, err := romio.Spin(c.cal.LoopBudget(1_000_000), func() (bool, error) {
		v, err := c.space.Read32(ponTxOffset)
		if err != nil {
			return false, err
		}
		return v&(1<<30) != 0, nil
	})
	if err != nil {
		return err
	}
	if !locked {
		return rocerr.New(rocerr.PonCalibrationFail, "PON TX failed to calibrate",
			rocerr.Fields{"onuAddress": onuAddress})
	}
	return nil
}

// GbtMux selects which source is multiplexed onto a GBT link
// (src/Cru/Gbt.cxx setMux; the three values come from
// src/Cru/Constants.h's GBT_MUX_TTC/GBT_MUX_DDG/GBT_MUX_SC).
type GbtMux int

const (
	GbtMuxTTC GbtMux = iota
	GbtMuxDDG
	GbtMuxSWT
)

// GbtMode selects a link's GBT receive framing. TX is always forced to
// GBT framing (src/Cru/CruBar.cxx configure(): "TX is always GBT");
// GbtMode only ever applies to RX.
type GbtMode int

const (
	GbtModeGBT GbtMode = iota
	GbtModeWideBus
)

// DatapathMode selects packet or streaming framing on the datapath
// wrapper (src/Cru/DatapathWrapper.cxx setDatapathMode/getDatapathMode:
// bit 31 of the per-link control word, 1=Packet, 0=Streaming).
type DatapathMode int

const (
	DatapathModePacket DatapathMode = iota
	DatapathModeStreaming
)

// BringupOptions groups the card-level bring-up options Configure
// applies beyond the enabled-link mask: clock source, GBT/datapath
// framing, downstream-data select, optional PON upstream bring-up, and
// per-link FEE identification (spec.md §4.7's reconfigure-path options;
// src/Cru/CruBar.cxx's constructor captures the equivalent fields from
// its Parameters at construction time, which is why these are supplied
// once to Configure rather than threaded through every bring-up call).
type BringupOptions struct {
	Clock          ClockSource
	DatapathMode   DatapathMode
	DownstreamData uint32
	GbtMode        GbtMode
	GbtMux         GbtMux
	GbtMuxMap      map[int]GbtMux // per-link override of GbtMux, src/Cru/CruBar.h mGbtMuxMap
	LinkLoopback   bool
	PonUpstream    bool
	OnuAddress     uint32
	CruID          uint32 // written as each enabled link's FEE id, DatapathWrapper::setFeeId
	AllowRejection bool
}

// muxFor resolves link's GBT mux, consulting the per-link override map
// before falling back to the card-wide default.
func (o BringupOptions) muxFor(link int) GbtMux {
	if mux, ok := o.GbtMuxMap[link]; ok {
		return mux
	}
	return o.GbtMux
}

// GBT wrapper/bank/link addressing, TTC calibration/clock/downstream
// select, and datapath wrapper link-enable/mode/flow-control registers
// (src/Cru/Gbt.cxx, src/Cru/Ttc.cxx, src/Cru/DatapathWrapper.cxx,
// src/Cru/Constants.h). As with the doorbell window above, these
// offsets are a minimal representative layout standing in for the real
// multi-region firmware register map (out of scope, spec.md §1), not a
// literal port of Constants.h's addresses.
const (
	wrapperClockCounterOffset = 0x1800 // read twice; unchanged => wrapper absent (setWrapperCount)

	ttcCalRequestOffset = 0x1810
	ttcCalStatusOffset  = 0x1814
	ttcFpllResetOffset  = 0x1818
	ttcDownstreamOffset = 0x181c

	gbtCalRequestOffset = 0x1820
	gbtCalStatusOffset  = 0x1824

	gbtMuxSelectBase   = 0x1900
	gbtTxControlBase   = 0x1980
	gbtRxControlBase   = 0x1a00
	gbtLoopbackBase    = 0x1a80
	gbtLinkStride      = 0x4

	dwrapperEnableBase   = 0x1b00 // one word per wrapper (0, 1)
	dwrapperEnableStride = 0x4
	dwrapperModeBase     = 0x1b80 // one word per link
	dwrapperModeStride   = 0x4
	flowControlBase      = 0x1c00 // one word per wrapper
	flowControlStride    = 0x4
	feeIDBase            = 0x1c80 // one word per link
	feeIDStride          = 0x4
	packetArbitrationOff = 0x1d00
)

// linksPerWrapper is the simplified link-to-wrapper split this layout
// uses in place of CruBar::populateLinkList's full bank-table decode
// (src/Cru/CruBar.cxx): links [0,16) belong to wrapper 0, [16,32) to
// wrapper 1.
const linksPerWrapper = 16

func linkWrapper(link int) (wrapper, wrapperLinkID int) {
	return link / linksPerWrapper, link % linksPerWrapper
}

// detectWrapperCount reads the free-running wrapper clock counter twice
// per wrapper and counts how many wrappers have a running clock,
// mirroring CruBar::setWrapperCount's liveness probe.
func (c *CRU) detectWrapperCount() (int, error) {
	count := 0
	for wrapper := 0; wrapper < 2; wrapper++ {
		offset := wrapperClockCounterOffset + wrapper*4
		first, err := c.space.Read32(offset)
		if err != nil {
			return 0, err
		}
		second, err := c.space.Read32(offset)
		if err != nil {
			return 0, err
		}
		if first != second {
			count++
		}
	}
	return count, nil
}

// runCalibrationStep implements the request-access / poll-granted /
// enable / poll-complete register sequence shared by
// Common::atxcal0/txcal0/rxcal0/cdrref: bit 0 of requestOffset requests
// the calibration unit, bit 0 of statusOffset reports it granted, bit 1
// of requestOffset starts calibration, bit 1 of statusOffset reports it
// complete.
func (c *CRU) runCalibrationStep(requestOffset, statusOffset int, kind rocerr.Kind, name string) error {
	budget := c.cal.LoopBudget(1_000_000)

	if err := c.space.Modify(requestOffset, 0, 1, 1); err != nil {
		return err
	}
	granted, err := romio.Spin(budget, func() (bool, error) {
		v, err := c.space.Read32(statusOffset)
		if err != nil {
			return false, err
		}
		return v&0x1 != 0, nil
	})
	if err != nil {
		return err
	}
	if !granted {
		return rocerr.New(kind, name+" calibration unit never granted access", nil)
	}

	if err := c.space.Modify(requestOffset, 1, 1, 1); err != nil {
		return err
	}
	done, err := romio.Spin(budget, func() (bool, error) {
		v, err := c.space.Read32(statusOffset)
		if err != nil {
			return false, err
		}
		return v&0x2 != 0, nil
	})
	if err != nil {
		return err
	}
	if !done {
		return rocerr.New(kind, name+" calibration never completed", nil)
	}
	return nil
}

// calibrateTtc stands in for Ttc::calibrateTtc before the clock source
// is switched: it runs one runCalibrationStep on the TTC calibration
// registers. The ATX PLL, PON TX and PON RX calibrations are not run as
// separate steps.
func (c *CRU) calibrateTtc() error {
	return c.runCalibrationStep(ttcCalRequestOffset, ttcCalStatusOffset, rocerr.TtcCalibrationFail, "TTC")
}

// resetFpll resets the PON upstream's fractional PLL, the precondition
// Ttc::resetFpll establishes before configurePonTx.
func (c *CRU) resetFpll() error {
	return c.space.Modify(ttcFpllResetOffset, 0, 1, 1)
}

// selectDownstreamData writes the TTC downstream-data select field
// (Ttc::selectDownstreamData) into bits 0-1 of this layout's
// representative downstream-select register.
func (c *CRU) selectDownstreamData(downstreamData uint32) error {
	return c.space.Modify(ttcDownstreamOffset, 0, 2, downstreamData&0x3)
}

// calibrateGbt runs the GBT wrapper's ATX PLL calibration sequence
// (Gbt::calibrateGbt), once per CRU rather than per link.
func (c *CRU) calibrateGbt() error {
	return c.runCalibrationStep(gbtCalRequestOffset, gbtCalStatusOffset, rocerr.GbtCalibrationFail, "GBT")
}

// setGbtMux writes link's GBT_MUX_SELECT field (Gbt::setMux).
func (c *CRU) setGbtMux(link int, mux GbtMux) error {
	return c.space.Write32(gbtMuxSelectBase+link*gbtLinkStride, uint32(mux))
}

// setGbtTxMode writes link's TX control word (Gbt::setTxMode).
func (c *CRU) setGbtTxMode(link int, mode GbtMode) error {
	return c.space.Write32(gbtTxControlBase+link*gbtLinkStride, uint32(mode))
}

// setGbtRxMode writes link's RX control word (Gbt::setRxMode).
func (c *CRU) setGbtRxMode(link int, mode GbtMode) error {
	return c.space.Write32(gbtRxControlBase+link*gbtLinkStride, uint32(mode))
}

// setGbtLoopback toggles link's internal loopback bit (Gbt::setLoopback).
func (c *CRU) setGbtLoopback(link int, enabled bool) error {
	var bit uint32
	if enabled {
		bit = 1
	}
	return c.space.Modify(gbtLoopbackBase+link*gbtLinkStride, 0, 1, bit)
}

// setDatapathLinksEnabled zeroes (or sets) wrapper's whole link-enable
// bitmask in one write (DatapathWrapper::setLinksEnabled).
func (c *CRU) setDatapathLinksEnabled(wrapper int, mask uint32) error {
	return c.space.Write32(dwrapperEnableBase+wrapper*dwrapperEnableStride, mask)
}

// setDatapathLinkEnabled sets one link's bit within its wrapper's
// enable mask (DatapathWrapper::setLinkEnabled).
func (c *CRU) setDatapathLinkEnabled(wrapper, wrapperLinkID int) error {
	return c.space.Modify(dwrapperEnableBase+wrapper*dwrapperEnableStride, uint(wrapperLinkID), 1, 1)
}

// setDatapathMode writes a link's framing-mode bit
// (DatapathWrapper::setDatapathMode: bit 31, plus the fixed RAWMAXLEN
// bits the original always ORs in).
func (c *CRU) setDatapathMode(link int, mode DatapathMode) error {
	val := uint32(0x1FC)
	if mode == DatapathModePacket {
		val |= 1 << 31
	}
	return c.space.Write32(dwrapperModeBase+link*dwrapperModeStride, val)
}

// setPacketArbitration writes the packet-arbitration mode
// (DatapathWrapper::setPacketArbitration) as a single write of 0 to one
// shared register; wrapperCount does not change what is written.
func (c *CRU) setPacketArbitration(wrapperCount int) error {
	return c.space.Write32(packetArbitrationOff, 0)
}

// setFlowControl writes a wrapper's reject-policy bit
// (DatapathWrapper::setFlowControl).
func (c *CRU) setFlowControl(wrapper int, allowReject bool) error {
	var bit uint32
	if allowReject {
		bit = 1
	}
	return c.space.Write32(flowControlBase+wrapper*flowControlStride, bit)
}

// setFeeID tags link with the card's FEE id (DatapathWrapper::setFeeId).
func (c *CRU) setFeeID(link int, feeID uint32) error {
	return c.space.Modify(feeIDBase+link*feeIDStride, 0, 16, feeID&0xffff)
}

// Configure performs full card bring-up, grounded on src/Cru/CruBar.cxx's
// configure(): detects the wrapper count, calibrates TTC and switches to
// the requested clock, optionally brings up the PON upstream link,
// selects downstream data, assigns and calibrates the GBT subsystem,
// configures each enabled link's GBT TX/RX mode and loopback, then
// enables the datapath links and applies datapath mode, packet
// arbitration and flow control. Data taking is left disabled
// (SetDataEmulatorEnabled) until startDma.
func (c *CRU) Configure(linkMask uint32, opts BringupOptions) error {
	wrapperCount, err := c.detectWrapperCount()
	if err != nil {
		return err
	}
	links := enabledLinks(linkMask)

	if err := c.calibrateTtc(); err != nil {
		return err
	}
	if err := c.SetClock(opts.Clock); err != nil {
		return err
	}
	if opts.PonUpstream {
		if err := c.resetFpll(); err != nil {
			return err
		}
		if err := c.ConfigurePonTx(opts.OnuAddress); err != nil {
			return err
		}
	}
	if err := c.selectDownstreamData(opts.DownstreamData); err != nil {
		return err
	}

	for _, link := range links {
		if err := c.setGbtMux(link, opts.muxFor(link)); err != nil {
			return err
		}
	}
	if err := c.calibrateGbt(); err != nil {
		return err
	}
	for _, link := range links {
		if err := c.setGbtTxMode(link, GbtModeGBT); err != nil { // TX is always GBT
			return err
		}
		if err := c.setGbtRxMode(link, opts.GbtMode); err != nil {
			return err
		}
		if err := c.setGbtLoopback(link, opts.LinkLoopback); err != nil {
			return err
		}
	}

	if err := c.SetDataEmulatorEnabled(false); err != nil {
		return err
	}
	if err := c.setDatapathLinksEnabled(0, 0); err != nil {
		return err
	}
	if err := c.setDatapathLinksEnabled(1, 0); err != nil {
		return err
	}
	for _, link := range links {
		wrapper, wrapperLinkID := linkWrapper(link)
		if err := c.setDatapathLinkEnabled(wrapper, wrapperLinkID); err != nil {
			return err
		}
		if err := c.setDatapathMode(link, opts.DatapathMode); err != nil {
			return err
		}
		if err := c.setFeeID(link, opts.CruID); err != nil {
			return err
		}
	}
	if err := c.setPacketArbitration(wrapperCount); err != nil {
		return err
	}
	for wrapper := 0; wrapper < wrapperCount; wrapper++ {
		if err := c.setFlowControl(wrapper, opts.AllowRejection); err != nil {
			return err
		}
	}

	return c.SetLinksEnabled(linkMask)
}

// Reconfigure re-applies bring-up without a full card reset, for
// changing the link mask or data source mid-session.
func (c *CRU) Reconfigure(linkMask uint32, source DataSource) error {
	if err := c.SetDataSource(source); err != nil {
		return err
	}
	return c.SetLinksEnabled(linkMask)
}

// enabledLinks expands mask into ascending link ids.
func enabledLinks(mask uint32) []int {
	var links []int
	for i := 0; i < 32; i++ {
		if mask&(1<<uint(i)) != 0 {
			links = append(links, i)
		}
	}
	return links
}
