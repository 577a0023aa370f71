package bar

import (
	"github.com/AliceO2Group/readoutcard/internal/cardtype"
	"github.com/AliceO2Group/readoutcard/internal/register"
	"github.com/AliceO2Group/readoutcard/internal/romio"
	"github.com/AliceO2Group/readoutcard/internal/rocerr"
)

// ResetLevel is the CRORC reset state machine (spec.md §4.6bis): an
// ordered enum where each level is a superset of the previous one.
type ResetLevel int

const (
	ResetNothing ResetLevel = iota
	ResetRorc
	ResetRorcDiu
	ResetRorcDiuSiu
)

// Loopback selects which part of the datapath a CRORC channel loops
// back through, gating which reset operations are legal at startDma.
type Loopback int

const (
	LoopbackNone Loopback = iota
	LoopbackInternal
	LoopbackDiu
	LoopbackSiu
)

// legalResetForLoopback implements spec.md §4.6bis: "Loopback modes ...
// gate which reset operations are legal; illegal combinations fail
// UnsupportedLoopback at startDma, not silently at runtime." DIU/SIU
// resets only make sense when the corresponding hardware stage is in
// the datapath.
func legalResetForLoopback(level ResetLevel, lb Loopback) bool {
	switch lb {
	case LoopbackSiu:
		return true // SIU loopback exercises the full chain, any level legal
	case LoopbackDiu:
		return level <= ResetRorcDiu
	case LoopbackInternal, LoopbackNone:
		return level <= ResetRorc
	default:
		return false
	}
}

// CRORC-specific register offsets, representative of the command/status
// and free-FIFO/ready-FIFO window a real C-RORC firmware exposes,
// for the same "minimal layout fact" reason given in cru.go.
const (
	crorcOffsetCommand    = 0x40
	crorcOffsetStatus     = 0x44
	crorcOffsetDiuVersion = 0x48
	crorcOffsetLinkStatus = 0x4c
	crorcOffsetDataGenCtl = 0x50
	crorcOffsetTrigger    = 0x54

	crorcFreeFifoBase   = 0x1000
	crorcFreeFifoStride = 0x10
	crorcReadyFifoBase  = 0x2000
	crorcReadyFifoStride = 0x8

	// dataTransferStatusWordTag is the lower-byte tag isPageArrived
	// matches against a Ready-FIFO status word (spec.md §4.6bis).
	dataTransferStatusWordTag = 0xe0
)

// CRORC implements Accessor plus the C-RORC family's command/response
// operations (spec.md §4.5, §4.6bis).
type CRORC struct {
	space *register.Space
	cal   romio.Calibration
}

// NewCRORC wraps an identification-BAR Space as a CRORC accessor. cal is
// the loop-budget calibration used to time out command/response waits
// without further wall-clock syscalls (internal/romio).
func NewCRORC(space *register.Space, cal romio.Calibration) *CRORC {
	return &CRORC{space: space, cal: cal}
}

func (c *CRORC) Type() cardtype.CardType { return cardtype.CRORC }
func (c *CRORC) Index() int              { return c.space.Index() }
func (c *CRORC) Size() int               { return c.space.Size() }

func (c *CRORC) Serial() (uint32, bool, error) {
	if err := checkBar(c.space, CRORCBarSerial); err != nil {
		return 0, false, err
	}
	v, err := c.space.Read32(CRORCOffsetSerial)
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}

func (c *CRORC) Temperature() (float64, bool, error) {
	if err := checkBar(c.space, CRORCBarSerial); err != nil {
		return 0, false, err
	}
	raw, err := c.space.Read32(CRORCOffsetTemp)
	if err != nil {
		return 0, false, err
	}
	v, ok := decodeTemperature(raw)
	return v, ok, nil
}

func (c *CRORC) FirmwareInfo() (uint32, bool, error) {
	lo, err := c.space.Read32(CRORCOffsetFwLo)
	if err != nil {
		return 0, false, err
	}
	return lo, true, nil
}

func (c *CRORC) CardID() (string, bool, error) {
	hi, err := c.space.Read32(CRORCOffsetFwHi)
	if err != nil {
		return "", false, err
	}
	lo, err := c.space.Read32(CRORCOffsetFwLo)
	if err != nil {
		return "", false, err
	}
	return cardIDString(hi, lo), true, nil
}

// waitForStatusBit polls the status register until bit is set, spending
// at most budget loop iterations (internal/romio), failing
// CommandTimeout otherwise.
func (c *CRORC) waitForStatusBit(bit uint, timeoutBudget uint64) error {
	found, err := romio.Spin(timeoutBudget, func() (bool, error) {
		v, err := c.space.Read32(crorcOffsetStatus)
		if err != nil {
			return false, err
		}
		return v&(1<<bit) != 0, nil
	})
	if err != nil {
		return err
	}
	if !found {
		return rocerr.New(rocerr.CommandTimeout, "CRORC command timed out waiting for status bit",
			rocerr.Fields{"bit": bit})
	}
	return nil
}

// ArmDdl resets the DDL datapath at the given reset level, gated by the
// current loopback mode (spec.md §4.6bis). Between SIU and DIU resets a
// 100ms settle is mandatory; modeled here as a loop-budget spin rather
// than a wall-clock sleep so it composes with the calibrated timeout
// discipline the rest of the channel uses.
func (c *CRORC) ArmDdl(level ResetLevel, lb Loopback) error {
	if !legalResetForLoopback(level, lb) {
		return rocerr.New(rocerr.UnsupportedLoopback,
			"reset level is not legal for the configured loopback mode",
			rocerr.Fields{"level": level, "loopback": lb})
	}

	resetMask := uint32(level)
	if err := c.space.Write32(crorcOffsetCommand, resetMask); err != nil {
		return err
	}

	if level >= ResetRorcDiu {
		if err := c.waitForStatusBit(0, c.cal.LoopBudget(1_000_000)); err != nil {
			return err
		}
	}
	if level == ResetRorcDiuSiu {
		// 100ms settle between SIU and DIU resets.
		romio.Spin(c.cal.LoopBudget(100_000_000), func() (bool, error) { return false, nil })
		if err := c.waitForStatusBit(1, c.cal.LoopBudget(1_000_000)); err != nil {
			return err
		}
	}
	return nil
}

// InitDiuVersion reads back the DIU firmware version register.
func (c *CRORC) InitDiuVersion() (uint32, error) {
	return c.space.Read32(crorcOffsetDiuVersion)
}

// CheckLink fails LinkNotOn if the link-status register does not report
// link-up.
func (c *CRORC) CheckLink() error {
	v, err := c.space.Read32(crorcOffsetLinkStatus)
	if err != nil {
		return err
	}
	if v&1 == 0 {
		return rocerr.New(rocerr.LinkNotOn, "DDL link is not on", nil)
	}
	return nil
}

// commandResponse issues a command word and waits for acceptance,
// failing CommandNotAccepted on timeout and IllegalCommand if firmware
// echoes the illegal-command status bit.
func (c *CRORC) commandResponse(cmd uint32) error {
	if err := c.space.Write32(crorcOffsetCommand, cmd); err != nil {
		return err
	}
	found, err := romio.Spin(c.cal.LoopBudget(1_000_000), func() (bool, error) {
		v, err := c.space.Read32(crorcOffsetStatus)
		if err != nil {
			return false, err
		}
		if v&(1<<2) != 0 {
			return false, rocerr.New(rocerr.IllegalCommand, "firmware rejected command as illegal",
				rocerr.Fields{"command": cmd})
		}
		return v&1 != 0, nil
	})
	if err != nil {
		return err
	}
	if !found {
		return rocerr.New(rocerr.CommandNotAccepted, "command was not accepted before timeout",
			rocerr.Fields{"command": cmd})
	}
	return nil
}

// SiuCommand sends a command to the Source Interface Unit.
func (c *CRORC) SiuCommand(cmd int) error { return c.commandResponse(uint32(cmd) | 1<<24) }

// DiuCommand sends a command to the Destination Interface Unit.
func (c *CRORC) DiuCommand(cmd int) error { return c.commandResponse(uint32(cmd) | 1<<25) }

// ArmDataGenerator configures and arms the on-card data generator.
func (c *CRORC) ArmDataGenerator(initValue uint32, pattern DataGeneratorPattern, sizeWords int, seed uint32) error {
	word, err := encodeDataGeneratorCtl(false, pattern, sizeWords*4, false)
	if err != nil {
		return err
	}
	if err := c.space.Write32(crorcOffsetDataGenCtl, word); err != nil {
		return err
	}
	if err := c.space.Write32(crorcOffsetDataGenCtl+4, initValue); err != nil {
		return err
	}
	return c.space.Write32(crorcOffsetDataGenCtl+8, seed)
}

// StartTrigger starts the trigger sequencer.
func (c *CRORC) StartTrigger() error { return c.space.Write32(crorcOffsetTrigger, 1) }

// StopTrigger stops the trigger sequencer.
func (c *CRORC) StopTrigger() error { return c.space.Write32(crorcOffsetTrigger, 0) }

func freeFifoAddrHiOffset(index int) int { return crorcFreeFifoBase + index*crorcFreeFifoStride }
func freeFifoAddrLoOffset(index int) int { return crorcFreeFifoBase + index*crorcFreeFifoStride + 4 }
func freeFifoSizeOffset(index int) int   { return crorcFreeFifoBase + index*crorcFreeFifoStride + 8 }

// PushFreeFifoPage pushes a single page descriptor into the card's
// free-FIFO at the given ring index.
func (c *CRORC) PushFreeFifoPage(index int, busAddress uint64, sizeWords int) error {
	if err := c.space.Write32(freeFifoAddrHiOffset(index), uint32(busAddress>>32)); err != nil {
		return err
	}
	if err := c.space.Write32(freeFifoAddrLoOffset(index), uint32(busAddress)); err != nil {
		return err
	}
	return c.space.Write32(freeFifoSizeOffset(index), uint32(sizeWords))
}

func readyFifoStatusOffset(ringIndex int) int {
	return crorcReadyFifoBase + ringIndex*crorcReadyFifoStride
}
func readyFifoLengthOffset(ringIndex int) int {
	return crorcReadyFifoBase + ringIndex*crorcReadyFifoStride + 4
}

// IsPageArrived checks the Ready-FIFO entry at ringIndex. It returns
// (length, true, nil) once the whole event has arrived (spec.md
// §4.6bis: lower byte matches the data-transfer-status-word tag and bit
// 31 clear); (0, false, nil) if not yet arrived; and a DataArrivalError
// carrying status/length/ring index if bit 31 (error) is set.
func (c *CRORC) IsPageArrived(ringIndex int) (length uint32, arrived bool, err error) {
	status, err := c.space.Read32(readyFifoStatusOffset(ringIndex))
	if err != nil {
		return 0, false, err
	}
	length, err = c.space.Read32(readyFifoLengthOffset(ringIndex))
	if err != nil {
		return 0, false, err
	}

	if status&(1<<31) != 0 {
		return 0, false, rocerr.New(rocerr.DataArrivalError, "ready-FIFO entry reported an error",
			rocerr.Fields{"status": status, "length": length, "ringIndex": ringIndex})
	}
	if status&0xff == dataTransferStatusWordTag {
		return length, true, nil
	}
	return 0, false, nil
}

// SendRdyRx sends the RDYRX command to the front-end electronics and
// waits for its reply, failing RdyRxRejected if the FEE refuses.
func (c *CRORC) SendRdyRx() error {
	if err := c.space.Write32(crorcOffsetCommand, 1<<26); err != nil {
		return err
	}
	found, err := romio.Spin(c.cal.LoopBudget(1_000_000), func() (bool, error) {
		v, err := c.space.Read32(crorcOffsetStatus)
		if err != nil {
			return false, err
		}
		if v&(1<<3) != 0 {
			return false, rocerr.New(rocerr.RdyRxRejected, "front-end electronics rejected RDYRX", nil)
		}
		return v&(1<<4) != 0, nil
	})
	if err != nil {
		return err
	}
	if !found {
		return rocerr.New(rocerr.CommandTimeout, "RDYRX reply timed out", nil)
	}
	return nil
}
