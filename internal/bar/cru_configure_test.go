package bar

import (
	"testing"

	"github.com/AliceO2Group/readoutcard/internal/register"
	"github.com/AliceO2Group/readoutcard/internal/romio"
)

// preArmCalibration sets both the granted and completion bits on a
// calibration status register up front, so Configure's calibration
// steps (modeled on Common::atxcal0/txcal0/rxcal0's request/poll/
// enable/poll sequence) succeed on the first poll instead of needing
// reactive firmware.
func preArmCalibration(t *testing.T, space *register.Space, statusOffset int) {
	t.Helper()
	if err := space.Write32(statusOffset, 0x3); err != nil {
		t.Fatal(err)
	}
}

func TestCRUConfigureAppliesFullBringup(t *testing.T) {
	space := newTestSpace(t, CRUBarSerial, 0x4000)
	cal, err := romio.Calibrate(space, CRUOffsetTemp)
	if err != nil {
		t.Fatalf("Calibrate: %v", err)
	}
	cru := NewCRU(space, cal)

	preArmCalibration(t, space, ttcCalStatusOffset)
	preArmCalibration(t, space, gbtCalStatusOffset)

	opts := BringupOptions{
		Clock:        ClockTTC,
		DatapathMode: DatapathModePacket,
		GbtMode:      GbtModeGBT,
		GbtMux:       GbtMuxTTC,
		CruID:        0x42,
	}
	if err := cru.Configure(0b11, opts); err != nil {
		t.Fatalf("Configure: %v", err)
	}

	mask, err := space.Read32(CRUOffsetLinkMask)
	if err != nil {
		t.Fatal(err)
	}
	if mask != 0b11 {
		t.Errorf("link mask = %#b, want 0b11", mask)
	}

	enableWord, err := space.Read32(dwrapperEnableBase)
	if err != nil {
		t.Fatal(err)
	}
	if enableWord != 0b11 {
		t.Errorf("wrapper 0 link-enable mask = %#b, want 0b11", enableWord)
	}

	modeWord, err := space.Read32(dwrapperModeBase)
	if err != nil {
		t.Fatal(err)
	}
	if modeWord&(1<<31) == 0 {
		t.Error("link 0 datapath mode bit not set for Packet mode")
	}

	feeWord, err := space.Read32(feeIDBase)
	if err != nil {
		t.Fatal(err)
	}
	if feeWord != 0x42 {
		t.Errorf("link 0 fee id = %#x, want 0x42", feeWord)
	}

	clockWord, err := space.Read32(clockSourceOffset)
	if err != nil {
		t.Fatal(err)
	}
	if ClockSource(clockWord) != ClockTTC {
		t.Errorf("clock source = %v, want ClockTTC", clockWord)
	}
}

func TestCRUConfigureFailsWhenGbtCalibrationNeverGrants(t *testing.T) {
	space := newTestSpace(t, CRUBarSerial, 0x4000)
	cal, err := romio.Calibrate(space, CRUOffsetTemp)
	if err != nil {
		t.Fatalf("Calibrate: %v", err)
	}
	cru := NewCRU(space, cal)
	preArmCalibration(t, space, ttcCalStatusOffset)
	// GBT calibration status left at 0: never grants.

	err = cru.Configure(0b1, BringupOptions{Clock: ClockTTC})
	if err == nil {
		t.Fatal("Configure: want error when GBT calibration unit never grants access")
	}
}

func TestCRUMuxForPrefersPerLinkOverride(t *testing.T) {
	opts := BringupOptions{
		GbtMux:    GbtMuxTTC,
		GbtMuxMap: map[int]GbtMux{3: GbtMuxDDG},
	}
	if got := opts.muxFor(3); got != GbtMuxDDG {
		t.Errorf("muxFor(3) = %v, want GbtMuxDDG", got)
	}
	if got := opts.muxFor(0); got != GbtMuxTTC {
		t.Errorf("muxFor(0) = %v, want GbtMuxTTC (card default)", got)
	}
}
