package bar

import (
	"testing"

	"github.com/AliceO2Group/readoutcard/internal/register"
	"github.com/AliceO2Group/readoutcard/internal/rocerr"
	"github.com/AliceO2Group/readoutcard/internal/romio"
)

func newTestSpace(t *testing.T, barIndex, size int) *register.Space {
	t.Helper()
	return register.New(barIndex, make([]byte, size))
}

func TestDecodeTemperature(t *testing.T) {
	v, ok := decodeTemperature(0)
	if ok {
		t.Fatalf("raw=0 should report ok=false, got %v", v)
	}

	v, ok = decodeTemperature(1024)
	if !ok {
		t.Fatal("expected ok=true for nonzero raw")
	}
	want := 693.0 - 265.0
	if v != want {
		t.Errorf("decodeTemperature(1024) = %v, want %v", v, want)
	}
}

func TestEncodeDataGeneratorCtl(t *testing.T) {
	word, err := encodeDataGeneratorCtl(true, PatternIncremental, 64, false)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if word&1 == 0 {
		t.Error("enable bit not set")
	}
	if (word>>1)&0b11 != 0b01 {
		t.Error("pattern bits wrong for incremental")
	}
	if (word>>8)&0xff != 1 { // 64/32 - 1 = 1
		t.Errorf("size field = %d, want 1", (word>>8)&0xff)
	}
}

func TestEncodeDataGeneratorCtlRejectsBadSize(t *testing.T) {
	_, err := encodeDataGeneratorCtl(true, PatternIncremental, 33, false)
	if !rocerr.HasKind(err, rocerr.UnsupportedGenSize) {
		t.Fatalf("err = %v, want UnsupportedGenSize", err)
	}
	_, err = encodeDataGeneratorCtl(true, PatternIncremental, 8224, false)
	if !rocerr.HasKind(err, rocerr.UnsupportedGenSize) {
		t.Fatalf("err = %v, want UnsupportedGenSize", err)
	}
}

func TestEncodeDataGeneratorCtlRejectsBadPattern(t *testing.T) {
	_, err := encodeDataGeneratorCtl(true, DataGeneratorPattern(99), 64, false)
	if !rocerr.HasKind(err, rocerr.UnsupportedGenPattern) {
		t.Fatalf("err = %v, want UnsupportedGenPattern", err)
	}
}

func TestCRUSerialInvalidSentinel(t *testing.T) {
	space := newTestSpace(t, CRUBarSerial, 0x1000)
	cru := NewCRU(space, romio.Calibration{})
	if err := space.Write32(CRUOffsetSerial, InvalidCRUSerial); err != nil {
		t.Fatal(err)
	}
	_, _, err := cru.Serial()
	if !rocerr.HasKind(err, rocerr.InvalidSerial) {
		t.Fatalf("err = %v, want InvalidSerial", err)
	}
}

func TestCRUWrongBarForOperation(t *testing.T) {
	space := newTestSpace(t, 0, 0x1000)
	cru := NewCRU(space, romio.Calibration{})
	_, _, err := cru.Serial()
	if !rocerr.HasKind(err, rocerr.WrongBarForOperation) {
		t.Fatalf("err = %v, want WrongBarForOperation", err)
	}
}

func TestCRUPushSuperpageDescriptorAndCount(t *testing.T) {
	space := newTestSpace(t, CRUBarSerial, 0x4000)
	cru := NewCRU(space, romio.Calibration{})
	if err := cru.PushSuperpageDescriptor(0, 64, 0xdeadbeefcafe); err != nil {
		t.Fatalf("PushSuperpageDescriptor: %v", err)
	}

	hi, _ := space.Read32(linkAddrHiOffset(0))
	lo, _ := space.Read32(linkAddrLoOffset(0))
	if hi != uint32(0xdeadbeefcafe>>32) || lo != uint32(0xdeadbeefcafe) {
		t.Errorf("bus address not split correctly: hi=%x lo=%x", hi, lo)
	}

	if err := space.Write32(linkSuperpageCountOffset(0), 7); err != nil {
		t.Fatal(err)
	}
	count, err := cru.GetSuperpageCount(0)
	if err != nil {
		t.Fatalf("GetSuperpageCount: %v", err)
	}
	if count != 7 {
		t.Errorf("GetSuperpageCount = %d, want 7", count)
	}
}

func TestLegalResetForLoopback(t *testing.T) {
	if !legalResetForLoopback(ResetRorc, LoopbackNone) {
		t.Error("ResetRorc should be legal under LoopbackNone")
	}
	if legalResetForLoopback(ResetRorcDiuSiu, LoopbackInternal) {
		t.Error("full reset should not be legal under internal loopback")
	}
	if !legalResetForLoopback(ResetRorcDiuSiu, LoopbackSiu) {
		t.Error("full reset should be legal under SIU loopback")
	}
}

func TestCRORCIsPageArrived(t *testing.T) {
	space := newTestSpace(t, CRORCBarSerial, 0x4000)
	crorc := &CRORC{space: space}

	// Not yet arrived.
	_, arrived, err := crorc.IsPageArrived(0)
	if err != nil || arrived {
		t.Fatalf("expected not arrived, got arrived=%v err=%v", arrived, err)
	}

	// Arrived: status lower byte matches tag, bit 31 clear.
	if err := space.Write32(readyFifoStatusOffset(0), dataTransferStatusWordTag); err != nil {
		t.Fatal(err)
	}
	if err := space.Write32(readyFifoLengthOffset(0), 512); err != nil {
		t.Fatal(err)
	}
	length, arrived, err := crorc.IsPageArrived(0)
	if err != nil {
		t.Fatalf("IsPageArrived: %v", err)
	}
	if !arrived || length != 512 {
		t.Errorf("arrived=%v length=%d, want true/512", arrived, length)
	}

	// Error bit set.
	if err := space.Write32(readyFifoStatusOffset(0), 1<<31); err != nil {
		t.Fatal(err)
	}
	_, _, err = crorc.IsPageArrived(0)
	if !rocerr.HasKind(err, rocerr.DataArrivalError) {
		t.Fatalf("err = %v, want DataArrivalError", err)
	}
}
