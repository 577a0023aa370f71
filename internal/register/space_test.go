package register

import (
	"testing"

	"github.com/AliceO2Group/readoutcard/internal/rocerr"
)

func newTestSpace(size int) *Space {
	return New(2, make([]byte, size))
}

func TestReadWrite32RoundTrip(t *testing.T) {
	s := newTestSpace(64)

	if err := s.Write32(0x10, 0xdeadbeef); err != nil {
		t.Fatalf("Write32: %v", err)
	}
	got, err := s.Read32(0x10)
	if err != nil {
		t.Fatalf("Read32: %v", err)
	}
	if got != 0xdeadbeef {
		t.Errorf("Read32 = 0x%x, want 0xdeadbeef", got)
	}
}

func TestUnalignedOffsetRejected(t *testing.T) {
	s := newTestSpace(64)

	_, err := s.Read32(0x11)
	if !rocerr.HasKind(err, rocerr.InvalidRegisterOffset) {
		t.Fatalf("Read32(0x11) err = %v, want InvalidRegisterOffset", err)
	}
}

func TestOutOfRangeOffsetRejected(t *testing.T) {
	s := newTestSpace(64)

	_, err := s.Read32(64)
	if !rocerr.HasKind(err, rocerr.BarOutOfRange) {
		t.Fatalf("Read32(64) err = %v, want BarOutOfRange", err)
	}

	err = s.Write32(100, 1)
	if !rocerr.HasKind(err, rocerr.BarOutOfRange) {
		t.Fatalf("Write32(100) err = %v, want BarOutOfRange", err)
	}
}

func TestModifyIsolatesOtherBits(t *testing.T) {
	s := newTestSpace(64)

	if err := s.Write32(0x20, 0xffffffff); err != nil {
		t.Fatalf("Write32: %v", err)
	}
	if err := s.Modify(0x20, 4, 4, 0x0); err != nil {
		t.Fatalf("Modify: %v", err)
	}
	got, _ := s.Read32(0x20)
	want := uint32(0xffffff0f)
	if got != want {
		t.Errorf("Modify left value 0x%x, want 0x%x", got, want)
	}
}

func TestModifyDoesNotTouchOtherOffsets(t *testing.T) {
	s := newTestSpace(64)

	if err := s.Write32(0x0, 0x12345678); err != nil {
		t.Fatalf("Write32: %v", err)
	}
	if err := s.Write32(0x4, 0xaabbccdd); err != nil {
		t.Fatalf("Write32: %v", err)
	}
	if err := s.Modify(0x0, 0, 8, 0xff); err != nil {
		t.Fatalf("Modify: %v", err)
	}

	other, _ := s.Read32(0x4)
	if other != 0xaabbccdd {
		t.Errorf("Modify at offset 0x0 disturbed offset 0x4: got 0x%x", other)
	}
}

func TestModifyRejectsOversizeValue(t *testing.T) {
	s := newTestSpace(64)

	err := s.Modify(0x0, 0, 4, 0x10) // 0x10 needs 5 bits, width is 4
	if !rocerr.HasKind(err, rocerr.InvalidRegisterOffset) {
		t.Fatalf("Modify oversize value err = %v, want InvalidRegisterOffset", err)
	}
}

func TestModifyRejectsOversizeRange(t *testing.T) {
	s := newTestSpace(64)

	err := s.Modify(0x0, 30, 4, 0x1)
	if !rocerr.HasKind(err, rocerr.InvalidRegisterOffset) {
		t.Fatalf("Modify oversize range err = %v, want InvalidRegisterOffset", err)
	}
}
