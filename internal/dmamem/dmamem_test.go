package dmamem

import (
	"testing"

	"github.com/AliceO2Group/readoutcard/internal/rocerr"
)

func identityTranslate(base uintptr) func(uintptr) uint64 {
	return func(addr uintptr) uint64 { return uint64(addr - base) }
}

func TestNewRejectsUnalignedSize(t *testing.T) {
	_, err := New(1, 0x1000, 3*PageSizeCRU+1, PageSizeCRU, identityTranslate(0x1000), nil)
	if !rocerr.HasKind(err, rocerr.BufferUnaligned) {
		t.Fatalf("expected BufferUnaligned, got %v", err)
	}
}

func TestNewRejectsUndersizedBuffer(t *testing.T) {
	_, err := New(1, 0x1000, PageSizeCRU/2, PageSizeCRU, identityTranslate(0x1000), nil)
	if !rocerr.HasKind(err, rocerr.BufferTooSmall) {
		t.Fatalf("expected BufferTooSmall, got %v", err)
	}
}

func TestTranslateWalksSegments(t *testing.T) {
	base := uintptr(0x4000)
	m, err := New(7, base, 4*PageSizeCRU, PageSizeCRU, identityTranslate(base), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	bus, err := m.Translate(2*PageSizeCRU + 10)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if bus != 2*PageSizeCRU+10 {
		t.Errorf("Translate() = %d, want %d", bus, 2*PageSizeCRU+10)
	}
}

func TestTranslateOutOfRange(t *testing.T) {
	m, err := New(7, 0x4000, 2*PageSizeCRU, PageSizeCRU, identityTranslate(0x4000), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := m.Translate(2 * PageSizeCRU); !rocerr.HasKind(err, rocerr.OffsetOutOfRange) {
		t.Fatalf("expected OffsetOutOfRange, got %v", err)
	}
}

func TestDeregisterIsIdempotent(t *testing.T) {
	calls := 0
	m, err := New(7, 0x4000, PageSizeCRU, PageSizeCRU, identityTranslate(0x4000), func() error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := m.Deregister(); err != nil {
		t.Fatalf("Deregister: %v", err)
	}
	if err := m.Deregister(); err != nil {
		t.Fatalf("second Deregister: %v", err)
	}
	if calls != 1 {
		t.Errorf("unpin called %d times, want 1", calls)
	}
}
