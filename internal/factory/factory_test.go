package factory

import (
	"testing"

	"github.com/AliceO2Group/readoutcard/internal/cardtype"
	"github.com/AliceO2Group/readoutcard/internal/dmamem"
	"github.com/AliceO2Group/readoutcard/internal/rocerr"
)

func newParams(t *testing.T) *Parameters {
	t.Helper()
	buf := make([]byte, dmamem.PageSizeCRU*8)
	return NewParameters().WithDmaBuffer(buf)
}

func TestValidateRejectsWrongPageSizeOnCRU(t *testing.T) {
	p := newParams(t).WithDmaPageSize(4096)
	err := p.Validate(cardtype.CRU)
	if !rocerr.HasKind(err, rocerr.ParameterNotApplicable) {
		t.Fatalf("err = %v, want ParameterNotApplicable", err)
	}
}

func TestValidateRejectsLinkMaskOnCRORC(t *testing.T) {
	p := newParams(t).WithLinkMask(0x1)
	p.DmaPageSize = 4096
	err := p.Validate(cardtype.CRORC)
	if !rocerr.HasKind(err, rocerr.ParameterNotApplicable) {
		t.Fatalf("err = %v, want ParameterNotApplicable", err)
	}
}

func TestValidateAcceptsWellFormedCRUParams(t *testing.T) {
	p := newParams(t).WithLinkMask(0x3)
	if err := p.Validate(cardtype.CRU); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestOpenDummyLifecycle(t *testing.T) {
	p := newParams(t)
	ch, err := OpenDummy(p)
	if err != nil {
		t.Fatalf("OpenDummy: %v", err)
	}
	if ch.Type != cardtype.Dummy {
		t.Fatalf("Type = %v, want Dummy", ch.Type)
	}
	if ch.Engine.Running() {
		t.Fatal("engine should not be running before StartDma")
	}
	if err := ch.Engine.StartDma(); err != nil {
		t.Fatalf("StartDma: %v", err)
	}
	if !ch.Engine.Running() {
		t.Fatal("engine should be running after StartDma")
	}
	if err := ch.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestEnabledLinkIDs(t *testing.T) {
	ids := enabledLinkIDs(0b1011)
	want := []int{0, 1, 3}
	if len(ids) != len(want) {
		t.Fatalf("enabledLinkIDs = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("enabledLinkIDs = %v, want %v", ids, want)
		}
	}
}
