package util

import "testing"

func TestBytesToHex(t *testing.T) {
	got := BytesToHex([]byte{0x01, 0x02, 0xff})
	want := "01 02 ff"
	if got != want {
		t.Errorf("BytesToHex() = %q, want %q", got, want)
	}
}

func TestU32ToLEBytes(t *testing.T) {
	got := U32ToLEBytes(0x12345678)
	want := []byte{0x78, 0x56, 0x34, 0x12}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("U32ToLEBytes(0x12345678)[%d] = 0x%02x, want 0x%02x", i, got[i], want[i])
		}
	}
}
