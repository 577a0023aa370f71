package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/AliceO2Group/readoutcard/internal/pcidev"
)

// writeFile writes a single fake sysfs attribute file.
func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

// createFakeSysfs builds a minimal fake sysfs tree with one CRU-identified
// device (vendor 0x10dc, device 0x0002, see internal/cardtype.table).
func createFakeSysfs(t *testing.T) string {
	t.Helper()
	base := t.TempDir()

	devDir := filepath.Join(base, "0000:03:00.0")
	if err := os.MkdirAll(devDir, 0755); err != nil {
		t.Fatal(err)
	}

	writeFile(t, devDir, "vendor", "0x10dc\n")
	writeFile(t, devDir, "device", "0x0002\n")
	writeFile(t, devDir, "numa_node", "0\n")

	return base
}

func TestSysfsScannerScan(t *testing.T) {
	base := createFakeSysfs(t)
	s := newSysfsScannerWithPath(base)

	devices, err := s.scan()
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(devices) != 1 {
		t.Fatalf("scan returned %d devices, want 1", len(devices))
	}
	if devices[0].vendor != 0x10dc || devices[0].device != 0x0002 {
		t.Errorf("scan returned vendor=0x%x device=0x%x, want 0x10dc/0x0002",
			devices[0].vendor, devices[0].device)
	}
	if devices[0].numaNode != 0 {
		t.Errorf("numaNode = %d, want 0", devices[0].numaNode)
	}
}

func TestSysfsScannerSkipsUnreadableEntries(t *testing.T) {
	base := t.TempDir()
	// A directory that looks like a BDF but has no vendor/device files.
	if err := os.MkdirAll(filepath.Join(base, "0000:ff:00.0"), 0755); err != nil {
		t.Fatal(err)
	}
	// A directory that is not a valid BDF at all.
	if err := os.MkdirAll(filepath.Join(base, "not-a-bdf"), 0755); err != nil {
		t.Fatal(err)
	}

	s := newSysfsScannerWithPath(base)
	devices, err := s.scan()
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(devices) != 0 {
		t.Fatalf("scan returned %d devices, want 0", len(devices))
	}
}

func TestSysfsScannerReadsLinkInfo(t *testing.T) {
	base := createFakeSysfs(t)
	devDir := filepath.Join(base, "0000:03:00.0")

	cfg := make([]byte, pcidev.ConfigSpaceLegacySize)
	cfg[0x06] = 1 << 4 // status: has capability list
	cfg[0x34] = 0x40   // capability pointer
	cfg[0x40] = 0x10   // PCI Express capability id
	cfg[0x41] = 0x00   // end of list
	linkCap := uint32(2) | uint32(16)<<4
	cfg[0x4c] = byte(linkCap)
	cfg[0x4d] = byte(linkCap >> 8)
	cfg[0x4e] = byte(linkCap >> 16)
	cfg[0x4f] = byte(linkCap >> 24)
	if err := os.WriteFile(filepath.Join(devDir, "config"), cfg, 0644); err != nil {
		t.Fatal(err)
	}

	s := newSysfsScannerWithPath(base)
	devices, err := s.scan()
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(devices) != 1 {
		t.Fatalf("scan returned %d devices, want 1", len(devices))
	}
	if devices[0].linkSpeed != 2 || devices[0].linkWidth != 16 {
		t.Errorf("linkSpeed=%d linkWidth=%d, want 2/16", devices[0].linkSpeed, devices[0].linkWidth)
	}
}

func TestIdentityMatches(t *testing.T) {
	candidate := Identity{Serial: 1041, Endpoint: 0, HasSE: true, Index: 3, HasIdx: true}

	if !identityMatches(Identity{Serial: 1041, Endpoint: 0, HasSE: true}, candidate) {
		t.Error("serial+endpoint query should match")
	}
	if identityMatches(Identity{Serial: 1041, Endpoint: 1, HasSE: true}, candidate) {
		t.Error("mismatched endpoint should not match")
	}
	if !identityMatches(Identity{Index: 3, HasIdx: true}, candidate) {
		t.Error("index query should match")
	}
}
