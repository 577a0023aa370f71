package dmamem

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

func withRegistrationDir(t *testing.T, dir string) func() {
	t.Helper()
	old := RegistrationDir
	setRegistrationDirForTest(dir)
	return func() { setRegistrationDirForTest(old) }
}

func TestCleanupOrphansReclaimsDeadPid(t *testing.T) {
	dir := t.TempDir()
	restore := withRegistrationDir(t, dir)
	defer restore()

	// A pid that is certainly not alive.
	deadMarker := filepath.Join(dir, "1041_0_999999999.reg")
	if err := os.WriteFile(deadMarker, nil, 0644); err != nil {
		t.Fatal(err)
	}
	// A marker for this test process's own pid, which is alive.
	liveMarker := filepath.Join(dir, "1041_1_"+strconv.Itoa(os.Getpid())+".reg")
	if err := os.WriteFile(liveMarker, nil, 0644); err != nil {
		t.Fatal(err)
	}

	n, err := CleanupOrphans()
	if err != nil {
		t.Fatalf("CleanupOrphans: %v", err)
	}
	if n != 1 {
		t.Fatalf("CleanupOrphans reclaimed %d, want 1", n)
	}
	if _, err := os.Stat(deadMarker); !os.IsNotExist(err) {
		t.Error("dead process marker should have been removed")
	}
	if _, err := os.Stat(liveMarker); err != nil {
		t.Error("live process marker should not have been removed")
	}
}

func TestCleanupOrphansNoDirectory(t *testing.T) {
	restore := withRegistrationDir(t, filepath.Join(t.TempDir(), "does-not-exist"))
	defer restore()

	n, err := CleanupOrphans()
	if err != nil {
		t.Fatalf("CleanupOrphans: %v", err)
	}
	if n != 0 {
		t.Fatalf("CleanupOrphans = %d, want 0", n)
	}
}

func TestParseMarkerName(t *testing.T) {
	serial, channel, pid, ok := parseMarkerName("1041_2_555.reg")
	if !ok || serial != 1041 || channel != 2 || pid != 555 {
		t.Fatalf("parseMarkerName = %d,%d,%d,%v, want 1041,2,555,true", serial, channel, pid, ok)
	}
	if _, _, _, ok := parseMarkerName("not-a-marker.txt"); ok {
		t.Error("expected ok=false for non-marker filename")
	}
}
