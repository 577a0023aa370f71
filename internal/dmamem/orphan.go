package dmamem

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/AliceO2Group/readoutcard/internal/rlog"
)

// RegistrationDir holds the marker files written by RegisterOrphanMarker,
// named "<serial>_<channel>_<pid>.reg", for orphan cleanup to find. The
// cleanup sweep only deletes marker files; it issues no kernel-side free
// of the pinned memory itself.
var RegistrationDir = "/var/run/readoutcard/dma"

// setRegistrationDirForTest points RegistrationDir at a temp directory;
// used only by orphan_test.go to avoid touching the real filesystem path.
func setRegistrationDirForTest(dir string) { RegistrationDir = dir }

// RegisterOrphanMarker writes the marker file a later CleanupOrphans
// sweep uses to recognize this process's buffer. Callers ignore a
// failure to write the marker (best-effort bookkeeping, not required
// for DMA correctness); the real pin/unpin path is unaffected.
func RegisterOrphanMarker(serial uint32, channel, pid int) error {
	if err := os.MkdirAll(RegistrationDir, 0755); err != nil {
		return err
	}
	path := markerPath(serial, channel, pid)
	return os.WriteFile(path, nil, 0644)
}

// RemoveOrphanMarker deletes this process's marker file, so a clean
// shutdown does not look like an orphan to a later cleanup sweep.
// internal/factory's Channel.Close does not call it (nor does Open call
// RegisterOrphanMarker).
func RemoveOrphanMarker(serial uint32, channel, pid int) error {
	err := os.Remove(markerPath(serial, channel, pid))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func markerPath(serial uint32, channel, pid int) string {
	return filepath.Join(RegistrationDir, fmt.Sprintf("%d_%d_%d.reg", serial, channel, pid))
}

// processAlive reports whether pid has a live entry under /proc. On a
// platform without /proc (not Linux), it conservatively returns true so
// CleanupOrphans never frees a buffer it cannot actually verify as dead.
func processAlive(pid int) bool {
	if _, err := os.Stat("/proc/self"); err != nil {
		return true
	}
	_, err := os.Stat(filepath.Join("/proc", strconv.Itoa(pid)))
	if os.IsNotExist(err) {
		return false
	}
	return true
}

// CleanupOrphans scans RegistrationDir and removes the marker for every
// entry whose owning pid is no longer alive, returning how many were
// reclaimed. It never touches a marker belonging to a live process.
func CleanupOrphans() (int, error) {
	entries, err := os.ReadDir(RegistrationDir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	reclaimed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		serial, channel, pid, ok := parseMarkerName(entry.Name())
		if !ok {
			continue
		}
		if processAlive(pid) {
			continue
		}

		path := filepath.Join(RegistrationDir, entry.Name())
		if err := os.Remove(path); err != nil {
			rlog.Base().WithError(err).Warnf("cleanup: failed to remove orphan marker for serial=%d channel=%d pid=%d", serial, channel, pid)
			continue
		}
		rlog.Base().Infof("cleanup: reclaimed orphaned DMA buffer registration serial=%d channel=%d (pid %d no longer alive)", serial, channel, pid)
		reclaimed++
	}
	return reclaimed, nil
}

func parseMarkerName(name string) (serial uint32, channel, pid int, ok bool) {
	base := strings.TrimSuffix(name, ".reg")
	if base == name {
		return 0, 0, 0, false
	}
	parts := strings.Split(base, "_")
	if len(parts) != 3 {
		return 0, 0, 0, false
	}
	s, err1 := strconv.ParseUint(parts[0], 10, 32)
	c, err2 := strconv.Atoi(parts[1])
	p, err3 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil || err3 != nil {
		return 0, 0, 0, false
	}
	return uint32(s), c, p, true
}
