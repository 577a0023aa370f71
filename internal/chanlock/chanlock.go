// Package chanlock implements ChannelLock (spec.md §4.4): non-blocking
// interprocess exclusion for a single channel, keyed deterministically
// from a card identity and channel number so two unrelated processes
// addressing the same channel contend on the same lock file.
package chanlock

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/AliceO2Group/readoutcard/internal/rocerr"
)

// lockDir is where channel lock files are created. /var/lock is the
// conventional location for advisory locks on Linux; readoutcard falls
// back to the OS temp dir if it does not exist (New checks only for
// existence, not writability).
const lockDir = "/var/lock"

// LockName builds the deterministic lock file name for a (card, channel)
// pair, e.g. "roc_serial1041-ep0_ch2.lock" for the identity string
// registry.Identity renders for serial 1041, endpoint 0.
func LockName(cardIdentity string, channel int) string {
	safe := filepath.Base(cardIdentity)
	return fmt.Sprintf("roc_%s_ch%d.lock", safe, channel)
}

// ChannelLock guards exclusive access to one channel across processes.
type ChannelLock struct {
	path string
}

// New returns a ChannelLock for the given deterministic lock name. It
// does not touch the filesystem until Acquire is called.
func New(lockName string) *ChannelLock {
	dir := lockDir
	if _, err := os.Stat(dir); err != nil {
		dir = os.TempDir()
	}
	return &ChannelLock{path: filepath.Join(dir, lockName)}
}

// LockGuard represents a held channel lock. It releases the underlying
// OS file lock when Release is called, and also when the owning process
// exits abnormally, since flock(2) locks are released by the kernel on
// process death.
type LockGuard struct {
	fl *flock.Flock
}

// Acquire takes the lock without blocking. If another process already
// holds it, it fails with rocerr.ChannelBusy rather than waiting.
func (c *ChannelLock) Acquire() (*LockGuard, error) {
	fl := flock.New(c.path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, rocerr.Wrap(rocerr.ChannelBusy, "failed to acquire channel lock", err,
			rocerr.Fields{"path": c.path})
	}
	if !ok {
		return nil, rocerr.New(rocerr.ChannelBusy, "channel is locked by another process",
			rocerr.Fields{"path": c.path})
	}
	return &LockGuard{fl: fl}, nil
}

// Release drops the lock. It is safe to call on an already-released
// guard.
func (g *LockGuard) Release() error {
	if g.fl == nil {
		return nil
	}
	err := g.fl.Unlock()
	g.fl = nil
	return err
}
