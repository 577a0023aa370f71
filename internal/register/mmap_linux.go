//go:build linux

package register

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// MappedSpace is a Space backed by an mmap of a sysfs "resourceN" file,
// the real-hardware counterpart to the in-memory Space used by tests.
// Close unmaps the window.
type MappedSpace struct {
	*Space
	raw []byte
	f   *os.File
}

// OpenSysfsResource maps BAR barIndex of the PCI device at sysfsDevPath
// (e.g. "/sys/bus/pci/devices/0000:03:00.0") for MMIO-style access.
//
// Grounded on spec.md §4.1; the same sysfs resourceN file can be read as
// a flat byte dump, but here it is mmap'd read/write instead, so register
// writes actually reach the device rather than only being read back once.
func OpenSysfsResource(sysfsDevPath string, barIndex int) (*MappedSpace, error) {
	path := fmt.Sprintf("%s/resource%d", sysfsDevPath, barIndex)

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open BAR%d resource file: %w", barIndex, err)
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat BAR%d resource file: %w", barIndex, err)
	}
	size := int(fi.Size())
	if size == 0 {
		f.Close()
		return nil, fmt.Errorf("BAR%d resource file reports zero size", barIndex)
	}

	raw, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmap BAR%d: %w", barIndex, err)
	}

	return &MappedSpace{
		Space: New(barIndex, raw),
		raw:   raw,
		f:     f,
	}, nil
}

// Close unmaps the BAR window and closes the backing file descriptor.
func (m *MappedSpace) Close() error {
	err := unix.Munmap(m.raw)
	cerr := m.f.Close()
	if err != nil {
		return err
	}
	return cerr
}
