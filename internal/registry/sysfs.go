package registry

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/AliceO2Group/readoutcard/internal/bar"
	"github.com/AliceO2Group/readoutcard/internal/cardtype"
	"github.com/AliceO2Group/readoutcard/internal/pcidev"
	"github.com/AliceO2Group/readoutcard/internal/register"
	"github.com/AliceO2Group/readoutcard/internal/rocerr"
)

const sysfsBasePath = "/sys/bus/pci/devices"

// sysfsScanner walks Linux sysfs to find PCI devices, trimmed to the
// identification fields spec.md §3/§4.2 need (vendor/device id, BDF, NUMA
// node) rather than a full device snapshot (driver name, IOMMU group,
// class code — firmware-generation concerns this driver core does not
// have).
type sysfsScanner struct {
	basePath string
}

func newSysfsScanner() *sysfsScanner { return &sysfsScanner{basePath: sysfsBasePath} }

// newSysfsScannerWithPath is used by tests to point the scanner at a fake
// sysfs tree.
func newSysfsScannerWithPath(basePath string) *sysfsScanner {
	return &sysfsScanner{basePath: basePath}
}

type rawDevice struct {
	bdf       pcidev.BDF
	vendor    uint16
	device    uint16
	numaNode  int
	linkSpeed uint8
	linkWidth uint8
}

func (s *sysfsScanner) scan() ([]rawDevice, error) {
	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		return nil, err
	}

	var devices []rawDevice
	for _, entry := range entries {
		fullPath := filepath.Join(s.basePath, entry.Name())
		fi, err := os.Stat(fullPath)
		if err != nil || !fi.IsDir() {
			continue
		}

		bdf, err := pcidev.ParseBDF(entry.Name())
		if err != nil {
			continue
		}

		dev, err := s.readDevice(bdf)
		if err != nil {
			continue
		}
		devices = append(devices, *dev)
	}
	return devices, nil
}

func (s *sysfsScanner) readDevice(bdf pcidev.BDF) (*rawDevice, error) {
	devPath := filepath.Join(s.basePath, bdf.String())

	vendor, err := readHex16(filepath.Join(devPath, "vendor"))
	if err != nil {
		return nil, err
	}
	device, err := readHex16(filepath.Join(devPath, "device"))
	if err != nil {
		return nil, err
	}

	numaNode := -1
	if data, err := os.ReadFile(filepath.Join(devPath, "numa_node")); err == nil {
		if n, err := strconv.Atoi(strings.TrimSpace(string(data))); err == nil {
			numaNode = n
		}
	}

	var linkSpeed, linkWidth uint8
	if raw, err := os.ReadFile(filepath.Join(devPath, "config")); err == nil {
		if li, ok := pcidev.FindLinkInfo(pcidev.NewConfigSpaceFromBytes(raw)); ok {
			linkSpeed, linkWidth = li.Speed, li.Width
		}
	}

	return &rawDevice{
		bdf: bdf, vendor: vendor, device: device, numaNode: numaNode,
		linkSpeed: linkSpeed, linkWidth: linkWidth,
	}, nil
}

func readHex16(path string) (uint16, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(strings.TrimSpace(string(data)), 0, 16)
	if err != nil {
		return 0, err
	}
	return uint16(v), nil
}

// readSerialAndEndpoint opens the identification BAR for a candidate card
// and reads its serial and endpoint registers, per spec.md §4.2: "serial
// is read from BAR 2 (CRU) or BAR 0 flash (CRORC); endpoint number from
// BAR 0."
func readSerialAndEndpoint(devPath string, ct cardtype.CardType) (serial uint32, endpoint int, err error) {
	var barIdx, serialOff, endpointOff int
	switch ct {
	case cardtype.CRU:
		barIdx, serialOff, endpointOff = bar.CRUBarSerial, bar.CRUOffsetSerial, bar.CRUOffsetEndpoint
	case cardtype.CRORC:
		barIdx, serialOff, endpointOff = bar.CRORCBarSerial, bar.CRORCOffsetSerial, bar.CRORCOffsetEndpoint
	default:
		return 0, 0, rocerr.New(rocerr.CardNotFound, "unsupported card type for serial read", rocerr.Fields{"cardType": ct})
	}

	mapped, err := register.OpenSysfsResource(devPath, barIdx)
	if err != nil {
		return 0, 0, err
	}
	defer mapped.Close()

	serial, err = mapped.Read32(serialOff)
	if err != nil {
		return 0, 0, err
	}
	if ct == cardtype.CRU && serial == bar.InvalidCRUSerial {
		return 0, 0, rocerr.New(rocerr.InvalidSerial, "CRU reported invalid serial 0xFFFFFFFF", rocerr.Fields{"bdf": devPath})
	}

	ep, err := mapped.Read32(endpointOff)
	if err != nil {
		return 0, 0, err
	}
	return serial, int(ep), nil
}
