package main

import (
	"fmt"

	"github.com/AliceO2Group/readoutcard/internal/register"
	"github.com/AliceO2Group/readoutcard/internal/registry"
)

// openBar resolves id to a card and maps the requested BAR, returning
// the mapped space and a cleanup function that releases both the BAR
// mapping and the device handle.
func openBar(rawID string, barIndex int) (*register.MappedSpace, func(), error) {
	id, err := resolveIdentity(rawID)
	if err != nil {
		return nil, nil, err
	}

	reg := registry.New()
	handle, err := reg.Open(id)
	if err != nil {
		return nil, nil, err
	}

	mapped, err := register.OpenSysfsResource(handle.SysfsPath(), barIndex)
	if err != nil {
		handle.Release()
		return nil, nil, fmt.Errorf("open BAR%d: %w", barIndex, err)
	}

	cleanup := func() {
		mapped.Close()
		handle.Release()
	}
	return mapped, cleanup, nil
}
