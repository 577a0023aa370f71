// Package romio provides the calibrated busy-wait loop used by every
// command/response procedure in internal/bar/crorc.go.
//
// Per spec.md §9: "the calibrated 'loops per microsecond' value should be
// derived once per device open via a single round of BAR reads, then
// reused. Do not time with wall clock inside these loops — MMIO read cost
// dominates and must be the unit."
package romio

import "time"

// Prober is the minimal MMIO operation used to calibrate the loop: one
// bounded-offset register read. internal/register.Space satisfies this.
type Prober interface {
	Read32(byteOffset int) (uint32, error)
}

// Calibration holds a device's measured MMIO-loops-per-microsecond
// constant, computed once at device open time.
type Calibration struct {
	loopsPerMicrosecond uint64
}

// Calibrate performs one timed round of register reads against probeOffset
// (expected to be a harmless, always-readable status register) and derives
// how many such reads fit in one microsecond. It is the only place in this
// package that touches a wall clock; every later busy-wait uses the
// resulting constant instead of timing itself.
func Calibrate(p Prober, probeOffset int) (Calibration, error) {
	const sampleLoops = 100000

	start := time.Now()
	for i := 0; i < sampleLoops; i++ {
		if _, err := p.Read32(probeOffset); err != nil {
			return Calibration{}, err
		}
	}
	elapsed := time.Since(start)

	loopsPerUs := uint64(float64(sampleLoops) / (float64(elapsed) / float64(time.Microsecond)))
	if loopsPerUs == 0 {
		loopsPerUs = 1
	}
	return Calibration{loopsPerMicrosecond: loopsPerUs}, nil
}

// LoopBudget returns the number of MMIO-read-sized loop iterations that
// correspond to the given timeout, using the calibrated constant instead
// of wall-clock time.
func (c Calibration) LoopBudget(timeout time.Duration) uint64 {
	us := uint64(timeout / time.Microsecond)
	if us == 0 {
		us = 1
	}
	return c.loopsPerMicrosecond * us
}

// Spin repeatedly calls poll (one register read, conceptually) until it
// returns true, or until budget (from LoopBudget) iterations have elapsed.
// It reports whether poll ever returned true.
func Spin(budget uint64, poll func() (bool, error)) (bool, error) {
	for i := uint64(0); i < budget; i++ {
		done, err := poll()
		if err != nil {
			return false, err
		}
		if done {
			return true, nil
		}
	}
	return false, nil
}
