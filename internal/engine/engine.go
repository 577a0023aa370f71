// Package engine declares the TransferEngine contract (spec.md §4.6,
// §4.6bis) shared by the CRU and CRORC implementations in its cru and
// crorc subpackages. The two families expose different item types
// (Superpage vs. Page) so they cannot share one generic interface
// beyond start/stop; callers that need family-specific behavior type
// assert to the concrete *cru.Engine or *crorc.Engine.
package engine

// Engine is the minimal contract both families satisfy: start DMA,
// stop DMA, and report whether it is currently running.
type Engine interface {
	StartDma() error
	StopDma() error
	Running() bool
}
