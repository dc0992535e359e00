//go:build tinygo

package core

import "runtime/interrupt"

// disableInterrupts disables interrupts and returns the previous state
func disableInterrupts() interrupt.State {
	return interrupt.Disable()
}

// restoreInterrupts restores the interrupt state
func restoreInterrupts(state interrupt.State) {
	interrupt.Restore(state)
}

// enterISR is a no-op on hardware: the edge handlers cannot be preempted by the loop
func enterISR() {}

// exitISR is a no-op on hardware
func exitISR() {}
