//go:build !tinygo

package core

import "sync"

// State is a placeholder for interrupt state on regular Go
type State uintptr

// irqMu stands in for the interrupt mask on regular Go. Simulated edge
// handlers take it through enterISR, so a critical section in the loop
// excludes them the same way interrupt.Disable does on hardware.
var irqMu sync.Mutex

// disableInterrupts masks simulated interrupts
func disableInterrupts() State {
	irqMu.Lock()
	return 0
}

// restoreInterrupts unmasks simulated interrupts
func restoreInterrupts(state State) {
	irqMu.Unlock()
}

// enterISR marks the start of a simulated interrupt handler
func enterISR() {
	irqMu.Lock()
}

// exitISR marks the end of a simulated interrupt handler
func exitISR() {
	irqMu.Unlock()
}
