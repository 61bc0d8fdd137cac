//go:build tinygo

package core

import "runtime/interrupt"

// disableInterrupts masks all interrupts and returns the previous state.
// Queue mutations sit between this and restoreInterrupts so the compare
// interrupt can never observe a half-linked chain.
func disableInterrupts() interrupt.State {
	return interrupt.Disable()
}

// restoreInterrupts restores the saved interrupt state
func restoreInterrupts(state interrupt.State) {
	interrupt.Restore(state)
}
