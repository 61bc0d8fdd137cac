//go:build !tinygo

package core

// State is a placeholder for the saved interrupt state on regular Go
type State uintptr

// disableInterrupts is a no-op on regular Go. Host builds drive the queue
// from a single goroutine (tests, SimTimer), so there is nothing to mask.
func disableInterrupts() State {
	return 0
}

// restoreInterrupts is a no-op on regular Go
func restoreInterrupts(state State) {
	// No-op
}
