//go:build rp2040 || rp2350

package pio

import (
	"device/arm"
	"device/rp"
	"machine"
)

// GPIOPulseBackend drives the dispatch probe with direct GPIO
// This is the baseline/fallback implementation
// Pulse timing is CPU-paced, so concurrent interrupts stretch the width
type GPIOPulseBackend struct {
	pin machine.Pin

	// Cached register values for fast access
	setMask   uint32
	clearMask uint32

	// Busy-wait passes that make up the pulse width
	spinCount uint32
}

// One spin pass is nop + decrement + compare-and-branch, ~4 cycles
// (~32ns @ 125MHz), so ~31 passes per microsecond tick
const spinPerTick = 31

// NewGPIOPulseBackend creates a new GPIO-based probe backend
func NewGPIOPulseBackend() *GPIOPulseBackend {
	return &GPIOPulseBackend{}
}

// Init initializes the GPIO probe backend
func (b *GPIOPulseBackend) Init(pin uint8, widthTicks uint32) error {
	b.pin = machine.Pin(pin)

	// Configure probe pin as output, idle low
	b.pin.Configure(machine.PinConfig{Mode: machine.PinOutput})
	b.pin.Low()

	// Pre-calculate register masks for fast GPIO access
	// Using SIO (Single-cycle I/O) for fastest possible toggling
	b.setMask = 1 << pin
	b.clearMask = 1 << pin

	b.spinCount = widthTicks * spinPerTick

	return nil
}

// Pulse emits one probe pulse
// Runs in the timer interrupt, so the width is held with a counted
// NOP loop rather than a timer
func (b *GPIOPulseBackend) Pulse() {
	// Probe HIGH
	rp.SIO.GPIO_OUT_SET.Set(b.setMask)

	// Pulse width delay
	// The NOP keeps the loop body from being optimized away
	for i := uint32(0); i < b.spinCount; i++ {
		arm.Asm("nop")
	}

	// Probe LOW
	rp.SIO.GPIO_OUT_CLR.Set(b.clearMask)
}

// Stop drives the probe output idle
func (b *GPIOPulseBackend) Stop() {
	// Ensure probe pin is low
	rp.SIO.GPIO_OUT_CLR.Set(b.clearMask)
}

// GetName returns the backend name
func (b *GPIOPulseBackend) GetName() string {
	return "GPIO"
}
