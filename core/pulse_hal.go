package core

// PulseBackend defines the hardware abstraction for the dispatch probe:
// a fixed-width pulse emitted on every event delivery so dispatch jitter
// can be measured externally with a scope or logic analyzer.
// Implementations can use GPIO, PIO, or other methods
type PulseBackend interface {
	// Init initializes the probe hardware
	// pin: GPIO pin for the pulse output
	// widthTicks: pulse width in timer ticks
	Init(pin uint8, widthTicks uint32) error

	// Pulse emits a single pulse
	// Should be fast (called from timer interrupt)
	Pulse()

	// Stop drives the output idle
	Stop()

	// GetName returns backend implementation name
	GetName() string
}

var pulseBackend PulseBackend

// SetPulseBackend registers the dispatch probe. Pass nil to disable.
func SetPulseBackend(b PulseBackend) {
	pulseBackend = b
}

// PulseProbe returns the registered probe, or nil when none is configured.
func PulseProbe() PulseBackend {
	return pulseBackend
}
