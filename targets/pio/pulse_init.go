//go:build rp2040 || rp2350

package pio

import (
	"tickmux/core"
)

// InitPulseProbe initializes a probe backend and registers it with the
// core, so every event delivery emits one pulse on the probe pin.
// pin: GPIO pin for the pulse output
// widthTicks: pulse width in timer ticks
func InitPulseProbe(b core.PulseBackend, pin uint8, widthTicks uint32) error {
	if err := b.Init(pin, widthTicks); err != nil {
		return err
	}
	core.SetPulseBackend(b)
	return nil
}
