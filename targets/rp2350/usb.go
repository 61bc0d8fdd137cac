//go:build rp2350

package main

import (
	"machine"
)

// InitUSB initializes USB serial communication
// TinyGo automatically sets up USB CDC-ACM on the RP2350
func InitUSB() {
	// Configure machine.Serial (which is USB CDC on the RP2350)
	err := machine.Serial.Configure(machine.UARTConfig{})
	if err != nil {
		return
	}

	// Note: machine.Serial is USB CDC here, not a hardware UART
	// The USB descriptors are set by TinyGo's runtime
}

// USBAvailable returns the number of bytes available to read from USB
func USBAvailable() int {
	return machine.Serial.Buffered()
}

// USBRead reads a single byte from USB
func USBRead() (byte, error) {
	return machine.Serial.ReadByte()
}

// USBWriteBytes writes multiple bytes to USB
func USBWriteBytes(data []byte) (int, error) {
	n, err := machine.Serial.Write(data)
	return n, err
}
