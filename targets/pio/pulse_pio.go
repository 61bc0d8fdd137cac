//go:build rp2040

package pio

// PIO Dispatch Probe Backend using tinygo-org/pio package
// The state machine times the pulse width in hardware, so the probe
// shows true dispatch times instead of dispatch-plus-busy-wait

import (
	"machine"

	rp2pio "github.com/tinygo-org/pio/rp2-pio"
)

// PIO program for probe pulse generation
// FIFO word format:
//
//	Bits 0-31: pulse hold cycles
//
// Program flow:
//  1. Pull 32-bit hold count from FIFO (blocks until a pulse is queued)
//  2. Move hold count into X register
//  3. Drive the probe pin high
//  4. Hold for X+1 jmp cycles
//  5. Drive the probe pin low, wrap back to the pull
//
// buildPulseProgram creates the probe PIO program using AssemblerV0
func buildPulseProgram() []uint16 {
	asm := rp2pio.AssemblerV0{SidesetBits: 0}
	return []uint16{
		// .wrap_target
		asm.Pull(false, true).Encode(),          // 0: pull block
		asm.Out(rp2pio.OutDestX, 32).Encode(),   // 1: out x, 32 (hold cycles)
		asm.Set(rp2pio.SetDestPins, 1).Encode(), // 2: set pins, 1
		// hold_loop:
		asm.Jmp(3, rp2pio.JmpXNZeroDec).Encode(), // 3: jmp x--, 3
		asm.Set(rp2pio.SetDestPins, 0).Encode(),  // 4: set pins, 0
		// .wrap
	}
}

const pulsePIOOrigin = 0 // Load at offset 0 for correct jump addresses

// The set and the fall-through jmp put two extra cycles into the high
// phase, so Init subtracts them from the requested width
const pulseFixedCycles = 2

// PIOPulseBackend implements the dispatch probe using TinyGo's pio package
type PIOPulseBackend struct {
	pio    *rp2pio.PIO
	sm     rp2pio.StateMachine
	pin    machine.Pin
	hold   uint32
	offset uint8
	pioNum uint8
	smNum  uint8
}

// NewPIOPulseBackend creates a new PIO-based probe backend
// pioNum: 0 for PIO0, 1 for PIO1
// smNum: 0-3 for state machine number
func NewPIOPulseBackend(pioNum, smNum uint8) *PIOPulseBackend {
	var pioHW *rp2pio.PIO
	if pioNum == 0 {
		pioHW = rp2pio.PIO0
	} else {
		pioHW = rp2pio.PIO1
	}

	return &PIOPulseBackend{
		pio:    pioHW,
		sm:     pioHW.StateMachine(smNum),
		pioNum: pioNum,
		smNum:  smNum,
	}
}

// Init initializes the PIO probe backend
func (b *PIOPulseBackend) Init(pin uint8, widthTicks uint32) error {
	b.pin = machine.Pin(pin)

	if widthTicks > pulseFixedCycles {
		b.hold = widthTicks - pulseFixedCycles
	} else {
		b.hold = 0 // minimum pulse is pulseFixedCycles wide
	}

	// CRITICAL: Claim the state machine first!
	b.sm.TryClaim()

	// Build and load PIO program using AssemblerV0
	program := buildPulseProgram()
	offset, err := b.pio.AddProgram(program, pulsePIOOrigin)
	if err != nil {
		return err
	}
	b.offset = offset

	// Configure the probe pin for PIO
	b.pin.Configure(machine.PinConfig{Mode: b.pio.PinMode()})

	// Build state machine configuration
	cfg := rp2pio.DefaultStateMachineConfig()

	// Configure SET pins (probe pin) - used for pulse generation
	cfg.SetSetPins(b.pin, 1)

	// Configure shift control: shift right, autopull DISABLED (we use explicit PULL), 32-bit threshold
	cfg.SetOutShift(true, false, 32)

	// Configure wrap points (program is 5 instructions: 0-4)
	cfg.SetWrap(offset+uint8(len(program))-1, offset)

	// 125MHz / 125 = 1MHz, one PIO cycle per timer tick
	cfg.SetClkDivIntFrac(125, 0)

	// Initialize state machine FIRST
	b.sm.Init(offset, cfg)

	// THEN set pin directions (must be after Init!)
	b.sm.SetPindirsConsecutive(b.pin, 1, true) // probe = output

	// Set initial pin state
	b.sm.SetPinsConsecutive(b.pin, 1, false) // probe = low

	// Enable state machine
	b.sm.SetEnabled(true)

	return nil
}

// Pulse queues one probe pulse
// Runs in the timer interrupt, so it never spins on the FIFO; with
// four pulses already queued the new one is dropped instead
func (b *PIOPulseBackend) Pulse() {
	if b.sm.IsTxFIFOFull() {
		return
	}
	b.sm.TxPut(b.hold)
}

// Stop halts the state machine and drives the probe output idle
func (b *PIOPulseBackend) Stop() {
	b.sm.SetEnabled(false)
	b.sm.ClearFIFOs()
	b.sm.SetPinsConsecutive(b.pin, 1, false)
}

// GetName returns the backend name
func (b *PIOPulseBackend) GetName() string {
	return "PIO"
}
