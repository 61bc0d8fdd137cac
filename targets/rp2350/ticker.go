//go:build rp2350

package main

import (
	"device/rp"
	"runtime/interrupt"
	"runtime/volatile"
	"unsafe"

	"tickmux/core"
)

// RP2350 TIMER0 peripheral memory map
// NOTE: the RP2350 timer is at a DIFFERENT address than RP2040
// (0x400B0000 vs 0x40054000), and the interrupt registers sit 8 bytes
// further down because LOCKED and SOURCE were inserted after PAUSE.
//
// Register offsets:
// alarm[4]  @ 0x10-0x1C - fire when TIMERAWL == alarm value, self-disarm
// armed     @ 0x20      - write 1 to disarm the matching alarm
// timeRawH  @ 0x24      - raw read from upper 32b
// timeRawL  @ 0x28      - raw read from lower 32b (no latching)
// locked    @ 0x34      - RP2350 only, write lockout
// source    @ 0x38      - RP2350 only, tick vs clk_sys counting
// intr      @ 0x3C      - raw interrupt status, write 1 to clear
// inte      @ 0x40      - interrupt enable
// intf      @ 0x44      - interrupt force
const (
	timerBase     = 0x400B0000 // RP2350 TIMER0 base address
	timerALARM0   = timerBase + 0x10
	timerARMED    = timerBase + 0x20
	timerTimeRawL = timerBase + 0x28
	timerINTR     = timerBase + 0x3C
	timerINTE     = timerBase + 0x40
	timerINTF     = timerBase + 0x44
)

// ALARM0 lane in ARMED/INTR/INTE/INTF. The TinyGo runtime sleeps on
// ALARM3, so the lanes never collide.
const alarm0Bit = 1 << 0

var (
	timerAlarm0 = (*volatile.Register32)(unsafe.Pointer(uintptr(timerALARM0)))
	timerArmed  = (*volatile.Register32)(unsafe.Pointer(uintptr(timerARMED)))
	timerRawL   = (*volatile.Register32)(unsafe.Pointer(uintptr(timerTimeRawL)))
	timerIntr   = (*volatile.Register32)(unsafe.Pointer(uintptr(timerINTR)))
	timerInte   = (*volatile.Register32)(unsafe.Pointer(uintptr(timerINTE)))
	timerIntf   = (*volatile.Register32)(unsafe.Pointer(uintptr(timerINTF)))
)

// HardwareTimer implements core.CompareTimer over ALARM0 of the RP2350
// TIMER0 block. TIMER0 stays on the 1MHz microsecond tick; SOURCE is left
// at its reset value, so the timebase matches RP2040.
type HardwareTimer struct{}

// NewHardwareTimer creates the ALARM0 compare timer
func NewHardwareTimer() *HardwareTimer {
	return &HardwareTimer{}
}

// Init clears any stale alarm state, enables the ALARM0 interrupt lane and
// routes TIMER0_IRQ_0 into the system ticker. The alarm stays disarmed
// until the queue arms it.
func (t *HardwareTimer) Init() {
	timerArmed.Set(alarm0Bit)
	timerIntf.ClearBits(alarm0Bit)
	timerIntr.Set(alarm0Bit)
	timerInte.SetBits(alarm0Bit)

	intr := interrupt.New(rp.IRQ_TIMER0_IRQ_0, handleTimerIRQ)
	intr.Enable()
}

// ReadCount returns the low 32 bits of the microsecond counter
func (t *HardwareTimer) ReadCount() core.Ticks {
	return core.Ticks(timerRawL.Get())
}

// SetInterrupt arms ALARM0 for an absolute counter value, replacing any
// armed value
func (t *HardwareTimer) SetInterrupt(at core.Ticks) {
	timerAlarm0.Set(uint32(at))

	// The alarm matches on exact equality of the low word. If the deadline
	// slipped into the past before the write landed, the match is a full
	// counter wrap away, so force the interrupt instead.
	diff := (at - core.Ticks(timerRawL.Get())) & core.TimeMask
	if diff <= core.FutureTolerance || diff > core.PastTolerance {
		timerIntf.SetBits(alarm0Bit)
	}
}

// DisableInterrupt disarms ALARM0
func (t *HardwareTimer) DisableInterrupt() {
	timerArmed.Set(alarm0Bit)
}

// ClearInterrupt acknowledges a pending ALARM0 match, dropping a forced
// assertion as well so the interrupt cannot re-fire before a re-arm
func (t *HardwareTimer) ClearInterrupt() {
	timerIntf.ClearBits(alarm0Bit)
	timerIntr.Set(alarm0Bit)
}

// registerTimerConstants publishes the chip identity and timebase in the
// dictionary, next to the queue tolerances registered by the core
func registerTimerConstants() {
	core.RegisterConstant("MCU", "rp2350")
	core.RegisterConstant("CLOCK_FREQ", uint32(core.TickerFreq))
}

func handleTimerIRQ(interrupt.Interrupt) {
	core.SystemTicker().IRQHandler()
}
