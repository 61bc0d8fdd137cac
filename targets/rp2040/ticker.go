//go:build rp2040

package main

import (
	"device/rp"
	"runtime/interrupt"
	"runtime/volatile"
	"unsafe"

	"tickmux/core"
)

// RP2040 TIMER peripheral memory map
// The counter is the chip's free-running 1MHz microsecond timebase; the
// queue uses the low 32 bits via the raw (non-latching) read registers.
//
// Register offsets:
// alarm[4]  @ 0x10-0x1C - fire when TIMERAWL == alarm value, self-disarm
// armed     @ 0x20      - write 1 to disarm the matching alarm
// timeRawH  @ 0x24      - raw read from upper 32b
// timeRawL  @ 0x28      - raw read from lower 32b (no latching)
// intr      @ 0x34      - raw interrupt status, write 1 to clear
// inte      @ 0x38      - interrupt enable
// intf      @ 0x3C      - interrupt force
const (
	timerBase     = 0x40054000
	timerALARM0   = timerBase + 0x10
	timerARMED    = timerBase + 0x20
	timerTimeRawL = timerBase + 0x28
	timerINTR     = timerBase + 0x34
	timerINTE     = timerBase + 0x38
	timerINTF     = timerBase + 0x3C
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

// HardwareTimer implements core.CompareTimer over ALARM0 of the RP2040
// TIMER block.
type HardwareTimer struct{}

// NewHardwareTimer creates the ALARM0 compare timer
func NewHardwareTimer() *HardwareTimer {
	return &HardwareTimer{}
}

// Init clears any stale alarm state, enables the ALARM0 interrupt lane and
// routes TIMER_IRQ_0 into the system ticker. The alarm stays disarmed until
// the queue arms it.
func (t *HardwareTimer) Init() {
	timerArmed.Set(alarm0Bit)
	timerIntf.ClearBits(alarm0Bit)
	timerIntr.Set(alarm0Bit)
	timerInte.SetBits(alarm0Bit)

	intr := interrupt.New(rp.IRQ_TIMER_IRQ_0, handleTimerIRQ)
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
	core.RegisterConstant("MCU", "rp2040")
	core.RegisterConstant("CLOCK_FREQ", uint32(core.TickerFreq))
}

func handleTimerIRQ(interrupt.Interrupt) {
	core.SystemTicker().IRQHandler()
}
