package core

// TickerFreq is the tick rate of the hardware counter behind the system
// ticker. Every target in this repo clocks its timer block at 1MHz, so one
// tick is one microsecond.
const TickerFreq = 1000000

// TicksFromUS converts microseconds to ticks. Exact for whole-MHz timer
// clocks, which is all this firmware supports.
func TicksFromUS(us uint32) Ticks {
	return Ticks(us * (TickerFreq / 1000000))
}

// TicksToUS converts ticks to microseconds.
func TicksToUS(t Ticks) uint32 {
	return uint32(t) / (TickerFreq / 1000000)
}

// uptimeState widens the 32-bit counter to 64 bits by latching rollovers
// between reads.
type uptimeState struct {
	high uint32
	last Ticks
}

var uptime uptimeState

// Uptime returns the 64-bit tick count since boot. It must run at least
// once per counter wrap (~71 minutes at 1MHz) to keep the extension
// monotonic; the firmware main loop polls it every iteration.
func Uptime() uint64 {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	now := SystemTicker().Now()
	if now < uptime.last {
		uptime.high++
	}
	uptime.last = now
	return uint64(uptime.high)<<32 | uint64(now)
}
