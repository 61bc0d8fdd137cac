package core

// CompareTimer is the abstract compare-match timer interface the ticker
// queue drives. Target-specific code implements it over the real
// peripheral; host builds and tests use SimTimer.
type CompareTimer interface {
	// Init prepares the peripheral: counter free-running, match interrupt
	// routed to the owning queue's IRQHandler but not yet armed.
	Init()

	// ReadCount returns the current free-running counter value.
	ReadCount() Ticks

	// SetInterrupt arms the compare match for an absolute counter value,
	// replacing any armed value. Arming a value the counter has already
	// passed must still raise the interrupt (late, never lost).
	SetInterrupt(at Ticks)

	// DisableInterrupt disarms the compare match entirely.
	DisableInterrupt()

	// ClearInterrupt acknowledges a pending match so it cannot re-fire
	// before the queue explicitly re-arms.
	ClearInterrupt()
}

// Global system ticker used by core code.
var systemTicker *TickerQueue

// SetTickerDriver is called by target-specific code to bind its compare
// timer behind the process-wide system ticker.
func SetTickerDriver(d CompareTimer) {
	systemTicker = NewTickerQueue(d)
}

// SystemTicker returns the bound system ticker or panics if missing.
func SystemTicker() *TickerQueue {
	if systemTicker == nil {
		panic("ticker driver not configured")
	}
	return systemTicker
}
