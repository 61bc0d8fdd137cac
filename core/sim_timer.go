package core

// SimTimer is a software CompareTimer for host builds and tests. The
// counter only moves when the caller advances it, and the compare
// interrupt is delivered synchronously from AdvanceTo/Advance/Poll, so
// every test run is deterministic. Like a real queue-plus-timer pair it
// must only be driven from one goroutine.
type SimTimer struct {
	queue *TickerQueue

	count   Ticks
	armed   bool
	armedAt Ticks
	pending bool

	initCalls    int
	setCalls     int
	disableCalls int
	clearCalls   int
}

// NewSimTimer returns a simulated timer with the counter at zero.
func NewSimTimer() *SimTimer {
	return &SimTimer{}
}

// Attach points the simulated interrupt line at a queue. The queue's
// IRQHandler runs whenever the advancing counter reaches the armed
// compare value.
func (s *SimTimer) Attach(q *TickerQueue) {
	s.queue = q
}

// Init implements CompareTimer.
func (s *SimTimer) Init() {
	s.initCalls++
}

// ReadCount implements CompareTimer.
func (s *SimTimer) ReadCount() Ticks {
	return s.count
}

// SetInterrupt implements CompareTimer. The match is one-shot, as on real
// hardware: firing disarms it until the handler re-arms.
func (s *SimTimer) SetInterrupt(at Ticks) {
	s.setCalls++
	s.armed = true
	s.armedAt = at & TimeMask
}

// DisableInterrupt implements CompareTimer.
func (s *SimTimer) DisableInterrupt() {
	s.disableCalls++
	s.armed = false
}

// ClearInterrupt implements CompareTimer.
func (s *SimTimer) ClearInterrupt() {
	s.clearCalls++
	s.pending = false
}

// Armed reports whether a compare value is armed.
func (s *SimTimer) Armed() bool {
	return s.armed
}

// ArmedAt returns the armed compare value; only meaningful while Armed.
func (s *SimTimer) ArmedAt() Ticks {
	return s.armedAt
}

// SetCount forces the counter, without delivering interrupts. Test setup
// helper for starting near a wrap boundary.
func (s *SimTimer) SetCount(t Ticks) {
	s.count = t & TimeMask
}

// AdvanceTo walks the counter forward to target (wraparound-aware),
// delivering the compare interrupt every time the armed value falls inside
// the traversed range. That includes values the interrupt handler re-arms
// mid-walk, so a chain of events spread across the range all fire in one
// call.
func (s *SimTimer) AdvanceTo(target Ticks) {
	target &= TimeMask
	for s.armed && s.queue != nil {
		remaining := (target - s.count) & TimeMask
		until := (s.armedAt - s.count) & TimeMask
		if until > remaining {
			break
		}
		s.count = s.armedAt
		s.fire()
	}
	s.count = target
}

// Advance walks the counter forward by delta ticks.
func (s *SimTimer) Advance(delta Ticks) {
	s.AdvanceTo(s.count + delta)
}

// Poll delivers the compare interrupt for an armed value the counter has
// already reached or passed, mimicking a pending IRQ being taken once the
// foreground unmasks (hardware raises the match immediately when armed in
// the past). It reports whether the handler ran.
func (s *SimTimer) Poll() bool {
	if !s.armed || s.queue == nil {
		return false
	}
	until := (s.armedAt - s.count) & TimeMask
	if until == 0 || until > PastTolerance {
		s.fire()
		return true
	}
	return false
}

func (s *SimTimer) fire() {
	// One-shot match: disarm before the handler so its own SetInterrupt
	// re-arms cleanly.
	s.armed = false
	s.pending = true
	s.queue.IRQHandler()
}
