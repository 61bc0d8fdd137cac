// Ticker event queue
// Multiplexes one hardware compare-match timer into an arbitrary number of
// scheduled callback events, dispatched from the timer interrupt.
package core

// Ticks is a hardware tick counter value. The counter is modular: it wraps
// to zero past TimeMask, so Ticks are only comparable through circular
// distance, never with plain < or >.
type Ticks uint32

// EventID is an opaque caller-chosen identifier handed back on dispatch.
type EventID uint32

// EventHandler is the dispatch callback, invoked once per due event from
// interrupt context.
type EventHandler func(id EventID)

// Queue timing constants, sized for a 1MHz (microsecond) hardware counter.
// The tolerances scale with counter resolution: a faster counter needs
// proportionally wider windows.
const (
	// TimeMask bounds timestamps to the width of the hardware counter.
	// Targets with a narrower compare timer change this mask.
	TimeMask Ticks = 0xFFFFFFFF

	// FutureTolerance is the near-future window treated as already due.
	// An event this close would otherwise be lost: by the time the compare
	// match was re-armed the counter would have passed it. 16us covers the
	// worst observed re-arm path on the rp2040 with room to spare.
	FutureTolerance Ticks = 16

	// PastTolerance splits the rest of the modular range: a delta above it
	// is a just-missed event in the recent past, at or below it a genuine
	// future timestamp. With a 1MHz counter events up to ~268s late still
	// fire, and the usable scheduling horizon is ~67 minutes.
	PastTolerance Ticks = 0xF0000000

	// ExpectISRDelay is subtracted from the counter when ordering an
	// insertion. The counter keeps running while the dispatch loop executes
	// handlers, and a handler re-inserting a tight periodic interval must
	// not see its own next timestamp as already wrapped.
	ExpectISRDelay Ticks = 10
)

// TickerEvent is one pending event. The record is allocated and owned by
// the caller; the queue only links and unlinks it, so a record may be
// reused (including re-insertion from its own handler) as soon as it has
// fired or been removed. A linked record must not be re-inserted or
// destroyed without removing it first.
type TickerEvent struct {
	Timestamp Ticks
	ID        EventID
	Next      *TickerEvent
}

// TickerQueue multiplexes one CompareTimer into any number of TickerEvents,
// kept as an intrusive chain sorted by due-ness. A queue must only be
// touched by one foreground context plus its own compare interrupt: Insert
// and Remove mask interrupts for their duration, IRQHandler runs in the
// interrupt itself.
type TickerQueue struct {
	timer   CompareTimer
	head    *TickerEvent
	handler EventHandler
}

// NewTickerQueue returns a queue bound to a compare timer. The hardware is
// left untouched until SetHandler.
func NewTickerQueue(timer CompareTimer) *TickerQueue {
	return &TickerQueue{timer: timer}
}

// SetHandler initializes the timer hardware and registers the dispatch
// callback. Must be called once, before any Insert or Remove.
func (q *TickerQueue) SetHandler(handler EventHandler) {
	q.timer.Init()
	q.handler = handler
}

// Now returns the current hardware counter value.
func (q *TickerQueue) Now() Ticks {
	return q.timer.ReadCount()
}

// timeIsInPeriod reports whether t occurs no later than end on the tick
// circle with start as the origin: age(t) <= age(end), age being modular
// distance from start. The single comparison covers every wrap layout:
//
//	start .. t .. end        plain future ordering
//	end .. start .. t        end has wrapped past the origin, t has not
//	t .. end .. start        both have wrapped, end is nearer
//
// Equal t and end compare true, so an event inserted at an occupied
// timestamp lands in front of the older entry.
func timeIsInPeriod(start, t, end Ticks) bool {
	return (t-start)&TimeMask <= (end-start)&TimeMask
}

// Insert schedules ev to fire at timestamp, dispatching with id. The record
// must not currently be linked. If ev becomes the new head the compare
// match is re-armed for it; otherwise an earlier event is still armed and
// the hardware is left alone.
func (q *TickerQueue) Insert(ev *TickerEvent, timestamp Ticks, id EventID) {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	now := (q.timer.ReadCount() - ExpectISRDelay) & TimeMask
	timestamp &= TimeMask

	ev.Timestamp = timestamp
	ev.ID = id

	// Walk the chain for the first entry the new event precedes, which may
	// be the head. prev stays nil on head insertion; p stays nil when the
	// new event goes on the tail.
	var prev, p *TickerEvent
	for p = q.head; p != nil; p = p.Next {
		if timeIsInPeriod(now, timestamp, p.Timestamp) {
			break
		}
		prev = p
	}
	if prev == nil {
		q.head = ev
		q.timer.SetInterrupt(timestamp)
	} else {
		prev.Next = ev
	}
	ev.Next = p

	var armed Ticks
	if q.head == ev {
		armed = 1
	}
	recordTrace(EvtInsert, id, now, timestamp, armed)
}

// IRQHandler is the compare interrupt entry point; target code wires it to
// the interrupt vector. It acknowledges the match, dispatches every due
// event in chain order and re-arms the hardware for the nearest remaining
// one (or disarms it when the queue empties). A handler may insert or
// remove events, so the head is re-read from scratch after every callback
// instead of walking a cached cursor.
func (q *TickerQueue) IRQHandler() {
	q.timer.ClearInterrupt()

	for {
		if q.head == nil {
			// Nothing pending, stop compare matches entirely.
			q.timer.DisableInterrupt()
			return
		}

		now := q.timer.ReadCount()
		diff := (q.head.Timestamp - now) & TimeMask
		if diff > FutureTolerance && diff <= PastTolerance {
			// Head, and therefore everything behind it, lies in the
			// future: arm for it and let the hardware call back.
			q.timer.SetInterrupt(q.head.Timestamp)
			recordTrace(EvtArm, q.head.ID, now, q.head.Timestamp, 0)
			return
		}

		// Due: within the near-future window or just missed. Unlink before
		// dispatch so the handler sees a consistent chain and may reuse
		// the record immediately.
		ev := q.head
		q.head = ev.Next
		ev.Next = nil

		var lag Ticks
		if diff > PastTolerance {
			lag = (now - ev.Timestamp) & TimeMask
		}
		evt := uint8(EvtFire)
		if lag > LateWarnTicks {
			evt = EvtLate
		}
		recordTrace(evt, ev.ID, now, ev.Timestamp, lag)
		recordDispatch(lag)

		if q.handler != nil {
			q.handler(ev.ID)
		}
	}
}

// Remove unlinks ev. Removing the head re-arms the compare match for the
// new head, or disables it when the queue empties; removing anything else
// leaves the hardware alone. A record that is not linked is a no-op.
func (q *TickerQueue) Remove(ev *TickerEvent) {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	if q.head == ev {
		q.head = ev.Next
		ev.Next = nil
		if q.head == nil {
			q.timer.DisableInterrupt()
		} else {
			q.timer.SetInterrupt(q.head.Timestamp)
		}
		recordTrace(EvtCancel, ev.ID, q.timer.ReadCount(), ev.Timestamp, 0)
		return
	}

	for p := q.head; p != nil; p = p.Next {
		if p.Next == ev {
			p.Next = ev.Next
			ev.Next = nil
			recordTrace(EvtCancel, ev.ID, q.timer.ReadCount(), ev.Timestamp, 0)
			return
		}
	}
}

// PendingCount returns the number of linked events. Telemetry helper, not
// meant for control flow.
func (q *TickerQueue) PendingCount() int {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	n := 0
	for p := q.head; p != nil; p = p.Next {
		n++
	}
	return n
}
