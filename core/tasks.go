// Task layer
// One-shot and periodic callbacks multiplexed onto a ticker queue through a
// fixed slot table, so scheduling never allocates after init.
package core

// MaxTasks is the size of the static task table. Slots are claimed by
// At/After/Every and recycled when a task fires or is cancelled.
const MaxTasks = 16

// TaskID names a task table slot.
type TaskID uint8

// TaskFunc runs from the compare interrupt when its task comes due.
type TaskFunc func()

// task pairs a queue event with its callback. The event is embedded so the
// table is one allocation and slots link straight into the queue.
type task struct {
	event  TickerEvent
	fn     TaskFunc
	period Ticks
	active bool
}

// TaskSet hands out one-shot and periodic callbacks from a fixed table,
// multiplexed onto a single ticker queue. NewTaskSet installs the set as
// the queue's dispatch handler, so a queue serves either a TaskSet or a
// raw EventHandler, not both.
type TaskSet struct {
	queue *TickerQueue
	table [MaxTasks]task
}

// NewTaskSet wires a task table to q and installs its dispatcher.
func NewTaskSet(q *TickerQueue) *TaskSet {
	s := &TaskSet{queue: q}
	q.SetHandler(s.dispatch)
	return s
}

// At schedules fn to run once when the counter reaches when. Reports the
// claimed slot, or false when the table is full.
func (s *TaskSet) At(when Ticks, fn TaskFunc) (TaskID, bool) {
	return s.claim(when, 0, fn)
}

// After schedules fn to run once, delay ticks from now.
func (s *TaskSet) After(delay Ticks, fn TaskFunc) (TaskID, bool) {
	return s.claim(s.queue.Now()+delay, 0, fn)
}

// Every schedules fn to run each period ticks, first in period ticks from
// now. Runs are spaced from the scheduled timestamps, not from dispatch
// time, so handler latency does not accumulate as drift; a late dispatch
// is followed by catch-up runs at the original cadence. A zero period runs
// once.
func (s *TaskSet) Every(period Ticks, fn TaskFunc) (TaskID, bool) {
	return s.claim(s.queue.Now()+period, period, fn)
}

// EveryAt is Every with the first run pinned to an absolute counter value.
func (s *TaskSet) EveryAt(when, period Ticks, fn TaskFunc) (TaskID, bool) {
	return s.claim(when, period, fn)
}

// Queue returns the underlying ticker queue.
func (s *TaskSet) Queue() *TickerQueue {
	return s.queue
}

// claim takes a free slot and links its event. Masked so that foreground
// calls and calls from task callbacks cannot race for the same slot.
func (s *TaskSet) claim(when, period Ticks, fn TaskFunc) (TaskID, bool) {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	for i := range s.table {
		t := &s.table[i]
		if t.active {
			continue
		}
		// Settle the slot before linking; the interrupt only ever sees
		// fully formed tasks.
		t.fn = fn
		t.period = period
		t.active = true
		s.queue.Insert(&t.event, when, EventID(i))
		return TaskID(i), true
	}
	return 0, false
}

// Cancel stops a pending task. Reports false when the slot is idle, so
// cancelling a one-shot that already ran is harmless.
func (s *TaskSet) Cancel(id TaskID) bool {
	if int(id) >= MaxTasks {
		return false
	}
	state := disableInterrupts()
	defer restoreInterrupts(state)

	t := &s.table[id]
	if !t.active {
		return false
	}
	s.queue.Remove(&t.event)
	t.active = false
	t.fn = nil
	return true
}

// ActiveCount returns the number of claimed slots.
func (s *TaskSet) ActiveCount() int {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	n := 0
	for i := range s.table {
		if s.table[i].active {
			n++
		}
	}
	return n
}

// dispatch is the queue handler, running in interrupt context.
func (s *TaskSet) dispatch(id EventID) {
	if id >= MaxTasks {
		return
	}
	t := &s.table[id]
	if !t.active {
		return
	}
	fn := t.fn
	if t.period != 0 {
		// Relink before the callback so it can Cancel its own task.
		s.queue.Insert(&t.event, t.event.Timestamp+t.period, id)
	} else {
		t.active = false
		t.fn = nil
	}
	if fn != nil {
		fn()
	}
}
