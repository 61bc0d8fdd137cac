package core

import (
	"testing"
)

func newTestTaskSet() (*TaskSet, *TickerQueue, *SimTimer) {
	sim := NewSimTimer()
	q := NewTickerQueue(sim)
	sim.Attach(q)
	return NewTaskSet(q), q, sim
}

func TestAfterRunsOnce(t *testing.T) {
	s, _, sim := newTestTaskSet()

	n := 0
	id, ok := s.After(100, func() { n++ })
	if !ok {
		t.Fatal("Expected a free slot")
	}

	sim.AdvanceTo(500)
	if n != 1 {
		t.Errorf("Expected 1 run, got %d", n)
	}
	if s.ActiveCount() != 0 {
		t.Errorf("Expected slot recycled, got %d active", s.ActiveCount())
	}

	// The freed slot is handed out again.
	id2, ok := s.After(100, func() { n++ })
	if !ok || id2 != id {
		t.Errorf("Expected slot %d reissued, got %d (ok=%v)", id, id2, ok)
	}
}

func TestAtRunsInTimestampOrder(t *testing.T) {
	s, _, sim := newTestTaskSet()

	var order []string
	if _, ok := s.At(300, func() { order = append(order, "late") }); !ok {
		t.Fatal("Expected a free slot")
	}
	if _, ok := s.At(100, func() { order = append(order, "early") }); !ok {
		t.Fatal("Expected a free slot")
	}

	sim.AdvanceTo(1000)
	if len(order) != 2 || order[0] != "early" || order[1] != "late" {
		t.Errorf("Expected [early late], got %v", order)
	}
}

func TestEveryRunsWithoutDrift(t *testing.T) {
	s, q, sim := newTestTaskSet()

	var times []Ticks
	var id TaskID
	id, ok := s.Every(100, func() {
		times = append(times, q.Now())
		if len(times) == 4 {
			s.Cancel(id)
		}
	})
	if !ok {
		t.Fatal("Expected a free slot")
	}

	sim.AdvanceTo(1000)
	want := []Ticks{100, 200, 300, 400}
	if len(times) != len(want) {
		t.Fatalf("Expected 4 runs, got %d (%v)", len(times), times)
	}
	for i := range want {
		if times[i] != want[i] {
			t.Errorf("Expected run %d at %d, got %d", i, want[i], times[i])
		}
	}
	if s.ActiveCount() != 0 {
		t.Errorf("Expected no active tasks after cancel, got %d", s.ActiveCount())
	}
}

func TestEveryCatchesUpAfterLateDispatch(t *testing.T) {
	s, _, sim := newTestTaskSet()

	n := 0
	if _, ok := s.Every(100, func() { n++ }); !ok {
		t.Fatal("Expected a free slot")
	}

	// The interrupt is held off past three periods; one drain delivers the
	// backlog and the cadence stays anchored at multiples of the period.
	sim.SetCount(350)
	if !sim.Poll() {
		t.Fatal("Expected a pending compare interrupt")
	}
	if n != 3 {
		t.Errorf("Expected 3 catch-up runs, got %d", n)
	}
	if !sim.Armed() || sim.ArmedAt() != 400 {
		t.Errorf("Expected next run armed at 400, got armed=%v at=%d", sim.Armed(), sim.ArmedAt())
	}
}

func TestCancelPendingTask(t *testing.T) {
	s, _, sim := newTestTaskSet()

	n := 0
	id, ok := s.After(200, func() { n++ })
	if !ok {
		t.Fatal("Expected a free slot")
	}
	if !s.Cancel(id) {
		t.Error("Expected cancel of a pending task to succeed")
	}

	sim.AdvanceTo(500)
	if n != 0 {
		t.Errorf("Expected no runs after cancel, got %d", n)
	}
	if s.Cancel(id) {
		t.Error("Expected second cancel to report an idle slot")
	}
	if s.Cancel(MaxTasks + 3) {
		t.Error("Expected out-of-range cancel to report false")
	}
}

func TestCancelAfterOneShotRan(t *testing.T) {
	s, _, sim := newTestTaskSet()

	id, _ := s.After(50, func() {})
	sim.AdvanceTo(100)
	if s.Cancel(id) {
		t.Error("Expected cancel after the task ran to report false")
	}
}

func TestTaskTableExhaustion(t *testing.T) {
	s, _, sim := newTestTaskSet()

	n := 0
	for i := 0; i < MaxTasks; i++ {
		if _, ok := s.At(Ticks(1000+i), func() { n++ }); !ok {
			t.Fatalf("Expected slot %d to be free", i)
		}
	}
	if _, ok := s.At(5000, func() {}); ok {
		t.Error("Expected claim on a full table to fail")
	}
	if s.ActiveCount() != MaxTasks {
		t.Errorf("Expected %d active tasks, got %d", MaxTasks, s.ActiveCount())
	}

	sim.AdvanceTo(2000)
	if n != MaxTasks {
		t.Errorf("Expected %d runs, got %d", MaxTasks, n)
	}
	if _, ok := s.At(3000, func() {}); !ok {
		t.Error("Expected a free slot after the table drained")
	}
}

func TestScheduleFromTaskCallback(t *testing.T) {
	s, _, sim := newTestTaskSet()

	var order []string
	if _, ok := s.After(100, func() {
		order = append(order, "first")
		if _, ok := s.After(50, func() { order = append(order, "second") }); !ok {
			t.Error("Expected a free slot from inside a callback")
		}
	}); !ok {
		t.Fatal("Expected a free slot")
	}

	sim.AdvanceTo(400)
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("Expected [first second], got %v", order)
	}
}
