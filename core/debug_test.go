package core

import (
	"strings"
	"testing"
)

func TestDispatchStatsAggregate(t *testing.T) {
	ResetDispatchStats()
	q, sim, _ := newTestQueue()

	// Missed by 5000 ticks: counted, late, and the lag is attributed.
	var a TickerEvent
	q.Insert(&a, 100, 1)
	sim.SetCount(5100)
	if !sim.Poll() {
		t.Fatal("Expected a pending compare interrupt")
	}

	// On time: counted, no lag.
	var b TickerEvent
	q.Insert(&b, 5200, 2)
	sim.AdvanceTo(5300)

	stats := GetDispatchStats()
	if stats.Dispatched != 2 {
		t.Errorf("Expected 2 dispatched, got %d", stats.Dispatched)
	}
	if stats.Late != 1 {
		t.Errorf("Expected 1 late dispatch, got %d", stats.Late)
	}
	if stats.MaxLag != 5000 {
		t.Errorf("Expected max lag 5000, got %d", stats.MaxLag)
	}
	if stats.LagSum != 5000 {
		t.Errorf("Expected lag sum 5000, got %d", stats.LagSum)
	}

	ResetDispatchStats()
	if stats := GetDispatchStats(); stats.Dispatched != 0 || stats.LagSum != 0 {
		t.Errorf("Expected cleared stats, got %+v", stats)
	}
}

func TestTraceRingRecordsQueueOperations(t *testing.T) {
	ClearTraceRing()
	q, sim, _ := newTestQueue()

	var a, b TickerEvent
	q.Insert(&a, 200, 1)
	q.Insert(&b, 300, 2)
	q.Remove(&b)
	sim.AdvanceTo(400)

	want := []struct {
		evt uint8
		id  EventID
	}{
		{EvtInsert, 1},
		{EvtInsert, 2},
		{EvtCancel, 2},
		{EvtFire, 1},
	}
	for i, w := range want {
		got := traceRing[i]
		if got.EventType != w.evt || got.ID != w.id {
			t.Errorf("Entry %d: expected type=%d id=%d, got type=%d id=%d",
				i, w.evt, w.id, got.EventType, got.ID)
		}
	}
	// Head insert is flagged, the tail insert is not.
	if traceRing[0].Value2 != 1 {
		t.Errorf("Expected head insert flagged, got %d", traceRing[0].Value2)
	}
	if traceRing[1].Value2 != 0 {
		t.Errorf("Expected tail insert unflagged, got %d", traceRing[1].Value2)
	}
	// On-time fire carries zero lag.
	if traceRing[3].Value2 != 0 {
		t.Errorf("Expected zero lag, got %d", traceRing[3].Value2)
	}
}

func TestTraceRingOverwritesOldest(t *testing.T) {
	ClearTraceRing()
	for i := 0; i < TraceRingSize+8; i++ {
		recordTrace(EvtFire, EventID(i), Ticks(i), 0, 0)
	}
	if traceRingHead != 8 {
		t.Errorf("Expected write position 8, got %d", traceRingHead)
	}
	if traceRing[0].ID != EventID(TraceRingSize) {
		t.Errorf("Expected slot 0 overwritten with ID %d, got %d", TraceRingSize, traceRing[0].ID)
	}
	if traceRing[8].ID != 8 {
		t.Errorf("Expected slot 8 to keep ID 8, got %d", traceRing[8].ID)
	}
}

func TestDumpTraceRing(t *testing.T) {
	ClearTraceRing()
	ResetDispatchStats()
	q, sim, _ := newTestQueue()

	var ev TickerEvent
	q.Insert(&ev, 100, 7)
	sim.AdvanceTo(200)

	var lines []string
	SetDebugWriter(func(s string) { lines = append(lines, s) })
	DumpTraceRing()
	SetDebugWriter(func(s string) {})

	if len(lines) != 5 {
		t.Fatalf("Expected 5 dump lines, got %d: %v", len(lines), lines)
	}
	if !strings.Contains(lines[1], "Dispatched: 1") {
		t.Errorf("Expected dispatch count in %q", lines[1])
	}
	if !strings.Contains(lines[2], "INSERT id=7") {
		t.Errorf("Expected insert entry in %q", lines[2])
	}
	if !strings.Contains(lines[3], "FIRE id=7") {
		t.Errorf("Expected fire entry in %q", lines[3])
	}
}

func TestDebugPrintlnGated(t *testing.T) {
	var lines []string
	SetDebugWriter(func(s string) { lines = append(lines, s) })
	defer SetDebugWriter(func(s string) {})

	SetDebugEnabled(false)
	DebugPrintln("hidden")
	if len(lines) != 0 {
		t.Errorf("Expected no output while disabled, got %v", lines)
	}

	SetDebugEnabled(true)
	DebugPrintln("shown")
	SetDebugEnabled(false)
	if len(lines) != 1 || lines[0] != "shown" {
		t.Errorf("Expected [shown], got %v", lines)
	}
	if IsDebugEnabled() {
		t.Error("Expected debug disabled again")
	}
}
