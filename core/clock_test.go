package core

import "testing"

func TestTickConversions(t *testing.T) {
	if got := TicksFromUS(250); got != 250 {
		t.Errorf("Expected 250 ticks, got %d", got)
	}
	if got := TicksToUS(1000000); got != 1000000 {
		t.Errorf("Expected 1000000us, got %d", got)
	}
}

func TestUptimeExtendsAcrossWrap(t *testing.T) {
	sim := NewSimTimer()
	SetTickerDriver(sim)
	sim.Attach(SystemTicker())
	uptime = uptimeState{}

	sim.SetCount(0x100)
	if got := Uptime(); got != 0x100 {
		t.Errorf("Expected uptime 0x100, got %#x", got)
	}

	sim.SetCount(0xFFFFFF00)
	if got := Uptime(); got != 0xFFFFFF00 {
		t.Errorf("Expected uptime 0xFFFFFF00, got %#x", got)
	}

	// The counter wrapped since the last poll.
	sim.SetCount(0x42)
	if got := Uptime(); got != 0x100000042 {
		t.Errorf("Expected uptime 0x100000042, got %#x", got)
	}

	// Same value again is not a second wrap.
	if got := Uptime(); got != 0x100000042 {
		t.Errorf("Expected uptime unchanged, got %#x", got)
	}

	sim.SetCount(0x43)
	if got := Uptime(); got != 0x100000043 {
		t.Errorf("Expected uptime 0x100000043, got %#x", got)
	}
}

func TestSystemTickerPanicsUnbound(t *testing.T) {
	saved := systemTicker
	defer func() {
		systemTicker = saved
		if recover() == nil {
			t.Error("Expected panic for unbound ticker driver")
		}
	}()
	systemTicker = nil
	SystemTicker()
}
