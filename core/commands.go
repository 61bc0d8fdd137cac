package core

import (
	"errors"
	"sync/atomic"

	"tickmux/protocol"
)

// FirmwareState holds the global firmware state
type FirmwareState struct {
	configCRC  uint32 // atomic
	isShutdown uint32 // atomic bool
	maxEvents  uint16
}

var globalState = &FirmwareState{
	maxEvents: MaxEventSlots,
}

// MaxEventSlots is the number of host-schedulable event slots. The host
// addresses a slot by oid, 0 through MaxEventSlots-1.
const MaxEventSlots = 16

// eventBinding maps a host oid onto the task claimed for it.
type eventBinding struct {
	task   TaskID
	active bool
}

// firedNote is one delivery notification, queued from interrupt context
// and flushed to the host by the main loop.
type firedNote struct {
	oid   uint8
	clock Ticks
}

var (
	eventBindings [MaxEventSlots]eventBinding
	tickerTasks   *TaskSet

	firedRing   [MaxEventSlots]firedNote
	firedHead   uint8 // next write, interrupt side
	firedTail   uint8 // next read, main loop side
	notifyDrops uint32
)

// InitCoreCommands registers all core protocol commands
// IMPORTANT: Command registration order matters!
// The host bootstraps from a fixed two-entry dictionary:
//
//	identify_response = ID 0
//	identify = ID 1
func InitCoreCommands() {
	// Bootstrap messages - MUST be first so a fresh host can identify
	RegisterCommand("identify_response", "offset=%u data=%*s", nil)   // ID 0
	RegisterCommand("identify", "offset=%u count=%c", handleIdentify) // ID 1

	// Other commands (order doesn't matter after bootstrap)
	RegisterCommand("get_uptime", "", handleGetUptime)
	RegisterCommand("get_clock", "", handleGetClock)
	RegisterCommand("get_config", "", handleGetConfig)
	RegisterCommand("config_reset", "", handleConfigReset)
	RegisterCommand("finalize_config", "crc=%u", handleFinalizeConfig)
	RegisterCommand("schedule_event", "oid=%c clock=%u", handleScheduleEvent)
	RegisterCommand("schedule_periodic", "oid=%c clock=%u period=%u", handleSchedulePeriodic)
	RegisterCommand("cancel_event", "oid=%c", handleCancelEvent)
	RegisterCommand("get_ticker_stats", "", handleGetTickerStats)
	RegisterCommand("emergency_stop", "", handleEmergencyStop)
	RegisterCommand("reset", "", handleReset)

	// Response messages (MCU -> Host)
	RegisterResponse("clock", "clock=%u")
	RegisterResponse("uptime", "high=%u clock=%u")
	RegisterResponse("config", "is_config=%c crc=%u is_shutdown=%c max_events=%c")
	RegisterResponse("event_fired", "oid=%c clock=%u")
	RegisterResponse("ticker_stats", "pending=%c dispatched=%u late=%u maxlag=%u drops=%u")

	// Queue parameters the host needs for scheduling decisions.
	// Note: MCU and CLOCK_FREQ are platform-specific and registered in
	// targets/*/ticker.go
	RegisterConstant("MAX_EVENT_SLOTS", uint32(MaxEventSlots))
	RegisterConstant("TICKER_FUTURE_TOLERANCE", uint32(FutureTolerance))
	RegisterConstant("TICKER_PAST_TOLERANCE", uint32(PastTolerance))
	RegisterConstant("TICKER_EXPECT_ISR_DELAY", uint32(ExpectISRDelay))
}

// InitTickerCommands binds the task set the schedule_* handlers drive.
// Call after InitCoreCommands, before the transport starts dispatching.
func InitTickerCommands(ts *TaskSet) {
	tickerTasks = ts
}

// handleIdentify returns chunks of the data dictionary
func handleIdentify(data *[]byte) error {
	// Decode arguments: offset (uint32), count (uint8)
	offset, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	count8, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	count := uint8(count8)

	// Get dictionary chunk
	chunk := GetGlobalDictionary().GetChunk(offset, count)

	// Send identify_response
	SendResponse("identify_response", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, offset)
		protocol.EncodeVLQBytes(output, chunk)
	})

	return nil
}

// handleGetUptime returns the wrap-extended 64-bit tick count
func handleGetUptime(data *[]byte) error {
	uptime := Uptime()
	high := uint32(uptime >> 32)
	low := uint32(uptime & 0xFFFFFFFF)

	SendResponse("uptime", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, high)
		protocol.EncodeVLQUint(output, low)
	})

	return nil
}

// handleGetClock returns the current counter value
func handleGetClock(data *[]byte) error {
	if tickerTasks == nil {
		return errors.New("ticker not bound")
	}
	clock := tickerTasks.Queue().Now()

	SendResponse("clock", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(clock))
	})

	return nil
}

// handleGetConfig returns the configuration state
func handleGetConfig(data *[]byte) error {
	crc := atomic.LoadUint32(&globalState.configCRC)
	isShutdown := atomic.LoadUint32(&globalState.isShutdown) != 0
	isConfig := crc != 0

	SendResponse("config", func(output protocol.OutputBuffer) {
		// is_config (bool)
		if isConfig {
			protocol.EncodeVLQUint(output, 1)
		} else {
			protocol.EncodeVLQUint(output, 0)
		}
		// crc (uint32)
		protocol.EncodeVLQUint(output, crc)
		// is_shutdown (bool)
		if isShutdown {
			protocol.EncodeVLQUint(output, 1)
		} else {
			protocol.EncodeVLQUint(output, 0)
		}
		// max_events (uint8)
		protocol.EncodeVLQUint(output, uint32(globalState.maxEvents))
	})

	return nil
}

// handleConfigReset resets the configuration state
func handleConfigReset(data *[]byte) error {
	atomic.StoreUint32(&globalState.configCRC, 0)
	return nil
}

// handleFinalizeConfig finalizes the configuration with a CRC
func handleFinalizeConfig(data *[]byte) error {
	crc, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	atomic.StoreUint32(&globalState.configCRC, crc)
	return nil
}

// handleScheduleEvent arms a one-shot event slot for an absolute clock
func handleScheduleEvent(data *[]byte) error {
	oid, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	clock, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	return scheduleSlot(oid, Ticks(clock), 0)
}

// handleSchedulePeriodic arms a repeating event slot: first fire at clock,
// then every period ticks
func handleSchedulePeriodic(data *[]byte) error {
	oid, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	clock, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	period, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	if period == 0 {
		return errors.New("schedule_periodic: zero period")
	}
	return scheduleSlot(oid, Ticks(clock), Ticks(period))
}

// scheduleSlot claims a task for the oid; an already armed slot is
// rescheduled in place.
func scheduleSlot(oid uint32, when, period Ticks) error {
	if IsShutdown() {
		return errors.New("scheduling rejected: shutdown")
	}
	if oid >= MaxEventSlots {
		return errors.New("bad event oid: " + utoa(oid))
	}
	if tickerTasks == nil {
		return errors.New("ticker not bound")
	}

	b := &eventBindings[oid]
	if b.active {
		tickerTasks.Cancel(b.task)
		b.active = false
	}

	o := uint8(oid)
	var fn TaskFunc
	if period != 0 {
		fn = func() {
			noteFired(o, tickerTasks.Queue().Now())
		}
	} else {
		// One-shot: release the binding as it fires, so a stale oid can
		// never cancel a recycled task.
		fn = func() {
			b.active = false
			noteFired(o, tickerTasks.Queue().Now())
		}
	}

	var ok bool
	if period != 0 {
		b.task, ok = tickerTasks.EveryAt(when, period, fn)
	} else {
		b.task, ok = tickerTasks.At(when, fn)
	}
	if !ok {
		return errors.New("no free task slot for oid " + utoa(oid))
	}
	b.active = true
	return nil
}

// handleCancelEvent disarms an event slot; an idle slot is a no-op
func handleCancelEvent(data *[]byte) error {
	oid, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	if oid >= MaxEventSlots {
		return errors.New("bad event oid: " + utoa(oid))
	}

	b := &eventBindings[oid]
	if b.active {
		tickerTasks.Cancel(b.task)
		b.active = false
	}
	return nil
}

// ClearAllEvents disarms every host-scheduled event slot
func ClearAllEvents() {
	for i := range eventBindings {
		b := &eventBindings[i]
		if b.active {
			if tickerTasks != nil {
				tickerTasks.Cancel(b.task)
			}
			b.active = false
		}
	}
}

// handleGetTickerStats reports queue depth and delivery latency aggregates
func handleGetTickerStats(data *[]byte) error {
	if tickerTasks == nil {
		return errors.New("ticker not bound")
	}
	stats := GetDispatchStats()
	pending := tickerTasks.Queue().PendingCount()

	SendResponse("ticker_stats", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(pending))
		protocol.EncodeVLQUint(output, stats.Dispatched)
		protocol.EncodeVLQUint(output, stats.Late)
		protocol.EncodeVLQUint(output, uint32(stats.MaxLag))
		protocol.EncodeVLQUint(output, atomic.LoadUint32(&notifyDrops))
	})

	return nil
}

// noteFired queues a delivery notification from interrupt context. Single
// producer (the compare interrupt), single consumer (FlushFiredEvents);
// a full ring drops the notification and counts it.
func noteFired(oid uint8, clock Ticks) {
	if pulseBackend != nil {
		pulseBackend.Pulse()
	}
	next := (firedHead + 1) % MaxEventSlots
	if next == firedTail {
		atomic.AddUint32(&notifyDrops, 1)
		return
	}
	firedRing[firedHead] = firedNote{oid: oid, clock: clock}
	firedHead = next
}

// FlushFiredEvents sends an event_fired response for every queued delivery
// notification. Called from the main loop, never from interrupt context.
func FlushFiredEvents() {
	for firedTail != firedHead {
		n := firedRing[firedTail]
		firedTail = (firedTail + 1) % MaxEventSlots
		SendResponse("event_fired", func(output protocol.OutputBuffer) {
			protocol.EncodeVLQUint(output, uint32(n.oid))
			protocol.EncodeVLQUint(output, uint32(n.clock))
		})
	}
}

// handleEmergencyStop halts scheduling and drops every pending event
func handleEmergencyStop(data *[]byte) error {
	atomic.StoreUint32(&globalState.isShutdown, 1)
	ClearAllEvents()
	return nil
}

// TryShutdown triggers a firmware shutdown with a reason message
// Used by safety mechanisms like the main loop panic recovery
func TryShutdown(reason string) {
	atomic.StoreUint32(&globalState.isShutdown, 1)
	ClearAllEvents()
	DebugAsync("shutdown: " + reason)
}

// IsShutdown returns true if the firmware is in shutdown state
func IsShutdown() bool {
	return atomic.LoadUint32(&globalState.isShutdown) != 0
}

// ResetFirmwareState resets the firmware state for reconnection
// This is called when USB reconnects or firmware restart is requested
func ResetFirmwareState() {
	atomic.StoreUint32(&globalState.configCRC, 0)
	atomic.StoreUint32(&globalState.isShutdown, 0)
	ClearAllEvents()
	ResetDispatchStats()
}

// SendResponse sends a response message using the global transport
func SendResponse(responseName string, args func(output protocol.OutputBuffer)) {
	if globalTransport != nil {
		// Look up response command ID
		cmd, ok := globalRegistry.GetCommandByName(responseName)
		if !ok {
			// All responses are pre-registered, so this is a firmware bug
			panic("Response not registered: " + responseName)
		}

		globalTransport.SendCommand(cmd.ID, args)
	}
}

// Global transport for sending responses (set by main)
var globalTransport *protocol.Transport

// SetGlobalTransport sets the global transport for sending responses
func SetGlobalTransport(transport *protocol.Transport) {
	globalTransport = transport
}

// Global reset handler (set by target-specific code)
var globalResetHandler func()

// resetPending is set when a reset command is received
// The actual reset happens in the main loop after the ACK is sent
var resetPending uint32 // atomic bool

// SetResetHandler sets the platform-specific reset handler
func SetResetHandler(handler func()) {
	globalResetHandler = handler
}

// handleReset triggers a hardware reset of the MCU
// NOTE: The actual reset is deferred until after the ACK is sent to the host
func handleReset(_ *[]byte) error {
	// Set flag to trigger reset in main loop
	// Don't reset immediately - we need to send ACK first!
	atomic.StoreUint32(&resetPending, 1)
	return nil
}

// CheckPendingReset checks if a reset was requested and executes it
// This should be called from the main loop after all pending messages are sent
func CheckPendingReset() {
	if atomic.LoadUint32(&resetPending) != 0 {
		// The reset handler (watchdog) has its own built-in delay
		if globalResetHandler != nil {
			globalResetHandler()
			// Should never return - reset handler should reset the MCU
		}
	}
}
