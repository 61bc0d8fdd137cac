package core

// DebugWriter is a function type for writing debug messages
type DebugWriter func(string)

// TraceEvent captures one queue operation for post-mortem analysis
type TraceEvent struct {
	EventType uint8   // Event type code
	ID        EventID // Ticker event ID
	Clock     Ticks   // Counter value at the operation
	Value1    Ticks   // Context-dependent value
	Value2    Ticks   // Context-dependent value
}

// Event type codes
const (
	EvtInsert = 1 // Event linked into the queue
	EvtArm    = 2 // Compare match armed
	EvtFire   = 3 // Event dispatched on time
	EvtLate   = 4 // Event dispatched behind schedule
	EvtCancel = 5 // Event removed before firing
)

const (
	TraceRingSize = 32 // Keep last 32 events for post-mortem

	// LateWarnTicks is the dispatch lag above which a fire is recorded as
	// late. 1ms at the 1MHz counter.
	LateWarnTicks Ticks = 1000
)

// DispatchStats aggregates delivery latency since the last reset.
type DispatchStats struct {
	Dispatched uint32 // Events delivered
	Late       uint32 // Deliveries lagging more than LateWarnTicks
	MaxLag     Ticks  // Worst observed lag
	LagSum     uint64 // Total lag, for averaging on the host
}

var (
	// debugPrintln is the global debug print function (set by platform code)
	debugPrintln DebugWriter = func(s string) {} // No-op by default

	// debugEnabled controls whether debug output is active
	// Disabled by default for performance; platform code turns it on
	debugEnabled bool = false

	// Trace capture ring buffer (non-blocking, for post-mortem)
	traceRing     [TraceRingSize]TraceEvent
	traceRingHead uint8
	traceEnabled  bool = true // Always capture queue operations

	dispatchStats DispatchStats

	// Async debug output channel
	debugChan chan string
)

// SetDebugWriter sets the platform-specific debug output function
// This allows platforms to redirect debug output to UART, USB, etc.
func SetDebugWriter(writer DebugWriter) {
	debugPrintln = writer
}

// SetDebugEnabled enables or disables debug output
// Useful for benchmarks where debug output would affect timing
func SetDebugEnabled(enabled bool) {
	debugEnabled = enabled
}

// IsDebugEnabled returns whether debug output is enabled
func IsDebugEnabled() bool {
	return debugEnabled
}

// InitAsyncDebug starts the async debug output goroutine
// Call this from main() after SetDebugWriter
func InitAsyncDebug() {
	debugChan = make(chan string, 16) // Buffer 16 messages
	go debugOutputWorker()
}

// debugOutputWorker runs in background, drains debug channel
func debugOutputWorker() {
	for msg := range debugChan {
		if debugPrintln != nil {
			debugPrintln(msg)
		}
	}
}

// DebugPrintln writes a debug message using the platform-specific writer
// Blocks if debug is enabled (use DebugAsync for non-blocking)
func DebugPrintln(msg string) {
	if debugEnabled && debugPrintln != nil {
		debugPrintln(msg)
	}
}

// DebugAsync queues a debug message for async output (non-blocking)
// Returns immediately even if channel is full (drops message)
func DebugAsync(msg string) {
	if debugChan != nil {
		select {
		case debugChan <- msg:
		default:
			// Channel full, drop message (non-blocking)
		}
	}
}

// recordTrace captures a queue operation in the ring buffer
// This is always non-blocking and cheap enough for the interrupt path
func recordTrace(eventType uint8, id EventID, clock, value1, value2 Ticks) {
	if !traceEnabled {
		return
	}
	idx := traceRingHead
	traceRing[idx] = TraceEvent{
		EventType: eventType,
		ID:        id,
		Clock:     clock,
		Value1:    value1,
		Value2:    value2,
	}
	traceRingHead = (idx + 1) % TraceRingSize
}

// recordDispatch folds one delivery into the latency aggregates.
func recordDispatch(lag Ticks) {
	dispatchStats.Dispatched++
	dispatchStats.LagSum += uint64(lag)
	if lag > dispatchStats.MaxLag {
		dispatchStats.MaxLag = lag
	}
	if lag > LateWarnTicks {
		dispatchStats.Late++
	}
}

// GetDispatchStats returns a snapshot of the latency aggregates.
func GetDispatchStats() DispatchStats {
	state := disableInterrupts()
	defer restoreInterrupts(state)
	return dispatchStats
}

// ResetDispatchStats clears the latency aggregates.
func ResetDispatchStats() {
	state := disableInterrupts()
	defer restoreInterrupts(state)
	dispatchStats = DispatchStats{}
}

// DumpTraceRing outputs the trace ring buffer (call on shutdown/error)
// This should be called from a goroutine or after stopping time-critical code
func DumpTraceRing() {
	if debugPrintln == nil {
		return
	}

	stats := GetDispatchStats()
	debugPrintln("[TRACE] === Queue Trace Dump ===")
	debugPrintln("[TRACE] Dispatched: " + utoa(stats.Dispatched) +
		" late=" + utoa(stats.Late) +
		" maxlag=" + utoa(uint32(stats.MaxLag)))

	// Read from oldest to newest
	start := traceRingHead
	for i := uint8(0); i < TraceRingSize; i++ {
		idx := (start + i) % TraceRingSize
		evt := &traceRing[idx]
		if evt.EventType == 0 {
			continue // Empty slot
		}

		var name string
		switch evt.EventType {
		case EvtInsert:
			name = "INSERT"
		case EvtArm:
			name = "ARM"
		case EvtFire:
			name = "FIRE"
		case EvtLate:
			name = "LATE!"
		case EvtCancel:
			name = "CANCEL"
		default:
			name = "UNKNOWN"
		}

		debugPrintln("[TRACE] " + name +
			" id=" + utoa(uint32(evt.ID)) +
			" clock=" + htoa(uint32(evt.Clock)) +
			" v1=" + htoa(uint32(evt.Value1)) +
			" v2=" + utoa(uint32(evt.Value2)))
	}
	debugPrintln("[TRACE] === End Dump ===")
}

// ClearTraceRing clears the trace buffer
func ClearTraceRing() {
	for i := range traceRing {
		traceRing[i] = TraceEvent{}
	}
	traceRingHead = 0
}
