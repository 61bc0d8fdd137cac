package mcu

import (
	"bytes"
	"compress/zlib"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"tickmux/host/serial"
	"tickmux/protocol"
)

// MCU represents a connection to a tickmux microcontroller
type MCU struct {
	// Transport layer
	transport *protocol.HostTransport

	// Serial port
	port serial.Port

	// Dictionary data
	dictionary     *Dictionary
	dictionaryData []byte

	// Name lookups built from the dictionary format strings
	commandIndex  map[string]dictEntry
	responseIndex map[int]dictEntry

	// Async event delivery
	eventMu      sync.Mutex
	eventHandler EventHandler

	// Connection state
	connected bool
}

// Dictionary represents the parsed MCU dictionary
type Dictionary struct {
	Version       string                    `json:"version"`
	BuildVersions string                    `json:"build_versions"`
	Config        map[string]string         `json:"config"`
	Commands      map[string]int            `json:"commands"`
	Responses     map[string]int            `json:"responses"`
	Enumerations  map[string]map[string]int `json:"enumerations,omitempty"`
}

// dictEntry is one command or response resolved from the dictionary
type dictEntry struct {
	id     int
	name   string
	format string
}

// EventHandler receives asynchronous event_fired notifications
type EventHandler func(oid uint8, clock uint32)

// ConfigState mirrors the config response fields
type ConfigState struct {
	IsConfig   bool
	CRC        uint32
	IsShutdown bool
	MaxEvents  uint8
}

// TickerStats mirrors the ticker_stats response fields
type TickerStats struct {
	Pending    uint8
	Dispatched uint32
	Late       uint32
	MaxLag     uint32
	Drops      uint32
}

// NewMCU creates a new MCU instance (not yet connected)
func NewMCU() *MCU {
	return &MCU{
		connected: false,
	}
}

// Connect connects to an MCU via serial port
func (m *MCU) Connect(device string) error {
	return m.ConnectWithConfig(serial.DefaultConfig(device))
}

// ConnectWithConfig connects to an MCU with a custom serial config
func (m *MCU) ConnectWithConfig(cfg *serial.Config) error {
	// Open serial port
	port, err := serial.Open(cfg)
	if err != nil {
		return fmt.Errorf("failed to open serial port: %w", err)
	}

	m.port = port
	m.transport = protocol.NewHostTransport(port)
	m.connected = true

	// Give MCU time to initialize (if it just powered on)
	time.Sleep(100 * time.Millisecond)

	return nil
}

// Close closes the connection to the MCU
func (m *MCU) Close() error {
	if m.transport != nil {
		if err := m.transport.Close(); err != nil {
			return err
		}
	}
	m.connected = false
	return nil
}

// RetrieveDictionary retrieves the complete dictionary from the MCU
func (m *MCU) RetrieveDictionary() error {
	if !m.connected {
		return fmt.Errorf("not connected to MCU")
	}

	fmt.Println("Retrieving dictionary from MCU...")

	// Dictionary will be retrieved in chunks
	// Start with offset 0, count 40 (typical chunk size)
	var dictBuffer bytes.Buffer
	offset := uint32(0)
	chunkSize := uint8(40)
	maxIterations := 1000 // Safety limit

	for i := 0; i < maxIterations; i++ {
		// Send identify command
		chunk, err := m.sendIdentify(offset, chunkSize)
		if err != nil {
			return fmt.Errorf("failed to retrieve dictionary chunk at offset %d: %w", offset, err)
		}

		if len(chunk) == 0 {
			// No more data
			break
		}

		// Append chunk to buffer
		dictBuffer.Write(chunk)
		offset += uint32(len(chunk))

		// Progress indicator
		if i%10 == 0 {
			fmt.Printf("  Retrieved %d bytes...\n", offset)
		}

		// If we got less than requested, we're done
		if len(chunk) < int(chunkSize) {
			break
		}
	}

	m.dictionaryData = dictBuffer.Bytes()
	fmt.Printf("Dictionary retrieved: %d bytes\n", len(m.dictionaryData))

	// The firmware deflates the dictionary with zlib; inflate it here
	decompressed, err := m.tryDecompress(m.dictionaryData)
	if err == nil && len(decompressed) > 0 {
		fmt.Printf("Dictionary decompressed: %d -> %d bytes\n", len(m.dictionaryData), len(decompressed))
		m.dictionaryData = decompressed
	}

	// Parse dictionary JSON
	if err := m.parseDictionary(); err != nil {
		return fmt.Errorf("failed to parse dictionary: %w", err)
	}

	// Install the async handler only once response IDs can be resolved
	m.transport.SetResponseHandler(m.handleResponse)

	return nil
}

// sendIdentify sends an identify command and waits for response.
// identify is pinned at command ID 1 and identify_response at ID 0 by
// the firmware's bootstrap registration order, so the handshake works
// before any dictionary is available.
func (m *MCU) sendIdentify(offset uint32, count uint8) ([]byte, error) {
	err := m.transport.SendCommand(1, func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, offset)
		protocol.EncodeVLQUint(output, uint32(count))
	})

	if err != nil {
		return nil, fmt.Errorf("failed to send identify command: %w", err)
	}

	// Wait for response (identify_response has cmdID=0)
	resp, err := m.transport.ReceiveResponse(1 * time.Second)
	if err != nil {
		return nil, fmt.Errorf("failed to receive identify response: %w", err)
	}

	// Parse response payload: cmdID (VLQ), offset (VLQ), data (VLQ bytes)
	payload := resp.Payload

	// Decode command ID (should be 0 for identify_response)
	cmdID, err := protocol.DecodeVLQUint(&payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode response command ID: %w", err)
	}

	if cmdID != 0 {
		return nil, fmt.Errorf("unexpected response command ID: %d (expected 0)", cmdID)
	}

	// Decode offset (should match our request)
	respOffset, err := protocol.DecodeVLQUint(&payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode response offset: %w", err)
	}

	if respOffset != offset {
		return nil, fmt.Errorf("offset mismatch: expected %d, got %d", offset, respOffset)
	}

	// Decode data (VLQ-encoded byte array)
	data, err := protocol.DecodeVLQBytes(&payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode response data: %w", err)
	}

	return data, nil
}

// tryDecompress inflates a zlib-compressed dictionary
func (m *MCU) tryDecompress(data []byte) ([]byte, error) {
	// zlib streams start with 0x78
	if len(data) < 2 || data[0] != 0x78 {
		return nil, fmt.Errorf("not zlib compressed")
	}

	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open zlib stream: %w", err)
	}
	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to inflate dictionary: %w", err)
	}

	return out, nil
}

// parseDictionary parses the dictionary JSON
func (m *MCU) parseDictionary() error {
	dict := &Dictionary{}
	if err := json.Unmarshal(m.dictionaryData, dict); err != nil {
		return fmt.Errorf("failed to unmarshal JSON: %w", err)
	}

	m.dictionary = dict
	m.buildIndexes()
	return nil
}

// buildIndexes splits the dictionary format strings into name lookups.
// Dictionary keys are full format strings ("schedule_event oid=%c
// clock=%u"), so commands with arguments cannot be found by exact match.
func (m *MCU) buildIndexes() {
	m.commandIndex = make(map[string]dictEntry, len(m.dictionary.Commands))
	for format, id := range m.dictionary.Commands {
		name, rest, _ := strings.Cut(format, " ")
		m.commandIndex[name] = dictEntry{id: id, name: name, format: rest}
	}

	m.responseIndex = make(map[int]dictEntry, len(m.dictionary.Responses))
	for format, id := range m.dictionary.Responses {
		name, rest, _ := strings.Cut(format, " ")
		m.responseIndex[id] = dictEntry{id: id, name: name, format: rest}
	}
}

// handleResponse handles responses pushed by the MCU (async callback).
// Solicited responses are claimed through waitResponse; only unsolicited
// event_fired notifications are dispatched here.
func (m *MCU) handleResponse(cmdID uint16, data *[]byte) error {
	entry, ok := m.responseIndex[int(cmdID)]
	if !ok || entry.name != "event_fired" {
		return nil
	}

	payload := *data
	oid, err := protocol.DecodeVLQUint(&payload)
	if err != nil {
		return err
	}
	clock, err := protocol.DecodeVLQUint(&payload)
	if err != nil {
		return err
	}

	m.eventMu.Lock()
	handler := m.eventHandler
	m.eventMu.Unlock()

	if handler != nil {
		handler(uint8(oid), clock)
	}
	return nil
}

// SetEventHandler registers a callback for event_fired notifications.
// The callback runs on the transport's read goroutine and must not block.
func (m *MCU) SetEventHandler(h EventHandler) {
	m.eventMu.Lock()
	m.eventHandler = h
	m.eventMu.Unlock()
}

// waitResponse waits for a specific named response, skipping any other
// traffic (such as event_fired notifications) that arrives in between
func (m *MCU) waitResponse(name string, timeout time.Duration) ([]byte, error) {
	deadline := time.Now().Add(timeout)

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, fmt.Errorf("timeout waiting for %s response", name)
		}

		resp, err := m.transport.ReceiveResponse(remaining)
		if err != nil {
			return nil, fmt.Errorf("failed to receive %s response: %w", name, err)
		}

		payload := resp.Payload
		respID, err := protocol.DecodeVLQUint(&payload)
		if err != nil {
			continue
		}

		entry, ok := m.responseIndex[int(respID)]
		if !ok || entry.name != name {
			continue
		}

		return payload, nil
	}
}

// GetClock reads the current 32-bit tick counter
func (m *MCU) GetClock() (uint32, error) {
	if err := m.SendCommand("get_clock", nil); err != nil {
		return 0, err
	}

	payload, err := m.waitResponse("clock", time.Second)
	if err != nil {
		return 0, err
	}

	clock, err := protocol.DecodeVLQUint(&payload)
	if err != nil {
		return 0, fmt.Errorf("failed to decode clock: %w", err)
	}
	return clock, nil
}

// GetUptime reads the 64-bit extended uptime
func (m *MCU) GetUptime() (uint64, error) {
	if err := m.SendCommand("get_uptime", nil); err != nil {
		return 0, err
	}

	payload, err := m.waitResponse("uptime", time.Second)
	if err != nil {
		return 0, err
	}

	high, err := protocol.DecodeVLQUint(&payload)
	if err != nil {
		return 0, fmt.Errorf("failed to decode uptime high word: %w", err)
	}
	low, err := protocol.DecodeVLQUint(&payload)
	if err != nil {
		return 0, fmt.Errorf("failed to decode uptime low word: %w", err)
	}
	return uint64(high)<<32 | uint64(low), nil
}

// GetConfig reads the configuration state
func (m *MCU) GetConfig() (*ConfigState, error) {
	if err := m.SendCommand("get_config", nil); err != nil {
		return nil, err
	}

	payload, err := m.waitResponse("config", time.Second)
	if err != nil {
		return nil, err
	}

	fields := make([]uint32, 4)
	for i := range fields {
		v, err := protocol.DecodeVLQUint(&payload)
		if err != nil {
			return nil, fmt.Errorf("failed to decode config field %d: %w", i, err)
		}
		fields[i] = v
	}

	return &ConfigState{
		IsConfig:   fields[0] != 0,
		CRC:        fields[1],
		IsShutdown: fields[2] != 0,
		MaxEvents:  uint8(fields[3]),
	}, nil
}

// ScheduleEvent arms a one-shot event at an absolute clock value
func (m *MCU) ScheduleEvent(oid uint8, clock uint32) error {
	return m.SendCommand("schedule_event", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(oid))
		protocol.EncodeVLQUint(output, clock)
	})
}

// SchedulePeriodic arms a repeating event with its first delivery at
// clock and following deliveries every period ticks
func (m *MCU) SchedulePeriodic(oid uint8, clock, period uint32) error {
	return m.SendCommand("schedule_periodic", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(oid))
		protocol.EncodeVLQUint(output, clock)
		protocol.EncodeVLQUint(output, period)
	})
}

// CancelEvent disarms a scheduled event
func (m *MCU) CancelEvent(oid uint8) error {
	return m.SendCommand("cancel_event", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(oid))
	})
}

// GetTickerStats reads the dispatch statistics counters
func (m *MCU) GetTickerStats() (*TickerStats, error) {
	if err := m.SendCommand("get_ticker_stats", nil); err != nil {
		return nil, err
	}

	payload, err := m.waitResponse("ticker_stats", time.Second)
	if err != nil {
		return nil, err
	}

	fields := make([]uint32, 5)
	for i := range fields {
		v, err := protocol.DecodeVLQUint(&payload)
		if err != nil {
			return nil, fmt.Errorf("failed to decode stats field %d: %w", i, err)
		}
		fields[i] = v
	}

	return &TickerStats{
		Pending:    uint8(fields[0]),
		Dispatched: fields[1],
		Late:       fields[2],
		MaxLag:     fields[3],
		Drops:      fields[4],
	}, nil
}

// FinalizeConfig locks the configuration under a host-chosen CRC
func (m *MCU) FinalizeConfig(crc uint32) error {
	return m.SendCommand("finalize_config", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, crc)
	})
}

// ConfigReset clears the configuration CRC, unlocking finalize_config
func (m *MCU) ConfigReset() error {
	return m.SendCommand("config_reset", nil)
}

// EmergencyStop shuts the scheduler down; nothing fires again until the
// configuration is reset
func (m *MCU) EmergencyStop() error {
	return m.SendCommand("emergency_stop", nil)
}

// ResetMCU reboots the firmware. The ACK arrives before the reset, so
// the serial device disappears shortly after this returns
func (m *MCU) ResetMCU() error {
	return m.SendCommand("reset", nil)
}

// GetDictionary returns the parsed dictionary
func (m *MCU) GetDictionary() *Dictionary {
	return m.dictionary
}

// GetDictionaryRaw returns the raw dictionary data
func (m *MCU) GetDictionaryRaw() []byte {
	return m.dictionaryData
}

// MCUName returns the MCU type advertised in the dictionary config
func (m *MCU) MCUName() string {
	if m.dictionary == nil {
		return ""
	}
	return m.dictionary.Config["MCU"]
}

// ClockFreq returns the tick rate advertised in the dictionary config,
// or 0 when no dictionary is loaded
func (m *MCU) ClockFreq() uint32 {
	if m.dictionary == nil {
		return 0
	}
	freq, err := strconv.ParseUint(m.dictionary.Config["CLOCK_FREQ"], 10, 32)
	if err != nil {
		return 0
	}
	return uint32(freq)
}

// PrintDictionary prints a summary of the dictionary
func (m *MCU) PrintDictionary() {
	if m.dictionary == nil {
		fmt.Println("No dictionary loaded")
		return
	}

	fmt.Println("\n=== MCU Dictionary ===")
	fmt.Printf("Version: %s\n", m.dictionary.Version)
	fmt.Printf("Build: %s\n", m.dictionary.BuildVersions)

	fmt.Println("\nConfig:")
	configNames := make([]string, 0, len(m.dictionary.Config))
	for k := range m.dictionary.Config {
		configNames = append(configNames, k)
	}
	sort.Strings(configNames)
	for _, k := range configNames {
		fmt.Printf("  %s = %s\n", k, m.dictionary.Config[k])
	}

	fmt.Printf("\nCommands (%d):\n", len(m.dictionary.Commands))
	printFormats(m.dictionary.Commands)

	fmt.Printf("\nResponses (%d):\n", len(m.dictionary.Responses))
	printFormats(m.dictionary.Responses)

	if len(m.dictionary.Enumerations) > 0 {
		fmt.Printf("\nEnumerations (%d):\n", len(m.dictionary.Enumerations))
		for name, values := range m.dictionary.Enumerations {
			fmt.Printf("  %s: %d values\n", name, len(values))
		}
	}

	fmt.Println("======================")
}

// printFormats prints a format-string map in ID order
func printFormats(formats map[string]int) {
	names := make([]string, 0, len(formats))
	for name := range formats {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return formats[names[i]] < formats[names[j]]
	})
	for _, name := range names {
		fmt.Printf("  [%d] %s\n", formats[name], name)
	}
}

// SendCommand sends a named command to the MCU
func (m *MCU) SendCommand(name string, args func(output protocol.OutputBuffer)) error {
	if !m.connected {
		return fmt.Errorf("not connected to MCU")
	}

	if m.dictionary == nil {
		return fmt.Errorf("dictionary not loaded")
	}

	entry, ok := m.commandIndex[name]
	if !ok {
		return fmt.Errorf("unknown command: %s", name)
	}

	return m.transport.SendCommand(uint16(entry.id), args)
}

// IsConnected returns whether the MCU is connected
func (m *MCU) IsConnected() bool {
	return m.connected
}
