package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync/atomic"

	"tickmux/host/mcu"
	"tickmux/host/serial"
)

var (
	device  = flag.String("device", "/dev/ttyACM0", "Serial device path")
	baud    = flag.Int("baud", 250000, "Baud rate (ignored for USB CDC)")
	verbose = flag.Bool("verbose", false, "Print the full dictionary on connect")
)

// watching gates the async event_fired printer
var watching atomic.Bool

func main() {
	flag.Parse()

	fmt.Println("Tickmux Host - Timer Event Console")
	fmt.Println("==================================")

	// Create MCU instance
	mcuConn := mcu.NewMCU()

	// Connect to MCU
	fmt.Printf("Connecting to MCU on %s...\n", *device)
	cfg := serial.DefaultConfig(*device)
	cfg.Baud = *baud
	if err := mcuConn.ConnectWithConfig(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer mcuConn.Close()

	fmt.Println("Connected successfully!")

	// Retrieve dictionary
	if err := mcuConn.RetrieveDictionary(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to retrieve dictionary: %v\n", err)
		os.Exit(1)
	}

	if *verbose {
		mcuConn.PrintDictionary()
	} else {
		dict := mcuConn.GetDictionary()
		fmt.Printf("MCU: %s, clock %d Hz, firmware %s\n",
			mcuConn.MCUName(), mcuConn.ClockFreq(), dict.Version)
	}

	// Print event deliveries pushed by the MCU while watch is on
	mcuConn.SetEventHandler(func(oid uint8, clock uint32) {
		if watching.Load() {
			fmt.Printf("\n[event] oid=%d clock=%d\n> ", oid, clock)
		}
	})

	// Interactive command loop
	fmt.Println("Enter commands (type 'help' for available commands, 'quit' to exit):")
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		parts := strings.Fields(line)
		cmd := parts[0]

		switch cmd {
		case "quit", "exit", "q":
			fmt.Println("Goodbye!")
			return

		case "help", "?":
			printHelp()

		case "dict":
			mcuConn.PrintDictionary()

		case "raw":
			// Print raw dictionary data
			raw := mcuConn.GetDictionaryRaw()
			fmt.Printf("Raw dictionary data (%d bytes):\n%s\n", len(raw), string(raw))

		case "get_clock", "clock":
			doGetClock(mcuConn)

		case "get_uptime", "uptime":
			doGetUptime(mcuConn)

		case "get_config", "config":
			doGetConfig(mcuConn)

		case "finalize_config", "finalize":
			doFinalizeConfig(mcuConn, parts[1:])

		case "config_reset":
			if err := mcuConn.ConfigReset(); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				continue
			}
			fmt.Println("Configuration cleared")

		case "schedule_event", "schedule":
			doScheduleEvent(mcuConn, parts[1:])

		case "schedule_periodic", "periodic":
			doSchedulePeriodic(mcuConn, parts[1:])

		case "cancel_event", "cancel":
			doCancelEvent(mcuConn, parts[1:])

		case "get_ticker_stats", "stats":
			doGetStats(mcuConn)

		case "watch":
			if watching.Load() {
				watching.Store(false)
				fmt.Println("Event watch OFF")
			} else {
				watching.Store(true)
				fmt.Println("Event watch ON")
			}

		case "emergency_stop", "estop":
			if err := mcuConn.EmergencyStop(); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				continue
			}
			fmt.Println("Emergency stop sent; reconnect or reset to recover")

		case "reset":
			if err := mcuConn.ResetMCU(); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				continue
			}
			fmt.Println("Reset sent; the device will re-enumerate")
			return

		default:
			fmt.Printf("Unknown command: %s (type 'help' for available commands)\n", cmd)
		}
	}

	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "Error reading input: %v\n", err)
		os.Exit(1)
	}
}

func printHelp() {
	fmt.Println("\nAvailable commands:")
	fmt.Println("  help                              - Show this help message")
	fmt.Println("  dict                              - Print dictionary summary")
	fmt.Println("  raw                               - Print raw dictionary data")
	fmt.Println("  clock                             - Read the 32-bit tick counter")
	fmt.Println("  uptime                            - Read the 64-bit uptime")
	fmt.Println("  config                            - Read the configuration state")
	fmt.Println("  finalize <crc>                    - Lock the configuration")
	fmt.Println("  config_reset                      - Clear the configuration CRC")
	fmt.Println("  schedule <oid> <delta>            - One-shot event delta ticks from now")
	fmt.Println("  periodic <oid> <delta> <period>   - Repeating event, first in delta ticks")
	fmt.Println("  cancel <oid>                      - Cancel a scheduled event")
	fmt.Println("  stats                             - Read dispatch statistics")
	fmt.Println("  watch                             - Toggle live event_fired printing")
	fmt.Println("  estop                             - Emergency stop the scheduler")
	fmt.Println("  reset                             - Reboot the MCU")
	fmt.Println("  quit/exit/q                       - Exit the program")
	fmt.Println()
}

func doGetClock(mcuConn *mcu.MCU) {
	clock, err := mcuConn.GetClock()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return
	}

	if freq := mcuConn.ClockFreq(); freq > 0 {
		fmt.Printf("clock=%d (%.3fs into the current wrap)\n", clock, float64(clock)/float64(freq))
	} else {
		fmt.Printf("clock=%d\n", clock)
	}
}

func doGetUptime(mcuConn *mcu.MCU) {
	uptime, err := mcuConn.GetUptime()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return
	}

	if freq := mcuConn.ClockFreq(); freq > 0 {
		fmt.Printf("uptime=%d ticks (%.1fs)\n", uptime, float64(uptime)/float64(freq))
	} else {
		fmt.Printf("uptime=%d ticks\n", uptime)
	}
}

func doGetConfig(mcuConn *mcu.MCU) {
	state, err := mcuConn.GetConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return
	}

	fmt.Printf("is_config=%v crc=%d is_shutdown=%v max_events=%d\n",
		state.IsConfig, state.CRC, state.IsShutdown, state.MaxEvents)
}

func doFinalizeConfig(mcuConn *mcu.MCU, args []string) {
	if len(args) != 1 {
		fmt.Println("Usage: finalize <crc>")
		return
	}

	crc, err := strconv.ParseUint(args[0], 0, 32)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: bad crc %q: %v\n", args[0], err)
		return
	}

	if err := mcuConn.FinalizeConfig(uint32(crc)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return
	}
	fmt.Printf("Configuration finalized with crc=%d\n", crc)
}

func doScheduleEvent(mcuConn *mcu.MCU, args []string) {
	if len(args) != 2 {
		fmt.Println("Usage: schedule <oid> <ticks-from-now>")
		return
	}

	oid, err := strconv.ParseUint(args[0], 0, 8)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: bad oid %q: %v\n", args[0], err)
		return
	}
	delta, err := strconv.ParseUint(args[1], 0, 32)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: bad delta %q: %v\n", args[1], err)
		return
	}

	// Anchor the deadline against the MCU's clock, not the host's
	now, err := mcuConn.GetClock()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return
	}

	target := now + uint32(delta)
	if err := mcuConn.ScheduleEvent(uint8(oid), target); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return
	}
	fmt.Printf("Scheduled oid=%d at clock=%d (now+%d)\n", oid, target, delta)
}

func doSchedulePeriodic(mcuConn *mcu.MCU, args []string) {
	if len(args) != 3 {
		fmt.Println("Usage: periodic <oid> <ticks-from-now> <period>")
		return
	}

	oid, err := strconv.ParseUint(args[0], 0, 8)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: bad oid %q: %v\n", args[0], err)
		return
	}
	delta, err := strconv.ParseUint(args[1], 0, 32)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: bad delta %q: %v\n", args[1], err)
		return
	}
	period, err := strconv.ParseUint(args[2], 0, 32)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: bad period %q: %v\n", args[2], err)
		return
	}
	if period == 0 {
		fmt.Fprintln(os.Stderr, "Error: period must be nonzero")
		return
	}

	now, err := mcuConn.GetClock()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return
	}

	target := now + uint32(delta)
	if err := mcuConn.SchedulePeriodic(uint8(oid), target, uint32(period)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return
	}
	fmt.Printf("Scheduled oid=%d at clock=%d, repeating every %d ticks\n", oid, target, period)
}

func doCancelEvent(mcuConn *mcu.MCU, args []string) {
	if len(args) != 1 {
		fmt.Println("Usage: cancel <oid>")
		return
	}

	oid, err := strconv.ParseUint(args[0], 0, 8)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: bad oid %q: %v\n", args[0], err)
		return
	}

	if err := mcuConn.CancelEvent(uint8(oid)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return
	}
	fmt.Printf("Cancelled oid=%d\n", oid)
}

func doGetStats(mcuConn *mcu.MCU) {
	stats, err := mcuConn.GetTickerStats()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return
	}

	fmt.Printf("pending=%d dispatched=%d late=%d maxlag=%d drops=%d\n",
		stats.Pending, stats.Dispatched, stats.Late, stats.MaxLag, stats.Drops)
}
