// Dispatch latency benchmark for the ticker queue.
//
// Runs against the simulated compare timer, so it works on any host:
//
//	go run ./test/tickerbench
//
// Interrupt service delay is modelled by moving the counter in coarse
// steps and only then delivering the pending compare match, the way a
// masked-interrupt section delays the real handler. Reported lag is
// therefore the queue's own behavior under a known service delay, with
// no host scheduler noise in the numbers.
package main

import (
	"fmt"
	"math/rand"
	"sort"
	"time"

	"tickmux/core"
)

const (
	benchEvents = 256

	// Deadlines are spread across this window of ticks
	benchWindow = 1_000_000

	// The counter jumps this far between interrupt deliveries
	benchServiceStep = 200
)

var (
	queue     *core.TickerQueue
	deadlines [benchEvents]core.Ticks
	lagSample []core.Ticks
	fireOrder []core.EventID
)

func main() {
	fmt.Println("=== Ticker Queue Dispatch Benchmark ===")

	sim := core.NewSimTimer()
	queue = core.NewTickerQueue(sim)
	sim.Attach(queue)
	queue.SetHandler(recordFire)

	fmt.Println("\n--- Insert cost by queue depth ---")
	benchInsertCost(sim)

	fmt.Println("\n--- Dispatch lag under delayed service ---")
	benchDispatchLag(sim)

	fmt.Println("\n--- Ordering across a counter wrap ---")
	benchWrapOrdering(sim)

	fmt.Println("\nDone.")
}

// recordFire is the dispatch handler for all workloads
func recordFire(id core.EventID) {
	fireOrder = append(fireOrder, id)

	lag := (queue.Now() - deadlines[id]) & core.TimeMask
	if lag > core.PastTolerance {
		// Dispatched inside the near-future window, so the deadline has
		// not passed yet. Count it as on time.
		lag = 0
	}
	lagSample = append(lagSample, lag)
}

// benchInsertCost measures the chain walk as the queue grows. Insert is
// a linear scan, so cost per insert should grow with depth.
func benchInsertCost(sim *core.SimTimer) {
	rng := rand.New(rand.NewSource(1))

	for _, depth := range []int{16, 64, 256, 1024} {
		events := make([]core.TickerEvent, depth)
		sim.SetCount(0)

		start := time.Now()
		for i := range events {
			when := core.Ticks(rng.Intn(benchWindow)) + 1000
			queue.Insert(&events[i], when, core.EventID(i))
		}
		elapsed := time.Since(start)

		fmt.Printf("  depth %4d: %6d ns/insert\n", depth, elapsed.Nanoseconds()/int64(depth))

		// Drain without dispatch bookkeeping
		for i := range events {
			queue.Remove(&events[i])
		}
	}
}

// benchDispatchLag schedules events at random deadlines and services the
// compare interrupt only every benchServiceStep ticks
func benchDispatchLag(sim *core.SimTimer) {
	rng := rand.New(rand.NewSource(2))
	var events [benchEvents]core.TickerEvent

	lagSample = lagSample[:0]
	fireOrder = fireOrder[:0]
	core.ResetDispatchStats()
	sim.SetCount(0)

	for i := range events {
		deadlines[i] = core.Ticks(rng.Intn(benchWindow)) + 100
		queue.Insert(&events[i], deadlines[i], core.EventID(i))
	}

	// Walk time in coarse steps: move the counter with interrupts held
	// off, then deliver whatever came due
	for t := core.Ticks(0); t < benchWindow+benchServiceStep; t += benchServiceStep {
		sim.SetCount(t)
		for sim.Poll() {
		}
	}

	if len(lagSample) != benchEvents {
		fmt.Printf("  ERROR: %d of %d events fired\n", len(lagSample), benchEvents)
		return
	}

	stats := core.GetDispatchStats()
	fmt.Printf("  events:     %d\n", stats.Dispatched)
	fmt.Printf("  late (>%dus): %d\n", core.LateWarnTicks, stats.Late)
	fmt.Printf("  max lag:    %d ticks\n", stats.MaxLag)
	printPercentiles(lagSample)
}

// benchWrapOrdering starts the counter just short of the wrap and checks
// that deadlines on both sides of it fire in circular order
func benchWrapOrdering(sim *core.SimTimer) {
	const startCount = core.TimeMask - 5000

	var events [8]core.TickerEvent
	lagSample = lagSample[:0]
	fireOrder = fireOrder[:0]
	sim.SetCount(startCount)

	// Deadlines straddle the wrap: the first few sit below it, the rest
	// land past zero
	for i := range events {
		deadlines[i] = (startCount + core.Ticks(1000+1000*i)) & core.TimeMask
		queue.Insert(&events[i], deadlines[i], core.EventID(i))
	}

	sim.Advance(10000)

	ok := len(fireOrder) == len(events)
	for i, id := range fireOrder {
		if int(id) != i {
			ok = false
		}
	}
	if ok {
		fmt.Printf("  %d events crossed the wrap in order: OK\n", len(events))
	} else {
		fmt.Printf("  ERROR: fire order %v\n", fireOrder)
	}
}

func printPercentiles(samples []core.Ticks) {
	sorted := make([]core.Ticks, len(samples))
	copy(sorted, samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	fmt.Printf("  lag p50:    %d ticks\n", sorted[len(sorted)*50/100])
	fmt.Printf("  lag p90:    %d ticks\n", sorted[len(sorted)*90/100])
	fmt.Printf("  lag p99:    %d ticks\n", sorted[len(sorted)*99/100])
}
