// SPDX-License-Identifier: Apache-2.0

// Package stats tracks the running counters surfaced by the live
// monitor and printed at shutdown (C12, spec's expanded §4.11): commands
// handled, packets served, packets missed, bytes transmitted, resets,
// and unknown-command diagnostics.
package stats

import (
	"fmt"
	"sync"
	"time"

	"github.com/chrislenderman/nabuadapter/internal/nabu"
)

// Snapshot is a read-only copy of the counters at one instant; it is
// never shared live (spec's expanded §3).
type Snapshot struct {
	CommandsHandled  uint64
	PacketsServed    uint64
	PacketsMissed    uint64
	BytesTransmitted uint64
	Resets           uint64
	UnknownCommands  uint64
	Since            time.Time
}

// Collector observes a nabu.Sink's events and accumulates Snapshot
// counters. Counters are monotonically non-decreasing for the lifetime
// of a Collector (testable property 8).
type Collector struct {
	mu    sync.Mutex
	since time.Time
	snap  Snapshot
}

// NewCollector returns an empty Collector timestamped at construction.
func NewCollector() *Collector {
	return &Collector{since: time.Now()}
}

// Observe folds one event into the running counters. Safe to call from
// any goroutine; intended to be driven by an eventbus subscription.
func (c *Collector) Observe(ev nabu.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch ev.Kind {
	case nabu.EventCommandStarted:
		c.snap.CommandsHandled++
	case nabu.EventPacketServed, nabu.EventTimeSegmentServed:
		c.snap.PacketsServed++
	case nabu.EventPacketMissed:
		c.snap.PacketsMissed++
	case nabu.EventReset:
		c.snap.Resets++
	case nabu.EventUnknownCommand:
		c.snap.UnknownCommands++
	}
}

// ObserveBytes records bytes written to the serial link, used alongside
// Observe since byte counts aren't carried on nabu.Event itself.
func (c *Collector) ObserveBytes(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap.BytesTransmitted += uint64(n)
}

// Snapshot returns a point-in-time copy of the counters.
func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.snap
	s.Since = c.since
	return s
}

// Run drains events from a channel (as returned by an eventbus
// subscription) until it is closed, folding each into the collector.
func (c *Collector) Run(events <-chan nabu.Event) {
	for ev := range events {
		c.Observe(ev)
	}
}

// String renders a one-line-per-counter shutdown summary.
func (s Snapshot) String() string {
	elapsed := time.Since(s.Since)
	return fmt.Sprintf(
		"=== Statistics (%.0f seconds) ===\r\n"+
			"Commands Handled:  %8d\r\n"+
			"Packets Served:    %8d\r\n"+
			"Packets Missed:    %8d\r\n"+
			"Bytes Transmitted: %8d\r\n"+
			"Resets:            %8d\r\n"+
			"Unknown Commands:  %8d\r\n"+
			"================================\r\n",
		elapsed.Seconds(), s.CommandsHandled, s.PacketsServed, s.PacketsMissed,
		s.BytesTransmitted, s.Resets, s.UnknownCommands)
}
