// Package telemetry aggregates simulation statistics over time windows and
// writes them as structured logs and CSV.
package telemetry

import (
	"github.com/pthm-cable/bastion/remote"
)

// Sample is the state observed at the end of a window.
type Sample struct {
	Units, Dead              int
	Players, Drones, Bullets int
	Cores, Blocks            int
	Health                   []float64 // Current health of live destructible units
	PowerGraphs              int
	PowerSatisfaction        []float64 // Per graph with demand
	PowerStored              float64
	Remote                   remote.Stats
}

// Collector accumulates events within time windows and produces WindowStats.
type Collector struct {
	windowDurationTicks uint64
	delta               float64 // Ticks are frames at 60Hz scaled by delta

	windowStartTick uint64

	hits     int
	kills    int
	respawns int
	removed  int

	lastRemote remote.Stats
}

// NewCollector creates a collector flushing every windowSec simulated seconds.
func NewCollector(windowSec, delta float64) *Collector {
	ticks := uint64(windowSec * 60 / delta)
	if ticks < 1 {
		ticks = 1
	}
	return &Collector{windowDurationTicks: ticks, delta: delta}
}

// RecordHit records a directed hit.
func (c *Collector) RecordHit(killed bool) {
	c.hits++
	if killed {
		c.kills++
	}
}

// RecordRespawn records a unit released by a core.
func (c *Collector) RecordRespawn() {
	c.respawns++
}

// RecordRemoved records units physically removed.
func (c *Collector) RecordRemoved(n int) {
	c.removed += n
}

// ShouldFlush returns true if enough ticks have passed to flush the window.
func (c *Collector) ShouldFlush(tick uint64) bool {
	return tick-c.windowStartTick >= c.windowDurationTicks
}

// WindowDurationTicks returns the number of ticks per window.
func (c *Collector) WindowDurationTicks() uint64 {
	return c.windowDurationTicks
}

// Flush produces a WindowStats and resets counters for the next window.
// Remote counters are reported as the change since the previous flush.
func (c *Collector) Flush(tick uint64, s Sample) WindowStats {
	health := Summarize(s.Health)
	power := Summarize(s.PowerSatisfaction)
	r := s.Remote
	prev := c.lastRemote

	stats := WindowStats{
		WindowStartTick: c.windowStartTick,
		WindowEndTick:   tick,
		SimTimeSec:      float64(tick) * c.delta / 60,

		Units:   s.Units,
		Dead:    s.Dead,
		Players: s.Players,
		Drones:  s.Drones,
		Bullets: s.Bullets,
		Cores:   s.Cores,
		Blocks:  s.Blocks,

		Hits:     c.hits,
		Kills:    c.kills,
		Respawns: c.respawns,
		Removed:  c.removed,

		HealthMean: health.Mean,
		HealthStd:  health.Std,
		HealthP10:  health.P10,
		HealthP50:  health.P50,
		HealthP90:  health.P90,

		PowerGraphs:       s.PowerGraphs,
		PowerSatisfaction: power.Mean,
		PowerStored:       s.PowerStored,

		CallsIssued:    r.Issued - prev.Issued,
		CallsCoalesced: r.Coalesced - prev.Coalesced,
		CallsApplied:   r.Applied - prev.Applied,
		CallsSent:      r.Sent - prev.Sent,
		CallsDropped:   r.Dropped - prev.Dropped,
		CallsRejected:  r.Rejected - prev.Rejected,
	}

	c.windowStartTick = tick
	c.hits = 0
	c.kills = 0
	c.respawns = 0
	c.removed = 0
	c.lastRemote = r

	return stats
}
