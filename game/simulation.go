package game

import (
	"github.com/pthm-cable/bastion/remote"
	"github.com/pthm-cable/bastion/telemetry"
)

// Step advances the simulation by one tick.
func (g *Game) Step() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.step()
}

// step runs one tick. Clients mirror the server: they drain broadcasts and
// run block timers and movement, but unit lifecycle and combat are left to
// the server and arrive through snapshots.
func (g *Game) step() {
	g.perf.StartTick()

	g.tick++
	g.world.SetTick(g.tick)
	g.disp.BeginTick(g.tick)
	authoritative := g.disp.Side() != remote.SideClient

	g.perf.StartPhase(telemetry.PhaseDrain)
	g.disp.Drain()

	// Topology changes from drained calls take effect before any graph runs
	g.perf.StartPhase(telemetry.PhasePower)
	if g.power.Rebuild() {
		g.log.Debug("power_rebuilt", "tick", g.tick, "graphs", len(g.power.Graphs()), "revision", g.power.Revision())
	}

	g.perf.StartPhase(telemetry.PhaseBlocks)
	g.world.Update()

	g.perf.StartPhase(telemetry.PhaseUnits)
	g.updateUnits(authoritative)

	g.perf.StartPhase(telemetry.PhaseMovement)
	g.movement.Update(g.world.Delta())

	if authoritative {
		g.perf.StartPhase(telemetry.PhaseCollision)
		g.collision.Rebuild()
		g.collision.Update()
	}

	g.perf.StartPhase(telemetry.PhaseCleanup)
	removed := g.units.Flush()
	g.collector.RecordRemoved(len(removed))

	g.perf.StartPhase(telemetry.PhaseFlush)
	if err := g.disp.Flush(); err != nil {
		g.log.Warn("remote_flush_failed", "tick", g.tick, "err", err)
	}

	g.perf.StartPhase(telemetry.PhaseTelemetry)
	g.flushTelemetry()

	g.perf.EndTick()
}
