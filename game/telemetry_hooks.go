package game

import (
	"github.com/pthm-cable/bastion/blocks"
	"github.com/pthm-cable/bastion/components"
	"github.com/pthm-cable/bastion/telemetry"
	"github.com/pthm-cable/bastion/traits"
)

// flushTelemetry closes the stats window when it is due.
func (g *Game) flushTelemetry() {
	if !g.collector.ShouldFlush(g.tick) {
		return
	}

	stats := g.collector.Flush(g.tick, g.sample())
	perfStats := g.perf.Stats()
	g.lastStats = stats

	if g.opts.StatsCallback != nil {
		g.opts.StatsCallback(stats)
	}
	if g.opts.LogStats {
		stats.LogStats()
		perfStats.LogStats()
	}

	if err := g.output.WriteTelemetry(stats); err != nil {
		g.log.Error("failed to write telemetry", "error", err)
	}
	if err := g.output.WritePerf(perfStats, stats.WindowEndTick); err != nil {
		g.log.Error("failed to write perf", "error", err)
	}
}

// sample observes population, health and power at the current tick.
func (g *Game) sample() telemetry.Sample {
	s := telemetry.Sample{Remote: g.disp.Stats()}

	for e := range g.units.All() {
		s.Units++
		switch g.units.Identity(e).Kind {
		case components.KindPlayer:
			s.Players++
		case components.KindDrone:
			s.Drones++
		case components.KindBullet:
			s.Bullets++
		}
		if !g.units.Has(e, traits.Health) {
			continue
		}
		if g.units.IsDead(e) {
			s.Dead++
			continue
		}
		s.Health = append(s.Health, float64(g.units.Health(e).Value))
	}

	for _, t := range g.world.Placed() {
		s.Blocks++
		if _, ok := t.Entity.(*blocks.CoreEntity); ok {
			s.Cores++
		}
	}

	graphs := g.power.Graphs()
	s.PowerGraphs = len(graphs)
	for _, pg := range graphs {
		b := pg.Balance()
		s.PowerStored += b.Stored
		if b.Needed > 0 {
			s.PowerSatisfaction = append(s.PowerSatisfaction, b.Satisfaction)
		}
	}
	return s
}
