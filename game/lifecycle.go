package game

import (
	"fmt"
	"math"

	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/bastion/components"
	"github.com/pthm-cable/bastion/traits"
)

// SpawnPlayer creates a dead player unit for owner. It is attached to the
// team's closest core on the next tick and respawns through it.
func (g *Game) SpawnPlayer(team components.Team, owner string) (uint32, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.spawnPlayer(team, owner)
}

func (g *Game) spawnPlayer(team components.Team, owner string) (uint32, error) {
	x, y := g.bounds.Width/2, g.bounds.Height/2
	if core := g.world.ClosestCore(team, x, y); core != nil {
		x, y = g.world.DrawPos(core)
	}
	spec := g.world.UnitSpec(components.KindPlayer, team, x, y)
	spec.Dead = true
	e, err := g.units.Add(spec)
	if err != nil {
		return 0, fmt.Errorf("spawning player for %s: %w", owner, err)
	}
	id := g.units.ID(e)
	g.owners[id] = owner
	g.log.Info("player_spawned", "unit", id, "team", team, "owner", owner)
	return id, nil
}

// ReleasePlayer removes every unit owned by owner.
func (g *Game) ReleasePlayer(owner string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for id, o := range g.owners {
		if o != owner {
			continue
		}
		if e, ok := g.units.Lookup(id); ok {
			g.units.Remove(e)
			n++
		}
	}
	return n
}

// Owner returns the peer controlling a unit. Use inside Do.
func (g *Game) Owner(unit uint32) (string, bool) {
	o, ok := g.owners[unit]
	return o, ok
}

// updateUnits hands dead units to their spawners and steers drones.
// Only the authoritative side attaches, detaches or removes units.
func (g *Game) updateUnits(authoritative bool) {
	for e := range g.units.All() {
		ident := g.units.Identity(e)
		if !g.units.IsDead(e) {
			if authoritative && ident.Kind == components.KindDrone {
				g.steerDrone(e)
			}
			continue
		}

		if sp, ok := g.world.SpawnerOf(e); ok {
			sp.UpdateSpawning(ident.ID)
			continue
		}
		if !authoritative {
			continue
		}
		// The spawner is gone
		g.units.ClearSpawnLink(e)

		switch ident.Kind {
		case components.KindPlayer:
			pos := g.units.Position(e)
			core := g.world.ClosestCore(ident.Team, pos.X, pos.Y)
			if core == nil {
				continue
			}
			g.units.SetSpawnLink(e, components.SpawnLink{TileX: core.X, TileY: core.Y})
			if sp, ok := core.Entity.(traits.SpawnerTrait); ok {
				sp.UpdateSpawning(ident.ID)
			}
		default:
			g.units.Remove(e)
		}
	}
}

// steerDrone picks a new random heading for a drone that stopped or reached
// the edge of the world.
func (g *Game) steerDrone(e ecs.Entity) {
	vel := g.units.Velocity(e)
	pos := g.units.Position(e)
	atEdge := pos.X <= 0 || pos.Y <= 0 || pos.X >= g.bounds.Width || pos.Y >= g.bounds.Height
	if (vel.X != 0 || vel.Y != 0) && !atEdge {
		return
	}
	speed := float32(g.cfg.Units.Drone.Speed)
	angle := g.rng.Float64() * 2 * math.Pi
	vel.X = speed * float32(math.Cos(angle))
	vel.Y = speed * float32(math.Sin(angle))
}
