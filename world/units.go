package world

import (
	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/bastion/components"
	"github.com/pthm-cable/bastion/entity"
	"github.com/pthm-cable/bastion/traits"
)

// UnitSpec returns the creation spec for a unit of the given kind, using the
// configured stats for that kind.
func (w *World) UnitSpec(kind components.UnitKind, team components.Team, x, y float32) entity.Spec {
	stats := w.cfg.Unit(kind)
	spec := entity.Spec{
		Team:   team,
		Kind:   kind,
		X:      x,
		Y:      y,
		Radius: float32(stats.Radius),
		Caps:   traits.Solid,
	}
	if stats.Health > 0 {
		spec.Caps = spec.Caps.Add(traits.Health)
		spec.Health = float32(stats.Health)
	}
	if stats.Damage > 0 {
		spec.Caps = spec.Caps.Add(traits.Damage)
		spec.Damage = float32(stats.Damage)
	}
	if kind == components.KindBullet {
		spec.Consumable = true
	}
	return spec
}

// SpawnUnit creates a unit of the given kind at a world position.
func (w *World) SpawnUnit(kind components.UnitKind, team components.Team, x, y float32) (ecs.Entity, error) {
	return w.units.Add(w.UnitSpec(kind, team, x, y))
}

// SpawnerOf resolves a unit's spawn link to the spawner on that tile.
// Returns false if the unit has no link or the tile no longer hosts a spawner.
func (w *World) SpawnerOf(e ecs.Entity) (traits.SpawnerTrait, bool) {
	link, ok := w.units.SpawnLink(e)
	if !ok {
		return nil, false
	}
	t := w.Tile(link.TileX, link.TileY)
	if t == nil || t.Empty() {
		return nil, false
	}
	sp, ok := t.Origin().Entity.(traits.SpawnerTrait)
	return sp, ok
}
