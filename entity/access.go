package entity

import (
	"fmt"

	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/bastion/components"
	"github.com/pthm-cable/bastion/traits"
)

// Capabilities returns the capability set derived from the components an entity carries.
func (r *Registry) Capabilities(e ecs.Entity) traits.Capability {
	if !r.world.Alive(e) {
		return traits.None
	}
	var c traits.Capability
	if r.healthMap.Has(e) {
		c = c.Add(traits.Health)
	}
	if r.damageMap.Has(e) {
		c = c.Add(traits.Damage)
	}
	if r.solidMap.Has(e) {
		c = c.Add(traits.Solid)
	}
	return c
}

// Has reports whether an entity implements every capability in want.
func (r *Registry) Has(e ecs.Entity, want traits.Capability) bool {
	return r.Capabilities(e).Has(want)
}

// Health returns the health component. Panics with *traits.MissingCapabilityError
// if the entity is not destructible.
func (r *Registry) Health(e ecs.Entity) *components.Health {
	traits.Require(r.describe(e), r.Capabilities(e), traits.Health)
	return r.healthMap.Get(e)
}

// Damage returns the damage component. Panics with *traits.MissingCapabilityError
// if the entity deals no damage.
func (r *Registry) Damage(e ecs.Entity) *components.Damage {
	traits.Require(r.describe(e), r.Capabilities(e), traits.Damage)
	return r.damageMap.Get(e)
}

// IsDead reports whether an entity is dead. Entities without health are never dead
// unless they are queued for removal.
func (r *Registry) IsDead(e ecs.Entity) bool {
	if !r.world.Alive(e) {
		return true
	}
	if r.healthMap.Has(e) {
		return r.healthMap.Get(e).Dead
	}
	return r.Pending(e)
}

// SetDead sets the dead flag of a destructible entity.
func (r *Registry) SetDead(e ecs.Entity, dead bool) {
	h := r.Health(e)
	h.Dead = dead
	if dead {
		h.Value = 0
	}
}

// Identity returns the identity component.
func (r *Registry) Identity(e ecs.Entity) *components.Identity {
	return r.identMap.Get(e)
}

// ID returns the stable ID of an entity.
func (r *Registry) ID(e ecs.Entity) uint32 {
	return r.identMap.Get(e).ID
}

// TeamOf returns the team of an entity.
func (r *Registry) TeamOf(e ecs.Entity) components.Team {
	return r.identMap.Get(e).Team
}

// Position returns the position component.
func (r *Registry) Position(e ecs.Entity) *components.Position {
	return r.posMap.Get(e)
}

// Body returns the body component.
func (r *Registry) Body(e ecs.Entity) *components.Body {
	return r.bodyMap.Get(e)
}

// Velocity returns the velocity component.
func (r *Registry) Velocity(e ecs.Entity) *components.Velocity {
	return r.velMap.Get(e)
}

// Rotation returns the rotation component.
func (r *Registry) Rotation(e ecs.Entity) *components.Rotation {
	return r.rotMap.Get(e)
}

// SpawnLink returns the unit's spawner back-reference, if any.
func (r *Registry) SpawnLink(e ecs.Entity) (components.SpawnLink, bool) {
	if !r.world.Alive(e) || !r.linkMap.Has(e) {
		return components.SpawnLink{}, false
	}
	return *r.linkMap.Get(e), true
}

// SetSpawnLink attaches a spawner back-reference to a unit.
func (r *Registry) SetSpawnLink(e ecs.Entity, link components.SpawnLink) {
	if r.linkMap.Has(e) {
		*r.linkMap.Get(e) = link
		return
	}
	r.linkMap.Add(e, &link)
}

// ClearSpawnLink detaches a unit from its spawner.
func (r *Registry) ClearSpawnLink(e ecs.Entity) {
	if r.world.Alive(e) && r.linkMap.Has(e) {
		r.linkMap.Remove(e)
	}
}

// SetPosition moves an entity.
func (r *Registry) SetPosition(e ecs.Entity, x, y float32) {
	pos := r.posMap.Get(e)
	pos.X, pos.Y = x, y
}

func (r *Registry) describe(e ecs.Entity) string {
	if !r.world.Alive(e) {
		return "removed entity"
	}
	ident := r.identMap.Get(e)
	return fmt.Sprintf("%s %d", ident.Kind, ident.ID)
}

// Spec reconstructs the spec an entity could be recreated from.
func (r *Registry) Spec(e ecs.Entity) Spec {
	ident := r.identMap.Get(e)
	pos := r.posMap.Get(e)
	vel := r.velMap.Get(e)
	s := Spec{
		ID:       ident.ID,
		Team:     ident.Team,
		Kind:     ident.Kind,
		Caps:     r.Capabilities(e),
		X:        pos.X,
		Y:        pos.Y,
		VelX:     vel.X,
		VelY:     vel.Y,
		Rotation: r.rotMap.Get(e).Heading,
		Radius:   r.bodyMap.Get(e).Radius,
	}
	if r.healthMap.Has(e) {
		h := r.healthMap.Get(e)
		s.Health = h.Max
		s.Current = h.Value
		s.Dead = h.Dead
	}
	if r.damageMap.Has(e) {
		d := r.damageMap.Get(e)
		s.Damage = d.Amount
		s.Consumable = d.Consumable
	}
	if r.linkMap.Has(e) {
		link := *r.linkMap.Get(e)
		s.Spawner = &link
	}
	return s
}

// Sync overwrites an entity's mutable state from a spec with the same ID.
// Identity and capabilities are fixed at creation and left untouched.
func (r *Registry) Sync(e ecs.Entity, s Spec) {
	pos := r.posMap.Get(e)
	pos.X, pos.Y = s.X, s.Y
	vel := r.velMap.Get(e)
	vel.X, vel.Y = s.VelX, s.VelY
	r.rotMap.Get(e).Heading = s.Rotation

	if r.healthMap.Has(e) {
		h := r.healthMap.Get(e)
		h.Dead = s.Dead
		switch {
		case s.Dead:
			h.Value = 0
		case s.Current > 0:
			h.Value = s.Current
		default:
			h.Value = h.Max
		}
	}
	if s.Spawner != nil {
		r.SetSpawnLink(e, *s.Spawner)
	} else {
		r.ClearSpawnLink(e)
	}
}
