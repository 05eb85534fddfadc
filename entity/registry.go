// Package entity owns the live entity set: identity, capabilities and lifecycle.
package entity

import (
	"errors"
	"fmt"
	"iter"

	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/bastion/components"
	"github.com/pthm-cable/bastion/traits"
)

var (
	// ErrDuplicateID is returned when an entity is added with an ID already in use.
	ErrDuplicateID = errors.New("entity: duplicate id")
	// ErrNotFound is returned for lookups of unknown or removed IDs.
	ErrNotFound = errors.New("entity: not found")
)

// Spec describes an entity to create.
type Spec struct {
	ID   uint32 // 0 assigns the next free ID
	Team components.Team
	Kind components.UnitKind
	Caps traits.Capability

	X, Y       float32
	VelX, VelY float32
	Rotation   float32
	Radius     float32

	Health  float32 // Max health, used when Caps has Health
	Current float32 // Current health; zero means full
	Dead    bool    // Create as a dead placeholder

	Damage     float32 // Used when Caps has Damage
	Consumable bool

	Spawner *components.SpawnLink
}

// RemoveFunc is called for every entity physically removed by Flush.
type RemoveFunc func(e ecs.Entity)

// Registry tracks all live entities in an ark world.
// Removal is deferred: Remove queues, Flush applies.
type Registry struct {
	world *ecs.World

	baseMapper *ecs.Map3[components.Identity, components.Position, components.Body]
	baseFilter *ecs.Filter2[components.Identity, components.Position]

	identMap  *ecs.Map[components.Identity]
	posMap    *ecs.Map[components.Position]
	bodyMap   *ecs.Map[components.Body]
	velMap    *ecs.Map[components.Velocity]
	rotMap    *ecs.Map[components.Rotation]
	healthMap *ecs.Map[components.Health]
	damageMap *ecs.Map[components.Damage]
	solidMap  *ecs.Map[components.Solid]
	linkMap   *ecs.Map[components.SpawnLink]

	nextID uint32
	byID   map[uint32]ecs.Entity
	groups [components.NumTeams]map[uint32]ecs.Entity

	pending      map[ecs.Entity]struct{}
	pendingOrder []ecs.Entity

	onRemove []RemoveFunc

	snapshots [][]ecs.Entity // free list of iteration buffers
}

// NewRegistry creates a registry on top of the given world.
func NewRegistry(world *ecs.World) *Registry {
	r := &Registry{
		world:      world,
		baseMapper: ecs.NewMap3[components.Identity, components.Position, components.Body](world),
		baseFilter: ecs.NewFilter2[components.Identity, components.Position](world),
		identMap:   ecs.NewMap[components.Identity](world),
		posMap:     ecs.NewMap[components.Position](world),
		bodyMap:    ecs.NewMap[components.Body](world),
		velMap:     ecs.NewMap[components.Velocity](world),
		rotMap:     ecs.NewMap[components.Rotation](world),
		healthMap:  ecs.NewMap[components.Health](world),
		damageMap:  ecs.NewMap[components.Damage](world),
		solidMap:   ecs.NewMap[components.Solid](world),
		linkMap:    ecs.NewMap[components.SpawnLink](world),
		nextID:     1,
		byID:       make(map[uint32]ecs.Entity),
		pending:    make(map[ecs.Entity]struct{}),
	}
	for i := range r.groups {
		r.groups[i] = make(map[uint32]ecs.Entity)
	}
	return r
}

// Add creates an entity from a spec and inserts it into its team group.
func (r *Registry) Add(spec Spec) (ecs.Entity, error) {
	if spec.Team >= components.NumTeams {
		return ecs.Entity{}, fmt.Errorf("entity: invalid team %d", spec.Team)
	}

	id := spec.ID
	if id == 0 {
		id = r.nextID
	}
	if _, exists := r.byID[id]; exists {
		return ecs.Entity{}, fmt.Errorf("%w: %d", ErrDuplicateID, id)
	}
	if id >= r.nextID {
		r.nextID = id + 1
	}

	ident := components.Identity{ID: id, Team: spec.Team, Kind: spec.Kind}
	pos := components.Position{X: spec.X, Y: spec.Y}
	body := components.Body{Radius: spec.Radius}
	e := r.baseMapper.NewEntity(&ident, &pos, &body)

	r.velMap.Add(e, &components.Velocity{X: spec.VelX, Y: spec.VelY})
	r.rotMap.Add(e, &components.Rotation{Heading: spec.Rotation})

	if spec.Caps.Has(traits.Health) {
		h := components.Health{Value: spec.Health, Max: spec.Health, Dead: spec.Dead}
		if spec.Current > 0 && spec.Current < spec.Health {
			h.Value = spec.Current
		}
		if spec.Dead {
			h.Value = 0
		}
		r.healthMap.Add(e, &h)
	}
	if spec.Caps.Has(traits.Damage) {
		r.damageMap.Add(e, &components.Damage{Amount: spec.Damage, Consumable: spec.Consumable})
	}
	if spec.Caps.Has(traits.Solid) {
		r.solidMap.Add(e, &components.Solid{})
	}
	if spec.Spawner != nil {
		link := *spec.Spawner
		r.linkMap.Add(e, &link)
	}

	r.byID[id] = e
	r.groups[spec.Team][id] = e
	return e, nil
}

// Remove marks an entity dead and queues it for removal at the next Flush.
// Removing an entity twice, or one already gone, is a no-op.
func (r *Registry) Remove(e ecs.Entity) {
	if !r.world.Alive(e) {
		return
	}
	if _, queued := r.pending[e]; queued {
		return
	}
	if r.healthMap.Has(e) {
		h := r.healthMap.Get(e)
		h.Dead = true
	}
	r.pending[e] = struct{}{}
	r.pendingOrder = append(r.pendingOrder, e)
}

// Pending reports whether an entity is queued for removal.
func (r *Registry) Pending(e ecs.Entity) bool {
	_, ok := r.pending[e]
	return ok
}

// OnRemove registers a callback invoked before each entity is physically removed.
func (r *Registry) OnRemove(fn RemoveFunc) {
	r.onRemove = append(r.onRemove, fn)
}

// Flush physically removes every queued entity and returns their IDs in queue order.
// Entities queued by remove callbacks are removed in the same flush.
func (r *Registry) Flush() []uint32 {
	var removed []uint32
	for len(r.pendingOrder) > 0 {
		batch := r.pendingOrder
		r.pendingOrder = nil

		for _, e := range batch {
			if !r.world.Alive(e) {
				delete(r.pending, e)
				continue
			}
			for _, fn := range r.onRemove {
				fn(e)
			}
			ident := r.identMap.Get(e)
			delete(r.byID, ident.ID)
			delete(r.groups[ident.Team], ident.ID)
			removed = append(removed, ident.ID)
			delete(r.pending, e)
			r.world.RemoveEntity(e)
		}
	}
	return removed
}

// Count returns the number of registered entities, including ones pending removal.
func (r *Registry) Count() int {
	return len(r.byID)
}

// TeamCount returns the number of registered entities of a team.
func (r *Registry) TeamCount(team components.Team) int {
	if team >= components.NumTeams {
		return 0
	}
	return len(r.groups[team])
}

// Lookup resolves a stable ID. Removed entities are never returned.
func (r *Registry) Lookup(id uint32) (ecs.Entity, bool) {
	e, ok := r.byID[id]
	if !ok || !r.world.Alive(e) {
		return ecs.Entity{}, false
	}
	return e, true
}

// Resolve is Lookup returning ErrNotFound for unknown IDs.
func (r *Registry) Resolve(id uint32) (ecs.Entity, error) {
	e, ok := r.Lookup(id)
	if !ok {
		return ecs.Entity{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return e, nil
}

// Alive reports whether the entity exists and is not queued for removal.
func (r *Registry) Alive(e ecs.Entity) bool {
	if !r.world.Alive(e) {
		return false
	}
	_, queued := r.pending[e]
	return !queued
}

// NextID returns the ID the next auto-assigned entity will receive.
func (r *Registry) NextID() uint32 {
	return r.nextID
}

// All iterates every live entity not queued for removal.
// Iteration runs over a snapshot, so the loop body may add or remove entities.
func (r *Registry) All() iter.Seq[ecs.Entity] {
	return func(yield func(ecs.Entity) bool) {
		snap := r.snapshot()
		defer r.release(snap)
		for _, e := range snap {
			if !r.Alive(e) {
				continue
			}
			if !yield(e) {
				return
			}
		}
	}
}

// Team iterates live entities of one team.
func (r *Registry) Team(team components.Team) iter.Seq[ecs.Entity] {
	return func(yield func(ecs.Entity) bool) {
		for e := range r.All() {
			if r.identMap.Get(e).Team != team {
				continue
			}
			if !yield(e) {
				return
			}
		}
	}
}

// ForEach calls action for every live entity matching pred (nil matches all).
func (r *Registry) ForEach(pred func(ecs.Entity) bool, action func(ecs.Entity)) {
	for e := range r.All() {
		if pred != nil && !pred(e) {
			continue
		}
		action(e)
	}
}

// snapshot collects entity handles so that the world is unlocked while callers act on them.
func (r *Registry) snapshot() []ecs.Entity {
	var buf []ecs.Entity
	if n := len(r.snapshots); n > 0 {
		buf = r.snapshots[n-1][:0]
		r.snapshots = r.snapshots[:n-1]
	} else {
		buf = make([]ecs.Entity, 0, len(r.byID))
	}

	query := r.baseFilter.Query()
	for query.Next() {
		buf = append(buf, query.Entity())
	}
	return buf
}

func (r *Registry) release(buf []ecs.Entity) {
	r.snapshots = append(r.snapshots, buf[:0])
}
