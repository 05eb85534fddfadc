package systems

import (
	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/bastion/entity"
	"github.com/pthm-cable/bastion/traits"
)

// HitEvent describes one directed collision: Source dealt Amount to Target.
type HitEvent struct {
	Source uint32
	Target uint32
	Amount float32
	Killed bool // Target died from this hit
}

// HitFunc is notified after a hit has been applied.
type HitFunc func(HitEvent)

// CollisionStats summarizes one resolution pass.
type CollisionStats struct {
	Candidates int // Solid entities in the broad phase
	Pairs      int // Overlapping unordered pairs
	Hits       int // Directed hits applied
	Kills      int
}

// CollisionSystem resolves contact damage between overlapping solid entities.
type CollisionSystem struct {
	reg  *entity.Registry
	grid *SpatialGrid

	// FriendlyFire lets damage sources hurt their own team.
	FriendlyFire bool

	listeners []HitFunc

	neighbors []Neighbor
	pairs     []pair
}

type pair struct {
	a, b ecs.Entity
}

// NewCollisionSystem creates a collision system over a shared grid.
func NewCollisionSystem(reg *entity.Registry, grid *SpatialGrid) *CollisionSystem {
	return &CollisionSystem{
		reg:       reg,
		grid:      grid,
		neighbors: make([]Neighbor, 0, 32),
	}
}

// OnHit registers a hit listener.
func (s *CollisionSystem) OnHit(fn HitFunc) {
	s.listeners = append(s.listeners, fn)
}

// Grid returns the broad-phase grid, valid after Rebuild.
func (s *CollisionSystem) Grid() *SpatialGrid {
	return s.grid
}

// Rebuild refills the broad-phase grid with every live, non-dead solid entity.
func (s *CollisionSystem) Rebuild() {
	s.grid.Clear()
	for e := range s.reg.All() {
		if !s.reg.Has(e, traits.Solid) || s.reg.IsDead(e) {
			continue
		}
		pos := s.reg.Position(e)
		s.grid.Insert(e, pos.X, pos.Y, s.reg.Body(e).Radius)
	}
}

// Update resolves one collision pass over the current grid contents.
// Each overlapping pair is visited once; both directions are evaluated on the
// state the pair had before either hit was applied.
func (s *CollisionSystem) Update() CollisionStats {
	stats := CollisionStats{Candidates: s.grid.Len()}
	s.collectPairs()
	stats.Pairs = len(s.pairs)

	for _, p := range s.pairs {
		// An earlier pair may have killed or consumed one side
		if !s.active(p.a) || !s.active(p.b) {
			continue
		}
		aHitsB := s.collides(p.b, p.a)
		bHitsA := s.collides(p.a, p.b)
		if aHitsB {
			stats.Hits++
			if s.hit(p.a, p.b) {
				stats.Kills++
			}
		}
		if bHitsA {
			stats.Hits++
			if s.hit(p.b, p.a) {
				stats.Kills++
			}
		}
	}
	return stats
}

// collectPairs gathers unordered overlapping pairs in grid order.
func (s *CollisionSystem) collectPairs() {
	s.pairs = s.pairs[:0]
	maxR := s.grid.MaxRadius()

	for _, cell := range s.grid.cells {
		for _, it := range cell {
			idA := s.reg.ID(it.e)
			s.neighbors = s.grid.QueryRadiusInto(s.neighbors[:0], it.x, it.y, it.radius+maxR, it.e)
			for _, n := range s.neighbors {
				// Each pair is taken from its lower-ID side only
				if s.reg.ID(n.E) < idA {
					continue
				}
				r := it.radius + n.Radius
				if n.DistSq >= r*r {
					continue
				}
				s.pairs = append(s.pairs, pair{a: it.e, b: n.E})
			}
		}
	}
}

// collides reports whether receiver reacts to contact with other: the
// receiver must be destructible and the other must deal damage.
func (s *CollisionSystem) collides(receiver, other ecs.Entity) bool {
	if !s.reg.Has(receiver, traits.Health) || !s.reg.Has(other, traits.Damage) {
		return false
	}
	return s.FriendlyFire || s.reg.TeamOf(receiver) != s.reg.TeamOf(other)
}

// hit applies source's damage to target. The source's hit hook runs first.
func (s *CollisionSystem) hit(source, target ecs.Entity) bool {
	dmg := s.reg.Damage(source)
	amount := dmg.Amount
	if dmg.Consumable {
		s.reg.Remove(source)
	}

	killed := s.reg.Health(target).Apply(amount)
	ev := HitEvent{Source: s.reg.ID(source), Target: s.reg.ID(target), Amount: amount, Killed: killed}
	for _, fn := range s.listeners {
		fn(ev)
	}
	return killed
}

func (s *CollisionSystem) active(e ecs.Entity) bool {
	return s.reg.Alive(e) && !s.reg.IsDead(e)
}
