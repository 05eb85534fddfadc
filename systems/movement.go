package systems

import (
	"math"

	"github.com/pthm-cable/bastion/components"
	"github.com/pthm-cable/bastion/entity"
)

// Bounds represents the simulation bounds in world units.
type Bounds struct {
	Width, Height float32
}

// Contains reports whether a point lies inside the bounds.
func (b Bounds) Contains(x, y float32) bool {
	return x >= 0 && y >= 0 && x < b.Width && y < b.Height
}

// BlockedFunc reports whether a unit of the given team may not enter a point.
type BlockedFunc func(team components.Team, x, y float32) bool

// MovementSystem integrates velocities.
// Dead units hold still; bullets leaving the world are removed.
type MovementSystem struct {
	reg     *entity.Registry
	bounds  Bounds
	blocked BlockedFunc
}

// NewMovementSystem creates a movement system. blocked may be nil.
func NewMovementSystem(reg *entity.Registry, bounds Bounds, blocked BlockedFunc) *MovementSystem {
	return &MovementSystem{reg: reg, bounds: bounds, blocked: blocked}
}

// Update moves every live entity by velocity*delta and returns how many moved.
func (s *MovementSystem) Update(delta float32) int {
	moved := 0
	for e := range s.reg.All() {
		if s.reg.IsDead(e) {
			continue
		}
		vel := s.reg.Velocity(e)
		if vel.X == 0 && vel.Y == 0 {
			continue
		}
		pos := s.reg.Position(e)
		ident := s.reg.Identity(e)
		nx := pos.X + vel.X*delta
		ny := pos.Y + vel.Y*delta

		if ident.Kind == components.KindBullet {
			if !s.bounds.Contains(nx, ny) || (s.blocked != nil && s.blocked(ident.Team, nx, ny)) {
				s.reg.Remove(e)
				continue
			}
			pos.X, pos.Y = nx, ny
			moved++
			continue
		}

		nx = clampf(nx, 0, s.bounds.Width)
		ny = clampf(ny, 0, s.bounds.Height)
		if s.blocked != nil && s.blocked(ident.Team, nx, ny) {
			// Stop against solid tiles
			vel.X, vel.Y = 0, 0
			continue
		}
		pos.X, pos.Y = nx, ny
		moved++

		if vel.X*vel.X+vel.Y*vel.Y > 0.01 {
			s.reg.Rotation(e).Heading = float32(math.Atan2(float64(vel.Y), float64(vel.X)) * 180 / math.Pi)
		}
	}
	return moved
}

func clampf(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
