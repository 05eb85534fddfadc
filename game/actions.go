package game

import (
	"errors"
	"fmt"
	"math"

	"github.com/pthm-cable/bastion/components"
	"github.com/pthm-cable/bastion/remote"
)

// ErrNotOwner is returned when a peer commands a unit it does not control.
var ErrNotOwner = errors.New("game: unit not owned by peer")

// MoveArgs sets a unit's velocity. The speed is clamped to the unit's kind.
type MoveArgs struct {
	Unit uint32  `msgpack:"u"`
	VelX float32 `msgpack:"vx"`
	VelY float32 `msgpack:"vy"`
}

// ShootArgs fires a bullet from a unit at an angle in degrees.
type ShootArgs struct {
	Unit  uint32  `msgpack:"u"`
	Angle float32 `msgpack:"a"`
}

func (g *Game) defineActions() {
	g.Move = remote.Define(g.disp, "unit.move", remote.PolicyPredicted, g.applyMove, remote.Validate(g.validateMove))
	g.Shoot = remote.Define(g.disp, "unit.shoot", remote.PolicyServer, g.applyShoot, remote.Validate(g.validateShoot))
}

// owned checks that origin controls a live unit.
func (g *Game) owned(origin string, unit uint32) error {
	e, ok := g.units.Lookup(unit)
	if !ok {
		return fmt.Errorf("unit %d: not found", unit)
	}
	if g.owners[unit] != origin {
		return fmt.Errorf("%w: %s, unit %d", ErrNotOwner, origin, unit)
	}
	if g.units.IsDead(e) {
		return fmt.Errorf("unit %d is dead", unit)
	}
	return nil
}

// finite reports whether every value is neither NaN nor infinite.
func finite(vs ...float32) bool {
	for _, v := range vs {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

func (g *Game) validateMove(origin string, a MoveArgs) error {
	if !finite(a.VelX, a.VelY) {
		return errors.New("velocity is not finite")
	}
	return g.owned(origin, a.Unit)
}

func (g *Game) applyMove(a MoveArgs) {
	e, ok := g.units.Lookup(a.Unit)
	if !ok || g.units.IsDead(e) {
		return
	}
	speed := float32(g.cfg.Unit(g.units.Identity(e).Kind).Speed)
	vx, vy := a.VelX, a.VelY
	// Predicted calls apply before the server validates them
	if !finite(vx, vy) {
		vx, vy = 0, 0
	}
	if mag := float32(math.Hypot(float64(vx), float64(vy))); mag > speed && mag > 0 {
		vx, vy = vx/mag*speed, vy/mag*speed
	}
	vel := g.units.Velocity(e)
	vel.X, vel.Y = vx, vy
}

func (g *Game) validateShoot(origin string, a ShootArgs) error {
	if !finite(a.Angle) {
		return errors.New("angle is not finite")
	}
	return g.owned(origin, a.Unit)
}

// applyShoot spawns a bullet just outside the shooter. Clients receive
// bullets through unit snapshots, so only the authoritative side creates them.
func (g *Game) applyShoot(a ShootArgs) {
	if g.disp.Side() == remote.SideClient {
		return
	}
	e, ok := g.units.Lookup(a.Unit)
	if !ok || g.units.IsDead(e) || !finite(a.Angle) {
		return
	}
	ident := g.units.Identity(e)
	pos := g.units.Position(e)
	bullet := g.cfg.Units.Bullet

	rad := float64(a.Angle) * math.Pi / 180
	dx, dy := float32(math.Cos(rad)), float32(math.Sin(rad))
	offset := g.units.Body(e).Radius + float32(bullet.Radius) + 1
	speed := float32(bullet.Speed)

	spec := g.world.UnitSpec(components.KindBullet, ident.Team, pos.X+dx*offset, pos.Y+dy*offset)
	spec.VelX, spec.VelY = dx*speed, dy*speed
	spec.Rotation = a.Angle
	if _, err := g.units.Add(spec); err != nil {
		g.log.Error("bullet_create_failed", "unit", a.Unit, "err", err)
	}
}
