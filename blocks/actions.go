package blocks

import (
	"errors"
	"fmt"

	"github.com/pthm-cable/bastion/components"
	"github.com/pthm-cable/bastion/power"
	"github.com/pthm-cable/bastion/traits"
	"github.com/pthm-cable/bastion/world"
)

// RespawnArgs identifies a core tile and the unit it is releasing.
type RespawnArgs struct {
	X    int32  `msgpack:"x"`
	Y    int32  `msgpack:"y"`
	Unit uint32 `msgpack:"u"`
}

// SolidArgs sets the solidity of the core on a tile.
type SolidArgs struct {
	X     int32 `msgpack:"x"`
	Y     int32 `msgpack:"y"`
	Solid bool  `msgpack:"s"`
}

// PlaceArgs places a block by name.
type PlaceArgs struct {
	X     int32           `msgpack:"x"`
	Y     int32           `msgpack:"y"`
	Block string          `msgpack:"b"`
	Team  components.Team `msgpack:"team"`
}

// BreakArgs deconstructs the block covering a tile.
type BreakArgs struct {
	X int32 `msgpack:"x"`
	Y int32 `msgpack:"y"`
}

// LinkArgs connects two power blocks by laser.
type LinkArgs struct {
	A power.Key `msgpack:"a"`
	B power.Key `msgpack:"b"`
}

// applyRespawn releases a unit from a core. Missing tiles, non-core tiles
// and missing units make it a no-op, as does a core that already released
// this unit, so a replicated call applied twice has no further effect. The
// core opens even when a snapshot revived the unit before the call arrived;
// only a unit that is still dead is healed and moved.
func (c *Content) applyRespawn(a RespawnArgs) {
	ent, ok := c.CoreAt(a.X, a.Y)
	if !ok {
		return
	}
	if ent.currentUnit != a.Unit && !ent.solid {
		return
	}
	reg := c.world.Units()
	e, ok := reg.Lookup(a.Unit)
	if !ok || !reg.Has(e, traits.Health) {
		return
	}

	t := ent.Tile()
	x, y := c.world.DrawPos(t)
	c.world.Effect("spawn", x, y, t.Team)

	ent.solid = false
	ent.progress = 0
	ent.spawnTime = 0
	ent.currentUnit = 0
	c.log.Info("core_respawn", "x", t.X, "y", t.Y, "team", t.Team, "unit", a.Unit, "tick", c.world.Tick())

	if !reg.IsDead(e) {
		return
	}
	reg.Health(e).Heal()
	reg.Rotation(e).Heading = 90
	reg.SetPosition(e, x, y)
	// Launch upward so the unit clears the core
	vel := reg.Velocity(e)
	vel.X, vel.Y = 0, float32(c.world.Config().Unit(reg.Identity(e).Kind).Speed)

	// Players pick the closest core again next time they die
	if reg.Identity(e).Kind == components.KindPlayer {
		reg.ClearSpawnLink(e)
	}
}

func (c *Content) applySolid(a SolidArgs) {
	ent, ok := c.CoreAt(a.X, a.Y)
	if !ok || ent.solid == a.Solid {
		return
	}
	ent.solid = a.Solid
	t := ent.Tile()
	x, y := c.world.DrawPos(t)
	name := "core_open"
	if a.Solid {
		name = "core_close"
	}
	c.world.Effect(name, x, y, t.Team)
}

func (c *Content) applyPlace(a PlaceArgs) {
	b, ok := c.world.Block(a.Block)
	if !ok {
		return
	}
	if _, err := c.world.Place(b, a.X, a.Y, a.Team); err != nil {
		// Replays land on an occupied tile
		c.log.Debug("place_skipped", "block", a.Block, "x", a.X, "y", a.Y, "err", err)
	}
}

func (c *Content) validatePlace(origin string, a PlaceArgs) error {
	b, ok := c.world.Block(a.Block)
	if !ok {
		return fmt.Errorf("%w: %q", world.ErrUnknownBlock, a.Block)
	}
	if a.Team == components.TeamDerelict || a.Team >= components.NumTeams {
		return fmt.Errorf("blocks: cannot place for team %s", a.Team)
	}
	if err := c.authorized(origin, a.Team); err != nil {
		return err
	}
	return c.world.CanPlace(b, a.X, a.Y)
}

func (c *Content) applyBreak(a BreakArgs) {
	if err := c.world.Break(a.X, a.Y); err != nil {
		c.log.Debug("break_skipped", "x", a.X, "y", a.Y, "err", err)
	}
}

func (c *Content) validateBreak(origin string, a BreakArgs) error {
	t := c.world.Tile(a.X, a.Y)
	if t == nil {
		return fmt.Errorf("%w: %d,%d", world.ErrOutOfBounds, a.X, a.Y)
	}
	if t.Empty() {
		return errors.New("blocks: nothing to break")
	}
	o := t.Origin()
	if err := c.authorized(origin, o.Team); err != nil {
		return err
	}
	if !o.Block.CanBreak(o) {
		return fmt.Errorf("%w: %s", world.ErrUnbreakable, o)
	}
	return nil
}

func (c *Content) applyLink(a LinkArgs) {
	if err := c.canLink(a.A, a.B); err != nil {
		return
	}
	if err := c.world.Power().Link(a.A, a.B); err != nil {
		c.log.Debug("link_skipped", "a", a.A, "b", a.B, "err", err)
	}
}

func (c *Content) validateLink(origin string, a LinkArgs) error {
	if err := c.canLink(a.A, a.B); err != nil {
		return err
	}
	from, _ := c.PowerAt(a.A.X, a.A.Y)
	return c.authorized(origin, from.Tile().Team)
}

// canLink checks that both keys are power blocks of one team and that one of
// them is a node with the other in laser range.
func (c *Content) canLink(a, b power.Key) error {
	pa, ok := c.PowerAt(a.X, a.Y)
	if !ok {
		return fmt.Errorf("blocks: no power block at %s", a)
	}
	pb, ok := c.PowerAt(b.X, b.Y)
	if !ok {
		return fmt.Errorf("blocks: no power block at %s", b)
	}
	if pa == pb {
		return errors.New("blocks: cannot link a block to itself")
	}
	if pa.Tile().Team != pb.Tile().Team {
		return errors.New("blocks: cannot link across teams")
	}
	rng := max(pa.block.laserRange, pb.block.laserRange)
	if rng == 0 {
		return errors.New("blocks: neither block is a power node")
	}
	dx, dy := int(a.X-b.X), int(a.Y-b.Y)
	if dx*dx+dy*dy > rng*rng {
		return fmt.Errorf("blocks: %s and %s are out of range", a, b)
	}
	return nil
}
