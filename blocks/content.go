// Package blocks defines the placeable block content and the replicated
// actions that mutate it.
package blocks

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/pthm-cable/bastion/components"
	"github.com/pthm-cable/bastion/power"
	"github.com/pthm-cable/bastion/remote"
	"github.com/pthm-cable/bastion/world"
)

// ErrNotAuthorized is returned by validators when a peer acts for a team it
// does not control.
var ErrNotAuthorized = errors.New("blocks: not authorized")

// AuthorizeFunc reports whether the peer named origin may act for team.
type AuthorizeFunc func(origin string, team components.Team) bool

// Content owns the block set of a world and the actions defined on its
// dispatcher. Every peer builds the same Content so action names line up.
type Content struct {
	world *world.World
	disp  *remote.Dispatcher
	log   *slog.Logger

	authorize AuthorizeFunc

	Core        *CoreBlock
	Distributor *PowerBlock
	Node        *PowerBlock
	Generator   *PowerBlock
	Consumer    *PowerBlock
	Battery     *PowerBlock
	Wall        *WallBlock

	OnUnitRespawn *remote.Action[RespawnArgs]
	SetCoreSolid  *remote.Action[SolidArgs]
	PlaceBlock    *remote.Action[PlaceArgs]
	BreakBlock    *remote.Action[BreakArgs]
	LinkPower     *remote.Action[LinkArgs]
}

// New builds the block set, registers it with w and defines the block
// actions on d.
func New(w *world.World, d *remote.Dispatcher) *Content {
	cfg := w.Config()
	c := &Content{
		world: w,
		disp:  d,
		log:   w.Logger(),
	}

	c.Core = newCoreBlock(c, cfg)
	c.Distributor = &PowerBlock{BaseBlock: world.BaseBlock{BlockName: "power-distributor", BlockSize: 1}, c: c, role: power.Relay}
	c.Node = &PowerBlock{BaseBlock: world.BaseBlock{BlockName: "power-node", BlockSize: 1}, c: c, role: power.Relay, laserRange: cfg.Power.NodeRange}
	c.Generator = &PowerBlock{BaseBlock: world.BaseBlock{BlockName: "generator", BlockSize: 2}, c: c, role: power.Producer, produce: cfg.Power.GeneratorOutput}
	c.Consumer = &PowerBlock{BaseBlock: world.BaseBlock{BlockName: "consumer", BlockSize: 1}, c: c, role: power.Consumer, use: cfg.Power.ConsumerUse}
	c.Battery = &PowerBlock{BaseBlock: world.BaseBlock{BlockName: "battery", BlockSize: 1}, c: c, role: power.Battery, capacity: cfg.Power.BatteryCapacity}
	c.Wall = &WallBlock{BaseBlock: world.BaseBlock{BlockName: "wall", BlockSize: 1}}

	for _, b := range c.Blocks() {
		w.RegisterBlock(b)
	}

	c.OnUnitRespawn = remote.Define(d, "core.unit_respawn", remote.PolicyServer, c.applyRespawn)
	c.SetCoreSolid = remote.Define(d, "core.set_solid", remote.PolicyServer, c.applySolid)
	c.PlaceBlock = remote.Define(d, "block.place", remote.PolicyServer, c.applyPlace, remote.Validate(c.validatePlace))
	c.BreakBlock = remote.Define(d, "block.break", remote.PolicyServer, c.applyBreak, remote.Validate(c.validateBreak))
	c.LinkPower = remote.Define(d, "power.link", remote.PolicyServer, c.applyLink, remote.Validate(c.validateLink))
	return c
}

// Blocks returns every block this content defines.
func (c *Content) Blocks() []world.Block {
	return []world.Block{c.Core, c.Distributor, c.Node, c.Generator, c.Consumer, c.Battery, c.Wall}
}

// World returns the world the content is registered with.
func (c *Content) World() *world.World {
	return c.world
}

// Side returns the dispatcher side.
func (c *Content) Side() remote.Side {
	return c.disp.Side()
}

// SetAuthorizer installs the check used by client action validators.
// With no authorizer every peer may act for every team.
func (c *Content) SetAuthorizer(fn AuthorizeFunc) {
	c.authorize = fn
}

func (c *Content) authorized(origin string, team components.Team) error {
	if c.authorize == nil || c.authorize(origin, team) {
		return nil
	}
	return fmt.Errorf("%w: %s for team %s", ErrNotAuthorized, origin, team)
}

// CoreAt returns the core entity on the tile covering (x, y), if any.
func (c *Content) CoreAt(x, y int32) (*CoreEntity, bool) {
	t := c.world.Tile(x, y)
	if t == nil || t.Empty() {
		return nil, false
	}
	ent, ok := t.Origin().Entity.(*CoreEntity)
	return ent, ok
}

// PowerAt returns the power entity on the tile covering (x, y), if any.
func (c *Content) PowerAt(x, y int32) (*PowerEntity, bool) {
	t := c.world.Tile(x, y)
	if t == nil || t.Empty() {
		return nil, false
	}
	ent, ok := t.Origin().Entity.(*PowerEntity)
	return ent, ok
}
