package blocks

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/pthm-cable/bastion/components"
	"github.com/pthm-cable/bastion/config"
	"github.com/pthm-cable/bastion/remote"
	"github.com/pthm-cable/bastion/traits"
	"github.com/pthm-cable/bastion/world"
)

// CoreState is the observable state of a core.
type CoreState uint8

const (
	CoreIdleSolid CoreState = iota // Closed, no unit inside
	CoreIdleOpen                   // Open after a release, waiting for the unit to leave
	CoreOccupied                   // Holding a dead unit until it respawns
)

func (s CoreState) String() string {
	switch s {
	case CoreIdleSolid:
		return "idle-solid"
	case CoreIdleOpen:
		return "idle-open"
	case CoreOccupied:
		return "occupied"
	default:
		return fmt.Sprintf("core-state(%d)", uint8(s))
	}
}

// CoreBlock is a team's base. It respawns dead players and drones and
// keeps a small drone population alive.
type CoreBlock struct {
	world.BaseBlock
	c *Content

	droneDuration   float32
	maxDrones       int
	warmupThreshold float32
	heatRate        float32
	itemCapacity    int
}

func newCoreBlock(c *Content, cfg *config.Config) *CoreBlock {
	return &CoreBlock{
		BaseBlock:       world.BaseBlock{BlockName: "core", BlockSize: cfg.Core.Size},
		c:               c,
		droneDuration:   float32(cfg.Core.DroneRespawnDuration),
		maxDrones:       cfg.Core.MaxDrones,
		warmupThreshold: float32(cfg.Core.WarmupThreshold),
		heatRate:        float32(cfg.Core.HeatRate),
		itemCapacity:    cfg.Core.ItemCapacity,
	}
}

// CoreEntity is the per-tile state of a core.
type CoreEntity struct {
	world.BaseEntity
	block *CoreBlock

	solid     bool
	progress  float32 // Respawn progress in [0,1]
	spawnTime float32 // Time the held unit has spent respawning
	time      float32
	warmup   float32
	heat     float32

	currentUnit uint32 // 0 when no unit is held

	drones    []uint32
	collected bool

	items map[string]int
}

// NewEntity creates the core's tile entity. Cores start closed.
func (b *CoreBlock) NewEntity(t *world.Tile) world.TileEntity {
	return &CoreEntity{
		BaseEntity: world.NewBaseEntity(t),
		block:      b,
		solid:      true,
		items:      make(map[string]int),
	}
}

func (b *CoreBlock) Placed(t *world.Tile) {
	b.c.world.Teams().AddCore(t)
}

// Removed drops the core from its team and detaches its drones. Dead
// drones are cleaned up by the unit pass once their link is gone.
func (b *CoreBlock) Removed(t *world.Tile) {
	b.c.world.Teams().RemoveCore(t)
	ent := t.Entity.(*CoreEntity)
	reg := b.c.world.Units()
	for _, id := range ent.drones {
		if e, ok := reg.Lookup(id); ok {
			reg.ClearSpawnLink(e)
		}
	}
	ent.drones = nil
}

// CanBreak refuses to remove a team's last core.
func (b *CoreBlock) CanBreak(t *world.Tile) bool {
	return len(b.c.world.Teams().Cores(t.Team)) > 1
}

// ProximityUpdate re-registers the core if team bookkeeping lost it.
func (b *CoreBlock) ProximityUpdate(t *world.Tile) {
	if !b.c.world.Teams().HasCore(t) {
		b.c.world.Teams().AddCore(t)
	}
}

func (b *CoreBlock) IsSolidFor(t *world.Tile) bool {
	return t.Entity.(*CoreEntity).solid
}

func (b *CoreBlock) Update(t *world.Tile) {
	ent := t.Entity.(*CoreEntity)
	w := b.c.world
	reg := w.Units()
	delta := w.Delta()

	if !ent.solid && !w.AnyEntities(t) {
		b.c.SetCoreSolid.Call(SolidArgs{X: t.X, Y: t.Y, Solid: true})
	}

	if ent.currentUnit != 0 {
		e, ok := reg.Lookup(ent.currentUnit)
		if !ok || !reg.IsDead(e) {
			ent.currentUnit = 0
			return
		}
		ent.heat = lerpDelta(ent.heat, 1, b.heatRate, delta)
		ent.time += delta
		ent.spawnTime += delta
		ent.progress = min(ent.spawnTime/b.respawnDuration(reg.Identity(e).Kind), 1)
		if ent.progress >= 1-progressEpsilon {
			b.c.OnUnitRespawn.Call(RespawnArgs{X: t.X, Y: t.Y, Unit: ent.currentUnit})
		}
		return
	}

	ent.warmup += delta
	if ent.solid && ent.warmup > b.warmupThreshold && b.c.Side() != remote.SideClient {
		b.maintainDrones(t, ent)
	}
	ent.heat = lerpDelta(ent.heat, 0, b.heatRate, delta)
}

// progressEpsilon absorbs float32 rounding of fractional deltas.
const progressEpsilon = 1e-5

func (b *CoreBlock) respawnDuration(kind components.UnitKind) float32 {
	if kind == components.KindPlayer {
		return float32(b.c.world.Rules().RespawnTime)
	}
	return b.droneDuration
}

// DroneCap returns how many drones a core of the given team keeps.
func (b *CoreBlock) DroneCap(team components.Team) int {
	rules := b.c.world.Rules()
	if !rules.PvP && team == rules.WaveTeam {
		return b.maxDrones
	}
	return 1
}

// maintainDrones tops the core's drone population up by one. New drones
// start dead and linked, so they respawn through the core like any other.
func (b *CoreBlock) maintainDrones(t *world.Tile, ent *CoreEntity) {
	w := b.c.world
	reg := w.Units()
	link := components.SpawnLink{TileX: t.X, TileY: t.Y}

	if !ent.collected {
		for e := range reg.Team(t.Team) {
			if l, ok := reg.SpawnLink(e); ok && l == link {
				ent.drones = append(ent.drones, reg.ID(e))
			}
		}
		ent.collected = true
	}
	live := ent.drones[:0]
	for _, id := range ent.drones {
		if _, ok := reg.Lookup(id); ok {
			live = append(live, id)
		}
	}
	ent.drones = live

	if len(ent.drones) >= b.DroneCap(t.Team) {
		return
	}
	x, y := w.DrawPos(t)
	spec := w.UnitSpec(components.KindDrone, t.Team, x, y)
	spec.Dead = true
	spec.Spawner = &link
	e, err := reg.Add(spec)
	if err != nil {
		b.c.log.Error("drone_create_failed", "x", t.X, "y", t.Y, "err", err)
		return
	}
	ent.drones = append(ent.drones, reg.ID(e))
	b.c.log.Debug("drone_created", "x", t.X, "y", t.Y, "team", t.Team, "unit", reg.ID(e), "drones", len(ent.drones))
}

// Capabilities reports the spawner capability.
func (e *CoreEntity) Capabilities() traits.Capability {
	return traits.Spawner
}

// UpdateSpawning takes a dead unit into the core. A core already holding a
// unit ignores the offer.
func (e *CoreEntity) UpdateSpawning(unit uint32) {
	if e.currentUnit != 0 {
		return
	}
	e.currentUnit = unit
	e.progress = 0
	e.spawnTime = 0

	w := e.block.c.world
	reg := w.Units()
	if u, ok := reg.Lookup(unit); ok {
		x, y := w.DrawPos(e.Tile())
		reg.SetPosition(u, x, y)
		vel := reg.Velocity(u)
		vel.X, vel.Y = 0, 0
	}
}

// SpawnProgress reports respawn progress of the held unit.
func (e *CoreEntity) SpawnProgress() float32 {
	return e.progress
}

// State returns the core's current state.
func (e *CoreEntity) State() CoreState {
	switch {
	case e.currentUnit != 0:
		return CoreOccupied
	case e.solid:
		return CoreIdleSolid
	default:
		return CoreIdleOpen
	}
}

func (e *CoreEntity) Solid() bool         { return e.solid }
func (e *CoreEntity) Heat() float32       { return e.heat }
func (e *CoreEntity) Warmup() float32     { return e.warmup }
func (e *CoreEntity) Time() float32       { return e.time }
func (e *CoreEntity) CurrentUnit() uint32 { return e.currentUnit }

// Drones returns the IDs of drones this core spawned.
func (e *CoreEntity) Drones() []uint32 {
	return e.drones
}

// itemStack is a stored item in a save.
type itemStack struct {
	Item  string `msgpack:"i"`
	Count int    `msgpack:"n"`
}

// WriteState persists the solid flag and stored items. Timers restart on load.
func (e *CoreEntity) WriteState(enc *msgpack.Encoder) error {
	if err := enc.EncodeBool(e.solid); err != nil {
		return err
	}
	var stacks []itemStack
	for _, it := range Items {
		if n := e.items[it.Name]; n > 0 {
			stacks = append(stacks, itemStack{Item: it.Name, Count: n})
		}
	}
	return enc.Encode(stacks)
}

func (e *CoreEntity) ReadState(dec *msgpack.Decoder) error {
	solid, err := dec.DecodeBool()
	if err != nil {
		return fmt.Errorf("core solid flag: %w", err)
	}
	var stacks []itemStack
	if err := dec.Decode(&stacks); err != nil {
		return fmt.Errorf("core items: %w", err)
	}
	items := make(map[string]int, len(stacks))
	for _, s := range stacks {
		it, err := ItemByName(s.Item)
		if err != nil {
			return err
		}
		items[it.Name] = min(s.Count, e.block.itemCapacity)
	}
	e.solid = solid
	e.items = items
	return nil
}

// lerpDelta moves from toward to by alpha scaled with delta.
func lerpDelta(from, to, alpha, delta float32) float32 {
	t := min(alpha*delta, 1)
	return from + (to-from)*t
}
