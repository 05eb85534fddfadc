package blocks

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/mlange-42/ark/ecs"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/pthm-cable/bastion/components"
	"github.com/pthm-cable/bastion/config"
	"github.com/pthm-cable/bastion/entity"
	"github.com/pthm-cable/bastion/power"
	"github.com/pthm-cable/bastion/remote"
	"github.com/pthm-cable/bastion/world"
)

type harness struct {
	cfg     *config.Config
	w       *world.World
	d       *remote.Dispatcher
	c       *Content
	effects []world.Effect
}

func newHarness(t *testing.T, side remote.Side, tweak func(*config.Config)) *harness {
	t.Helper()
	cfg := config.Default()
	cfg.World.Width, cfg.World.Height = 32, 32
	if tweak != nil {
		tweak(cfg)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := &harness{cfg: cfg}
	h.w = world.New(cfg, entity.NewRegistry(ecs.NewWorld()), power.NewNetwork(cfg.Physics.Delta))
	h.w.SetLogger(logger)
	h.w.SetEffects(world.EffectFunc(func(e world.Effect) { h.effects = append(h.effects, e) }))
	h.d = remote.NewDispatcher(side, "test", remote.WithLogger(logger))
	h.c = New(h.w, h.d)
	return h
}

// step advances one tick of block updates.
func (h *harness) step() {
	tick := h.w.Tick() + 1
	h.w.SetTick(tick)
	h.d.BeginTick(tick)
	h.w.Power().Rebuild()
	h.w.Update()
	h.w.Units().Flush()
}

func (h *harness) count(name string) int {
	n := 0
	for _, e := range h.effects {
		if e.Name == name {
			n++
		}
	}
	return n
}

func (h *harness) place(t *testing.T, b world.Block, x, y int32, team components.Team) *world.Tile {
	t.Helper()
	tile, err := h.w.Place(b, x, y, team)
	if err != nil {
		t.Fatal(err)
	}
	return tile
}

func (h *harness) deadUnit(t *testing.T, kind components.UnitKind, team components.Team) ecs.Entity {
	t.Helper()
	spec := h.w.UnitSpec(kind, team, 40, 40)
	spec.Dead = true
	e, err := h.w.Units().Add(spec)
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func TestCoreRespawnCycle(t *testing.T) {
	h := newHarness(t, remote.SideStandalone, nil)
	tile := h.place(t, h.c.Core, 10, 10, components.TeamBlue)
	core := tile.Entity.(*CoreEntity)
	reg := h.w.Units()

	u := h.deadUnit(t, components.KindPlayer, components.TeamBlue)
	id := reg.ID(u)
	core.UpdateSpawning(id)
	cx, cy := h.w.DrawPos(tile)
	if pos := reg.Position(u); pos.X != cx || pos.Y != cy {
		t.Fatalf("unit at %v, want core center %v,%v", *pos, cx, cy)
	}

	// A second offer while busy is ignored
	other := h.deadUnit(t, components.KindPlayer, components.TeamBlue)
	core.UpdateSpawning(reg.ID(other))
	if core.CurrentUnit() != id {
		t.Fatalf("busy core took unit %d", core.CurrentUnit())
	}

	duration := int(h.cfg.Rules.RespawnTime)
	for i := 0; i < duration; i++ {
		if core.State() != CoreOccupied {
			t.Fatalf("tick %d: state %s, want occupied", i, core.State())
		}
		h.step()
	}
	if core.CurrentUnit() != 0 {
		t.Fatalf("unit not released after %d ticks, progress %v", duration, core.SpawnProgress())
	}
	if got := h.count("spawn"); got != 1 {
		t.Errorf("spawn effects = %d, want 1", got)
	}
	if reg.IsDead(u) || reg.Health(u).Value != reg.Health(u).Max {
		t.Error("released unit not healed")
	}
	if reg.Rotation(u).Heading != 90 {
		t.Errorf("heading = %v, want 90", reg.Rotation(u).Heading)
	}
	if core.Solid() || core.State() != CoreIdleOpen {
		t.Fatalf("core state %s after release, want idle-open", core.State())
	}

	// Stays open while the unit is inside
	h.step()
	if core.Solid() {
		t.Fatal("core closed on an occupant")
	}

	reg.SetPosition(u, 200, 200)
	h.step()
	if !core.Solid() || core.State() != CoreIdleSolid {
		t.Errorf("core state %s after unit left, want idle-solid", core.State())
	}
	if got := h.count("core_close"); got != 1 {
		t.Errorf("core_close effects = %d, want 1", got)
	}
	if got := h.count("spawn"); got != 1 {
		t.Errorf("spawn fired again: %d", got)
	}
}

func TestRespawnTakesExactDuration(t *testing.T) {
	tests := []struct {
		name     string
		kind     components.UnitKind
		duration float64
	}{
		{name: "player 60", kind: components.KindPlayer, duration: 60},
		{name: "player 100", kind: components.KindPlayer, duration: 100},
		{name: "player 300", kind: components.KindPlayer, duration: 300},
		{name: "player 360", kind: components.KindPlayer, duration: 360},
		{name: "drone default", kind: components.KindDrone},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, remote.SideStandalone, func(c *config.Config) {
				if tc.duration > 0 {
					c.Rules.RespawnTime = tc.duration
				}
			})
			tile := h.place(t, h.c.Core, 10, 10, components.TeamBlue)
			core := tile.Entity.(*CoreEntity)
			reg := h.w.Units()

			u := h.deadUnit(t, tc.kind, components.TeamBlue)
			core.UpdateSpawning(reg.ID(u))
			ticks := int(core.block.respawnDuration(tc.kind))
			if tc.kind == components.KindDrone && ticks != 360 {
				t.Fatalf("drone duration = %d, want 360", ticks)
			}

			for i := 1; i < ticks; i++ {
				h.step()
				if core.CurrentUnit() == 0 {
					t.Fatalf("released early at tick %d", i)
				}
			}
			h.step()
			if core.CurrentUnit() != 0 || h.count("spawn") != 1 {
				t.Fatalf("not released after exactly %d ticks: progress %v, spawn effects %d",
					ticks, core.SpawnProgress(), h.count("spawn"))
			}
			if reg.IsDead(u) {
				t.Error("unit still dead after release")
			}
		})
	}
}

func TestCoreReleasesLiveUnit(t *testing.T) {
	h := newHarness(t, remote.SideStandalone, nil)
	tile := h.place(t, h.c.Core, 10, 10, components.TeamBlue)
	core := tile.Entity.(*CoreEntity)
	reg := h.w.Units()

	u := h.deadUnit(t, components.KindPlayer, components.TeamBlue)
	core.UpdateSpawning(reg.ID(u))
	h.step()

	// Revived elsewhere: the core lets go without respawning it
	reg.Health(u).Heal()
	h.step()
	if core.CurrentUnit() != 0 {
		t.Error("core kept a live unit")
	}
	if h.count("spawn") != 0 {
		t.Error("live unit was respawned")
	}
}

func TestDroneCap(t *testing.T) {
	tests := []struct {
		name string
		side remote.Side
		team components.Team
		pvp  bool
		want int
	}{
		{name: "wave team", side: remote.SideStandalone, team: components.TeamRed, want: 4},
		{name: "wave team in pvp", side: remote.SideStandalone, team: components.TeamRed, pvp: true, want: 1},
		{name: "player team", side: remote.SideStandalone, team: components.TeamBlue, want: 1},
		{name: "server", side: remote.SideServer, team: components.TeamRed, want: 4},
		{name: "client never spawns", side: remote.SideClient, team: components.TeamRed, want: 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, tc.side, func(c *config.Config) { c.Rules.PvP = tc.pvp })
			tile := h.place(t, h.c.Core, 10, 10, tc.team)
			core := tile.Entity.(*CoreEntity)

			for range 200 {
				h.step()
			}

			reg := h.w.Units()
			if got := reg.TeamCount(tc.team); got != tc.want {
				t.Fatalf("drones = %d, want %d", got, tc.want)
			}
			if len(core.Drones()) != tc.want {
				t.Errorf("tracked drones = %d, want %d", len(core.Drones()), tc.want)
			}
			want := components.SpawnLink{TileX: 10, TileY: 10}
			for e := range reg.Team(tc.team) {
				if link, ok := reg.SpawnLink(e); !ok || link != want {
					t.Errorf("drone %d link = %v, want %v", reg.ID(e), link, want)
				}
				if !reg.IsDead(e) {
					t.Errorf("drone %d created alive", reg.ID(e))
				}
			}
		})
	}
}

func TestDronesReplacedAfterRemoval(t *testing.T) {
	h := newHarness(t, remote.SideStandalone, nil)
	tile := h.place(t, h.c.Core, 10, 10, components.TeamBlue)
	core := tile.Entity.(*CoreEntity)
	reg := h.w.Units()

	for range 80 {
		h.step()
	}
	if len(core.Drones()) != 1 {
		t.Fatalf("drones = %d, want 1", len(core.Drones()))
	}
	first := core.Drones()[0]
	e, _ := reg.Lookup(first)
	reg.Remove(e)
	h.step()
	h.step()

	if len(core.Drones()) != 1 || core.Drones()[0] == first {
		t.Errorf("drones = %v, want one replacement for %d", core.Drones(), first)
	}
}

func TestSetCoreSolidIdempotent(t *testing.T) {
	h := newHarness(t, remote.SideStandalone, nil)
	tile := h.place(t, h.c.Core, 10, 10, components.TeamBlue)
	core := tile.Entity.(*CoreEntity)

	h.c.SetCoreSolid.Call(SolidArgs{X: 10, Y: 10, Solid: true})
	if h.count("core_close") != 0 {
		t.Error("unchanged solid flag emitted an effect")
	}
	for tick := uint64(1); tick <= 3; tick++ {
		h.d.BeginTick(tick)
		// Any covered tile addresses the core
		h.c.SetCoreSolid.Call(SolidArgs{X: 11, Y: 9, Solid: false})
	}
	if core.Solid() {
		t.Fatal("core still solid")
	}
	if got := h.count("core_open"); got != 1 {
		t.Errorf("core_open effects = %d, want 1", got)
	}

	// Not a core
	h.c.SetCoreSolid.Call(SolidArgs{X: 1, Y: 1, Solid: true})
}

func TestOnUnitRespawnGuards(t *testing.T) {
	h := newHarness(t, remote.SideStandalone, nil)
	tile := h.place(t, h.c.Core, 10, 10, components.TeamBlue)
	h.place(t, h.c.Wall, 20, 20, components.TeamBlue)
	core := tile.Entity.(*CoreEntity)
	reg := h.w.Units()

	dead := h.deadUnit(t, components.KindPlayer, components.TeamBlue)

	tests := []struct {
		name string
		args RespawnArgs
	}{
		{name: "missing unit", args: RespawnArgs{X: 10, Y: 10, Unit: 9999}},
		{name: "not a core", args: RespawnArgs{X: 20, Y: 20, Unit: reg.ID(dead)}},
		{name: "empty tile", args: RespawnArgs{X: 0, Y: 0, Unit: reg.ID(dead)}},
		{name: "outside world", args: RespawnArgs{X: -5, Y: 0, Unit: reg.ID(dead)}},
	}
	for i, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h.d.BeginTick(uint64(i + 1))
			h.c.OnUnitRespawn.Call(tc.args)
			if h.count("spawn") != 0 {
				t.Error("guarded respawn emitted an effect")
			}
			if !core.Solid() {
				t.Error("guarded respawn opened the core")
			}
		})
	}
	if !reg.IsDead(dead) {
		t.Error("dead unit revived by a guarded call")
	}
}

func TestRespawnAfterUnitRevived(t *testing.T) {
	h := newHarness(t, remote.SideStandalone, nil)
	tile := h.place(t, h.c.Core, 10, 10, components.TeamBlue)
	core := tile.Entity.(*CoreEntity)
	reg := h.w.Units()

	u := h.deadUnit(t, components.KindPlayer, components.TeamBlue)
	core.UpdateSpawning(reg.ID(u))
	h.step()

	// A unit snapshot revives the unit before the release call is applied
	reg.Health(u).Heal()
	reg.SetPosition(u, 30, 30)
	h.d.BeginTick(h.w.Tick() + 1)
	h.c.OnUnitRespawn.Call(RespawnArgs{X: 10, Y: 10, Unit: reg.ID(u)})

	if core.State() != CoreIdleOpen {
		t.Fatalf("core state %s, want idle-open", core.State())
	}
	if got := h.count("spawn"); got != 1 {
		t.Errorf("spawn effects = %d, want 1", got)
	}
	if pos := reg.Position(u); pos.X != 30 || pos.Y != 30 {
		t.Errorf("live unit moved to %v", *pos)
	}

	// Applying the release again changes nothing
	h.d.BeginTick(h.w.Tick() + 2)
	h.c.OnUnitRespawn.Call(RespawnArgs{X: 10, Y: 10, Unit: reg.ID(u)})
	if got := h.count("spawn"); got != 1 {
		t.Errorf("spawn effects after repeat = %d, want 1", got)
	}
}

func TestCoreBreakRules(t *testing.T) {
	h := newHarness(t, remote.SideStandalone, nil)
	h.place(t, h.c.Core, 5, 5, components.TeamBlue)

	if err := h.c.validateBreak("p", BreakArgs{X: 5, Y: 5}); !errors.Is(err, world.ErrUnbreakable) {
		t.Errorf("err = %v, want ErrUnbreakable", err)
	}
	h.c.BreakBlock.Call(BreakArgs{X: 5, Y: 5})
	if h.w.Tile(5, 5).Empty() {
		t.Fatal("last core was broken")
	}

	h.place(t, h.c.Core, 20, 20, components.TeamBlue)
	h.d.BeginTick(1)
	h.c.BreakBlock.Call(BreakArgs{X: 4, Y: 4})
	if !h.w.Tile(5, 5).Empty() {
		t.Fatal("core with a spare not broken")
	}
	if got := len(h.w.Teams().Cores(components.TeamBlue)); got != 1 {
		t.Errorf("cores = %d, want 1", got)
	}
}

func TestCoreRemovalDetachesDrones(t *testing.T) {
	h := newHarness(t, remote.SideStandalone, nil)
	h.place(t, h.c.Core, 5, 5, components.TeamRed)
	for range 70 {
		h.step()
	}
	reg := h.w.Units()
	if reg.TeamCount(components.TeamRed) == 0 {
		t.Fatal("no drones spawned")
	}
	h.w.Remove(5, 5)
	for e := range reg.Team(components.TeamRed) {
		if _, ok := reg.SpawnLink(e); ok {
			t.Errorf("drone %d still linked to removed core", reg.ID(e))
		}
	}
}

func TestItemAcceptance(t *testing.T) {
	h := newHarness(t, remote.SideStandalone, func(c *config.Config) { c.Core.ItemCapacity = 10 })
	tile := h.place(t, h.c.Core, 10, 10, components.TeamBlue)
	core := tile.Entity.(*CoreEntity)

	friend, _ := h.w.SpawnUnit(components.KindPlayer, components.TeamBlue, 1, 1)
	foe, _ := h.w.SpawnUnit(components.KindPlayer, components.TeamRed, 1, 1)
	reg := h.w.Units()

	tests := []struct {
		name   string
		item   Item
		amount int
		source uint32
		want   int
	}{
		{name: "friendly unit", item: Copper, amount: 4, source: reg.ID(friend), want: 4},
		{name: "no source", item: Copper, amount: 4, want: 4},
		{name: "clamped to capacity", item: Copper, amount: 40, want: 10},
		{name: "enemy unit", item: Copper, amount: 4, source: reg.ID(foe), want: 0},
		{name: "resource", item: Sand, amount: 4, want: 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := core.AcceptStack(tc.item, tc.amount, tc.source); got != tc.want {
				t.Errorf("AcceptStack = %d, want %d", got, tc.want)
			}
		})
	}

	if !core.AcceptItem(Lead) || core.AcceptItem(Coal) {
		t.Error("AcceptItem material/resource mismatch")
	}
	core.HandleItem(Lead, 25)
	if core.ItemCount(Lead) != 10 {
		t.Errorf("stored = %d, want capacity 10", core.ItemCount(Lead))
	}
	if core.AcceptItem(Lead) {
		t.Error("full core accepts more")
	}
	if got := core.AcceptStack(Lead, 5, 0); got != 0 {
		t.Errorf("AcceptStack on full core = %d", got)
	}
}

func TestPowerGraphUpdatesOncePerTick(t *testing.T) {
	h := newHarness(t, remote.SideStandalone, nil)
	h.place(t, h.c.Generator, 2, 2, components.TeamBlue) // covers 2..3
	cons := h.place(t, h.c.Consumer, 4, 2, components.TeamBlue)
	bat := h.place(t, h.c.Battery, 5, 2, components.TeamBlue)
	h.place(t, h.c.Distributor, 6, 2, components.TeamBlue)

	h.step()
	g := cons.Entity.(*PowerEntity).Node.Graph()
	if g == nil {
		t.Fatal("consumer not in a graph")
	}
	if len(h.w.Power().Graphs()) != 1 {
		t.Fatalf("graphs = %d, want 1", len(h.w.Power().Graphs()))
	}
	if g.Updates() != 1 {
		t.Errorf("updates after one tick = %d, want 1", g.Updates())
	}
	h.step()
	if g.Updates() != 2 {
		t.Errorf("updates after two ticks = %d, want 2", g.Updates())
	}

	want := 2 * (h.cfg.Power.GeneratorOutput - h.cfg.Power.ConsumerUse)
	if got := bat.Entity.(*PowerEntity).Node.Stored; got != want {
		t.Errorf("battery stored = %v, want %v", got, want)
	}
	if s := cons.Entity.(*PowerEntity).Satisfaction(); s != 1 {
		t.Errorf("satisfaction = %v, want 1", s)
	}
}

func TestPowerTeamsDoNotConduct(t *testing.T) {
	h := newHarness(t, remote.SideStandalone, nil)
	a := h.place(t, h.c.Distributor, 2, 2, components.TeamBlue)
	b := h.place(t, h.c.Distributor, 3, 2, components.TeamRed)
	ka, kb := a.Entity.(*PowerEntity).Node.Key, b.Entity.(*PowerEntity).Node.Key
	if h.w.Power().Linked(ka, kb) {
		t.Error("blocks of different teams linked")
	}
}

func TestLaserLinks(t *testing.T) {
	h := newHarness(t, remote.SideStandalone, nil)
	h.place(t, h.c.Node, 10, 10, components.TeamBlue)
	h.place(t, h.c.Consumer, 14, 10, components.TeamBlue)
	h.place(t, h.c.Consumer, 25, 10, components.TeamBlue)
	h.place(t, h.c.Consumer, 10, 13, components.TeamRed)
	h.place(t, h.c.Distributor, 20, 20, components.TeamBlue)

	node := power.Key{X: 10, Y: 10}
	tests := []struct {
		name    string
		a, b    power.Key
		wantErr bool
	}{
		{name: "in range", a: node, b: power.Key{X: 14, Y: 10}},
		{name: "out of range", a: node, b: power.Key{X: 25, Y: 10}, wantErr: true},
		{name: "other team", a: node, b: power.Key{X: 10, Y: 13}, wantErr: true},
		{name: "no node", a: power.Key{X: 20, Y: 20}, b: power.Key{X: 14, Y: 10}, wantErr: true},
		{name: "self", a: node, b: node, wantErr: true},
		{name: "empty tile", a: node, b: power.Key{X: 11, Y: 11}, wantErr: true},
	}
	for i, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := h.c.validateLink("p", LinkArgs{A: tc.a, B: tc.b})
			if (err != nil) != tc.wantErr {
				t.Fatalf("validate err = %v, wantErr %v", err, tc.wantErr)
			}
			h.d.BeginTick(uint64(i + 1))
			h.c.LinkPower.Call(LinkArgs{A: tc.a, B: tc.b})
			if linked := h.w.Power().Linked(tc.a, tc.b); linked == tc.wantErr {
				t.Errorf("linked = %v", linked)
			}
		})
	}
}

func TestAuthorization(t *testing.T) {
	h := newHarness(t, remote.SideServer, nil)
	h.c.SetAuthorizer(func(origin string, team components.Team) bool {
		return origin == "blue-player" && team == components.TeamBlue
	})

	if err := h.c.validatePlace("blue-player", PlaceArgs{X: 3, Y: 3, Block: "wall", Team: components.TeamBlue}); err != nil {
		t.Errorf("authorized place rejected: %v", err)
	}
	if err := h.c.validatePlace("red-player", PlaceArgs{X: 3, Y: 3, Block: "wall", Team: components.TeamBlue}); !errors.Is(err, ErrNotAuthorized) {
		t.Errorf("err = %v, want ErrNotAuthorized", err)
	}
	if err := h.c.validatePlace("blue-player", PlaceArgs{X: 3, Y: 3, Block: "nope", Team: components.TeamBlue}); !errors.Is(err, world.ErrUnknownBlock) {
		t.Errorf("err = %v, want ErrUnknownBlock", err)
	}
	if err := h.c.validatePlace("blue-player", PlaceArgs{X: 3, Y: 3, Block: "wall", Team: components.TeamDerelict}); err == nil {
		t.Error("derelict placement accepted")
	}

	h.place(t, h.c.Wall, 6, 6, components.TeamRed)
	if err := h.c.validateBreak("blue-player", BreakArgs{X: 6, Y: 6}); !errors.Is(err, ErrNotAuthorized) {
		t.Errorf("err = %v, want ErrNotAuthorized", err)
	}
}

func TestCoreStateRejectsUnknownItem(t *testing.T) {
	h := newHarness(t, remote.SideStandalone, nil)
	core := h.place(t, h.c.Core, 10, 10, components.TeamBlue).Entity.(*CoreEntity)

	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	_ = enc.EncodeBool(false)
	_ = enc.Encode([]itemStack{{Item: "copper", Count: 3}, {Item: "unobtainium", Count: 1}})

	if err := world.DecodeState(core, buf.Bytes()); err == nil {
		t.Fatal("expected error for an unknown item")
	}
	if !core.Solid() || core.ItemCount(Copper) != 0 {
		t.Error("rejected state was partly applied")
	}
}

func TestSaveRestoresBlockState(t *testing.T) {
	h := newHarness(t, remote.SideStandalone, nil)
	core := h.place(t, h.c.Core, 10, 10, components.TeamBlue)
	h.place(t, h.c.Generator, 2, 2, components.TeamBlue)
	bat := h.place(t, h.c.Battery, 4, 2, components.TeamBlue)
	h.place(t, h.c.Node, 20, 20, components.TeamBlue)
	h.place(t, h.c.Consumer, 24, 20, components.TeamBlue)
	h.c.LinkPower.Call(LinkArgs{A: power.Key{X: 20, Y: 20}, B: power.Key{X: 24, Y: 20}})

	// A unit inside keeps the opened core from closing
	cx, cy := h.w.DrawPos(core)
	if _, err := h.w.SpawnUnit(components.KindPlayer, components.TeamBlue, cx, cy); err != nil {
		t.Fatal(err)
	}
	h.c.SetCoreSolid.Call(SolidArgs{X: 10, Y: 10, Solid: false})
	for range 6 {
		h.step()
	}
	core.Entity.(*CoreEntity).HandleItem(Copper, 120)
	stored := bat.Entity.(*PowerEntity).Node.Stored
	if core.Entity.(*CoreEntity).Solid() {
		t.Fatal("core closed over a unit")
	}

	var buf bytes.Buffer
	if err := h.w.Save(&buf); err != nil {
		t.Fatal(err)
	}

	r := newHarness(t, remote.SideStandalone, nil)
	if err := r.w.Load(&buf); err != nil {
		t.Fatal(err)
	}
	rc, ok := r.c.CoreAt(10, 10)
	if !ok {
		t.Fatal("core not restored")
	}
	if rc.Solid() {
		t.Error("solid flag not restored")
	}
	if got := rc.ItemCount(Copper); got != 120 {
		t.Errorf("copper = %d, want 120", got)
	}
	if got := len(r.w.Teams().Cores(components.TeamBlue)); got != 1 {
		t.Errorf("restored cores = %d, want 1", got)
	}
	rb, _ := r.c.PowerAt(4, 2)
	if rb.Node.Stored != stored {
		t.Errorf("battery stored = %v, want %v", rb.Node.Stored, stored)
	}
	if !r.w.Power().Linked(power.Key{X: 20, Y: 20}, power.Key{X: 24, Y: 20}) {
		t.Error("laser link not restored")
	}
}
