package game

import (
	"bytes"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/pthm-cable/bastion/blocks"
	"github.com/pthm-cable/bastion/components"
	"github.com/pthm-cable/bastion/config"
	"github.com/pthm-cable/bastion/remote"
	"github.com/pthm-cable/bastion/telemetry"
	"github.com/pthm-cable/bastion/world"
)

type effectLog struct {
	names []string
}

func (l *effectLog) Effect(e world.Effect) {
	l.names = append(l.names, e.Name)
}

func (l *effectLog) count(name string) int {
	n := 0
	for _, got := range l.names {
		if got == name {
			n++
		}
	}
	return n
}

func testConfig(tweak func(*config.Config)) *config.Config {
	cfg := config.Default()
	cfg.World.Width, cfg.World.Height = 32, 32
	cfg.Rules.RespawnTime = 8
	cfg.Core.DroneRespawnDuration = 4
	cfg.Core.WarmupThreshold = 2
	if tweak != nil {
		tweak(cfg)
	}
	if err := cfg.Refresh(); err != nil {
		panic(err)
	}
	return cfg
}

func newTestGame(t *testing.T, cfg *config.Config, opts Options) *Game {
	t.Helper()
	opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	if opts.Seed == 0 {
		opts.Seed = 1
	}
	g, err := New(cfg, opts)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { g.Close() })
	return g
}

func place(t *testing.T, g *Game, name string, x, y int32, team components.Team) {
	t.Helper()
	g.Do(func() {
		b, ok := g.World().Block(name)
		if !ok {
			t.Fatalf("unknown block %q", name)
		}
		if _, err := g.World().Place(b, x, y, team); err != nil {
			t.Fatal(err)
		}
	})
}

func steps(g *Game, n int) {
	for range n {
		g.Step()
	}
}

func mustEncode(t *testing.T, v any) []byte {
	t.Helper()
	data, err := msgpack.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func unitView(g *Game, id uint32) (UnitView, bool) {
	for _, u := range g.View().Units {
		if u.ID == id {
			return u, true
		}
	}
	return UnitView{}, false
}

func TestPlayerRespawnsThroughCore(t *testing.T) {
	effects := &effectLog{}
	// No drones, so the core only ever releases the player
	cfg := testConfig(func(c *config.Config) { c.Core.WarmupThreshold = 1e6 })
	g := newTestGame(t, cfg, Options{Effects: effects})
	place(t, g, "core", 10, 10, components.TeamBlue)

	id, err := g.SpawnPlayer(components.TeamBlue, "alice")
	if err != nil {
		t.Fatal(err)
	}

	// Attached on the first tick, released once progress reaches 1
	g.Step()
	if c := g.View().Cores[0]; c.Unit != id || c.State != blocks.CoreOccupied.String() {
		t.Fatalf("core = %+v, want holding unit %d", c, id)
	}
	steps(g, 8)

	u, _ := unitView(g, id)
	if u.Dead {
		t.Fatal("player still dead after the respawn duration")
	}
	if u.Health != u.MaxHealth || u.Rotation != 90 {
		t.Errorf("respawned unit = %+v", u)
	}
	if effects.count("spawn") != 1 {
		t.Errorf("spawn effects = %d, want 1", effects.count("spawn"))
	}
	if c := g.View().Cores[0]; c.State != blocks.CoreIdleOpen.String() {
		t.Errorf("core state after release = %s, want open", c.State)
	}
	g.Do(func() {
		e, _ := g.Units().Lookup(id)
		if _, linked := g.Units().SpawnLink(e); linked {
			t.Error("player kept its spawn link after respawning")
		}
	})

	// The unit drifts clear and the core closes behind it
	steps(g, 30)
	if c := g.View().Cores[0]; c.State != blocks.CoreIdleSolid.String() {
		t.Errorf("core state = %s, want solid", c.State)
	}
	if effects.count("core_close") != 1 {
		t.Errorf("core_close effects = %d, want 1", effects.count("core_close"))
	}
}

func TestPlayerWithoutCoreWaits(t *testing.T) {
	g := newTestGame(t, testConfig(nil), Options{})
	id, _ := g.SpawnPlayer(components.TeamBlue, "bob")
	steps(g, 20)

	u, ok := unitView(g, id)
	if !ok || !u.Dead {
		t.Fatalf("player = %+v (found %v), want kept dead", u, ok)
	}

	// A core appearing later picks the player up
	place(t, g, "core", 5, 5, components.TeamBlue)
	steps(g, 10)
	if u, _ := unitView(g, id); u.Dead {
		t.Error("player not respawned by the new core")
	}
}

func TestOrphanedDroneRemoved(t *testing.T) {
	g := newTestGame(t, testConfig(nil), Options{})
	var id uint32
	g.Do(func() {
		spec := g.World().UnitSpec(components.KindDrone, components.TeamRed, 40, 40)
		spec.Dead = true
		spec.Spawner = &components.SpawnLink{TileX: 3, TileY: 3}
		e, err := g.Units().Add(spec)
		if err != nil {
			t.Fatal(err)
		}
		id = g.Units().ID(e)
	})

	g.Step()
	if _, ok := unitView(g, id); ok {
		t.Error("dead drone with no spawner was not removed")
	}
}

func TestWaveCoreMaintainsDrones(t *testing.T) {
	g := newTestGame(t, testConfig(nil), Options{})
	place(t, g, "core", 16, 16, components.TeamRed)

	maxDrones := 0
	for range 400 {
		g.Step()
		n := 0
		for _, u := range g.View().Units {
			if u.Kind == components.KindDrone.String() {
				n++
			}
		}
		maxDrones = max(maxDrones, n)
	}
	if maxDrones < 2 || maxDrones > 4 {
		t.Errorf("peak drones = %d, want between 2 and the cap of 4", maxDrones)
	}
}

func TestBulletKillsEnemy(t *testing.T) {
	var windows []telemetry.WindowStats
	cfg := testConfig(func(c *config.Config) { c.Telemetry.StatsWindow = 0.1 })
	g := newTestGame(t, cfg, Options{StatsCallback: func(s telemetry.WindowStats) {
		windows = append(windows, s)
	}})

	var shooter, target uint32
	g.Do(func() {
		s, _ := g.World().SpawnUnit(components.KindPlayer, components.TeamBlue, 100, 100)
		spec := g.World().UnitSpec(components.KindPlayer, components.TeamRed, 130, 100)
		spec.Health = 5
		tg, err := g.Units().Add(spec)
		if err != nil {
			t.Fatal(err)
		}
		shooter, target = g.Units().ID(s), g.Units().ID(tg)
		g.Shoot.Call(ShootArgs{Unit: shooter, Angle: 0})
	})
	steps(g, 20)

	u, _ := unitView(g, target)
	if !u.Dead {
		t.Fatalf("target = %+v, want dead", u)
	}
	if s, _ := unitView(g, shooter); s.Dead {
		t.Error("shooter hit by its own bullet")
	}
	for _, v := range g.View().Units {
		if v.Kind == components.KindBullet.String() {
			t.Error("bullet survived its hit")
		}
	}

	hits, kills := 0, 0
	for _, w := range windows {
		hits += w.Hits
		kills += w.Kills
	}
	if hits != 1 || kills != 1 {
		t.Errorf("telemetry hits/kills = %d/%d, want 1/1", hits, kills)
	}
}

func TestMoveClampsSpeed(t *testing.T) {
	g := newTestGame(t, testConfig(nil), Options{})
	var id uint32
	g.Do(func() {
		e, _ := g.World().SpawnUnit(components.KindPlayer, components.TeamBlue, 100, 100)
		id = g.Units().ID(e)
		g.Move.Call(MoveArgs{Unit: id, VelX: 30, VelY: 40})
	})
	g.Do(func() {
		e, _ := g.Units().Lookup(id)
		vel := g.Units().Velocity(e)
		speed := float32(g.Config().Units.Player.Speed)
		if d := vel.X*vel.X + vel.Y*vel.Y - speed*speed; d > 1e-3 || d < -1e-3 {
			t.Errorf("velocity = %+v, want magnitude %v", *vel, speed)
		}
	})
}

func TestMoveRejectsNonFiniteVelocity(t *testing.T) {
	inf := float32(math.Inf(1))
	nan := float32(math.NaN())
	tests := []struct {
		name string
		args MoveArgs
	}{
		{name: "+inf x", args: MoveArgs{VelX: inf}},
		{name: "-inf y", args: MoveArgs{VelY: -inf}},
		{name: "nan", args: MoveArgs{VelX: nan, VelY: 1}},
		{name: "inf both", args: MoveArgs{VelX: inf, VelY: inf}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			g := newTestGame(t, testConfig(nil), Options{Side: remote.SideServer, Origin: "server"})
			var id uint32
			g.Do(func() {
				e, _ := g.World().SpawnUnit(components.KindPlayer, components.TeamBlue, 16, 16)
				id = g.Units().ID(e)
				g.owners[id] = "c1"
			})
			tc.args.Unit = id

			g.Do(func() {
				if err := g.validateMove("c1", tc.args); err == nil {
					t.Error("validator accepted a non-finite velocity")
				}
			})
			g.Dispatcher().Deliver("c1", remote.Call{Action: "unit.move", Policy: remote.PolicyPredicted, Seq: 1,
				Payload: mustEncode(t, tc.args)})
			g.Step()
			if s := g.Dispatcher().Stats(); s.Rejected != 1 {
				t.Errorf("rejected = %d, want 1", s.Rejected)
			}

			// A prediction applied before validation zeroes the velocity
			g.Do(func() {
				g.applyMove(tc.args)
			})
			g.Step()
			u, _ := unitView(g, id)
			if !finite(u.X, u.Y) || u.X != 16 || u.Y != 16 {
				t.Errorf("unit position = (%v, %v), want (16, 16)", u.X, u.Y)
			}
		})
	}
}

func TestTelemetryOutput(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(func(c *config.Config) { c.Telemetry.StatsWindow = 0.1 })
	g := newTestGame(t, cfg, Options{OutputDir: dir})
	place(t, g, "generator", 2, 2, components.TeamBlue)
	place(t, g, "consumer", 4, 2, components.TeamBlue)
	steps(g, 13)

	if s := g.Stats(); s.WindowEndTick != 12 || s.PowerGraphs != 1 || s.Blocks != 2 {
		t.Errorf("last window = %+v", s)
	}
	if err := g.Close(); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "telemetry.csv"))
	if err != nil {
		t.Fatal(err)
	}
	if lines := strings.Count(string(data), "\n"); lines != 3 {
		t.Errorf("telemetry.csv has %d lines, want header + 2 windows", lines)
	}
	if _, err := os.Stat(filepath.Join(dir, "perf.csv")); err != nil {
		t.Error(err)
	}
}

// pipe delivers flushed calls straight into another game's dispatcher.
type pipe struct {
	from string
	to   **Game
}

func (p *pipe) Send(calls []remote.Call) error {
	for _, c := range calls {
		(*p.to).Dispatcher().Deliver(p.from, c)
	}
	return nil
}

func TestClientServerReplication(t *testing.T) {
	var server, client *Game
	cfg := testConfig(func(c *config.Config) { c.Core.WarmupThreshold = 1e6 })
	server = newTestGame(t, cfg, Options{Side: remote.SideServer, Origin: "server", Transport: &pipe{from: "server", to: &client}})
	client = newTestGame(t, cfg, Options{Side: remote.SideClient, Origin: "c1", Transport: &pipe{from: "c1", to: &server}})

	// Server-side placement is broadcast
	server.Do(func() {
		server.Content().PlaceBlock.Call(blocks.PlaceArgs{X: 10, Y: 10, Block: "core", Team: components.TeamBlue})
	})
	server.Step()
	client.Step()
	if got := len(client.View().Blocks); got != 1 {
		t.Fatalf("client blocks = %d, want 1", got)
	}

	// A client placement goes through the server and comes back
	client.Do(func() {
		client.Content().PlaceBlock.Call(blocks.PlaceArgs{X: 20, Y: 20, Block: "wall", Team: components.TeamBlue})
	})
	if got := len(client.View().Blocks); got != 1 {
		t.Fatalf("client applied a server action locally, blocks = %d", got)
	}
	client.Step()
	server.Step()
	client.Step()
	if got := len(client.View().Blocks); got != 2 {
		t.Fatalf("client blocks after round trip = %d, want 2", got)
	}
	if got := len(server.View().Blocks); got != 2 {
		t.Fatalf("server blocks = %d, want 2", got)
	}

	// The client player joins, respawns on the server and is mirrored by snapshot
	id, err := server.SpawnPlayer(components.TeamBlue, "c1")
	if err != nil {
		t.Fatal(err)
	}
	steps(server, 12)
	var buf bytes.Buffer
	if err := server.Save(&buf); err != nil {
		t.Fatal(err)
	}
	if err := client.Load(&buf); err != nil {
		t.Fatal(err)
	}
	if u, ok := unitView(client, id); !ok || u.Dead {
		t.Fatalf("client copy of player = %+v (found %v)", u, ok)
	}

	// Predicted move applies on the client now and on the server after relay
	client.Do(func() {
		client.Move.Call(MoveArgs{Unit: id, VelX: -1})
	})
	client.Do(func() {
		e, _ := client.Units().Lookup(id)
		if vel := client.Units().Velocity(e); vel.X != -1 {
			t.Errorf("client velocity = %+v, want predicted", *vel)
		}
	})
	client.Step()
	server.Step()
	server.Do(func() {
		e, _ := server.Units().Lookup(id)
		if vel := server.Units().Velocity(e); vel.X != -1 || vel.Y != 0 {
			t.Errorf("server velocity = %+v", *vel)
		}
	})

	// Another peer may not steer the player
	server.Dispatcher().Deliver("c2", remote.Call{Action: "unit.move", Policy: remote.PolicyPredicted, Seq: 1,
		Payload: mustEncode(t, MoveArgs{Unit: id, VelX: 1})})
	server.Step()
	if s := server.Dispatcher().Stats(); s.Rejected != 1 {
		t.Errorf("rejected = %d, want 1", s.Rejected)
	}
}

func TestClientCoreOpensAfterSnapshotRevival(t *testing.T) {
	var server, client *Game
	effects := &effectLog{}
	cfg := testConfig(func(c *config.Config) { c.Core.WarmupThreshold = 1e6 })
	server = newTestGame(t, cfg, Options{Side: remote.SideServer, Origin: "server", Transport: &pipe{from: "server", to: &client}})
	client = newTestGame(t, cfg, Options{Side: remote.SideClient, Origin: "c1", Transport: &pipe{from: "c1", to: &server}, Effects: effects})

	server.Do(func() {
		server.Content().PlaceBlock.Call(blocks.PlaceArgs{X: 10, Y: 10, Block: "core", Team: components.TeamBlue})
	})
	server.Step()
	client.Step()
	if _, err := server.SpawnPlayer(components.TeamBlue, "c1"); err != nil {
		t.Fatal(err)
	}

	// Snapshots reach the client before the queued release call
	opened := false
	for range 30 {
		server.Step()
		client.SyncUnits(server.UnitSpecs())
		client.Step()
		if server.View().Cores[0].State == blocks.CoreIdleOpen.String() {
			opened = true
			break
		}
	}
	if !opened {
		t.Fatal("server core never released the player")
	}
	if c := client.View().Cores[0]; c.State != blocks.CoreIdleOpen.String() || c.Unit != 0 {
		t.Errorf("client core = %+v, want idle-open", c)
	}
	if got := effects.count("spawn"); got != 1 {
		t.Errorf("client spawn effects = %d, want 1", got)
	}
}

func TestSyncUnits(t *testing.T) {
	server := newTestGame(t, testConfig(nil), Options{Side: remote.SideServer})
	client := newTestGame(t, testConfig(nil), Options{Side: remote.SideClient})

	a, err := server.SpawnPlayer(components.TeamBlue, "a")
	if err != nil {
		t.Fatal(err)
	}
	b, err := server.SpawnPlayer(components.TeamRed, "b")
	if err != nil {
		t.Fatal(err)
	}

	tick, specs := server.UnitSpecs()
	if added, removed := client.SyncUnits(tick+5, specs); added != 2 || removed != 0 {
		t.Fatalf("first sync added %d removed %d, want 2/0", added, removed)
	}

	server.ReleasePlayer("b")
	server.Step()
	_, specs = server.UnitSpecs()

	// Older than the last applied snapshot
	if added, removed := client.SyncUnits(tick, specs); added != 0 || removed != 0 {
		t.Errorf("stale sync added %d removed %d", added, removed)
	}
	if added, removed := client.SyncUnits(tick+6, specs); added != 0 || removed != 1 {
		t.Errorf("second sync added %d removed %d, want 0/1", added, removed)
	}
	if _, ok := unitView(client, a); !ok {
		t.Error("unit a missing after sync")
	}
	if _, ok := unitView(client, b); ok {
		t.Error("unit b still present after sync")
	}
}

func TestSkirmish(t *testing.T) {
	cfg := config.Default()
	g := newTestGame(t, cfg, Options{Side: remote.SideStandalone})
	g.Skirmish()
	g.Step()

	v := g.View()
	if len(v.Blocks) != 13 {
		t.Errorf("blocks = %d, want 13", len(v.Blocks))
	}
	teams := map[components.Team]int{}
	for _, c := range v.Cores {
		teams[c.Team]++
	}
	if teams[cfg.Rules.DefaultTeam] != 1 || teams[cfg.Rules.WaveTeam] != 1 {
		t.Errorf("cores by team = %v", teams)
	}
	if len(v.Power) == 0 {
		t.Error("no power graphs after skirmish setup")
	}
}
