// Package game composes the simulation: tile world, blocks, units,
// replication and telemetry, advanced one tick at a time.
package game

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/bastion/blocks"
	"github.com/pthm-cable/bastion/config"
	"github.com/pthm-cable/bastion/entity"
	"github.com/pthm-cable/bastion/power"
	"github.com/pthm-cable/bastion/remote"
	"github.com/pthm-cable/bastion/systems"
	"github.com/pthm-cable/bastion/telemetry"
	"github.com/pthm-cable/bastion/world"
)

// Options configures a Game.
type Options struct {
	Side      remote.Side
	Origin    string // Peer name in issued calls; defaults to the side name
	Seed      int64
	OutputDir string // Empty disables CSV output
	LogStats  bool

	Logger    *slog.Logger
	Transport remote.Transport
	Effects   world.EffectSink // Receives every emitted effect, may be nil

	// StatsCallback is called with each flushed telemetry window.
	StatsCallback func(telemetry.WindowStats)
}

// Game holds the complete simulation state. Step, Do and the read helpers
// serialize on one mutex, so transports and HTTP handlers may call them from
// their own goroutines.
type Game struct {
	mu sync.Mutex

	cfg  *config.Config
	opts Options
	log  *slog.Logger
	rng  *rand.Rand

	ecs     *ecs.World
	units   *entity.Registry
	power   *power.Network
	world   *world.World
	disp    *remote.Dispatcher
	content *blocks.Content

	movement  *systems.MovementSystem
	collision *systems.CollisionSystem
	bounds    systems.Bounds

	// Unit ID to the peer controlling it
	owners map[uint32]string

	Move  *remote.Action[MoveArgs]
	Shoot *remote.Action[ShootArgs]

	collector *telemetry.Collector
	perf      *telemetry.PerfCollector
	output    *telemetry.OutputManager
	lastStats telemetry.WindowStats

	tick     uint64
	syncTick uint64 // Tick of the last applied unit snapshot
}

// New creates a game on an empty world.
func New(cfg *config.Config, opts Options) (*Game, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Origin == "" {
		opts.Origin = opts.Side.String()
	}
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	g := &Game{
		cfg:    cfg,
		opts:   opts,
		log:    opts.Logger,
		rng:    rand.New(rand.NewSource(seed)),
		ecs:    ecs.NewWorld(),
		owners: make(map[uint32]string),
	}
	g.units = entity.NewRegistry(g.ecs)
	g.power = power.NewNetwork(cfg.Physics.Delta)

	g.world = world.New(cfg, g.units, g.power)
	g.world.SetLogger(g.log)
	g.world.SetEffects(world.EffectFunc(g.effect))

	dispOpts := []remote.Option{remote.WithLogger(g.log)}
	if opts.Transport != nil {
		dispOpts = append(dispOpts, remote.WithTransport(opts.Transport))
	}
	g.disp = remote.NewDispatcher(opts.Side, opts.Origin, dispOpts...)
	g.content = blocks.New(g.world, g.disp)
	g.defineActions()

	g.bounds = systems.Bounds{Width: cfg.Derived.WorldW32, Height: cfg.Derived.WorldH32}
	g.movement = systems.NewMovementSystem(g.units, g.bounds, g.world.SolidAt)
	grid := systems.NewSpatialGrid(g.bounds.Width, g.bounds.Height, float32(cfg.Physics.GridCellSize))
	g.collision = systems.NewCollisionSystem(g.units, grid)
	g.collision.FriendlyFire = cfg.Rules.FriendlyFire
	g.collision.OnHit(func(ev systems.HitEvent) {
		g.collector.RecordHit(ev.Killed)
	})

	g.units.OnRemove(func(e ecs.Entity) {
		delete(g.owners, g.units.ID(e))
	})

	g.collector = telemetry.NewCollector(cfg.Telemetry.StatsWindow, cfg.Physics.Delta)
	g.perf = telemetry.NewPerfCollector(cfg.Telemetry.PerfWindow)

	output, err := telemetry.NewOutputManager(opts.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("output: %w", err)
	}
	g.output = output
	if err := g.output.WriteConfig(cfg); err != nil {
		g.output.Close()
		return nil, fmt.Errorf("output: %w", err)
	}

	g.log.Info("game_created",
		"side", opts.Side,
		"origin", opts.Origin,
		"seed", seed,
		"width", cfg.World.Width,
		"height", cfg.World.Height,
	)
	return g, nil
}

// effect forwards world effects to telemetry and the configured sink.
func (g *Game) effect(e world.Effect) {
	if e.Name == "spawn" {
		g.collector.RecordRespawn()
	}
	if g.opts.Effects != nil {
		g.opts.Effects.Effect(e)
	}
}

// Do runs fn with exclusive access to the simulation.
func (g *Game) Do(fn func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fn()
}

// Tick returns the last completed tick.
func (g *Game) Tick() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.tick
}

// Config returns the game configuration.
func (g *Game) Config() *config.Config { return g.cfg }

// World returns the tile world. Use only inside Do or on the simulation goroutine.
func (g *Game) World() *world.World { return g.world }

// Units returns the entity registry. Use only inside Do or on the simulation goroutine.
func (g *Game) Units() *entity.Registry { return g.units }

// Content returns the block content and its actions.
func (g *Game) Content() *blocks.Content { return g.content }

// Dispatcher returns the replication dispatcher.
func (g *Game) Dispatcher() *remote.Dispatcher { return g.disp }

// Stats returns the last flushed telemetry window.
func (g *Game) Stats() telemetry.WindowStats {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastStats
}

// Run steps the game until ctx is done or maxTicks is reached (0 runs
// forever). A positive interval paces ticks in real time; zero runs as fast
// as possible.
func (g *Game) Run(ctx context.Context, interval time.Duration, maxTicks uint64) error {
	var ticker *time.Ticker
	if interval > 0 {
		ticker = time.NewTicker(interval)
		defer ticker.Stop()
	}
	for {
		if ticker != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}

		g.Step()
		if maxTicks > 0 && g.Tick() >= maxTicks {
			g.log.Info("max_ticks_reached", "tick", maxTicks)
			return nil
		}
	}
}

// Save writes the world to out.
func (g *Game) Save(out io.Writer) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.world.Save(out)
}

// Load replaces the world with a save stream and resumes from its tick.
func (g *Game) Load(in io.Reader) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.world.Load(in); err != nil {
		return err
	}
	g.tick = g.world.Tick()
	return nil
}

// Close flushes and closes telemetry output.
func (g *Game) Close() error {
	return g.output.Close()
}
