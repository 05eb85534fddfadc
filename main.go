package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pthm-cable/bastion/admin"
	"github.com/pthm-cable/bastion/client"
	"github.com/pthm-cable/bastion/config"
	"github.com/pthm-cable/bastion/game"
	"github.com/pthm-cable/bastion/remote"
	"github.com/pthm-cable/bastion/server"
)

type flags struct {
	configPath string
	side       string
	addr       string
	connect    string
	name       string
	team       string
	player     string
	headless   bool
	logStats   bool
	skirmish   bool
	outputDir  string
	savePath   string
	loadPath   string
	seed       int64
	maxTicks   uint64
}

func main() {
	var f flags
	flag.StringVar(&f.configPath, "config", "", "Path to config.yaml (empty = use defaults)")
	flag.StringVar(&f.side, "side", "standalone", "Process role: standalone, server or client")
	flag.StringVar(&f.addr, "addr", "", "Server listen address (empty = use config)")
	flag.StringVar(&f.connect, "connect", "localhost:8000", "Server address for -side=client")
	flag.StringVar(&f.name, "name", "player", "Player name for -side=client")
	flag.StringVar(&f.team, "team", "", "Team for -side=client (empty = server default)")
	flag.StringVar(&f.player, "player", "", "Player uuid for -side=client (empty = new player)")
	flag.BoolVar(&f.headless, "headless", false, "Run ticks as fast as possible instead of at tick_rate")
	flag.BoolVar(&f.logStats, "log-stats", false, "Output stats via slog")
	flag.BoolVar(&f.skirmish, "skirmish", false, "Start with a powered base and a wave core")
	flag.StringVar(&f.outputDir, "output-dir", "", "Output directory for CSV logs and config snapshot")
	flag.StringVar(&f.savePath, "save", "", "Write the world to this file on exit")
	flag.StringVar(&f.loadPath, "load", "", "Load the world from this file before starting")
	flag.Int64Var(&f.seed, "seed", 0, "RNG seed (0 = time-based)")
	flag.Uint64Var(&f.maxTicks, "max-ticks", 0, "Stop after N ticks (0 = unlimited)")
	flag.Parse()

	// Set up slog (JSON to stdout for structured logging)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(f, logger); err != nil {
		slog.Error("exiting", "error", err)
		os.Exit(1)
	}
}

func run(f flags, logger *slog.Logger) error {
	if err := config.Init(f.configPath); err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg := config.Cfg()
	if f.addr != "" {
		cfg.Server.Addr = f.addr
	}

	side, err := remote.ParseSide(f.side)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := game.Options{
		Side:      side,
		Seed:      f.seed,
		OutputDir: f.outputDir,
		LogStats:  f.logStats,
		Logger:    logger,
	}

	interval := cfg.Derived.TickInterval
	if f.headless {
		interval = 0
	}

	switch side {
	case remote.SideServer:
		return runServer(ctx, f, cfg, opts, interval, logger)
	case remote.SideClient:
		return runClient(ctx, f, cfg, opts, interval, logger)
	default:
		g, err := game.New(cfg, opts)
		if err != nil {
			return err
		}
		defer g.Close()
		return simulate(ctx, f, g, interval)
	}
}

func runServer(ctx context.Context, f flags, cfg *config.Config, opts game.Options, interval time.Duration, logger *slog.Logger) error {
	var store admin.Store = admin.NewMemoryStore()
	if cfg.Server.AdminDB != "" {
		sqlStore, err := admin.OpenSQL(ctx, cfg.Server.AdminDB)
		if err != nil {
			return err
		}
		store = sqlStore
	}
	adm := admin.New(store, logger)
	defer adm.Close()

	hub := server.NewHub(logger)
	opts.Origin = client.ServerPeer
	opts.Transport = hub
	g, err := game.New(cfg, opts)
	if err != nil {
		return err
	}
	defer g.Close()

	gin.SetMode(gin.ReleaseMode)
	srv := server.New(cfg, g, adm, hub, logger)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	errc := make(chan error, 1)
	go func() { errc <- srv.Run(ctx) }()

	simErr := simulate(ctx, f, g, interval)
	cancel()
	if err := <-errc; err != nil {
		return err
	}
	return simErr
}

func runClient(ctx context.Context, f flags, cfg *config.Config, opts game.Options, interval time.Duration, logger *slog.Logger) error {
	url := client.URL(f.connect, client.Join{Player: f.player, Name: f.name, Team: f.team})
	conn, err := client.Dial(ctx, url, logger)
	if err != nil {
		return err
	}
	defer conn.Close()

	opts.Origin = conn.Peer
	opts.Transport = conn
	g, err := game.New(cfg, opts)
	if err != nil {
		return err
	}
	defer g.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		if err := conn.Run(ctx, g); err != nil {
			logger.Error("connection_lost", "err", err)
		}
		cancel()
	}()
	return simulate(ctx, f, g, interval)
}

// simulate loads, steps and saves a game. Cancellation is a normal stop.
func simulate(ctx context.Context, f flags, g *game.Game, interval time.Duration) error {
	if f.loadPath != "" {
		if err := loadWorld(g, f.loadPath); err != nil {
			return err
		}
	} else if f.skirmish && g.Dispatcher().Side() != remote.SideClient {
		g.Skirmish()
	}

	slog.Info("starting simulation",
		"side", g.Dispatcher().Side(),
		"interval", interval,
		"max_ticks", f.maxTicks,
	)
	err := g.Run(ctx, interval, f.maxTicks)
	if ctx.Err() != nil {
		err = nil
	}

	if f.savePath != "" {
		if serr := saveWorld(g, f.savePath); serr != nil {
			return serr
		}
		slog.Info("world_saved", "path", f.savePath, "tick", g.Tick())
	}
	return err
}

func loadWorld(g *game.Game, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening save: %w", err)
	}
	defer file.Close()
	return g.Load(file)
}

func saveWorld(g *game.Game, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating save: %w", err)
	}
	if err := g.Save(file); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
