// Package config provides configuration loading and access for the simulation.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pthm-cable/bastion/components"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds all simulation configuration parameters.
type Config struct {
	World     WorldConfig     `yaml:"world"`
	Physics   PhysicsConfig   `yaml:"physics"`
	Rules     RulesConfig     `yaml:"rules"`
	Core      CoreConfig      `yaml:"core"`
	Units     UnitsConfig     `yaml:"units"`
	Power     PowerConfig     `yaml:"power"`
	Server    ServerConfig    `yaml:"server"`
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// WorldConfig holds grid dimensions.
type WorldConfig struct {
	Width    int     `yaml:"width"`     // Tiles
	Height   int     `yaml:"height"`    // Tiles
	TileSize float64 `yaml:"tile_size"` // World units per tile
}

// PhysicsConfig holds tick parameters.
type PhysicsConfig struct {
	Delta        float64 `yaml:"delta"`     // Simulation time advanced per tick, in 60Hz frames
	TickRate     int     `yaml:"tick_rate"` // Ticks per second in realtime mode
	GridCellSize float64 `yaml:"grid_cell_size"`
}

// RulesConfig holds game mode rules.
type RulesConfig struct {
	PvP          bool            `yaml:"pvp"`
	RespawnTime  float64         `yaml:"respawn_time"` // Player respawn duration in ticks
	WaveTeam     components.Team `yaml:"wave_team"`
	DefaultTeam  components.Team `yaml:"default_team"`
	FriendlyFire bool            `yaml:"friendly_fire"`
}

// CoreConfig holds core block parameters.
type CoreConfig struct {
	Size                 int     `yaml:"size"`
	DroneRespawnDuration float64 `yaml:"drone_respawn_duration"` // Ticks
	MaxDrones            int     `yaml:"max_drones"`
	WarmupThreshold      float64 `yaml:"warmup_threshold"` // Idle ticks before drones spawn
	HeatRate             float64 `yaml:"heat_rate"`
	ItemCapacity         int     `yaml:"item_capacity"`
}

// UnitConfig holds per-kind unit stats.
type UnitConfig struct {
	Health float64 `yaml:"health"`
	Radius float64 `yaml:"radius"`
	Speed  float64 `yaml:"speed"`
	Damage float64 `yaml:"damage"`
}

// UnitsConfig holds stats for every unit kind.
type UnitsConfig struct {
	Player UnitConfig `yaml:"player"`
	Drone  UnitConfig `yaml:"drone"`
	Bullet UnitConfig `yaml:"bullet"`
}

// PowerConfig holds power block parameters.
type PowerConfig struct {
	NodeRange       int     `yaml:"node_range"` // Tiles
	GeneratorOutput float64 `yaml:"generator_output"`
	ConsumerUse     float64 `yaml:"consumer_use"`
	BatteryCapacity float64 `yaml:"battery_capacity"`
}

// ServerConfig holds network server parameters.
type ServerConfig struct {
	Addr               string  `yaml:"addr"`
	SnapshotIntervalMs int     `yaml:"snapshot_interval_ms"`
	MaxMessageBytes    int64   `yaml:"max_message_bytes"`
	CallsPerSecond     float64 `yaml:"calls_per_second"`
	CallBurst          int     `yaml:"call_burst"`
	SendBuffer         int     `yaml:"send_buffer"` // Frames queued per peer before it is dropped
	AdminDB            string  `yaml:"admin_db"` // SQLite path; empty keeps player records in memory
}

// TelemetryConfig holds telemetry parameters.
type TelemetryConfig struct {
	StatsWindow float64 `yaml:"stats_window"` // Seconds of simulation per stats window
	PerfWindow  int     `yaml:"perf_window"`  // Ticks averaged by the perf collector
}

// DerivedConfig holds computed values derived from the loaded config.
type DerivedConfig struct {
	Delta32          float32
	TileSize32       float32
	WorldW32         float32 // World width in world units
	WorldH32         float32
	TickInterval     time.Duration
	SnapshotInterval time.Duration
}

// global holds the loaded configuration.
var global *Config

// Init loads configuration from the given path, or uses embedded defaults if path is empty.
// Must be called before Cfg().
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Default returns a fresh copy of the embedded defaults.
func Default() *Config {
	cfg, err := Load("")
	if err != nil {
		panic(fmt.Sprintf("config: embedded defaults are invalid: %v", err))
	}
	return cfg
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Only fields present in the file are overwritten
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.computeDerived()

	return cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.World.Width <= 0 || c.World.Height <= 0:
		return fmt.Errorf("config: world size must be positive, got %dx%d", c.World.Width, c.World.Height)
	case c.World.TileSize <= 0:
		return fmt.Errorf("config: tile_size must be positive")
	case c.Physics.Delta <= 0:
		return fmt.Errorf("config: physics.delta must be positive")
	case c.Rules.RespawnTime <= 0 || c.Core.DroneRespawnDuration <= 0:
		return fmt.Errorf("config: respawn durations must be positive")
	case c.Core.Size <= 0:
		return fmt.Errorf("config: core.size must be positive")
	case c.Server.SendBuffer < 2:
		return fmt.Errorf("config: server.send_buffer must hold the join frames, got %d", c.Server.SendBuffer)
	}
	return nil
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() {
	c.Derived.Delta32 = float32(c.Physics.Delta)
	c.Derived.TileSize32 = float32(c.World.TileSize)
	c.Derived.WorldW32 = float32(float64(c.World.Width) * c.World.TileSize)
	c.Derived.WorldH32 = float32(float64(c.World.Height) * c.World.TileSize)

	rate := c.Physics.TickRate
	if rate <= 0 {
		rate = 60
	}
	c.Derived.TickInterval = time.Second / time.Duration(rate)
	c.Derived.SnapshotInterval = time.Duration(c.Server.SnapshotIntervalMs) * time.Millisecond
	if c.Physics.GridCellSize <= 0 {
		c.Physics.GridCellSize = c.World.TileSize * 4
	}
}

// Refresh validates the config and recomputes derived values after fields
// were changed in code, such as by command-line flags.
func (c *Config) Refresh() error {
	if err := c.validate(); err != nil {
		return err
	}
	c.computeDerived()
	return nil
}

// Unit returns the stats for a unit kind.
func (c *Config) Unit(kind components.UnitKind) UnitConfig {
	switch kind {
	case components.KindDrone:
		return c.Units.Drone
	case components.KindBullet:
		return c.Units.Bullet
	default:
		return c.Units.Player
	}
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
