// Package world holds the tile grid, placed blocks and team bookkeeping.
package world

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/pthm-cable/bastion/components"
	"github.com/pthm-cable/bastion/config"
	"github.com/pthm-cable/bastion/entity"
	"github.com/pthm-cable/bastion/power"
	"github.com/pthm-cable/bastion/traits"
)

var (
	// ErrOutOfBounds is returned for tile coordinates outside the grid.
	ErrOutOfBounds = errors.New("world: out of bounds")
	// ErrOccupied is returned when placing over an existing block.
	ErrOccupied = errors.New("world: tile occupied")
	// ErrUnbreakable is returned when a block refuses deconstruction.
	ErrUnbreakable = errors.New("world: block cannot be broken")
	// ErrUnknownBlock is returned for block names that were never registered.
	ErrUnknownBlock = errors.New("world: unknown block")
)

// World is the tile grid plus everything that lives on it.
type World struct {
	width, height int
	tileSize      float32
	tiles         []Tile

	placed []*Tile // origin tiles in placement order
	blocks map[string]Block

	teams *Teams
	units *entity.Registry
	power *power.Network
	cfg   *config.Config
	rules config.RulesConfig

	effects EffectSink
	log     *slog.Logger

	tick  uint64
	delta float32
}

// New creates an empty world sized by cfg.
func New(cfg *config.Config, units *entity.Registry, net *power.Network) *World {
	w := &World{
		width:    cfg.World.Width,
		height:   cfg.World.Height,
		tileSize: cfg.Derived.TileSize32,
		tiles:    make([]Tile, cfg.World.Width*cfg.World.Height),
		blocks:   make(map[string]Block),
		teams:    &Teams{},
		units:    units,
		power:    net,
		cfg:      cfg,
		rules:    cfg.Rules,
		effects:  discardEffects{},
		log:      slog.Default(),
		delta:    cfg.Derived.Delta32,
	}
	for y := 0; y < w.height; y++ {
		for x := 0; x < w.width; x++ {
			t := &w.tiles[y*w.width+x]
			t.X, t.Y = int32(x), int32(y)
		}
	}
	return w
}

// SetEffects replaces the effect sink.
func (w *World) SetEffects(sink EffectSink) {
	if sink == nil {
		sink = discardEffects{}
	}
	w.effects = sink
}

// SetLogger replaces the logger.
func (w *World) SetLogger(l *slog.Logger) {
	w.log = l
}

func (w *World) Width() int                 { return w.width }
func (w *World) Height() int                { return w.height }
func (w *World) TileSize() float32          { return w.tileSize }
func (w *World) Teams() *Teams              { return w.teams }
func (w *World) Units() *entity.Registry    { return w.units }
func (w *World) Power() *power.Network      { return w.power }
func (w *World) Config() *config.Config     { return w.cfg }
func (w *World) Rules() *config.RulesConfig { return &w.rules }
func (w *World) Tick() uint64               { return w.tick }
func (w *World) Delta() float32             { return w.delta }
func (w *World) Logger() *slog.Logger       { return w.log }

// SetTick sets the current simulation tick.
func (w *World) SetTick(tick uint64) {
	w.tick = tick
}

// RegisterBlock makes a block available to Load by name.
func (w *World) RegisterBlock(b Block) {
	w.blocks[b.Name()] = b
}

// Block looks up a registered block by name.
func (w *World) Block(name string) (Block, bool) {
	b, ok := w.blocks[name]
	return b, ok
}

// InBounds reports whether grid coordinates are inside the world.
func (w *World) InBounds(x, y int32) bool {
	return x >= 0 && y >= 0 && int(x) < w.width && int(y) < w.height
}

// Tile returns the tile at grid coordinates, or nil outside the world.
func (w *World) Tile(x, y int32) *Tile {
	if !w.InBounds(x, y) {
		return nil
	}
	return &w.tiles[int(y)*w.width+int(x)]
}

// TileAt returns the tile under a world position, or nil outside the world.
func (w *World) TileAt(wx, wy float32) *Tile {
	if wx < 0 || wy < 0 {
		return nil
	}
	return w.Tile(int32(wx/w.tileSize), int32(wy/w.tileSize))
}

// Placed returns origin tiles in placement order.
func (w *World) Placed() []*Tile {
	return w.placed
}

// DrawPos returns the world-space center of the block on t.
func (w *World) DrawPos(t *Tile) (float32, float32) {
	o := t.Origin()
	size := 1
	if o.Block != nil {
		size = o.Block.Size()
	}
	// Even sizes center on the corner shared by the middle tiles
	offset := float32((size+1)%2) * w.tileSize / 2
	return (float32(o.X)+0.5)*w.tileSize + offset, (float32(o.Y)+0.5)*w.tileSize + offset
}

// Bounds returns the world-space rectangle covered by the block on t.
func (w *World) Bounds(t *Tile) (minX, minY, maxX, maxY float32) {
	cx, cy := w.DrawPos(t)
	size := 1
	if b := t.Origin().Block; b != nil {
		size = b.Size()
	}
	half := float32(size) * w.tileSize / 2
	return cx - half, cy - half, cx + half, cy + half
}

// covered returns the tiles a block of the given size at (x, y) would cover.
func (w *World) covered(x, y int32, size int) ([]*Tile, error) {
	off := blockOffset(size)
	tiles := make([]*Tile, 0, size*size)
	for dy := int32(0); dy < int32(size); dy++ {
		for dx := int32(0); dx < int32(size); dx++ {
			t := w.Tile(x-off+dx, y-off+dy)
			if t == nil {
				return nil, fmt.Errorf("%w: %d,%d size %d", ErrOutOfBounds, x, y, size)
			}
			tiles = append(tiles, t)
		}
	}
	return tiles, nil
}

// CanPlace reports whether a block fits at (x, y).
func (w *World) CanPlace(b Block, x, y int32) error {
	tiles, err := w.covered(x, y, b.Size())
	if err != nil {
		return err
	}
	for _, t := range tiles {
		if !t.Empty() {
			return fmt.Errorf("%w: %s at %d,%d", ErrOccupied, t.Origin().Block.Name(), t.X, t.Y)
		}
	}
	return nil
}

// Place puts a block on the grid with (x, y) as its origin tile.
func (w *World) Place(b Block, x, y int32, team components.Team) (*Tile, error) {
	if err := w.CanPlace(b, x, y); err != nil {
		return nil, err
	}
	tiles, _ := w.covered(x, y, b.Size())
	origin := w.Tile(x, y)
	for _, t := range tiles {
		if t != origin {
			t.origin = origin
		}
		t.Team = team
	}
	origin.Block = b
	origin.Entity = b.NewEntity(origin)
	w.placed = append(w.placed, origin)

	b.Placed(origin)
	w.updateProximity(origin, tiles)
	w.log.Debug("block_placed", "block", b.Name(), "x", x, "y", y, "team", team)
	return origin, nil
}

// Remove clears the block covering (x, y). Block.Removed runs first, while
// the entity is still attached. Returns false if there was nothing to remove.
func (w *World) Remove(x, y int32) bool {
	t := w.Tile(x, y)
	if t == nil || t.Empty() {
		return false
	}
	origin := t.Origin()
	b := origin.Block
	tiles, _ := w.covered(origin.X, origin.Y, b.Size())

	b.Removed(origin)

	for _, ct := range tiles {
		ct.origin = nil
		ct.Block = nil
		ct.Entity = nil
		ct.Team = components.TeamDerelict
	}
	w.placed = slices.DeleteFunc(w.placed, func(p *Tile) bool { return p == origin })
	w.updateProximity(nil, tiles)
	w.log.Debug("block_removed", "block", b.Name(), "x", origin.X, "y", origin.Y)
	return true
}

// Break removes a block if it allows deconstruction.
func (w *World) Break(x, y int32) error {
	t := w.Tile(x, y)
	if t == nil {
		return fmt.Errorf("%w: %d,%d", ErrOutOfBounds, x, y)
	}
	if t.Empty() {
		return nil
	}
	origin := t.Origin()
	if !origin.Block.CanBreak(origin) {
		return fmt.Errorf("%w: %s", ErrUnbreakable, origin)
	}
	w.Remove(x, y)
	return nil
}

// Neighbors returns the distinct origin tiles of blocks bordering the given tiles.
func (w *World) Neighbors(tiles []*Tile) []*Tile {
	var out []*Tile
	for _, t := range tiles {
		for _, d := range [4][2]int32{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
			n := w.Tile(t.X+d[0], t.Y+d[1])
			if n == nil || n.Empty() {
				continue
			}
			o := n.Origin()
			// Tiles of the same block are not neighbors
			if slices.Contains(tiles, o) || slices.Contains(out, o) {
				continue
			}
			out = append(out, o)
		}
	}
	return out
}

// BlockNeighbors returns the origin tiles of blocks bordering the block on t.
func (w *World) BlockNeighbors(t *Tile) []*Tile {
	o := t.Origin()
	if o.Block == nil {
		return nil
	}
	tiles, _ := w.covered(o.X, o.Y, o.Block.Size())
	return w.Neighbors(tiles)
}

func (w *World) updateProximity(origin *Tile, tiles []*Tile) {
	for _, n := range w.Neighbors(tiles) {
		n.Block.ProximityUpdate(n)
	}
	if origin != nil {
		origin.Block.ProximityUpdate(origin)
	}
}

// Update runs every placed block once, in placement order. Blocks placed
// during the pass start updating next tick; blocks removed are skipped.
func (w *World) Update() int {
	snapshot := slices.Clone(w.placed)
	n := 0
	for _, t := range snapshot {
		if !t.IsOrigin() {
			continue
		}
		t.Block.Update(t)
		n++
	}
	return n
}

// SolidAt reports whether the tile under a world position blocks units.
func (w *World) SolidAt(_ components.Team, wx, wy float32) bool {
	t := w.TileAt(wx, wy)
	if t == nil || t.Empty() {
		return false
	}
	o := t.Origin()
	return o.Block.IsSolidFor(o)
}

// AnyEntities reports whether a live solid unit overlaps the block on t.
func (w *World) AnyEntities(t *Tile) bool {
	minX, minY, maxX, maxY := w.Bounds(t)
	for e := range w.units.All() {
		if !w.units.Has(e, traits.Solid) || w.units.IsDead(e) {
			continue
		}
		if components.OverlapsRect(*w.units.Position(e), *w.units.Body(e), minX, minY, maxX, maxY) {
			return true
		}
	}
	return false
}

// ClosestCore returns the team's core nearest to a world position, or nil.
func (w *World) ClosestCore(team components.Team, x, y float32) *Tile {
	var best *Tile
	var bestDist float32
	for _, c := range w.teams.Cores(team) {
		cx, cy := w.DrawPos(c)
		d := (cx-x)*(cx-x) + (cy-y)*(cy-y)
		if best == nil || d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

// Effect emits a named effect at a world position.
func (w *World) Effect(name string, x, y float32, team components.Team) {
	w.effects.Effect(Effect{Name: name, X: x, Y: y, Team: team, Tick: w.tick})
}

// Clear removes every placed block and unit.
func (w *World) Clear() {
	for len(w.placed) > 0 {
		t := w.placed[len(w.placed)-1]
		w.Remove(t.X, t.Y)
	}
	w.teams.reset()
	for e := range w.units.All() {
		w.units.Remove(e)
	}
	w.units.Flush()
}
