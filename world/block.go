package world

import (
	"github.com/vmihailenco/msgpack/v5"
)

// Block is a placeable tile type. Stateful blocks create a TileEntity per
// placement; every hook receives the block's origin tile.
type Block interface {
	Name() string
	Size() int

	// NewEntity creates the per-tile state, or returns nil for stateless blocks.
	NewEntity(t *Tile) TileEntity

	// Placed runs after the block occupies its tiles.
	Placed(t *Tile)
	// Removed runs before the block's tiles and entity are cleared.
	Removed(t *Tile)
	// CanBreak reports whether players may deconstruct the block.
	CanBreak(t *Tile) bool
	// ProximityUpdate runs when the block or a neighbor is placed or removed.
	ProximityUpdate(t *Tile)
	// Update runs once per tick while placed.
	Update(t *Tile)
	// IsSolidFor reports whether units are blocked by the tile.
	IsSolidFor(t *Tile) bool
}

// TileEntity is the mutable state of one placed block.
type TileEntity interface {
	Tile() *Tile
	// WriteState writes the persistable fields.
	WriteState(enc *msgpack.Encoder) error
	// ReadState restores fields written by WriteState.
	ReadState(dec *msgpack.Decoder) error
}

// BaseBlock provides the default hooks: stateless, breakable, solid.
// Blocks embed it and override what they need.
type BaseBlock struct {
	BlockName string
	BlockSize int
}

func (b *BaseBlock) Name() string { return b.BlockName }

func (b *BaseBlock) Size() int {
	if b.BlockSize < 1 {
		return 1
	}
	return b.BlockSize
}

func (b *BaseBlock) NewEntity(*Tile) TileEntity { return nil }
func (b *BaseBlock) Placed(*Tile)               {}
func (b *BaseBlock) Removed(*Tile)              {}
func (b *BaseBlock) CanBreak(*Tile) bool        { return true }
func (b *BaseBlock) ProximityUpdate(*Tile)      {}
func (b *BaseBlock) Update(*Tile)               {}
func (b *BaseBlock) IsSolidFor(*Tile) bool      { return true }

// BaseEntity holds the tile back-reference for tile entities that persist nothing.
type BaseEntity struct {
	tile *Tile
}

// NewBaseEntity binds an entity to its tile.
func NewBaseEntity(t *Tile) BaseEntity {
	return BaseEntity{tile: t}
}

func (e *BaseEntity) Tile() *Tile                        { return e.tile }
func (e *BaseEntity) WriteState(*msgpack.Encoder) error { return nil }
func (e *BaseEntity) ReadState(*msgpack.Decoder) error  { return nil }
