package world

import (
	"fmt"

	"github.com/pthm-cable/bastion/components"
)

// Tile is one grid cell. Multi-tile blocks store their block, team and
// entity on the origin tile; the other covered tiles link back to it.
type Tile struct {
	X, Y   int32
	Block  Block
	Team   components.Team
	Entity TileEntity

	origin *Tile
}

// Origin returns the tile holding this tile's block, or the tile itself.
func (t *Tile) Origin() *Tile {
	if t.origin != nil {
		return t.origin
	}
	return t
}

// Empty reports whether no block covers the tile.
func (t *Tile) Empty() bool {
	return t.Origin().Block == nil
}

// IsOrigin reports whether the tile is the origin of a placed block.
func (t *Tile) IsOrigin() bool {
	return t.origin == nil && t.Block != nil
}

// Point returns the grid coordinates.
func (t *Tile) Point() Point {
	return Point{X: t.X, Y: t.Y}
}

func (t *Tile) String() string {
	if t.Empty() {
		return fmt.Sprintf("tile(%d,%d)", t.X, t.Y)
	}
	return fmt.Sprintf("%s(%d,%d)", t.Origin().Block.Name(), t.X, t.Y)
}

// Point is a grid coordinate.
type Point struct {
	X int32 `json:"x" msgpack:"x"`
	Y int32 `json:"y" msgpack:"y"`
}

// blockOffset returns how many tiles a block of the given size extends to
// the left of and below its origin.
func blockOffset(size int) int32 {
	return int32((size - 1) / 2)
}
