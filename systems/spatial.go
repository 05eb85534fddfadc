// Package systems contains the per-tick systems that act on registry entities.
package systems

import (
	"github.com/mlange-42/ark/ecs"
)

// Neighbor holds a nearby entity with precomputed spatial data.
type Neighbor struct {
	E      ecs.Entity
	DX, DY float32 // Delta from query origin
	DistSq float32 // Squared distance (avoid sqrt in hot path)
	Radius float32
}

// entry is a grid slot: entities are stored with the position and radius they
// had when inserted, so queries never touch the ECS world.
type entry struct {
	e      ecs.Entity
	x, y   float32
	radius float32
}

// SpatialGrid provides O(1) neighbor lookups using a cell-based grid over a
// bounded world. Positions outside the world are clamped into the edge cells.
type SpatialGrid struct {
	cellSize  float32
	cols      int
	rows      int
	width     float32
	height    float32
	cells     [][]entry
	maxRadius float32
	count     int
}

// NewSpatialGrid creates a spatial grid covering the given world size.
func NewSpatialGrid(width, height, cellSize float32) *SpatialGrid {
	cols := int(width/cellSize) + 1
	rows := int(height/cellSize) + 1

	cells := make([][]entry, cols*rows)
	for i := range cells {
		cells[i] = make([]entry, 0, 8) // pre-allocate small capacity
	}

	return &SpatialGrid{
		cellSize: cellSize,
		cols:     cols,
		rows:     rows,
		width:    width,
		height:   height,
		cells:    cells,
	}
}

// Clear removes all entities from the grid.
func (g *SpatialGrid) Clear() {
	for i := range g.cells {
		g.cells[i] = g.cells[i][:0]
	}
	g.maxRadius = 0
	g.count = 0
}

// Insert adds an entity to the grid at the given position.
func (g *SpatialGrid) Insert(e ecs.Entity, x, y, radius float32) {
	idx := g.cellIndex(x, y)
	g.cells[idx] = append(g.cells[idx], entry{e: e, x: x, y: y, radius: radius})
	if radius > g.maxRadius {
		g.maxRadius = radius
	}
	g.count++
}

// Len returns the number of inserted entities.
func (g *SpatialGrid) Len() int {
	return g.count
}

// MaxRadius returns the largest radius inserted since the last Clear.
func (g *SpatialGrid) MaxRadius() float32 {
	return g.maxRadius
}

// QueryRadiusInto finds every entity whose center is within radius and
// appends it to dst. Reuse dst across calls to avoid allocations.
func (g *SpatialGrid) QueryRadiusInto(dst []Neighbor, x, y, radius float32, exclude ecs.Entity) []Neighbor {
	cellRadius := int(radius/g.cellSize) + 1
	centerCol, centerRow := g.cellCoords(x, y)
	radiusSq := radius * radius

	for row := max(centerRow-cellRadius, 0); row <= min(centerRow+cellRadius, g.rows-1); row++ {
		for col := max(centerCol-cellRadius, 0); col <= min(centerCol+cellRadius, g.cols-1); col++ {
			for _, it := range g.cells[row*g.cols+col] {
				if it.e == exclude {
					continue
				}
				dx := it.x - x
				dy := it.y - y
				distSq := dx*dx + dy*dy
				if distSq > radiusSq {
					continue
				}
				dst = append(dst, Neighbor{E: it.e, DX: dx, DY: dy, DistSq: distSq, Radius: it.radius})
			}
		}
	}
	return dst
}

// AnyInRect reports whether an inserted entity's body overlaps the rectangle.
// pred filters candidates; nil accepts all.
func (g *SpatialGrid) AnyInRect(minX, minY, maxX, maxY float32, pred func(ecs.Entity) bool) bool {
	pad := g.maxRadius
	c0, r0 := g.cellCoords(minX-pad, minY-pad)
	c1, r1 := g.cellCoords(maxX+pad, maxY+pad)

	for row := r0; row <= r1; row++ {
		for col := c0; col <= c1; col++ {
			for _, it := range g.cells[row*g.cols+col] {
				cx := min(max(it.x, minX), maxX)
				cy := min(max(it.y, minY), maxY)
				dx, dy := it.x-cx, it.y-cy
				if dx*dx+dy*dy >= it.radius*it.radius {
					continue
				}
				if pred == nil || pred(it.e) {
					return true
				}
			}
		}
	}
	return false
}

// cellIndex returns the flat index for a world position.
func (g *SpatialGrid) cellIndex(x, y float32) int {
	col, row := g.cellCoords(x, y)
	return row*g.cols + col
}

// cellCoords returns the clamped cell column and row for a world position.
func (g *SpatialGrid) cellCoords(x, y float32) (int, int) {
	col := int(x / g.cellSize)
	row := int(y / g.cellSize)

	// Clamp to valid range
	if col < 0 {
		col = 0
	} else if col >= g.cols {
		col = g.cols - 1
	}
	if row < 0 {
		row = 0
	} else if row >= g.rows {
		row = g.rows - 1
	}
	return col, row
}
