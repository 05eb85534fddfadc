package components

// Body holds physical properties of an entity.
type Body struct {
	Radius float32 `inspect:"label,fmt:%.1f"`
}

// Overlaps reports whether two circular bodies at the given positions intersect.
func Overlaps(a Position, ab Body, b Position, bb Body) bool {
	dx := a.X - b.X
	dy := a.Y - b.Y
	r := ab.Radius + bb.Radius
	return dx*dx+dy*dy < r*r
}

// OverlapsRect reports whether a circular body intersects an axis-aligned rectangle.
func OverlapsRect(p Position, b Body, minX, minY, maxX, maxY float32) bool {
	cx := clamp(p.X, minX, maxX)
	cy := clamp(p.Y, minY, maxY)
	dx := p.X - cx
	dy := p.Y - cy
	return dx*dx+dy*dy < b.Radius*b.Radius
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
