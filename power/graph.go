package power

import (
	"gonum.org/v1/gonum/floats"
)

// Graph is one connected component of the network. Every member tile may
// trigger Update; the first call in a tick does the work, later calls in the
// same tick return immediately.
type Graph struct {
	id       int
	revision uint64
	delta    float64
	nodes    []*Node

	lastUpdated uint64
	updated     bool
	updates     int

	balance Balance

	// scratch buffers reused across updates
	produce []float64
	use     []float64
	stored  []float64
	free    []float64
}

// Balance is the outcome of the last update.
type Balance struct {
	Produced     float64 // Energy produced this tick
	Needed       float64 // Energy requested by consumers
	Charged      float64 // Surplus moved into batteries
	Drawn        float64 // Shortfall covered from batteries
	Stored       float64 // Battery contents after the update
	Capacity     float64
	Satisfaction float64 // Fraction of demand met, 1 with no demand
}

// ID returns the graph index within its network revision.
func (g *Graph) ID() int {
	return g.id
}

// Revision returns the network revision this graph was built at.
func (g *Graph) Revision() uint64 {
	return g.revision
}

// Nodes returns the member nodes in insertion order.
func (g *Graph) Nodes() []*Node {
	return g.nodes
}

// Balance returns the result of the last update.
func (g *Graph) Balance() Balance {
	return g.balance
}

// Updates returns how many times the graph has actually recomputed.
func (g *Graph) Updates() int {
	return g.updates
}

// UpdatedAt reports whether the graph already ran for tick.
func (g *Graph) UpdatedAt(tick uint64) bool {
	return g.updated && g.lastUpdated == tick
}

// Update balances production, consumption and storage for one tick.
// It returns false if the graph already ran for this tick.
func (g *Graph) Update(tick uint64) bool {
	if g.UpdatedAt(tick) {
		return false
	}
	g.updated = true
	g.lastUpdated = tick
	g.updates++

	g.produce = g.produce[:0]
	g.use = g.use[:0]
	g.stored = g.stored[:0]
	g.free = g.free[:0]
	var batteries []*Node
	for _, n := range g.nodes {
		switch n.Role {
		case Producer:
			g.produce = append(g.produce, n.Produce*g.delta)
		case Consumer:
			g.use = append(g.use, n.Use*g.delta)
		case Battery:
			batteries = append(batteries, n)
			g.stored = append(g.stored, n.Stored)
			g.free = append(g.free, n.Capacity-n.Stored)
		}
	}

	b := Balance{
		Produced: floats.Sum(g.produce),
		Needed:   floats.Sum(g.use),
	}
	totalStored := floats.Sum(g.stored)
	totalFree := floats.Sum(g.free)

	if b.Produced >= b.Needed {
		b.Satisfaction = 1
		b.Charged = min(b.Produced-b.Needed, totalFree)
		if b.Charged > 0 {
			// Spread proportionally to free capacity
			for i, n := range batteries {
				n.Stored += b.Charged * g.free[i] / totalFree
			}
		}
	} else {
		b.Drawn = min(b.Needed-b.Produced, totalStored)
		if b.Drawn > 0 {
			for i, n := range batteries {
				n.Stored -= b.Drawn * g.stored[i] / totalStored
			}
		}
		b.Satisfaction = (b.Produced + b.Drawn) / b.Needed
	}

	for _, n := range g.nodes {
		switch n.Role {
		case Consumer:
			n.Satisfaction = b.Satisfaction
		case Battery:
			b.Stored += n.Stored
			b.Capacity += n.Capacity
		}
	}
	g.balance = b
	return true
}
