// Package power models power distribution between connected tiles.
//
// A Network owns every power node and the links between them. Topology
// changes only mark the network dirty; Rebuild recomputes connected
// components with a union-find pass and hands each component a fresh Graph.
// Rebuild runs at the tick boundary, so membership never changes while
// graphs are updating.
package power

import (
	"errors"
	"fmt"
	"slices"
)

var (
	// ErrNodeExists is returned when a node is added at an occupied key.
	ErrNodeExists = errors.New("power: node already exists")
	// ErrUnknownNode is returned when linking a node that is not in the network.
	ErrUnknownNode = errors.New("power: unknown node")
)

// Key identifies a node by the tile it sits on.
type Key struct {
	X, Y int32
}

func (k Key) String() string {
	return fmt.Sprintf("(%d,%d)", k.X, k.Y)
}

// Role determines how a node takes part in its graph's balance.
type Role uint8

const (
	Relay    Role = iota // Carries power only
	Producer             // Adds Produce per tick
	Consumer             // Draws Use per tick
	Battery              // Buffers surplus up to Capacity
)

func (r Role) String() string {
	switch r {
	case Relay:
		return "relay"
	case Producer:
		return "producer"
	case Consumer:
		return "consumer"
	case Battery:
		return "battery"
	default:
		return fmt.Sprintf("role(%d)", uint8(r))
	}
}

// Node is one power-carrying tile.
type Node struct {
	Key  Key
	Role Role

	Produce  float64 // Per tick at delta 1
	Use      float64 // Per tick at delta 1
	Capacity float64
	Stored   float64

	// Satisfaction is the fraction of Use met by the last graph update.
	Satisfaction float64

	graph *Graph
}

// Graph returns the graph this node belongs to, nil before the first rebuild.
func (n *Node) Graph() *Graph {
	return n.graph
}

// Network owns all power nodes and their links.
type Network struct {
	delta float64

	nodes map[Key]*Node
	order []Key // insertion order keeps rebuilds deterministic
	links map[Key]map[Key]struct{}

	graphs   []*Graph
	dirty    bool
	revision uint64
}

// NewNetwork creates an empty network. delta scales production and use per update.
func NewNetwork(delta float64) *Network {
	return &Network{
		delta: delta,
		nodes: make(map[Key]*Node),
		links: make(map[Key]map[Key]struct{}),
	}
}

// Add inserts a node.
func (n *Network) Add(node *Node) error {
	if _, exists := n.nodes[node.Key]; exists {
		return fmt.Errorf("%w at %s", ErrNodeExists, node.Key)
	}
	n.nodes[node.Key] = node
	n.order = append(n.order, node.Key)
	n.dirty = true
	return nil
}

// Remove drops a node and every link touching it. Unknown keys are ignored.
func (n *Network) Remove(k Key) {
	node, ok := n.nodes[k]
	if !ok {
		return
	}
	for other := range n.links[k] {
		delete(n.links[other], k)
	}
	delete(n.links, k)
	delete(n.nodes, k)
	n.order = slices.DeleteFunc(n.order, func(o Key) bool { return o == k })
	node.graph = nil
	n.dirty = true
}

// Link connects two nodes. Linking a node to itself is ignored.
func (n *Network) Link(a, b Key) error {
	if _, ok := n.nodes[a]; !ok {
		return fmt.Errorf("%w at %s", ErrUnknownNode, a)
	}
	if _, ok := n.nodes[b]; !ok {
		return fmt.Errorf("%w at %s", ErrUnknownNode, b)
	}
	if a == b {
		return nil
	}
	if n.Linked(a, b) {
		return nil
	}
	n.link(a, b)
	n.link(b, a)
	n.dirty = true
	return nil
}

// Unlink disconnects two nodes.
func (n *Network) Unlink(a, b Key) {
	if !n.Linked(a, b) {
		return
	}
	delete(n.links[a], b)
	delete(n.links[b], a)
	n.dirty = true
}

func (n *Network) link(from, to Key) {
	set, ok := n.links[from]
	if !ok {
		set = make(map[Key]struct{})
		n.links[from] = set
	}
	set[to] = struct{}{}
}

// Linked reports whether a and b are directly linked.
func (n *Network) Linked(a, b Key) bool {
	_, ok := n.links[a][b]
	return ok
}

// Links returns the keys directly linked to k, sorted.
func (n *Network) Links(k Key) []Key {
	out := make([]Key, 0, len(n.links[k]))
	for other := range n.links[k] {
		out = append(out, other)
	}
	slices.SortFunc(out, func(a, b Key) int {
		if a.Y != b.Y {
			return int(a.Y - b.Y)
		}
		return int(a.X - b.X)
	})
	return out
}

// Node looks up a node by key.
func (n *Network) Node(k Key) (*Node, bool) {
	node, ok := n.nodes[k]
	return node, ok
}

// Len returns the number of nodes.
func (n *Network) Len() int {
	return len(n.nodes)
}

// Dirty reports whether topology changed since the last rebuild.
func (n *Network) Dirty() bool {
	return n.dirty
}

// Revision counts rebuilds. Graphs carry the revision they were built at.
func (n *Network) Revision() uint64 {
	return n.revision
}

// Graphs returns the graphs of the current revision.
func (n *Network) Graphs() []*Graph {
	return n.graphs
}

// Rebuild recomputes connected components if the topology changed.
// Returns true if graphs were replaced.
func (n *Network) Rebuild() bool {
	if !n.dirty {
		return false
	}
	n.dirty = false
	n.revision++

	index := make(map[Key]int, len(n.order))
	for i, k := range n.order {
		index[k] = i
	}
	sets := newDisjointSet(len(n.order))
	for i, k := range n.order {
		for other := range n.links[k] {
			sets.union(i, index[other])
		}
	}

	// Components are numbered by their first member in insertion order
	byRoot := make(map[int]*Graph)
	n.graphs = nil
	for i, k := range n.order {
		root := sets.find(i)
		g, ok := byRoot[root]
		if !ok {
			g = &Graph{id: len(n.graphs), revision: n.revision, delta: n.delta}
			byRoot[root] = g
			n.graphs = append(n.graphs, g)
		}
		node := n.nodes[k]
		node.graph = g
		g.nodes = append(g.nodes, node)
	}
	return true
}

// Update runs every graph once for the tick.
func (n *Network) Update(tick uint64) {
	for _, g := range n.graphs {
		g.Update(tick)
	}
}

// disjointSet is a union-find over dense indices with path halving.
type disjointSet struct {
	parent []int
	rank   []uint8
}

func newDisjointSet(n int) *disjointSet {
	ds := &disjointSet{parent: make([]int, n), rank: make([]uint8, n)}
	for i := range ds.parent {
		ds.parent[i] = i
	}
	return ds
}

func (ds *disjointSet) find(i int) int {
	for ds.parent[i] != i {
		ds.parent[i] = ds.parent[ds.parent[i]]
		i = ds.parent[i]
	}
	return i
}

func (ds *disjointSet) union(a, b int) {
	ra, rb := ds.find(a), ds.find(b)
	if ra == rb {
		return
	}
	switch {
	case ds.rank[ra] < ds.rank[rb]:
		ds.parent[ra] = rb
	case ds.rank[ra] > ds.rank[rb]:
		ds.parent[rb] = ra
	default:
		ds.parent[rb] = ra
		ds.rank[ra]++
	}
}
