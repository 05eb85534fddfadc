package blocks

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/pthm-cable/bastion/power"
	"github.com/pthm-cable/bastion/world"
)

// PowerBlock is any block holding a power node: distributors, laser nodes,
// generators, consumers and batteries. Adjacent power blocks of one team
// conduct; laser nodes additionally link within laserRange tiles.
type PowerBlock struct {
	world.BaseBlock
	c *Content

	role       power.Role
	produce    float64
	use        float64
	capacity   float64
	laserRange int // Tiles; 0 for blocks that cannot laser link
}

// PowerEntity is the per-tile state of a power block.
type PowerEntity struct {
	world.BaseEntity
	block *PowerBlock
	Node  *power.Node
}

type powerState struct {
	Stored float64     `msgpack:"stored"`
	Links  []power.Key `msgpack:"links,omitempty"`
}

// Role returns the node role this block contributes.
func (b *PowerBlock) Role() power.Role {
	return b.role
}

// LaserRange returns the laser link range in tiles.
func (b *PowerBlock) LaserRange() int {
	return b.laserRange
}

func (b *PowerBlock) NewEntity(t *world.Tile) world.TileEntity {
	return &PowerEntity{
		BaseEntity: world.NewBaseEntity(t),
		block:      b,
		Node: &power.Node{
			Key:      power.Key{X: t.X, Y: t.Y},
			Role:     b.role,
			Produce:  b.produce,
			Use:      b.use,
			Capacity: b.capacity,
		},
	}
}

func (b *PowerBlock) Placed(t *world.Tile) {
	ent := t.Entity.(*PowerEntity)
	if err := b.c.world.Power().Add(ent.Node); err != nil {
		b.c.log.Error("power_node_add_failed", "tile", t.String(), "err", err)
	}
}

func (b *PowerBlock) Removed(t *world.Tile) {
	b.c.world.Power().Remove(t.Entity.(*PowerEntity).Node.Key)
}

// ProximityUpdate links the block to every adjacent power block of its team.
func (b *PowerBlock) ProximityUpdate(t *world.Tile) {
	ent := t.Entity.(*PowerEntity)
	net := b.c.world.Power()
	for _, n := range b.c.world.BlockNeighbors(t) {
		other, ok := n.Entity.(*PowerEntity)
		if !ok || n.Team != t.Team {
			continue
		}
		if err := net.Link(ent.Node.Key, other.Node.Key); err != nil {
			b.c.log.Debug("power_link_failed", "a", ent.Node.Key, "b", other.Node.Key, "err", err)
		}
	}
}

// Update runs the node's graph for the current tick. Every member of a
// graph calls this; the graph itself only recomputes once per tick.
func (b *PowerBlock) Update(t *world.Tile) {
	g := t.Entity.(*PowerEntity).Node.Graph()
	if g == nil {
		return
	}
	g.Update(b.c.world.Tick())
}

// Satisfaction returns the fraction of demand met for consumers.
func (e *PowerEntity) Satisfaction() float64 {
	return e.Node.Satisfaction
}

// WriteState persists stored power and laser links.
func (e *PowerEntity) WriteState(enc *msgpack.Encoder) error {
	st := powerState{Stored: e.Node.Stored}
	if e.block.laserRange > 0 {
		st.Links = e.block.c.world.Power().Links(e.Node.Key)
	}
	return enc.Encode(st)
}

// ReadState restores stored power and relinks nodes that exist again.
func (e *PowerEntity) ReadState(dec *msgpack.Decoder) error {
	var st powerState
	if err := dec.Decode(&st); err != nil {
		return fmt.Errorf("power state: %w", err)
	}
	e.Node.Stored = min(st.Stored, e.Node.Capacity)
	net := e.block.c.world.Power()
	for _, k := range st.Links {
		if _, ok := net.Node(k); !ok {
			continue
		}
		if err := net.Link(e.Node.Key, k); err != nil {
			return fmt.Errorf("relinking %s: %w", k, err)
		}
	}
	return nil
}
