package blocks

import (
	"fmt"

	"github.com/pthm-cable/bastion/remote"
)

// ItemType separates items a core stores from raw resources it refuses.
type ItemType uint8

const (
	ItemMaterial ItemType = iota
	ItemResource
)

// Item is a transportable item kind.
type Item struct {
	Name string
	Type ItemType
}

func (i Item) String() string {
	return i.Name
}

var (
	Copper  = Item{Name: "copper", Type: ItemMaterial}
	Lead    = Item{Name: "lead", Type: ItemMaterial}
	Silicon = Item{Name: "silicon", Type: ItemMaterial}
	Sand    = Item{Name: "sand", Type: ItemResource}
	Coal    = Item{Name: "coal", Type: ItemResource}
)

// Items lists every known item.
var Items = []Item{Copper, Lead, Silicon, Sand, Coal}

// ItemByName looks an item up by name.
func ItemByName(name string) (Item, error) {
	for _, it := range Items {
		if it.Name == name {
			return it, nil
		}
	}
	return Item{}, fmt.Errorf("blocks: unknown item %q", name)
}

// AcceptItem reports whether the core takes one more of item.
func (e *CoreEntity) AcceptItem(item Item) bool {
	return item.Type == ItemMaterial && e.items[item.Name] < e.block.itemCapacity
}

// AcceptStack returns how many of amount the core takes from a unit. A
// source of 0 means no unit; otherwise the unit must be on the core's team.
func (e *CoreEntity) AcceptStack(item Item, amount int, source uint32) int {
	if source != 0 {
		reg := e.block.c.world.Units()
		u, ok := reg.Lookup(source)
		if !ok || reg.TeamOf(u) != e.Tile().Team {
			return 0
		}
	}
	if item.Type != ItemMaterial {
		return 0
	}
	return max(0, min(e.block.itemCapacity-e.items[item.Name], amount))
}

// HandleItem stores items. Clients leave storage to the server.
func (e *CoreEntity) HandleItem(item Item, amount int) {
	if e.block.c.Side() == remote.SideClient {
		return
	}
	e.items[item.Name] = min(e.items[item.Name]+amount, e.block.itemCapacity)
}

// ItemCount returns the stored amount of item.
func (e *CoreEntity) ItemCount(item Item) int {
	return e.items[item.Name]
}
