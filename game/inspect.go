package game

import (
	"github.com/pthm-cable/bastion/inspect"
	"github.com/pthm-cable/bastion/traits"
)

// Inspection is the component breakdown of one unit.
type Inspection struct {
	ID       uint32            `json:"id"`
	Owner    string            `json:"owner,omitempty"`
	Caps     string            `json:"caps"`
	Sections []inspect.Section `json:"sections"`
}

// Inspect describes every component a unit carries. Unknown IDs return
// an error wrapping entity.ErrNotFound.
func (g *Game) Inspect(id uint32) (Inspection, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	e, err := g.units.Resolve(id)
	if err != nil {
		return Inspection{}, err
	}
	caps := g.units.Capabilities(e)
	in := Inspection{
		ID:    id,
		Owner: g.owners[id],
		Caps:  caps.String(),
		Sections: []inspect.Section{
			inspect.Describe("identity", g.units.Identity(e)),
			inspect.Describe("position", g.units.Position(e)),
			inspect.Describe("velocity", g.units.Velocity(e)),
			inspect.Describe("rotation", g.units.Rotation(e)),
			inspect.Describe("body", g.units.Body(e)),
		},
	}
	if caps.Has(traits.Health) {
		in.Sections = append(in.Sections, inspect.Describe("health", g.units.Health(e)))
	}
	if caps.Has(traits.Damage) {
		in.Sections = append(in.Sections, inspect.Describe("damage", g.units.Damage(e)))
	}
	if link, ok := g.units.SpawnLink(e); ok {
		in.Sections = append(in.Sections, inspect.Describe("spawn_link", link))
	}
	return in, nil
}
