package game

import (
	"github.com/pthm-cable/bastion/blocks"
	"github.com/pthm-cable/bastion/components"
	"github.com/pthm-cable/bastion/entity"
	"github.com/pthm-cable/bastion/traits"
)

// UnitView is the read-only state of one unit.
type UnitView struct {
	ID        uint32          `json:"id"`
	Team      components.Team `json:"team"`
	Kind      string          `json:"kind"`
	X         float32         `json:"x"`
	Y         float32         `json:"y"`
	Rotation  float32         `json:"rotation"`
	Health    float32         `json:"health,omitempty"`
	MaxHealth float32         `json:"max_health,omitempty"`
	Dead      bool            `json:"dead,omitempty"`
	Owner     string          `json:"owner,omitempty"`
}

// BlockView is one placed block.
type BlockView struct {
	X     int32           `json:"x"`
	Y     int32           `json:"y"`
	Block string          `json:"block"`
	Team  components.Team `json:"team"`
	Size  int             `json:"size"`
}

// CoreView is the respawn state of one core.
type CoreView struct {
	X        int32           `json:"x"`
	Y        int32           `json:"y"`
	Team     components.Team `json:"team"`
	State    string          `json:"state"`
	Progress float32         `json:"progress"`
	Heat     float32         `json:"heat"`
	Warmup   float32         `json:"warmup"`
	Unit     uint32          `json:"unit,omitempty"`
	Drones   int             `json:"drones"`
}

// GraphView summarizes one power graph.
type GraphView struct {
	ID           int     `json:"id"`
	Nodes        int     `json:"nodes"`
	Satisfaction float64 `json:"satisfaction"`
	Stored       float64 `json:"stored"`
	Capacity     float64 `json:"capacity"`
}

// View is a read-only copy of the simulation state for rendering and HTTP.
type View struct {
	Tick   uint64      `json:"tick"`
	Side   string      `json:"side"`
	Units  []UnitView  `json:"units"`
	Blocks []BlockView `json:"blocks"`
	Cores  []CoreView  `json:"cores"`
	Power  []GraphView `json:"power"`
}

// View copies the current state.
func (g *Game) View() View {
	g.mu.Lock()
	defer g.mu.Unlock()

	v := View{
		Tick:   g.tick,
		Side:   g.disp.Side().String(),
		Units:  make([]UnitView, 0, g.units.Count()),
		Blocks: make([]BlockView, 0, len(g.world.Placed())),
	}

	for e := range g.units.All() {
		ident := g.units.Identity(e)
		pos := g.units.Position(e)
		u := UnitView{
			ID:       ident.ID,
			Team:     ident.Team,
			Kind:     ident.Kind.String(),
			X:        pos.X,
			Y:        pos.Y,
			Rotation: g.units.Rotation(e).Heading,
			Owner:    g.owners[ident.ID],
		}
		if g.units.Has(e, traits.Health) {
			h := g.units.Health(e)
			u.Health, u.MaxHealth, u.Dead = h.Value, h.Max, h.Dead
		}
		v.Units = append(v.Units, u)
	}

	for _, t := range g.world.Placed() {
		v.Blocks = append(v.Blocks, BlockView{X: t.X, Y: t.Y, Block: t.Block.Name(), Team: t.Team, Size: t.Block.Size()})
		core, ok := t.Entity.(*blocks.CoreEntity)
		if !ok {
			continue
		}
		v.Cores = append(v.Cores, CoreView{
			X:        t.X,
			Y:        t.Y,
			Team:     t.Team,
			State:    core.State().String(),
			Progress: core.SpawnProgress(),
			Heat:     core.Heat(),
			Warmup:   core.Warmup(),
			Unit:     core.CurrentUnit(),
			Drones:   len(core.Drones()),
		})
	}

	for _, pg := range g.power.Graphs() {
		b := pg.Balance()
		v.Power = append(v.Power, GraphView{
			ID:           pg.ID(),
			Nodes:        len(pg.Nodes()),
			Satisfaction: b.Satisfaction,
			Stored:       b.Stored,
			Capacity:     b.Capacity,
		})
	}
	return v
}

// UnitSpecs returns every unit as a creation spec, with the tick they were
// taken at.
func (g *Game) UnitSpecs() (uint64, []entity.Spec) {
	g.mu.Lock()
	defer g.mu.Unlock()
	specs := make([]entity.Spec, 0, g.units.Count())
	for e := range g.units.All() {
		specs = append(specs, g.units.Spec(e))
	}
	return g.tick, specs
}
