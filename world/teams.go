package world

import (
	"slices"

	"github.com/pthm-cable/bastion/components"
)

// Teams tracks per-team bookkeeping. Core lists are updated synchronously
// by core placement and removal.
type Teams struct {
	cores [components.NumTeams][]*Tile
}

// Cores returns the team's core tiles in placement order.
func (ts *Teams) Cores(team components.Team) []*Tile {
	if team >= components.NumTeams {
		return nil
	}
	return ts.cores[team]
}

// AddCore records a core tile. Adding a known core is a no-op.
func (ts *Teams) AddCore(t *Tile) {
	if ts.HasCore(t) {
		return
	}
	ts.cores[t.Team] = append(ts.cores[t.Team], t)
}

// RemoveCore forgets a core tile.
func (ts *Teams) RemoveCore(t *Tile) {
	ts.cores[t.Team] = slices.DeleteFunc(ts.cores[t.Team], func(c *Tile) bool { return c == t })
}

// HasCore reports whether the tile is a known core of its team.
func (ts *Teams) HasCore(t *Tile) bool {
	return slices.Contains(ts.cores[t.Team], t)
}

// Active returns teams owning at least one core.
func (ts *Teams) Active() []components.Team {
	var out []components.Team
	for team, cores := range ts.cores {
		if len(cores) > 0 {
			out = append(out, components.Team(team))
		}
	}
	return out
}

func (ts *Teams) reset() {
	for i := range ts.cores {
		ts.cores[i] = nil
	}
}
