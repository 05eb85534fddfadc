package game

import (
	"github.com/pthm-cable/bastion/blocks"
	"github.com/pthm-cable/bastion/components"
	"github.com/pthm-cable/bastion/power"
)

// Skirmish lays out a powered base for the default team and a wave core for
// the wave team. Blocks are placed through actions, so connected clients
// receive them like any other placement.
func (g *Game) Skirmish() {
	g.mu.Lock()
	defer g.mu.Unlock()

	c := g.content
	home, wave := g.cfg.Rules.DefaultTeam, g.cfg.Rules.WaveTeam
	w, h := int32(g.cfg.World.Width), int32(g.cfg.World.Height)
	cx, cy := w/4, h/2

	place := func(block string, x, y int32, team components.Team) {
		c.PlaceBlock.Call(blocks.PlaceArgs{X: x, Y: y, Block: block, Team: team})
	}

	place("core", cx, cy, home)
	place("generator", cx+2, cy-1, home)
	place("power-distributor", cx+4, cy, home)
	place("battery", cx+5, cy, home)
	place("consumer", cx+4, cy+1, home)
	place("power-node", cx+4, cy-1, home)

	// Out of reach of the distributor, fed by laser
	place("consumer", cx+8, cy-1, home)
	c.LinkPower.Call(blocks.LinkArgs{A: power.Key{X: cx + 4, Y: cy - 1}, B: power.Key{X: cx + 8, Y: cy - 1}})

	for y := cy - 2; y <= cy+2; y++ {
		place("wall", cx+10, y, home)
	}

	place("core", w-w/4, cy, wave)
	g.log.Info("skirmish_ready", "home", home, "wave", wave, "blocks", len(g.world.Placed()))
}
