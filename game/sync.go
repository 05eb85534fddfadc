package game

import "github.com/pthm-cable/bastion/entity"

// SyncUnits reconciles the unit set with an authoritative snapshot taken at
// tick. Known units take the snapshot state, missing ones are created and
// units absent from the snapshot are removed. Snapshots older than the last
// applied one are ignored.
func (g *Game) SyncUnits(tick uint64, specs []entity.Spec) (added, removed int) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if tick < g.syncTick {
		return 0, 0
	}
	g.syncTick = tick

	seen := make(map[uint32]struct{}, len(specs))
	for _, spec := range specs {
		seen[spec.ID] = struct{}{}
		if e, ok := g.units.Lookup(spec.ID); ok {
			g.units.Sync(e, spec)
			continue
		}
		if _, err := g.units.Add(spec); err != nil {
			g.log.Warn("unit_sync_failed", "unit", spec.ID, "err", err)
			continue
		}
		added++
	}

	for e := range g.units.All() {
		if _, ok := seen[g.units.ID(e)]; !ok {
			g.units.Remove(e)
			removed++
		}
	}
	g.units.Flush()
	return added, removed
}
