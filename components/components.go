// Package components defines ECS components for the simulation.
package components

import "fmt"

// UnitKind determines how a unit respawns.
type UnitKind uint8

const (
	KindPlayer UnitKind = iota // Controlled unit, respawns at the closest core
	KindDrone                  // Autonomous unit bound to the core that spawned it
	KindBullet                 // Short-lived damage source
)

// String returns the display name of a unit kind.
func (k UnitKind) String() string {
	switch k {
	case KindPlayer:
		return "player"
	case KindDrone:
		return "drone"
	case KindBullet:
		return "bullet"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Identity holds the stable identity of an entity.
// IDs are assigned by the registry and never reused.
type Identity struct {
	ID   uint32   `inspect:"label"`
	Team Team     `inspect:"label"`
	Kind UnitKind `inspect:"label"`
}

// Health marks an entity as destructible.
type Health struct {
	Value float32 `inspect:"bar,of:Max"`
	Max   float32 `inspect:"skip"`
	Dead  bool    `inspect:"bool"`
}

// Fraction returns current health as a fraction of max.
func (h *Health) Fraction() float32 {
	if h.Max <= 0 {
		return 0
	}
	return h.Value / h.Max
}

// Apply subtracts damage and marks the entity dead once health reaches zero.
// Returns true if this call killed the entity.
func (h *Health) Apply(amount float32) bool {
	if h.Dead {
		return false
	}
	h.Value -= amount
	if h.Value <= 0 {
		h.Value = 0
		h.Dead = true
		return true
	}
	return false
}

// Heal restores full health and clears the dead flag.
func (h *Health) Heal() {
	h.Value = h.Max
	h.Dead = false
}

// Damage marks an entity as dealing damage on contact.
type Damage struct {
	Amount     float32 `inspect:"label,fmt:%.1f"`
	Consumable bool    `inspect:"bool"` // Removed after its first hit
}

// Solid marks an entity as taking part in collision.
type Solid struct{}

// SpawnLink is a weak back-reference from a unit to the tile that respawns it.
// The tile may be gone; resolve it through the world before every use.
type SpawnLink struct {
	TileX int32 `inspect:"label"`
	TileY int32 `inspect:"label"`
}
