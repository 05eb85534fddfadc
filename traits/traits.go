// Package traits defines entity capabilities and the contracts behind them.
package traits

import (
	"fmt"
	"strings"
)

// Capability is a set of behaviors an entity or tile entity implements.
type Capability uint8

const (
	Health  Capability = 1 << iota // Can take damage and die
	Damage                         // Deals damage on contact
	Solid                          // Participates in collision
	Spawner                        // Hosts respawning units

	None Capability = 0
)

// Has checks if a capability set contains every capability in other.
func (c Capability) Has(other Capability) bool {
	return c&other == other && other != None
}

// Add adds capabilities to the set.
func (c Capability) Add(other Capability) Capability {
	return c | other
}

// Remove removes capabilities from the set.
func (c Capability) Remove(other Capability) Capability {
	return c &^ other
}

// String returns a "+"-joined list of capability names.
func (c Capability) String() string {
	names := c.names()
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "+")
}

func (c Capability) names() []string {
	var names []string
	if c&Health != 0 {
		names = append(names, "health")
	}
	if c&Damage != 0 {
		names = append(names, "damage")
	}
	if c&Solid != 0 {
		names = append(names, "solid")
	}
	if c&Spawner != 0 {
		names = append(names, "spawner")
	}
	return names
}

// Capable is implemented by anything that reports a capability set.
type Capable interface {
	Capabilities() Capability
}

// SpawnerTrait is implemented by tile entities that host respawning units.
// Units are referenced by stable entity ID; the spawner never owns them.
type SpawnerTrait interface {
	Capable
	// UpdateSpawning offers a dead unit to the spawner. A busy spawner ignores it.
	UpdateSpawning(unit uint32)
	// SpawnProgress reports respawn progress in [0,1].
	SpawnProgress() float32
}

// MissingCapabilityError is the panic value raised when a capability is
// accessed on something that does not implement it.
type MissingCapabilityError struct {
	Subject string
	Have    Capability
	Want    Capability
}

func (e *MissingCapabilityError) Error() string {
	return fmt.Sprintf("traits: %s has %s, missing %s", e.Subject, e.Have, e.Want.Remove(e.Have))
}

// Require panics with a *MissingCapabilityError unless have contains want.
func Require(subject string, have, want Capability) {
	if !have.Has(want) {
		panic(&MissingCapabilityError{Subject: subject, Have: have, Want: want})
	}
}
