package world

import (
	"github.com/pthm-cable/bastion/components"
)

// Effect is a named visual event. The simulation only emits them.
type Effect struct {
	Name string          `json:"name"`
	X    float32         `json:"x"`
	Y    float32         `json:"y"`
	Team components.Team `json:"team"`
	Tick uint64          `json:"tick"`
}

// EffectSink receives emitted effects.
type EffectSink interface {
	Effect(Effect)
}

// EffectFunc adapts a function to EffectSink.
type EffectFunc func(Effect)

// Effect calls f(e).
func (f EffectFunc) Effect(e Effect) { f(e) }

type discardEffects struct{}

func (discardEffects) Effect(Effect) {}
