// Package wire defines the websocket frames exchanged between server and
// clients. Every frame is one msgpack-encoded Message.
package wire

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/pthm-cable/bastion/components"
	"github.com/pthm-cable/bastion/entity"
	"github.com/pthm-cable/bastion/remote"
)

// Kind tags the payload a Message carries.
type Kind uint8

const (
	KindWelcome Kind = iota + 1 // Server to client: assigned peer, unit and team
	KindCalls                   // Either direction: a batch of remote calls
	KindWorld                   // Server to client: full world save
	KindUnits                   // Server to client: unit snapshot
)

func (k Kind) String() string {
	switch k {
	case KindWelcome:
		return "welcome"
	case KindCalls:
		return "calls"
	case KindWorld:
		return "world"
	case KindUnits:
		return "units"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Message is one websocket frame.
type Message struct {
	Kind Kind   `msgpack:"k"`
	Tick uint64 `msgpack:"t,omitempty"`

	Peer string          `msgpack:"peer,omitempty"`
	Unit uint32          `msgpack:"unit,omitempty"`
	Team components.Team `msgpack:"team,omitempty"`

	Calls []remote.Call `msgpack:"c,omitempty"`
	World []byte        `msgpack:"w,omitempty"` // world.Save stream
	Units []entity.Spec `msgpack:"u,omitempty"`
}

// Encode serializes m into one frame.
func Encode(m Message) ([]byte, error) {
	data, err := msgpack.Marshal(&m)
	if err != nil {
		return nil, fmt.Errorf("encoding %s message: %w", m.Kind, err)
	}
	return data, nil
}

// Decode parses a frame produced by Encode.
func Decode(data []byte) (Message, error) {
	var m Message
	if err := msgpack.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("decoding message: %w", err)
	}
	if m.Kind < KindWelcome || m.Kind > KindUnits {
		return Message{}, fmt.Errorf("decoding message: unknown %s", m.Kind)
	}
	return m, nil
}
