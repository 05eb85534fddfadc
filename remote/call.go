// Package remote replicates state-changing actions between simulation peers.
//
// Actions are declared once with Define and invoked like local functions.
// The Dispatcher decides per call whether to apply it now, forward it to the
// server, broadcast it to clients, or a combination of these, based on the
// action's Policy and the process Side. Inbound calls are queued by transport
// goroutines and applied on the simulation goroutine by Drain.
package remote

import (
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

var (
	// ErrUnknownAction is reported for calls naming an action that was never defined.
	ErrUnknownAction = errors.New("remote: unknown action")
	// ErrRejected is reported when the server refuses a client-originated call.
	ErrRejected = errors.New("remote: call rejected")
)

// Policy declares where an action's effect is applied.
type Policy uint8

const (
	// PolicyServer actions mutate authoritative state. Only the server applies
	// them directly; clients forward and wait for the broadcast.
	PolicyServer Policy = iota
	// PolicyPredicted actions apply immediately on the caller and are replicated.
	PolicyPredicted
	// PolicyLocal actions never leave the process.
	PolicyLocal
)

func (p Policy) String() string {
	switch p {
	case PolicyServer:
		return "server"
	case PolicyPredicted:
		return "predicted"
	case PolicyLocal:
		return "local"
	default:
		return fmt.Sprintf("policy(%d)", uint8(p))
	}
}

// Side is the network role of the running process.
type Side uint8

const (
	SideStandalone Side = iota // No network; every call applies locally
	SideServer                 // Owns authoritative state
	SideClient                 // Mirrors the server
)

func (s Side) String() string {
	switch s {
	case SideStandalone:
		return "standalone"
	case SideServer:
		return "server"
	case SideClient:
		return "client"
	default:
		return fmt.Sprintf("side(%d)", uint8(s))
	}
}

// ParseSide looks a side up by name.
func ParseSide(name string) (Side, error) {
	for s := SideStandalone; s <= SideClient; s++ {
		if s.String() == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("remote: unknown side %q", name)
}

// Call is one replicated action invocation on the wire.
type Call struct {
	Action  string             `msgpack:"a"`
	Policy  Policy             `msgpack:"p"`
	Origin  string             `msgpack:"o"` // Peer that issued the call
	Seq     uint64             `msgpack:"s"` // Per-sender sequence, strictly increasing
	Tick    uint64             `msgpack:"t"` // Sender tick at issue time
	Payload msgpack.RawMessage `msgpack:"d"`
}

// EncodeBatch serializes calls into one frame.
func EncodeBatch(calls []Call) ([]byte, error) {
	data, err := msgpack.Marshal(calls)
	if err != nil {
		return nil, fmt.Errorf("encoding call batch: %w", err)
	}
	return data, nil
}

// DecodeBatch parses a frame produced by EncodeBatch.
func DecodeBatch(data []byte) ([]Call, error) {
	var calls []Call
	if err := msgpack.Unmarshal(data, &calls); err != nil {
		return nil, fmt.Errorf("decoding call batch: %w", err)
	}
	return calls, nil
}
