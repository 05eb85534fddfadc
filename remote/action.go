package remote

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Action is a typed handle to a defined action. Calling it is fire-and-forget.
type Action[T any] struct {
	d     *Dispatcher
	b     *binding
	apply func(T)
}

// ActionOption configures an action at definition time.
type ActionOption[T any] func(*Action[T])

// Validate checks client-originated calls on the server. PolicyServer
// actions without a validator are server-invoked and reject client calls;
// PolicyPredicted actions without one accept every client call.
func Validate[T any](fn func(origin string, args T) error) ActionOption[T] {
	return func(a *Action[T]) {
		a.b.validate = func(origin string, payload []byte) error {
			var args T
			if err := msgpack.Unmarshal(payload, &args); err != nil {
				return fmt.Errorf("decoding %s args: %w", a.b.name, err)
			}
			return fn(origin, args)
		}
	}
}

// Define registers an action on d. apply performs the effect and must be
// idempotent: replicated calls may arrive more than once.
// Defining the same name twice panics.
func Define[T any](d *Dispatcher, name string, policy Policy, apply func(T), opts ...ActionOption[T]) *Action[T] {
	a := &Action[T]{d: d, apply: apply}
	a.b = &binding{
		name:   name,
		policy: policy,
		apply: func(payload []byte) error {
			var args T
			if err := msgpack.Unmarshal(payload, &args); err != nil {
				return fmt.Errorf("decoding %s args: %w", name, err)
			}
			apply(args)
			return nil
		},
	}
	for _, opt := range opts {
		opt(a)
	}
	d.register(a.b)
	return a
}

// Name returns the action name.
func (a *Action[T]) Name() string {
	return a.b.name
}

// Policy returns the action's policy.
func (a *Action[T]) Policy() Policy {
	return a.b.policy
}

// Call invokes the action. The dispatcher decides where the effect applies.
func (a *Action[T]) Call(args T) {
	payload, err := msgpack.Marshal(args)
	if err != nil {
		// Argument types are fixed at definition, so this is a programming error
		panic(fmt.Sprintf("remote: encoding %s args: %v", a.b.name, err))
	}
	a.d.issue(a.b, payload, func() { a.apply(args) })
}
