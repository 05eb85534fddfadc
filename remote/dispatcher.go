package remote

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
)

// Transport delivers outbound calls. The server's transport broadcasts to
// every client; a client's transport sends to the server.
type Transport interface {
	Send(calls []Call) error
}

// Stats counts dispatcher activity since creation.
type Stats struct {
	Issued    int // Calls made through actions
	Coalesced int // Repeats of the previous call dropped within a tick
	Applied   int // Effects applied locally
	Sent      int // Calls handed to the transport
	Dropped   int // Stale, duplicate or undecodable deliveries
	Rejected  int // Client calls refused by the server
	Withheld  int // Server-invoked calls made on a client
}

type binding struct {
	name     string
	policy   Policy
	apply    func(payload []byte) error
	validate func(origin string, payload []byte) error
}

type delivery struct {
	from string
	call Call
}

// Dispatcher routes action calls according to policy and side.
// Call, BeginTick, Drain and Flush run on the simulation goroutine;
// Deliver may be called from any goroutine.
type Dispatcher struct {
	side   Side
	origin string
	log    *slog.Logger

	actions map[string]*binding

	tick uint64
	seq  uint64
	last string // Key of the previous call this tick

	mu      sync.Mutex
	inbound []delivery

	lastSeq   map[string]uint64
	outbound  []Call
	transport Transport

	stats Stats
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger used for replication traces.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.log = l }
}

// WithTransport sets the outbound transport.
func WithTransport(t Transport) Option {
	return func(d *Dispatcher) { d.transport = t }
}

// NewDispatcher creates a dispatcher for a process on the given side.
// origin names this peer in the calls it issues.
func NewDispatcher(side Side, origin string, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		side:    side,
		origin:  origin,
		log:     slog.Default(),
		actions: make(map[string]*binding),
		lastSeq: make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Side returns the process side.
func (d *Dispatcher) Side() Side {
	return d.side
}

// Origin returns this peer's name.
func (d *Dispatcher) Origin() string {
	return d.origin
}

// SetTransport replaces the outbound transport.
func (d *Dispatcher) SetTransport(t Transport) {
	d.transport = t
}

// Stats returns a copy of the counters.
func (d *Dispatcher) Stats() Stats {
	return d.stats
}

// Actions returns the defined action names, sorted.
func (d *Dispatcher) Actions() []string {
	names := make([]string, 0, len(d.actions))
	for name := range d.actions {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// BeginTick starts a new coalescing window.
func (d *Dispatcher) BeginTick(tick uint64) {
	d.tick = tick
	d.last = ""
}

// Tick returns the current tick.
func (d *Dispatcher) Tick() uint64 {
	return d.tick
}

func (d *Dispatcher) register(b *binding) {
	if _, exists := d.actions[b.name]; exists {
		panic(fmt.Sprintf("remote: action %q defined twice", b.name))
	}
	d.actions[b.name] = b
}

// issue resolves a local call. apply performs the effect with the decoded args.
func (d *Dispatcher) issue(b *binding, payload []byte, apply func()) {
	d.stats.Issued++

	// A repeat of the previous call changes nothing. Anything issued in
	// between may have, so later writes are never dropped.
	key := b.name + "\x00" + string(payload)
	if key == d.last {
		d.stats.Coalesced++
		return
	}
	d.last = key

	switch {
	case b.policy == PolicyLocal || d.side == SideStandalone:
		d.applyLocal(apply)
	case d.side == SideServer:
		d.applyLocal(apply)
		d.enqueue(b, payload, d.origin)
	case b.policy == PolicyPredicted:
		d.applyLocal(apply)
		d.enqueue(b, payload, d.origin)
	case b.validate == nil:
		// Server-invoked action: the server would reject it, so it is not sent
		d.stats.Withheld++
	default:
		// Client calling a server action: the effect arrives with the broadcast
		d.enqueue(b, payload, d.origin)
	}
	d.log.Debug("remote_call", "action", b.name, "side", d.side, "policy", b.policy, "tick", d.tick)
}

func (d *Dispatcher) applyLocal(apply func()) {
	apply()
	d.stats.Applied++
}

func (d *Dispatcher) enqueue(b *binding, payload []byte, origin string) {
	d.seq++
	d.outbound = append(d.outbound, Call{
		Action:  b.name,
		Policy:  b.policy,
		Origin:  origin,
		Seq:     d.seq,
		Tick:    d.tick,
		Payload: slices.Clone(payload),
	})
}

// Deliver queues an inbound call from a peer. Safe for concurrent use.
func (d *Dispatcher) Deliver(from string, c Call) {
	d.mu.Lock()
	d.inbound = append(d.inbound, delivery{from: from, call: c})
	d.mu.Unlock()
}

// Forget drops sequence state for a peer that disconnected.
func (d *Dispatcher) Forget(peer string) {
	delete(d.lastSeq, peer)
}

// Drain applies queued inbound calls in arrival order and returns how many
// took effect. Must run on the simulation goroutine.
func (d *Dispatcher) Drain() int {
	d.mu.Lock()
	batch := d.inbound
	d.inbound = nil
	d.mu.Unlock()

	applied := 0
	for _, in := range batch {
		if err := d.receive(in); err != nil {
			d.log.Debug("remote_drop", "from", in.from, "action", in.call.Action, "seq", in.call.Seq, "err", err)
			continue
		}
		applied++
	}
	return applied
}

func (d *Dispatcher) receive(in delivery) error {
	c := in.call
	if c.Seq <= d.lastSeq[in.from] {
		d.stats.Dropped++
		return fmt.Errorf("stale sequence %d", c.Seq)
	}
	d.lastSeq[in.from] = c.Seq

	b, ok := d.actions[c.Action]
	if !ok {
		d.stats.Dropped++
		return fmt.Errorf("%w: %q", ErrUnknownAction, c.Action)
	}
	if b.policy == PolicyLocal || d.side == SideStandalone {
		d.stats.Rejected++
		return fmt.Errorf("%w: %s action %q is not replicated", ErrRejected, b.policy, c.Action)
	}

	switch d.side {
	case SideServer:
		// The sender speaks only for itself
		origin := in.from
		switch {
		case b.validate != nil:
			if err := b.validate(origin, c.Payload); err != nil {
				d.stats.Rejected++
				return fmt.Errorf("%w: %w", ErrRejected, err)
			}
		case b.policy == PolicyServer:
			d.stats.Rejected++
			return fmt.Errorf("%w: %q is server-invoked", ErrRejected, c.Action)
		}
		if err := b.apply(c.Payload); err != nil {
			d.stats.Dropped++
			return err
		}
		d.stats.Applied++
		d.enqueue(b, c.Payload, origin)

	case SideClient:
		// Our own predicted call echoed back has already been applied
		if b.policy == PolicyPredicted && c.Origin == d.origin {
			return nil
		}
		if err := b.apply(c.Payload); err != nil {
			d.stats.Dropped++
			return err
		}
		d.stats.Applied++
	}
	return nil
}

// Pending returns the number of outbound calls waiting for Flush.
func (d *Dispatcher) Pending() int {
	return len(d.outbound)
}

// Flush hands queued outbound calls to the transport. Calls are
// fire-and-forget: on transport failure they are dropped and the error returned.
func (d *Dispatcher) Flush() error {
	if len(d.outbound) == 0 {
		return nil
	}
	batch := d.outbound
	d.outbound = nil
	if d.transport == nil {
		return nil
	}
	if err := d.transport.Send(batch); err != nil {
		return fmt.Errorf("sending %d calls: %w", len(batch), err)
	}
	d.stats.Sent += len(batch)
	return nil
}
