package server

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/pthm-cable/bastion/admin"
	"github.com/pthm-cable/bastion/remote"
	"github.com/pthm-cable/bastion/wire"
)

const writeWait = 5 * time.Second

// ErrSlowPeer is reported for a peer whose outbound queue was full.
var ErrSlowPeer = errors.New("server: peer send queue full")

// peer is one connected client. Frames are queued on send and written by the
// peer's own writer goroutine, so a stalled connection never blocks the
// simulation.
type peer struct {
	id      string
	conn    *websocket.Conn
	send    chan []byte
	done    chan struct{}
	once    sync.Once
	limiter *rate.Limiter
	session *admin.Session
	unit    uint32
}

func newPeer(id string, conn *websocket.Conn, buffer int, limiter *rate.Limiter) *peer {
	return &peer{
		id:      id,
		conn:    conn,
		send:    make(chan []byte, buffer),
		done:    make(chan struct{}),
		limiter: limiter,
	}
}

// enqueue queues a frame without blocking. It reports false when the queue
// is full.
func (p *peer) enqueue(data []byte) bool {
	select {
	case p.send <- data:
		return true
	default:
		return false
	}
}

// writePump writes queued frames until the peer closes or a write fails.
func (p *peer) writePump(log *slog.Logger) {
	for {
		select {
		case <-p.done:
			return
		case data := <-p.send:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
				log.Warn("peer_write_failed", "peer", p.id, "err", err)
				p.close()
				return
			}
		}
	}
}

// close stops the writer and closes the connection; the read loop then
// fails and unregisters the peer. Safe to call more than once.
func (p *peer) close() {
	p.once.Do(func() {
		close(p.done)
		p.conn.Close()
	})
}

// Hub fans server frames out to every connected peer. It is the server
// dispatcher's transport.
type Hub struct {
	mu    sync.RWMutex
	peers map[string]*peer
	log   *slog.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{peers: make(map[string]*peer), log: logger}
}

func (h *Hub) add(p *peer) {
	h.mu.Lock()
	h.peers[p.id] = p
	h.mu.Unlock()
}

func (h *Hub) remove(id string) {
	h.mu.Lock()
	delete(h.peers, id)
	h.mu.Unlock()
}

// Count returns the number of connected peers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.peers)
}

// Send broadcasts a batch of calls. It implements remote.Transport.
func (h *Hub) Send(calls []remote.Call) error {
	return h.Broadcast(wire.Message{Kind: wire.KindCalls, Calls: calls})
}

// Broadcast encodes m once and queues it for every peer. It never waits on
// a connection: a peer whose queue is full is disconnected.
func (h *Hub) Broadcast(m wire.Message) error {
	data, err := wire.Encode(m)
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	var errs []error
	for _, p := range h.peers {
		if !p.enqueue(data) {
			h.log.Warn("peer_dropped", "peer", p.id, "kind", m.Kind, "queued", len(p.send))
			p.close()
			errs = append(errs, fmt.Errorf("peer %s: %w", p.id, ErrSlowPeer))
		}
	}
	return errors.Join(errs...)
}
