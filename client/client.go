// Package client connects a client-side game to a server over a websocket.
// The connection is the client dispatcher's transport; frames from the
// server are fed into the game as they arrive.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pthm-cable/bastion/components"
	"github.com/pthm-cable/bastion/game"
	"github.com/pthm-cable/bastion/remote"
	"github.com/pthm-cable/bastion/wire"
)

// ServerPeer is the name inbound calls are delivered under.
const ServerPeer = "server"

const writeWait = 5 * time.Second

// Join holds the optional query parameters of a websocket join.
type Join struct {
	Player string // Player uuid; the server assigns one when empty
	Name   string
	Team   string
}

// URL builds the websocket URL for a server address such as "localhost:8000".
func URL(addr string, j Join) string {
	q := url.Values{}
	if j.Player != "" {
		q.Set("player", j.Player)
	}
	if j.Name != "" {
		q.Set("name", j.Name)
	}
	if j.Team != "" {
		q.Set("team", j.Team)
	}
	u := url.URL{Scheme: "ws", Host: addr, Path: "/ws", RawQuery: q.Encode()}
	return u.String()
}

// Conn is an open server connection.
type Conn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
	log     *slog.Logger

	// Assigned by the server's welcome
	Peer string
	Unit uint32
	Team components.Team
}

// Dial connects and waits for the server's welcome. The game built for this
// connection must use Peer as its dispatcher origin.
func Dial(ctx context.Context, rawURL string, logger *slog.Logger) (*Conn, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", rawURL, err)
	}

	_, data, err := ws.ReadMessage()
	if err != nil {
		ws.Close()
		return nil, fmt.Errorf("reading welcome: %w", err)
	}
	m, err := wire.Decode(data)
	if err != nil {
		ws.Close()
		return nil, err
	}
	if m.Kind != wire.KindWelcome {
		ws.Close()
		return nil, fmt.Errorf("expected welcome, got %s", m.Kind)
	}

	c := &Conn{ws: ws, log: logger, Peer: m.Peer, Unit: m.Unit, Team: m.Team}
	c.log.Info("connected", "peer", c.Peer, "unit", c.Unit, "team", c.Team)
	return c, nil
}

// Send forwards a batch of calls to the server. It implements remote.Transport.
func (c *Conn) Send(calls []remote.Call) error {
	data, err := wire.Encode(wire.Message{Kind: wire.KindCalls, Calls: calls})
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.BinaryMessage, data)
}

// Run feeds server frames into g until the connection closes or ctx is done.
// A normal close returns nil.
func (c *Conn) Run(ctx context.Context, g *game.Game) error {
	stop := context.AfterFunc(ctx, func() { c.ws.Close() })
	defer stop()

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("reading from server: %w", err)
		}
		m, err := wire.Decode(data)
		if err != nil {
			c.log.Warn("bad_frame", "err", err)
			continue
		}
		if err := c.handle(g, m); err != nil {
			return err
		}
	}
}

func (c *Conn) handle(g *game.Game, m wire.Message) error {
	switch m.Kind {
	case wire.KindCalls:
		disp := g.Dispatcher()
		for _, call := range m.Calls {
			disp.Deliver(ServerPeer, call)
		}
	case wire.KindWorld:
		if err := g.Load(bytes.NewReader(m.World)); err != nil {
			return fmt.Errorf("loading world snapshot: %w", err)
		}
	case wire.KindUnits:
		added, removed := g.SyncUnits(m.Tick, m.Units)
		if added > 0 || removed > 0 {
			c.log.Debug("units_synced", "tick", m.Tick, "added", added, "removed", removed)
		}
	case wire.KindWelcome:
		c.log.Warn("duplicate_welcome", "peer", m.Peer)
	}
	return nil
}

// Close sends a close frame and closes the connection.
func (c *Conn) Close() error {
	c.writeMu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	werr := c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	c.writeMu.Unlock()
	return errors.Join(werr, c.ws.Close())
}
