package server

import (
	"bytes"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/pthm-cable/bastion/components"
	"github.com/pthm-cable/bastion/wire"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// handleWebsocket joins a player. Query parameters: player (uuid, generated
// when absent), name and team.
func (s *Server) handleWebsocket(c *gin.Context) {
	player := uuid.New()
	if raw := c.Query("player"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid player id"})
			return
		}
		player = id
	}
	team := s.team
	if raw := c.Query("team"); raw != "" {
		t, err := components.ParseTeam(raw)
		if err != nil || t == components.TeamDerelict {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid team"})
			return
		}
		team = t
	}
	name := c.DefaultQuery("name", "player")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("websocket_upgrade_failed", "err", err)
		return
	}
	defer conn.Close()
	if s.cfg.MaxMessageBytes > 0 {
		conn.SetReadLimit(s.cfg.MaxMessageBytes)
	}

	p := newPeer(uuid.NewString(), conn, s.cfg.SendBuffer,
		rate.NewLimiter(rate.Limit(s.cfg.CallsPerSecond), s.cfg.CallBurst))
	defer p.close()

	ctx := c.Request.Context()
	p.session, err = s.admin.Join(ctx, player, name, p.id, team, s.game.Tick())
	if err != nil {
		s.log.Error("join_failed", "player", player, "err", err)
		return
	}
	defer s.admin.Leave(p.session)

	p.unit, err = s.game.SpawnPlayer(team, p.id)
	if err != nil {
		s.log.Error("spawn_failed", "peer", p.id, "err", err)
		return
	}
	defer s.game.ReleasePlayer(p.id)

	if err := s.attach(p); err != nil {
		s.log.Warn("late_join_failed", "peer", p.id, "err", err)
		return
	}
	go p.writePump(s.log)
	defer func() {
		s.hub.remove(p.id)
		s.game.Do(func() { s.game.Dispatcher().Forget(p.id) })
	}()
	s.log.Info("peer_connected", "peer", p.id, "player", player, "name", name, "team", team, "unit", p.unit)

	s.readLoop(p)
	s.log.Info("peer_disconnected", "peer", p.id, "player", player)
}

// attach queues the welcome and a world save for p and registers it with
// the hub. The save is taken, queued and the peer registered under the game
// lock, so every broadcast after the save follows it in the queue.
func (s *Server) attach(p *peer) error {
	welcome, err := wire.Encode(wire.Message{Kind: wire.KindWelcome, Peer: p.id, Unit: p.unit, Team: p.session.Team})
	if err != nil {
		return err
	}

	var joinErr error
	s.game.Do(func() {
		var buf bytes.Buffer
		if joinErr = s.game.World().Save(&buf); joinErr != nil {
			return
		}
		world, err := wire.Encode(wire.Message{Kind: wire.KindWorld, Tick: s.game.World().Tick(), World: buf.Bytes()})
		if err != nil {
			joinErr = err
			return
		}
		if !p.enqueue(welcome) || !p.enqueue(world) {
			joinErr = ErrSlowPeer
			return
		}
		s.hub.add(p)
	})
	return joinErr
}

// readLoop delivers inbound call batches until the connection fails.
// Batches over the peer's rate are dropped whole.
func (s *Server) readLoop(p *peer) {
	disp := s.game.Dispatcher()
	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warn("peer_read_failed", "peer", p.id, "err", err)
			}
			return
		}
		m, err := wire.Decode(data)
		if err != nil {
			s.log.Debug("peer_bad_frame", "peer", p.id, "err", err)
			continue
		}
		if m.Kind != wire.KindCalls {
			s.log.Debug("peer_unexpected_frame", "peer", p.id, "kind", m.Kind)
			continue
		}
		if !p.limiter.AllowN(time.Now(), len(m.Calls)) {
			s.log.Warn("peer_rate_limited", "peer", p.id, "calls", len(m.Calls))
			continue
		}
		for _, call := range m.Calls {
			disp.Deliver(p.id, call)
		}
	}
}
