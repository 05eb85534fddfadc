// Package server exposes a game over HTTP and websockets. The websocket hub
// is the server dispatcher's transport; HTTP routes serve read-only state and
// the admin list.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/pthm-cable/bastion/admin"
	"github.com/pthm-cable/bastion/components"
	"github.com/pthm-cable/bastion/config"
	"github.com/pthm-cable/bastion/entity"
	"github.com/pthm-cable/bastion/game"
	"github.com/pthm-cable/bastion/wire"
)

// Server ties a game, its admin records and the websocket hub together.
type Server struct {
	game  *game.Game
	admin *admin.Administration
	hub   *Hub
	cfg   config.ServerConfig
	team  components.Team // Team for players that do not pick one
	log   *slog.Logger

	snapshotEvery time.Duration
}

// New creates a server for g. The hub must be g's transport. Block actions
// from a peer are authorized for its session's team, or any team for admins.
func New(cfg *config.Config, g *game.Game, adm *admin.Administration, hub *Hub, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		game:          g,
		admin:         adm,
		hub:           hub,
		cfg:           cfg.Server,
		team:          cfg.Rules.DefaultTeam,
		log:           logger,
		snapshotEvery: cfg.Derived.SnapshotInterval,
	}
	g.Do(func() {
		g.Content().SetAuthorizer(s.authorize)
	})
	return s
}

func (s *Server) authorize(origin string, team components.Team) bool {
	sess, ok := s.admin.SessionByPeer(origin)
	if !ok {
		return false
	}
	return sess.IsAdmin() || sess.Team == team
}

// Router builds the HTTP routes.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLog())

	r.GET("/ws", s.handleWebsocket)
	r.GET("/state", s.handleState)
	r.GET("/stats", s.handleStats)
	r.GET("/units/:id", s.handleUnit)
	r.GET("/sessions", s.handleSessions)
	r.GET("/admins", s.handleAdmins)
	r.POST("/admins/:id", s.handleSetAdmin(true))
	r.DELETE("/admins/:id", s.handleSetAdmin(false))
	return r
}

// Run serves HTTP on the configured address and broadcasts unit snapshots
// until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.cfg.Addr, Handler: s.Router()}
	go s.RunSnapshots(ctx)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	s.log.Info("server_listening", "addr", s.cfg.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// RunSnapshots broadcasts the unit set at the snapshot interval.
func (s *Server) RunSnapshots(ctx context.Context) {
	if s.snapshotEvery <= 0 {
		return
	}
	ticker := time.NewTicker(s.snapshotEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.BroadcastUnits(); err != nil {
				s.log.Debug("snapshot_failed", "err", err)
			}
		}
	}
}

// BroadcastUnits sends the current unit set to every peer.
func (s *Server) BroadcastUnits() error {
	if s.hub.Count() == 0 {
		return nil
	}
	tick, specs := s.game.UnitSpecs()
	return s.hub.Broadcast(wire.Message{Kind: wire.KindUnits, Tick: tick, Units: specs})
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("http_request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

func (s *Server) handleState(c *gin.Context) {
	c.JSON(http.StatusOK, s.game.View())
}

func (s *Server) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"tick":   s.game.Tick(),
		"peers":  s.hub.Count(),
		"window": s.game.Stats(),
	})
}

func (s *Server) handleUnit(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid unit id"})
		return
	}
	in, err := s.game.Inspect(uint32(id))
	if errors.Is(err, entity.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, in)
}

type sessionView struct {
	Player uuid.UUID       `json:"player"`
	Name   string          `json:"name"`
	Team   components.Team `json:"team"`
	Peer   string          `json:"peer"`
	Admin  bool            `json:"admin"`
	Joined uint64          `json:"joined_tick"`
}

func (s *Server) handleSessions(c *gin.Context) {
	sessions := s.admin.Sessions()
	out := make([]sessionView, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, sessionView{
			Player: sess.ID,
			Name:   sess.Name,
			Team:   sess.Team,
			Peer:   sess.Peer,
			Admin:  sess.IsAdmin(),
			Joined: sess.JoinedAt(),
		})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleAdmins(c *gin.Context) {
	admins, err := s.admin.Admins(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if admins == nil {
		admins = []admin.PlayerInfo{}
	}
	c.JSON(http.StatusOK, admins)
}

func (s *Server) handleSetAdmin(grant bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid player id"})
			return
		}
		if grant {
			err = s.admin.AdminPlayer(c.Request.Context(), id)
		} else {
			err = s.admin.UnAdmin(c.Request.Context(), id)
		}
		switch {
		case errors.Is(err, admin.ErrUnknownPlayer):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case err != nil:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		default:
			c.Status(http.StatusNoContent)
		}
	}
}
