// Package admin keeps player records and the server's admin list.
//
// Revoking an admin updates the stored record and every live session of
// that player under one lock, so no reader sees one without the other.
package admin

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/pthm-cable/bastion/components"
)

// ErrUnknownPlayer is returned for player IDs with no record.
var ErrUnknownPlayer = errors.New("admin: unknown player")

// PlayerInfo is the persistent record of a player.
type PlayerInfo struct {
	ID       uuid.UUID `json:"id"`
	LastName string    `json:"last_name"`
	Admin    bool      `json:"admin"`
}

// Store persists player records.
type Store interface {
	Get(ctx context.Context, id uuid.UUID) (PlayerInfo, error)
	Put(ctx context.Context, info PlayerInfo) error
	SetAdmin(ctx context.Context, id uuid.UUID, admin bool) error
	Admins(ctx context.Context) ([]PlayerInfo, error)
	Close() error
}

// Session is one connected player.
type Session struct {
	ID       uuid.UUID // Player
	Name     string
	Team     components.Team
	Peer     string // Dispatcher origin of the connection
	admin    atomic.Bool
	joinedAt uint64
}

// IsAdmin reports the session's current admin flag.
func (s *Session) IsAdmin() bool {
	return s.admin.Load()
}

// JoinedAt returns the tick the session joined at.
func (s *Session) JoinedAt() uint64 {
	return s.joinedAt
}

// Administration ties stored records to live sessions.
type Administration struct {
	mu       sync.Mutex
	store    Store
	sessions map[uuid.UUID][]*Session
	log      *slog.Logger
}

// New creates an Administration over store.
func New(store Store, logger *slog.Logger) *Administration {
	if logger == nil {
		logger = slog.Default()
	}
	return &Administration{
		store:    store,
		sessions: make(map[uuid.UUID][]*Session),
		log:      logger,
	}
}

// Join records a player connecting under name and opens a session. Unknown
// players get a fresh record; known players keep their admin flag.
func (a *Administration) Join(ctx context.Context, id uuid.UUID, name, peer string, team components.Team, tick uint64) (*Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	info, err := a.store.Get(ctx, id)
	switch {
	case errors.Is(err, ErrUnknownPlayer):
		info = PlayerInfo{ID: id}
	case err != nil:
		return nil, fmt.Errorf("loading player %s: %w", id, err)
	}
	info.LastName = name
	if err := a.store.Put(ctx, info); err != nil {
		return nil, fmt.Errorf("saving player %s: %w", id, err)
	}

	s := &Session{ID: id, Name: name, Team: team, Peer: peer, joinedAt: tick}
	s.admin.Store(info.Admin)
	a.sessions[id] = append(a.sessions[id], s)
	a.log.Info("player_joined", "player", id, "name", name, "team", team, "admin", info.Admin)
	return s, nil
}

// Leave closes a session.
func (a *Administration) Leave(s *Session) {
	a.mu.Lock()
	defer a.mu.Unlock()
	list := slices.DeleteFunc(a.sessions[s.ID], func(o *Session) bool { return o == s })
	if len(list) == 0 {
		delete(a.sessions, s.ID)
	} else {
		a.sessions[s.ID] = list
	}
	a.log.Info("player_left", "player", s.ID, "name", s.Name)
}

// Sessions returns every live session, ordered by name.
func (a *Administration) Sessions() []*Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []*Session
	for _, list := range a.sessions {
		out = append(out, list...)
	}
	slices.SortFunc(out, func(x, y *Session) int { return cmp.Compare(x.Name, y.Name) })
	return out
}

// SessionByPeer finds the session for a dispatcher origin.
func (a *Administration) SessionByPeer(peer string) (*Session, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, list := range a.sessions {
		for _, s := range list {
			if s.Peer == peer {
				return s, true
			}
		}
	}
	return nil, false
}

// Player returns a stored record.
func (a *Administration) Player(ctx context.Context, id uuid.UUID) (PlayerInfo, error) {
	return a.store.Get(ctx, id)
}

// Admins returns every admin record, ordered by last name.
func (a *Administration) Admins(ctx context.Context) ([]PlayerInfo, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	admins, err := a.store.Admins(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing admins: %w", err)
	}
	slices.SortFunc(admins, func(x, y PlayerInfo) int { return cmp.Compare(x.LastName, y.LastName) })
	return admins, nil
}

// AdminPlayer grants admin to a known player and their live sessions.
func (a *Administration) AdminPlayer(ctx context.Context, id uuid.UUID) error {
	return a.setAdmin(ctx, id, true)
}

// UnAdmin revokes admin from a known player and their live sessions.
func (a *Administration) UnAdmin(ctx context.Context, id uuid.UUID) error {
	return a.setAdmin(ctx, id, false)
}

func (a *Administration) setAdmin(ctx context.Context, id uuid.UUID, admin bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.store.SetAdmin(ctx, id, admin); err != nil {
		return fmt.Errorf("updating player %s: %w", id, err)
	}
	for _, s := range a.sessions[id] {
		s.admin.Store(admin)
	}
	a.log.Info("admin_changed", "player", id, "admin", admin, "sessions", len(a.sessions[id]))
	return nil
}

// Close releases the store.
func (a *Administration) Close() error {
	return a.store.Close()
}
