package admin

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// MemoryStore keeps records in memory. Used when no database is configured.
type MemoryStore struct {
	mu      sync.RWMutex
	players map[uuid.UUID]PlayerInfo
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{players: make(map[uuid.UUID]PlayerInfo)}
}

func (m *MemoryStore) Get(_ context.Context, id uuid.UUID) (PlayerInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	info, ok := m.players[id]
	if !ok {
		return PlayerInfo{}, fmt.Errorf("%w: %s", ErrUnknownPlayer, id)
	}
	return info, nil
}

func (m *MemoryStore) Put(_ context.Context, info PlayerInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.players[info.ID] = info
	return nil
}

func (m *MemoryStore) SetAdmin(_ context.Context, id uuid.UUID, admin bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	info, ok := m.players[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPlayer, id)
	}
	info.Admin = admin
	m.players[id] = info
	return nil
}

func (m *MemoryStore) Admins(_ context.Context) ([]PlayerInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []PlayerInfo
	for _, info := range m.players {
		if info.Admin {
			out = append(out, info)
		}
	}
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }

const schema = `
CREATE TABLE IF NOT EXISTS players (
	id TEXT PRIMARY KEY,
	last_name TEXT NOT NULL,
	admin BOOLEAN NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_players_admin ON players(admin);
`

// SQLStore keeps records in a SQLite database.
type SQLStore struct {
	db *sql.DB
}

// OpenSQL opens or creates the database at path.
func OpenSQL(ctx context.Context, path string) (*SQLStore, error) {
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to %s: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &SQLStore{db: db}, nil
}

func (s *SQLStore) Get(ctx context.Context, id uuid.UUID) (PlayerInfo, error) {
	info := PlayerInfo{ID: id}
	err := s.db.QueryRowContext(ctx,
		"SELECT last_name, admin FROM players WHERE id = ?", id.String(),
	).Scan(&info.LastName, &info.Admin)
	if errors.Is(err, sql.ErrNoRows) {
		return PlayerInfo{}, fmt.Errorf("%w: %s", ErrUnknownPlayer, id)
	}
	if err != nil {
		return PlayerInfo{}, fmt.Errorf("querying player %s: %w", id, err)
	}
	return info, nil
}

func (s *SQLStore) Put(ctx context.Context, info PlayerInfo) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO players (id, last_name, admin) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET last_name = excluded.last_name, admin = excluded.admin`,
		info.ID.String(), info.LastName, info.Admin)
	if err != nil {
		return fmt.Errorf("upserting player %s: %w", info.ID, err)
	}
	return nil
}

func (s *SQLStore) SetAdmin(ctx context.Context, id uuid.UUID, admin bool) error {
	res, err := s.db.ExecContext(ctx, "UPDATE players SET admin = ? WHERE id = ?", admin, id.String())
	if err != nil {
		return fmt.Errorf("updating player %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrUnknownPlayer, id)
	}
	return nil
}

func (s *SQLStore) Admins(ctx context.Context) ([]PlayerInfo, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, last_name FROM players WHERE admin = 1")
	if err != nil {
		return nil, fmt.Errorf("querying admins: %w", err)
	}
	defer rows.Close()

	var out []PlayerInfo
	for rows.Next() {
		var raw string
		info := PlayerInfo{Admin: true}
		if err := rows.Scan(&raw, &info.LastName); err != nil {
			return nil, err
		}
		if info.ID, err = uuid.Parse(raw); err != nil {
			return nil, fmt.Errorf("player id %q: %w", raw, err)
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
