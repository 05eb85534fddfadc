package admin

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/pthm-cable/bastion/components"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stores runs a test against every Store implementation.
func stores(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemoryStore())
	})
	t.Run("sqlite", func(t *testing.T) {
		s, err := OpenSQL(context.Background(), filepath.Join(t.TempDir(), "players.db"))
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { s.Close() })
		fn(t, s)
	})
}

func TestStoreRoundTrip(t *testing.T) {
	stores(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		id := uuid.New()

		if _, err := s.Get(ctx, id); !errors.Is(err, ErrUnknownPlayer) {
			t.Fatalf("Get unknown: err = %v, want ErrUnknownPlayer", err)
		}
		if err := s.SetAdmin(ctx, id, true); !errors.Is(err, ErrUnknownPlayer) {
			t.Fatalf("SetAdmin unknown: err = %v, want ErrUnknownPlayer", err)
		}

		if err := s.Put(ctx, PlayerInfo{ID: id, LastName: "ada"}); err != nil {
			t.Fatal(err)
		}
		if err := s.SetAdmin(ctx, id, true); err != nil {
			t.Fatal(err)
		}
		got, err := s.Get(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if got != (PlayerInfo{ID: id, LastName: "ada", Admin: true}) {
			t.Errorf("Get = %+v", got)
		}

		// Renaming keeps one record
		if err := s.Put(ctx, PlayerInfo{ID: id, LastName: "ada2", Admin: true}); err != nil {
			t.Fatal(err)
		}
		admins, err := s.Admins(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(admins) != 1 || admins[0].LastName != "ada2" || admins[0].ID != id {
			t.Errorf("Admins = %+v", admins)
		}
	})
}

func TestUnAdminUpdatesLiveSessions(t *testing.T) {
	stores(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		a := New(s, quietLogger())
		id, other := uuid.New(), uuid.New()

		s1, err := a.Join(ctx, id, "grace", "peer-1", components.TeamBlue, 0)
		if err != nil {
			t.Fatal(err)
		}
		s2, _ := a.Join(ctx, id, "grace", "peer-2", components.TeamBlue, 5)
		s3, _ := a.Join(ctx, other, "linus", "peer-3", components.TeamRed, 5)
		for _, pid := range []uuid.UUID{id, other} {
			if err := a.AdminPlayer(ctx, pid); err != nil {
				t.Fatal(err)
			}
		}
		if !s1.IsAdmin() || !s2.IsAdmin() || !s3.IsAdmin() {
			t.Fatal("granting admin did not reach sessions")
		}

		if err := a.UnAdmin(ctx, id); err != nil {
			t.Fatal(err)
		}
		if s1.IsAdmin() || s2.IsAdmin() {
			t.Error("revoked player still admin in a live session")
		}
		if !s3.IsAdmin() {
			t.Error("unrelated session lost admin")
		}
		admins, err := a.Admins(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(admins) != 1 || admins[0].ID != other {
			t.Errorf("Admins = %+v, want only %s", admins, other)
		}

		// Rejoining keeps the stored flag
		a.Leave(s1)
		a.Leave(s2)
		s4, _ := a.Join(ctx, id, "grace", "peer-4", components.TeamBlue, 9)
		if s4.IsAdmin() {
			t.Error("rejoined session regained admin")
		}

		if err := a.UnAdmin(ctx, uuid.New()); !errors.Is(err, ErrUnknownPlayer) {
			t.Errorf("UnAdmin unknown: err = %v, want ErrUnknownPlayer", err)
		}
	})
}

func TestAdminsSortedByName(t *testing.T) {
	a := New(NewMemoryStore(), quietLogger())
	ctx := context.Background()
	for _, name := range []string{"carol", "alice", "bob"} {
		id := uuid.New()
		if _, err := a.Join(ctx, id, name, name, components.TeamBlue, 0); err != nil {
			t.Fatal(err)
		}
		if err := a.AdminPlayer(ctx, id); err != nil {
			t.Fatal(err)
		}
	}
	admins, _ := a.Admins(ctx)
	var names []string
	for _, info := range admins {
		names = append(names, info.LastName)
	}
	if len(names) != 3 || names[0] != "alice" || names[1] != "bob" || names[2] != "carol" {
		t.Errorf("names = %v", names)
	}
	if s, ok := a.SessionByPeer("bob"); !ok || s.Name != "bob" {
		t.Error("SessionByPeer did not find bob")
	}
	if got := len(a.Sessions()); got != 3 {
		t.Errorf("sessions = %d, want 3", got)
	}
}

func TestConcurrentRevocation(t *testing.T) {
	a := New(NewMemoryStore(), quietLogger())
	ctx := context.Background()
	id := uuid.New()
	var sessions []*Session
	for i := range 8 {
		s, err := a.Join(ctx, id, "p", string(rune('a'+i)), components.TeamBlue, 0)
		if err != nil {
			t.Fatal(err)
		}
		sessions = append(sessions, s)
	}
	_ = a.AdminPlayer(ctx, id)

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = a.UnAdmin(ctx, id)
		}()
		go func() {
			defer wg.Done()
			_, _ = a.Admins(ctx)
		}()
	}
	wg.Wait()

	for _, s := range sessions {
		if s.IsAdmin() {
			t.Fatal("session still admin after revocation")
		}
	}
}
