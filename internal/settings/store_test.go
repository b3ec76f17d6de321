package settings

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/kjstillabower/weather-display-service/internal/validation"
)

// exerciseStore runs the behavior every backend must share.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	if err := s.Ping(ctx); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
	if _, err := s.Get(ctx, "missing-key"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get(missing) error = %v, want ErrNotFound", err)
	}
	if err := s.Set(ctx, KeyDefaultLocation, "London"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	got, err := s.Get(ctx, KeyDefaultLocation)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != "London" {
		t.Errorf("Get() = %q, want London", got)
	}
	if err := s.Set(ctx, KeyDefaultLocation, "São Paulo"); err != nil {
		t.Fatalf("Set() overwrite error = %v", err)
	}
	if got, _ := s.Get(ctx, KeyDefaultLocation); got != "São Paulo" {
		t.Errorf("Get() after overwrite = %q, want São Paulo", got)
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestMemoryStore_CanceledContext(t *testing.T) {
	s := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Set(ctx, "k", "v"); !errors.Is(err, context.Canceled) {
		t.Errorf("Set() error = %v, want context.Canceled", err)
	}
	if _, err := s.Get(ctx, "k"); !errors.Is(err, context.Canceled) {
		t.Errorf("Get() error = %v, want context.Canceled", err)
	}
}

func TestSQLiteStore_InMemory(t *testing.T) {
	s, err := NewSQLiteStore(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	defer s.Close()
	exerciseStore(t, s)
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "settings.db")

	s, err := NewSQLiteStore(ctx, path)
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	m := NewManager(s, validation.DefaultRules)
	if _, err := m.Add(ctx, "Nairobi"); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened, err := NewSQLiteStore(ctx, path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer reopened.Close()
	locs, err := NewManager(reopened, validation.DefaultRules).List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(locs) != 3 || locs[2] != "Nairobi" {
		t.Errorf("List() after reopen = %v, want Nairobi persisted", locs)
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, Options{})
	if err != nil {
		t.Fatalf("Open(default) error = %v", err)
	}
	if _, ok := s.(*MemoryStore); !ok {
		t.Errorf("Open(default) = %T, want *MemoryStore", s)
	}

	s, err = Open(ctx, Options{Backend: BackendSQLite, SQLitePath: ":memory:"})
	if err != nil {
		t.Fatalf("Open(sqlite) error = %v", err)
	}
	defer s.Close()
	if _, ok := s.(*SQLiteStore); !ok {
		t.Errorf("Open(sqlite) = %T, want *SQLiteStore", s)
	}

	if _, err := Open(ctx, Options{Backend: "redis"}); err == nil {
		t.Error("Open(redis) error = nil, want unknown backend error")
	}
	if _, err := Open(ctx, Options{Backend: BackendPostgres}); err == nil {
		t.Error("Open(postgres) without dsn error = nil, want error")
	}
}

func TestParseAddrs(t *testing.T) {
	got := parseAddrs(" host1:11211, ,host2:11211 ")
	if len(got) != 2 || got[0] != "host1:11211" || got[1] != "host2:11211" {
		t.Errorf("parseAddrs() = %v", got)
	}
}
