// Package settings persists the saved-location list and the default location in a
// small key-value store. Backends: in-memory, memcached, sqlite and postgres.
package settings

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by Store.Get when a key has never been set.
var ErrNotFound = errors.New("settings: key not found")

// Store is a string key-value store. Implementations must be safe for concurrent use.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	// Ping checks the backend is reachable. Used for health checks.
	Ping(ctx context.Context) error
	Close() error
}

// Backend names accepted by Open.
const (
	BackendInMemory  = "in_memory"
	BackendMemcached = "memcached"
	BackendSQLite    = "sqlite"
	BackendPostgres  = "postgres"
)

// Options selects and configures a backend.
type Options struct {
	Backend string

	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	SQLitePath string

	PostgresDSN string
}

// Open creates the Store named by opts.Backend. Empty means in-memory.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Backend {
	case "", BackendInMemory:
		return NewMemoryStore(), nil
	case BackendMemcached:
		return NewMemcachedStore(opts.MemcachedAddrs, opts.MemcachedTimeout, opts.MemcachedMaxIdleConns), nil
	case BackendSQLite:
		s, err := NewSQLiteStore(ctx, opts.SQLitePath)
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendPostgres:
		s, err := NewPostgresStore(ctx, opts.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("settings: unknown backend %q", opts.Backend)
	}
}
