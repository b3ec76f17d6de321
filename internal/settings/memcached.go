package settings

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

const memcachedKeyPrefix = "settings:"

// MemcachedStore keeps settings in memcached without expiration. memcached may still
// evict entries under memory pressure, in which case Manager falls back to defaults.
type MemcachedStore struct {
	client *memcache.Client
}

// NewMemcachedStore creates a MemcachedStore. addrs is a comma-separated list
// (e.g. "localhost:11211" or "host1:11211,host2:11211"). timeout and maxIdleConns
// use package defaults if zero.
func NewMemcachedStore(addrs string, timeout time.Duration, maxIdleConns int) *MemcachedStore {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		servers = []string{"localhost:11211"}
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	return &MemcachedStore{client: client}
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

func (s *MemcachedStore) key(k string) string {
	return memcachedKeyPrefix + k
}

// Get returns ErrNotFound on a cache miss.
func (s *MemcachedStore) Get(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	item, err := s.client.Get(s.key(key))
	if err != nil {
		if errors.Is(err, memcache.ErrCacheMiss) {
			return "", ErrNotFound
		}
		return "", err
	}
	return string(item.Value), nil
}

func (s *MemcachedStore) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.client.Set(&memcache.Item{
		Key:   s.key(key),
		Value: []byte(value),
	})
}

func (s *MemcachedStore) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.client.Ping()
}

// Close closes idle connections. Call during shutdown.
func (s *MemcachedStore) Close() error {
	return s.client.Close()
}
