//go:build integration
// +build integration

package settings

import (
	"context"
	"testing"
	"time"

	"github.com/kjstillabower/weather-display-service/internal/testhelpers"
)

// TestMemcachedStore_Integration verifies the shared store behavior against a live memcached.
func TestMemcachedStore_Integration(t *testing.T) {
	cfg := testhelpers.GetIntegrationConfig(t)
	s := NewMemcachedStore(cfg.MemcachedAddr, 500*time.Millisecond, 2)
	defer s.Close()

	if err := s.Ping(context.Background()); err != nil {
		t.Skipf("memcached not reachable at %s: %v", cfg.MemcachedAddr, err)
	}
	// Keys from earlier runs would turn the miss check into a hit.
	_ = s.client.Delete(s.key("missing-key"))
	exerciseStore(t, s)
}

// TestPostgresStore_Integration verifies the shared store behavior against a live postgres.
func TestPostgresStore_Integration(t *testing.T) {
	cfg := testhelpers.GetIntegrationConfig(t)
	cfg.RequirePostgres(t)

	ctx := context.Background()
	s, err := NewPostgresStore(ctx, cfg.PostgresDSN)
	if err != nil {
		t.Skipf("postgres not reachable: %v", err)
	}
	defer s.Close()

	if _, err := s.pool.Exec(ctx, `DELETE FROM settings WHERE key = 'missing-key'`); err != nil {
		t.Fatalf("cleanup error = %v", err)
	}
	exerciseStore(t, s)
}
