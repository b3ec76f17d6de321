//go:build integration
// +build integration

// Package testhelpers reads integration test settings from the environment.
// It must not import packages whose in-package tests use it.
package testhelpers

import (
	"os"
	"testing"
)

// IntegrationConfig holds endpoints for integration tests.
type IntegrationConfig struct {
	APIKey        string
	APIURL        string
	MemcachedAddr string
	PostgresDSN   string
}

// GetIntegrationConfig loads integration test configuration from environment.
// Missing backends are left empty; use the Require helpers to skip.
func GetIntegrationConfig(t *testing.T) IntegrationConfig {
	t.Helper()
	apiURL := os.Getenv("WEATHER_API_URL")
	if apiURL == "" {
		apiURL = "https://api.openweathermap.org/data/2.5"
	}
	memcachedAddr := os.Getenv("MEMCACHED_ADDRS")
	if memcachedAddr == "" {
		memcachedAddr = "localhost:11211"
	}
	return IntegrationConfig{
		APIKey:        os.Getenv("WEATHER_API_KEY"),
		APIURL:        apiURL,
		MemcachedAddr: memcachedAddr,
		PostgresDSN:   os.Getenv("POSTGRES_DSN"),
	}
}

// RequireAPIKey skips the test unless WEATHER_API_KEY is set.
func (c IntegrationConfig) RequireAPIKey(t *testing.T) {
	t.Helper()
	if c.APIKey == "" {
		t.Skip("WEATHER_API_KEY not set, skipping integration test")
	}
}

// RequirePostgres skips the test unless POSTGRES_DSN is set.
func (c IntegrationConfig) RequirePostgres(t *testing.T) {
	t.Helper()
	if c.PostgresDSN == "" {
		t.Skip("POSTGRES_DSN not set, skipping integration test")
	}
}
