//go:build integration
// +build integration

package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kjstillabower/weather-display-service/internal/testhelpers"
)

func TestOpenWeatherClient_Live_Integration(t *testing.T) {
	cfg := testhelpers.GetIntegrationConfig(t)
	cfg.RequireAPIKey(t)

	c, err := NewOpenWeatherClient(cfg.APIKey, cfg.APIURL, 5*time.Second)
	if err != nil {
		t.Fatalf("NewOpenWeatherClient() error = %v", err)
	}
	ctx := context.Background()

	if err := c.ValidateAPIKey(ctx); err != nil {
		t.Fatalf("ValidateAPIKey() error = %v", err)
	}

	current, err := c.GetCurrentConditions(ctx, "London")
	if err != nil {
		t.Fatalf("GetCurrentConditions() error = %v", err)
	}
	if current.Name == "" || len(current.Conditions) == 0 {
		t.Errorf("GetCurrentConditions() = %+v, want name and conditions", current)
	}

	forecast, err := c.GetForecast(ctx, "London")
	if err != nil {
		t.Fatalf("GetForecast() error = %v", err)
	}
	if len(forecast.Points) == 0 {
		t.Error("GetForecast() returned no points")
	}

	if _, err := c.GetForecast(ctx, "Qzxqzxqzx Nowhere"); !errors.Is(err, ErrLocationNotFound) {
		t.Errorf("GetForecast(unknown) error = %v, want ErrLocationNotFound", err)
	}
}
