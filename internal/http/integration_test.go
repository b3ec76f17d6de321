//go:build integration
// +build integration

package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-display-service/internal/client"
	"github.com/kjstillabower/weather-display-service/internal/service"
	"github.com/kjstillabower/weather-display-service/internal/settings"
	"github.com/kjstillabower/weather-display-service/internal/testhelpers"
	"github.com/kjstillabower/weather-display-service/internal/validation"
	"github.com/kjstillabower/weather-display-service/internal/widget"
)

// setupLiveServer wires the real client, cache-backed service and in-memory settings
// behind an httptest server.
func setupLiveServer(t *testing.T) *httptest.Server {
	t.Helper()
	cfg := testhelpers.GetIntegrationConfig(t)
	cfg.RequireAPIKey(t)

	weatherClient, err := client.NewOpenWeatherClient(cfg.APIKey, cfg.APIURL, 5*time.Second)
	if err != nil {
		t.Fatalf("NewOpenWeatherClient() error = %v", err)
	}
	svc := service.NewWeatherService(weatherClient, service.DefaultTTL, false, 0)
	mgr := settings.NewManager(settings.NewMemoryStore(), validation.DefaultRules)
	h := NewHandler(svc, mgr, widget.NewProvider(svc, mgr), zap.NewNop(), Options{})

	server := httptest.NewServer(NewRouter(h, zap.NewNop(), RouterConfig{RequestTimeout: 15 * time.Second}))
	t.Cleanup(server.Close)
	return server
}

func get(t *testing.T, url string, out interface{}) int {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestLive_WeatherThenFreshness(t *testing.T) {
	server := setupLiveServer(t)

	var weather weatherResponse
	if code := get(t, server.URL+"/weather/London", &weather); code != http.StatusOK {
		t.Fatalf("GET /weather/London status = %d", code)
	}
	if weather.Current.Location == "" || len(weather.Forecast) == 0 || len(weather.Daily) == 0 {
		t.Errorf("weather = %+v, want current, forecast and daily data", weather)
	}

	var fresh struct {
		ShouldRefresh bool `json:"shouldRefresh"`
	}
	get(t, server.URL+"/weather/london/freshness", &fresh)
	if fresh.ShouldRefresh {
		t.Error("shouldRefresh = true right after a fetch")
	}
}

func TestLive_UnknownLocation(t *testing.T) {
	server := setupLiveServer(t)
	if code := get(t, server.URL+"/weather/Qwxzvbnmlkjhgf", nil); code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", code)
	}
}

func TestLive_Widget(t *testing.T) {
	server := setupLiveServer(t)

	var timeline widget.Timeline
	if code := get(t, server.URL+"/widget", &timeline); code != http.StatusOK {
		t.Fatalf("GET /widget status = %d", code)
	}
	if timeline.Placeholder || len(timeline.Entries) != 1 {
		t.Errorf("timeline = %+v, want one real entry", timeline)
	}
}
