package widget

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kjstillabower/weather-display-service/internal/models"
	"github.com/kjstillabower/weather-display-service/internal/observability"
)

type mockFetcher struct {
	report    models.Report
	err       error
	gotLoc    string
	gotForced bool
}

func (m *mockFetcher) FetchWeather(ctx context.Context, location string, force bool) (models.Report, error) {
	m.gotLoc = location
	m.gotForced = force
	if m.err != nil {
		return models.Report{}, m.err
	}
	return m.report, nil
}

type mockLocations struct {
	location string
	err      error
}

func (m mockLocations) Default(ctx context.Context) (string, error) {
	return m.location, m.err
}

var fixedNow = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestProvider(f *mockFetcher, l mockLocations) *Provider {
	p := NewProvider(f, l)
	p.now = func() time.Time { return fixedNow }
	return p
}

func TestProvider_Timeline_Success(t *testing.T) {
	f := &mockFetcher{report: models.Report{Current: models.CurrentConditions{
		Name:       "London",
		Main:       models.Temperatures{Temp: 8.5},
		Conditions: []models.Condition{{Description: "light rain", Icon: "10n"}},
	}}}
	p := newTestProvider(f, mockLocations{location: "London"})

	tl, err := p.Timeline(context.Background())
	if err != nil {
		t.Fatalf("Timeline() error = %v", err)
	}
	if f.gotLoc != "London" || f.gotForced {
		t.Errorf("fetched (%q, force=%v), want (London, false)", f.gotLoc, f.gotForced)
	}
	if tl.Placeholder {
		t.Error("Placeholder = true, want false")
	}
	if len(tl.Entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(tl.Entries))
	}
	data := tl.Entries[0].Data
	if data.Location != "London" || data.Temperature != 8.5 || data.Symbol != "cloud.moon.rain.fill" {
		t.Errorf("snapshot = %+v", data)
	}
	if !tl.NextUpdate.Equal(fixedNow.Add(5 * time.Minute)) {
		t.Errorf("NextUpdate = %v, want now+5m", tl.NextUpdate)
	}
}

func TestProvider_Timeline_FailuresUsePlaceholder(t *testing.T) {
	tests := []struct {
		name      string
		fetchErr  error
		locations mockLocations
	}{
		{name: "upstream failure", fetchErr: errors.New("upstream error"), locations: mockLocations{location: "Paris"}},
		{name: "settings failure", locations: mockLocations{err: errors.New("store down")}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.WarnLevel)
			ctx := observability.WithLogger(context.Background(), zap.New(core))
			p := newTestProvider(&mockFetcher{err: tc.fetchErr}, tc.locations)

			tl, err := p.Timeline(ctx)
			if err != nil {
				t.Fatalf("Timeline() error = %v", err)
			}
			if !tl.Placeholder || len(tl.Entries) != 1 {
				t.Fatalf("timeline = %+v, want one placeholder entry", tl)
			}
			if tl.Entries[0].Data.Location != "Loading..." {
				t.Errorf("placeholder location = %q", tl.Entries[0].Data.Location)
			}
			if !tl.NextUpdate.Equal(fixedNow.Add(time.Minute)) {
				t.Errorf("NextUpdate = %v, want now+1m", tl.NextUpdate)
			}
			if logs.FilterMessage("widget timeline falling back to placeholder").Len() != 1 {
				t.Error("expected one fallback warning")
			}
		})
	}
}

func TestProvider_Timeline_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := newTestProvider(&mockFetcher{err: context.Canceled}, mockLocations{location: "London"})

	if _, err := p.Timeline(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Timeline() error = %v, want context.Canceled", err)
	}
}
