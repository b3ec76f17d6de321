// Package widget builds home-screen widget timelines for the default location.
package widget

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-display-service/internal/display"
	"github.com/kjstillabower/weather-display-service/internal/models"
	"github.com/kjstillabower/weather-display-service/internal/observability"
)

const (
	// RefreshAfterSuccess is when a widget showing real data asks for a new timeline.
	RefreshAfterSuccess = 5 * time.Minute
	// RefreshAfterFailure retries sooner while the placeholder is shown.
	RefreshAfterFailure = time.Minute
)

type WeatherFetcher interface {
	FetchWeather(ctx context.Context, location string, force bool) (models.Report, error)
}

type LocationSource interface {
	Default(ctx context.Context) (string, error)
}

// Entry is one dated widget view.
type Entry struct {
	Date time.Time        `json:"date"`
	Data display.Snapshot `json:"data"`
}

// Timeline is a list of entries plus when the widget should ask again.
type Timeline struct {
	Entries     []Entry   `json:"entries"`
	NextUpdate  time.Time `json:"nextUpdate"`
	Placeholder bool      `json:"placeholder"`
}

type Provider struct {
	fetcher   WeatherFetcher
	locations LocationSource
	now       func() time.Time
}

func NewProvider(fetcher WeatherFetcher, locations LocationSource) *Provider {
	return &Provider{fetcher: fetcher, locations: locations, now: time.Now}
}

// Placeholder is the entry shown before any timeline is available.
func (p *Provider) Placeholder() Entry {
	now := p.now()
	return Entry{Date: now, Data: display.PlaceholderSnapshot(now)}
}

// Timeline fetches the default location through the cache. Any failure yields a
// placeholder timeline that retries after a minute; cancellation returns ctx.Err().
func (p *Provider) Timeline(ctx context.Context) (Timeline, error) {
	logger := observability.LoggerFromContext(ctx)

	location, err := p.locations.Default(ctx)
	if err == nil {
		var report models.Report
		report, err = p.fetcher.FetchWeather(ctx, location, false)
		if err == nil {
			now := p.now()
			observability.WidgetTimelinesTotal.WithLabelValues("fresh").Inc()
			return Timeline{
				Entries:    []Entry{{Date: now, Data: display.NewSnapshot(report.Current, now)}},
				NextUpdate: now.Add(RefreshAfterSuccess),
			}, nil
		}
	}

	if ctxErr := ctx.Err(); ctxErr != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return Timeline{}, ctxErr
	}
	if logger != nil {
		logger.Warn("widget timeline falling back to placeholder", zap.String("location", location), zap.Error(err))
	}
	observability.WidgetTimelinesTotal.WithLabelValues("placeholder").Inc()
	entry := p.Placeholder()
	return Timeline{
		Entries:     []Entry{entry},
		NextUpdate:  entry.Date.Add(RefreshAfterFailure),
		Placeholder: true,
	}, nil
}
