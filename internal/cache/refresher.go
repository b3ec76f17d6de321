package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-display-service/internal/models"
	"github.com/kjstillabower/weather-display-service/internal/observability"
)

// WeatherFetcher is implemented by the service layer.
// Declared here to avoid a circular dependency on the service package.
type WeatherFetcher interface {
	FetchWeather(ctx context.Context, location string, force bool) (models.Report, error)
	ShouldRefresh(location string) bool
}

// LocationSource yields the location to keep warm.
type LocationSource interface {
	Default(ctx context.Context) (string, error)
}

// Refresher keeps the default location's report fresh on a schedule, so the display
// layer usually finds a warm slot.
type Refresher struct {
	fetcher   WeatherFetcher
	locations LocationSource
	interval  time.Duration
	timeout   time.Duration
	logger    *zap.Logger
	scheduler *gocron.Scheduler
}

// NewRefresher creates a Refresher. interval <= 0 defaults to 5 minutes; timeout bounds
// each run (defaults to 30s).
func NewRefresher(fetcher WeatherFetcher, locations LocationSource, interval, timeout time.Duration, logger *zap.Logger) *Refresher {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &Refresher{
		fetcher:   fetcher,
		locations: locations,
		interval:  interval,
		timeout:   timeout,
		logger:    logger,
		scheduler: s,
	}
}

// RunOnce refreshes the default location if its cached report is missing or stale.
// It returns true when an upstream fetch was issued.
func (r *Refresher) RunOnce(ctx context.Context) (bool, error) {
	location, err := r.locations.Default(ctx)
	if err != nil {
		observability.RefreshRunsTotal.WithLabelValues("error").Inc()
		return false, fmt.Errorf("refresh: read default location: %w", err)
	}
	if !r.fetcher.ShouldRefresh(location) {
		observability.RefreshRunsTotal.WithLabelValues("skipped").Inc()
		return false, nil
	}
	if _, err := r.fetcher.FetchWeather(ctx, location, false); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			observability.RefreshRunsTotal.WithLabelValues("canceled").Inc()
		} else {
			observability.RefreshRunsTotal.WithLabelValues("error").Inc()
		}
		return true, fmt.Errorf("refresh %s: %w", location, err)
	}
	observability.RefreshRunsTotal.WithLabelValues("refreshed").Inc()
	if r.logger != nil {
		r.logger.Debug("refreshed default location", zap.String("location", location))
	}
	return true, nil
}

// Start schedules RunOnce every interval, starting immediately, and returns.
func (r *Refresher) Start() error {
	_, err := r.scheduler.Every(r.interval).Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		if _, err := r.RunOnce(ctx); err != nil && r.logger != nil {
			r.logger.Warn("scheduled refresh failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("schedule refresh: %w", err)
	}
	r.scheduler.StartAsync()
	if r.logger != nil {
		r.logger.Info("refresher started", zap.Duration("interval", r.interval))
	}
	return nil
}

// Stop cancels future runs. A run already in progress finishes on its own timeout.
func (r *Refresher) Stop() {
	r.scheduler.Stop()
}
