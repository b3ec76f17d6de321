package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kjstillabower/weather-display-service/internal/cache"
	"github.com/kjstillabower/weather-display-service/internal/client"
	"github.com/kjstillabower/weather-display-service/internal/models"
	"github.com/kjstillabower/weather-display-service/internal/observability"
)

// DefaultTTL is the freshness window of a cached report.
const DefaultTTL = 300 * time.Second

// WeatherService answers "what is the weather for location L" from a single-slot cache,
// going upstream for current conditions and forecast together on a miss.
//
// The slot holds the last successful round only. Any failed round clears it; a round
// whose caller gave up leaves it untouched.
type WeatherService struct {
	client    client.WeatherClient
	slot      *cache.Slot
	ttl       time.Duration
	coalescer *requestCoalescer[cache.Entry] // nil unless coalescing is enabled
	now       func() time.Time
}

// NewWeatherService creates a WeatherService. ttl <= 0 uses DefaultTTL.
// coalesceEnabled and coalesceTimeout configure request coalescing (disabled if timeout 0).
func NewWeatherService(client client.WeatherClient, ttl time.Duration, coalesceEnabled bool, coalesceTimeout time.Duration) *WeatherService {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	var coalescer *requestCoalescer[cache.Entry]
	if coalesceEnabled && coalesceTimeout > 0 {
		coalescer = newRequestCoalescer[cache.Entry](coalesceTimeout)
	}
	return &WeatherService{
		client:    client,
		slot:      cache.NewSlot(),
		ttl:       ttl,
		coalescer: coalescer,
		now:       time.Now,
	}
}

// TTL returns the configured freshness window.
func (s *WeatherService) TTL() time.Duration {
	return s.ttl
}

// FetchWeather returns the current conditions and forecast for location.
//
// Unless force is set, a cached report for the same location (case-insensitive) younger
// than the TTL is returned without network access. Otherwise both resources are fetched
// concurrently; success replaces the cached report, any failure clears it and is returned
// wrapping one of the client error kinds. If ctx is done before the round completes the
// context error is returned and the cache is not touched.
func (s *WeatherService) FetchWeather(ctx context.Context, location string, force bool) (models.Report, error) {
	start := time.Now()
	logger := observability.LoggerFromContext(ctx)

	if force {
		observability.CacheLookupsTotal.WithLabelValues("forced").Inc()
	} else if entry, ok := s.slot.Lookup(location, s.now(), s.ttl); ok {
		observability.CacheLookupsTotal.WithLabelValues("hit").Inc()
		if logger != nil {
			logger.Debug("weather served", zap.String("location", location), zap.Bool("cached", true), zap.Duration("duration", time.Since(start)))
		}
		return entry.Report(), nil
	} else {
		observability.CacheLookupsTotal.WithLabelValues("miss").Inc()
	}

	if logger != nil {
		logger.Debug("fetching upstream", zap.String("location", location), zap.Bool("force", force))
	}

	epoch := s.slot.Epoch()
	var entry cache.Entry
	var err error
	if s.coalescer != nil && !force {
		// Rounds are per epoch: a caller arriving after a clear never joins a round
		// that started before it.
		key := fmt.Sprintf("%d/%s", epoch, cache.FoldKey(location))
		var shared bool
		entry, shared, err = s.coalescer.GetOrDo(ctx, key, func(roundCtx context.Context) (cache.Entry, error) {
			return s.fetchRound(roundCtx, location)
		})
		if shared && err == nil {
			observability.CoalescedRequestsTotal.Inc()
		}
	} else {
		entry, err = s.fetchRound(ctx, location)
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		if logger != nil {
			logger.Debug("weather fetch abandoned", zap.String("location", location), zap.Error(ctxErr))
		}
		return models.Report{}, ctxErr
	}

	if err != nil {
		if client.IsCancellation(err) {
			// Only a detached coalesced round can end on its own deadline while ctx is live.
			err = fmt.Errorf("%w: %w", client.ErrUpstreamFailure, err)
		}
		s.slot.Clear()
		observability.CacheInvalidationsTotal.WithLabelValues("failure").Inc()
		if logger != nil {
			logger.Debug("weather fetch failed, cache cleared", zap.String("location", location), zap.Error(err))
		}
		return models.Report{}, fmt.Errorf("fetch weather for %s: %w", location, err)
	}

	entry.Location = location
	if !s.slot.StoreIf(epoch, entry) {
		observability.CacheInvalidationsTotal.WithLabelValues("superseded").Inc()
		if logger != nil {
			logger.Debug("cache cleared during fetch, result not stored", zap.String("location", location))
		}
	}
	if logger != nil {
		logger.Debug("weather served", zap.String("location", location), zap.Bool("cached", false), zap.Duration("duration", time.Since(start)))
	}
	return entry.Report(), nil
}

// fetchRound fetches current conditions and forecast concurrently. The first failure
// cancels the other request and decides the outcome.
func (s *WeatherService) fetchRound(ctx context.Context, location string) (cache.Entry, error) {
	g, gctx := errgroup.WithContext(ctx)

	var current models.CurrentConditions
	var forecast models.ForecastSeries
	g.Go(func() error {
		var err error
		current, err = s.client.GetCurrentConditions(gctx, location)
		return err
	})
	g.Go(func() error {
		var err error
		forecast, err = s.client.GetForecast(gctx, location)
		return err
	})
	if err := g.Wait(); err != nil {
		return cache.Entry{}, err
	}

	return cache.Entry{
		Current:   current,
		Forecast:  forecast,
		Location:  location,
		FetchedAt: s.now(),
	}, nil
}

// ShouldRefresh reports whether FetchWeather(location, false) would go upstream:
// nothing cached, a different location cached, or the cached report is TTL old.
func (s *WeatherService) ShouldRefresh(location string) bool {
	_, ok := s.slot.Lookup(location, s.now(), s.ttl)
	return !ok
}

// InvalidateCache drops the cached report unconditionally.
func (s *WeatherService) InvalidateCache() {
	s.slot.Clear()
	observability.CacheInvalidationsTotal.WithLabelValues("manual").Inc()
}

// LastReport returns the cached report regardless of location or age.
func (s *WeatherService) LastReport() (models.Report, bool) {
	entry, ok := s.slot.Peek()
	if !ok {
		return models.Report{}, false
	}
	return entry.Report(), true
}
