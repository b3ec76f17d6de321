package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-display-service/internal/cache"
	"github.com/kjstillabower/weather-display-service/internal/circuitbreaker"
	"github.com/kjstillabower/weather-display-service/internal/client"
	"github.com/kjstillabower/weather-display-service/internal/config"
	httphandler "github.com/kjstillabower/weather-display-service/internal/http"
	"github.com/kjstillabower/weather-display-service/internal/lifecycle"
	"github.com/kjstillabower/weather-display-service/internal/observability"
	"github.com/kjstillabower/weather-display-service/internal/service"
	"github.com/kjstillabower/weather-display-service/internal/settings"
	"github.com/kjstillabower/weather-display-service/internal/traffic"
	"github.com/kjstillabower/weather-display-service/internal/validation"
	"github.com/kjstillabower/weather-display-service/internal/widget"
)

const inFlightCheckInterval = 100 * time.Millisecond

func main() {
	life := lifecycle.New(time.Now())

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	weatherClient, err := client.NewOpenWeatherClient(cfg.WeatherAPIKey, cfg.WeatherAPIURL, cfg.WeatherAPITimeout)
	if err != nil {
		logger.Fatal("weather client", zap.Error(err))
	}

	health := httphandler.HealthConfig{
		DegradedWindow:      cfg.DegradedWindow,
		DegradedErrorPct:    cfg.DegradedErrorPct,
		ValidateAPIKey:      weatherClient.ValidateAPIKey,
		APIKeyCheckInterval: cfg.APIKeyCheckInterval,
	}
	if cfg.CircuitBreakerEnabled {
		cb := newBreaker(cfg)
		weatherClient.SetCircuitBreaker(cb)
		health.BreakerState = cb.State
		observability.SetCircuitBreakerStateGauge("weather_api", int(circuitbreaker.StateClosed))
		logger.Info("circuit breaker enabled",
			zap.Int("failure_threshold", cfg.CircuitFailureThreshold),
			zap.Duration("timeout", cfg.CircuitTimeout))
	}

	weatherService := service.NewWeatherService(weatherClient, cfg.CacheTTL, cfg.CoalesceEnabled, cfg.CoalesceTimeout)

	openCtx, openCancel := context.WithTimeout(context.Background(), 10*time.Second)
	store, err := settings.Open(openCtx, settingsOptions(cfg))
	openCancel()
	if err != nil {
		logger.Fatal("settings store", zap.String("backend", cfg.SettingsBackend), zap.Error(err))
	}
	logger.Info("settings backend", zap.String("backend", cfg.SettingsBackend))
	locations := settings.NewManager(store, validation.Rules{MinLen: cfg.LocationMinLen, MaxLen: cfg.LocationMaxLen})

	var refresher *cache.Refresher
	if cfg.RefreshEnabled {
		refresher = cache.NewRefresher(weatherService, locations, cfg.RefreshInterval, cfg.RequestTimeout, logger)
		if err := refresher.Start(); err != nil {
			logger.Fatal("refresher", zap.Error(err))
		}
	}

	tracker := traffic.NewTracker(traffic.DefaultRetention)
	inflight := httphandler.NewInFlightTracker()
	handler := httphandler.NewHandler(weatherService, locations, widget.NewProvider(weatherService, locations), logger, httphandler.Options{
		Timezone:  cfg.DisplayTimezone,
		Health:    health,
		Traffic:   tracker,
		Lifecycle: life,
	})
	router := httphandler.NewRouter(handler, logger, httphandler.RouterConfig{
		Limiter:        newRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
		RequestTimeout: cfg.RequestTimeout,
		InFlight:       inflight,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	life.SetShuttingDown(true)
	if refresher != nil {
		refresher.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	logger.Info("waiting for in-flight requests", zap.Int64("count", inflight.Count()))
	if err := inflight.WaitForZero(shutdownCtx, inFlightCheckInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", inflight.Count()))
	}

	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}
	if err := store.Close(); err != nil {
		logger.Error("settings store close", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

func newBreaker(cfg *config.Config) *circuitbreaker.CircuitBreaker {
	return circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: cfg.CircuitFailureThreshold,
		SuccessThreshold: cfg.CircuitSuccessThreshold,
		Timeout:          cfg.CircuitTimeout,
		Component:        "weather_api",
		IsFailure:        client.CountsAsFailure,
		IsIgnored:        client.IsCancellation,
		OnStateChange: func(from, to circuitbreaker.State) {
			observability.RecordCircuitBreakerTransition("weather_api", from.String(), to.String())
			observability.SetCircuitBreakerStateGauge("weather_api", int(to))
		},
	})
}

func settingsOptions(cfg *config.Config) settings.Options {
	return settings.Options{
		Backend:               cfg.SettingsBackend,
		MemcachedAddrs:        cfg.MemcachedAddrs,
		MemcachedTimeout:      cfg.MemcachedTimeout,
		MemcachedMaxIdleConns: cfg.MemcachedMaxIdleConns,
		SQLitePath:            cfg.SQLitePath,
		PostgresDSN:           cfg.PostgresDSN,
	}
}

// newRateLimiter returns nil (no limiting) when rps is not positive.
func newRateLimiter(rps, burst int) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	if burst < 1 {
		burst = rps
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}
