package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds service configuration loaded from .env, YAML and env.
type Config struct {
	ServerPort string

	LogLevel  string
	LogFormat string

	WeatherAPIKey     string
	WeatherAPIURL     string
	WeatherAPITimeout time.Duration

	RequestTimeout time.Duration

	CacheTTL        time.Duration
	CoalesceEnabled bool
	CoalesceTimeout time.Duration

	RefreshEnabled  bool
	RefreshInterval time.Duration

	SettingsBackend       string // in_memory, memcached, sqlite, postgres
	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int
	SQLitePath            string
	PostgresDSN           string

	LocationMinLen int
	LocationMaxLen int

	RateLimitRPS   int
	RateLimitBurst int

	CircuitBreakerEnabled   bool
	CircuitFailureThreshold int
	CircuitSuccessThreshold int
	CircuitTimeout          time.Duration

	DegradedWindow      time.Duration
	DegradedErrorPct    int
	APIKeyCheckInterval time.Duration

	// DisplayTimezone decides day boundaries and theme hours.
	DisplayTimezone *time.Location

	ShutdownTimeout time.Duration
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	WeatherAPI struct {
		URL     string `yaml:"url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"weather_api"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Cache struct {
		TTL             string `yaml:"ttl"`
		CoalesceEnabled bool   `yaml:"coalesce_enabled"`
		CoalesceTimeout string `yaml:"coalesce_timeout"`
		Refresh         struct {
			Enabled  bool   `yaml:"enabled"`
			Interval string `yaml:"interval"`
		} `yaml:"refresh"`
	} `yaml:"cache"`

	Settings struct {
		Backend   string `yaml:"backend"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
		SQLite struct {
			Path string `yaml:"path"`
		} `yaml:"sqlite"`
		Postgres struct {
			DSN string `yaml:"dsn"`
		} `yaml:"postgres"`
	} `yaml:"settings"`

	Validation struct {
		LocationMinLen int `yaml:"location_min_len"`
		LocationMaxLen int `yaml:"location_max_len"`
	} `yaml:"validation"`

	Reliability struct {
		RateLimitRPS   int `yaml:"rate_limit_rps"`
		RateLimitBurst int `yaml:"rate_limit_burst"`
		CircuitBreaker struct {
			Enabled          bool   `yaml:"enabled"`
			FailureThreshold int    `yaml:"failure_threshold"`
			SuccessThreshold int    `yaml:"success_threshold"`
			Timeout          string `yaml:"timeout"`
		} `yaml:"circuit_breaker"`
	} `yaml:"reliability"`

	Health struct {
		DegradedWindow      string `yaml:"degraded_window"`
		DegradedErrorPct    int    `yaml:"degraded_error_pct"`
		APIKeyCheckInterval string `yaml:"api_key_check_interval"`
	} `yaml:"health"`

	Display struct {
		Timezone string `yaml:"timezone"`
	} `yaml:"display"`

	Shutdown struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"shutdown"`
}

type secretsFile struct {
	WeatherAPIKey string `yaml:"weather_api_key"`
}

// Load reads an optional .env, then config/{ENV_NAME}.yaml (default dev) and
// config/secrets.yaml. Env vars override file values. Call from project root.
func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg := &Config{}

	cfg.ServerPort = firstNonEmpty(os.Getenv("PORT"), fc.Server.Port, "8080")
	cfg.LogLevel = firstNonEmpty(os.Getenv("LOG_LEVEL"), fc.Logging.Level, "INFO")
	cfg.LogFormat = firstNonEmpty(fc.Logging.Format, "json")

	cfg.WeatherAPIKey = os.Getenv("WEATHER_API_KEY")
	if cfg.WeatherAPIKey == "" {
		key, err := loadAPIKeyFromSecrets(filepath.Join(cwd, "config", "secrets.yaml"))
		if err != nil {
			return nil, err
		}
		cfg.WeatherAPIKey = key
	}
	if cfg.WeatherAPIKey == "" {
		return nil, fmt.Errorf("WEATHER_API_KEY required (set env or config/secrets.yaml weather_api_key)")
	}

	cfg.WeatherAPIURL = strings.TrimRight(firstNonEmpty(os.Getenv("WEATHER_API_URL"), fc.WeatherAPI.URL, "https://api.openweathermap.org/data/2.5"), "/")
	cfg.WeatherAPITimeout = parseDurationOrZero(fc.WeatherAPI.Timeout, 5*time.Second)
	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 15*time.Second)

	cfg.CacheTTL = parseDuration(fc.Cache.TTL, 300*time.Second)
	cfg.CoalesceEnabled = fc.Cache.CoalesceEnabled
	cfg.CoalesceTimeout = parseDuration(fc.Cache.CoalesceTimeout, 10*time.Second)
	cfg.RefreshEnabled = fc.Cache.Refresh.Enabled
	cfg.RefreshInterval = parseDuration(fc.Cache.Refresh.Interval, 5*time.Minute)

	cfg.SettingsBackend = strings.TrimSpace(strings.ToLower(firstNonEmpty(os.Getenv("SETTINGS_BACKEND"), fc.Settings.Backend, "in_memory")))
	cfg.MemcachedAddrs = strings.TrimSpace(firstNonEmpty(os.Getenv("MEMCACHED_ADDRS"), fc.Settings.Memcached.Addrs, "localhost:11211"))
	cfg.MemcachedTimeout = parseDuration(fc.Settings.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Settings.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}
	cfg.SQLitePath = firstNonEmpty(os.Getenv("SQLITE_PATH"), fc.Settings.SQLite.Path, "data/settings.db")
	cfg.PostgresDSN = firstNonEmpty(os.Getenv("POSTGRES_DSN"), fc.Settings.Postgres.DSN)

	cfg.LocationMinLen = fc.Validation.LocationMinLen
	if cfg.LocationMinLen <= 0 {
		cfg.LocationMinLen = 1
	}
	cfg.LocationMaxLen = fc.Validation.LocationMaxLen
	if cfg.LocationMaxLen <= 0 {
		cfg.LocationMaxLen = 100
	}

	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 20
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 40
	}
	cb := fc.Reliability.CircuitBreaker
	cfg.CircuitBreakerEnabled = cb.Enabled
	cfg.CircuitFailureThreshold = cb.FailureThreshold
	if cfg.CircuitFailureThreshold <= 0 {
		cfg.CircuitFailureThreshold = 5
	}
	cfg.CircuitSuccessThreshold = cb.SuccessThreshold
	if cfg.CircuitSuccessThreshold <= 0 {
		cfg.CircuitSuccessThreshold = 1
	}
	cfg.CircuitTimeout = parseDuration(cb.Timeout, 30*time.Second)

	cfg.DegradedWindow = parseDuration(fc.Health.DegradedWindow, 60*time.Second)
	cfg.DegradedErrorPct = fc.Health.DegradedErrorPct
	if cfg.DegradedErrorPct <= 0 {
		cfg.DegradedErrorPct = 50
	}
	cfg.APIKeyCheckInterval = parseDuration(fc.Health.APIKeyCheckInterval, 5*time.Minute)

	tz := firstNonEmpty(os.Getenv("DISPLAY_TIMEZONE"), fc.Display.Timezone, "Local")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("display.timezone %q: %w", tz, err)
	}
	cfg.DisplayTimezone = loc

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadAPIKeyFromSecrets(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read secrets file: %w", err)
	}
	var sec secretsFile
	if err := yaml.Unmarshal(data, &sec); err != nil {
		return "", fmt.Errorf("parse secrets file: %w", err)
	}
	return sec.WeatherAPIKey, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Zero or negative durations are returned as-is so validate can reject them.
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate performs post-load validation. RequestTimeout is raised above
// WeatherAPITimeout so a handler never gives up before its upstream call does.
func validate(cfg *Config) error {
	if cfg.WeatherAPITimeout <= 0 {
		return fmt.Errorf("weather_api.timeout must be positive")
	}
	if cfg.RequestTimeout <= cfg.WeatherAPITimeout {
		cfg.RequestTimeout = cfg.WeatherAPITimeout + time.Second
	}
	if cfg.LocationMaxLen < cfg.LocationMinLen {
		return fmt.Errorf("validation.location_max_len (%d) below location_min_len (%d)", cfg.LocationMaxLen, cfg.LocationMinLen)
	}
	switch cfg.SettingsBackend {
	case "in_memory", "memcached", "sqlite":
	case "postgres":
		if cfg.PostgresDSN == "" {
			return fmt.Errorf("settings.backend postgres requires POSTGRES_DSN or settings.postgres.dsn")
		}
	default:
		return fmt.Errorf("settings.backend must be in_memory, memcached, sqlite or postgres, got %q", cfg.SettingsBackend)
	}
	if cfg.DegradedErrorPct > 100 {
		return fmt.Errorf("health.degraded_error_pct must be <= 100, got %d", cfg.DegradedErrorPct)
	}
	return nil
}
