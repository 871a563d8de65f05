// Package config provides environment-driven configuration for storygraph.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Secret wraps a sensitive string to prevent accidental logging or marshalling.
type Secret string

// String implements fmt.Stringer, returning a redacted placeholder.
func (s Secret) String() string { return "[REDACTED]" }

// GoString implements fmt.GoStringer, returning a redacted placeholder.
func (s Secret) GoString() string { return "[REDACTED]" }

// MarshalText implements encoding.TextMarshaler, returning a redacted placeholder.
func (s Secret) MarshalText() ([]byte, error) { return []byte("[REDACTED]"), nil }

// Value returns the underlying secret string.
func (s Secret) Value() string { return string(s) }

// Config holds all application configuration values.
type Config struct {
	Port        string
	ListenHost  string
	CORSOrigins []string
	LogLevel    string

	UpstreamURL   string
	UpstreamToken Secret

	KVBackend     string
	BadgerPath    string
	RedisAddr     string
	RedisPassword Secret
	DatabaseURL   Secret

	ChapterTTL       time.Duration
	ManifestTTL      time.Duration
	FetchDelay       time.Duration
	MaxScanEvents    int
	EmptyStreakLimit int
	WarmWorkers      int
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Port:          envOrDefault("PORT", "3040"),
		ListenHost:    envOrDefault("LISTEN_HOST", "127.0.0.1"),
		LogLevel:      envOrDefault("LOG_LEVEL", "info"),
		UpstreamURL:   envOrDefault("UPSTREAM_URL", "http://localhost:8080"),
		UpstreamToken: Secret(envOrDefault("UPSTREAM_TOKEN", "")),
		KVBackend:     envOrDefault("KV_BACKEND", "badger"),
		BadgerPath:    envOrDefault("BADGER_PATH", "./data/graphcache"),
		RedisAddr:     envOrDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword: Secret(envOrDefault("REDIS_PASSWORD", "")),
		DatabaseURL:   Secret(envOrDefault("DATABASE_URL", "")),
	}

	var err error

	if cfg.ChapterTTL, err = envDuration("CHAPTER_TTL", "24h"); err != nil {
		return nil, err
	}
	if cfg.ManifestTTL, err = envDuration("MANIFEST_TTL", "15m"); err != nil {
		return nil, err
	}
	if cfg.FetchDelay, err = envDuration("FETCH_DELAY", "50ms"); err != nil {
		return nil, err
	}

	if cfg.MaxScanEvents, err = envInt("MAX_SCAN_EVENTS", "500", 1, 10000); err != nil {
		return nil, err
	}
	if cfg.EmptyStreakLimit, err = envInt("EMPTY_STREAK_LIMIT", "2", 1, 50); err != nil {
		return nil, err
	}
	if cfg.WarmWorkers, err = envInt("WARM_WORKERS", "2", 1, 8); err != nil {
		return nil, err
	}

	origins := envOrDefault("CORS_ORIGINS", "http://localhost:5173")
	cfg.CORSOrigins = strings.Split(origins, ",")

	for i, o := range cfg.CORSOrigins {
		cfg.CORSOrigins[i] = strings.TrimSpace(o)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// Addr returns the listen address in host:port format.
func (c *Config) Addr() string {
	return c.ListenHost + ":" + c.Port
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}

func envInt(key, fallback string, lo, hi int) (int, error) {
	n, err := strconv.Atoi(envOrDefault(key, fallback))
	if err != nil || n < lo || n > hi {
		return 0, fmt.Errorf("%s must be an integer between %d and %d", key, lo, hi)
	}

	return n, nil
}

func envDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, fallback))
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration such as 15m: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative", key)
	}

	return d, nil
}
