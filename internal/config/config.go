// Package config loads ingester settings from the environment.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ffl/batch-ingester/internal/trade"
)

// Config holds all application configuration.
type Config struct {
	// Storage
	DatabaseURL  string
	RedisURL     string
	NavCacheTTL  time.Duration
	FixturesFile string

	// Messaging
	NATSURL string

	// Arithmetic
	DivisionScale int32
	Rounding      trade.RoundingMode

	LogLevel slog.Level
	Port     string
}

// Load reads the configuration from environment variables, falling back to
// defaults for anything unset.
func Load() (Config, error) {
	cfg := Config{
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		RedisURL:     os.Getenv("REDIS_URL"),
		FixturesFile: os.Getenv("FIXTURES_FILE"),
		NATSURL:      os.Getenv("NATS_URL"),
		Port:         envOrDefault("PORT", "8080"),
	}

	var err error
	if cfg.NavCacheTTL, err = time.ParseDuration(envOrDefault("NAV_CACHE_TTL", "10m")); err != nil {
		return Config{}, fmt.Errorf("config: NAV_CACHE_TTL: %w", err)
	}
	if cfg.NavCacheTTL <= 0 {
		return Config{}, fmt.Errorf("config: NAV_CACHE_TTL must be positive, got %s", cfg.NavCacheTTL)
	}

	scale, err := strconv.ParseInt(envOrDefault("INGESTER_DIVISION_SCALE", "8"), 10, 32)
	if err != nil {
		return Config{}, fmt.Errorf("config: INGESTER_DIVISION_SCALE: %w", err)
	}
	if int32(scale) < trade.MinScale {
		return Config{}, fmt.Errorf("config: INGESTER_DIVISION_SCALE must be at least %d, got %d", trade.MinScale, scale)
	}
	cfg.DivisionScale = int32(scale)

	if cfg.Rounding, err = trade.ParseRoundingMode(os.Getenv("INGESTER_ROUNDING")); err != nil {
		return Config{}, fmt.Errorf("config: INGESTER_ROUNDING: %w", err)
	}

	if cfg.LogLevel, err = parseLevel(envOrDefault("INGESTER_LOG_LEVEL", "info")); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Logger builds the JSON logger for the configured level.
func (c Config) Logger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: c.LogLevel}))
}

func parseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return 0, fmt.Errorf("config: INGESTER_LOG_LEVEL %q (expected debug, info, warn or error)", s)
	}
	return lvl, nil
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
