// Package config reads the service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config is the runtime configuration of the ledger engine.
type Config struct {
	Port        string
	DatabaseURL string // empty → in-memory store
	RedisURL    string // empty → in-process cache, no store cache
	CacheTTL    time.Duration

	QuoteTickEvery  time.Duration // 0 disables the simulator loop
	QuoteVolatility float64
	QuoteSeed       int64

	StartingBalance decimal.Decimal
	SessionSecret   string // empty → header identity only
	GeminiAPIKey    string // empty → rule-based insight only
	GeminiModel     string
	DevSeedUser     bool
}

// Load reads .env when present, then the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("could not read .env", "err", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function.
func FromEnv(getenv func(string) string) (Config, error) {
	e := env{get: getenv}
	cfg := Config{
		Port:            e.str("PORT", "8080"),
		DatabaseURL:     e.str("DATABASE_URL", ""),
		RedisURL:        e.str("REDIS_URL", ""),
		CacheTTL:        e.duration("CACHE_TTL", 30*time.Second),
		QuoteTickEvery:  e.duration("QUOTE_TICK_EVERY", 5*time.Second),
		QuoteVolatility: e.float("QUOTE_VOLATILITY", 0.002),
		QuoteSeed:       e.int("QUOTE_SEED", 0),
		StartingBalance: e.decimal("STARTING_BALANCE", decimal.NewFromInt(100_000)),
		SessionSecret:   e.str("SESSION_SECRET", ""),
		GeminiAPIKey:    e.str("GEMINI_API_KEY", ""),
		GeminiModel:     e.str("GEMINI_MODEL", "gemini-1.5-flash"),
		DevSeedUser:     e.bool("DEV_SEED_USER", false),
	}
	if len(e.errs) > 0 {
		return Config{}, errors.Join(e.errs...)
	}
	if !cfg.StartingBalance.IsPositive() {
		return Config{}, fmt.Errorf("config: STARTING_BALANCE must be positive, got %s", cfg.StartingBalance)
	}
	if cfg.QuoteVolatility < 0 || cfg.QuoteVolatility > 0.2 {
		return Config{}, fmt.Errorf("config: QUOTE_VOLATILITY must be within [0, 0.2], got %g", cfg.QuoteVolatility)
	}
	if cfg.SessionSecret != "" && len(cfg.SessionSecret) < 32 {
		return Config{}, errors.New("config: SESSION_SECRET must be at least 32 bytes")
	}
	return cfg, nil
}

// env collects parse errors so every bad variable is reported at once.
type env struct {
	get  func(string) string
	errs []error
}

func (e *env) str(key, def string) string {
	if v := strings.TrimSpace(e.get(key)); v != "" {
		return v
	}
	return def
}

func (e *env) duration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(e.get(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		e.errs = append(e.errs, fmt.Errorf("config: %s: invalid duration %q", key, v))
		return def
	}
	return d
}

func (e *env) float(key string, def float64) float64 {
	v := strings.TrimSpace(e.get(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("config: %s: invalid number %q", key, v))
		return def
	}
	return f
}

func (e *env) int(key string, def int64) int64 {
	v := strings.TrimSpace(e.get(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("config: %s: invalid integer %q", key, v))
		return def
	}
	return n
}

func (e *env) bool(key string, def bool) bool {
	v := strings.TrimSpace(e.get(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("config: %s: invalid bool %q", key, v))
		return def
	}
	return b
}

func (e *env) decimal(key string, def decimal.Decimal) decimal.Decimal {
	v := strings.TrimSpace(e.get(key))
	if v == "" {
		return def
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("config: %s: invalid decimal %q", key, v))
		return def
	}
	return d
}
