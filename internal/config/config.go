// Package config loads the immutable boot configuration from the
// environment, optionally seeded by a .env file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the mol-bhav service.
type Config struct {
	// Server
	HTTPAddr           string
	Env                string // development | production
	CORSAllowedOrigins []string
	APIAdminKey        string

	// Stores
	DatabaseURL string
	RedisURL    string

	// LLM
	GeminiAPIKey string
	GeminiModel  string

	// Negotiation defaults
	DefaultBeta      float64
	DefaultAlpha     float64
	DefaultMaxRounds int
	SessionTTLSecs   int
	QuoteTTLSecs     int
	ZOPAEpsilonPct   float64

	// Abuse controls
	MinResponseDelayMS int
	LockLeaseSecs      int
	StartRatePerMinute int

	// Quote signing
	QuoteSigningKey string
}

// Load reads configuration from environment variables with defaults.
// A .env file in the working directory is honoured when present.
func Load() (*Config, error) {
	_ = godotenv.Load() // optional; real env always wins

	cfg := &Config{
		HTTPAddr:           getEnv("HTTP_ADDR", ":8080"),
		Env:                getEnv("ENV", "development"),
		CORSAllowedOrigins: splitCSV(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000")),
		APIAdminKey:        os.Getenv("API_ADMIN_KEY"),
		DatabaseURL:        getEnv("DATABASE_URL", "postgres://localhost:5432/molbhav?sslmode=disable"),
		RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379/0"),
		GeminiAPIKey:       os.Getenv("GEMINI_API_KEY"),
		GeminiModel:        getEnv("GEMINI_MODEL", "gemini-2.0-flash-001"),
		QuoteSigningKey:    getEnv("QUOTE_SIGNING_KEY", "dev-only-signing-key"),
	}

	var err error
	if cfg.DefaultBeta, err = getEnvFloat("DEFAULT_BETA", 5.0); err != nil {
		return nil, err
	}
	if cfg.DefaultAlpha, err = getEnvFloat("DEFAULT_ALPHA", 0.6); err != nil {
		return nil, err
	}
	if cfg.DefaultMaxRounds, err = getEnvInt("DEFAULT_MAX_ROUNDS", 15); err != nil {
		return nil, err
	}
	if cfg.SessionTTLSecs, err = getEnvInt("DEFAULT_SESSION_TTL_SECONDS", 300); err != nil {
		return nil, err
	}
	if cfg.QuoteTTLSecs, err = getEnvInt("QUOTE_TTL_SECONDS", 60); err != nil {
		return nil, err
	}
	if cfg.ZOPAEpsilonPct, err = getEnvFloat("ZOPA_EPSILON_PCT", 0.01); err != nil {
		return nil, err
	}
	if cfg.MinResponseDelayMS, err = getEnvInt("MIN_RESPONSE_DELAY_MS", 2000); err != nil {
		return nil, err
	}
	if cfg.LockLeaseSecs, err = getEnvInt("SESSION_LOCK_LEASE_SECONDS", 5); err != nil {
		return nil, err
	}
	if cfg.StartRatePerMinute, err = getEnvInt("START_RATE_PER_MINUTE", 30); err != nil {
		return nil, err
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return n, nil
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return f, nil
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
