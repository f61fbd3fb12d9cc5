// Package config loads the process configuration from the environment
// into one nested struct with a section per concern.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the ESG analysis service.
type Config struct {
	Server   ServerConfig
	Auth     AuthConfig
	Database DatabaseConfig
	Cache    CacheConfig
	Fetch    FetchConfig
	Credits  CreditConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	CORSOrigins  []string
}

// AuthConfig holds bearer-token settings.
type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

// DatabaseConfig holds persistence settings.
type DatabaseConfig struct {
	URI     string
	PoolMin int
	PoolMax int
}

// CacheConfig holds cache backend settings.
type CacheConfig struct {
	URL string
	TLS bool
	TTL time.Duration
}

// FetchConfig holds content acquirer limits.
type FetchConfig struct {
	MaxBytes  int64
	TimeoutMS int
}

// CreditConfig holds credit defaults.
type CreditConfig struct {
	FreeTierCredits int
	RateOverrides   string
}

// Load reads configuration from environment variables, applying the
// environment-variable defaults.
func Load() (*Config, error) {
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, fmt.Errorf("config: JWT_SECRET is required")
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:         envInt("PORT", 8080),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  120 * time.Second,
			CORSOrigins:  envList("CORS_ORIGINS", nil),
		},
		Auth: AuthConfig{
			JWTSecret: jwtSecret,
			TokenTTL:  time.Duration(envInt("TOKEN_TTL_MIN", 1440)) * time.Minute,
		},
		Database: DatabaseConfig{
			URI:     envStr("DB_URI", "sqlite://esg.db"),
			PoolMin: envInt("DB_POOL_MIN", 5),
			PoolMax: envInt("DB_POOL_MAX", 50),
		},
		Cache: CacheConfig{
			URL: envStr("CACHE_URL", "redis://localhost:6379/0"),
			TLS: envStr("CACHE_TLS", "") != "",
			TTL: time.Duration(envInt("CACHE_TTL_SEC", 86400)) * time.Second,
		},
		Fetch: FetchConfig{
			MaxBytes:  int64(envInt("FETCH_MAX_BYTES", 10485760)),
			TimeoutMS: envInt("FETCH_TIMEOUT_MS", 15000),
		},
		Credits: CreditConfig{
			FreeTierCredits: envInt("FREE_TIER_CREDITS", 100),
			RateOverrides:   envStr("RATE_LIMIT_OVERRIDES", ""),
		},
	}
	return cfg, nil
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
