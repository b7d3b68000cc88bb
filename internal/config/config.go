// Package config reads service settings from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all service configuration.
type Config struct {
	Port        string
	LogLevel    string
	DatabaseURL string
	RedisURL    string

	// postgres, redis, memory or none. Empty picks postgres when DATABASE_URL
	// is set, otherwise memory.
	LockBackend string
	LockTTL     time.Duration
	// Size of the dedicated Postgres pool that advisory locks pin.
	LockPoolSize int

	ORSAPIKey       string
	ORSBaseURL      string
	ORSProfile      string
	ORSTimeout      time.Duration
	ORSRetryBackoff time.Duration

	FallbackUpgradeAfter time.Duration
	ProviderRefreshAfter time.Duration
	// Upper bound on one shared segment resolution.
	ResolveTimeout time.Duration

	CascadeResolveConcurrency int
	CascadeWriteConcurrency   int
	CoordinateEpsilon         float64

	SeedPath string
}

// Load reads configuration from environment variables with defaults.
func Load() Config {
	return Config{
		Port:        Get("PORT", "8080"),
		LogLevel:    Get("LOG_LEVEL", "info"),
		DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),
		RedisURL:    strings.TrimSpace(os.Getenv("REDIS_URL")),

		LockBackend:  strings.ToLower(Get("LOCK_BACKEND", "")),
		LockTTL:      GetDuration("LOCK_TTL", 30*time.Second),
		LockPoolSize: GetInt("LOCK_POOL_SIZE", 10),

		ORSAPIKey:       strings.TrimSpace(os.Getenv("ORS_API_KEY")),
		ORSBaseURL:      Get("ORS_BASE_URL", "https://api.openrouteservice.org"),
		ORSProfile:      Get("ORS_PROFILE", "driving-car"),
		ORSTimeout:      GetDuration("ORS_TIMEOUT", 12*time.Second),
		ORSRetryBackoff: GetDuration("ORS_RETRY_BACKOFF", 250*time.Millisecond),

		FallbackUpgradeAfter: GetDuration("FALLBACK_UPGRADE_AFTER", 6*time.Hour),
		ProviderRefreshAfter: GetDuration("PROVIDER_REFRESH_AFTER", 0),
		ResolveTimeout:       GetDuration("RESOLVE_TIMEOUT", 45*time.Second),

		CascadeResolveConcurrency: GetInt("CASCADE_RESOLVE_CONCURRENCY", 3),
		CascadeWriteConcurrency:   GetInt("CASCADE_WRITE_CONCURRENCY", 6),
		CoordinateEpsilon:         GetFloat("COORDINATE_EPSILON", 1e-6),

		SeedPath: Get("SEED_PATH", "data/seeds/routes.json"),
	}
}

// Get returns the variable's value, or fallback when unset or blank.
func Get(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func GetInt(key string, fallback int) int {
	if v := Get(key, ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func GetFloat(key string, fallback float64) float64 {
	if v := Get(key, ""); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// GetDuration accepts Go duration strings ("12s", "6h") or bare seconds.
func GetDuration(key string, fallback time.Duration) time.Duration {
	v := Get(key, "")
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}
