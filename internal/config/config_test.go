package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"PORT", "ORS_TIMEOUT", "CASCADE_RESOLVE_CONCURRENCY", "COORDINATE_EPSILON", "FALLBACK_UPGRADE_AFTER", "LOCK_POOL_SIZE", "RESOLVE_TIMEOUT"} {
		t.Setenv(k, "")
	}

	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 12*time.Second, cfg.ORSTimeout)
	assert.Equal(t, 3, cfg.CascadeResolveConcurrency)
	assert.Equal(t, 6, cfg.CascadeWriteConcurrency)
	assert.Equal(t, 1e-6, cfg.CoordinateEpsilon)
	assert.Equal(t, 6*time.Hour, cfg.FallbackUpgradeAfter)
	assert.Equal(t, 10, cfg.LockPoolSize)
	assert.Equal(t, 45*time.Second, cfg.ResolveTimeout)
}

func TestGetDuration(t *testing.T) {
	t.Setenv("X_DUR", "1500ms")
	assert.Equal(t, 1500*time.Millisecond, GetDuration("X_DUR", time.Second))

	t.Setenv("X_DUR", "15")
	assert.Equal(t, 15*time.Second, GetDuration("X_DUR", time.Second))

	t.Setenv("X_DUR", "soon")
	assert.Equal(t, time.Second, GetDuration("X_DUR", time.Second))
}

func TestGetIntAndFloat(t *testing.T) {
	t.Setenv("X_INT", "9")
	t.Setenv("X_FLOAT", "1e-7")
	t.Setenv("X_BAD", "nine")

	assert.Equal(t, 9, GetInt("X_INT", 1))
	assert.Equal(t, 1, GetInt("X_BAD", 1))
	assert.Equal(t, 1e-7, GetFloat("X_FLOAT", 0))
}
