package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("KEYCLOAK_HOST", "https://kc.example.org")
	t.Setenv("KEYCLOAK_REALM", "hospital")
	t.Setenv("KEYCLOAK_USER", "svc-broker")
	t.Setenv("KEYCLOAK_PASSWORD", "secret")
	t.Setenv("KEYCLOAK_CLIENT", "dsa-web")
	t.Setenv("DSA_HOST", "https://dsa.example.org")
	t.Setenv("DSA_USERNAME", "admin")
	t.Setenv("DSA_PASSWORD", "secret")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.AppHost)
	assert.Equal(t, "8085", cfg.AppPort)
	assert.Equal(t, "memory", cfg.GroupCacheBackend)
	assert.Empty(t, cfg.SyncSchedule)
}

func TestLoad_MissingRequiredKey(t *testing.T) {
	setRequired(t)
	t.Setenv("KEYCLOAK_PASSWORD", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "KEYCLOAK_PASSWORD")
}

func TestLoad_RedisBackendNeedsAddr(t *testing.T) {
	setRequired(t)
	t.Setenv("GROUP_CACHE_BACKEND", "redis")

	_, err := Load()
	require.Error(t, err)

	t.Setenv("REDIS_ADDR", "localhost:6379")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "redis", cfg.GroupCacheBackend)
}

func TestLoad_UnknownCacheBackend(t *testing.T) {
	setRequired(t)
	t.Setenv("GROUP_CACHE_BACKEND", "memcached")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_ParsesDurationsAndSizes(t *testing.T) {
	setRequired(t)
	t.Setenv("GROUP_CACHE_SIZE", "128")
	t.Setenv("GROUP_CACHE_TTL", "5m")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 128, cfg.GroupCacheSize)
	assert.Equal(t, 5*time.Minute, cfg.GroupCacheTTL)
}
