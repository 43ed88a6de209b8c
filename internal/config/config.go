package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all broker configuration, loaded from environment variables.
type Config struct {
	AppHost string
	AppPort string

	// Keycloak (identity provider) settings.
	KeycloakHost     string
	KeycloakRealm    string
	KeycloakUser     string
	KeycloakPassword string
	KeycloakClient   string

	// DSA directory settings.
	DSAHost     string
	DSAUsername string
	DSAPassword string

	// Group cache settings. Backend is "memory" or "redis".
	GroupCacheBackend string
	GroupCacheSize    int
	GroupCacheTTL     time.Duration

	RedisAddr     string
	RedisPassword string

	// SyncSchedule is an optional cron expression for periodic bulk
	// reconciliation. Empty disables the scheduler.
	SyncSchedule string
}

// Load reads configuration from the environment and validates it.
func Load() (Config, error) {
	cfg := Config{
		AppHost: getEnv("APP_HOST", "0.0.0.0"),
		AppPort: getEnv("APP_PORT", "8085"),

		KeycloakHost:     os.Getenv("KEYCLOAK_HOST"),
		KeycloakRealm:    os.Getenv("KEYCLOAK_REALM"),
		KeycloakUser:     os.Getenv("KEYCLOAK_USER"),
		KeycloakPassword: os.Getenv("KEYCLOAK_PASSWORD"),
		KeycloakClient:   os.Getenv("KEYCLOAK_CLIENT"),

		DSAHost:     os.Getenv("DSA_HOST"),
		DSAUsername: os.Getenv("DSA_USERNAME"),
		DSAPassword: os.Getenv("DSA_PASSWORD"),

		GroupCacheBackend: getEnv("GROUP_CACHE_BACKEND", "memory"),
		GroupCacheSize:    getEnvInt("GROUP_CACHE_SIZE", 0),
		GroupCacheTTL:     getEnvDuration("GROUP_CACHE_TTL", 0),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		SyncSchedule: os.Getenv("SYNC_SCHEDULE"),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate rejects configurations that cannot reach both systems.
func (c Config) Validate() error {
	required := map[string]string{
		"KEYCLOAK_HOST":     c.KeycloakHost,
		"KEYCLOAK_REALM":    c.KeycloakRealm,
		"KEYCLOAK_USER":     c.KeycloakUser,
		"KEYCLOAK_PASSWORD": c.KeycloakPassword,
		"KEYCLOAK_CLIENT":   c.KeycloakClient,
		"DSA_HOST":          c.DSAHost,
		"DSA_USERNAME":      c.DSAUsername,
		"DSA_PASSWORD":      c.DSAPassword,
	}

	for key, value := range required {
		if value == "" {
			return fmt.Errorf("config: missing required key %s", key)
		}
	}

	switch c.GroupCacheBackend {
	case "memory":
	case "redis":
		if c.RedisAddr == "" {
			return fmt.Errorf("config: GROUP_CACHE_BACKEND=redis requires REDIS_ADDR")
		}
	default:
		return fmt.Errorf("config: unknown GROUP_CACHE_BACKEND %q", c.GroupCacheBackend)
	}

	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
