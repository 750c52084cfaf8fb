package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configKeys = []string{
	"PORT", "DATABASE_URL", "STORE_DRIVER", "AUTO_MIGRATE", "REDIS_URL",
	"RULE_CACHE_TTL", "LIBRARY_CACHE_TTL", "SERVER_READ_TIMEOUT",
	"SERVER_WRITE_TIMEOUT", "SHUTDOWN_TIMEOUT", "LOG_LEVEL", "OTEL_ENABLED",
	"OTEL_SERVICE_NAME", "SEED_BUNDLE",
}

// cleanEnv clears every config key and runs the test from an empty directory
// so no stray .env is picked up.
func cleanEnv(t *testing.T) {
	t.Helper()
	for _, k := range configKeys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	t.Chdir(t.TempDir())
}

func TestLoadDefaults(t *testing.T) {
	cleanEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, StoreMemory, cfg.Storage.Driver)
	assert.Equal(t, 30*time.Second, cfg.Cache.RuleTTL)
	assert.Equal(t, 5*time.Minute, cfg.Cache.LibraryTTL)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "INFO", cfg.Log.Level)
	assert.False(t, cfg.Log.OTELEnabled)
}

func TestLoadFromEnvironment(t *testing.T) {
	cleanEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("DATABASE_URL", "postgres://localhost/criteria")
	t.Setenv("AUTO_MIGRATE", "true")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("RULE_CACHE_TTL", "10")
	t.Setenv("LIBRARY_CACHE_TTL", "2m")
	t.Setenv("OTEL_ENABLED", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, StorePostgres, cfg.Storage.Driver, "a database url selects postgres")
	assert.True(t, cfg.Storage.AutoMigrate)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Cache.RedisURL)
	assert.Equal(t, 10*time.Second, cfg.Cache.RuleTTL)
	assert.Equal(t, 2*time.Minute, cfg.Cache.LibraryTTL)
	assert.True(t, cfg.Log.OTELEnabled)
}

func TestLoadReadsDotEnv(t *testing.T) {
	cleanEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(".", ".env"), []byte("PORT=7070\nLOG_LEVEL=debug\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("PORT")
		os.Unsetenv("LOG_LEVEL")
	})

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "7070", cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:  ServerConfig{Port: "8080", ReadTimeout: time.Second, WriteTimeout: time.Second},
			Storage: StorageConfig{Driver: StoreMemory},
			Cache:   CacheConfig{RuleTTL: time.Second},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = "http" }},
		{"port out of range", func(c *Config) { c.Server.Port = "70000" }},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "sqlite" }},
		{"postgres without url", func(c *Config) { c.Storage.Driver = StorePostgres }},
		{"migrate without postgres", func(c *Config) { c.Storage.AutoMigrate = true }},
		{"seed with postgres", func(c *Config) {
			c.Storage.Driver = StorePostgres
			c.Storage.DatabaseURL = "postgres://localhost/criteria"
			c.Storage.SeedBundle = "seed.yaml"
		}},
		{"short timeout", func(c *Config) { c.Server.ReadTimeout = time.Millisecond }},
		{"negative ttl", func(c *Config) { c.Cache.RuleTTL = -time.Second }},
	}

	require.NoError(t, valid().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidConfig))
		})
	}
}
