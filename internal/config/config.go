// Package config handles application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ErrInvalidConfig is wrapped by every Validate failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// StoreDriver selects the storage collaborator.
type StoreDriver string

const (
	// StoreMemory keeps procedures, rules and library data in process memory.
	StoreMemory StoreDriver = "memory"

	// StorePostgres uses PostgreSQL through DATABASE_URL.
	StorePostgres StoreDriver = "postgres"
)

// Config holds all application configuration.
type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	Cache   CacheConfig
	Log     LogConfig
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	// Port is the HTTP port to listen on.
	Port string

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout time.Duration

	// WriteTimeout is the maximum duration before timing out writes of the response.
	WriteTimeout time.Duration

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration
}

// StorageConfig contains persistence settings.
type StorageConfig struct {
	Driver      StoreDriver
	DatabaseURL string

	// AutoMigrate applies pending migrations at startup.
	AutoMigrate bool

	// SeedBundle is a YAML bundle loaded into the memory store at startup.
	SeedBundle string
}

// CacheConfig contains cache settings.
type CacheConfig struct {
	// RedisURL enables the shared rule-list cache when set.
	RedisURL string

	// RuleTTL is how long a cached rule list may be served.
	RuleTTL time.Duration

	// LibraryTTL is how long library collections are cached.
	LibraryTTL time.Duration
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level       string
	OTELEnabled bool
	ServiceName string
}

// Load reads configuration from environment variables. A .env file in the
// working directory is read first when present; real environment variables
// take precedence.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: failed to read .env: %v", ErrInvalidConfig, err)
	}

	driver := StorePostgres
	if os.Getenv("DATABASE_URL") == "" {
		driver = StoreMemory
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvOrDefault("PORT", "8080"),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 15*time.Second),
			ShutdownTimeout: getDurationOrDefault("SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Storage: StorageConfig{
			Driver:      StoreDriver(strings.ToLower(getEnvOrDefault("STORE_DRIVER", string(driver)))),
			DatabaseURL: os.Getenv("DATABASE_URL"),
			AutoMigrate: getBoolOrDefault("AUTO_MIGRATE", false),
			SeedBundle:  os.Getenv("SEED_BUNDLE"),
		},
		Cache: CacheConfig{
			RedisURL:   os.Getenv("REDIS_URL"),
			RuleTTL:    getDurationOrDefault("RULE_CACHE_TTL", 30*time.Second),
			LibraryTTL: getDurationOrDefault("LIBRARY_CACHE_TTL", 5*time.Minute),
		},
		Log: LogConfig{
			Level:       getEnvOrDefault("LOG_LEVEL", "INFO"),
			OTELEnabled: getBoolOrDefault("OTEL_ENABLED", false),
			ServiceName: getEnvOrDefault("OTEL_SERVICE_NAME", "defect-criteria"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	port, err := strconv.Atoi(c.Server.Port)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("%w: PORT must be a number between 1 and 65535", ErrInvalidConfig)
	}

	switch c.Storage.Driver {
	case StoreMemory:
	case StorePostgres:
		if c.Storage.DatabaseURL == "" {
			return fmt.Errorf("%w: DATABASE_URL is required for the postgres store", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: STORE_DRIVER must be %q or %q", ErrInvalidConfig, StorePostgres, StoreMemory)
	}

	if c.Storage.AutoMigrate && c.Storage.Driver != StorePostgres {
		return fmt.Errorf("%w: AUTO_MIGRATE requires the postgres store", ErrInvalidConfig)
	}

	if c.Storage.SeedBundle != "" && c.Storage.Driver != StoreMemory {
		return fmt.Errorf("%w: SEED_BUNDLE requires the memory store", ErrInvalidConfig)
	}

	if c.Server.ReadTimeout < time.Second || c.Server.WriteTimeout < time.Second {
		return fmt.Errorf("%w: server timeouts must be at least 1 second", ErrInvalidConfig)
	}

	if c.Cache.RuleTTL < 0 || c.Cache.LibraryTTL < 0 {
		return fmt.Errorf("%w: cache TTLs must not be negative", ErrInvalidConfig)
	}

	return nil
}

// Helper functions for reading environment variables

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		// Plain integers are seconds
		if secs, err := strconv.Atoi(val); err == nil {
			return time.Duration(secs) * time.Second
		}
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
