package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Persistence of the content cache blob
	Storage StorageConfig

	// Content origin configuration
	Origin OriginConfig

	// Cache freshness and validation scheduling
	Sync SyncConfig

	// Logging configuration
	Log LogConfig
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// StorageConfig selects and configures the blob store
type StorageConfig struct {
	Driver     string // "sqlite" or "postgres"
	SQLitePath string
	Database   DatabaseConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host         string
	Port         string
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
}

// OriginConfig holds content origin settings
type OriginConfig struct {
	BaseURL              string
	Timeout              time.Duration
	UserAgent            string
	PageSize             int
	MaxPages             int
	DigestSize           int
	FallbackImageBaseURL string
}

// SyncConfig holds cache TTLs and validation scheduler settings
type SyncConfig struct {
	FullTTL            time.Duration
	StaleThreshold     time.Duration
	ValidationInterval time.Duration
	TickInterval       time.Duration
	// PatchThreshold is the largest drift handled by a targeted patch;
	// anything above it triggers a full refresh
	PatchThreshold   int
	PatchConcurrency int
	QueryCacheSize   int
	QueryCacheTTL    time.Duration
}

// LogConfig holds logging settings
type LogConfig struct {
	Level  string
	Format string // "json" or "pretty"
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", "8080"),
			ReadTimeout:     getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getDurationEnv("SERVER_WRITE_TIMEOUT", 0),
			ShutdownTimeout: getDurationEnv("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Storage: StorageConfig{
			Driver:     getEnv("STORAGE_DRIVER", "sqlite"),
			SQLitePath: getEnv("SQLITE_PATH", "./data/content-cache.db"),
			Database: DatabaseConfig{
				Host:         getEnv("DB_HOST", "localhost"),
				Port:         getEnv("DB_PORT", "5432"),
				User:         getEnv("DB_USER", "postgres"),
				Password:     getEnv("DB_PASSWORD", "postgres"),
				Name:         getEnv("DB_NAME", "content_sync"),
				SSLMode:      getEnv("DB_SSLMODE", "disable"),
				MaxOpenConns: getIntEnv("DB_MAX_OPEN_CONNS", 5),
				MaxIdleConns: getIntEnv("DB_MAX_IDLE_CONNS", 2),
				MaxLifetime:  getDurationEnv("DB_MAX_LIFETIME", 5*time.Minute),
			},
		},
		Origin: OriginConfig{
			BaseURL:              getEnv("ORIGIN_BASE_URL", ""),
			Timeout:              getDurationEnv("ORIGIN_TIMEOUT", 20*time.Second),
			UserAgent:            getEnv("ORIGIN_USER_AGENT", "content-sync-engine/1.0"),
			PageSize:             getIntEnv("ORIGIN_PAGE_SIZE", 100),
			MaxPages:             getIntEnv("ORIGIN_MAX_PAGES", 5),
			DigestSize:           getIntEnv("DIGEST_SIZE", 100),
			FallbackImageBaseURL: getEnv("FALLBACK_IMAGE_BASE_URL", ""),
		},
		Sync: SyncConfig{
			FullTTL:            getDurationEnv("CACHE_FULL_TTL", 6*time.Hour),
			StaleThreshold:     getDurationEnv("CACHE_STALE_THRESHOLD", 30*time.Minute),
			ValidationInterval: getDurationEnv("VALIDATION_INTERVAL", 15*time.Minute),
			TickInterval:       getDurationEnv("SYNC_TICK_INTERVAL", 5*time.Minute),
			PatchThreshold:     getIntEnv("PATCH_THRESHOLD", 20),
			PatchConcurrency:   getIntEnv("PATCH_CONCURRENCY", 4),
			QueryCacheSize:     getIntEnv("QUERY_CACHE_SIZE", 256),
			QueryCacheTTL:      getDurationEnv("QUERY_CACHE_TTL", time.Minute),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if cfg.Origin.FallbackImageBaseURL == "" {
		cfg.Origin.FallbackImageBaseURL = cfg.Origin.BaseURL + "/static/fallback"
	}

	// Validate required configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Defaults returns the configuration used when no environment is set.
// Tests start from it and override what they need.
func Defaults() *Config {
	return &Config{
		Server:  ServerConfig{Port: "8080", ReadTimeout: 30 * time.Second, ShutdownTimeout: 30 * time.Second},
		Storage: StorageConfig{Driver: "sqlite", SQLitePath: "./data/content-cache.db"},
		Origin: OriginConfig{
			Timeout:    20 * time.Second,
			PageSize:   100,
			MaxPages:   5,
			DigestSize: 100,
		},
		Sync: SyncConfig{
			FullTTL:            6 * time.Hour,
			StaleThreshold:     30 * time.Minute,
			ValidationInterval: 15 * time.Minute,
			TickInterval:       5 * time.Minute,
			PatchThreshold:     20,
			PatchConcurrency:   4,
			QueryCacheSize:     256,
			QueryCacheTTL:      time.Minute,
		},
		Log: LogConfig{Level: "info", Format: "json"},
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Origin.BaseURL == "" {
		return fmt.Errorf("ORIGIN_BASE_URL is required")
	}
	switch c.Storage.Driver {
	case "sqlite":
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite driver")
		}
	case "postgres":
		if c.Storage.Database.Host == "" {
			return fmt.Errorf("DB_HOST is required")
		}
		if c.Storage.Database.Name == "" {
			return fmt.Errorf("DB_NAME is required")
		}
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q (want sqlite or postgres)", c.Storage.Driver)
	}
	if c.Sync.PatchThreshold < 0 {
		return fmt.Errorf("PATCH_THRESHOLD must not be negative")
	}
	if c.Sync.TickInterval <= 0 {
		return fmt.Errorf("SYNC_TICK_INTERVAL must be positive")
	}
	return nil
}

// GetDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// Helper functions for environment variable parsing

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
