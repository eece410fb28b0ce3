package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Storage drivers accepted by STORE_DRIVER.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	CORS      CORSConfig
	TagSync   TagSyncConfig
	Scheduler SchedulerConfig
	Redis     RedisConfig
	Metrics   MetricsConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string
	Env  string
}

// DatabaseConfig holds PostgreSQL connection configuration.
// Driver selects the store implementation; connection fields are only
// required for the postgres driver.
type DatabaseConfig struct {
	Driver      string
	Host        string
	Port        string
	Name        string
	User        string
	Password    string
	PoolMin     int
	PoolMax     int
	AutoMigrate bool
}

// CORSConfig holds CORS configuration.
type CORSConfig struct {
	Origins []string
}

// TagSyncConfig holds the external tagging API client configuration.
// When Enabled is false the service runs without the integration and every
// sync path reports the work as skipped.
type TagSyncConfig struct {
	Enabled    bool
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	RetryCount int
}

// SchedulerConfig holds the reconciliation scheduler configuration.
type SchedulerConfig struct {
	Enabled           bool
	SyncInterval      time.Duration
	AnalyticsInterval time.Duration
	SystemActorID     int64
}

// RedisConfig holds the connection used for scheduler run locks.
// An empty Addr selects an in-process lock.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	LockTTL  time.Duration
}

// MetricsConfig holds Prometheus exposition configuration.
type MetricsConfig struct {
	Path string
}

// Load reads configuration from environment variables.
// It uses viper to read values and provides sensible defaults for development.
func Load() (*Config, error) {
	v := viper.New()

	// Set defaults for development
	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("STORE_DRIVER", DriverPostgres)
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_NAME", "portfolios")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_POOL_MIN", 2)
	v.SetDefault("DB_POOL_MAX", 10)
	v.SetDefault("DB_AUTO_MIGRATE", true)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000,http://localhost:3001")
	v.SetDefault("TAGSYNC_ENABLED", false)
	v.SetDefault("TAGSYNC_TIMEOUT", "30s")
	v.SetDefault("TAGSYNC_RETRY_COUNT", 2)
	v.SetDefault("SCHEDULER_ENABLED", true)
	v.SetDefault("SYNC_INTERVAL", "1h")
	v.SetDefault("ANALYTICS_INTERVAL", "24h")
	v.SetDefault("SYSTEM_ACTOR_ID", 1)
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("LOCK_TTL", "10m")
	v.SetDefault("METRICS_PATH", "/metrics")

	// Bind environment variables
	v.AutomaticEnv()

	// Build configuration
	cfg := &Config{
		Server: ServerConfig{
			Port: v.GetString("PORT"),
			Env:  v.GetString("ENV"),
		},
		Database: DatabaseConfig{
			Driver:      strings.ToLower(v.GetString("STORE_DRIVER")),
			Host:        v.GetString("DB_HOST"),
			Port:        v.GetString("DB_PORT"),
			Name:        v.GetString("DB_NAME"),
			User:        v.GetString("DB_USER"),
			Password:    v.GetString("DB_PASSWORD"),
			PoolMin:     v.GetInt("DB_POOL_MIN"),
			PoolMax:     v.GetInt("DB_POOL_MAX"),
			AutoMigrate: v.GetBool("DB_AUTO_MIGRATE"),
		},
		CORS: CORSConfig{
			Origins: parseOrigins(v.GetString("CORS_ORIGINS")),
		},
		TagSync: TagSyncConfig{
			Enabled:    v.GetBool("TAGSYNC_ENABLED"),
			BaseURL:    strings.TrimRight(v.GetString("TAGSYNC_BASE_URL"), "/"),
			APIKey:     v.GetString("TAGSYNC_API_KEY"),
			Timeout:    v.GetDuration("TAGSYNC_TIMEOUT"),
			RetryCount: v.GetInt("TAGSYNC_RETRY_COUNT"),
		},
		Scheduler: SchedulerConfig{
			Enabled:           v.GetBool("SCHEDULER_ENABLED"),
			SyncInterval:      v.GetDuration("SYNC_INTERVAL"),
			AnalyticsInterval: v.GetDuration("ANALYTICS_INTERVAL"),
			SystemActorID:     v.GetInt64("SYSTEM_ACTOR_ID"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
			LockTTL:  v.GetDuration("LOCK_TTL"),
		},
		Metrics: MetricsConfig{
			Path: v.GetString("METRICS_PATH"),
		},
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration is present and valid.
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("PORT is required")
	}

	// Validate database config
	switch c.Database.Driver {
	case DriverMemory:
	case DriverPostgres:
		if err := c.Database.validate(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", DriverPostgres, DriverMemory, c.Database.Driver)
	}

	// Validate CORS config
	if len(c.CORS.Origins) == 0 {
		return fmt.Errorf("CORS_ORIGINS is required")
	}

	// Validate tag sync config
	if c.TagSync.Enabled && c.TagSync.BaseURL == "" {
		return fmt.Errorf("TAGSYNC_BASE_URL is required when TAGSYNC_ENABLED is true")
	}
	if c.TagSync.Timeout <= 0 {
		return fmt.Errorf("TAGSYNC_TIMEOUT must be positive")
	}
	if c.TagSync.RetryCount < 0 {
		return fmt.Errorf("TAGSYNC_RETRY_COUNT must be non-negative")
	}

	// Validate scheduler config
	if c.Scheduler.SyncInterval <= 0 {
		return fmt.Errorf("SYNC_INTERVAL must be positive")
	}
	if c.Scheduler.AnalyticsInterval <= 0 {
		return fmt.Errorf("ANALYTICS_INTERVAL must be positive")
	}
	if c.Scheduler.SystemActorID <= 0 {
		return fmt.Errorf("SYSTEM_ACTOR_ID must be positive")
	}

	if c.Redis.LockTTL <= 0 {
		return fmt.Errorf("LOCK_TTL must be positive")
	}
	if c.Metrics.Path == "" || !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("METRICS_PATH must start with /")
	}

	return nil
}

func (d DatabaseConfig) validate() error {
	if d.Host == "" {
		return fmt.Errorf("DB_HOST is required")
	}
	if d.Port == "" {
		return fmt.Errorf("DB_PORT is required")
	}
	if d.Name == "" {
		return fmt.Errorf("DB_NAME is required")
	}
	if d.User == "" {
		return fmt.Errorf("DB_USER is required")
	}
	if d.Password == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if d.PoolMin < 0 {
		return fmt.Errorf("DB_POOL_MIN must be non-negative")
	}
	if d.PoolMax < 1 {
		return fmt.Errorf("DB_POOL_MAX must be at least 1")
	}
	if d.PoolMin > d.PoolMax {
		return fmt.Errorf("DB_POOL_MIN must be less than or equal to DB_POOL_MAX")
	}
	return nil
}

// DSN builds the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		d.User,
		d.Password,
		d.Host,
		d.Port,
		d.Name,
	)
}

// parseOrigins splits a comma-separated string of origins into a slice.
func parseOrigins(origins string) []string {
	if origins == "" {
		return []string{}
	}

	parts := strings.Split(origins, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
