package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the adrecon service.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	ClickHouse ClickHouseConfig
	Auth       AuthConfig
	RateLimit  RateLimitConfig
	Log        LogConfig
	Metrics    MetricsConfig
	Engine     EngineConfig
}

type ServerConfig struct {
	Addr            string
	Env             string
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
	MinConns int
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// ClickHouseConfig configures the optional spend-row archive.
type ClickHouseConfig struct {
	Enabled  bool
	Addr     string
	Database string
	User     string
	Password string
	Table    string
}

type AuthConfig struct {
	Enabled   bool
	MasterKey string
	SkipPaths []string
}

type RateLimitConfig struct {
	Enabled bool
	RPS     float64
	Burst   int
}

type LogConfig struct {
	Level  string
	Format string
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool
	Path    string
}

// EngineConfig tunes the reconciliation engine.
type EngineConfig struct {
	// UserScope restricts reconciliation to one account's data.
	UserScope string
	// DebounceWindow bounds recomputation cost: triggers arriving within
	// the window fold into one pass.
	DebounceWindow time.Duration
	// DefaultRate is the hard fallback USD -> local conversion rate.
	DefaultRate float64
	// SnapshotTTL bounds how long a cached snapshot stays in Redis.
	SnapshotTTL time.Duration
	// ProductPatterns are the ordered regexes the loose classification
	// policy matches product names with (review views only).
	ProductPatterns []string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Addr:            getEnv("ADRECON_HTTP_ADDR", ":8080"),
			Env:             getEnv("ADRECON_ENV", "development"),
			ShutdownTimeout: getDurationEnv("ADRECON_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Host:     getEnv("ADRECON_DB_HOST", "localhost"),
			Port:     getIntEnv("ADRECON_DB_PORT", 5432),
			User:     getEnv("ADRECON_DB_USER", "adrecon"),
			Password: getEnv("ADRECON_DB_PASSWORD", "adrecon_secret"),
			DBName:   getEnv("ADRECON_DB_NAME", "adrecon"),
			SSLMode:  getEnv("ADRECON_DB_SSLMODE", "disable"),
			MaxConns: getIntEnv("ADRECON_DB_MAX_CONNS", 25),
			MinConns: getIntEnv("ADRECON_DB_MIN_CONNS", 5),
		},
		Redis: RedisConfig{
			Addr:     getEnv("ADRECON_REDIS_ADDR", "localhost:6379"),
			Password: getEnv("ADRECON_REDIS_PASSWORD", ""),
			DB:       getIntEnv("ADRECON_REDIS_DB", 0),
		},
		ClickHouse: ClickHouseConfig{
			Enabled:  getBoolEnv("ADRECON_CLICKHOUSE_ENABLED", false),
			Addr:     getEnv("ADRECON_CLICKHOUSE_ADDR", "localhost:9000"),
			Database: getEnv("ADRECON_CLICKHOUSE_DATABASE", "adrecon"),
			User:     getEnv("ADRECON_CLICKHOUSE_USER", "default"),
			Password: getEnv("ADRECON_CLICKHOUSE_PASSWORD", ""),
			Table:    getEnv("ADRECON_CLICKHOUSE_TABLE", "spend_rows"),
		},
		Auth: AuthConfig{
			Enabled:   getBoolEnv("ADRECON_AUTH_ENABLED", false),
			MasterKey: getEnv("ADRECON_API_KEY_MASTER", ""),
			SkipPaths: getSliceEnv("ADRECON_AUTH_SKIP_PATHS", []string{"/health", "/metrics"}),
		},
		RateLimit: RateLimitConfig{
			Enabled: getBoolEnv("ADRECON_RATE_LIMIT_ENABLED", true),
			RPS:     getFloatEnv("ADRECON_RATE_LIMIT_RPS", 100),
			Burst:   getIntEnv("ADRECON_RATE_LIMIT_BURST", 20),
		},
		Log: LogConfig{
			Level:  getEnv("ADRECON_LOG_LEVEL", "info"),
			Format: getEnv("ADRECON_LOG_FORMAT", "json"),
		},
		Metrics: MetricsConfig{
			Enabled: getBoolEnv("ADRECON_METRICS_ENABLED", true),
			Path:    getEnv("ADRECON_METRICS_PATH", "/metrics"),
		},
		Engine: EngineConfig{
			UserScope:       getEnv("ADRECON_USER_SCOPE", ""),
			DebounceWindow:  getDurationEnv("ADRECON_DEBOUNCE_WINDOW", 750*time.Millisecond),
			DefaultRate:     getFloatEnv("ADRECON_DEFAULT_RATE", 10.0),
			SnapshotTTL:     getDurationEnv("ADRECON_SNAPSHOT_TTL", time.Hour),
			ProductPatterns: getSliceEnv("ADRECON_PRODUCT_PATTERNS", nil),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Auth.Enabled && c.Auth.MasterKey == "" {
		return fmt.Errorf("ADRECON_API_KEY_MASTER is required when auth is enabled")
	}
	if c.Engine.DebounceWindow <= 0 {
		return fmt.Errorf("ADRECON_DEBOUNCE_WINDOW must be positive")
	}
	if c.Engine.DefaultRate <= 0 {
		return fmt.Errorf("ADRECON_DEFAULT_RATE must be positive")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// Helper functions for reading environment variables

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getIntEnv(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getFloatEnv(key string, def float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getBoolEnv(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getDurationEnv(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getSliceEnv(key string, def []string) []string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				result = append(result, p)
			}
		}
		return result
	}
	return def
}
