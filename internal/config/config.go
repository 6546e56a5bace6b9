package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Engines accepted by ATTRIBUTION_ENGINE.
const (
	EngineClickHouse = "clickhouse"
	EnginePostgres   = "postgres"
	EngineMemory     = "memory"
)

// maxWindowDays keeps window*86400 inside int32 for the PostgreSQL engine.
const maxWindowDays = 24855

// Config holds all configuration for the attribution service.
type Config struct {
	Server     ServerConfig
	Engine     string
	ClickHouse ClickHouseConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Query      QueryConfig
	Auth       AuthConfig
	RateLimit  RateLimitConfig
	Log        LogConfig
	Metrics    MetricsConfig
}

type ServerConfig struct {
	Addr            string
	Env             string
	ShutdownTimeout time.Duration
}

// ClickHouseConfig configures the primary event store.
type ClickHouseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Database     string
	Secure       bool
	SkipVerify   bool
	DialTimeout  time.Duration
	MaxOpenConns int
	MaxIdleConns int
}

// Addr returns host:port.
func (c ClickHouseConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
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

// RedisConfig configures the session result store.
type RedisConfig struct {
	Enabled   bool
	Addr      string
	Password  string
	DB        int
	ResultTTL time.Duration
}

// QueryConfig bounds attribution requests.
type QueryConfig struct {
	// Timeout caps a single attribution query.
	Timeout       time.Duration
	MinWindowDays int
	MaxWindowDays int
	MinDate       time.Time
	CatalogPath   string
	FixturesPath  string
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

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	minDate, err := time.Parse("2006-01-02", getEnv("ATTRIBUTION_MIN_DATE", "2025-01-01"))
	if err != nil {
		return nil, fmt.Errorf("ATTRIBUTION_MIN_DATE: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Addr:            getEnv("ATTRIBUTION_HTTP_ADDR", ":8080"),
			Env:             getEnv("ATTRIBUTION_ENV", "development"),
			ShutdownTimeout: getDurationEnv("ATTRIBUTION_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Engine: strings.ToLower(getEnv("ATTRIBUTION_ENGINE", EngineClickHouse)),
		ClickHouse: ClickHouseConfig{
			Host:         getEnv("ATTRIBUTION_CH_HOST", "localhost"),
			Port:         getIntEnv("ATTRIBUTION_CH_PORT", 9440),
			User:         getEnv("ATTRIBUTION_CH_USER", "default"),
			Password:     getEnv("ATTRIBUTION_CH_PASSWORD", ""),
			Database:     getEnv("ATTRIBUTION_CH_DATABASE", "db1"),
			Secure:       getBoolEnv("ATTRIBUTION_CH_SECURE", true),
			SkipVerify:   getBoolEnv("ATTRIBUTION_CH_SKIP_VERIFY", true),
			DialTimeout:  getDurationEnv("ATTRIBUTION_CH_DIAL_TIMEOUT", 10*time.Second),
			MaxOpenConns: getIntEnv("ATTRIBUTION_CH_MAX_OPEN_CONNS", 5),
			MaxIdleConns: getIntEnv("ATTRIBUTION_CH_MAX_IDLE_CONNS", 2),
		},
		Database: DatabaseConfig{
			Host:     getEnv("ATTRIBUTION_DB_HOST", "localhost"),
			Port:     getIntEnv("ATTRIBUTION_DB_PORT", 5432),
			User:     getEnv("ATTRIBUTION_DB_USER", "attribution"),
			Password: getEnv("ATTRIBUTION_DB_PASSWORD", ""),
			DBName:   getEnv("ATTRIBUTION_DB_NAME", "events"),
			SSLMode:  getEnv("ATTRIBUTION_DB_SSLMODE", "disable"),
			MaxConns: getIntEnv("ATTRIBUTION_DB_MAX_CONNS", 5),
			MinConns: getIntEnv("ATTRIBUTION_DB_MIN_CONNS", 0),
		},
		Redis: RedisConfig{
			Enabled:   getBoolEnv("ATTRIBUTION_REDIS_ENABLED", false),
			Addr:      getEnv("ATTRIBUTION_REDIS_ADDR", "localhost:6379"),
			Password:  getEnv("ATTRIBUTION_REDIS_PASSWORD", ""),
			DB:        getIntEnv("ATTRIBUTION_REDIS_DB", 0),
			ResultTTL: getDurationEnv("ATTRIBUTION_RESULT_TTL", 24*time.Hour),
		},
		Query: QueryConfig{
			Timeout:       getDurationEnv("ATTRIBUTION_QUERY_TIMEOUT", 60*time.Second),
			MinWindowDays: getIntEnv("ATTRIBUTION_MIN_WINDOW_DAYS", 7),
			MaxWindowDays: getIntEnv("ATTRIBUTION_MAX_WINDOW_DAYS", 365),
			MinDate:       minDate,
			CatalogPath:   getEnv("ATTRIBUTION_CATALOG_PATH", ""),
			FixturesPath:  getEnv("ATTRIBUTION_FIXTURES_PATH", ""),
		},
		Auth: AuthConfig{
			Enabled:   getBoolEnv("ATTRIBUTION_AUTH_ENABLED", false),
			MasterKey: getEnv("ATTRIBUTION_API_KEY_MASTER", ""),
			SkipPaths: getSliceEnv("ATTRIBUTION_AUTH_SKIP_PATHS", []string{"/health", "/metrics"}),
		},
		RateLimit: RateLimitConfig{
			Enabled: getBoolEnv("ATTRIBUTION_RATE_LIMIT_ENABLED", true),
			RPS:     getFloatEnv("ATTRIBUTION_RATE_LIMIT_RPS", 5),
			Burst:   getIntEnv("ATTRIBUTION_RATE_LIMIT_BURST", 10),
		},
		Log: LogConfig{
			Level:  getEnv("ATTRIBUTION_LOG_LEVEL", "info"),
			Format: getEnv("ATTRIBUTION_LOG_FORMAT", "json"),
		},
		Metrics: MetricsConfig{
			Enabled: getBoolEnv("ATTRIBUTION_METRICS_ENABLED", true),
			Path:    getEnv("ATTRIBUTION_METRICS_PATH", "/metrics"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	switch c.Engine {
	case EngineClickHouse, EnginePostgres, EngineMemory:
	default:
		return fmt.Errorf("ATTRIBUTION_ENGINE must be one of %s, %s, %s; got %q",
			EngineClickHouse, EnginePostgres, EngineMemory, c.Engine)
	}
	if c.Query.MinWindowDays < 1 {
		return fmt.Errorf("ATTRIBUTION_MIN_WINDOW_DAYS must be at least 1")
	}
	if c.Query.MaxWindowDays < c.Query.MinWindowDays || c.Query.MaxWindowDays > maxWindowDays {
		return fmt.Errorf("ATTRIBUTION_MAX_WINDOW_DAYS must be between ATTRIBUTION_MIN_WINDOW_DAYS and %d", maxWindowDays)
	}
	if c.Query.Timeout <= 0 {
		return fmt.Errorf("ATTRIBUTION_QUERY_TIMEOUT must be positive")
	}
	if c.Query.FixturesPath != "" && c.Engine != EngineMemory {
		return fmt.Errorf("ATTRIBUTION_FIXTURES_PATH is only supported by the memory engine")
	}
	if c.Auth.Enabled && c.Auth.MasterKey == "" {
		return fmt.Errorf("ATTRIBUTION_API_KEY_MASTER is required when auth is enabled")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
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
