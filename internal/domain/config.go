package domain

import (
	"time"
)

// Config holds the complete Kestrel configuration.
type Config struct {
	Server ServerConfig `json:"server"`
	Store  StoreConfig  `json:"store"`
	Cache  CacheConfig  `json:"cache"`
	Alerts AlertsConfig `json:"alerts"`

	Logging LoggingConfig `json:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host" env:"KESTREL_HOST"`
	Port         int    `json:"port" env:"KESTREL_PORT"`
	ReadTimeout  int    `json:"readTimeout" env:"KESTREL_READ_TIMEOUT"`   // seconds
	WriteTimeout int    `json:"writeTimeout" env:"KESTREL_WRITE_TIMEOUT"` // seconds
}

// StoreConfig points at the ClickHouse HTTP interface.
//
// Either URL alone, or ReadURL/WriteURL for split read/write topologies.
// All empty means analytics are disabled for this deployment: the store
// degrades to a no-op (queries return empty, writes succeed without
// writing) instead of failing at construction.
type StoreConfig struct {
	URL      string `json:"url" env:"KESTREL_CLICKHOUSE_URL"`
	ReadURL  string `json:"readUrl" env:"KESTREL_CLICKHOUSE_READ_URL"`
	WriteURL string `json:"writeUrl" env:"KESTREL_CLICKHOUSE_WRITE_URL"`

	Timeout time.Duration `json:"timeout" env:"KESTREL_CLICKHOUSE_TIMEOUT"`
}

// CacheConfig holds configuration for the derived-metric cache.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string `json:"type" env:"KESTREL_CACHE"`

	LocalMaxSize int           `json:"localMaxSize" env:"KESTREL_CACHE_MAX_SIZE"`
	MetricTTL    time.Duration `json:"metricTtl" env:"KESTREL_CACHE_METRIC_TTL"`

	RedisAddr     string `json:"redisAddr" env:"KESTREL_REDIS_ADDR"`
	RedisPassword string `json:"redisPassword" env:"KESTREL_REDIS_PASSWORD"`
	RedisDB       int    `json:"redisDb" env:"KESTREL_REDIS_DB"`
}

// AlertsConfig holds configuration for the alert-rule store.
type AlertsConfig struct {
	SQLitePath string `json:"sqlitePath" env:"KESTREL_ALERTS_DB"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level" env:"KESTREL_LOG_LEVEL"`   // debug, info, warn, error
	Format string `json:"format" env:"KESTREL_LOG_FORMAT"` // json, text
}

// DefaultConfig returns a local-development configuration: in-memory
// cache, embedded alert store, no ClickHouse endpoint (no-op store).
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Store: StoreConfig{
			Timeout: 30 * time.Second,
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			MetricTTL:    time.Minute,
		},
		Alerts: AlertsConfig{
			SQLitePath: "./kestrel.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
