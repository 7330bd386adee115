// Package config provides unified configuration loading for the memory engine.
// Supports YAML files, environment variables, and programmatic overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the memory engine.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Cache         CacheConfig         `yaml:"cache"`
	Embedder      EmbedderConfig      `yaml:"embedder"`
	Outbox        OutboxConfig        `yaml:"outbox"`
	Search        SearchConfig        `yaml:"search"`
	Engine        EngineConfig        `yaml:"engine"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
}

// DatabaseConfig holds Postgres connection settings.
type DatabaseConfig struct {
	URL             string        `yaml:"url"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// CacheConfig holds search-result cache settings.
type CacheConfig struct {
	Driver     string        `yaml:"driver"` // memory or redis
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"max_entries"`
	Redis      RedisConfig   `yaml:"redis"`
}

// RedisConfig holds Redis-specific settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// EmbedderConfig holds embedding provider settings and job knobs.
type EmbedderConfig struct {
	UseFake            bool   `yaml:"use_fake"`
	BaseURL            string `yaml:"base_url"`
	APIKey             string `yaml:"api_key"`
	BatchSize          int    `yaml:"batch_size"`
	Concurrency        int    `yaml:"concurrency"`
	ContextualMaxChars int    `yaml:"contextual_max_chars"`
	ContextualMaxChunks int   `yaml:"contextual_max_chunks"`
	ContextualStrict   bool   `yaml:"contextual_strict"`
}

// OutboxConfig holds worker and lease settings.
type OutboxConfig struct {
	LeaseSeconds      int           `yaml:"lease_seconds"`
	RetryDelaySeconds int           `yaml:"retry_delay_seconds"`
	RetryMaxDelaySeconds int        `yaml:"retry_max_delay_seconds"`
	MaxAttempts       int           `yaml:"max_attempts"`
	BatchSize         int           `yaml:"batch_size"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	MetricsInterval   time.Duration `yaml:"metrics_interval"`
}

// SearchConfig holds retrieval settings.
type SearchConfig struct {
	BM25CapsTTL    time.Duration `yaml:"bm25_caps_ttl"`
	SkipIndexBuild bool          `yaml:"skip_index_build"`
	CacheResults   bool          `yaml:"cache_results"`
}

// EngineConfig holds tool-facing limits.
type EngineConfig struct {
	MaxConcurrentOps int      `yaml:"max_concurrent_ops"` // 0 = unbounded
	AllowedRoots     []string `yaml:"allowed_roots"`
	MaxFileBytes     int64    `yaml:"max_file_bytes"`
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// Load reads configuration from a YAML file and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults for development.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8087,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     30 * time.Second,
			IdleTimeout:      120 * time.Second,
			GracefulShutdown: 10 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			ConnMaxIdleTime: time.Minute,
		},
		Cache: CacheConfig{
			Driver:     "memory",
			TTL:        time.Minute,
			MaxEntries: 10000,
			Redis: RedisConfig{
				Addr:     "localhost:6379",
				DB:       0,
				PoolSize: 10,
			},
		},
		Embedder: EmbedderConfig{
			BatchSize:           32,
			Concurrency:         2,
			ContextualMaxChars:  120000,
			ContextualMaxChunks: 120,
		},
		Outbox: OutboxConfig{
			LeaseSeconds:         120,
			RetryDelaySeconds:    5,
			RetryMaxDelaySeconds: 600,
			MaxAttempts:          5,
			BatchSize:            5,
			PollInterval:         2000 * time.Millisecond,
			MetricsInterval:      time.Minute,
		},
		Search: SearchConfig{
			BM25CapsTTL:  5 * time.Minute,
			CacheResults: true,
		},
		Engine: EngineConfig{
			MaxFileBytes: 2 << 20,
		},
		Observability: ObservabilityConfig{
			LogLevel:  "info",
			LogFormat: "json",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Cache.Driver != "memory" && c.Cache.Driver != "redis" {
		return fmt.Errorf("invalid cache driver: %s", c.Cache.Driver)
	}

	if c.Embedder.BatchSize < 1 || c.Embedder.BatchSize > 256 {
		return fmt.Errorf("embedder batch_size must be between 1 and 256")
	}

	if c.Embedder.Concurrency < 1 || c.Embedder.Concurrency > 8 {
		return fmt.Errorf("embedder concurrency must be between 1 and 8")
	}

	if c.Outbox.MaxAttempts < 1 {
		return fmt.Errorf("outbox max_attempts must be positive")
	}

	if c.Outbox.BatchSize < 1 {
		return fmt.Errorf("outbox batch_size must be positive")
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v, ok := envInt("SERVER_PORT"); ok {
		cfg.Server.Port = v
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v, ok := envInt("DB_POOL_MAX_OPEN"); ok {
		cfg.Database.MaxOpenConns = v
	}
	if v, ok := envInt("DB_POOL_MAX_IDLE"); ok {
		cfg.Database.MaxIdleConns = v
	}
	if v, ok := envSeconds("DB_POOL_CONN_MAX_LIFETIME"); ok {
		cfg.Database.ConnMaxLifetime = v
	}
	if v, ok := envSeconds("DB_POOL_CONN_MAX_IDLE_TIME"); ok {
		cfg.Database.ConnMaxIdleTime = v
	}

	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Cache.Driver = "redis"
		cfg.Cache.Redis.Addr = strings.TrimPrefix(v, "redis://")
	}

	if v, ok := envBool("EMBEDDER_USE_FAKE"); ok {
		cfg.Embedder.UseFake = v
	}
	if v := os.Getenv("EMBEDDER_BASE_URL"); v != "" {
		cfg.Embedder.BaseURL = v
	}
	if v := os.Getenv("EMBEDDER_API_KEY"); v != "" {
		cfg.Embedder.APIKey = v
	}
	if v, ok := envInt("EMBED_BATCH_SIZE"); ok {
		cfg.Embedder.BatchSize = clampInt(v, 1, 256)
	}
	if v, ok := envInt("EMBED_CONCURRENCY"); ok {
		cfg.Embedder.Concurrency = clampInt(v, 1, 8)
	}
	if v, ok := envInt("CONTEXTUAL_MAX_CHARS"); ok {
		cfg.Embedder.ContextualMaxChars = v
	}
	if v, ok := envInt("CONTEXTUAL_MAX_CHUNKS"); ok {
		cfg.Embedder.ContextualMaxChunks = v
	}
	if v, ok := envBool("CONTEXTUAL_STRICT"); ok {
		cfg.Embedder.ContextualStrict = v
	}

	if v, ok := envInt("OUTBOX_LEASE_SECONDS"); ok {
		cfg.Outbox.LeaseSeconds = v
	}
	if v, ok := envInt("OUTBOX_RETRY_DELAY_SECONDS"); ok {
		cfg.Outbox.RetryDelaySeconds = v
	}
	if v, ok := envInt("OUTBOX_RETRY_MAX_DELAY_SECONDS"); ok {
		cfg.Outbox.RetryMaxDelaySeconds = v
	}
	if v, ok := envInt("OUTBOX_MAX_ATTEMPTS"); ok {
		cfg.Outbox.MaxAttempts = v
	}
	if v, ok := envInt("OUTBOX_BATCH_SIZE"); ok {
		cfg.Outbox.BatchSize = v
	}
	if v, ok := envInt("OUTBOX_POLL_INTERVAL_MS"); ok {
		cfg.Outbox.PollInterval = time.Duration(v) * time.Millisecond
	}

	if v, ok := envSeconds("MEMENTO_BM25_CAPS_TTL_SECONDS"); ok {
		cfg.Search.BM25CapsTTL = v
	}
	if v, ok := envBool("MEMENTO_SKIP_INDEX_BUILD"); ok {
		cfg.Search.SkipIndexBuild = v
	}

	if v, ok := envInt("MEMENTO_MAX_CONCURRENT_OPS"); ok {
		cfg.Engine.MaxConcurrentOps = v
	}
	if v := os.Getenv("MEMENTO_ALLOWED_ROOTS"); v != "" {
		cfg.Engine.AllowedRoots = strings.Split(v, string(os.PathListSeparator))
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Observability.LogFormat = v
	}
}

func envInt(name string) (int, bool) {
	v := os.Getenv(name)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, false
	}
	return n, true
}

func envSeconds(name string) (time.Duration, bool) {
	n, ok := envInt(name)
	if !ok {
		return 0, false
	}
	return time.Duration(n) * time.Second, true
}

func envBool(name string) (bool, bool) {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(name)))
	switch v {
	case "1", "true", "yes", "on":
		return true, true
	case "0", "false", "no", "off":
		return false, true
	}
	return false, false
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
