package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8087, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Cache.Driver)
	assert.Equal(t, 32, cfg.Embedder.BatchSize)
	assert.Equal(t, 5, cfg.Outbox.MaxAttempts)
	assert.Equal(t, 5*time.Minute, cfg.Search.BM25CapsTTL)
	assert.True(t, cfg.Search.CacheResults)
	assert.Equal(t, int64(2<<20), cfg.Engine.MaxFileBytes)
	assert.Equal(t, "info", cfg.Observability.LogLevel)
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
server:
  port: 9090
database:
  url: postgres://localhost/memento_test
search:
  cache_results: false
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "postgres://localhost/memento_test", cfg.Database.URL)
	assert.False(t, cfg.Search.CacheResults)
	// Untouched sections keep their defaults.
	assert.Equal(t, "memory", cfg.Cache.Driver)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config file")
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9999")
	t.Setenv("DATABASE_URL", "postgres://db/prod")
	t.Setenv("EMBEDDER_USE_FAKE", "true")
	t.Setenv("OUTBOX_POLL_INTERVAL_MS", "250")
	t.Setenv("MEMENTO_MAX_CONCURRENT_OPS", "16")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "postgres://db/prod", cfg.Database.URL)
	assert.True(t, cfg.Embedder.UseFake)
	assert.Equal(t, 250*time.Millisecond, cfg.Outbox.PollInterval)
	assert.Equal(t, 16, cfg.Engine.MaxConcurrentOps)
}

func TestLoad_RedisURLSwitchesDriver(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://cache.internal:6380")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "redis", cfg.Cache.Driver)
	assert.Equal(t, "cache.internal:6380", cfg.Cache.Redis.Addr)
}

func TestLoad_ClampsEmbedderKnobs(t *testing.T) {
	t.Setenv("EMBED_BATCH_SIZE", "10000")
	t.Setenv("EMBED_CONCURRENCY", "0")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 256, cfg.Embedder.BatchSize)
	assert.Equal(t, 1, cfg.Embedder.Concurrency)
}

func TestValidate_RejectsBadValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.Port = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Cache.Driver = "memcached"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Embedder.Concurrency = 9
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Outbox.MaxAttempts = 0
	assert.Error(t, cfg.Validate())
}

func TestEnvBool(t *testing.T) {
	t.Setenv("FLAG", "on")
	v, ok := envBool("FLAG")
	assert.True(t, ok)
	assert.True(t, v)

	t.Setenv("FLAG", "OFF")
	v, ok = envBool("FLAG")
	assert.True(t, ok)
	assert.False(t, v)

	t.Setenv("FLAG", "maybe")
	_, ok = envBool("FLAG")
	assert.False(t, ok)
}
