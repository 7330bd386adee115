package outbox

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/memento-ai/memento/internal/config"
)

func TestReadKnobs_UsesConfiguredBaseline(t *testing.T) {
	k := readKnobs(config.DefaultConfig().Outbox)

	assert.Equal(t, 120, k.LeaseSeconds)
	assert.Equal(t, 5, k.RetryPolicy.MaxAttempts)
	assert.Equal(t, 5*time.Second, k.RetryPolicy.BaseDelay)
	assert.Equal(t, 600*time.Second, k.RetryPolicy.MaxDelay)
	assert.Equal(t, 5, k.BatchSize)
	assert.Equal(t, 2*time.Second, k.PollInterval)
	assert.Equal(t, time.Minute, k.MetricsInterval)
}

func TestReadKnobs_ConfigValuesFlowThrough(t *testing.T) {
	cfg := config.DefaultConfig().Outbox
	cfg.LeaseSeconds = 45
	cfg.BatchSize = 12
	cfg.PollInterval = 250 * time.Millisecond

	k := readKnobs(cfg)
	assert.Equal(t, 45, k.LeaseSeconds)
	assert.Equal(t, 12, k.BatchSize)
	assert.Equal(t, 250*time.Millisecond, k.PollInterval)
}

func TestReadKnobs_EnvOverridesConfig(t *testing.T) {
	t.Setenv("OUTBOX_LEASE_SECONDS", "30")
	t.Setenv("OUTBOX_BATCH_SIZE", "20")
	t.Setenv("OUTBOX_POLL_INTERVAL_MS", "500")

	k := readKnobs(config.DefaultConfig().Outbox)
	assert.Equal(t, 30, k.LeaseSeconds)
	assert.Equal(t, 20, k.BatchSize)
	assert.Equal(t, 500*time.Millisecond, k.PollInterval)
}

func TestEnvIntDefault_IgnoresGarbage(t *testing.T) {
	t.Setenv("OUTBOX_BATCH_SIZE", "not-a-number")
	assert.Equal(t, 5, envIntDefault("OUTBOX_BATCH_SIZE", 5))

	t.Setenv("OUTBOX_BATCH_SIZE", "  7 ")
	assert.Equal(t, 7, envIntDefault("OUTBOX_BATCH_SIZE", 5))
}
