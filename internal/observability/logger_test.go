package observability

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_StampsServiceName(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(LogConfig{Level: "info", Format: "json", Output: &buf, ServiceName: "memento-api"})
	log.Info().Msg("listening")

	out := buf.String()
	require.NotEmpty(t, out)
	assert.Contains(t, out, `"service":"memento-api"`)
	assert.Contains(t, out, `"message":"listening"`)
}

func TestNewLogger_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(LogConfig{Level: "warn", Output: &buf, ServiceName: "memento-worker"})
	log.Info().Msg("dropped")
	log.Warn().Msg("kept")

	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "kept")
}

func TestLogger_WithWorkerScopesFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(LogConfig{Level: "info", Output: &buf, ServiceName: "memento-worker"})
	log.WithWorker("host-1234").Info().Msg("claimed")

	assert.Contains(t, buf.String(), `"worker_id":"host-1234"`)
	assert.Contains(t, buf.String(), `"service":"memento-worker"`)
}
