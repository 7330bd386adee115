package embedding

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memento-ai/memento/internal/config"
	"github.com/memento-ai/memento/internal/storage"
)

func profileFor(provider, model string, dims int, pc map[string]interface{}) *storage.EmbeddingProfile {
	p := &storage.EmbeddingProfile{Provider: provider, Model: model, Dims: dims}
	if pc != nil {
		raw, _ := json.Marshal(pc)
		p.ProviderConfig = raw
	}
	return p
}

func TestNewFromProfile_FakeProvider(t *testing.T) {
	e, err := NewFromProfile(profileFor(ProviderFake, "fake", 32, nil), config.EmbedderConfig{})
	require.NoError(t, err)
	assert.Equal(t, ProviderFake, e.Provider())
}

func TestNewFromProfile_GlobalFakeOverride(t *testing.T) {
	profile := profileFor(ProviderVoyage, "voyage-3.5", 1024, nil)
	e, err := NewFromProfile(profile, config.EmbedderConfig{UseFake: true})
	require.NoError(t, err)
	assert.Equal(t, ProviderFake, e.Provider())
}

func TestNewFromProfile_VoyageNeedsKey(t *testing.T) {
	profile := profileFor(ProviderVoyage, "voyage-3.5", 1024, nil)
	_, err := NewFromProfile(profile, config.EmbedderConfig{})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestNewFromProfile_KeyFromEnv(t *testing.T) {
	t.Setenv("TEST_VOYAGE_KEY", "secret")
	profile := profileFor(ProviderVoyage, "voyage-3.5", 1024,
		map[string]interface{}{"api_key_env": "TEST_VOYAGE_KEY"})

	e, err := NewFromProfile(profile, config.EmbedderConfig{})
	require.NoError(t, err)
	assert.Equal(t, ProviderVoyage, e.Provider())
	assert.Equal(t, "voyage-3.5", e.Model())
}

func TestNewFromProfile_OpenAINeedsBaseURL(t *testing.T) {
	profile := profileFor(ProviderOpenAICompat, "m", 256, nil)
	_, err := NewFromProfile(profile, config.EmbedderConfig{})
	assert.ErrorIs(t, err, ErrNotConfigured)

	e, err := NewFromProfile(profile, config.EmbedderConfig{BaseURL: "http://localhost:11434/v1"})
	require.NoError(t, err)
	assert.Equal(t, ProviderOpenAICompat, e.Provider())
}

func TestNewFromProfile_UnknownProvider(t *testing.T) {
	profile := profileFor("cohere", "m", 256, nil)
	_, err := NewFromProfile(profile, config.EmbedderConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown embedding provider")
}

func TestNewFromProfile_BadProviderConfig(t *testing.T) {
	profile := profileFor(ProviderJina, "m", 256, nil)
	profile.ProviderConfig = json.RawMessage(`{not json`)
	_, err := NewFromProfile(profile, config.EmbedderConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "provider_config")
}
