package embedding

import (
	"fmt"
	"os"

	"github.com/memento-ai/memento/internal/config"
	"github.com/memento-ai/memento/internal/storage"
)

// NewFromProfile builds the embedder for a profile, applying global
// environment overrides. The fake short-circuits everything else.
func NewFromProfile(profile *storage.EmbeddingProfile, cfg config.EmbedderConfig) (Embedder, error) {
	pc, err := profile.Config()
	if err != nil {
		return nil, fmt.Errorf("parse provider_config: %w", err)
	}

	if cfg.UseFake || pc.UseFake || profile.Provider == ProviderFake {
		return NewFakeEmbedder(profile.Dims), nil
	}

	baseURL := pc.BaseURL
	if cfg.BaseURL != "" {
		baseURL = cfg.BaseURL
	}

	apiKey := cfg.APIKey
	if apiKey == "" && pc.APIKeyEnv != "" {
		apiKey = os.Getenv(pc.APIKeyEnv)
	}

	switch profile.Provider {
	case ProviderVoyage:
		if apiKey == "" {
			return nil, ErrNotConfigured
		}
		return NewVoyageClient(baseURL, apiKey, profile.Model, pc.OutputDimension), nil

	case ProviderJina:
		if apiKey == "" {
			return nil, ErrNotConfigured
		}
		return NewJinaClient(baseURL, apiKey, profile.Model, pc.OutputDimension, pc.LateChunking), nil

	case ProviderOpenAICompat:
		if baseURL == "" {
			return nil, ErrNotConfigured
		}
		return NewOpenAICompatClient(baseURL, apiKey, profile.Model, pc.OutputDimension), nil

	default:
		return nil, fmt.Errorf("unknown embedding provider %q", profile.Provider)
	}
}
