// Package embedding provides a uniform contract over the supported
// embedding providers plus a deterministic fake for tests and offline use.
package embedding

import (
	"context"
	"errors"
)

// InputType distinguishes query embedding from passage embedding.
type InputType string

const (
	InputQuery   InputType = "query"
	InputPassage InputType = "passage"
)

// Provider names recognized by the factory.
const (
	ProviderVoyage       = "voyage"
	ProviderJina         = "jina"
	ProviderOpenAICompat = "openai_compat"
	ProviderFake         = "fake"
)

// ErrNotConfigured signals missing provider configuration (endpoint or
// credentials). Semantic search treats it as a soft empty result.
var ErrNotConfigured = errors.New("embedder not configured")

// EmbedRequest is one batched embedding call.
type EmbedRequest struct {
	Texts     []string
	InputType InputType
}

// EmbedResult carries the vectors and provenance of one call.
type EmbedResult struct {
	Vectors    [][]float32
	Dimensions int
	Provider   string
	Model      string
	TokensUsed int
}

// Embedder is the uniform provider contract.
type Embedder interface {
	Embed(ctx context.Context, req EmbedRequest) (*EmbedResult, error)
	Health(ctx context.Context) error
	Provider() string
	Model() string
}

// ContextualEmbedder is the optional capability of embedding all chunks of a
// document together so each vector carries whole-document context.
type ContextualEmbedder interface {
	Embedder
	EmbedDocumentChunks(ctx context.Context, chunks []string) (*EmbedResult, error)
}

// SupportsContextual reports whether e implements the contextual capability.
// Providers whose capability depends on the model expose a Contextual()
// probe that is consulted as well.
func SupportsContextual(e Embedder) (ContextualEmbedder, bool) {
	ce, ok := e.(ContextualEmbedder)
	if !ok {
		return nil, false
	}
	if probe, ok := e.(interface{ Contextual() bool }); ok && !probe.Contextual() {
		return nil, false
	}
	return ce, true
}
