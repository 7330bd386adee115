package embedding

import (
	"context"
	"crypto/sha256"
	"sort"
	"strings"
	"unicode"
)

// FakeEmbedder returns deterministic vectors derived from the text's token
// multiset, so equal texts embed identically and token order is irrelevant.
type FakeEmbedder struct {
	dims int
}

var _ ContextualEmbedder = (*FakeEmbedder)(nil)

// NewFakeEmbedder creates a fake embedder producing dims-wide vectors.
func NewFakeEmbedder(dims int) *FakeEmbedder {
	if dims <= 0 {
		dims = 8
	}
	return &FakeEmbedder{dims: dims}
}

// Embed derives each vector from SHA-256 of the lowercased, sorted,
// alphanumeric tokens of the text, with each byte mapped into [-1, 1].
func (f *FakeEmbedder) Embed(_ context.Context, req EmbedRequest) (*EmbedResult, error) {
	vectors := make([][]float32, len(req.Texts))
	for i, text := range req.Texts {
		vectors[i] = f.vector(text)
	}
	return &EmbedResult{
		Vectors:    vectors,
		Dimensions: f.dims,
		Provider:   ProviderFake,
		Model:      "fake",
	}, nil
}

// EmbedDocumentChunks embeds each chunk independently; the fake has no
// document context to add.
func (f *FakeEmbedder) EmbedDocumentChunks(ctx context.Context, chunks []string) (*EmbedResult, error) {
	return f.Embed(ctx, EmbedRequest{Texts: chunks, InputType: InputPassage})
}

// Health always succeeds.
func (f *FakeEmbedder) Health(_ context.Context) error { return nil }

// Provider returns the provider name.
func (f *FakeEmbedder) Provider() string { return ProviderFake }

// Model returns the model name.
func (f *FakeEmbedder) Model() string { return "fake" }

func (f *FakeEmbedder) vector(text string) []float32 {
	tokens := tokenize(text)
	sort.Strings(tokens)
	digest := sha256.Sum256([]byte(strings.Join(tokens, " ")))

	vec := make([]float32, f.dims)
	for i := range vec {
		b := digest[i%len(digest)]
		vec[i] = float32(b)/127.5 - 1
	}
	return vec
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
