// Package search implements lexical, semantic, and hybrid retrieval over
// memory chunks.
package search

import (
	"github.com/google/uuid"
)

// Default retrieval knobs.
const (
	DefaultTopK          = 40
	DefaultMaxChunkChars = 300
	DefaultTrigramWeight = 0.3
	DefaultRRFK          = 60
	DefaultBoost         = 0.1
	DefaultMaxChunks     = 3
)

// Filters narrow a search to a subset of items. A zero value matches all
// active items of the project.
type Filters struct {
	Kinds      []string `json:"kinds,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	DocClasses []string `json:"doc_classes,omitempty"`
	PinnedOnly bool     `json:"pinned_only,omitempty"`
}

// Empty reports whether the filters constrain nothing.
func (f Filters) Empty() bool {
	return len(f.Kinds) == 0 && len(f.Tags) == 0 && len(f.DocClasses) == 0 && !f.PinnedOnly
}

// Options tunes a single lexical or semantic call.
type Options struct {
	TopK          int
	MaxChunkChars int
	TrigramWeight float64
}

// withDefaults fills zero fields with the package defaults.
func (o Options) withDefaults() Options {
	if o.TopK <= 0 {
		o.TopK = DefaultTopK
	}
	if o.MaxChunkChars <= 0 {
		o.MaxChunkChars = DefaultMaxChunkChars
	}
	if o.TrigramWeight <= 0 {
		o.TrigramWeight = DefaultTrigramWeight
	}
	return o
}

// Match is one chunk-level search hit with its per-engine scores.
type Match struct {
	ChunkID       uuid.UUID `json:"chunk_id"`
	ItemID        uuid.UUID `json:"item_id"`
	VersionID     uuid.UUID `json:"version_id"`
	Title         string    `json:"title"`
	Kind          string    `json:"kind"`
	CanonicalKey  string    `json:"canonical_key,omitempty"`
	DocClass      string    `json:"doc_class,omitempty"`
	Pinned        bool      `json:"pinned"`
	HeadingPath   []string  `json:"heading_path,omitempty"`
	SectionAnchor string    `json:"section_anchor,omitempty"`
	Excerpt       string    `json:"excerpt"`

	LexicalScore float64 `json:"lexical_score,omitempty"`
	TrigramScore float64 `json:"trigram_score,omitempty"`
	Distance     float64 `json:"distance,omitempty"`
	Score        float64 `json:"score"`
}

// SemanticResult carries semantic matches or the reason none were produced.
// An empty Reason with no matches simply means nothing was close enough.
type SemanticResult struct {
	Matches []*Match `json:"matches"`
	Reason  string   `json:"reason,omitempty"`
}

// Reasons a semantic search can come back empty without being an error.
const (
	ReasonNoActiveProfile       = "no_active_profile"
	ReasonEmbedderNotConfigured = "embedder_not_configured"
	ReasonEmptyEmbedding        = "empty_embedding"
)

// ItemResult groups the fused chunk hits of a single item.
type ItemResult struct {
	ItemID       uuid.UUID `json:"item_id"`
	Title        string    `json:"title"`
	Kind         string    `json:"kind"`
	CanonicalKey string    `json:"canonical_key,omitempty"`
	Pinned       bool      `json:"pinned"`
	Score        float64   `json:"score"`
	Chunks       []*Match  `json:"chunks"`
}
