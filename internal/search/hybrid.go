package search

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/memento-ai/memento/internal/observability"
)

// Query shapes that suggest code rather than prose.
var (
	braceRe      = regexp.MustCompile(`[{}()\[\];]`)
	dottedCallRe = regexp.MustCompile(`\w+\.\w+\(`)
	stackTraceRe = regexp.MustCompile(`(?:^|\s)at\s+\S+\(|goroutine \d+|\.\w+:\d+`)
)

// WeightsFor picks the fusion weight profile from the query shape.
func WeightsFor(query string) FusionWeights {
	if identifierHeavy(query) {
		return FusionWeights{Lexical: 0.3, Semantic: 0.3, Trigram: 0.4}
	}
	if len(strings.Fields(query)) >= 6 {
		return FusionWeights{Lexical: 0.25, Semantic: 0.7, Trigram: 0.05}
	}
	return FusionWeights{Lexical: 0.5, Semantic: 0.35, Trigram: 0.15}
}

func identifierHeavy(query string) bool {
	return braceRe.MatchString(query) ||
		dottedCallRe.MatchString(query) ||
		stackTraceRe.MatchString(query)
}

// HybridOptions tunes a hybrid search call.
type HybridOptions struct {
	TopK      int
	MaxChunks int
}

func (o HybridOptions) withDefaults() HybridOptions {
	if o.TopK <= 0 {
		o.TopK = DefaultTopK
	}
	if o.MaxChunks <= 0 {
		o.MaxChunks = DefaultMaxChunks
	}
	return o
}

// HybridResult is the item-grouped output of a hybrid search.
type HybridResult struct {
	Items          []*ItemResult `json:"items"`
	SemanticReason string        `json:"semantic_reason,omitempty"`
	Weights        FusionWeights `json:"weights"`
}

// Hybrid fans a query out to the lexical and semantic engines and fuses
// their results.
type Hybrid struct {
	lexical  *Lexical
	semantic *Semantic
	log      *observability.Logger
}

// NewHybrid creates the hybrid engine.
func NewHybrid(lexical *Lexical, semantic *Semantic, log *observability.Logger) *Hybrid {
	return &Hybrid{lexical: lexical, semantic: semantic, log: log}
}

// Search runs both engines concurrently, fuses, and groups chunk hits by
// item. One engine failing degrades to the other's results; both failing is
// an error.
func (h *Hybrid) Search(ctx context.Context, projectID uuid.UUID, query string, filters Filters, opts HybridOptions) (*HybridResult, error) {
	opts = opts.withDefaults()
	engineOpts := Options{TopK: opts.TopK}

	var (
		lexMatches []*Match
		semResult  *SemanticResult
		lexErr     error
		semErr     error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lexMatches, lexErr = h.lexical.Search(gctx, projectID, query, filters, engineOpts)
		return nil
	})
	g.Go(func() error {
		semResult, semErr = h.semantic.Search(gctx, projectID, query, filters, engineOpts)
		return nil
	})
	_ = g.Wait()

	if lexErr != nil && semErr != nil {
		return nil, fmt.Errorf("hybrid search: lexical: %v; semantic: %w", lexErr, semErr)
	}
	if lexErr != nil {
		h.log.Warn().Err(lexErr).Msg("lexical search failed, using semantic only")
	}
	if semErr != nil {
		h.log.Warn().Err(semErr).Msg("semantic search failed, using lexical only")
		semResult = &SemanticResult{}
	}

	weights := WeightsFor(query)
	fusionOpts := DefaultFusionOptions()
	fusionOpts.Weights = weights

	fused := Fuse(lexMatches, semResult.Matches, fusionOpts)

	result := &HybridResult{
		Items:          groupByItem(fused, opts.MaxChunks),
		SemanticReason: semResult.Reason,
		Weights:        weights,
	}
	return result, nil
}

// groupByItem folds the fused ordering into per-item results, keeping the
// top maxChunks chunks of each item. Items inherit their top chunk's score
// and the fused order.
func groupByItem(fused []*Match, maxChunks int) []*ItemResult {
	byItem := make(map[uuid.UUID]*ItemResult)
	var items []*ItemResult
	for _, m := range fused {
		item, ok := byItem[m.ItemID]
		if !ok {
			item = &ItemResult{
				ItemID:       m.ItemID,
				Title:        m.Title,
				Kind:         m.Kind,
				CanonicalKey: m.CanonicalKey,
				Pinned:       m.Pinned,
				Score:        m.Score,
			}
			byItem[m.ItemID] = item
			items = append(items, item)
		}
		if len(item.Chunks) < maxChunks {
			item.Chunks = append(item.Chunks, m)
		}
	}
	return items
}
