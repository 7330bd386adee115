package search

import (
	"bytes"
	"sort"

	"github.com/google/uuid"
)

// FusionWeights weights the ranked lists entering reciprocal-rank fusion.
type FusionWeights struct {
	Lexical  float64 `json:"lexical"`
	Semantic float64 `json:"semantic"`
	Trigram  float64 `json:"trigram"`
}

// FusionOptions tunes the fusion stage.
type FusionOptions struct {
	K              int
	Weights        FusionWeights
	CanonicalBoost float64
	PinnedBoost    float64
}

// DefaultFusionOptions returns the standard fusion parameters with the
// short-technical weight profile.
func DefaultFusionOptions() FusionOptions {
	return FusionOptions{
		K:              DefaultRRFK,
		Weights:        FusionWeights{Lexical: 0.5, Semantic: 0.35, Trigram: 0.15},
		CanonicalBoost: DefaultBoost,
		PinnedBoost:    DefaultBoost,
	}
}

// Fuse combines lexical and semantic matches with weighted reciprocal-rank
// fusion. Identical inputs always produce an identical output sequence.
func Fuse(lexical, semantic []*Match, opts FusionOptions) []*Match {
	if opts.K <= 0 {
		opts.K = DefaultRRFK
	}

	merged := make(map[uuid.UUID]*Match)
	scores := make(map[uuid.UUID]float64)

	// Each engine only fills its own score fields, so a chunk found by both
	// merges by copying the source engine's fields outright. Zero is a valid
	// score and must survive the merge.
	accumulate := func(ranked []*Match, weight float64, merge func(dst, src *Match)) {
		for rank, m := range ranked {
			if existing, ok := merged[m.ChunkID]; ok {
				if existing != m && merge != nil {
					merge(existing, m)
				}
			} else {
				merged[m.ChunkID] = m
			}
			scores[m.ChunkID] += weight / float64(opts.K+rank+1)
		}
	}

	accumulate(sortedBy(lexical, func(a, b *Match) bool {
		if a.LexicalScore != b.LexicalScore {
			return a.LexicalScore > b.LexicalScore
		}
		return chunkLess(a, b)
	}), opts.Weights.Lexical, func(dst, src *Match) {
		dst.LexicalScore = src.LexicalScore
		dst.TrigramScore = src.TrigramScore
	})

	accumulate(sortedBy(semantic, func(a, b *Match) bool {
		if a.Distance != b.Distance {
			return a.Distance < b.Distance
		}
		return chunkLess(a, b)
	}), opts.Weights.Semantic, func(dst, src *Match) {
		dst.Distance = src.Distance
	})

	var trigram []*Match
	for _, m := range lexical {
		if m.TrigramScore > 0 {
			trigram = append(trigram, m)
		}
	}
	// Trigram entries are the lexical matches themselves; their fields are
	// already merged.
	accumulate(sortedBy(trigram, func(a, b *Match) bool {
		if a.TrigramScore != b.TrigramScore {
			return a.TrigramScore > b.TrigramScore
		}
		return chunkLess(a, b)
	}), opts.Weights.Trigram, nil)

	// Boost lists rank the combined set by chunk id so equal inputs always
	// produce equal boost contributions.
	combined := make([]*Match, 0, len(merged))
	for _, m := range merged {
		combined = append(combined, m)
	}
	sort.Slice(combined, func(i, j int) bool { return chunkLess(combined[i], combined[j]) })

	var canonical, pinned []*Match
	for _, m := range combined {
		if m.CanonicalKey != "" {
			canonical = append(canonical, m)
		}
		if m.Pinned {
			pinned = append(pinned, m)
		}
	}
	for rank, m := range canonical {
		scores[m.ChunkID] += opts.CanonicalBoost / float64(opts.K+rank+1)
	}
	for rank, m := range pinned {
		scores[m.ChunkID] += opts.PinnedBoost / float64(opts.K+rank+1)
	}

	for _, m := range combined {
		m.Score = scores[m.ChunkID]
	}
	sort.Slice(combined, func(i, j int) bool {
		a, b := combined[i], combined[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if c := bytes.Compare(a.ItemID[:], b.ItemID[:]); c != 0 {
			return c < 0
		}
		return chunkLess(a, b)
	})
	return combined
}

// sortedBy returns a sorted copy, leaving the input untouched.
func sortedBy(matches []*Match, less func(a, b *Match) bool) []*Match {
	out := make([]*Match, len(matches))
	copy(out, matches)
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

func chunkLess(a, b *Match) bool {
	return bytes.Compare(a.ChunkID[:], b.ChunkID[:]) < 0
}
