package chunker

import "strings"

// Config controls chunk assembly.
type Config struct {
	TargetTokens   int
	MaxTokens      int
	OverlapTokens  int
	DisableOverlap bool
}

// DefaultConfig returns the standard chunking parameters.
func DefaultConfig() Config {
	return Config{
		TargetTokens:  400,
		MaxTokens:     1000,
		OverlapTokens: 60,
	}
}

// Chunk is one retrieval unit. Text is always the exact source slice
// [StartChar, EndChar).
type Chunk struct {
	Index         int
	Text          string
	HeadingPath   []string
	SectionAnchor string
	StartChar     int
	EndChar       int
}

// estimateTokens approximates the token count of a span as ceil(chars/4).
func estimateTokens(chars int) int {
	return (chars + 3) / 4
}

// Split cuts content into chunks that respect block boundaries. Oversize
// blocks are pre-split into equal character spans; size-triggered cuts seed
// the next chunk with trailing blocks from the same section unless overlap
// is disabled.
func Split(content string, cfg Config) []Chunk {
	if cfg.TargetTokens <= 0 {
		cfg = DefaultConfig()
	}
	if content == "" {
		return nil
	}

	blocks := splitOversize(ParseBlocks(content), cfg.MaxTokens)

	var chunks []Chunk
	var current []Block
	currentTokens := 0

	emit := func(seedOverlap bool) {
		if len(current) == 0 {
			return
		}
		chunk, ok := buildChunk(content, current, len(chunks))
		if ok {
			chunks = append(chunks, chunk)
		}

		var seed []Block
		if ok && seedOverlap && !cfg.DisableOverlap && cfg.OverlapTokens > 0 {
			seed = overlapTail(current, cfg.OverlapTokens)
		}
		current = seed
		currentTokens = 0
		for _, b := range seed {
			currentTokens += estimateTokens(b.EndChar - b.StartChar)
		}
	}

	for _, b := range blocks {
		tokens := estimateTokens(b.EndChar - b.StartChar)

		if len(current) > 0 {
			switch {
			case b.Type == BlockHeading:
				emit(false)
			case !samePath(b.HeadingPath, current[len(current)-1].HeadingPath):
				emit(false)
			case currentTokens+tokens > cfg.TargetTokens:
				emit(true)
			}
		}

		current = append(current, b)
		currentTokens += tokens
	}
	emit(false)

	return chunks
}

// splitOversize cuts any block larger than maxTokens into equal character
// spans of 4*maxTokens so no single block can blow past the chunk budget.
func splitOversize(blocks []Block, maxTokens int) []Block {
	if maxTokens <= 0 {
		return blocks
	}
	spanChars := 4 * maxTokens

	var out []Block
	for _, b := range blocks {
		size := b.EndChar - b.StartChar
		if estimateTokens(size) <= maxTokens {
			out = append(out, b)
			continue
		}
		for start := b.StartChar; start < b.EndChar; start += spanChars {
			end := start + spanChars
			if end > b.EndChar {
				end = b.EndChar
			}
			piece := b
			piece.StartChar = start
			piece.EndChar = end
			out = append(out, piece)
		}
	}
	return out
}

// buildChunk assembles the chunk covering the block run. Runs of only blank
// blocks produce no chunk.
func buildChunk(content string, blocks []Block, index int) (Chunk, bool) {
	var path []string
	hasContent := false
	for _, b := range blocks {
		if b.Type != BlockBlank {
			hasContent = true
			path = b.HeadingPath
			break
		}
	}
	if !hasContent {
		return Chunk{}, false
	}

	start := blocks[0].StartChar
	end := blocks[len(blocks)-1].EndChar
	text := content[start:end]
	if strings.TrimSpace(text) == "" {
		return Chunk{}, false
	}

	pathCopy := make([]string, len(path))
	copy(pathCopy, path)

	return Chunk{
		Index:         index,
		Text:          text,
		HeadingPath:   pathCopy,
		SectionAnchor: SectionAnchor(pathCopy),
		StartChar:     start,
		EndChar:       end,
	}, true
}

// overlapTail collects trailing blocks that share the final block's heading
// path until overlapTokens is reached.
func overlapTail(blocks []Block, overlapTokens int) []Block {
	if len(blocks) == 0 {
		return nil
	}
	tailPath := blocks[len(blocks)-1].HeadingPath

	total := 0
	i := len(blocks)
	for i > 0 {
		b := blocks[i-1]
		if !samePath(b.HeadingPath, tailPath) {
			break
		}
		size := estimateTokens(b.EndChar - b.StartChar)
		if total > 0 && total+size > overlapTokens {
			break
		}
		total += size
		i--
		if total >= overlapTokens {
			break
		}
	}
	if i == len(blocks) {
		return nil
	}

	seed := make([]Block, len(blocks)-i)
	copy(seed, blocks[i:])
	return seed
}
