package biz

import (
	"strings"

	"github.com/docuchat/docuchat/internal/pkg/textutil"
)

// ChunkerConfig sizes passages for embedding and prompt budgets. Tokens
// are whitespace-delimited words throughout.
type ChunkerConfig struct {
	// MaxChunkTokens is the maximum tokens per passage.
	MaxChunkTokens int
	// OverlapTokens is repeated from the tail of each passage at the
	// head of the next, so context spanning a boundary is not lost.
	OverlapTokens int
}

// DefaultChunkerConfig returns the default chunker configuration.
func DefaultChunkerConfig() *ChunkerConfig {
	return &ChunkerConfig{
		MaxChunkTokens: 200,
		OverlapTokens:  40,
	}
}

// Chunker splits document text into overlapping passages. It prefers
// paragraph and sentence boundaries and falls back to hard word cuts for
// spans with no usable boundary. Output is deterministic for a given
// input and configuration.
type Chunker struct {
	maxTokens int
	overlap   int
}

// NewChunker creates a chunker, clamping nonsensical configuration.
func NewChunker(cfg *ChunkerConfig) *Chunker {
	if cfg == nil {
		cfg = DefaultChunkerConfig()
	}
	maxTokens := cfg.MaxChunkTokens
	if maxTokens <= 0 {
		maxTokens = DefaultChunkerConfig().MaxChunkTokens
	}
	overlap := cfg.OverlapTokens
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= maxTokens {
		overlap = maxTokens - 1
	}
	return &Chunker{maxTokens: maxTokens, overlap: overlap}
}

// Chunk splits text into passages. Empty or whitespace-only input yields
// an empty sequence.
func (c *Chunker) Chunk(text string) []string {
	if textutil.IsBlank(text) {
		return nil
	}

	var sentences [][]string
	for _, paragraph := range textutil.SplitParagraphs(text) {
		for _, sentence := range textutil.SplitSentences(paragraph) {
			if words := textutil.SplitWords(sentence); len(words) > 0 {
				sentences = append(sentences, words)
			}
		}
	}
	if len(sentences) == 0 {
		return nil
	}

	var chunks []string
	var cur []string

	flush := func() {
		if len(cur) > 0 {
			chunks = append(chunks, strings.Join(cur, " "))
		}
	}

	// seed returns the start of a fresh chunk: the trailing overlap of
	// the chunk just flushed, or nothing for the first chunk.
	seed := func() []string {
		if c.overlap == 0 || len(chunks) == 0 {
			return nil
		}
		prev := textutil.SplitWords(chunks[len(chunks)-1])
		if len(prev) <= c.overlap {
			return append([]string(nil), prev...)
		}
		return append([]string(nil), prev[len(prev)-c.overlap:]...)
	}

	for _, words := range sentences {
		if len(cur)+len(words) <= c.maxTokens {
			cur = append(cur, words...)
			continue
		}

		if len(cur) > 0 {
			flush()
			cur = seed()
		}

		// Hard-cut a sentence that cannot fit even in a fresh chunk.
		for len(cur)+len(words) > c.maxTokens {
			room := c.maxTokens - len(cur)
			cur = append(cur, words[:room]...)
			words = words[room:]
			flush()
			cur = seed()
		}
		cur = append(cur, words...)
	}
	flush()

	return chunks
}
