package biz

import (
	"context"

	"github.com/kart-io/logger"

	"github.com/docuchat/docuchat/internal/docuchat/store"
	"github.com/docuchat/docuchat/internal/model"
	"github.com/docuchat/docuchat/internal/pkg/textutil"
	"github.com/docuchat/docuchat/pkg/llm"
	"github.com/docuchat/docuchat/pkg/utils/errors"
)

// RetrieverConfig bounds what retrieval may feed into a prompt.
type RetrieverConfig struct {
	// TopK is the number of candidates fetched from the index.
	TopK int
	// TokenBudget caps the combined token count of returned passages.
	TokenBudget int
}

// DefaultRetrieverConfig returns the default retrieval configuration.
func DefaultRetrieverConfig() *RetrieverConfig {
	return &RetrieverConfig{
		TopK:        3,
		TokenBudget: 1500,
	}
}

// Retriever embeds a query and returns the best-scoring passages that
// fit the token budget.
type Retriever struct {
	embedder llm.EmbeddingProvider
	index    store.VectorIndex
	config   *RetrieverConfig
}

// NewRetriever creates a retriever over the given embedder and index.
func NewRetriever(embedder llm.EmbeddingProvider, index store.VectorIndex, config *RetrieverConfig) *Retriever {
	if config == nil {
		config = DefaultRetrieverConfig()
	}
	return &Retriever{
		embedder: embedder,
		index:    index,
		config:   config,
	}
}

// Retrieve embeds the query, searches the owner's partition and packs
// passages greedily in score order. A passage is included whole or not
// at all. An owner with no chunks yields an empty result, not an error.
// Embedder failures surface as EmbeddingUnavailable and are never
// retried here.
func (r *Retriever) Retrieve(ctx context.Context, ownerID, query string) (*model.RetrievalResult, error) {
	queryVector, err := r.embedder.EmbedSingle(ctx, query)
	if err != nil {
		return nil, errors.ErrEmbeddingUnavailable.WithCause(err)
	}

	passages, err := r.index.Search(ctx, ownerID, queryVector, r.config.TopK)
	if err != nil {
		return nil, err
	}

	result := &model.RetrievalResult{}
	for _, p := range passages {
		tokens := textutil.CountTokens(p.Text)
		if result.Tokens+tokens > r.config.TokenBudget {
			// Packing stops at the first passage that does not fit, so
			// a lower-scored passage never displaces a higher one.
			break
		}
		result.Passages = append(result.Passages, *p)
		result.Tokens += tokens
	}

	logger.Debugw("retrieval complete",
		"owner", ownerID,
		"candidates", len(passages),
		"selected", len(result.Passages),
		"tokens", result.Tokens,
	)
	return result, nil
}
