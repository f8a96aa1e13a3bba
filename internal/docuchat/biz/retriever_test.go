package biz

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuchat/docuchat/internal/docuchat/store"
	"github.com/docuchat/docuchat/internal/model"
	"github.com/docuchat/docuchat/pkg/utils/errors"
)

// keywordEmbedder maps text onto a fixed vocabulary axis per word, so
// texts sharing words with the query score higher than texts that do
// not. It makes ranking behave like a real embedder at toy scale.
type keywordEmbedder struct {
	vocab []string
}

func newKeywordEmbedder(vocab ...string) *keywordEmbedder {
	return &keywordEmbedder{vocab: vocab}
}

func (k *keywordEmbedder) embed(text string) []float32 {
	vec := make([]float32, len(k.vocab))
	for _, raw := range strings.Fields(strings.ToLower(text)) {
		word := strings.Trim(raw, ".,!?;:\"'")
		for i, v := range k.vocab {
			if word == v {
				vec[i]++
			}
		}
	}
	return vec
}

func (k *keywordEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = k.embed(text)
	}
	return out, nil
}

func (k *keywordEmbedder) EmbedSingle(_ context.Context, text string) ([]float32, error) {
	return k.embed(text), nil
}

func (k *keywordEmbedder) Name() string { return "keyword-embedder" }

func insertChunks(t *testing.T, index store.VectorIndex, ownerID string, chunks ...*model.Chunk) {
	t.Helper()
	require.NoError(t, index.Insert(context.Background(), ownerID, chunks))
}

func TestRetrieveRanksByRelevance(t *testing.T) {
	index := store.NewMemoryIndex()
	embedder := newKeywordEmbedder("paris", "capital", "known", "for", "eiffel")

	insertChunks(t, index, "alice",
		&model.Chunk{
			ID: "d1-0", DocumentID: "d1", OwnerID: "alice", Filename: "paris.txt",
			Text:      "Paris is the capital of France.",
			Embedding: embedder.embed("Paris is the capital of France."),
			Position:  0,
		},
		&model.Chunk{
			ID: "d1-1", DocumentID: "d1", OwnerID: "alice", Filename: "paris.txt",
			Text:      "It is known for the Eiffel Tower.",
			Embedding: embedder.embed("It is known for the Eiffel Tower."),
			Position:  1,
		},
	)

	r := NewRetriever(embedder, index, nil)
	result, err := r.Retrieve(context.Background(), "alice", "What is Paris known for?")
	require.NoError(t, err)

	// The chunk about the landmark shares more words with the query and
	// must come back first, ahead of the earlier-inserted chunk.
	require.Len(t, result.Passages, 2)
	assert.Equal(t, "It is known for the Eiffel Tower.", result.Passages[0].Text)
	assert.GreaterOrEqual(t, result.Passages[0].Score, result.Passages[1].Score)
}

func TestRetrieveTokenBudgetPacking(t *testing.T) {
	index := store.NewMemoryIndex()
	short := "alpha beta gamma"
	long := strings.TrimSpace(strings.Repeat("word ", 50))

	// Scores descend with the angle from the query vector [1,0,0].
	insertChunks(t, index, "alice",
		&model.Chunk{ID: "d1-0", DocumentID: "d1", OwnerID: "alice", Text: short, Embedding: []float32{1, 0, 0}, Position: 0},
		&model.Chunk{ID: "d1-1", DocumentID: "d1", OwnerID: "alice", Text: long, Embedding: []float32{0.8, 0.6, 0}, Position: 1},
		&model.Chunk{ID: "d1-2", DocumentID: "d1", OwnerID: "alice", Text: short, Embedding: []float32{0.5, 0.866, 0}, Position: 2},
	)

	embedder := &fakeEmbedder{vector: []float32{1, 0, 0}}
	r := NewRetriever(embedder, index, &RetrieverConfig{TopK: 3, TokenBudget: 10})

	result, err := r.Retrieve(context.Background(), "alice", "q")
	require.NoError(t, err)

	// The long second passage blows the budget, and packing stops there:
	// the third passage would fit but never displaces a higher-scored one.
	require.Len(t, result.Passages, 1)
	assert.Equal(t, "d1-0", result.Passages[0].ChunkID)
	assert.Equal(t, 3, result.Tokens)
}

func TestRetrievePassageIncludedWhole(t *testing.T) {
	index := store.NewMemoryIndex()
	long := strings.TrimSpace(strings.Repeat("word ", 20))
	insertChunks(t, index, "alice",
		&model.Chunk{ID: "d1-0", DocumentID: "d1", OwnerID: "alice", Text: long, Embedding: []float32{1, 0, 0}, Position: 0},
	)

	embedder := &fakeEmbedder{vector: []float32{1, 0, 0}}
	r := NewRetriever(embedder, index, &RetrieverConfig{TopK: 3, TokenBudget: 10})

	result, err := r.Retrieve(context.Background(), "alice", "q")
	require.NoError(t, err)

	// No truncation: a passage that does not fit is dropped entirely.
	assert.Empty(t, result.Passages)
	assert.Zero(t, result.Tokens)
	assert.True(t, result.Empty())
}

func TestRetrieveTopKLimit(t *testing.T) {
	index := store.NewMemoryIndex()
	for i := 0; i < 5; i++ {
		insertChunks(t, index, "alice", &model.Chunk{
			ID:         "d1-" + string(rune('0'+i)),
			DocumentID: "d1", OwnerID: "alice",
			Text:      "some passage text",
			Embedding: []float32{1, 0, 0},
			Position:  i,
		})
	}

	embedder := &fakeEmbedder{vector: []float32{1, 0, 0}}
	r := NewRetriever(embedder, index, &RetrieverConfig{TopK: 2, TokenBudget: 1500})

	result, err := r.Retrieve(context.Background(), "alice", "q")
	require.NoError(t, err)
	assert.Len(t, result.Passages, 2)
}

func TestRetrieveEmptyIndex(t *testing.T) {
	index := store.NewMemoryIndex()
	embedder := &fakeEmbedder{vector: []float32{1, 0, 0}}
	r := NewRetriever(embedder, index, nil)

	result, err := r.Retrieve(context.Background(), "alice", "anything")
	require.NoError(t, err)
	assert.True(t, result.Empty())
}

func TestRetrieveEmbedderUnavailable(t *testing.T) {
	index := store.NewMemoryIndex()
	embedder := &fakeEmbedder{vector: []float32{1, 0, 0}, err: assert.AnError}
	r := NewRetriever(embedder, index, nil)

	_, err := r.Retrieve(context.Background(), "alice", "anything")
	assert.ErrorIs(t, err, errors.ErrEmbeddingUnavailable)
}

func TestChatAboutLandmarksEndToEnd(t *testing.T) {
	index := store.NewMemoryIndex()
	embedder := newKeywordEmbedder("paris", "capital", "known", "for", "eiffel")
	completer := &fakeCompleter{reply: "Paris is known for the Eiffel Tower."}

	config := DefaultServiceConfig()
	config.ChunkerConfig = &ChunkerConfig{MaxChunkTokens: 8, OverlapTokens: 0}

	svc, err := NewChatService(index, embedder, completer, nil, config)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close(context.Background()) })

	ctx := context.Background()
	doc, err := svc.IngestDocument(ctx, "alice", "paris.txt",
		"Paris is the capital of France. It is known for the Eiffel Tower.")
	require.NoError(t, err)
	require.Len(t, doc.ChunkIDs, 2)

	result, err := svc.Chat(ctx, ChatRequest{OwnerID: "alice", Message: "What is Paris known for?"})
	require.NoError(t, err)

	assert.Equal(t, "Paris is known for the Eiffel Tower.", result.Answer)
	require.NotEmpty(t, result.Sources)
	assert.Equal(t, "paris.txt", result.Sources[0].Filename)

	// The landmark chunk made it into the prompt the completion saw.
	assert.Contains(t, completer.lastPrompt(), "It is known for the Eiffel Tower.")
}
