package biz

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuchat/docuchat/internal/docuchat/store"
	"github.com/docuchat/docuchat/internal/model"
	"github.com/docuchat/docuchat/pkg/utils/errors"
)

// cancelingEmbedder embeds successfully but fires cancel on its first
// call, mimicking a caller that goes away while batches are in flight.
type cancelingEmbedder struct {
	mu     sync.Mutex
	cancel context.CancelFunc
	calls  int
}

func (e *cancelingEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.calls == 1 {
		e.cancel()
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func (e *cancelingEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *cancelingEmbedder) Name() string { return "canceling-embedder" }

func newTestService(t *testing.T) (*ChatService, *fakeEmbedder, *fakeCompleter) {
	t.Helper()
	index := store.NewMemoryIndex()
	embedder := &fakeEmbedder{vector: []float32{1, 0, 0}}
	completer := &fakeCompleter{reply: "The capital of France is Paris."}

	svc, err := NewChatService(index, embedder, completer, nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close(context.Background()) })
	return svc, embedder, completer
}

func TestIngestDocumentRoundTrip(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	assert.False(t, svc.HasDocuments(ctx, "alice"))

	doc, err := svc.IngestDocument(ctx, "alice", "france.txt",
		"Paris is the capital of France. France is in western Europe.")
	require.NoError(t, err)
	assert.NotEmpty(t, doc.ID)
	assert.Equal(t, model.DocumentReady, doc.Status)
	assert.NotEmpty(t, doc.ChunkIDs)

	assert.True(t, svc.HasDocuments(ctx, "alice"))

	docs := svc.ListDocuments(ctx, "alice")
	require.Len(t, docs, 1)
	assert.Equal(t, doc.ID, docs[0].ID)
	assert.Equal(t, "france.txt", docs[0].Filename)

	stats, err := svc.Stats(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, stats["documents"])
	assert.Equal(t, len(doc.ChunkIDs), stats["chunks"])
}

func TestIngestEmptyDocument(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	for _, content := range []string{"", "   ", "\n\n\t\n"} {
		_, err := svc.IngestDocument(ctx, "alice", "empty.txt", content)
		assert.ErrorIs(t, err, errors.ErrEmptyDocument)
	}

	// Nothing was registered along the way.
	assert.False(t, svc.HasDocuments(ctx, "alice"))
	assert.Empty(t, svc.ListDocuments(ctx, "alice"))
}

func TestIngestRollbackOnEmbedFailure(t *testing.T) {
	svc, embedder, _ := newTestService(t)
	ctx := context.Background()
	embedder.err = assert.AnError

	_, err := svc.IngestDocument(ctx, "alice", "doc.txt", "some content here")
	assert.ErrorIs(t, err, errors.ErrEmbeddingUnavailable)

	// The pending document was rolled back, not left half-ingested.
	assert.False(t, svc.HasDocuments(ctx, "alice"))
	assert.Empty(t, svc.ListDocuments(ctx, "alice"))

	stats, statsErr := svc.Stats(ctx, "alice")
	require.NoError(t, statsErr)
	assert.Equal(t, 0, stats["chunks"])
}

func TestIngestCanceledMidEmbed(t *testing.T) {
	index := store.NewMemoryIndex()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	embedder := &cancelingEmbedder{cancel: cancel}
	completer := &fakeCompleter{reply: "ok"}

	// One worker and one chunk per batch, so later batches are still
	// queued when the first one cancels the context.
	config := DefaultServiceConfig()
	config.ChunkerConfig = &ChunkerConfig{MaxChunkTokens: 8, OverlapTokens: 0}
	config.EmbedWorkers = 1
	config.EmbedBatchSize = 1

	svc, err := NewChatService(index, embedder, completer, nil, config)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close(context.Background()) })

	done := make(chan error, 1)
	go func() {
		_, ingestErr := svc.IngestDocument(ctx, "alice", "paris.txt",
			"Paris is the capital of France. It is known for the Eiffel Tower. The Seine flows through the city.")
		done <- ingestErr
	}()

	select {
	case ingestErr := <-done:
		assert.ErrorIs(t, ingestErr, errors.ErrEmbeddingUnavailable)
	case <-time.After(5 * time.Second):
		t.Fatal("IngestDocument did not return after its context was cancelled")
	}

	// The document was rolled back, not left pending forever.
	background := context.Background()
	assert.False(t, svc.HasDocuments(background, "alice"))
	assert.Empty(t, svc.ListDocuments(background, "alice"))

	stats, err := svc.Stats(background, "alice")
	require.NoError(t, err)
	assert.Equal(t, 0, stats["chunks"])
}

func TestDeleteDocument(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	doc, err := svc.IngestDocument(ctx, "alice", "doc.txt", "some content here")
	require.NoError(t, err)

	require.NoError(t, svc.DeleteDocument(ctx, "alice", doc.ID))
	assert.Empty(t, svc.ListDocuments(ctx, "alice"))
	assert.False(t, svc.HasDocuments(ctx, "alice"))

	stats, err := svc.Stats(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 0, stats["chunks"])

	// A second delete reports the document gone.
	err = svc.DeleteDocument(ctx, "alice", doc.ID)
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestDeleteDocumentOwnerIsolation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	doc, err := svc.IngestDocument(ctx, "alice", "doc.txt", "alice's private notes")
	require.NoError(t, err)

	err = svc.DeleteDocument(ctx, "bob", doc.ID)
	assert.ErrorIs(t, err, errors.ErrNotFound)

	// Alice's document is untouched.
	assert.Len(t, svc.ListDocuments(ctx, "alice"), 1)
}

func TestServiceChat(t *testing.T) {
	svc, _, completer := newTestService(t)
	ctx := context.Background()

	// Before any upload the gate answers with the advisory.
	result, err := svc.Chat(ctx, ChatRequest{OwnerID: "alice", Message: "What is the capital of France?"})
	require.NoError(t, err)
	assert.Equal(t, AdvisoryNoDocuments, result.Advisory)
	assert.Zero(t, completer.callCount())

	_, err = svc.IngestDocument(ctx, "alice", "france.txt",
		"Paris is the capital of France and its largest city.")
	require.NoError(t, err)

	result, err = svc.Chat(ctx, ChatRequest{OwnerID: "alice", Message: "What is the capital of France?"})
	require.NoError(t, err)
	assert.Empty(t, result.Advisory)
	assert.Equal(t, "The capital of France is Paris.", result.Answer)
	require.NotEmpty(t, result.Sources)
	assert.Equal(t, "france.txt", result.Sources[0].Filename)
	assert.Contains(t, completer.lastPrompt(), "Paris is the capital of France")
}

func TestServiceChatAfterDelete(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	doc, err := svc.IngestDocument(ctx, "alice", "doc.txt", "some content here")
	require.NoError(t, err)
	require.NoError(t, svc.DeleteDocument(ctx, "alice", doc.ID))

	// With the last document gone chat falls back to the advisory.
	result, err := svc.Chat(ctx, ChatRequest{OwnerID: "alice", Message: "anything?"})
	require.NoError(t, err)
	assert.Equal(t, AdvisoryNoDocuments, result.Advisory)
}

func TestIngestLargeDocumentChunking(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	// Enough words to force multiple chunks at the default chunk size.
	var sb strings.Builder
	for i := 0; i < 120; i++ {
		sb.WriteString("The quick brown fox jumps over the lazy dog near the river bank. ")
	}

	doc, err := svc.IngestDocument(ctx, "alice", "big.txt", sb.String())
	require.NoError(t, err)
	assert.Greater(t, len(doc.ChunkIDs), 1)

	stats, err := svc.Stats(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, len(doc.ChunkIDs), stats["chunks"])
}
