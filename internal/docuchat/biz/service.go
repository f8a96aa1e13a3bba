package biz

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kart-io/logger"
	"github.com/oklog/ulid/v2"

	"github.com/docuchat/docuchat/internal/docuchat/metrics"
	"github.com/docuchat/docuchat/internal/docuchat/registry"
	"github.com/docuchat/docuchat/internal/docuchat/store"
	"github.com/docuchat/docuchat/internal/model"
	"github.com/docuchat/docuchat/pkg/infra/pool"
	"github.com/docuchat/docuchat/pkg/llm"
	"github.com/docuchat/docuchat/pkg/utils/errors"
)

// Service is the boundary of the chat core. All operations are scoped
// to a single owner; no operation ever sees another owner's data.
type Service interface {
	// IngestDocument chunks, embeds and indexes one document.
	IngestDocument(ctx context.Context, ownerID, filename, content string) (*model.Document, error)
	// DeleteDocument removes a document and all of its chunks.
	DeleteDocument(ctx context.Context, ownerID, documentID string) error
	// ListDocuments returns the owner's documents in ingestion order.
	ListDocuments(ctx context.Context, ownerID string) []model.DocumentInfo
	// Chat answers a question grounded on the owner's documents.
	Chat(ctx context.Context, req ChatRequest) (*model.ChatResult, error)
	// HasDocuments reports whether the owner has at least one document.
	HasDocuments(ctx context.Context, ownerID string) bool
	// Stats returns owner and service counters.
	Stats(ctx context.Context, ownerID string) (map[string]any, error)
	// Close releases background resources.
	Close(ctx context.Context) error
}

// ServiceConfig assembles all tunables of the chat core.
type ServiceConfig struct {
	ChunkerConfig      *ChunkerConfig
	RetrieverConfig    *RetrieverConfig
	OrchestratorConfig *OrchestratorConfig
	// EmbedWorkers caps concurrent embedding batches during ingestion.
	EmbedWorkers int
	// EmbedBatchSize is how many chunk texts go into one embed call.
	EmbedBatchSize int
}

// DefaultServiceConfig returns the default service configuration.
func DefaultServiceConfig() *ServiceConfig {
	return &ServiceConfig{
		ChunkerConfig:      DefaultChunkerConfig(),
		RetrieverConfig:    DefaultRetrieverConfig(),
		OrchestratorConfig: DefaultOrchestratorConfig(),
		EmbedWorkers:       8,
		EmbedBatchSize:     16,
	}
}

// ChatService wires the chunker, registry, index, retriever and
// orchestrator into the Service boundary.
type ChatService struct {
	chunker      *Chunker
	registry     *registry.Registry
	index        store.VectorIndex
	embedder     llm.EmbeddingProvider
	completer    llm.ChatProvider
	orchestrator *Orchestrator
	cache        *AnswerCache
	embedPool    *pool.Pool
	metrics      *metrics.ChatMetrics
	batchSize    int
}

// NewChatService creates the chat core over the given index and
// capability providers. cache may be nil.
func NewChatService(
	index store.VectorIndex,
	embedder llm.EmbeddingProvider,
	completer llm.ChatProvider,
	cache *AnswerCache,
	config *ServiceConfig,
) (*ChatService, error) {
	if config == nil {
		config = DefaultServiceConfig()
	}

	reg := registry.New(index)
	retriever := NewRetriever(embedder, index, config.RetrieverConfig)
	orchestrator := NewOrchestrator(reg, retriever, completer, config.OrchestratorConfig)

	embedPool, err := pool.New("embedding", pool.EmbeddingConfig(config.EmbedWorkers))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding pool: %w", err)
	}

	batchSize := config.EmbedBatchSize
	if batchSize <= 0 {
		batchSize = 16
	}

	return &ChatService{
		chunker:      NewChunker(config.ChunkerConfig),
		registry:     reg,
		index:        index,
		embedder:     embedder,
		completer:    completer,
		orchestrator: orchestrator,
		cache:        cache,
		embedPool:    embedPool,
		metrics:      metrics.GetChatMetrics(),
		batchSize:    batchSize,
	}, nil
}

// Orchestrator exposes the underlying orchestrator, used by config hot
// reload to swap the prompt template.
func (s *ChatService) Orchestrator() *Orchestrator {
	return s.orchestrator
}

// IngestDocument chunks the content, embeds every chunk and inserts
// them into the owner's index partition. The document becomes visible
// to listing and chat only after the whole pipeline succeeds; any
// failure past registration rolls the document back.
func (s *ChatService) IngestDocument(ctx context.Context, ownerID, filename, content string) (*model.Document, error) {
	texts := s.chunker.Chunk(content)
	if len(texts) == 0 {
		s.metrics.RecordIngest(1, 0, errors.ErrEmptyDocument)
		return nil, errors.ErrEmptyDocument.WithMessage("document %q produced no chunks", filename)
	}

	doc := &model.Document{
		ID:        ulid.Make().String(),
		OwnerID:   ownerID,
		Filename:  filename,
		CreatedAt: time.Now(),
	}
	if err := s.registry.Register(ctx, doc); err != nil {
		s.metrics.RecordIngest(1, 0, err)
		return nil, err
	}

	embeddings, err := s.embedChunks(ctx, texts)
	if err != nil {
		s.rollback(ctx, ownerID, doc.ID)
		s.metrics.RecordIngest(1, 0, err)
		return nil, errors.ErrEmbeddingUnavailable.WithCause(err)
	}

	chunks := make([]*model.Chunk, len(texts))
	chunkIDs := make([]string, len(texts))
	for i, text := range texts {
		id := fmt.Sprintf("%s-%04d", doc.ID, i)
		chunks[i] = &model.Chunk{
			ID:         id,
			DocumentID: doc.ID,
			OwnerID:    ownerID,
			Filename:   filename,
			Text:       text,
			Embedding:  embeddings[i],
			Position:   i,
		}
		chunkIDs[i] = id
	}

	if err := s.index.Insert(ctx, ownerID, chunks); err != nil {
		s.rollback(ctx, ownerID, doc.ID)
		s.metrics.RecordIngest(1, 0, err)
		return nil, err
	}

	if err := s.registry.AttachChunks(ctx, ownerID, doc.ID, chunkIDs); err != nil {
		s.rollback(ctx, ownerID, doc.ID)
		s.metrics.RecordIngest(1, 0, err)
		return nil, err
	}

	s.invalidateCache(ctx, ownerID)
	s.metrics.RecordIngest(1, len(chunks), nil)
	logger.Infow("document ingested",
		"owner", ownerID,
		"document", doc.ID,
		"filename", filename,
		"chunks", len(chunks),
	)

	ready, err := s.registry.Get(ctx, ownerID, doc.ID)
	if err != nil {
		return nil, err
	}
	return ready, nil
}

// embedChunks embeds chunk texts in fixed-size batches on the worker
// pool, preserving chunk order. The first batch error wins and cancels
// nothing; remaining batches finish and are discarded. A cancelled
// context fails its batch rather than skipping it, so every submitted
// batch reaches wg.Done and Wait always returns.
func (s *ChatService) embedChunks(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		batchErr error
	)

	for start := 0; start < len(texts); start += s.batchSize {
		end := start + s.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		start, end := start, end

		wg.Add(1)
		task := func() {
			defer wg.Done()
			if err := ctx.Err(); err != nil {
				errOnce.Do(func() { batchErr = err })
				return
			}
			vectors, err := s.embedder.Embed(ctx, texts[start:end])
			if err != nil {
				errOnce.Do(func() { batchErr = err })
				return
			}
			if len(vectors) != end-start {
				errOnce.Do(func() {
					batchErr = fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), end-start)
				})
				return
			}
			copy(embeddings[start:end], vectors)
		}

		if err := s.embedPool.SubmitWithContext(ctx, task); err != nil {
			wg.Done()
			errOnce.Do(func() { batchErr = err })
			break
		}
	}

	wg.Wait()
	if batchErr != nil {
		return nil, batchErr
	}
	return embeddings, nil
}

func (s *ChatService) cacheEnabled() bool {
	return s.cache != nil && s.cache.Enabled()
}

// invalidateCache drops the owner's cached answers after the grounding
// set changed. Failures are logged, not surfaced; stale entries expire
// by TTL anyway.
func (s *ChatService) invalidateCache(ctx context.Context, ownerID string) {
	if !s.cacheEnabled() {
		return
	}
	if err := s.cache.InvalidateOwner(ctx, ownerID); err != nil {
		logger.Warnw("answer cache invalidation failed", "owner", ownerID, "error", err.Error())
	}
}

func (s *ChatService) rollback(ctx context.Context, ownerID, documentID string) {
	if err := s.registry.Delete(ctx, ownerID, documentID); err != nil && !errors.Is(err, errors.ErrNotFound) {
		logger.Warnw("ingest rollback failed",
			"owner", ownerID,
			"document", documentID,
			"error", err.Error(),
		)
	}
}

// DeleteDocument removes the document and its chunks. The index is
// purged before the record disappears, so a failed purge leaves the
// document present and the delete retryable.
func (s *ChatService) DeleteDocument(ctx context.Context, ownerID, documentID string) error {
	if err := s.registry.Delete(ctx, ownerID, documentID); err != nil {
		return err
	}
	s.invalidateCache(ctx, ownerID)
	s.metrics.RecordDelete()
	logger.Infow("document deleted", "owner", ownerID, "document", documentID)
	return nil
}

// ListDocuments returns the owner's ready documents in ingestion order.
func (s *ChatService) ListDocuments(ctx context.Context, ownerID string) []model.DocumentInfo {
	return s.registry.List(ctx, ownerID)
}

// HasDocuments reports whether the owner has at least one ready document.
func (s *ChatService) HasDocuments(ctx context.Context, ownerID string) bool {
	return s.registry.HasDocuments(ctx, ownerID)
}

// Chat runs the orchestrator, consulting the answer cache first when
// one is configured.
func (s *ChatService) Chat(ctx context.Context, req ChatRequest) (*model.ChatResult, error) {
	if s.cacheEnabled() {
		cached, err := s.cache.Get(ctx, req.OwnerID, req.Message)
		if err == nil && cached != nil {
			s.metrics.RecordChat(true, nil)
			return cached, nil
		}
	}

	start := time.Now()
	result, err := s.orchestrator.Chat(ctx, req)
	s.metrics.RecordChat(false, err)
	if err != nil {
		if errors.Is(err, errors.ErrTimeout) {
			s.metrics.RecordTimeout()
		}
		return nil, err
	}

	switch {
	case result.Advisory != "":
		s.metrics.RecordNoDocuments()
	case len(result.Sources) == 0:
		s.metrics.RecordNoPassages()
	}

	if s.cacheEnabled() && result.Advisory == "" {
		// Cache write failures are logged inside Set and do not affect
		// the response.
		_ = s.cache.Set(ctx, req.OwnerID, req.Message, result)
	}

	logger.Debugw("chat complete",
		"owner", req.OwnerID,
		"sources", len(result.Sources),
		"duration", time.Since(start).String(),
	)
	return result, nil
}

// Stats returns per-owner document counts plus service-wide counters.
func (s *ChatService) Stats(ctx context.Context, ownerID string) (map[string]any, error) {
	chunks, err := s.index.Count(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	stats := map[string]any{
		"documents":      s.registry.CountDocuments(ctx, ownerID),
		"chunks":         chunks,
		"embed_provider": s.embedder.Name(),
		"chat_provider":  s.completer.Name(),
		"metrics":        s.metrics.Stats(),
	}
	if s.cacheEnabled() {
		stats["cache"] = map[string]any{"enabled": true}
	}
	return stats, nil
}

// Close drains the embedding pool.
func (s *ChatService) Close(_ context.Context) error {
	return s.embedPool.ReleaseTimeout(10 * time.Second)
}

var _ Service = (*ChatService)(nil)
