package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/milvus-io/milvus/client/v2/entity"

	"github.com/docuchat/docuchat/internal/model"
	"github.com/docuchat/docuchat/pkg/component/milvus"
	"github.com/docuchat/docuchat/pkg/utils/errors"
)

// MilvusIndex implements VectorIndex on a Milvus collection. All owners
// share one collection; isolation comes from the owner_id field and
// filter expressions on every search and delete.
type MilvusIndex struct {
	client     *milvus.Client
	collection string

	mu  sync.Mutex
	dim int
}

// NewMilvusIndex creates a Milvus-backed index over the named collection.
// The collection is created lazily on first insert, once the embedding
// dimension is known.
func NewMilvusIndex(client *milvus.Client, collection string) *MilvusIndex {
	return &MilvusIndex{
		client:     client,
		collection: collection,
	}
}

var _ VectorIndex = (*MilvusIndex)(nil)

func (s *MilvusIndex) ensureCollection(ctx context.Context, dim int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dim != 0 {
		if dim != s.dim {
			return errors.ErrDimensionMismatch.WithMessage(
				"vector has dimension %d, index expects %d", dim, s.dim)
		}
		return nil
	}

	schema := &milvus.CollectionSchema{
		Name:        s.collection,
		Description: "document chunks with embeddings",
		Dimension:   dim,
		MetaFields: []milvus.MetaField{
			{Name: "chunk_id", DataType: entity.FieldTypeVarChar, MaxLen: 64},
			{Name: "document_id", DataType: entity.FieldTypeVarChar, MaxLen: 64},
			{Name: "owner_id", DataType: entity.FieldTypeVarChar, MaxLen: 128},
			{Name: "filename", DataType: entity.FieldTypeVarChar, MaxLen: 255},
			{Name: "content", DataType: entity.FieldTypeVarChar, MaxLen: 65535},
		},
	}
	if err := s.client.CreateCollection(ctx, schema); err != nil {
		return err
	}
	s.dim = dim
	return nil
}

// Insert stores the chunk batch under the owner's partition key.
func (s *MilvusIndex) Insert(ctx context.Context, ownerID string, chunks []*model.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	dim := len(chunks[0].Embedding)
	for _, c := range chunks {
		if len(c.Embedding) != dim {
			return errors.ErrDimensionMismatch.WithMessage(
				"vector has dimension %d, batch expects %d", len(c.Embedding), dim)
		}
	}
	if err := s.ensureCollection(ctx, dim); err != nil {
		return err
	}

	embeddings := make([][]float32, len(chunks))
	metadata := map[string][]any{
		"chunk_id":    make([]any, len(chunks)),
		"document_id": make([]any, len(chunks)),
		"owner_id":    make([]any, len(chunks)),
		"filename":    make([]any, len(chunks)),
		"content":     make([]any, len(chunks)),
	}

	for i, chunk := range chunks {
		embeddings[i] = chunk.Embedding
		metadata["chunk_id"][i] = chunk.ID
		metadata["document_id"][i] = chunk.DocumentID
		metadata["owner_id"][i] = ownerID
		metadata["filename"][i] = chunk.Filename
		metadata["content"][i] = chunk.Text
	}

	if _, err := s.client.Insert(ctx, s.collection, &milvus.InsertData{
		Embeddings: embeddings,
		Metadata:   metadata,
	}); err != nil {
		return fmt.Errorf("insert into milvus: %w", err)
	}
	return nil
}

// DeleteByDocument removes every chunk of the document via a filter
// expression so the delete is a single storage operation.
func (s *MilvusIndex) DeleteByDocument(ctx context.Context, ownerID, documentID string) (int, error) {
	if err := s.client.DeleteByExpr(ctx, s.collection, documentFilter(ownerID, documentID)); err != nil {
		return 0, err
	}
	// Milvus delete results do not report per-expression row counts, so
	// callers relying on exact counts should use the registry's chunk list.
	return 0, nil
}

// Search runs an ANN search restricted to the owner's rows.
func (s *MilvusIndex) Search(ctx context.Context, ownerID string, query []float32, k int) ([]*model.ScoredPassage, error) {
	if k <= 0 {
		return nil, nil
	}

	outputFields := []string{"chunk_id", "document_id", "filename", "content"}

	results, err := s.client.Search(ctx, s.collection, query, k, ownerFilter(ownerID), outputFields)
	if err != nil {
		return nil, fmt.Errorf("search milvus: %w", err)
	}

	passages := make([]*model.ScoredPassage, 0, len(results))
	for _, r := range results {
		p := &model.ScoredPassage{Score: r.Score}
		if v, ok := r.Metadata["chunk_id"].(string); ok {
			p.ChunkID = v
		}
		if v, ok := r.Metadata["document_id"].(string); ok {
			p.DocumentID = v
		}
		if v, ok := r.Metadata["filename"].(string); ok {
			p.Filename = v
		}
		if v, ok := r.Metadata["content"].(string); ok {
			p.Text = v
		}
		passages = append(passages, p)
	}
	return passages, nil
}

// Count returns the number of chunks stored for the owner.
func (s *MilvusIndex) Count(ctx context.Context, ownerID string) (int, error) {
	n, err := s.client.CountByExpr(ctx, s.collection, ownerFilter(ownerID))
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// Close closes the Milvus connection.
func (s *MilvusIndex) Close(ctx context.Context) error {
	return s.client.Close(ctx)
}

// ownerFilter builds the expression scoping a query to one owner. %q
// escapes quotes and backslashes, so an owner ID can never widen the
// filter or collide with another owner's rows.
func ownerFilter(ownerID string) string {
	return fmt.Sprintf("owner_id == %q", ownerID)
}

func documentFilter(ownerID, documentID string) string {
	return fmt.Sprintf("owner_id == %q && document_id == %q", ownerID, documentID)
}
