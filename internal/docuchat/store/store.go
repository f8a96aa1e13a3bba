package store

import (
	"context"

	"github.com/docuchat/docuchat/internal/model"
)

// VectorIndex stores chunk embeddings partitioned by owner. Every
// operation is scoped to a single owner; no call can observe another
// owner's chunks.
type VectorIndex interface {
	// Insert adds chunks to the owner's partition. All vectors must
	// share the partition's dimension, which is fixed by the first
	// insert. The batch is applied atomically: on error nothing is
	// stored.
	Insert(ctx context.Context, ownerID string, chunks []*model.Chunk) error

	// DeleteByDocument removes every chunk belonging to the document
	// and returns the number removed. Removing an unknown document is
	// not an error and returns 0.
	DeleteByDocument(ctx context.Context, ownerID, documentID string) (int, error)

	// Search returns up to k passages most similar to the query vector,
	// ordered by descending score. An empty partition yields an empty
	// result, not an error.
	Search(ctx context.Context, ownerID string, query []float32, k int) ([]*model.ScoredPassage, error)

	// Count returns the number of chunks stored for the owner.
	Count(ctx context.Context, ownerID string) (int, error)

	// Close releases backend resources.
	Close(ctx context.Context) error
}
