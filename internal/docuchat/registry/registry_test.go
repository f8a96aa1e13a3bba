package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuchat/docuchat/internal/docuchat/store"
	"github.com/docuchat/docuchat/internal/model"
	"github.com/docuchat/docuchat/pkg/utils/errors"
)

func newTestRegistry(t *testing.T) (*Registry, *store.MemoryIndex) {
	t.Helper()
	idx := store.NewMemoryIndex()
	return New(idx), idx
}

func registerReady(t *testing.T, r *Registry, idx *store.MemoryIndex, ownerID, docID string) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, r.Register(ctx, &model.Document{
		ID:       docID,
		OwnerID:  ownerID,
		Filename: docID + ".txt",
	}))
	require.NoError(t, idx.Insert(ctx, ownerID, []*model.Chunk{
		{ID: docID + "-c0", DocumentID: docID, OwnerID: ownerID, Embedding: []float32{1, 0}},
		{ID: docID + "-c1", DocumentID: docID, OwnerID: ownerID, Embedding: []float32{0, 1}},
	}))
	require.NoError(t, r.AttachChunks(ctx, ownerID, docID, []string{docID + "-c0", docID + "-c1"}))
}

func TestRegistryLifecycle(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	doc := &model.Document{ID: "d1", OwnerID: "alice", Filename: "notes.txt"}
	require.NoError(t, r.Register(ctx, doc))

	got, err := r.Get(ctx, "alice", "d1")
	require.NoError(t, err)
	assert.Equal(t, model.DocumentPending, got.Status)
	assert.False(t, got.CreatedAt.IsZero())

	// Pending documents are not listed and do not satisfy gating.
	assert.Empty(t, r.List(ctx, "alice"))
	assert.False(t, r.HasDocuments(ctx, "alice"))

	require.NoError(t, r.AttachChunks(ctx, "alice", "d1", []string{"c0", "c1"}))

	got, err = r.Get(ctx, "alice", "d1")
	require.NoError(t, err)
	assert.Equal(t, model.DocumentReady, got.Status)
	assert.Equal(t, []string{"c0", "c1"}, got.ChunkIDs)
	assert.True(t, r.HasDocuments(ctx, "alice"))
	assert.Equal(t, 1, r.CountDocuments(ctx, "alice"))
}

func TestRegistryDuplicateRegister(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, r.Register(ctx, &model.Document{ID: "d1", OwnerID: "alice"}))
	err := r.Register(ctx, &model.Document{ID: "d1", OwnerID: "alice"})
	assert.ErrorIs(t, err, errors.ErrInvalidRequest)

	// The same ID under a different owner is a distinct document.
	assert.NoError(t, r.Register(ctx, &model.Document{ID: "d1", OwnerID: "bob"}))
}

func TestRegistryAttachChunksErrors(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	err := r.AttachChunks(ctx, "alice", "missing", nil)
	assert.ErrorIs(t, err, errors.ErrNotFound)

	require.NoError(t, r.Register(ctx, &model.Document{ID: "d1", OwnerID: "alice"}))
	require.NoError(t, r.AttachChunks(ctx, "alice", "d1", []string{"c0"}))

	err = r.AttachChunks(ctx, "alice", "d1", []string{"c1"})
	assert.ErrorIs(t, err, errors.ErrAlreadyFinalized)
}

func TestRegistryDeleteCascades(t *testing.T) {
	r, idx := newTestRegistry(t)
	ctx := context.Background()

	registerReady(t, r, idx, "alice", "d1")
	registerReady(t, r, idx, "alice", "d2")

	n, err := idx.Count(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	require.NoError(t, r.Delete(ctx, "alice", "d1"))

	// Both the record and its chunks are gone, the other document is intact.
	_, err = r.Get(ctx, "alice", "d1")
	assert.ErrorIs(t, err, errors.ErrNotFound)
	n, err = idx.Count(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Second delete of the same document reports NotFound.
	err = r.Delete(ctx, "alice", "d1")
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestRegistryDeleteUnknown(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	err := r.Delete(ctx, "alice", "missing")
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestRegistryOwnerIsolation(t *testing.T) {
	r, idx := newTestRegistry(t)
	ctx := context.Background()

	registerReady(t, r, idx, "alice", "d1")

	// Bob cannot see or delete Alice's document.
	_, err := r.Get(ctx, "bob", "d1")
	assert.ErrorIs(t, err, errors.ErrNotFound)
	err = r.Delete(ctx, "bob", "d1")
	assert.ErrorIs(t, err, errors.ErrNotFound)
	assert.False(t, r.HasDocuments(ctx, "bob"))

	got, err := r.Get(ctx, "alice", "d1")
	require.NoError(t, err)
	assert.Equal(t, model.DocumentReady, got.Status)
}

func TestRegistryListOrder(t *testing.T) {
	r, idx := newTestRegistry(t)
	ctx := context.Background()

	registerReady(t, r, idx, "alice", "d1")
	time.Sleep(time.Millisecond)
	registerReady(t, r, idx, "alice", "d2")
	time.Sleep(time.Millisecond)
	registerReady(t, r, idx, "alice", "d3")

	infos := r.List(ctx, "alice")
	require.Len(t, infos, 3)
	assert.Equal(t, "d1", infos[0].ID)
	assert.Equal(t, "d2", infos[1].ID)
	assert.Equal(t, "d3", infos[2].ID)

	require.NoError(t, r.Delete(ctx, "alice", "d2"))
	infos = r.List(ctx, "alice")
	require.Len(t, infos, 2)
	assert.Equal(t, "d1", infos[0].ID)
	assert.Equal(t, "d3", infos[1].ID)
}
