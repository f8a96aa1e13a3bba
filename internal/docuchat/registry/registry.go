// Package registry tracks document ownership and ingestion state.
package registry

import (
	"context"
	"sync"
	"time"

	"github.com/docuchat/docuchat/internal/docuchat/store"
	"github.com/docuchat/docuchat/internal/model"
	"github.com/docuchat/docuchat/pkg/utils/errors"
)

// Registry is the authoritative record of which documents exist per
// owner. A document is registered as pending, finalized exactly once by
// AttachChunks, and removed by Delete, which cascades into the vector
// index before the document is considered gone.
type Registry struct {
	index store.VectorIndex

	mu     sync.RWMutex
	owners map[string]*ownerDocs
}

type ownerDocs struct {
	mu    sync.RWMutex
	docs  map[string]*model.Document
	order []string
}

// New creates a registry that cascades deletes into index.
func New(index store.VectorIndex) *Registry {
	return &Registry{
		index:  index,
		owners: make(map[string]*ownerDocs),
	}
}

func (r *Registry) owner(ownerID string, create bool) *ownerDocs {
	r.mu.RLock()
	o, ok := r.owners[ownerID]
	r.mu.RUnlock()
	if ok || !create {
		return o
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if o, ok = r.owners[ownerID]; ok {
		return o
	}
	o = &ownerDocs{docs: make(map[string]*model.Document)}
	r.owners[ownerID] = o
	return o
}

// Register records a new pending document.
func (r *Registry) Register(_ context.Context, doc *model.Document) error {
	o := r.owner(doc.OwnerID, true)
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, exists := o.docs[doc.ID]; exists {
		return errors.ErrInvalidRequest.WithMessage("document %s already registered", doc.ID)
	}

	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}
	doc.Status = model.DocumentPending
	o.docs[doc.ID] = doc
	o.order = append(o.order, doc.ID)
	return nil
}

// AttachChunks finalizes a pending document with its chunk IDs, making
// it ready. A second call fails with AlreadyFinalized.
func (r *Registry) AttachChunks(_ context.Context, ownerID, documentID string, chunkIDs []string) error {
	o := r.owner(ownerID, false)
	if o == nil {
		return errors.ErrNotFound.WithMessage("document %s not found", documentID)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	doc, ok := o.docs[documentID]
	if !ok {
		return errors.ErrNotFound.WithMessage("document %s not found", documentID)
	}
	if doc.Status == model.DocumentReady {
		return errors.ErrAlreadyFinalized.WithMessage("document %s is already finalized", documentID)
	}

	doc.ChunkIDs = append([]string(nil), chunkIDs...)
	doc.Status = model.DocumentReady
	return nil
}

// Get returns the document, ready or pending.
func (r *Registry) Get(_ context.Context, ownerID, documentID string) (*model.Document, error) {
	o := r.owner(ownerID, false)
	if o == nil {
		return nil, errors.ErrNotFound.WithMessage("document %s not found", documentID)
	}

	o.mu.RLock()
	defer o.mu.RUnlock()

	doc, ok := o.docs[documentID]
	if !ok {
		return nil, errors.ErrNotFound.WithMessage("document %s not found", documentID)
	}
	return doc, nil
}

// Delete removes the document and cascades into the vector index. The
// registry record is dropped only after the index delete succeeds, so a
// failed cascade leaves the document intact and retryable. Once Delete
// returns nil the document and all its chunks are unreachable.
func (r *Registry) Delete(ctx context.Context, ownerID, documentID string) error {
	o := r.owner(ownerID, false)
	if o == nil {
		return errors.ErrNotFound.WithMessage("document %s not found", documentID)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if _, ok := o.docs[documentID]; !ok {
		return errors.ErrNotFound.WithMessage("document %s not found", documentID)
	}

	if _, err := r.index.DeleteByDocument(ctx, ownerID, documentID); err != nil {
		return err
	}

	delete(o.docs, documentID)
	for i, id := range o.order {
		if id == documentID {
			o.order = append(o.order[:i], o.order[i+1:]...)
			break
		}
	}
	return nil
}

// List returns the owner's ready documents in creation order. Pending
// documents are mid-ingest and not exposed.
func (r *Registry) List(_ context.Context, ownerID string) []model.DocumentInfo {
	o := r.owner(ownerID, false)
	if o == nil {
		return nil
	}

	o.mu.RLock()
	defer o.mu.RUnlock()

	infos := make([]model.DocumentInfo, 0, len(o.order))
	for _, id := range o.order {
		doc := o.docs[id]
		if doc.Status != model.DocumentReady {
			continue
		}
		infos = append(infos, model.DocumentInfo{
			ID:        doc.ID,
			Filename:  doc.Filename,
			CreatedAt: doc.CreatedAt,
		})
	}
	return infos
}

// HasDocuments reports whether the owner has at least one ready document.
func (r *Registry) HasDocuments(_ context.Context, ownerID string) bool {
	o := r.owner(ownerID, false)
	if o == nil {
		return false
	}

	o.mu.RLock()
	defer o.mu.RUnlock()

	for _, doc := range o.docs {
		if doc.Status == model.DocumentReady {
			return true
		}
	}
	return false
}

// CountDocuments returns the number of ready documents for the owner.
func (r *Registry) CountDocuments(_ context.Context, ownerID string) int {
	o := r.owner(ownerID, false)
	if o == nil {
		return 0
	}

	o.mu.RLock()
	defer o.mu.RUnlock()

	n := 0
	for _, doc := range o.docs {
		if doc.Status == model.DocumentReady {
			n++
		}
	}
	return n
}
