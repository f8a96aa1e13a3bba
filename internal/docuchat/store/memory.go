package store

import (
	"container/heap"
	"context"
	"math"
	"sort"
	"sync"

	"github.com/docuchat/docuchat/internal/model"
	"github.com/docuchat/docuchat/pkg/utils/errors"
)

// MemoryIndex is the in-memory VectorIndex backend. Chunks live in
// per-owner shards so reads for different owners never contend. Each
// shard keeps its entries in insertion order and fixes its vector
// dimension on the first insert.
type MemoryIndex struct {
	mu     sync.RWMutex
	shards map[string]*ownerShard
}

type ownerShard struct {
	mu      sync.RWMutex
	dim     int
	nextSeq uint64
	entries []*indexEntry
}

type indexEntry struct {
	chunk *model.Chunk
	norm  float64
	seq   uint64
}

// NewMemoryIndex creates an empty in-memory index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		shards: make(map[string]*ownerShard),
	}
}

var _ VectorIndex = (*MemoryIndex)(nil)

func (m *MemoryIndex) shard(ownerID string, create bool) *ownerShard {
	m.mu.RLock()
	s, ok := m.shards[ownerID]
	m.mu.RUnlock()
	if ok || !create {
		return s
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok = m.shards[ownerID]; ok {
		return s
	}
	s = &ownerShard{}
	m.shards[ownerID] = s
	return s
}

// Insert adds chunks to the owner's shard. The whole batch is validated
// before anything is stored, so a failed insert leaves the shard
// untouched.
func (m *MemoryIndex) Insert(_ context.Context, ownerID string, chunks []*model.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	s := m.shard(ownerID, true)
	s.mu.Lock()
	defer s.mu.Unlock()

	dim := s.dim
	if dim == 0 {
		dim = len(chunks[0].Embedding)
	}

	norms := make([]float64, len(chunks))
	for i, c := range chunks {
		if len(c.Embedding) != dim || dim == 0 {
			return errors.ErrDimensionMismatch.WithMessage(
				"vector has dimension %d, index expects %d", len(c.Embedding), dim)
		}
		n, ok := vectorNorm(c.Embedding)
		if !ok {
			return errors.ErrInvalidVector.WithMessage("chunk %s has a zero or non-finite vector", c.ID)
		}
		norms[i] = n
	}

	s.dim = dim
	for i, c := range chunks {
		s.entries = append(s.entries, &indexEntry{
			chunk: c,
			norm:  norms[i],
			seq:   s.nextSeq,
		})
		s.nextSeq++
	}
	return nil
}

// DeleteByDocument removes every chunk of the document in one critical
// section, so a concurrent search sees either all of them or none.
func (m *MemoryIndex) DeleteByDocument(_ context.Context, ownerID, documentID string) (int, error) {
	s := m.shard(ownerID, false)
	if s == nil {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.entries[:0]
	removed := 0
	for _, e := range s.entries {
		if e.chunk.DocumentID == documentID {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	for i := len(kept); i < len(s.entries); i++ {
		s.entries[i] = nil
	}
	s.entries = kept
	return removed, nil
}

// Search scores every chunk in the owner's shard against the query and
// returns the top k by cosine similarity. Ties break toward the chunk
// inserted first.
func (m *MemoryIndex) Search(_ context.Context, ownerID string, query []float32, k int) ([]*model.ScoredPassage, error) {
	if k <= 0 {
		return nil, nil
	}

	s := m.shard(ownerID, false)
	if s == nil {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.entries) == 0 {
		return nil, nil
	}
	if len(query) != s.dim {
		return nil, errors.ErrDimensionMismatch.WithMessage(
			"query has dimension %d, index expects %d", len(query), s.dim)
	}
	queryNorm, ok := vectorNorm(query)
	if !ok {
		return nil, errors.ErrInvalidVector.WithMessage("query is a zero or non-finite vector")
	}

	// Min-heap of the k best candidates; the worst sits on top and is
	// evicted when a better one arrives.
	h := make(candidateHeap, 0, k)
	heap.Init(&h)
	for _, e := range s.entries {
		score := dotProduct(query, e.chunk.Embedding) / (queryNorm * e.norm)
		c := candidate{entry: e, score: score}
		if len(h) < k {
			heap.Push(&h, c)
			continue
		}
		if h[0].less(c) {
			h[0] = c
			heap.Fix(&h, 0)
		}
	}

	out := make([]*model.ScoredPassage, len(h))
	sort.Slice(h, func(i, j int) bool { return h[j].less(h[i]) })
	for i, c := range h {
		out[i] = &model.ScoredPassage{
			ChunkID:    c.entry.chunk.ID,
			DocumentID: c.entry.chunk.DocumentID,
			Filename:   c.entry.chunk.Filename,
			Text:       c.entry.chunk.Text,
			Score:      float32(c.score),
		}
	}
	return out, nil
}

// Count returns the number of chunks stored for the owner.
func (m *MemoryIndex) Count(_ context.Context, ownerID string) (int, error) {
	s := m.shard(ownerID, false)
	if s == nil {
		return 0, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

// Close drops all shards.
func (m *MemoryIndex) Close(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shards = make(map[string]*ownerShard)
	return nil
}

type candidate struct {
	entry *indexEntry
	score float64
}

// less orders candidates worst-first: lower score loses, and on equal
// scores the later insertion loses.
func (c candidate) less(other candidate) bool {
	if c.score != other.score {
		return c.score < other.score
	}
	return c.entry.seq > other.entry.seq
}

type candidateHeap []candidate

func (h candidateHeap) Len() int            { return len(h) }
func (h candidateHeap) Less(i, j int) bool  { return h[i].less(h[j]) }
func (h candidateHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *candidateHeap) Push(x interface{}) { *h = append(*h, x.(candidate)) }
func (h *candidateHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

func dotProduct(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// vectorNorm returns the Euclidean norm of v and whether v is usable
// for cosine similarity (finite and non-zero).
func vectorNorm(v []float32) (float64, bool) {
	var sum float64
	for _, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		sum += f * f
	}
	if sum == 0 {
		return 0, false
	}
	return math.Sqrt(sum), true
}
