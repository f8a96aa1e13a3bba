// Package model provides data models shared across the DocuChat core.
package model

import (
	"time"
)

// DocumentStatus tracks a document through its ingestion lifecycle.
type DocumentStatus string

const (
	// DocumentPending means the document record exists but its chunks
	// have not been attached yet.
	DocumentPending DocumentStatus = "pending"

	// DocumentReady means the document is fully ingested and searchable.
	DocumentReady DocumentStatus = "ready"
)

// Document represents one uploaded document owned by a single user.
type Document struct {
	ID        string         `json:"id"`
	OwnerID   string         `json:"owner_id"`
	Filename  string         `json:"filename"`
	Status    DocumentStatus `json:"status"`
	ChunkIDs  []string       `json:"chunk_ids,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// DocumentInfo is the listing view of a document.
type DocumentInfo struct {
	ID        string    `json:"id"`
	Filename  string    `json:"filename"`
	CreatedAt time.Time `json:"created_at"`
}

// Chunk is an immutable passage of a document together with its embedding.
// A chunk belongs to exactly one document and one owner; it is removed only
// when its document is deleted.
type Chunk struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	OwnerID    string    `json:"owner_id"`
	Filename   string    `json:"filename"`
	Text       string    `json:"text"`
	Embedding  []float32 `json:"-"`
	Position   int       `json:"position"`
}

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ConversationTurn is one prior exchange supplied by the caller. The core
// never stores conversation history itself.
type ConversationTurn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// ScoredPassage is a retrieved chunk with its similarity score.
type ScoredPassage struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	Filename   string  `json:"filename"`
	Text       string  `json:"text"`
	Score      float32 `json:"score"`
}

// RetrievalResult is an ordered, token-budgeted set of passages,
// highest score first.
type RetrievalResult struct {
	Passages []ScoredPassage `json:"passages"`
	// Tokens is the combined token length of all included passages.
	Tokens int `json:"tokens"`
}

// Empty reports whether retrieval produced no passages.
func (r *RetrievalResult) Empty() bool {
	return r == nil || len(r.Passages) == 0
}

// ChatResult is the outcome of a chat request.
type ChatResult struct {
	Answer  string          `json:"answer"`
	Sources []ScoredPassage `json:"sources,omitempty"`
	// Advisory is set for normal non-answer outcomes, e.g. when the
	// owner has no documents to ground on.
	Advisory string `json:"advisory,omitempty"`
}
