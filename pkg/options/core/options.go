// Package core provides configuration for the chat core pipeline.
package core

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/docuchat/docuchat/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Store backends.
const (
	StoreMemory = "memory"
	StoreMilvus = "milvus"
)

// Options holds the chat core tunables: chunking, retrieval, prompt
// composition and the vector store backend.
type Options struct {
	// StoreBackend selects the vector index backend (memory, milvus).
	StoreBackend string `json:"store-backend" mapstructure:"store-backend"`

	// Collection is the Milvus collection name, ignored by the memory
	// backend.
	Collection string `json:"collection" mapstructure:"collection"`

	// ChunkMaxTokens bounds the token length of one chunk.
	ChunkMaxTokens int `json:"chunk-max-tokens" mapstructure:"chunk-max-tokens"`

	// ChunkOverlapTokens is the trailing overlap carried between
	// consecutive chunks.
	ChunkOverlapTokens int `json:"chunk-overlap-tokens" mapstructure:"chunk-overlap-tokens"`

	// TopK is the number of candidates fetched per retrieval.
	TopK int `json:"top-k" mapstructure:"top-k"`

	// TokenBudget caps the combined token count of retrieved passages.
	TokenBudget int `json:"token-budget" mapstructure:"token-budget"`

	// MaxHistoryTurns bounds prior conversation turns in the prompt.
	MaxHistoryTurns int `json:"max-history-turns" mapstructure:"max-history-turns"`

	// ChatTimeout bounds the wait for one completion call.
	ChatTimeout time.Duration `json:"chat-timeout" mapstructure:"chat-timeout"`

	// PromptTemplate overrides the built-in prompt template. It must
	// contain {{context}} and {{question}}.
	PromptTemplate string `json:"prompt-template" mapstructure:"prompt-template"`

	// EmbedWorkers caps concurrent embedding batches during ingestion.
	EmbedWorkers int `json:"embed-workers" mapstructure:"embed-workers"`

	// EmbedBatchSize is how many chunk texts go into one embed call.
	EmbedBatchSize int `json:"embed-batch-size" mapstructure:"embed-batch-size"`
}

// NewOptions creates chat core options with defaults.
func NewOptions() *Options {
	return &Options{
		StoreBackend:       StoreMemory,
		Collection:         "docuchat_chunks",
		ChunkMaxTokens:     200,
		ChunkOverlapTokens: 40,
		TopK:               3,
		TokenBudget:        1500,
		MaxHistoryTurns:    6,
		ChatTimeout:        60 * time.Second,
		EmbedWorkers:       8,
		EmbedBatchSize:     16,
	}
}

// AddFlags adds chat core flags to fs.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	prefix := options.Join(prefixes...)
	fs.StringVar(&o.StoreBackend, prefix+"store-backend", o.StoreBackend, "Vector index backend (memory, milvus)")
	fs.StringVar(&o.Collection, prefix+"collection", o.Collection, "Milvus collection name")
	fs.IntVar(&o.ChunkMaxTokens, prefix+"chunk-max-tokens", o.ChunkMaxTokens, "Maximum tokens per chunk")
	fs.IntVar(&o.ChunkOverlapTokens, prefix+"chunk-overlap-tokens", o.ChunkOverlapTokens, "Token overlap between consecutive chunks")
	fs.IntVar(&o.TopK, prefix+"top-k", o.TopK, "Number of candidates from similarity search")
	fs.IntVar(&o.TokenBudget, prefix+"token-budget", o.TokenBudget, "Token budget for retrieved passages")
	fs.IntVar(&o.MaxHistoryTurns, prefix+"max-history-turns", o.MaxHistoryTurns, "Maximum prior turns included in the prompt")
	fs.DurationVar(&o.ChatTimeout, prefix+"chat-timeout", o.ChatTimeout, "Timeout for one completion call")
	fs.StringVar(&o.PromptTemplate, prefix+"prompt-template", o.PromptTemplate, "Prompt template override ({{context}} and {{question}} required)")
	fs.IntVar(&o.EmbedWorkers, prefix+"embed-workers", o.EmbedWorkers, "Concurrent embedding batches during ingestion")
	fs.IntVar(&o.EmbedBatchSize, prefix+"embed-batch-size", o.EmbedBatchSize, "Chunk texts per embedding call")
}

// Validate checks the chat core options.
func (o *Options) Validate() []error {
	var errs []error

	if o.StoreBackend != StoreMemory && o.StoreBackend != StoreMilvus {
		errs = append(errs, fmt.Errorf("core.store-backend must be %q or %q", StoreMemory, StoreMilvus))
	}
	if o.StoreBackend == StoreMilvus && o.Collection == "" {
		errs = append(errs, fmt.Errorf("core.collection is required for the milvus backend"))
	}
	if o.ChunkMaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("core.chunk-max-tokens must be positive"))
	}
	if o.ChunkOverlapTokens < 0 {
		errs = append(errs, fmt.Errorf("core.chunk-overlap-tokens must not be negative"))
	}
	if o.ChunkOverlapTokens >= o.ChunkMaxTokens && o.ChunkMaxTokens > 0 {
		errs = append(errs, fmt.Errorf("core.chunk-overlap-tokens must be smaller than core.chunk-max-tokens"))
	}
	if o.TopK <= 0 {
		errs = append(errs, fmt.Errorf("core.top-k must be positive"))
	}
	if o.TokenBudget <= 0 {
		errs = append(errs, fmt.Errorf("core.token-budget must be positive"))
	}
	if o.ChatTimeout <= 0 {
		errs = append(errs, fmt.Errorf("core.chat-timeout must be positive"))
	}
	return errs
}
