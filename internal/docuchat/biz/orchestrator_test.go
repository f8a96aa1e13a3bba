package biz

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuchat/docuchat/internal/docuchat/registry"
	"github.com/docuchat/docuchat/internal/docuchat/store"
	"github.com/docuchat/docuchat/internal/model"
	"github.com/docuchat/docuchat/pkg/llm"
	"github.com/docuchat/docuchat/pkg/utils/errors"
)

type fakeEmbedder struct {
	mu     sync.Mutex
	vector []float32
	err    error
	calls  int
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		f.calls++
		out[i] = f.vector
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedSingle(_ context.Context, _ string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.calls++
	return f.vector, nil
}

func (f *fakeEmbedder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeEmbedder) Name() string { return "fake-embedder" }

type fakeCompleter struct {
	mu      sync.Mutex
	reply   string
	err     error
	delay   time.Duration
	prompts []string
}

func (f *fakeCompleter) record(prompt string) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
}

func (f *fakeCompleter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

func (f *fakeCompleter) lastPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.prompts) == 0 {
		return ""
	}
	return f.prompts[len(f.prompts)-1]
}

func (f *fakeCompleter) Generate(_ context.Context, prompt, _ string) (string, error) {
	f.record(prompt)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeCompleter) Chat(_ context.Context, _ []llm.Message) (string, error) {
	return f.reply, f.err
}

func (f *fakeCompleter) Name() string { return "fake-completer" }

type orchestratorFixture struct {
	index     *store.MemoryIndex
	registry  *registry.Registry
	embedder  *fakeEmbedder
	completer *fakeCompleter
	orch      *Orchestrator
}

func newOrchestratorFixture(t *testing.T, config *OrchestratorConfig) *orchestratorFixture {
	t.Helper()
	index := store.NewMemoryIndex()
	reg := registry.New(index)
	embedder := &fakeEmbedder{vector: []float32{1, 0, 0}}
	completer := &fakeCompleter{reply: "The capital of France is Paris."}
	retriever := NewRetriever(embedder, index, nil)
	return &orchestratorFixture{
		index:     index,
		registry:  reg,
		embedder:  embedder,
		completer: completer,
		orch:      NewOrchestrator(reg, retriever, completer, config),
	}
}

// seedDocument registers a ready document whose chunks carry the given
// texts, all embedded along the query axis so every chunk is retrievable.
func (f *orchestratorFixture) seedDocument(t *testing.T, ownerID, documentID, filename string, texts ...string) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, f.registry.Register(ctx, &model.Document{
		ID: documentID, OwnerID: ownerID, Filename: filename,
	}))

	chunks := make([]*model.Chunk, 0, len(texts))
	chunkIDs := make([]string, 0, len(texts))
	for i, text := range texts {
		id := documentID + "-c" + string(rune('0'+i))
		chunks = append(chunks, &model.Chunk{
			ID:         id,
			DocumentID: documentID,
			OwnerID:    ownerID,
			Filename:   filename,
			Text:       text,
			Embedding:  []float32{1, 0, 0},
			Position:   i,
		})
		chunkIDs = append(chunkIDs, id)
	}
	require.NoError(t, f.index.Insert(ctx, ownerID, chunks))
	require.NoError(t, f.registry.AttachChunks(ctx, ownerID, documentID, chunkIDs))
}

func TestChatNoDocumentsAdvisory(t *testing.T) {
	f := newOrchestratorFixture(t, nil)

	result, err := f.orch.Chat(context.Background(), ChatRequest{
		OwnerID: "alice",
		Message: "What is the capital of France?",
	})
	require.NoError(t, err)

	assert.Equal(t, AdvisoryNoDocuments, result.Advisory)
	assert.Empty(t, result.Answer)
	assert.Empty(t, result.Sources)
	// Gating short-circuits before any capability is touched.
	assert.Zero(t, f.embedder.callCount())
	assert.Zero(t, f.completer.callCount())
}

func TestChatAnswersFromDocuments(t *testing.T) {
	f := newOrchestratorFixture(t, nil)
	f.seedDocument(t, "alice", "doc1", "france.txt",
		"Paris is the capital of France.",
		"France is a country in western Europe.",
	)

	result, err := f.orch.Chat(context.Background(), ChatRequest{
		OwnerID: "alice",
		Message: "What is the capital of France?",
	})
	require.NoError(t, err)

	assert.Equal(t, "The capital of France is Paris.", result.Answer)
	require.NotEmpty(t, result.Sources)
	assert.Equal(t, "france.txt", result.Sources[0].Filename)

	prompt := f.completer.lastPrompt()
	assert.Contains(t, prompt, "[1] From france.txt:")
	assert.Contains(t, prompt, "Paris is the capital of France.")
	assert.Contains(t, prompt, "Question: What is the capital of France?")
	assert.NotContains(t, prompt, "{{context}}")
	assert.NotContains(t, prompt, "{{question}}")
}

func TestChatEmptyRetrievalStillCompletes(t *testing.T) {
	f := newOrchestratorFixture(t, nil)
	ctx := context.Background()

	// Registry says the owner has a ready document, but the index holds
	// nothing for it, so retrieval comes back empty.
	require.NoError(t, f.registry.Register(ctx, &model.Document{
		ID: "doc1", OwnerID: "alice", Filename: "empty.txt",
	}))
	require.NoError(t, f.registry.AttachChunks(ctx, "alice", "doc1", []string{"doc1-c0"}))

	result, err := f.orch.Chat(ctx, ChatRequest{OwnerID: "alice", Message: "anything?"})
	require.NoError(t, err)

	assert.Equal(t, 1, f.completer.callCount())
	assert.Contains(t, f.completer.lastPrompt(), "No relevant passages were found")
	assert.Empty(t, result.Sources)
	assert.NotEmpty(t, result.Answer)
}

func TestChatOwnerIsolation(t *testing.T) {
	f := newOrchestratorFixture(t, nil)
	f.seedDocument(t, "alice", "doc1", "alice.txt", "alice's notes")

	// Bob has no documents even though alice does.
	result, err := f.orch.Chat(context.Background(), ChatRequest{
		OwnerID: "bob",
		Message: "what do my notes say?",
	})
	require.NoError(t, err)
	assert.Equal(t, AdvisoryNoDocuments, result.Advisory)
	assert.Zero(t, f.completer.callCount())
}

func TestChatEmbedderFailure(t *testing.T) {
	f := newOrchestratorFixture(t, nil)
	f.seedDocument(t, "alice", "doc1", "a.txt", "some text")
	f.embedder.err = context.DeadlineExceeded

	_, err := f.orch.Chat(context.Background(), ChatRequest{OwnerID: "alice", Message: "q"})
	assert.ErrorIs(t, err, errors.ErrEmbeddingUnavailable)
	assert.Zero(t, f.completer.callCount())
}

func TestChatCompletionFailure(t *testing.T) {
	f := newOrchestratorFixture(t, nil)
	f.seedDocument(t, "alice", "doc1", "a.txt", "some text")
	f.completer.err = assert.AnError

	_, err := f.orch.Chat(context.Background(), ChatRequest{OwnerID: "alice", Message: "q"})
	assert.ErrorIs(t, err, errors.ErrCompletionUnavailable)
}

func TestChatCompletionTimeout(t *testing.T) {
	f := newOrchestratorFixture(t, nil)
	f.seedDocument(t, "alice", "doc1", "a.txt", "some text")
	f.completer.delay = 300 * time.Millisecond

	start := time.Now()
	_, err := f.orch.Chat(context.Background(), ChatRequest{
		OwnerID: "alice",
		Message: "q",
		Timeout: 20 * time.Millisecond,
	})
	assert.ErrorIs(t, err, errors.ErrTimeout)
	// The orchestrator stops waiting at the timeout instead of riding
	// out the slow call.
	assert.True(t, time.Since(start) < 250*time.Millisecond)
}

func TestChatHistoryBounded(t *testing.T) {
	config := DefaultOrchestratorConfig()
	config.MaxHistoryTurns = 2
	f := newOrchestratorFixture(t, config)
	f.seedDocument(t, "alice", "doc1", "a.txt", "some text")

	history := []model.ConversationTurn{
		{Role: model.RoleUser, Text: "first question"},
		{Role: model.RoleAssistant, Text: "first answer"},
		{Role: model.RoleUser, Text: "second question"},
		{Role: model.RoleAssistant, Text: "second answer"},
	}
	_, err := f.orch.Chat(context.Background(), ChatRequest{
		OwnerID: "alice",
		Message: "third question",
		History: history,
	})
	require.NoError(t, err)

	prompt := f.completer.lastPrompt()
	assert.Contains(t, prompt, "Previous conversation:")
	assert.Contains(t, prompt, "User: second question")
	assert.Contains(t, prompt, "Assistant: second answer")
	assert.NotContains(t, prompt, "first question")
}

func TestRunTransitions(t *testing.T) {
	f := newOrchestratorFixture(t, nil)
	f.seedDocument(t, "alice", "doc1", "a.txt", "some text")
	ctx := context.Background()

	run := f.orch.NewRun(ChatRequest{OwnerID: "alice", Message: "q"})
	assert.Equal(t, StateIdle, run.State())

	// Result is unavailable until the run reaches a terminal state.
	_, err := run.Result()
	assert.Error(t, err)

	run.Gate(ctx)
	assert.Equal(t, StateRetrieving, run.State())

	run.Retrieve(ctx)
	assert.Equal(t, StateComposing, run.State())

	run.Compose()
	assert.Equal(t, StateAwaitingCompletion, run.State())
	assert.NotEmpty(t, run.Prompt())

	run.AwaitCompletion(ctx)
	assert.Equal(t, StateDone, run.State())

	result, err := run.Result()
	require.NoError(t, err)
	assert.NotEmpty(t, result.Answer)
}

func TestRunOutOfOrderTransitionFails(t *testing.T) {
	f := newOrchestratorFixture(t, nil)
	f.seedDocument(t, "alice", "doc1", "a.txt", "some text")

	run := f.orch.NewRun(ChatRequest{OwnerID: "alice", Message: "q"})
	run.Retrieve(context.Background())

	assert.Equal(t, StateFailed, run.State())
	_, err := run.Result()
	assert.ErrorIs(t, err, errors.ErrInternal)
}

func TestSetPromptTemplate(t *testing.T) {
	f := newOrchestratorFixture(t, nil)
	f.seedDocument(t, "alice", "doc1", "a.txt", "some text")

	f.orch.SetPromptTemplate("CTX {{context}} Q {{question}}")
	// Blank templates are ignored so a bad reload cannot break chat.
	f.orch.SetPromptTemplate("   ")

	_, err := f.orch.Chat(context.Background(), ChatRequest{OwnerID: "alice", Message: "hello"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(f.completer.lastPrompt(), "CTX "))
	assert.Contains(t, f.completer.lastPrompt(), "Q hello")
}
