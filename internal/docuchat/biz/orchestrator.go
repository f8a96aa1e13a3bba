package biz

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/kart-io/logger"

	"github.com/docuchat/docuchat/internal/docuchat/metrics"
	"github.com/docuchat/docuchat/internal/docuchat/registry"
	"github.com/docuchat/docuchat/internal/model"
	"github.com/docuchat/docuchat/pkg/llm"
	"github.com/docuchat/docuchat/pkg/utils/errors"
)

// State identifies where a chat request is in its lifecycle.
type State int

const (
	StateIdle State = iota
	StateGating
	StateRetrieving
	StateComposing
	StateAwaitingCompletion
	StateDone
	StateFailed
)

// String returns the state name for logs.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateGating:
		return "gating"
	case StateRetrieving:
		return "retrieving"
	case StateComposing:
		return "composing"
	case StateAwaitingCompletion:
		return "awaiting_completion"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Advisory texts for normal non-answer outcomes. Gating and empty
// retrieval are independent conditions with distinct messages.
const (
	AdvisoryNoDocuments = "Please upload some documents first."

	noPassagesMarker = "No relevant passages were found in the uploaded documents. " +
		"Say so if you cannot answer from general knowledge about them."
)

const defaultPromptTemplate = `You are a helpful assistant that answers questions about the user's uploaded documents.
Use only the context below to answer. If the context does not contain the answer, say so.

Context:
{{context}}

{{history}}Question: {{question}}`

// OrchestratorConfig tunes prompt composition and completion waits.
type OrchestratorConfig struct {
	// PromptTemplate must contain {{context}} and {{question}}; the
	// optional {{history}} slot receives prior turns.
	PromptTemplate string
	// MaxHistoryTurns bounds how many trailing caller-supplied turns
	// are included in the prompt.
	MaxHistoryTurns int
	// DefaultTimeout applies when the caller does not supply one.
	DefaultTimeout time.Duration
}

// DefaultOrchestratorConfig returns the default orchestrator config.
func DefaultOrchestratorConfig() *OrchestratorConfig {
	return &OrchestratorConfig{
		PromptTemplate:  defaultPromptTemplate,
		MaxHistoryTurns: 6,
		DefaultTimeout:  60 * time.Second,
	}
}

// Orchestrator drives a chat request through an explicit state machine:
// Idle, Gating, Retrieving, Composing, AwaitingCompletion, Done, with
// Failed reachable from any non-terminal state. None of the steps retry;
// retry policy belongs to the caller.
type Orchestrator struct {
	registry  *registry.Registry
	retriever *Retriever
	completer llm.ChatProvider

	mu       sync.RWMutex
	template string
	config   *OrchestratorConfig
}

// NewOrchestrator creates an orchestrator over the given collaborators.
func NewOrchestrator(reg *registry.Registry, retriever *Retriever, completer llm.ChatProvider, config *OrchestratorConfig) *Orchestrator {
	if config == nil {
		config = DefaultOrchestratorConfig()
	}
	tpl := config.PromptTemplate
	if tpl == "" {
		tpl = defaultPromptTemplate
	}
	return &Orchestrator{
		registry:  reg,
		retriever: retriever,
		completer: completer,
		template:  tpl,
		config:    config,
	}
}

// SetPromptTemplate swaps the prompt template, used by config hot reload.
func (o *Orchestrator) SetPromptTemplate(tpl string) {
	if strings.TrimSpace(tpl) == "" {
		return
	}
	o.mu.Lock()
	o.template = tpl
	o.mu.Unlock()
	logger.Infow("prompt template updated", "length", len(tpl))
}

func (o *Orchestrator) promptTemplate() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.template
}

// ChatRequest is one chat invocation.
type ChatRequest struct {
	OwnerID string
	Message string
	// History is prior turns supplied by the caller; the core never
	// stores conversation history itself.
	History []model.ConversationTurn
	// Timeout bounds the wait for the completion capability.
	Timeout time.Duration
}

// Run is the per-request state machine instance.
type Run struct {
	orch *Orchestrator
	req  ChatRequest

	state     State
	retrieval *model.RetrievalResult
	prompt    string
	result    *model.ChatResult
	err       error
}

// NewRun creates a run in the Idle state.
func (o *Orchestrator) NewRun(req ChatRequest) *Run {
	if req.Timeout <= 0 {
		req.Timeout = o.config.DefaultTimeout
	}
	return &Run{orch: o, req: req, state: StateIdle}
}

// State returns the run's current state.
func (r *Run) State() State {
	return r.state
}

// Prompt returns the composed prompt, empty before Compose.
func (r *Run) Prompt() string {
	return r.prompt
}

// Result returns the outcome once the run is terminal.
func (r *Run) Result() (*model.ChatResult, error) {
	switch r.state {
	case StateDone:
		return r.result, nil
	case StateFailed:
		return nil, r.err
	default:
		return nil, errors.ErrInternal.WithMessage("chat run is not finished (state %s)", r.state)
	}
}

func (r *Run) fail(err error) {
	logger.Warnw("chat run failed",
		"owner", r.req.OwnerID,
		"state", r.state.String(),
		"error", err.Error(),
	)
	r.state = StateFailed
	r.err = err
}

// Gate moves Idle to Gating and checks document availability. An owner
// with no ready documents finishes immediately with the no-documents
// advisory; that is a Done outcome, not a failure, and neither the
// embedder nor the completion capability is touched.
func (r *Run) Gate(ctx context.Context) {
	if r.state != StateIdle {
		r.fail(errors.ErrInternal.WithMessage("gate called in state %s", r.state))
		return
	}
	r.state = StateGating

	if !r.orch.registry.HasDocuments(ctx, r.req.OwnerID) {
		r.result = &model.ChatResult{Advisory: AdvisoryNoDocuments}
		r.state = StateDone
		return
	}
	r.state = StateRetrieving
}

// Retrieve invokes the retriever with the user's message as the query.
// Emptiness is interpreted later, in Compose.
func (r *Run) Retrieve(ctx context.Context) {
	if r.state != StateRetrieving {
		r.fail(errors.ErrInternal.WithMessage("retrieve called in state %s", r.state))
		return
	}

	start := time.Now()
	retrieval, err := r.orch.retriever.Retrieve(ctx, r.req.OwnerID, r.req.Message)
	metrics.GetChatMetrics().RecordRetrieval(time.Since(start), err)
	if err != nil {
		r.fail(err)
		return
	}
	r.retrieval = retrieval
	r.state = StateComposing
}

// Compose builds the prompt from the template, the labeled passages and
// the question. Empty retrieval despite passing the gate composes with
// an explicit no-passages marker instead of failing, so the model is
// still asked to respond, warned it lacks grounding.
func (r *Run) Compose() {
	if r.state != StateComposing {
		r.fail(errors.ErrInternal.WithMessage("compose called in state %s", r.state))
		return
	}

	contextBlock := noPassagesMarker
	if !r.retrieval.Empty() {
		var sb strings.Builder
		for i, p := range r.retrieval.Passages {
			fmt.Fprintf(&sb, "[%d] From %s:\n%s\n\n", i+1, p.Filename, p.Text)
		}
		contextBlock = strings.TrimRight(sb.String(), "\n")
	}

	prompt := r.orch.promptTemplate()
	prompt = strings.ReplaceAll(prompt, "{{context}}", contextBlock)
	prompt = strings.ReplaceAll(prompt, "{{history}}", r.historyBlock())
	prompt = strings.ReplaceAll(prompt, "{{question}}", r.req.Message)

	r.prompt = prompt
	r.state = StateAwaitingCompletion
}

func (r *Run) historyBlock() string {
	history := r.req.History
	if max := r.orch.config.MaxHistoryTurns; max > 0 && len(history) > max {
		history = history[len(history)-max:]
	}
	if len(history) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("Previous conversation:\n")
	for _, turn := range history {
		label := "User"
		if turn.Role == model.RoleAssistant {
			label = "Assistant"
		}
		fmt.Fprintf(&sb, "%s: %s\n", label, turn.Text)
	}
	sb.WriteString("\n")
	return sb.String()
}

// AwaitCompletion calls the completion capability and waits at most the
// request timeout. On timeout the wait is cancelled and the in-flight
// call keeps running in a background goroutine with its result
// discarded; the run reports Timeout.
func (r *Run) AwaitCompletion(ctx context.Context) {
	if r.state != StateAwaitingCompletion {
		r.fail(errors.ErrInternal.WithMessage("await called in state %s", r.state))
		return
	}

	type completion struct {
		text string
		err  error
	}
	ch := make(chan completion, 1)

	// The provider call is detached from the wait so cancelling the
	// wait does not tear down the call mid-flight.
	callCtx := context.WithoutCancel(ctx)
	go func() {
		text, err := r.orch.completer.Generate(callCtx, r.prompt, "")
		ch <- completion{text: text, err: err}
	}()

	timer := time.NewTimer(r.req.Timeout)
	defer timer.Stop()
	start := time.Now()

	select {
	case res := <-ch:
		metrics.GetChatMetrics().RecordCompletion(time.Since(start), res.err)
		if res.err != nil {
			r.fail(errors.ErrCompletionUnavailable.WithCause(res.err))
			return
		}
		result := &model.ChatResult{Answer: res.text}
		if r.retrieval != nil {
			result.Sources = r.retrieval.Passages
		}
		r.result = result
		r.state = StateDone
	case <-timer.C:
		r.fail(errors.ErrTimeout.WithMessage("completion did not finish within %s", r.req.Timeout))
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			r.fail(errors.ErrTimeout.WithCause(ctx.Err()))
			return
		}
		r.fail(errors.ErrChatFailed.WithCause(ctx.Err()))
	}
}

// Chat drives a run through the full state machine and returns its
// outcome.
func (o *Orchestrator) Chat(ctx context.Context, req ChatRequest) (*model.ChatResult, error) {
	run := o.NewRun(req)

	run.Gate(ctx)
	if run.state == StateRetrieving {
		run.Retrieve(ctx)
	}
	if run.state == StateComposing {
		run.Compose()
	}
	if run.state == StateAwaitingCompletion {
		run.AwaitCompletion(ctx)
	}

	return run.Result()
}
