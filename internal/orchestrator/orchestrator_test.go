package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daybook-ai/assistant-platform/internal/llm"
	"github.com/daybook-ai/assistant-platform/internal/model"
	"github.com/daybook-ai/assistant-platform/internal/router"
	"github.com/daybook-ai/assistant-platform/internal/store"
	"github.com/daybook-ai/assistant-platform/pkg/logger"
)

// fakeLLM returns scripted responses in order and records each request.
type fakeLLM struct {
	mu        sync.Mutex
	responses []*llm.CompletionResponse
	errs      []error
	requests  []*llm.CompletionRequest
}

func (f *fakeLLM) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = append(f.requests, req)
	i := len(f.requests) - 1
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i >= len(f.responses) {
		return nil, errors.New("unscripted completion call")
	}
	return f.responses[i], nil
}

func (f *fakeLLM) Name() string { return "fake" }

type fakeRetriever struct {
	docIDs []string
	err    error
}

func (f *fakeRetriever) Retrieve(ctx context.Context, query, userID string) ([]string, error) {
	return f.docIDs, f.err
}

type fakeAssembler struct {
	block string
}

func (f *fakeAssembler) Assemble(ctx context.Context, documentIDs []string) string {
	if len(documentIDs) == 0 {
		return ""
	}
	return f.block
}

type fakeDispatcher struct {
	mu         sync.Mutex
	tools      []llm.Tool
	results    map[string]string
	dispatched []string
}

func (f *fakeDispatcher) List() []llm.Tool { return f.tools }

func (f *fakeDispatcher) Dispatch(ctx context.Context, name, args string) string {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.dispatched = append(f.dispatched, name)
	if r, ok := f.results[name]; ok {
		return r
	}
	return `{"error":"unknown tool: ` + name + `"}`
}

type fakeRouter struct {
	category router.Category
}

func (f *fakeRouter) Route(ctx context.Context, query string) router.Category {
	return f.category
}

type fakePublisher struct {
	mu     sync.Mutex
	events []*model.TurnEvent
}

func (f *fakePublisher) PublishTurn(ctx context.Context, event *model.TurnEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

// failingStore wraps the memory store to inject append failures.
type failingStore struct {
	*store.MemoryConversationStore
	appendErr error
}

func (f *failingStore) Append(ctx context.Context, userID, conversationID string, msgs []model.Message) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	return f.MemoryConversationStore.Append(ctx, userID, conversationID, msgs)
}

func textResponse(content string) *llm.CompletionResponse {
	return &llm.CompletionResponse{
		Content:    content,
		Model:      "test-model",
		TokensIn:   10,
		TokensOut:  5,
		StopReason: "stop",
	}
}

func toolResponse(calls ...llm.ToolCall) *llm.CompletionResponse {
	return &llm.CompletionResponse{
		Model:      "test-model",
		ToolCalls:  calls,
		StopReason: "tool_calls",
	}
}

func newConversation(t *testing.T, s *store.MemoryConversationStore, userID string) string {
	t.Helper()
	conv, err := s.Create(context.Background(), userID, &model.CreateConversationRequest{Title: "test"})
	require.NoError(t, err)
	return conv.ID
}

func newOrchestrator(client llm.Client, s ConversationStore, r Retriever, d ToolDispatcher, ir IntentRouter, p EventPublisher) *Orchestrator {
	return New(Config{
		ChatModel:     "test-model",
		MaxTokens:     256,
		MaxToolRounds: 2,
	}, client, s, r, &fakeAssembler{block: "relevant stored content:\n\ndoc body"}, d, ir, p, logger.NewNop())
}

func TestRunTurn_NoTools(t *testing.T) {
	t.Parallel()

	mem := store.NewMemoryConversationStore()
	convID := newConversation(t, mem, "user-1")

	client := &fakeLLM{responses: []*llm.CompletionResponse{textResponse("hello there")}}
	o := newOrchestrator(client, mem, &fakeRetriever{}, &fakeDispatcher{}, nil, nil)

	result, err := o.RunTurn(context.Background(), "user-1", convID, "hi")
	require.NoError(t, err)

	assert.Equal(t, "hello there", result.Answer)
	assert.Equal(t, 1, result.Rounds)
	assert.True(t, result.Durable)
	assert.Equal(t, router.CategoryNone, result.Route)

	msgs, err := mem.Load(context.Background(), "user-1", convID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	assert.Equal(t, model.RoleUser, msgs[0].Role)
	assert.Equal(t, "This is the user's key query: hi | end of query", msgs[0].Content)
	assert.Equal(t, model.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "hello there", msgs[1].Content)
	require.NotNil(t, msgs[1].Model)
	assert.Equal(t, "test-model", *msgs[1].Model)
}

func TestRunTurn_ContextBlockAppended(t *testing.T) {
	t.Parallel()

	mem := store.NewMemoryConversationStore()
	convID := newConversation(t, mem, "user-1")

	client := &fakeLLM{responses: []*llm.CompletionResponse{textResponse("ok")}}
	o := newOrchestrator(client, mem, &fakeRetriever{docIDs: []string{"d1"}}, &fakeDispatcher{}, nil, nil)

	_, err := o.RunTurn(context.Background(), "user-1", convID, "what did I write")
	require.NoError(t, err)

	msgs, err := mem.Load(context.Background(), "user-1", convID)
	require.NoError(t, err)

	assert.Equal(t,
		"This is the user's key query: what did I write | end of query\n\nrelevant stored content:\n\ndoc body",
		msgs[0].Content)
}

func TestRunTurn_RetrievalOutageDegrades(t *testing.T) {
	t.Parallel()

	mem := store.NewMemoryConversationStore()
	convID := newConversation(t, mem, "user-1")

	client := &fakeLLM{responses: []*llm.CompletionResponse{textResponse("answer")}}
	o := newOrchestrator(client, mem, &fakeRetriever{err: errors.New("embedder down")}, &fakeDispatcher{}, nil, nil)

	result, err := o.RunTurn(context.Background(), "user-1", convID, "hi")
	require.NoError(t, err)
	assert.True(t, result.Durable)

	msgs, err := mem.Load(context.Background(), "user-1", convID)
	require.NoError(t, err)
	assert.Equal(t, "This is the user's key query: hi | end of query", msgs[0].Content)
	assert.NotContains(t, msgs[0].Content, "relevant stored content")
}

func TestRunTurn_ToolRound(t *testing.T) {
	t.Parallel()

	mem := store.NewMemoryConversationStore()
	convID := newConversation(t, mem, "user-1")

	args, _ := json.Marshal(map[string]string{
		"start_time": "2025-03-01T00:00:00Z",
		"end_time":   "2025-03-08T00:00:00Z",
	})
	client := &fakeLLM{responses: []*llm.CompletionResponse{
		toolResponse(llm.ToolCall{ID: "call-1", Name: "calendar", Arguments: string(args)}),
		textResponse("you have two meetings"),
	}}
	dispatcher := &fakeDispatcher{
		tools:   []llm.Tool{{Name: "calendar"}},
		results: map[string]string{"calendar": `{"result":[]}`},
	}

	o := newOrchestrator(client, mem, &fakeRetriever{}, dispatcher, &fakeRouter{category: router.CategoryCalendar}, nil)

	result, err := o.RunTurn(context.Background(), "user-1", convID, "what's on my calendar next week")
	require.NoError(t, err)

	assert.Equal(t, "you have two meetings", result.Answer)
	assert.Equal(t, 2, result.Rounds)
	assert.Equal(t, router.CategoryCalendar, result.Route)
	assert.Equal(t, []string{"calendar"}, dispatcher.dispatched)

	// History order: user, assistant(tool_calls), tool, assistant(final).
	msgs, err := mem.Load(context.Background(), "user-1", convID)
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	assert.Equal(t, model.RoleUser, msgs[0].Role)
	assert.Equal(t, model.RoleAssistant, msgs[1].Role)
	require.Len(t, msgs[1].ToolCalls, 1)
	assert.Equal(t, "call-1", msgs[1].ToolCalls[0].ID)
	assert.Equal(t, model.RoleTool, msgs[2].Role)
	assert.Equal(t, "call-1", msgs[2].ToolCallID)
	assert.Equal(t, "calendar", msgs[2].ToolName)
	assert.Equal(t, model.RoleAssistant, msgs[3].Role)

	// The calendar route injects a transient system hint that is never stored.
	for _, msg := range msgs {
		assert.NotEqual(t, model.RoleSystem, msg.Role)
	}

	// The second completion sees the tool result.
	require.Len(t, client.requests, 2)
	second := client.requests[1].Messages
	assert.Equal(t, "tool", second[len(second)-1].Role)
	assert.Equal(t, `{"result":[]}`, second[len(second)-1].Content)
}

func TestRunTurn_RoundCapForcesAnswer(t *testing.T) {
	t.Parallel()

	mem := store.NewMemoryConversationStore()
	convID := newConversation(t, mem, "user-1")

	call := llm.ToolCall{ID: "c", Name: "calendar", Arguments: `{}`}
	client := &fakeLLM{responses: []*llm.CompletionResponse{
		toolResponse(call),
		toolResponse(call),
		textResponse("final answer"),
	}}
	dispatcher := &fakeDispatcher{
		tools:   []llm.Tool{{Name: "calendar"}},
		results: map[string]string{"calendar": `{"result":[]}`},
	}

	o := newOrchestrator(client, mem, &fakeRetriever{}, dispatcher, nil, nil)

	result, err := o.RunTurn(context.Background(), "user-1", convID, "loop forever")
	require.NoError(t, err)

	assert.Equal(t, "final answer", result.Answer)
	assert.Equal(t, 3, result.Rounds)

	// Rounds one and two carry tools; the third must not.
	require.Len(t, client.requests, 3)
	assert.NotEmpty(t, client.requests[0].Tools)
	assert.NotEmpty(t, client.requests[1].Tools)
	assert.Empty(t, client.requests[2].Tools)
}

func TestRunTurn_ModelFailureAbortsUnpersisted(t *testing.T) {
	t.Parallel()

	mem := store.NewMemoryConversationStore()
	convID := newConversation(t, mem, "user-1")

	client := &fakeLLM{errs: []error{errors.New("upstream 500")}}
	publisher := &fakePublisher{}
	o := newOrchestrator(client, mem, &fakeRetriever{}, &fakeDispatcher{}, nil, publisher)

	_, err := o.RunTurn(context.Background(), "user-1", convID, "hi")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrModelCall)

	// Nothing persisted, not even the user message.
	msgs, loadErr := mem.Load(context.Background(), "user-1", convID)
	require.NoError(t, loadErr)
	assert.Empty(t, msgs)

	require.Len(t, publisher.events, 1)
	assert.Equal(t, model.TurnEventFailed, publisher.events[0].Type)
}

func TestRunTurn_ConversationNotFound(t *testing.T) {
	t.Parallel()

	mem := store.NewMemoryConversationStore()
	client := &fakeLLM{responses: []*llm.CompletionResponse{textResponse("x")}}
	o := newOrchestrator(client, mem, &fakeRetriever{}, &fakeDispatcher{}, nil, nil)

	_, err := o.RunTurn(context.Background(), "user-1", "00000000-0000-0000-0000-000000000000", "hi")
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrConversationNotFound)
}

func TestRunTurn_WrongUserCannotReach(t *testing.T) {
	t.Parallel()

	mem := store.NewMemoryConversationStore()
	convID := newConversation(t, mem, "user-1")

	client := &fakeLLM{responses: []*llm.CompletionResponse{textResponse("x")}}
	o := newOrchestrator(client, mem, &fakeRetriever{}, &fakeDispatcher{}, nil, nil)

	_, err := o.RunTurn(context.Background(), "user-2", convID, "hi")
	assert.ErrorIs(t, err, store.ErrConversationNotFound)
}

func TestRunTurn_PersistenceFailureReturnsUndurable(t *testing.T) {
	t.Parallel()

	mem := store.NewMemoryConversationStore()
	convID := newConversation(t, mem, "user-1")

	failing := &failingStore{MemoryConversationStore: mem, appendErr: errors.New("connection reset")}
	client := &fakeLLM{responses: []*llm.CompletionResponse{textResponse("computed answer")}}
	publisher := &fakePublisher{}
	o := newOrchestrator(client, failing, &fakeRetriever{}, &fakeDispatcher{}, nil, publisher)

	result, err := o.RunTurn(context.Background(), "user-1", convID, "hi")
	require.NoError(t, err)

	assert.Equal(t, "computed answer", result.Answer)
	assert.False(t, result.Durable)

	msgs, loadErr := mem.Load(context.Background(), "user-1", convID)
	require.NoError(t, loadErr)
	assert.Empty(t, msgs)

	require.Len(t, publisher.events, 1)
	assert.Equal(t, model.TurnEventUndurable, publisher.events[0].Type)
}

func TestRunTurn_ConcurrentTurnsNeverLoseMessages(t *testing.T) {
	t.Parallel()

	mem := store.NewMemoryConversationStore()
	convID := newConversation(t, mem, "user-1")

	const turns = 8
	var wg sync.WaitGroup
	for i := 0; i < turns; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &fakeLLM{responses: []*llm.CompletionResponse{textResponse("ok")}}
			o := newOrchestrator(client, mem, &fakeRetriever{}, &fakeDispatcher{}, nil, nil)
			_, err := o.RunTurn(context.Background(), "user-1", convID, "ping")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	msgs, err := mem.Load(context.Background(), "user-1", convID)
	require.NoError(t, err)
	require.Len(t, msgs, turns*2)

	// Contiguous sequence numbers and intact user/assistant pairing.
	for i, msg := range msgs {
		assert.Equal(t, int64(i+1), msg.Seq)
	}
	users, assistants := 0, 0
	for _, msg := range msgs {
		switch msg.Role {
		case model.RoleUser:
			users++
		case model.RoleAssistant:
			assistants++
		}
	}
	assert.Equal(t, turns, users)
	assert.Equal(t, turns, assistants)
}

func TestFormatUserContent(t *testing.T) {
	t.Parallel()

	t.Run("without context", func(t *testing.T) {
		t.Parallel()
		got := formatUserContent("hello", "")
		assert.Equal(t, "This is the user's key query: hello | end of query", got)
	})

	t.Run("with context", func(t *testing.T) {
		t.Parallel()
		got := formatUserContent("hello", "relevant stored content:\n\nnotes")
		assert.True(t, strings.HasSuffix(got, "\n\nrelevant stored content:\n\nnotes"))
	})
}
