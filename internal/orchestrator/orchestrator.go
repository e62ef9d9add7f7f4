// Package orchestrator drives one turn of the query pipeline: route,
// retrieve, negotiate tool calls with the model, and persist the exchange.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/daybook-ai/assistant-platform/internal/llm"
	"github.com/daybook-ai/assistant-platform/internal/model"
	"github.com/daybook-ai/assistant-platform/internal/router"
	"github.com/daybook-ai/assistant-platform/pkg/logger"
	"github.com/daybook-ai/assistant-platform/pkg/metrics"
)

// ErrModelCall wraps a completion failure. It aborts the turn; there is no
// partial answer to return.
var ErrModelCall = errors.New("model call failed")

// ConversationStore is the conversation persistence collaborator. Load
// enforces the (user, conversation) authorization boundary; Append extends
// the sequence atomically and serializes writes per conversation.
type ConversationStore interface {
	Load(ctx context.Context, userID, conversationID string) ([]model.Message, error)
	Append(ctx context.Context, userID, conversationID string, newMessages []model.Message) error
}

// Retriever ranks the user's stored documents against the query.
type Retriever interface {
	Retrieve(ctx context.Context, query, userID string) ([]string, error)
}

// ContextAssembler formats retrieved documents into a context block.
type ContextAssembler interface {
	Assemble(ctx context.Context, documentIDs []string) string
}

// ToolDispatcher exposes the registered tools and executes invocations.
type ToolDispatcher interface {
	List() []llm.Tool
	Dispatch(ctx context.Context, name, args string) string
}

// IntentRouter pre-classifies the query's tool intent.
type IntentRouter interface {
	Route(ctx context.Context, query string) router.Category
}

// EventPublisher records turn outcomes on the audit stream. Publishing is
// best effort; failures are logged, never fatal.
type EventPublisher interface {
	PublishTurn(ctx context.Context, event *model.TurnEvent) error
}

// Config holds the per-deployment orchestration knobs.
type Config struct {
	ChatModel       string
	Temperature     float64
	MaxTokens       int
	MaxToolRounds   int
	RoutingEnabled  bool
	LLMCallTimeout  time.Duration
	ToolCallTimeout time.Duration
}

// TurnResult is the outcome of one completed turn. Durable is false when the
// answer was computed but the conversation extension could not be recorded;
// a subsequent Load may not reflect this exchange.
type TurnResult struct {
	Answer  string
	Route   router.Category
	Rounds  int
	Durable bool
}

// Orchestrator runs the turn state machine. One instance serves all turns;
// it holds no per-turn state and no locks.
type Orchestrator struct {
	cfg       Config
	llm       llm.Client
	store     ConversationStore
	retriever Retriever
	assembler ContextAssembler
	tools     ToolDispatcher
	router    IntentRouter
	events    EventPublisher
	logger    *logger.Logger
}

// New creates an orchestrator. router and events may be nil to disable
// routing and event publishing.
func New(
	cfg Config,
	client llm.Client,
	store ConversationStore,
	retriever Retriever,
	assembler ContextAssembler,
	tools ToolDispatcher,
	intentRouter IntentRouter,
	events EventPublisher,
	log *logger.Logger,
) *Orchestrator {
	if cfg.MaxToolRounds <= 0 {
		cfg.MaxToolRounds = 2
	}
	return &Orchestrator{
		cfg:       cfg,
		llm:       client,
		store:     store,
		retriever: retriever,
		assembler: assembler,
		tools:     tools,
		router:    intentRouter,
		events:    events,
		logger:    log,
	}
}

// RunTurn processes one user query end to end and returns the assistant's
// answer. Only a missing conversation or a failed model call abort the turn;
// retrieval and tool failures degrade, and a persistence failure still
// returns the answer with Durable set to false.
func (o *Orchestrator) RunTurn(ctx context.Context, userID, conversationID, query string) (*TurnResult, error) {
	start := time.Now()
	log := o.logger.WithTurn(userID, conversationID)

	// RoutingOrSkip. The decision only preloads a specialized hint; the
	// tool-enabled call proceeds regardless.
	route := router.CategoryNone
	if o.cfg.RoutingEnabled && o.router != nil {
		route = o.router.Route(ctx, query)
		log.Debug("routed query", zap.String("category", string(route)))
	}

	// Retrieving. Failure degrades to an empty context, never aborts.
	contextBlock := ""
	docIDs, err := o.retriever.Retrieve(ctx, query, userID)
	if err != nil {
		log.Warn("retrieval unavailable, continuing with empty context", zap.Error(err))
	} else {
		contextBlock = o.assembler.Assemble(ctx, docIDs)
	}

	// FirstCompletion reads the history exactly once; Persisting later
	// extends that same sequence.
	history, err := o.store.Load(ctx, userID, conversationID)
	if err != nil {
		metrics.RecordTurn("failed", time.Since(start).Seconds(), 0)
		return nil, err
	}

	userMsg := model.Message{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conversationID,
		UserID:         userID,
		Role:           model.RoleUser,
		Content:        formatUserContent(query, contextBlock),
		CreatedAt:      time.Now(),
	}

	chat := historyToChat(history)
	if route == router.CategoryCalendar {
		chat = append(chat, llm.ChatMessage{
			Role:    string(model.RoleSystem),
			Content: calendarHint(time.Now().UTC()),
		})
	}
	chat = append(chat, toChatMessage(userMsg))

	pending := []model.Message{userMsg}

	var final *llm.CompletionResponse
	rounds := 0
	for {
		rounds++

		req := &llm.CompletionRequest{
			Model:       o.cfg.ChatModel,
			Messages:    chat,
			MaxTokens:   o.cfg.MaxTokens,
			Temperature: o.cfg.Temperature,
		}
		// Tools are re-attached each round up to the cap; the round after
		// the cap runs without them, forcing a text answer.
		if rounds <= o.cfg.MaxToolRounds {
			req.Tools = o.tools.List()
		}

		resp, err := o.complete(ctx, req)
		if err != nil {
			metrics.RecordTurn("failed", time.Since(start).Seconds(), rounds)
			o.publishEvent(ctx, userID, conversationID, model.TurnEventFailed, route, rounds, err.Error())
			return nil, fmt.Errorf("%w: %v", ErrModelCall, err)
		}
		metrics.RecordTokens(resp.Model, resp.TokensIn, resp.TokensOut)

		// ToolExecutionOrDone.
		if len(resp.ToolCalls) == 0 || rounds > o.cfg.MaxToolRounds {
			final = resp
			break
		}

		assistantMsg := model.Message{
			ID:             uuid.Must(uuid.NewV7()).String(),
			ConversationID: conversationID,
			UserID:         userID,
			Role:           model.RoleAssistant,
			Content:        resp.Content,
			ToolCalls:      toModelToolCalls(resp.ToolCalls),
			CreatedAt:      time.Now(),
		}
		pending = append(pending, assistantMsg)
		chat = append(chat, toChatMessage(assistantMsg))

		// Sequential, in request order: a later call's arguments must never
		// be computed against an earlier call's unexecuted result.
		for _, tc := range resp.ToolCalls {
			result := o.dispatch(ctx, tc)
			toolMsg := model.Message{
				ID:             uuid.Must(uuid.NewV7()).String(),
				ConversationID: conversationID,
				UserID:         userID,
				Role:           model.RoleTool,
				Content:        result,
				ToolCallID:     tc.ID,
				ToolName:       tc.Name,
				CreatedAt:      time.Now(),
			}
			pending = append(pending, toolMsg)
			chat = append(chat, toChatMessage(toolMsg))
		}
	}

	assistantMsg := model.Message{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conversationID,
		UserID:         userID,
		Role:           model.RoleAssistant,
		Content:        final.Content,
		Model:          &final.Model,
		TokensIn:       &final.TokensIn,
		TokensOut:      &final.TokensOut,
		LatencyMs:      &final.LatencyMs,
		StopReason:     &final.StopReason,
		CreatedAt:      time.Now(),
	}
	pending = append(pending, assistantMsg)

	result := &TurnResult{
		Answer:  final.Content,
		Route:   route,
		Rounds:  rounds,
		Durable: true,
	}

	// Persisting. Once started, the append runs to completion even if the
	// caller has gone away; a tool-role message must never be recorded
	// without its paired assistant message.
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := o.store.Append(persistCtx, userID, conversationID, pending); err != nil {
		log.Error("failed to persist turn, answer returned undurable", zap.Error(err))
		metrics.UndurableTurnsTotal.Inc()
		metrics.RecordTurn("undurable", time.Since(start).Seconds(), rounds)
		o.publishEvent(ctx, userID, conversationID, model.TurnEventUndurable, route, rounds, err.Error())
		result.Durable = false
		return result, nil
	}

	for _, msg := range pending {
		metrics.MessagesTotal.WithLabelValues(string(msg.Role)).Inc()
	}
	metrics.RecordTurn("ok", time.Since(start).Seconds(), rounds)
	o.publishEvent(ctx, userID, conversationID, model.TurnEventCompleted, route, rounds, "")

	log.Info("turn completed",
		zap.Int("rounds", rounds),
		zap.String("route", string(route)),
		zap.Duration("duration", time.Since(start)),
	)

	return result, nil
}

func (o *Orchestrator) complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	callCtx := ctx
	if o.cfg.LLMCallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, o.cfg.LLMCallTimeout)
		defer cancel()
	}
	return o.llm.Complete(callCtx, req)
}

func (o *Orchestrator) dispatch(ctx context.Context, tc llm.ToolCall) string {
	callCtx := ctx
	if o.cfg.ToolCallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, o.cfg.ToolCallTimeout)
		defer cancel()
	}
	return o.tools.Dispatch(callCtx, tc.Name, tc.Arguments)
}

func (o *Orchestrator) publishEvent(ctx context.Context, userID, conversationID string, eventType model.TurnEventType, route router.Category, rounds int, reason string) {
	if o.events == nil {
		return
	}
	event := &model.TurnEvent{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conversationID,
		UserID:         userID,
		Type:           eventType,
		Route:          string(route),
		Rounds:         rounds,
		Reason:         reason,
		CreatedAt:      time.Now(),
	}
	if err := o.events.PublishTurn(context.WithoutCancel(ctx), event); err != nil {
		o.logger.Warn("failed to publish turn event", zap.Error(err))
	}
}

// formatUserContent builds the stored user message: the literal query plus
// the context block, which is omitted entirely when empty.
func formatUserContent(query, contextBlock string) string {
	content := "This is the user's key query: " + query + " | end of query"
	if contextBlock != "" {
		content += "\n\n" + contextBlock
	}
	return content
}

func calendarHint(now time.Time) string {
	return "You are a calendar assistant. Use the calendar tool to retrieve the user's schedule and summarize it accurately, addressing each category of events in bullet points. Determine start_time and end_time from the user query; it is currently " + now.Format(time.RFC3339)
}

func historyToChat(history []model.Message) []llm.ChatMessage {
	chat := make([]llm.ChatMessage, 0, len(history)+4)
	for _, msg := range history {
		chat = append(chat, toChatMessage(msg))
	}
	return chat
}

func toChatMessage(msg model.Message) llm.ChatMessage {
	out := llm.ChatMessage{
		Role:       string(msg.Role),
		Content:    msg.Content,
		ToolCallID: msg.ToolCallID,
		Name:       msg.ToolName,
	}
	for _, tc := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, llm.ToolCall{
			ID:        tc.ID,
			Name:      tc.Name,
			Arguments: tc.Arguments,
		})
	}
	return out
}

func toModelToolCalls(calls []llm.ToolCall) []model.ToolCall {
	out := make([]model.ToolCall, len(calls))
	for i, tc := range calls {
		out[i] = model.ToolCall{
			ID:        tc.ID,
			Name:      tc.Name,
			Arguments: tc.Arguments,
		}
	}
	return out
}
