// Package router classifies a query's tool intent with one cheap model call
// before the full tool-enabled completion is spent.
package router

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/daybook-ai/assistant-platform/internal/llm"
	"github.com/daybook-ai/assistant-platform/pkg/logger"
	"github.com/daybook-ai/assistant-platform/pkg/metrics"
)

// Category is the routing decision for a query.
type Category string

const (
	CategoryNone     Category = "none"
	CategoryCalendar Category = "calendar"
)

// Sentinel tokens the model is instructed to emit. Matching is by substring;
// anything unrecognized falls back to CategoryNone.
const (
	sentinelCalendar = "TOOL: CALENDAR"
	sentinelNone     = "NO TOOL"
)

const systemInstruction = "You are a routing assistant. Determine if tools are needed based on the user query."

const routingPromptFormat = `Given the following user query, determine if any tools are needed to answer it.
If a calendar tool is needed, respond with 'TOOL: CALENDAR'.
If no tools are needed, respond with 'NO TOOL'.

User query: %s

Response:`

// Router decides whether a query needs a specific tool category.
type Router struct {
	client llm.Client
	model  string
	logger *logger.Logger
}

// New creates a new intent router backed by the given client. model may be
// empty to use the provider default.
func New(client llm.Client, model string, log *logger.Logger) *Router {
	return &Router{
		client: client,
		model:  model,
		logger: log,
	}
}

// Route classifies the query. It has no side effects and is idempotent. Any
// model failure or unrecognized output defaults to CategoryNone: routing is
// an optimization, never a gate.
func (r *Router) Route(ctx context.Context, query string) Category {
	resp, err := r.client.Complete(ctx, &llm.CompletionRequest{
		Model: r.model,
		Messages: []llm.ChatMessage{
			{Role: "system", Content: systemInstruction},
			{Role: "user", Content: fmt.Sprintf(routingPromptFormat, query)},
		},
		MaxTokens: 20,
	})
	if err != nil {
		r.logger.Warn("routing call failed, defaulting to none", zap.Error(err))
		metrics.RouterDecisionsTotal.WithLabelValues(string(CategoryNone)).Inc()
		return CategoryNone
	}

	decision := strings.TrimSpace(resp.Content)

	category := CategoryNone
	if strings.Contains(decision, sentinelCalendar) {
		category = CategoryCalendar
	}

	metrics.RouterDecisionsTotal.WithLabelValues(string(category)).Inc()
	return category
}
