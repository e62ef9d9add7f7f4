// Package tool provides the tool registry and dispatch boundary for
// model-requested tool invocations.
package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/daybook-ai/assistant-platform/internal/llm"
	"github.com/daybook-ai/assistant-platform/pkg/logger"
	"github.com/daybook-ai/assistant-platform/pkg/metrics"
)

// ErrUnknownTool is recorded when the model requests a name that was never
// registered. It is surfaced to the model as tool output, not to the caller.
var ErrUnknownTool = errors.New("unknown tool")

// Handler executes a tool with its raw JSON arguments.
type Handler func(ctx context.Context, args json.RawMessage) (string, error)

// Descriptor describes one callable tool: a unique name, a JSON-schema
// parameter description exposed verbatim to the model, and the handler.
type Descriptor struct {
	Name        string
	Description string
	Parameters  json.RawMessage
	Handler     Handler
}

// Registry holds the process-wide tool set. It is built once at startup and
// immutable afterwards, so it is safe for concurrent use.
type Registry struct {
	tools  []Descriptor
	byName map[string]Descriptor
	logger *logger.Logger
}

// NewRegistry creates a registry from the given descriptors.
func NewRegistry(log *logger.Logger, descriptors ...Descriptor) *Registry {
	byName := make(map[string]Descriptor, len(descriptors))
	for _, d := range descriptors {
		byName[d.Name] = d
	}
	return &Registry{
		tools:  descriptors,
		byName: byName,
		logger: log,
	}
}

// List returns the registered tools as LLM tool descriptors.
func (r *Registry) List() []llm.Tool {
	out := make([]llm.Tool, len(r.tools))
	for i, d := range r.tools {
		out[i] = llm.Tool{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  d.Parameters,
		}
	}
	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	return len(r.tools)
}

// Dispatch executes a tool by name. Failures never propagate as Go errors:
// an unknown tool, malformed arguments, or a handler failure all come back
// as a structured error payload returned as tool output, so the model can
// react in its next completion instead of the turn aborting.
func (r *Registry) Dispatch(ctx context.Context, name string, args string) string {
	d, ok := r.byName[name]
	if !ok {
		r.logger.Warn("model requested unregistered tool", zap.String("tool", name))
		metrics.RecordToolInvocation(name, "unknown")
		return errorPayload(fmt.Sprintf("%v: %s", ErrUnknownTool, name))
	}

	if !json.Valid([]byte(args)) {
		metrics.RecordToolInvocation(name, "bad_arguments")
		return errorPayload("arguments are not valid JSON")
	}

	result, err := d.Handler(ctx, json.RawMessage(args))
	if err != nil {
		r.logger.Warn("tool execution failed",
			zap.String("tool", name),
			zap.Error(err),
		)
		metrics.RecordToolInvocation(name, "error")
		return errorPayload(err.Error())
	}

	metrics.RecordToolInvocation(name, "ok")
	return result
}

func errorPayload(msg string) string {
	data, err := json.Marshal(map[string]string{"error": msg})
	if err != nil {
		return `{"error":"tool execution failed"}`
	}
	return string(data)
}
