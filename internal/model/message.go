package model

import (
	"time"
)

// Role represents the role of a message sender.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// ToolCall is a model's structured request to invoke a named tool.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Message represents a conversation message. Messages are immutable once
// appended; history is only ever extended.
type Message struct {
	// Identity
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`

	// Content
	Role    Role   `json:"role"`
	Content string `json:"content"`

	// Tool-call metadata. ToolCalls is set on an assistant message that
	// requests tools; ToolCallID and ToolName on the tool-role message
	// carrying the paired result.
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolName   string     `json:"tool_name,omitempty"`

	// LLM metadata (nullable for non-assistant messages)
	Model      *string `json:"model,omitempty"`
	TokensIn   *int    `json:"tokens_in,omitempty"`
	TokensOut  *int    `json:"tokens_out,omitempty"`
	LatencyMs  *int64  `json:"latency_ms,omitempty"`
	StopReason *string `json:"stop_reason,omitempty"`

	// Ordering within the conversation, assigned by the store on append.
	Seq int64 `json:"seq,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// ChatRequest is the request to run one orchestration turn.
type ChatRequest struct {
	Query string `json:"query"`
}

// ChatResponse is the response after a completed turn. Durable is false when
// the answer was computed but persistence failed; a subsequent message load
// may not reflect this exchange.
type ChatResponse struct {
	Answer  string `json:"answer"`
	Route   string `json:"route,omitempty"`
	Rounds  int    `json:"rounds"`
	Durable bool   `json:"durable"`
}

// ListMessagesResponse is the response for listing messages.
type ListMessagesResponse struct {
	Messages []Message `json:"messages"`
	Total    int       `json:"total"`
}
