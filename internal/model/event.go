package model

import (
	"time"
)

// TurnEventType represents the type of turn event.
type TurnEventType string

const (
	TurnEventCompleted TurnEventType = "completed"
	TurnEventUndurable TurnEventType = "undurable"
	TurnEventFailed    TurnEventType = "failed"
)

// TurnEvent is the audit record published after each orchestration turn.
type TurnEvent struct {
	ID             string        `json:"id"`
	ConversationID string        `json:"conversation_id"`
	UserID         string        `json:"user_id"`
	Type           TurnEventType `json:"type"`
	Route          string        `json:"route,omitempty"`
	Rounds         int           `json:"rounds"`
	Reason         string        `json:"reason,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
}
