package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/daybook-ai/assistant-platform/internal/model"
	"github.com/daybook-ai/assistant-platform/pkg/logger"
)

// ConversationStore persists conversations and their ordered messages.
// Append locks the conversation row, so concurrent turns against the same
// conversation serialize their writes instead of losing one.
type ConversationStore struct {
	pool   *pgxpool.Pool
	logger *logger.Logger
}

// NewConversationStore creates a new conversation store.
func NewConversationStore(pool *pgxpool.Pool, log *logger.Logger) *ConversationStore {
	return &ConversationStore{
		pool:   pool,
		logger: log,
	}
}

// Create creates a new conversation for a user.
func (s *ConversationStore) Create(ctx context.Context, userID string, req *model.CreateConversationRequest) (*model.Conversation, error) {
	now := time.Now()
	conv := &model.Conversation{
		ID:        uuid.Must(uuid.NewV7()).String(),
		UserID:    userID,
		Title:     req.Title,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO conversations (id, user_id, title, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		conv.ID, conv.UserID, conv.Title, conv.CreatedAt, conv.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert conversation: %w", err)
	}

	return conv, nil
}

// Get retrieves a conversation scoped to its owning user.
func (s *ConversationStore) Get(ctx context.Context, userID, conversationID string) (*model.Conversation, error) {
	var conv model.Conversation
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, title, message_count, created_at, updated_at
		 FROM conversations WHERE id = $1 AND user_id = $2`,
		conversationID, userID,
	).Scan(&conv.ID, &conv.UserID, &conv.Title, &conv.MessageCount, &conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}

	return &conv, nil
}

// List retrieves conversations for a user, most recently updated first.
func (s *ConversationStore) List(ctx context.Context, userID string, limit, offset int) (*model.ListConversationsResponse, error) {
	var total int
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM conversations WHERE user_id = $1`, userID,
	).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count conversations: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, title, message_count, created_at, updated_at
		 FROM conversations WHERE user_id = $1
		 ORDER BY updated_at DESC LIMIT $2 OFFSET $3`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	convs := []model.Conversation{}
	for rows.Next() {
		var conv model.Conversation
		if err := rows.Scan(&conv.ID, &conv.UserID, &conv.Title, &conv.MessageCount, &conv.CreatedAt, &conv.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		convs = append(convs, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read conversations: %w", err)
	}

	return &model.ListConversationsResponse{
		Conversations: convs,
		Total:         total,
		HasMore:       offset+len(convs) < total,
	}, nil
}

// Load returns the full ordered message sequence for a conversation. It
// fails with ErrConversationNotFound when the id does not belong to the
// given user; this is the authorization boundary.
func (s *ConversationStore) Load(ctx context.Context, userID, conversationID string) ([]model.Message, error) {
	if _, err := s.Get(ctx, userID, conversationID); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, conversation_id, user_id, role, content, tool_calls,
		        tool_call_id, tool_name, model, tokens_in, tokens_out,
		        latency_ms, stop_reason, seq, created_at
		 FROM messages WHERE conversation_id = $1 ORDER BY seq`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	defer rows.Close()

	var messages []model.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read messages: %w", err)
	}

	return messages, nil
}

// Append extends the conversation's message sequence atomically. Prior
// messages are never truncated or reordered. The conversation row is locked
// for the duration of the transaction so concurrent appends serialize.
func (s *ConversationStore) Append(ctx context.Context, userID, conversationID string, newMessages []model.Message) error {
	if len(newMessages) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var lockedID string
	err = tx.QueryRow(ctx,
		`SELECT id FROM conversations WHERE id = $1 AND user_id = $2 FOR UPDATE`,
		conversationID, userID,
	).Scan(&lockedID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrConversationNotFound
		}
		return fmt.Errorf("failed to lock conversation: %w", err)
	}

	var lastSeq int64
	if err := tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM messages WHERE conversation_id = $1`,
		conversationID,
	).Scan(&lastSeq); err != nil {
		return fmt.Errorf("failed to read last sequence: %w", err)
	}

	for i, msg := range newMessages {
		var toolCalls []byte
		if len(msg.ToolCalls) > 0 {
			toolCalls, err = json.Marshal(msg.ToolCalls)
			if err != nil {
				return fmt.Errorf("failed to marshal tool calls: %w", err)
			}
		}

		id := msg.ID
		if id == "" {
			id = uuid.Must(uuid.NewV7()).String()
		}
		createdAt := msg.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO messages (id, conversation_id, user_id, role, content,
			        tool_calls, tool_call_id, tool_name, model, tokens_in,
			        tokens_out, latency_ms, stop_reason, seq, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
			id, conversationID, userID, string(msg.Role), msg.Content,
			toolCalls, nullString(msg.ToolCallID), nullString(msg.ToolName),
			msg.Model, msg.TokensIn, msg.TokensOut, msg.LatencyMs,
			msg.StopReason, lastSeq+int64(i)+1, createdAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
	}

	_, err = tx.Exec(ctx,
		`UPDATE conversations
		 SET message_count = message_count + $2, updated_at = now()
		 WHERE id = $1`,
		conversationID, len(newMessages),
	)
	if err != nil {
		return fmt.Errorf("failed to update conversation: %w", err)
	}

	return tx.Commit(ctx)
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func scanMessage(rows pgx.Rows) (model.Message, error) {
	var (
		msg        model.Message
		toolCalls  []byte
		toolCallID *string
		toolName   *string
	)
	err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.UserID, &msg.Role,
		&msg.Content, &toolCalls, &toolCallID, &toolName, &msg.Model,
		&msg.TokensIn, &msg.TokensOut, &msg.LatencyMs, &msg.StopReason,
		&msg.Seq, &msg.CreatedAt)
	if err != nil {
		return model.Message{}, fmt.Errorf("failed to scan message: %w", err)
	}

	if toolCallID != nil {
		msg.ToolCallID = *toolCallID
	}
	if toolName != nil {
		msg.ToolName = *toolName
	}
	if len(toolCalls) > 0 {
		if err := json.Unmarshal(toolCalls, &msg.ToolCalls); err != nil {
			return model.Message{}, fmt.Errorf("failed to unmarshal tool calls: %w", err)
		}
	}

	return msg, nil
}
