package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/daybook-ai/assistant-platform/internal/model"
)

// MemoryConversationStore is an in-memory ConversationStore with the same
// serialization guarantee as the Postgres-backed one: appends to a single
// conversation never lose each other. It backs tests and local development
// without a database.
type MemoryConversationStore struct {
	mu            sync.Mutex
	conversations map[string]*model.Conversation
	messages      map[string][]model.Message
}

// NewMemoryConversationStore creates an empty in-memory store.
func NewMemoryConversationStore() *MemoryConversationStore {
	return &MemoryConversationStore{
		conversations: make(map[string]*model.Conversation),
		messages:      make(map[string][]model.Message),
	}
}

// Create creates a new conversation for a user.
func (s *MemoryConversationStore) Create(ctx context.Context, userID string, req *model.CreateConversationRequest) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	conv := &model.Conversation{
		ID:        uuid.Must(uuid.NewV7()).String(),
		UserID:    userID,
		Title:     req.Title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.conversations[conv.ID] = conv
	return conv, nil
}

// Get retrieves a conversation scoped to its owning user.
func (s *MemoryConversationStore) Get(ctx context.Context, userID, conversationID string) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok || conv.UserID != userID {
		return nil, ErrConversationNotFound
	}
	copied := *conv
	return &copied, nil
}

// Load returns the ordered message sequence for a conversation.
func (s *MemoryConversationStore) Load(ctx context.Context, userID, conversationID string) ([]model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok || conv.UserID != userID {
		return nil, ErrConversationNotFound
	}

	msgs := s.messages[conversationID]
	out := make([]model.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

// Append extends the conversation's message sequence atomically.
func (s *MemoryConversationStore) Append(ctx context.Context, userID, conversationID string, newMessages []model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok || conv.UserID != userID {
		return ErrConversationNotFound
	}

	lastSeq := int64(len(s.messages[conversationID]))
	for i, msg := range newMessages {
		if msg.ID == "" {
			msg.ID = uuid.Must(uuid.NewV7()).String()
		}
		if msg.CreatedAt.IsZero() {
			msg.CreatedAt = time.Now()
		}
		msg.ConversationID = conversationID
		msg.UserID = userID
		msg.Seq = lastSeq + int64(i) + 1
		s.messages[conversationID] = append(s.messages[conversationID], msg)
	}

	conv.MessageCount += len(newMessages)
	conv.UpdatedAt = time.Now()
	return nil
}
