package store

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daybook-ai/assistant-platform/internal/model"
)

func TestMemoryStore_AppendAssignsContiguousSeq(t *testing.T) {
	t.Parallel()

	s := NewMemoryConversationStore()
	conv, err := s.Create(context.Background(), "user-1", &model.CreateConversationRequest{Title: "t"})
	require.NoError(t, err)

	err = s.Append(context.Background(), "user-1", conv.ID, []model.Message{
		{Role: model.RoleUser, Content: "q"},
		{Role: model.RoleAssistant, Content: "a"},
	})
	require.NoError(t, err)

	err = s.Append(context.Background(), "user-1", conv.ID, []model.Message{
		{Role: model.RoleUser, Content: "q2"},
	})
	require.NoError(t, err)

	msgs, err := s.Load(context.Background(), "user-1", conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	for i, msg := range msgs {
		assert.Equal(t, int64(i+1), msg.Seq)
	}

	got, err := s.Get(context.Background(), "user-1", conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.MessageCount)
}

func TestMemoryStore_ScopedToOwner(t *testing.T) {
	t.Parallel()

	s := NewMemoryConversationStore()
	conv, err := s.Create(context.Background(), "user-1", &model.CreateConversationRequest{})
	require.NoError(t, err)

	_, err = s.Get(context.Background(), "user-2", conv.ID)
	assert.ErrorIs(t, err, ErrConversationNotFound)

	_, err = s.Load(context.Background(), "user-2", conv.ID)
	assert.ErrorIs(t, err, ErrConversationNotFound)

	err = s.Append(context.Background(), "user-2", conv.ID, []model.Message{{Role: model.RoleUser}})
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestMemoryStore_UnknownConversation(t *testing.T) {
	t.Parallel()

	s := NewMemoryConversationStore()

	_, err := s.Load(context.Background(), "user-1", "nope")
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestMemoryStore_ConcurrentAppendsNeverLost(t *testing.T) {
	t.Parallel()

	s := NewMemoryConversationStore()
	conv, err := s.Create(context.Background(), "user-1", &model.CreateConversationRequest{})
	require.NoError(t, err)

	const writers = 16
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Append(context.Background(), "user-1", conv.ID, []model.Message{
				{Role: model.RoleUser, Content: "q"},
				{Role: model.RoleAssistant, Content: "a"},
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	msgs, err := s.Load(context.Background(), "user-1", conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, writers*2)

	seen := make(map[int64]bool, len(msgs))
	for _, msg := range msgs {
		assert.False(t, seen[msg.Seq], "duplicate seq %d", msg.Seq)
		seen[msg.Seq] = true
	}
	for i := int64(1); i <= int64(writers*2); i++ {
		assert.True(t, seen[i], "missing seq %d", i)
	}
}

func TestMemoryStore_LoadReturnsCopy(t *testing.T) {
	t.Parallel()

	s := NewMemoryConversationStore()
	conv, err := s.Create(context.Background(), "user-1", &model.CreateConversationRequest{})
	require.NoError(t, err)

	require.NoError(t, s.Append(context.Background(), "user-1", conv.ID, []model.Message{
		{Role: model.RoleUser, Content: "original"},
	}))

	msgs, err := s.Load(context.Background(), "user-1", conv.ID)
	require.NoError(t, err)
	msgs[0].Content = "mutated"

	again, err := s.Load(context.Background(), "user-1", conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "original", again[0].Content)
}
