package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daybook-ai/assistant-platform/pkg/logger"
)

type stubEmbedder struct {
	vector []float32
	err    error
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.vector, nil
}

type stubSearcher struct {
	ids    []string
	err    error
	limit  int
	userID string
}

func (s *stubSearcher) SearchChunks(ctx context.Context, userID string, queryVector []float32, limit int) ([]string, error) {
	s.limit = limit
	s.userID = userID
	if s.err != nil {
		return nil, s.err
	}
	return s.ids, nil
}

func TestRetrieve_DeduplicatesPreservingOrder(t *testing.T) {
	t.Parallel()

	searcher := &stubSearcher{ids: []string{"b", "a", "b", "c", "a"}}
	r := NewRetriever(&stubEmbedder{vector: []float32{0.1}}, searcher, 5, logger.NewNop())

	got, err := r.Retrieve(context.Background(), "query", "user-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a", "c"}, got)
	assert.Equal(t, "user-1", searcher.userID)
}

func TestRetrieve_EmbedFailureWrapsUnavailable(t *testing.T) {
	t.Parallel()

	r := NewRetriever(&stubEmbedder{err: errors.New("503")}, &stubSearcher{}, 5, logger.NewNop())

	_, err := r.Retrieve(context.Background(), "query", "user-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestRetrieve_SearchFailureWrapsUnavailable(t *testing.T) {
	t.Parallel()

	searcher := &stubSearcher{err: errors.New("db down")}
	r := NewRetriever(&stubEmbedder{vector: []float32{0.1}}, searcher, 5, logger.NewNop())

	_, err := r.Retrieve(context.Background(), "query", "user-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestRetrieve_DefaultTopK(t *testing.T) {
	t.Parallel()

	searcher := &stubSearcher{}
	r := NewRetriever(&stubEmbedder{vector: []float32{0.1}}, searcher, 0, logger.NewNop())

	_, err := r.Retrieve(context.Background(), "query", "user-1")
	require.NoError(t, err)
	assert.Equal(t, DefaultTopK, searcher.limit)
}

func TestRetrieve_EmptyResult(t *testing.T) {
	t.Parallel()

	r := NewRetriever(&stubEmbedder{vector: []float32{0.1}}, &stubSearcher{}, 5, logger.NewNop())

	got, err := r.Retrieve(context.Background(), "query", "user-1")
	require.NoError(t, err)
	assert.Empty(t, got)
}
