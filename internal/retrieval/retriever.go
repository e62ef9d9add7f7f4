// Package retrieval finds and formats the user's stored content relevant to
// a query.
package retrieval

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/daybook-ai/assistant-platform/internal/llm"
	"github.com/daybook-ai/assistant-platform/pkg/logger"
	"github.com/daybook-ai/assistant-platform/pkg/metrics"
)

// ErrUnavailable wraps any embedding or similarity-query failure. It is
// non-fatal to a turn; callers degrade to an empty context.
var ErrUnavailable = errors.New("retrieval unavailable")

// DefaultTopK is the default result cap for similarity search.
const DefaultTopK = 5

// ChunkSearcher runs a nearest-neighbour query over a user's chunks.
type ChunkSearcher interface {
	SearchChunks(ctx context.Context, userID string, queryVector []float32, limit int) ([]string, error)
}

// Retriever ranks a user's documents by similarity to a query.
type Retriever struct {
	embedder llm.Embedder
	searcher ChunkSearcher
	topK     int
	logger   *logger.Logger
}

// NewRetriever creates a new retriever. topK <= 0 selects the default cap.
func NewRetriever(embedder llm.Embedder, searcher ChunkSearcher, topK int, log *logger.Logger) *Retriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Retriever{
		embedder: embedder,
		searcher: searcher,
		topK:     topK,
		logger:   log,
	}
}

// Retrieve embeds the query and returns up to topK document ids for the
// user, ordered by ascending distance. Ties break in store iteration order,
// which is not deterministic. Ids are deduplicated since several chunks of
// one document may rank.
func (r *Retriever) Retrieve(ctx context.Context, query, userID string) ([]string, error) {
	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		metrics.RecordRetrieval("embed_error")
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	chunkIDs, err := r.searcher.SearchChunks(ctx, userID, vector, r.topK)
	if err != nil {
		metrics.RecordRetrieval("search_error")
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	seen := make(map[string]bool, len(chunkIDs))
	var docIDs []string
	for _, id := range chunkIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		docIDs = append(docIDs, id)
	}

	metrics.RecordRetrieval("ok")
	r.logger.Debug("retrieved documents",
		zap.String("user_id", userID),
		zap.Int("count", len(docIDs)),
	)

	return docIDs, nil
}
