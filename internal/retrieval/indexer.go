package retrieval

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/daybook-ai/assistant-platform/internal/llm"
	"github.com/daybook-ai/assistant-platform/internal/model"
	"github.com/daybook-ai/assistant-platform/pkg/logger"
)

// maxChunkLen bounds chunk size in bytes; paragraphs are packed greedily up
// to this limit before a new chunk starts.
const maxChunkLen = 2000

// ChunkReplacer swaps the stored vector chunks of a document.
type ChunkReplacer interface {
	ReplaceChunks(ctx context.Context, userID, documentID string, chunks []model.DocumentChunk) error
}

// Indexer chunks and embeds document content for similarity search.
type Indexer struct {
	embedder llm.Embedder
	chunks   ChunkReplacer
	logger   *logger.Logger
}

// NewIndexer creates a new indexer.
func NewIndexer(embedder llm.Embedder, chunks ChunkReplacer, log *logger.Logger) *Indexer {
	return &Indexer{
		embedder: embedder,
		chunks:   chunks,
		logger:   log,
	}
}

// Reindex replaces the document's chunks with freshly embedded ones.
func (ix *Indexer) Reindex(ctx context.Context, userID, documentID, content string) error {
	pieces := SplitChunks(content)

	chunks := make([]model.DocumentChunk, 0, len(pieces))
	for _, piece := range pieces {
		vector, err := ix.embedder.Embed(ctx, piece)
		if err != nil {
			return fmt.Errorf("failed to embed chunk: %w", err)
		}
		chunks = append(chunks, model.DocumentChunk{
			DocumentID: documentID,
			UserID:     userID,
			Content:    piece,
			Embedding:  vector,
		})
	}

	if err := ix.chunks.ReplaceChunks(ctx, userID, documentID, chunks); err != nil {
		return fmt.Errorf("failed to replace chunks: %w", err)
	}

	ix.logger.Info("reindexed document",
		zap.String("document_id", documentID),
		zap.Int("chunks", len(chunks)),
	)

	return nil
}

// SplitChunks splits content on blank lines and packs paragraphs into
// chunks of at most maxChunkLen bytes. Oversized single paragraphs are kept
// whole rather than split mid-sentence.
func SplitChunks(content string) []string {
	paragraphs := strings.Split(content, "\n\n")

	var chunks []string
	var current strings.Builder
	for _, p := range paragraphs {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if current.Len() > 0 && current.Len()+len(p) > maxChunkLen {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(p)
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}

	return chunks
}
