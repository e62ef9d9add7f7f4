package retrieval

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/daybook-ai/assistant-platform/internal/model"
	"github.com/daybook-ai/assistant-platform/pkg/logger"
)

// ContextLabel prefixes an assembled context block. It appears only when the
// block is non-empty.
const ContextLabel = "relevant stored content:"

const contextSeparator = "\n\n"

// DocumentGetter fetches a document's full content by id.
type DocumentGetter interface {
	Get(ctx context.Context, documentID string) (*model.Document, error)
}

// Assembler formats retrieved documents into a single context block.
type Assembler struct {
	documents DocumentGetter
	logger    *logger.Logger
}

// NewAssembler creates a new context assembler.
func NewAssembler(documents DocumentGetter, log *logger.Logger) *Assembler {
	return &Assembler{
		documents: documents,
		logger:    log,
	}
}

// Assemble fetches each document in the given order and joins their content
// under the context label. A failed lookup is skipped and logged, never
// fatal. An empty result is the empty string with no label, so callers can
// omit the block entirely.
func (a *Assembler) Assemble(ctx context.Context, documentIDs []string) string {
	var parts []string
	for _, id := range documentIDs {
		doc, err := a.documents.Get(ctx, id)
		if err != nil {
			a.logger.Warn("skipping document",
				zap.String("document_id", id),
				zap.Error(err),
			)
			continue
		}
		if doc.Content == "" {
			continue
		}
		parts = append(parts, doc.Content)
	}

	if len(parts) == 0 {
		return ""
	}

	return ContextLabel + " " + strings.Join(parts, contextSeparator)
}
