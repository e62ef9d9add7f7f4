package model

import (
	"time"
)

// Document is a user-owned piece of stored content, addressed by id.
type Document struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DocumentChunk is a vector-indexed slice of a document. Chunks are
// comparable only within the same user scope.
type DocumentChunk struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	UserID     string    `json:"user_id"`
	Content    string    `json:"content"`
	Embedding  []float32 `json:"-"`
}

// CreateDocumentRequest is the request to create a document.
type CreateDocumentRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// UpdateDocumentRequest is the request to update a document. Nil fields are
// left unchanged; when UpdateEmbedding is set together with Content the
// document's chunks are re-embedded.
type UpdateDocumentRequest struct {
	Title           *string `json:"title,omitempty"`
	Content         *string `json:"content,omitempty"`
	UpdateEmbedding bool    `json:"update_embedding,omitempty"`
}
