package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/daybook-ai/assistant-platform/internal/model"
	"github.com/daybook-ai/assistant-platform/pkg/logger"
)

// DocumentStore persists documents and their vector chunks.
type DocumentStore struct {
	pool   *pgxpool.Pool
	logger *logger.Logger
}

// NewDocumentStore creates a new document store.
func NewDocumentStore(pool *pgxpool.Pool, log *logger.Logger) *DocumentStore {
	return &DocumentStore{
		pool:   pool,
		logger: log,
	}
}

// Get retrieves a document by id. Keyed lookup, no scan.
func (s *DocumentStore) Get(ctx context.Context, documentID string) (*model.Document, error) {
	var doc model.Document
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, title, content, created_at, updated_at
		 FROM documents WHERE id = $1`,
		documentID,
	).Scan(&doc.ID, &doc.UserID, &doc.Title, &doc.Content, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDocumentNotFound
		}
		return nil, fmt.Errorf("failed to get document: %w", err)
	}

	return &doc, nil
}

// Create creates a new document for a user.
func (s *DocumentStore) Create(ctx context.Context, userID string, req *model.CreateDocumentRequest) (*model.Document, error) {
	now := time.Now()
	doc := &model.Document{
		ID:        uuid.Must(uuid.NewV7()).String(),
		UserID:    userID,
		Title:     req.Title,
		Content:   req.Content,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO documents (id, user_id, title, content, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		doc.ID, doc.UserID, doc.Title, doc.Content, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert document: %w", err)
	}

	return doc, nil
}

// Update updates a document's title and content, scoped to its owner.
func (s *DocumentStore) Update(ctx context.Context, userID, documentID, title, content string) (*model.Document, error) {
	var doc model.Document
	err := s.pool.QueryRow(ctx,
		`UPDATE documents SET title = $3, content = $4, updated_at = now()
		 WHERE id = $1 AND user_id = $2
		 RETURNING id, user_id, title, content, created_at, updated_at`,
		documentID, userID, title, content,
	).Scan(&doc.ID, &doc.UserID, &doc.Title, &doc.Content, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDocumentNotFound
		}
		return nil, fmt.Errorf("failed to update document: %w", err)
	}

	return &doc, nil
}

// List retrieves all documents for a user.
func (s *DocumentStore) List(ctx context.Context, userID string) ([]model.Document, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, title, content, created_at, updated_at
		 FROM documents WHERE user_id = $1 ORDER BY updated_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	docs := []model.Document{}
	for rows.Next() {
		var doc model.Document
		if err := rows.Scan(&doc.ID, &doc.UserID, &doc.Title, &doc.Content, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read documents: %w", err)
	}

	return docs, nil
}

// SearchChunks returns document ids for the chunks nearest to the query
// vector, scoped to one user and ordered by ascending distance. Ties break
// by store iteration order, which callers must treat as non-deterministic.
func (s *DocumentStore) SearchChunks(ctx context.Context, userID string, queryVector []float32, limit int) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT document_id FROM document_chunks
		 WHERE user_id = $1
		 ORDER BY embedding <-> $2 ASC
		 LIMIT $3`,
		userID, pgvector.NewVector(queryVector), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan chunk row: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read chunk rows: %w", err)
	}

	return ids, nil
}

// ReplaceChunks atomically swaps the vector chunks of a document.
func (s *DocumentStore) ReplaceChunks(ctx context.Context, userID, documentID string, chunks []model.DocumentChunk) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`DELETE FROM document_chunks WHERE document_id = $1`, documentID,
	); err != nil {
		return fmt.Errorf("failed to delete old chunks: %w", err)
	}

	for _, chunk := range chunks {
		id := chunk.ID
		if id == "" {
			id = uuid.Must(uuid.NewV7()).String()
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO document_chunks (id, document_id, user_id, content, embedding)
			 VALUES ($1, $2, $3, $4, $5)`,
			id, documentID, userID, chunk.Content, pgvector.NewVector(chunk.Embedding),
		)
		if err != nil {
			return fmt.Errorf("failed to insert chunk: %w", err)
		}
	}

	return tx.Commit(ctx)
}
