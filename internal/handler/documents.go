package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/daybook-ai/assistant-platform/internal/middleware"
	"github.com/daybook-ai/assistant-platform/internal/model"
	"github.com/daybook-ai/assistant-platform/internal/retrieval"
	"github.com/daybook-ai/assistant-platform/internal/store"
	"github.com/daybook-ai/assistant-platform/pkg/logger"
)

// DocumentHandler handles document endpoints.
type DocumentHandler struct {
	store   *store.DocumentStore
	indexer *retrieval.Indexer
	logger  *logger.Logger
}

// NewDocumentHandler creates a new document handler.
func NewDocumentHandler(s *store.DocumentStore, idx *retrieval.Indexer, log *logger.Logger) *DocumentHandler {
	return &DocumentHandler{
		store:   s,
		indexer: idx,
		logger:  log,
	}
}

// Create handles POST /api/v1/documents
func (h *DocumentHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req model.CreateDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := middleware.ValidateTitle(req.Title); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := middleware.ValidateDocumentContent(req.Content); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	doc, err := h.store.Create(ctx, userID, &req)
	if err != nil {
		h.logger.Error("failed to create document", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create document")
		return
	}

	if err := h.indexer.Reindex(ctx, userID, doc.ID, doc.Content); err != nil {
		h.logger.Warn("failed to index document",
			zap.String("document_id", doc.ID),
			zap.Error(err))
	}

	writeJSON(w, http.StatusCreated, doc)
}

// Get handles GET /api/v1/documents/:id
func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	documentID := chi.URLParam(r, "id")

	if err := middleware.ValidateDocumentID(documentID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	doc, err := h.store.Get(ctx, documentID)
	if err != nil {
		if errors.Is(err, store.ErrDocumentNotFound) {
			writeError(w, http.StatusNotFound, "document not found")
			return
		}
		h.logger.Error("failed to get document", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to get document")
		return
	}
	if doc.UserID != userID {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}

	writeJSON(w, http.StatusOK, doc)
}

// List handles GET /api/v1/documents
func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	docs, err := h.store.List(ctx, userID)
	if err != nil {
		h.logger.Error("failed to list documents", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list documents")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"documents": docs,
		"total":     len(docs),
	})
}

// Update handles PUT /api/v1/documents/:id
func (h *DocumentHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	documentID := chi.URLParam(r, "id")

	if err := middleware.ValidateDocumentID(documentID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.UpdateDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Title != nil {
		if err := middleware.ValidateTitle(*req.Title); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if req.Content != nil {
		if err := middleware.ValidateDocumentContent(*req.Content); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	current, err := h.store.Get(ctx, documentID)
	if err != nil || current.UserID != userID {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}

	title := current.Title
	if req.Title != nil {
		title = *req.Title
	}
	content := current.Content
	if req.Content != nil {
		content = *req.Content
	}

	doc, err := h.store.Update(ctx, userID, documentID, title, content)
	if err != nil {
		if errors.Is(err, store.ErrDocumentNotFound) {
			writeError(w, http.StatusNotFound, "document not found")
			return
		}
		h.logger.Error("failed to update document", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to update document")
		return
	}

	if req.Content != nil && req.UpdateEmbedding {
		if err := h.indexer.Reindex(ctx, userID, doc.ID, doc.Content); err != nil {
			h.logger.Warn("failed to reindex document",
				zap.String("document_id", doc.ID),
				zap.Error(err))
		}
	}

	writeJSON(w, http.StatusOK, doc)
}
