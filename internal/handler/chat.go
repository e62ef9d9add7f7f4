package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/daybook-ai/assistant-platform/internal/middleware"
	"github.com/daybook-ai/assistant-platform/internal/model"
	"github.com/daybook-ai/assistant-platform/internal/orchestrator"
	"github.com/daybook-ai/assistant-platform/internal/store"
	"github.com/daybook-ai/assistant-platform/pkg/logger"
)

// TurnRunner executes one turn of the chat pipeline.
type TurnRunner interface {
	RunTurn(ctx context.Context, userID, conversationID, query string) (*orchestrator.TurnResult, error)
}

// ChatHandler handles turn execution endpoints.
type ChatHandler struct {
	orchestrator TurnRunner
	logger       *logger.Logger
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(o TurnRunner, log *logger.Logger) *ChatHandler {
	return &ChatHandler{
		orchestrator: o,
		logger:       log,
	}
}

// Chat handles POST /api/v1/conversations/:id/chat
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := middleware.ValidateQuery(req.Query); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.orchestrator.RunTurn(ctx, userID, conversationID, req.Query)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrConversationNotFound):
			writeError(w, http.StatusNotFound, "conversation not found")
		case errors.Is(err, orchestrator.ErrModelCall):
			h.logger.Error("model call failed",
				zap.String("conversation_id", conversationID),
				zap.Error(err))
			writeError(w, http.StatusBadGateway, "model call failed")
		default:
			h.logger.Error("turn failed",
				zap.String("conversation_id", conversationID),
				zap.Error(err))
			writeError(w, http.StatusInternalServerError, "turn failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, model.ChatResponse{
		Answer:  result.Answer,
		Route:   string(result.Route),
		Rounds:  result.Rounds,
		Durable: result.Durable,
	})
}
