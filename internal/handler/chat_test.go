package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daybook-ai/assistant-platform/internal/middleware"
	"github.com/daybook-ai/assistant-platform/internal/model"
	"github.com/daybook-ai/assistant-platform/internal/orchestrator"
	"github.com/daybook-ai/assistant-platform/internal/router"
	"github.com/daybook-ai/assistant-platform/internal/store"
	"github.com/daybook-ai/assistant-platform/pkg/logger"
)

const testConvID = "018f4d2e-5b7a-7c3d-9e1f-2a3b4c5d6e7f"

type stubRunner struct {
	result *orchestrator.TurnResult
	err    error

	gotUserID string
	gotConvID string
	gotQuery  string
}

func (s *stubRunner) RunTurn(ctx context.Context, userID, conversationID, query string) (*orchestrator.TurnResult, error) {
	s.gotUserID = userID
	s.gotConvID = conversationID
	s.gotQuery = query
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func chatRequest(t *testing.T, convID, query string) *http.Request {
	t.Helper()
	body, err := json.Marshal(model.ChatRequest{Query: query})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/conversations/"+convID+"/chat", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", convID)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
	ctx = context.WithValue(ctx, middleware.UserIDKey, "user-1")
	return req.WithContext(ctx)
}

func TestChat_Success(t *testing.T) {
	t.Parallel()

	runner := &stubRunner{result: &orchestrator.TurnResult{
		Answer:  "two meetings tomorrow",
		Route:   router.CategoryCalendar,
		Rounds:  2,
		Durable: true,
	}}
	h := NewChatHandler(runner, logger.NewNop())

	w := httptest.NewRecorder()
	h.Chat(w, chatRequest(t, testConvID, "what's tomorrow"))

	require.Equal(t, http.StatusOK, w.Code)

	var resp model.ChatResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "two meetings tomorrow", resp.Answer)
	assert.Equal(t, "calendar", resp.Route)
	assert.Equal(t, 2, resp.Rounds)
	assert.True(t, resp.Durable)

	assert.Equal(t, "user-1", runner.gotUserID)
	assert.Equal(t, testConvID, runner.gotConvID)
	assert.Equal(t, "what's tomorrow", runner.gotQuery)
}

func TestChat_UndurableStillOK(t *testing.T) {
	t.Parallel()

	runner := &stubRunner{result: &orchestrator.TurnResult{
		Answer:  "answer",
		Route:   router.CategoryNone,
		Rounds:  1,
		Durable: false,
	}}
	h := NewChatHandler(runner, logger.NewNop())

	w := httptest.NewRecorder()
	h.Chat(w, chatRequest(t, testConvID, "hi"))

	require.Equal(t, http.StatusOK, w.Code)

	var resp model.ChatResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Durable)
	assert.Equal(t, "answer", resp.Answer)
}

func TestChat_ConversationNotFound(t *testing.T) {
	t.Parallel()

	runner := &stubRunner{err: store.ErrConversationNotFound}
	h := NewChatHandler(runner, logger.NewNop())

	w := httptest.NewRecorder()
	h.Chat(w, chatRequest(t, testConvID, "hi"))

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestChat_ModelFailureIsBadGateway(t *testing.T) {
	t.Parallel()

	runner := &stubRunner{err: fmt.Errorf("%w: upstream 500", orchestrator.ErrModelCall)}
	h := NewChatHandler(runner, logger.NewNop())

	w := httptest.NewRecorder()
	h.Chat(w, chatRequest(t, testConvID, "hi"))

	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestChat_EmptyQueryRejected(t *testing.T) {
	t.Parallel()

	runner := &stubRunner{}
	h := NewChatHandler(runner, logger.NewNop())

	w := httptest.NewRecorder()
	h.Chat(w, chatRequest(t, testConvID, ""))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, runner.gotQuery)
}

func TestChat_InvalidConversationID(t *testing.T) {
	t.Parallel()

	runner := &stubRunner{}
	h := NewChatHandler(runner, logger.NewNop())

	w := httptest.NewRecorder()
	h.Chat(w, chatRequest(t, "not-a-uuid", "hi"))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
