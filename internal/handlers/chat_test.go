package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"tutor-backend/internal/models"
	"tutor-backend/internal/services"
)

type stubTutor struct {
	result   *services.SendResult
	err      error
	chats    []*models.Chat
	progress *models.ProgressResponse

	lastUser string
	lastMode services.ReplyMode
	lastReq  models.SendMessageRequest
	calls    int
}

func (s *stubTutor) SendMessage(ctx context.Context, username string, req models.SendMessageRequest, mode services.ReplyMode) (*services.SendResult, error) {
	s.calls++
	s.lastUser = username
	s.lastMode = mode
	s.lastReq = req
	return s.result, s.err
}

func (s *stubTutor) ChatsForUser(ctx context.Context, username string) ([]*models.Chat, error) {
	return s.chats, s.err
}

func (s *stubTutor) ChatsForSession(ctx context.Context, sessionID string) ([]*models.Chat, error) {
	return s.chats, s.err
}

func (s *stubTutor) Progress(ctx context.Context, username string) (*models.ProgressResponse, error) {
	return s.progress, s.err
}

func withURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func sampleResult() *services.SendResult {
	reply := "Try finding a common denominator."
	question := "What is 1/2 + 1/3?"
	chat := &models.Chat{
		ID:        7,
		SessionID: "sess-1",
		Title:     "Adding Fractions",
		Messages: []*models.Message{
			{ID: 1, ChatID: 7, Sender: models.SenderUser, Text: &question},
			{ID: 2, ChatID: 7, Sender: models.SenderBot, Text: &reply},
		},
	}
	return &services.SendResult{SessionID: "sess-1", Chat: chat, Reply: chat.Messages[1]}
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) models.APIError {
	t.Helper()
	var payload models.ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&payload); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return payload.Error
}

func TestChatHandler_SendInstant(t *testing.T) {
	tutor := &stubTutor{result: sampleResult()}
	h := NewChatHandler(tutor)

	body := []byte(`{"text":"What is 1/2 + 1/3?","time_taken":42.5}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat/send/instant/mia", bytes.NewReader(body))
	req = withURLParam(req, "username", "mia")

	rr := httptest.NewRecorder()
	h.SendInstant(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	if tutor.lastUser != "mia" || tutor.lastMode != services.ReplyInstant {
		t.Fatalf("unexpected call: user=%q mode=%v", tutor.lastUser, tutor.lastMode)
	}
	if tutor.lastReq.TimeTaken == nil || *tutor.lastReq.TimeTaken != 42.5 {
		t.Fatalf("time_taken not forwarded")
	}

	var payload models.InstantReplyResponse
	if err := json.NewDecoder(rr.Body).Decode(&payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if payload.BotMessage.Text != "Try finding a common denominator." {
		t.Fatalf("unexpected reply text: %q", payload.BotMessage.Text)
	}
	if payload.BotMessage.Sender != "bot" || payload.BotMessage.SessionID != "sess-1" {
		t.Fatalf("unexpected bot message: %+v", payload.BotMessage)
	}
}

func TestChatHandler_SendConversationalReturnsChat(t *testing.T) {
	tutor := &stubTutor{result: sampleResult()}
	h := NewChatHandler(tutor)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat/send/mia", bytes.NewReader([]byte(`{"text":"hi"}`)))
	req = withURLParam(req, "username", "mia")

	rr := httptest.NewRecorder()
	h.SendConversational(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	if tutor.lastMode != services.ReplyConversation {
		t.Fatalf("expected conversational mode")
	}

	var chat models.Chat
	if err := json.NewDecoder(rr.Body).Decode(&chat); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if chat.ID != 7 || len(chat.Messages) != 2 {
		t.Fatalf("unexpected chat payload: id=%d messages=%d", chat.ID, len(chat.Messages))
	}
}

func TestChatHandler_SendRejectsBadBody(t *testing.T) {
	tutor := &stubTutor{}
	h := NewChatHandler(tutor)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat/send/instant/mia", bytes.NewReader([]byte(`{not json`)))
	req = withURLParam(req, "username", "mia")

	rr := httptest.NewRecorder()
	h.SendInstant(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rr.Code)
	}
	if tutor.calls != 0 {
		t.Fatalf("engine should not run for malformed payloads")
	}
}

func TestChatHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"validation", &services.ValidationError{Fields: map[string]string{"text": "Text or image is required"}}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"not found", &services.NotFoundError{Message: "User not found"}, http.StatusNotFound, "NOT_FOUND"},
		{"hint oracle", &services.OracleError{Op: "hint", Err: errors.New("quota")}, http.StatusBadGateway, "AI_ERROR"},
		{"storage", errors.New("connection refused"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := NewChatHandler(&stubTutor{err: tc.err})

			req := httptest.NewRequest(http.MethodPost, "/api/v1/chat/send/check/mia", bytes.NewReader([]byte(`{"text":"x"}`)))
			req.Header.Set("X-Request-ID", "req-123")
			req = withURLParam(req, "username", "mia")

			rr := httptest.NewRecorder()
			h.SendInstant(rr, req)

			if rr.Code != tc.wantStatus {
				t.Fatalf("expected status %d, got %d", tc.wantStatus, rr.Code)
			}
			apiErr := decodeError(t, rr)
			if apiErr.Code != tc.wantCode {
				t.Fatalf("expected code %s, got %s", tc.wantCode, apiErr.Code)
			}
			if apiErr.RequestID != "req-123" {
				t.Fatalf("expected request id to be echoed, got %q", apiErr.RequestID)
			}
		})
	}
}

func TestChatHandler_ListByUserEmpty(t *testing.T) {
	h := NewChatHandler(&stubTutor{})

	req := withURLParam(httptest.NewRequest(http.MethodGet, "/api/v1/chat/user/mia", nil), "username", "mia")
	rr := httptest.NewRecorder()
	h.ListByUser(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	if body := bytes.TrimSpace(rr.Body.Bytes()); string(body) != "[]" {
		t.Fatalf("expected empty JSON array, got %s", body)
	}
}

func TestChatHandler_ListBySessionNotFound(t *testing.T) {
	h := NewChatHandler(&stubTutor{err: &services.NotFoundError{Message: "No chats found for this session"}})

	req := withURLParam(httptest.NewRequest(http.MethodGet, "/api/v1/chat/session/x", nil), "session_id", "x")
	rr := httptest.NewRecorder()
	h.ListBySession(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, rr.Code)
	}
}

func TestProgressHandler_Stats(t *testing.T) {
	h := NewProgressHandler(&stubTutor{progress: &models.ProgressResponse{
		Username: "mia", TotalAttempts: 4, CorrectAttempts: 3, Accuracy: 75, Score: 2.75, CurrentStreak: 3, MaxStreak: 3,
	}})

	req := withURLParam(httptest.NewRequest(http.MethodGet, "/api/v1/users/mia/progress", nil), "username", "mia")
	rr := httptest.NewRecorder()
	h.Stats(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	var p models.ProgressResponse
	if err := json.NewDecoder(rr.Body).Decode(&p); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if p.Accuracy != 75 || p.Score != 2.75 {
		t.Fatalf("unexpected progress: %+v", p)
	}
}
