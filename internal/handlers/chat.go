package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"tutor-backend/internal/models"
	"tutor-backend/internal/services"
)

// sendTimeout bounds one message's oracle round trips.
const sendTimeout = 2 * time.Minute

// 10 MB; image payloads arrive inline as base64.
const maxSendBody = 10 << 20

type tutorEngine interface {
	SendMessage(ctx context.Context, username string, req models.SendMessageRequest, mode services.ReplyMode) (*services.SendResult, error)
	ChatsForUser(ctx context.Context, username string) ([]*models.Chat, error)
	ChatsForSession(ctx context.Context, sessionID string) ([]*models.Chat, error)
}

type ChatHandler struct {
	tutor tutorEngine
}

func NewChatHandler(tutor tutorEngine) *ChatHandler {
	return &ChatHandler{tutor: tutor}
}

func (h *ChatHandler) send(w http.ResponseWriter, r *http.Request, mode services.ReplyMode) (*services.SendResult, bool) {
	username := strings.TrimSpace(chi.URLParam(r, "username"))
	if username == "" {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Username is required", r))
		return nil, false
	}

	var req models.SendMessageRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSendBody)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return nil, false
	}

	ctx, cancel := context.WithTimeout(r.Context(), sendTimeout)
	defer cancel()

	result, err := h.tutor.SendMessage(ctx, username, req, mode)
	if err != nil {
		handleServiceError(w, r, err)
		return nil, false
	}
	return result, true
}

// SendInstant answers with just the bot's reply.
func (h *ChatHandler) SendInstant(w http.ResponseWriter, r *http.Request) {
	result, ok := h.send(w, r, services.ReplyInstant)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, models.InstantReplyResponse{
		BotMessage: models.BotMessage{
			Text:      *result.Reply.Text,
			Sender:    models.SenderBot,
			SessionID: result.SessionID,
		},
	})
}

// SendConversational answers with the whole chat.
func (h *ChatHandler) SendConversational(w http.ResponseWriter, r *http.Request) {
	result, ok := h.send(w, r, services.ReplyConversation)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, result.Chat)
}

func (h *ChatHandler) ListByUser(w http.ResponseWriter, r *http.Request) {
	chats, err := h.tutor.ChatsForUser(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if chats == nil {
		chats = []*models.Chat{}
	}
	writeJSON(w, http.StatusOK, chats)
}

func (h *ChatHandler) ListBySession(w http.ResponseWriter, r *http.Request) {
	chats, err := h.tutor.ChatsForSession(r.Context(), chi.URLParam(r, "session_id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chats)
}
