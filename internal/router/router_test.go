package router

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"tutor-backend/internal/handlers"
	"tutor-backend/internal/middleware"
	"tutor-backend/internal/models"
	"tutor-backend/internal/services"
	"tutor-backend/internal/websocket"
)

type fakeTutor struct{}

func (fakeTutor) SendMessage(ctx context.Context, username string, req models.SendMessageRequest, mode services.ReplyMode) (*services.SendResult, error) {
	text := "hint"
	chat := &models.Chat{ID: 1, SessionID: "s"}
	return &services.SendResult{SessionID: "s", Chat: chat, Reply: &models.Message{Sender: models.SenderBot, Text: &text}}, nil
}

func (fakeTutor) ChatsForUser(ctx context.Context, username string) ([]*models.Chat, error) {
	return []*models.Chat{}, nil
}

func (fakeTutor) ChatsForSession(ctx context.Context, sessionID string) ([]*models.Chat, error) {
	return []*models.Chat{{ID: 1, SessionID: sessionID}}, nil
}

func (fakeTutor) Progress(ctx context.Context, username string) (*models.ProgressResponse, error) {
	return &models.ProgressResponse{Username: username}, nil
}

func (fakeTutor) ClassKey(ctx context.Context, username string) (string, error) {
	return "class_5", nil
}

type fakeTopics struct{}

func (fakeTopics) ForClass(ctx context.Context, classKey string) (models.ClassTopics, error) {
	return models.ClassTopics{"Fractions": nil}, nil
}

func newTestRouter(authRequired bool) (http.Handler, *middleware.JWTAuth) {
	jwtAuth := middleware.NewJWTAuth("router-secret")
	return New(
		jwtAuth,
		handlers.NewChatHandler(fakeTutor{}),
		handlers.NewProgressHandler(fakeTutor{}),
		handlers.NewSyllabusHandler(fakeTopics{}, fakeTutor{}),
		websocket.NewHub(nil, jwtAuth),
		"http://localhost:5173",
		authRequired,
	), jwtAuth
}

func bearer(t *testing.T, username string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": username,
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("router-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return "Bearer " + token
}

func TestRouter_ChatAuth(t *testing.T) {
	r, _ := newTestRouter(true)

	tests := []struct {
		name   string
		method string
		path   string
		auth   string
		want   int
	}{
		{"health is public", http.MethodGet, "/health", "", http.StatusOK},
		{"syllabus is public", http.MethodGet, "/api/v1/syllabus/5", "", http.StatusOK},
		{"send needs token", http.MethodPost, "/api/v1/chat/send/instant/mia", "", http.StatusUnauthorized},
		{"send with own token", http.MethodPost, "/api/v1/chat/send/instant/mia", bearer(t, "mia"), http.StatusOK},
		{"check with own token", http.MethodPost, "/api/v1/chat/send/check/mia", bearer(t, "mia"), http.StatusOK},
		{"conversational with own token", http.MethodPost, "/api/v1/chat/send/mia", bearer(t, "mia"), http.StatusOK},
		{"send as someone else", http.MethodPost, "/api/v1/chat/send/mia", bearer(t, "leo"), http.StatusForbidden},
		{"list own chats", http.MethodGet, "/api/v1/chat/user/mia", bearer(t, "mia"), http.StatusOK},
		{"session lookup", http.MethodGet, "/api/v1/chat/session/abc", bearer(t, "leo"), http.StatusOK},
		{"progress of another user", http.MethodGet, "/api/v1/users/mia/progress", bearer(t, "leo"), http.StatusForbidden},
		{"own progress", http.MethodGet, "/api/v1/users/mia/progress", bearer(t, "mia"), http.StatusOK},
		{"topics need token", http.MethodGet, "/api/v1/topics", "", http.StatusUnauthorized},
		{"topics for token user", http.MethodGet, "/api/v1/topics", bearer(t, "leo"), http.StatusOK},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, bytes.NewReader([]byte(`{"text":"hi"}`)))
			req.RemoteAddr = "192.0.2.1:1234"
			if tc.auth != "" {
				req.Header.Set("Authorization", tc.auth)
			}
			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, req)

			if rr.Code != tc.want {
				t.Fatalf("expected status %d, got %d (%s)", tc.want, rr.Code, rr.Body.String())
			}
		})
	}
}

func TestRouter_AuthDisabled(t *testing.T) {
	r, _ := newTestRouter(false)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat/send/instant/mia", bytes.NewReader([]byte(`{"text":"hi"}`)))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected request id header")
	}

	// topics always resolve the caller from the token
	req = httptest.NewRequest(http.MethodGet, "/api/v1/topics", nil)
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rr.Code)
	}
}
