package models

import "time"

const (
	SenderUser = "user"
	SenderBot  = "bot"
)

// Chat is the conversation container owned by one session.
type Chat struct {
	ID        int64      `json:"id"`
	SessionID string     `json:"session_id"`
	Title     string     `json:"title"`
	CreatedAt time.Time  `json:"created_at"`
	Messages  []*Message `json:"messages"`
}

// Message is immutable once written. Ordering is by ID.
type Message struct {
	ID        int64     `json:"id"`
	ChatID    int64     `json:"chat_id"`
	Sender    string    `json:"sender"` // "user" or "bot"
	Text      *string   `json:"text"`
	Image     *string   `json:"image,omitempty"`
	UserID    *int64    `json:"user_id,omitempty"`
	TimeTaken *float64  `json:"time_taken,omitempty"` // seconds
	CreatedAt time.Time `json:"created_at"`
}

// HasText reports whether the message carries non-empty text.
func (m *Message) HasText() bool {
	return m.Text != nil && *m.Text != ""
}

// ChatMessage is one role-tagged turn handed to the judgment oracle.
type ChatMessage struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// SendMessageRequest is the inbound message record.
type SendMessageRequest struct {
	Text      *string  `json:"text"`
	Image     *string  `json:"image"`
	SessionID *string  `json:"session_id"`
	TimeTaken *float64 `json:"time_taken"` // seconds
}

type BotMessage struct {
	Text      string `json:"text"`
	Sender    string `json:"sender"`
	SessionID string `json:"session_id"`
}

type InstantReplyResponse struct {
	BotMessage BotMessage `json:"bot_message"`
}
