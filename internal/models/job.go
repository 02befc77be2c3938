package models

import "time"

const JobTypeChatTitle = "chat-title"

// TitleJob asks a worker to replace a placeholder chat title with a generated one.
type TitleJob struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	ChatID     int64     `json:"chat_id"`
	Username   string    `json:"username"`
	Text       string    `json:"text"`
	RetryCount int       `json:"retry_count"`
	MaxRetries int       `json:"max_retries"`
	CreatedAt  time.Time `json:"created_at"`
}

// WebSocket message types
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type MessageCreatedEvent struct {
	ChatID    int64  `json:"chat_id"`
	SessionID string `json:"session_id"`
	MessageID int64  `json:"message_id"`
	Sender    string `json:"sender"`
	Text      string `json:"text"`
}

type ChatTitleEvent struct {
	ChatID int64  `json:"chat_id"`
	Title  string `json:"title"`
}

type APIError struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id"`
}

type ErrorResponse struct {
	Error APIError `json:"error"`
}
