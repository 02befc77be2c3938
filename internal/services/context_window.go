package services

import (
	"context"
	"fmt"
	"strings"

	"tutor-backend/internal/models"
)

// ContextWindow reads the last few turns of a chat. It never writes.
type ContextWindow struct {
	messages messageReader
}

func NewContextWindow(messages messageReader) *ContextWindow {
	return &ContextWindow{messages: messages}
}

// Recent returns at most size messages with text, oldest first.
func (w *ContextWindow) Recent(ctx context.Context, chatID int64, size int) ([]*models.Message, error) {
	if size <= 0 {
		return nil, nil
	}

	newestFirst, err := w.messages.RecentMessages(ctx, chatID, size)
	if err != nil {
		return nil, fmt.Errorf("load recent messages: %w", err)
	}
	if len(newestFirst) > size {
		newestFirst = newestFirst[:size]
	}

	out := make([]*models.Message, 0, len(newestFirst))
	for i := len(newestFirst) - 1; i >= 0; i-- {
		if m := newestFirst[i]; m.HasText() {
			out = append(out, m)
		}
	}
	return out, nil
}

// Transcript renders the window as "User: ..." / "Bot: ..." lines.
func (w *ContextWindow) Transcript(ctx context.Context, chatID int64, size int) (string, error) {
	msgs, err := w.Recent(ctx, chatID, size)
	if err != nil {
		return "", err
	}

	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		lines = append(lines, senderLabel(m.Sender)+": "+*m.Text)
	}
	return strings.Join(lines, "\n"), nil
}

// Conversation renders the window as role/content pairs; bot turns become
// "assistant".
func (w *ContextWindow) Conversation(ctx context.Context, chatID int64, size int) ([]models.ChatMessage, error) {
	msgs, err := w.Recent(ctx, chatID, size)
	if err != nil {
		return nil, err
	}

	out := make([]models.ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		role := "user"
		if m.Sender == models.SenderBot {
			role = "assistant"
		}
		out = append(out, models.ChatMessage{Role: role, Content: *m.Text})
	}
	return out, nil
}

func senderLabel(sender string) string {
	if sender == "" {
		return ""
	}
	return strings.ToUpper(sender[:1]) + strings.ToLower(sender[1:])
}
