package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tutor-backend/internal/models"
)

type ChatRepo struct {
	pool *pgxpool.Pool
}

func NewChatRepo(pool *pgxpool.Pool) *ChatRepo {
	return &ChatRepo{pool: pool}
}

func (r *ChatRepo) GetBySessionID(ctx context.Context, sessionID string) (*models.Chat, error) {
	c := &models.Chat{}
	err := r.pool.QueryRow(ctx,
		"SELECT id, session_id, title, created_at FROM chats WHERE session_id = $1", sessionID,
	).Scan(&c.ID, &c.SessionID, &c.Title, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// CreateIfAbsent inserts the chat unless its session already has one; either
// way c is filled from the stored row. It reports whether this call inserted.
func (r *ChatRepo) CreateIfAbsent(ctx context.Context, c *models.Chat) (bool, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO chats (session_id, title)
		VALUES ($1, $2)
		ON CONFLICT (session_id) DO NOTHING
		RETURNING id, created_at
	`, c.SessionID, c.Title).Scan(&c.ID, &c.CreatedAt)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return false, fmt.Errorf("insert chat: %w", err)
	}

	existing, err := r.GetBySessionID(ctx, c.SessionID)
	if err != nil {
		return false, fmt.Errorf("load concurrently created chat: %w", err)
	}
	*c = *existing
	return false, nil
}

func (r *ChatRepo) UpdateTitle(ctx context.Context, chatID int64, title string) error {
	tag, err := r.pool.Exec(ctx, "UPDATE chats SET title = $1 WHERE id = $2", title, chatID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ChatRepo) AddMessage(ctx context.Context, m *models.Message) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO messages (chat_id, sender, text, image, user_id, time_taken)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`, m.ChatID, m.Sender, m.Text, m.Image, m.UserID, m.TimeTaken).Scan(&m.ID, &m.CreatedAt)
}

// RecentMessages returns at most limit messages of the chat, newest first.
func (r *ChatRepo) RecentMessages(ctx context.Context, chatID int64, limit int) ([]*models.Message, error) {
	return r.queryMessages(ctx, `
		SELECT id, chat_id, sender, text, image, user_id, time_taken, created_at
		FROM messages WHERE chat_id = $1 ORDER BY id DESC LIMIT $2
	`, chatID, limit)
}

// ListMessages returns every message of the chat in timeline order.
func (r *ChatRepo) ListMessages(ctx context.Context, chatID int64) ([]*models.Message, error) {
	return r.queryMessages(ctx, `
		SELECT id, chat_id, sender, text, image, user_id, time_taken, created_at
		FROM messages WHERE chat_id = $1 ORDER BY id ASC
	`, chatID)
}

func (r *ChatRepo) queryMessages(ctx context.Context, query string, args ...interface{}) ([]*models.Message, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]*models.Message, 0)
	for rows.Next() {
		m := &models.Message{}
		if err := rows.Scan(&m.ID, &m.ChatID, &m.Sender, &m.Text, &m.Image, &m.UserID, &m.TimeTaken, &m.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func (r *ChatRepo) ListBySession(ctx context.Context, sessionID string) ([]*models.Chat, error) {
	return r.queryChats(ctx, `
		SELECT id, session_id, title, created_at FROM chats WHERE session_id = $1 ORDER BY id
	`, sessionID)
}

// ListByAuthor returns chats in which the user sent at least one message,
// newest chat first.
func (r *ChatRepo) ListByAuthor(ctx context.Context, userID int64) ([]*models.Chat, error) {
	return r.queryChats(ctx, `
		SELECT c.id, c.session_id, c.title, c.created_at
		FROM chats c
		WHERE EXISTS (
			SELECT 1 FROM messages m
			WHERE m.chat_id = c.id AND m.user_id = $1 AND m.sender = 'user'
		)
		ORDER BY c.id DESC
	`, userID)
}

func (r *ChatRepo) queryChats(ctx context.Context, query string, args ...interface{}) ([]*models.Chat, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	chats := make([]*models.Chat, 0)
	for rows.Next() {
		c := &models.Chat{}
		if err := rows.Scan(&c.ID, &c.SessionID, &c.Title, &c.CreatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		chats = append(chats, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, c := range chats {
		if c.Messages, err = r.ListMessages(ctx, c.ID); err != nil {
			return nil, err
		}
	}
	return chats, nil
}
