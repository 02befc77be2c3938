package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"tutor-backend/internal/models"
)

// SQLiteChatRepo is the embedded-database counterpart of ChatRepo.
type SQLiteChatRepo struct {
	db *sql.DB
}

func NewSQLiteChatRepo(db *sql.DB) *SQLiteChatRepo {
	return &SQLiteChatRepo{db: db}
}

func (r *SQLiteChatRepo) GetBySessionID(ctx context.Context, sessionID string) (*models.Chat, error) {
	c := &models.Chat{}
	var createdAt int64
	err := r.db.QueryRowContext(ctx,
		"SELECT id, session_id, title, created_at FROM chats WHERE session_id = ?", sessionID,
	).Scan(&c.ID, &c.SessionID, &c.Title, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	c.CreatedAt = time.Unix(createdAt, 0)
	return c, nil
}

func (r *SQLiteChatRepo) CreateIfAbsent(ctx context.Context, c *models.Chat) (bool, error) {
	now := time.Now()
	var id int64
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO chats (session_id, title, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT (session_id) DO NOTHING
		RETURNING id
	`, c.SessionID, c.Title, now.Unix()).Scan(&id)
	if err == nil {
		c.ID = id
		c.CreatedAt = time.Unix(now.Unix(), 0)
		return true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("insert chat: %w", err)
	}

	existing, err := r.GetBySessionID(ctx, c.SessionID)
	if err != nil {
		return false, fmt.Errorf("load concurrently created chat: %w", err)
	}
	*c = *existing
	return false, nil
}

func (r *SQLiteChatRepo) UpdateTitle(ctx context.Context, chatID int64, title string) error {
	res, err := r.db.ExecContext(ctx, "UPDATE chats SET title = ? WHERE id = ?", title, chatID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SQLiteChatRepo) AddMessage(ctx context.Context, m *models.Message) error {
	now := time.Now()
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO messages (chat_id, sender, text, image, user_id, time_taken, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, m.ChatID, m.Sender, m.Text, m.Image, m.UserID, m.TimeTaken, now.Unix())
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	if m.ID, err = res.LastInsertId(); err != nil {
		return err
	}
	m.CreatedAt = time.Unix(now.Unix(), 0)
	return nil
}

func (r *SQLiteChatRepo) RecentMessages(ctx context.Context, chatID int64, limit int) ([]*models.Message, error) {
	return r.queryMessages(ctx, `
		SELECT id, chat_id, sender, text, image, user_id, time_taken, created_at
		FROM messages WHERE chat_id = ? ORDER BY id DESC LIMIT ?
	`, chatID, limit)
}

func (r *SQLiteChatRepo) ListMessages(ctx context.Context, chatID int64) ([]*models.Message, error) {
	return r.queryMessages(ctx, `
		SELECT id, chat_id, sender, text, image, user_id, time_taken, created_at
		FROM messages WHERE chat_id = ? ORDER BY id ASC
	`, chatID)
}

func (r *SQLiteChatRepo) queryMessages(ctx context.Context, query string, args ...interface{}) ([]*models.Message, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]*models.Message, 0)
	for rows.Next() {
		m := &models.Message{}
		var createdAt int64
		if err := rows.Scan(&m.ID, &m.ChatID, &m.Sender, &m.Text, &m.Image, &m.UserID, &m.TimeTaken, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.CreatedAt = time.Unix(createdAt, 0)
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func (r *SQLiteChatRepo) ListBySession(ctx context.Context, sessionID string) ([]*models.Chat, error) {
	return r.queryChats(ctx, `
		SELECT id, session_id, title, created_at FROM chats WHERE session_id = ? ORDER BY id
	`, sessionID)
}

func (r *SQLiteChatRepo) ListByAuthor(ctx context.Context, userID int64) ([]*models.Chat, error) {
	return r.queryChats(ctx, `
		SELECT c.id, c.session_id, c.title, c.created_at
		FROM chats c
		WHERE EXISTS (
			SELECT 1 FROM messages m
			WHERE m.chat_id = c.id AND m.user_id = ? AND m.sender = 'user'
		)
		ORDER BY c.id DESC
	`, userID)
}

func (r *SQLiteChatRepo) queryChats(ctx context.Context, query string, args ...interface{}) ([]*models.Chat, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	chats := make([]*models.Chat, 0)
	for rows.Next() {
		c := &models.Chat{}
		var createdAt int64
		if err := rows.Scan(&c.ID, &c.SessionID, &c.Title, &createdAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		c.CreatedAt = time.Unix(createdAt, 0)
		chats = append(chats, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Rows are closed before the per-chat queries: the pool holds one connection.
	for _, c := range chats {
		if c.Messages, err = r.ListMessages(ctx, c.ID); err != nil {
			return nil, err
		}
	}
	return chats, nil
}
