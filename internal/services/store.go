package services

import (
	"context"

	"tutor-backend/internal/models"
)

// Storage contracts the engine depends on. Both the Postgres and the SQLite
// repositories satisfy them.

type userStore interface {
	GetByUsername(ctx context.Context, username string) (*models.User, error)
}

type metricsStore interface {
	ApplyAttempt(ctx context.Context, userID int64, correct bool, scoreDelta float64) (float64, error)
	ClampScore(ctx context.Context, userID int64) (bool, error)
}

type streakStore interface {
	GetStreak(ctx context.Context, userID int64) (current, best int, err error)
	SetStreakIf(ctx context.Context, userID int64, prevCurrent, prevBest, current, best int) (bool, error)
}

type timeStore interface {
	AddTimeTaken(ctx context.Context, userID int64, minutes float64) error
}

// UserRepository is everything the engine needs from the users table.
type UserRepository interface {
	userStore
	metricsStore
	streakStore
	timeStore
}

type messageReader interface {
	RecentMessages(ctx context.Context, chatID int64, limit int) ([]*models.Message, error)
}

// ChatRepository is everything the engine needs from chats and messages.
type ChatRepository interface {
	messageReader
	GetBySessionID(ctx context.Context, sessionID string) (*models.Chat, error)
	CreateIfAbsent(ctx context.Context, c *models.Chat) (bool, error)
	UpdateTitle(ctx context.Context, chatID int64, title string) error
	AddMessage(ctx context.Context, m *models.Message) error
	ListMessages(ctx context.Context, chatID int64) ([]*models.Message, error)
	ListBySession(ctx context.Context, sessionID string) ([]*models.Chat, error)
	ListByAuthor(ctx context.Context, userID int64) ([]*models.Chat, error)
}

// TopicSource looks up the syllabus topics of a class. A nil map with a nil
// error means the class has none.
type TopicSource interface {
	ForClass(ctx context.Context, classKey string) (models.ClassTopics, error)
}

// EventPublisher pushes live updates to a user's websocket connections.
type EventPublisher interface {
	Publish(ctx context.Context, username string, msg models.WSMessage) error
}

// TitleJobQueue schedules asynchronous chat title generation.
type TitleJobQueue interface {
	EnqueueTitle(ctx context.Context, job *models.TitleJob) error
}
