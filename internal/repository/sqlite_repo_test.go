package repository

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tutor-backend/internal/database"
	"tutor-backend/internal/models"
)

func newTestRepos(t *testing.T) (*SQLiteUserRepo, *SQLiteChatRepo) {
	t.Helper()
	db, err := database.NewSQLite(filepath.Join(t.TempDir(), "tutor.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewSQLiteUserRepo(db), NewSQLiteChatRepo(db)
}

func seedUser(t *testing.T, users *SQLiteUserRepo, username string) *models.User {
	t.Helper()
	u := &models.User{Username: username, Name: username}
	require.NoError(t, users.Create(context.Background(), u))
	return u
}

func strPtr(s string) *string { return &s }

func TestSQLiteUserRepo_GetByUsername(t *testing.T) {
	users, _ := newTestRepos(t)
	ctx := context.Background()
	seeded := seedUser(t, users, "ana")

	got, err := users.GetByUsername(ctx, "ana")
	require.NoError(t, err)
	assert.Equal(t, seeded.ID, got.ID)
	assert.Equal(t, models.DefaultClassLevel, got.Level)
	assert.Zero(t, got.Metrics.TotalTimeTaken)

	_, err = users.GetByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteUserRepo_ApplyAttemptAndClamp(t *testing.T) {
	users, _ := newTestRepos(t)
	ctx := context.Background()
	u := seedUser(t, users, "ben")

	score, err := users.ApplyAttempt(ctx, u.ID, false, -0.25)
	require.NoError(t, err)
	assert.Equal(t, -0.25, score)

	clamped, err := users.ClampScore(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, clamped)

	clamped, err = users.ClampScore(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, clamped, "second clamp must be a no-op")

	got, err := users.GetByUsername(ctx, u.Username)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Metrics.TotalAttempts)
	assert.Equal(t, 0, got.Metrics.CorrectAttempts)
	assert.Equal(t, 0.0, got.Metrics.Score)

	_, err = users.ApplyAttempt(ctx, 9999, true, 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteUserRepo_ConcurrentAttemptsAllLand(t *testing.T) {
	users, _ := newTestRepos(t)
	ctx := context.Background()
	u := seedUser(t, users, "cleo")

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := users.ApplyAttempt(ctx, u.ID, true, 1.0)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := users.GetByUsername(ctx, u.Username)
	require.NoError(t, err)
	assert.Equal(t, n, got.Metrics.TotalAttempts)
	assert.Equal(t, n, got.Metrics.CorrectAttempts)
	assert.Equal(t, float64(n), got.Metrics.Score)
}

func TestSQLiteUserRepo_SetStreakIf(t *testing.T) {
	users, _ := newTestRepos(t)
	ctx := context.Background()
	u := seedUser(t, users, "dan")

	ok, err := users.SetStreakIf(ctx, u.ID, 0, 0, 1, 1)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = users.SetStreakIf(ctx, u.ID, 0, 0, 5, 5)
	require.NoError(t, err)
	assert.False(t, ok, "stale previous pair must not overwrite")

	cur, best, err := users.GetStreak(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, cur)
	assert.Equal(t, 1, best)
}

func TestSQLiteUserRepo_AddTimeTakenCoalescesNull(t *testing.T) {
	users, _ := newTestRepos(t)
	ctx := context.Background()
	u := seedUser(t, users, "eve")

	require.NoError(t, users.AddTimeTaken(ctx, u.ID, 1.5))
	require.NoError(t, users.AddTimeTaken(ctx, u.ID, 0.5))

	got, err := users.GetByUsername(ctx, u.Username)
	require.NoError(t, err)
	assert.Equal(t, 2.0, got.Metrics.TotalTimeTaken)

	assert.ErrorIs(t, users.AddTimeTaken(ctx, 4242, 1), ErrNotFound)
}

func TestSQLiteChatRepo_CreateIfAbsentIsIdempotent(t *testing.T) {
	_, chats := newTestRepos(t)
	ctx := context.Background()

	first := &models.Chat{SessionID: "s-1", Title: "Fractions"}
	created, err := chats.CreateIfAbsent(ctx, first)
	require.NoError(t, err)
	assert.True(t, created)
	require.NotZero(t, first.ID)

	second := &models.Chat{SessionID: "s-1", Title: "Something else"}
	created, err = chats.CreateIfAbsent(ctx, second)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Fractions", second.Title)

	_, err = chats.GetBySessionID(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteChatRepo_MessagesOrdering(t *testing.T) {
	users, chats := newTestRepos(t)
	ctx := context.Background()
	u := seedUser(t, users, "fay")

	chat := &models.Chat{SessionID: "s-2", Title: "t"}
	_, err := chats.CreateIfAbsent(ctx, chat)
	require.NoError(t, err)

	for i, text := range []string{"one", "two", "three"} {
		m := &models.Message{ChatID: chat.ID, Sender: models.SenderUser, Text: strPtr(text), UserID: &u.ID}
		if i == 1 {
			m.Sender = models.SenderBot
			m.UserID = nil
		}
		require.NoError(t, chats.AddMessage(ctx, m))
	}

	recent, err := chats.RecentMessages(ctx, chat.ID, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "three", *recent[0].Text)
	assert.Equal(t, "two", *recent[1].Text)

	all, err := chats.ListMessages(ctx, chat.ID)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Less(t, all[0].ID, all[1].ID)
	assert.Nil(t, all[1].UserID)

	byAuthor, err := chats.ListByAuthor(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, byAuthor, 1)
	assert.Len(t, byAuthor[0].Messages, 3)

	bySession, err := chats.ListBySession(ctx, "s-2")
	require.NoError(t, err)
	require.Len(t, bySession, 1)

	require.NoError(t, chats.UpdateTitle(ctx, chat.ID, "Renamed"))
	assert.ErrorIs(t, chats.UpdateTitle(ctx, 777, "x"), ErrNotFound)
}
