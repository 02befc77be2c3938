package services

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"tutor-backend/internal/database"
	"tutor-backend/internal/models"
	"tutor-backend/internal/repository"
)

type testStore struct {
	db    *sql.DB
	users *repository.SQLiteUserRepo
	chats *repository.SQLiteChatRepo
}

func newTestStore(t *testing.T) *testStore {
	t.Helper()
	db, err := database.NewSQLite(filepath.Join(t.TempDir(), "tutor.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &testStore{
		db:    db,
		users: repository.NewSQLiteUserRepo(db),
		chats: repository.NewSQLiteChatRepo(db),
	}
}

func (s *testStore) seedUser(t *testing.T, username string) *models.User {
	t.Helper()
	u := &models.User{Username: username, Name: username}
	require.NoError(t, s.users.Create(context.Background(), u))
	return u
}

func (s *testStore) setMetrics(t *testing.T, userID int64, m models.UserMetrics) {
	t.Helper()
	_, err := s.db.Exec(`
		UPDATE users SET total_attempts = ?, correct_attempts = ?, score = ?,
			current_streak = ?, max_streak = ?
		WHERE id = ?
	`, m.TotalAttempts, m.CorrectAttempts, m.Score, m.CurrentStreak, m.MaxStreak, userID)
	require.NoError(t, err)
}

func (s *testStore) metrics(t *testing.T, userID int64) models.UserMetrics {
	t.Helper()
	var username string
	require.NoError(t, s.db.QueryRow(`SELECT username FROM users WHERE id = ?`, userID).Scan(&username))
	u, err := s.users.GetByUsername(context.Background(), username)
	require.NoError(t, err)
	return u.Metrics
}

// stubOracle answers every capability from canned values and records calls.
type stubOracle struct {
	mu sync.Mutex

	title    string
	titleErr error

	hint    string
	hintErr error

	verdict  *Verdict
	judgeErr error

	hintRequests []HintRequest
	judgeCalls   [][]models.ChatMessage
	titleCalls   int
}

func newStubOracle() *stubOracle {
	return &stubOracle{title: "Adding Fractions", hint: "What is the common denominator?"}
}

func (o *stubOracle) Title(ctx context.Context, text string) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.titleCalls++
	return o.title, o.titleErr
}

func (o *stubOracle) GenerateHint(ctx context.Context, req HintRequest) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.hintRequests = append(o.hintRequests, req)
	return o.hint, o.hintErr
}

func (o *stubOracle) CheckAnswer(ctx context.Context, conversation []models.ChatMessage, topics models.ClassTopics) (*Verdict, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.judgeCalls = append(o.judgeCalls, conversation)
	if o.judgeErr != nil {
		return nil, o.judgeErr
	}
	if o.verdict == nil {
		return nil, ErrUnstructuredVerdict
	}
	v := *o.verdict
	return &v, nil
}

func (o *stubOracle) Close() {}

type staticTopics map[string]models.ClassTopics

func (s staticTopics) ForClass(ctx context.Context, classKey string) (models.ClassTopics, error) {
	return s[classKey], nil
}

type recordingQueue struct {
	mu   sync.Mutex
	jobs []*models.TitleJob
}

func (q *recordingQueue) EnqueueTitle(ctx context.Context, job *models.TitleJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.WSMessage
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, username string, msg models.WSMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, msg)
	return p.err
}

var errOracleDown = errors.New("oracle unavailable")

func strPtr(s string) *string { return &s }

func floatPtr(f float64) *float64 { return &f }
