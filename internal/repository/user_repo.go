package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tutor-backend/internal/models"
)

type UserRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

const userColumns = `id, username, name, level, class_level, parent_feedback,
	total_attempts, correct_attempts, score, current_streak, max_streak,
	COALESCE(total_time_taken, 0), created_at`

func scanUser(row pgx.Row) (*models.User, error) {
	u := &models.User{}
	err := row.Scan(
		&u.ID, &u.Username, &u.Name, &u.Level, &u.ClassLevel, &u.ParentFeedback,
		&u.Metrics.TotalAttempts, &u.Metrics.CorrectAttempts, &u.Metrics.Score,
		&u.Metrics.CurrentStreak, &u.Metrics.MaxStreak, &u.Metrics.TotalTimeTaken,
		&u.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return scanUser(r.pool.QueryRow(ctx, "SELECT "+userColumns+" FROM users WHERE username = $1", username))
}

// ApplyAttempt adds one attempt (and one correct attempt when correct) and
// scoreDelta to the stored counters in a single arithmetic UPDATE, returning
// the committed score.
func (r *UserRepo) ApplyAttempt(ctx context.Context, userID int64, correct bool, scoreDelta float64) (float64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin attempt update: %w", err)
	}
	defer tx.Rollback(ctx)

	var score float64
	err = tx.QueryRow(ctx, `
		UPDATE users
		SET total_attempts = total_attempts + 1,
			correct_attempts = correct_attempts + $2,
			score = score + $3
		WHERE id = $1
		RETURNING score
	`, userID, boolToInt(correct), scoreDelta).Scan(&score)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("apply attempt delta: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit attempt update: %w", err)
	}
	return score, nil
}

// ClampScore resets a negative score to zero. It is a no-op otherwise.
func (r *UserRepo) ClampScore(ctx context.Context, userID int64) (bool, error) {
	tag, err := r.pool.Exec(ctx, "UPDATE users SET score = 0 WHERE id = $1 AND score < 0", userID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *UserRepo) GetStreak(ctx context.Context, userID int64) (current, best int, err error) {
	err = r.pool.QueryRow(ctx,
		"SELECT current_streak, max_streak FROM users WHERE id = $1", userID,
	).Scan(&current, &best)
	if errors.Is(err, pgx.ErrNoRows) {
		err = ErrNotFound
	}
	return
}

// SetStreakIf writes the new streak pair only if the stored pair still equals
// the one the caller read. It reports whether the write happened.
func (r *UserRepo) SetStreakIf(ctx context.Context, userID int64, prevCurrent, prevBest, current, best int) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users
		SET current_streak = $2, max_streak = $3
		WHERE id = $1 AND current_streak = $4 AND max_streak = $5
	`, userID, current, best, prevCurrent, prevBest)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *UserRepo) AddTimeTaken(ctx context.Context, userID int64, minutes float64) error {
	tag, err := r.pool.Exec(ctx,
		"UPDATE users SET total_time_taken = COALESCE(total_time_taken, 0) + $2 WHERE id = $1",
		userID, minutes,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
