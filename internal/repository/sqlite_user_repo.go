package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"tutor-backend/internal/models"
)

// SQLiteUserRepo is the embedded-database counterpart of UserRepo.
type SQLiteUserRepo struct {
	db *sql.DB
}

func NewSQLiteUserRepo(db *sql.DB) *SQLiteUserRepo {
	return &SQLiteUserRepo{db: db}
}

const sqliteUserColumns = `id, username, name, level, class_level, parent_feedback,
	total_attempts, correct_attempts, score, current_streak, max_streak,
	COALESCE(total_time_taken, 0), created_at`

func scanSQLiteUser(row *sql.Row) (*models.User, error) {
	u := &models.User{}
	var createdAt int64
	err := row.Scan(
		&u.ID, &u.Username, &u.Name, &u.Level, &u.ClassLevel, &u.ParentFeedback,
		&u.Metrics.TotalAttempts, &u.Metrics.CorrectAttempts, &u.Metrics.Score,
		&u.Metrics.CurrentStreak, &u.Metrics.MaxStreak, &u.Metrics.TotalTimeTaken,
		&createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}
	u.CreatedAt = time.Unix(createdAt, 0)
	return u, nil
}

// Create inserts a user with zeroed metrics. Accounts are normally provisioned
// by the identity service; this exists for local setups and tests.
func (r *SQLiteUserRepo) Create(ctx context.Context, u *models.User) error {
	if u.Level == 0 {
		u.Level = models.DefaultClassLevel
	}
	u.CreatedAt = time.Now()
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO users (username, name, level, class_level, parent_feedback, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, u.Username, u.Name, u.Level, u.ClassLevel, u.ParentFeedback, u.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	u.ID, err = res.LastInsertId()
	return err
}

func (r *SQLiteUserRepo) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return scanSQLiteUser(r.db.QueryRowContext(ctx, "SELECT "+sqliteUserColumns+" FROM users WHERE username = ?", username))
}

func (r *SQLiteUserRepo) ApplyAttempt(ctx context.Context, userID int64, correct bool, scoreDelta float64) (float64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin attempt update: %w", err)
	}
	defer tx.Rollback()

	var score float64
	err = tx.QueryRowContext(ctx, `
		UPDATE users
		SET total_attempts = total_attempts + 1,
			correct_attempts = correct_attempts + ?,
			score = score + ?
		WHERE id = ?
		RETURNING score
	`, boolToInt(correct), scoreDelta, userID).Scan(&score)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("apply attempt delta: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit attempt update: %w", err)
	}
	return score, nil
}

func (r *SQLiteUserRepo) ClampScore(ctx context.Context, userID int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, "UPDATE users SET score = 0 WHERE id = ? AND score < 0", userID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *SQLiteUserRepo) GetStreak(ctx context.Context, userID int64) (current, best int, err error) {
	err = r.db.QueryRowContext(ctx,
		"SELECT current_streak, max_streak FROM users WHERE id = ?", userID,
	).Scan(&current, &best)
	if errors.Is(err, sql.ErrNoRows) {
		err = ErrNotFound
	}
	return
}

func (r *SQLiteUserRepo) SetStreakIf(ctx context.Context, userID int64, prevCurrent, prevBest, current, best int) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET current_streak = ?, max_streak = ?
		WHERE id = ? AND current_streak = ? AND max_streak = ?
	`, current, best, userID, prevCurrent, prevBest)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (r *SQLiteUserRepo) AddTimeTaken(ctx context.Context, userID int64, minutes float64) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE users SET total_time_taken = COALESCE(total_time_taken, 0) + ? WHERE id = ?",
		minutes, userID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
