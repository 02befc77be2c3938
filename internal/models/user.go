package models

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

const DefaultClassLevel = 5

type User struct {
	ID             int64       `json:"id"`
	Username       string      `json:"username"`
	Name           string      `json:"name"`
	Level          int         `json:"level"`
	ClassLevel     *string     `json:"class_level"`
	ParentFeedback *string     `json:"-"`
	Metrics        UserMetrics `json:"metrics"`
	CreatedAt      time.Time   `json:"created_at"`
}

// UserMetrics are the cumulative performance counters embedded in the user row.
type UserMetrics struct {
	TotalAttempts   int     `json:"total_attempts"`
	CorrectAttempts int     `json:"correct_attempts"`
	Score           float64 `json:"score"`
	CurrentStreak   int     `json:"current_streak"`
	MaxStreak       int     `json:"max_streak"`
	TotalTimeTaken  float64 `json:"total_time_taken"` // minutes
}

// Accuracy returns correct/total as a whole percentage.
func (m UserMetrics) Accuracy() int {
	if m.TotalAttempts == 0 {
		return 0
	}
	return m.CorrectAttempts * 100 / m.TotalAttempts
}

// ClassKey resolves the syllabus key ("class_7") for the user. An explicit
// class_level wins over the numeric level.
func (u *User) ClassKey() string {
	if u.ClassLevel != nil {
		raw := strings.TrimSpace(*u.ClassLevel)
		if strings.HasPrefix(raw, "class_") {
			return raw
		}
		if digits := onlyDigits(raw); digits != "" {
			return "class_" + digits
		}
	}
	if u.Level > 0 {
		return fmt.Sprintf("class_%d", u.Level)
	}
	return fmt.Sprintf("class_%d", DefaultClassLevel)
}

func onlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

type ProgressResponse struct {
	Username         string  `json:"username"`
	TotalAttempts    int     `json:"total_attempts"`
	CorrectAttempts  int     `json:"correct_attempts"`
	Accuracy         int     `json:"accuracy"`
	Score            float64 `json:"score"`
	CurrentStreak    int     `json:"current_streak"`
	MaxStreak        int     `json:"max_streak"`
	MinutesPracticed float64 `json:"minutes_practiced"`
}
