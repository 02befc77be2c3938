package services

import (
	"context"
	"errors"
	"fmt"
	"log"
)

const (
	correctScoreDelta   = 1.0
	incorrectScoreDelta = -0.25

	streakCASAttempts = 5
)

var errStreakContention = errors.New("streak changed concurrently on every attempt")

// MetricsUpdater applies one judged attempt as a single arithmetic delta.
type MetricsUpdater struct {
	store metricsStore
}

func NewMetricsUpdater(store metricsStore) *MetricsUpdater {
	return &MetricsUpdater{store: store}
}

// Apply records the attempt and clamps a negative score back to zero. Only
// the delta's failure is returned; the clamp is retried by the next attempt.
func (m *MetricsUpdater) Apply(ctx context.Context, userID int64, correct bool) error {
	delta := incorrectScoreDelta
	if correct {
		delta = correctScoreDelta
	}

	score, err := m.store.ApplyAttempt(ctx, userID, correct, delta)
	if err != nil {
		return fmt.Errorf("apply attempt: %w", err)
	}

	if score < 0 {
		if _, err := m.store.ClampScore(ctx, userID); err != nil {
			log.Printf("metrics: user %d: score clamp failed: %v", userID, err)
		}
	}
	return nil
}

// StreakTracker maintains current and best consecutive-correct counts.
type StreakTracker struct {
	store streakStore
}

func NewStreakTracker(store streakStore) *StreakTracker {
	return &StreakTracker{store: store}
}

func nextStreak(current, best int, correct bool) (int, int) {
	if correct {
		current++
	} else {
		current = 0
	}
	return current, max(best, current)
}

// Record commits the streak for one verdict. The write only lands if the
// stored pair still matches what was read, so a concurrent verdict forces a
// re-read instead of being overwritten.
func (s *StreakTracker) Record(ctx context.Context, userID int64, correct bool) (int, int, error) {
	for range streakCASAttempts {
		prevCurrent, prevBest, err := s.store.GetStreak(ctx, userID)
		if err != nil {
			return 0, 0, fmt.Errorf("read streak: %w", err)
		}

		current, best := nextStreak(prevCurrent, prevBest, correct)
		if current == prevCurrent && best == prevBest {
			return current, best, nil
		}

		ok, err := s.store.SetStreakIf(ctx, userID, prevCurrent, prevBest, current, best)
		if err != nil {
			return 0, 0, fmt.Errorf("write streak: %w", err)
		}
		if ok {
			return current, best, nil
		}
	}
	return 0, 0, errStreakContention
}

// TimeAccumulator adds time-on-task in minutes.
type TimeAccumulator struct {
	store timeStore
}

func NewTimeAccumulator(store timeStore) *TimeAccumulator {
	return &TimeAccumulator{store: store}
}

func (a *TimeAccumulator) Add(ctx context.Context, userID int64, seconds float64) error {
	if seconds <= 0 {
		return nil
	}
	if err := a.store.AddTimeTaken(ctx, userID, seconds/60); err != nil {
		return fmt.Errorf("add time taken: %w", err)
	}
	return nil
}
