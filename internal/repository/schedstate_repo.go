package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// SchedulerStateRepository persists the scheduler's last-run timestamp in a
// single-row table. Spacing between passes is enforced with one atomic
// UPDATE so it holds across multiple stateless instances, not just within a
// single process's memory.
type SchedulerStateRepository struct {
	db *sqlx.DB
}

// NewSchedulerStateRepository creates a new SchedulerStateRepository.
func NewSchedulerStateRepository(db *sqlx.DB) *SchedulerStateRepository {
	return &SchedulerStateRepository{db: db}
}

// TryAcquireRun claims a scheduler pass if at least minInterval has elapsed
// since the previous one. The guarded UPDATE either advances last_run_at and
// returns (true, 0) or leaves it untouched and returns (false, retryAfter).
func (r *SchedulerStateRepository) TryAcquireRun(ctx context.Context, now time.Time, minInterval time.Duration) (bool, time.Duration, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE scheduler_state
		SET last_run_at = $1
		WHERE id = 1 AND last_run_at <= $2`,
		now, now.Add(-minInterval))
	if err != nil {
		return false, 0, fmt.Errorf("schedstate_repo.TryAcquireRun: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return true, 0, nil
	}

	last, err := r.LastRun(ctx)
	if err != nil {
		return false, 0, err
	}
	retryAfter := last.Add(minInterval).Sub(now)
	if retryAfter < time.Second {
		retryAfter = time.Second
	}
	return false, retryAfter, nil
}

// LastRun returns the timestamp of the most recent scheduler pass.
func (r *SchedulerStateRepository) LastRun(ctx context.Context) (time.Time, error) {
	var last time.Time
	err := r.db.GetContext(ctx, &last,
		`SELECT last_run_at FROM scheduler_state WHERE id = 1`)
	if err != nil {
		return time.Time{}, fmt.Errorf("schedstate_repo.LastRun: %w", err)
	}
	return last, nil
}
