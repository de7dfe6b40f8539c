package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/aristath/sentinel/internal/domain"
)

// ExecutionRepository persists domain.MonitorExecution audit rows, read
// back by the built-in self-monitoring monitors (internal/monitors).
type ExecutionRepository struct {
	db *DB
}

func NewExecutionRepository(db *DB) *ExecutionRepository {
	return &ExecutionRepository{db: db}
}

// Create records one execution.
func (r *ExecutionRepository) Create(ctx context.Context, e domain.MonitorExecution) error {
	var errType sql.NullString
	if e.ErrorType != "" {
		errType = sql.NullString{String: e.ErrorType, Valid: true}
	}
	_, err := r.db.conn.ExecContext(ctx,
		`INSERT INTO monitor_executions (monitor_id, status, error_type, started_at, finished_at) VALUES (?, ?, ?, ?, ?)`,
		e.MonitorID, e.Status, errType, e.StartedAt.Format(time.RFC3339Nano), e.FinishedAt.Format(time.RFC3339Nano))
	return err
}

// RecentConsecutiveFailures counts how many of a monitor's most recent
// executions (up to limit) failed in a row, stopping at the first
// success - grounds monitor_consecutive_fails.
func (r *ExecutionRepository) RecentConsecutiveFailures(ctx context.Context, monitorID int64, limit int) (int, error) {
	rows, err := r.db.conn.QueryContext(ctx,
		`SELECT status FROM monitor_executions WHERE monitor_id = ? ORDER BY finished_at DESC LIMIT ?`,
		monitorID, limit)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var status domain.ExecutionStatus
		if err := rows.Scan(&status); err != nil {
			return 0, err
		}
		if status != domain.ExecutionFailed {
			break
		}
		count++
	}
	return count, rows.Err()
}

// CountFailedSince counts failed executions across all monitors since a
// reference time - grounds monitor_failed_consecutive_executions's
// global view.
func (r *ExecutionRepository) CountFailedSince(ctx context.Context, since time.Time) (int, error) {
	var count int
	err := r.db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM monitor_executions WHERE status = 'failed' AND finished_at >= ?`,
		since.Format(time.RFC3339Nano)).Scan(&count)
	return count, err
}
