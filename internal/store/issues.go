package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/sentinel/internal/domain"
)

// IssueRepository persists domain.Issue rows. Issue.Data is stored as a
// msgpack-encoded blob, the same encoding Notification.Data and
// CodeModule.AdditionalFiles use (internal/queue's durable payloads are
// JSON instead).
type IssueRepository struct {
	db *DB
}

func NewIssueRepository(db *DB) *IssueRepository {
	return &IssueRepository{db: db}
}

const issueColumns = "id, monitor_id, alert_id, model_id, status, data, created_at, solved_at, dropped_at"

func scanIssue(scanner interface{ Scan(...any) error }) (domain.Issue, error) {
	var i domain.Issue
	var alertID sql.NullInt64
	var data []byte
	var createdAt string
	var solvedAt, droppedAt sql.NullString

	err := scanner.Scan(&i.ID, &i.MonitorID, &alertID, &i.ModelID, &i.Status, &data, &createdAt, &solvedAt, &droppedAt)
	if err != nil {
		return i, err
	}

	if alertID.Valid {
		v := alertID.Int64
		i.AlertID = &v
	}
	if len(data) > 0 {
		if err := msgpack.Unmarshal(data, &i.Data); err != nil {
			return i, fmt.Errorf("decode issue %d data: %w", i.ID, err)
		}
	}
	i.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	if solvedAt.Valid {
		i.SolvedAt, _ = time.Parse(time.RFC3339Nano, solvedAt.String)
	}
	if droppedAt.Valid {
		i.DroppedAt, _ = time.Parse(time.RFC3339Nano, droppedAt.String)
	}
	return i, nil
}

// IsUnique reports whether no active issue exists for monitorID with the
// given modelID - the check IssueOptions.Unique monitors must pass before
// creating a new issue.
func (r *IssueRepository) IsUnique(ctx context.Context, monitorID int64, modelID string) (bool, error) {
	var count int
	err := r.db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM issues WHERE monitor_id = ? AND model_id = ? AND status = 'active'`,
		monitorID, modelID).Scan(&count)
	if err != nil {
		return false, err
	}
	return count == 0, nil
}

// Create inserts a new active issue within sess, queuing the
// "issue_created" event on commit.
func (r *IssueRepository) Create(ctx context.Context, sess *Session, monitorID int64, modelID string, data map[string]any, now time.Time, publish func(issueID int64, eventName string) error) (domain.Issue, error) {
	encoded, err := msgpack.Marshal(data)
	if err != nil {
		return domain.Issue{}, fmt.Errorf("encode issue data: %w", err)
	}

	res, err := sess.Tx().ExecContext(ctx,
		`INSERT INTO issues (monitor_id, model_id, status, data, created_at) VALUES (?, ?, 'active', ?, ?)`,
		monitorID, modelID, encoded, now.Format(time.RFC3339Nano))
	if err != nil {
		return domain.Issue{}, fmt.Errorf("create issue: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Issue{}, err
	}

	issue := domain.Issue{ID: id, MonitorID: monitorID, ModelID: modelID, Status: domain.IssueActive, Data: data, CreatedAt: now}
	sess.AddCallback(func() error { return publish(id, "issue_created") })
	return issue, nil
}

// GetByID loads an issue by ID.
func (r *IssueRepository) GetByID(ctx context.Context, id int64) (domain.Issue, error) {
	row := r.db.conn.QueryRowContext(ctx, `SELECT `+issueColumns+` FROM issues WHERE id = ?`, id)
	return scanIssue(row)
}

// GetActiveByMonitor loads every active issue for a monitor.
func (r *IssueRepository) GetActiveByMonitor(ctx context.Context, monitorID int64) ([]domain.Issue, error) {
	return r.queryIssues(ctx, `SELECT `+issueColumns+` FROM issues WHERE monitor_id = ? AND status = 'active'`, monitorID)
}

// GetActiveByAlert loads every active issue linked to an alert.
func (r *IssueRepository) GetActiveByAlert(ctx context.Context, alertID int64) ([]domain.Issue, error) {
	return r.queryIssues(ctx, `SELECT `+issueColumns+` FROM issues WHERE alert_id = ? AND status = 'active'`, alertID)
}

// CountActiveByAlert counts active issues linked to an alert - used by
// Alert.Update's solve-if-empty check.
func (r *IssueRepository) CountActiveByAlert(ctx context.Context, alertID int64) (int, error) {
	var count int
	err := r.db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM issues WHERE alert_id = ? AND status = 'active'`, alertID).Scan(&count)
	return count, err
}

// ActiveCountsByMonitor returns, for every monitor with at least
// threshold active issues, its id and active issue count - grounds
// monitor_high_active_issues_count's search_query.sql(trigger_threshold).
func (r *IssueRepository) ActiveCountsByMonitor(ctx context.Context, threshold int) (map[int64]int, error) {
	rows, err := r.db.conn.QueryContext(ctx,
		`SELECT monitor_id, COUNT(*) FROM issues WHERE status = 'active' GROUP BY monitor_id HAVING COUNT(*) >= ?`,
		threshold)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[int64]int)
	for rows.Next() {
		var monitorID int64
		var count int
		if err := rows.Scan(&monitorID, &count); err != nil {
			return nil, err
		}
		counts[monitorID] = count
	}
	return counts, rows.Err()
}

func (r *IssueRepository) queryIssues(ctx context.Context, query string, args ...any) ([]domain.Issue, error) {
	rows, err := r.db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var issues []domain.Issue
	for rows.Next() {
		i, err := scanIssue(rows)
		if err != nil {
			return nil, err
		}
		issues = append(issues, i)
	}
	return issues, rows.Err()
}

// Save persists an issue's mutable fields (status, alert_id, data,
// solved_at, dropped_at) within sess, and queues eventName for
// publication on commit if non-empty.
func (r *IssueRepository) Save(ctx context.Context, sess *Session, issue domain.Issue, eventName string, publish func(issueID int64, eventName string) error) error {
	encoded, err := msgpack.Marshal(issue.Data)
	if err != nil {
		return fmt.Errorf("encode issue data: %w", err)
	}

	var alertID sql.NullInt64
	if issue.AlertID != nil {
		alertID = sql.NullInt64{Int64: *issue.AlertID, Valid: true}
	}
	var solvedAt, droppedAt sql.NullString
	if !issue.SolvedAt.IsZero() {
		solvedAt = sql.NullString{String: issue.SolvedAt.Format(time.RFC3339Nano), Valid: true}
	}
	if !issue.DroppedAt.IsZero() {
		droppedAt = sql.NullString{String: issue.DroppedAt.Format(time.RFC3339Nano), Valid: true}
	}

	_, err = sess.Tx().ExecContext(ctx,
		`UPDATE issues SET alert_id = ?, status = ?, data = ?, solved_at = ?, dropped_at = ? WHERE id = ?`,
		alertID, issue.Status, encoded, solvedAt, droppedAt, issue.ID)
	if err != nil {
		return fmt.Errorf("save issue %d: %w", issue.ID, err)
	}

	if eventName != "" {
		sess.AddCallback(func() error { return publish(issue.ID, eventName) })
	}
	return nil
}
