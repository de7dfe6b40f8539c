package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aristath/sentinel/internal/domain"
)

// AlertRepository persists domain.Alert rows.
type AlertRepository struct {
	db *DB
}

func NewAlertRepository(db *DB) *AlertRepository {
	return &AlertRepository{db: db}
}

const alertColumns = "id, monitor_id, status, acknowledged, locked, priority, acknowledge_priority, created_at, solved_at"

func scanAlert(scanner interface{ Scan(...any) error }) (domain.Alert, error) {
	var a domain.Alert
	var acknowledged, locked, priority int
	var ackPriority sql.NullInt64
	var createdAt string
	var solvedAt sql.NullString

	err := scanner.Scan(&a.ID, &a.MonitorID, &a.Status, &acknowledged, &locked, &priority, &ackPriority, &createdAt, &solvedAt)
	if err != nil {
		return a, err
	}

	a.Acknowledged = acknowledged != 0
	a.Locked = locked != 0
	a.Priority = domain.AlertPriority(priority)
	if ackPriority.Valid {
		p := domain.AlertPriority(ackPriority.Int64)
		a.AcknowledgePriority = &p
	}
	a.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	if solvedAt.Valid {
		a.SolvedAt, _ = time.Parse(time.RFC3339Nano, solvedAt.String)
	}
	return a, nil
}

// Create inserts a new active alert within sess at PriorityLow, queuing
// "alert_created" on commit.
func (r *AlertRepository) Create(ctx context.Context, sess *Session, monitorID int64, now time.Time, publish func(alertID int64, eventName string) error) (domain.Alert, error) {
	alert := domain.NewAlert(monitorID, now)

	res, err := sess.Tx().ExecContext(ctx,
		`INSERT INTO alerts (monitor_id, status, priority, created_at) VALUES (?, 'active', ?, ?)`,
		monitorID, int(alert.Priority), now.Format(time.RFC3339Nano))
	if err != nil {
		return domain.Alert{}, fmt.Errorf("create alert: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Alert{}, err
	}
	alert.ID = id

	sess.AddCallback(func() error { return publish(id, "alert_created") })
	return alert, nil
}

// GetByID loads an alert by ID.
func (r *AlertRepository) GetByID(ctx context.Context, id int64) (domain.Alert, error) {
	row := r.db.conn.QueryRowContext(ctx, `SELECT `+alertColumns+` FROM alerts WHERE id = ?`, id)
	return scanAlert(row)
}

// GetActiveByMonitor loads every active alert for a monitor.
func (r *AlertRepository) GetActiveByMonitor(ctx context.Context, monitorID int64) ([]domain.Alert, error) {
	rows, err := r.db.conn.QueryContext(ctx,
		`SELECT `+alertColumns+` FROM alerts WHERE monitor_id = ? AND status = 'active'`, monitorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []domain.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// Save persists an alert's mutable fields within sess, queuing eventName
// on commit if non-empty.
func (r *AlertRepository) Save(ctx context.Context, sess *Session, alert domain.Alert, eventName string, publish func(alertID int64, eventName string) error) error {
	var ackPriority sql.NullInt64
	if alert.AcknowledgePriority != nil {
		ackPriority = sql.NullInt64{Int64: int64(*alert.AcknowledgePriority), Valid: true}
	}
	var solvedAt sql.NullString
	if !alert.SolvedAt.IsZero() {
		solvedAt = sql.NullString{String: alert.SolvedAt.Format(time.RFC3339Nano), Valid: true}
	}

	_, err := sess.Tx().ExecContext(ctx,
		`UPDATE alerts SET status = ?, acknowledged = ?, locked = ?, priority = ?, acknowledge_priority = ?, solved_at = ? WHERE id = ?`,
		alert.Status, boolToInt(alert.Acknowledged), boolToInt(alert.Locked), int(alert.Priority), ackPriority, solvedAt, alert.ID)
	if err != nil {
		return fmt.Errorf("save alert %d: %w", alert.ID, err)
	}

	if eventName != "" {
		sess.AddCallback(func() error { return publish(alert.ID, eventName) })
	}
	return nil
}
