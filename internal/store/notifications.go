package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/sentinel/internal/domain"
)

// NotificationRepository persists domain.Notification rows.
type NotificationRepository struct {
	db *DB
}

func NewNotificationRepository(db *DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create records that an alert was dispatched to target, queuing
// "notification_created" on commit.
func (r *NotificationRepository) Create(ctx context.Context, sess *Session, monitorID, alertID int64, target string, data map[string]any, now time.Time, publish func(notificationID int64, eventName string) error) (domain.Notification, error) {
	encoded, err := msgpack.Marshal(data)
	if err != nil {
		return domain.Notification{}, fmt.Errorf("encode notification data: %w", err)
	}

	res, err := sess.Tx().ExecContext(ctx,
		`INSERT INTO notifications (monitor_id, alert_id, target, status, data, created_at) VALUES (?, ?, ?, 'active', ?, ?)`,
		monitorID, alertID, target, encoded, now.Format(time.RFC3339Nano))
	if err != nil {
		return domain.Notification{}, fmt.Errorf("create notification: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Notification{}, err
	}

	n := domain.Notification{ID: id, MonitorID: monitorID, AlertID: alertID, Target: target, Status: domain.NotificationActive, Data: data, CreatedAt: now}
	sess.AddCallback(func() error { return publish(id, "notification_created") })
	return n, nil
}

// GetByID loads a notification by id, used to re-check a stuck
// notification's current status on each active_notification_alert_solved
// update cycle.
func (r *NotificationRepository) GetByID(ctx context.Context, id int64) (domain.Notification, error) {
	var n domain.Notification
	var data []byte
	var createdAt string
	var closedAt sql.NullString
	err := r.db.conn.QueryRowContext(ctx,
		`SELECT id, monitor_id, alert_id, target, status, data, created_at, closed_at FROM notifications WHERE id = ?`, id).
		Scan(&n.ID, &n.MonitorID, &n.AlertID, &n.Target, &n.Status, &data, &createdAt, &closedAt)
	if err != nil {
		return n, err
	}
	if len(data) > 0 {
		if err := msgpack.Unmarshal(data, &n.Data); err != nil {
			return n, fmt.Errorf("decode notification %d data: %w", n.ID, err)
		}
	}
	n.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	if closedAt.Valid {
		n.ClosedAt, _ = time.Parse(time.RFC3339Nano, closedAt.String)
	}
	return n, nil
}

// GetActiveByAlert loads every open notification for an alert - used by
// the notifications_alert_solved procedure to close them once their alert
// solves.
func (r *NotificationRepository) GetActiveByAlert(ctx context.Context, alertID int64) ([]domain.Notification, error) {
	rows, err := r.db.conn.QueryContext(ctx,
		`SELECT id, monitor_id, alert_id, target, status, data, created_at, closed_at FROM notifications WHERE alert_id = ? AND status = 'active'`,
		alertID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Notification
	for rows.Next() {
		var n domain.Notification
		var data []byte
		var createdAt string
		var closedAt sql.NullString
		if err := rows.Scan(&n.ID, &n.MonitorID, &n.AlertID, &n.Target, &n.Status, &data, &createdAt, &closedAt); err != nil {
			return nil, err
		}
		if len(data) > 0 {
			if err := msgpack.Unmarshal(data, &n.Data); err != nil {
				return nil, fmt.Errorf("decode notification %d data: %w", n.ID, err)
			}
		}
		n.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		if closedAt.Valid {
			n.ClosedAt, _ = time.Parse(time.RFC3339Nano, closedAt.String)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// GetActiveByTarget loads every active notification matching target
// exactly - used by internal/notify/slack's resend_notifications plugin
// action to find every notification posted to a given Slack channel.
func (r *NotificationRepository) GetActiveByTarget(ctx context.Context, target string) ([]domain.Notification, error) {
	rows, err := r.db.conn.QueryContext(ctx,
		`SELECT id, monitor_id, alert_id, target, status, data, created_at, closed_at FROM notifications WHERE status = 'active' AND target = ?`,
		target)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Notification
	for rows.Next() {
		var n domain.Notification
		var data []byte
		var createdAt string
		var closedAt sql.NullString
		if err := rows.Scan(&n.ID, &n.MonitorID, &n.AlertID, &n.Target, &n.Status, &data, &createdAt, &closedAt); err != nil {
			return nil, err
		}
		if len(data) > 0 {
			if err := msgpack.Unmarshal(data, &n.Data); err != nil {
				return nil, fmt.Errorf("decode notification %d data: %w", n.ID, err)
			}
		}
		n.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		if closedAt.Valid {
			n.ClosedAt, _ = time.Parse(time.RFC3339Nano, closedAt.String)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// GetActiveLinkedToSolvedAlerts loads every active notification whose
// alert has already solved - the set the notifications_alert_solved
// procedure closes, since a notifier has no other way to learn its alert
// solved out from under it.
func (r *NotificationRepository) GetActiveLinkedToSolvedAlerts(ctx context.Context) ([]domain.Notification, error) {
	rows, err := r.db.conn.QueryContext(ctx,
		`SELECT n.id, n.monitor_id, n.alert_id, n.target, n.status, n.data, n.created_at, n.closed_at
		 FROM notifications n
		 JOIN alerts a ON a.id = n.alert_id
		 WHERE n.status = 'active' AND a.status = 'solved'`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Notification
	for rows.Next() {
		var n domain.Notification
		var data []byte
		var createdAt string
		var closedAt sql.NullString
		if err := rows.Scan(&n.ID, &n.MonitorID, &n.AlertID, &n.Target, &n.Status, &data, &createdAt, &closedAt); err != nil {
			return nil, err
		}
		if len(data) > 0 {
			if err := msgpack.Unmarshal(data, &n.Data); err != nil {
				return nil, fmt.Errorf("decode notification %d data: %w", n.ID, err)
			}
		}
		n.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		if closedAt.Valid {
			n.ClosedAt, _ = time.Parse(time.RFC3339Nano, closedAt.String)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// SaveData overwrites a notification's data column within sess - used by
// internal/notify/slack to persist the Slack message/thread timestamps it
// tracks across sends, updates and resends without touching status.
func (r *NotificationRepository) SaveData(ctx context.Context, sess *Session, id int64, data map[string]any) error {
	encoded, err := msgpack.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode notification data: %w", err)
	}
	_, err = sess.Tx().ExecContext(ctx, `UPDATE notifications SET data = ? WHERE id = ?`, encoded, id)
	if err != nil {
		return fmt.Errorf("save notification %d data: %w", id, err)
	}
	return nil
}

// Close marks a notification closed within sess, queuing
// "notification_closed" on commit.
func (r *NotificationRepository) Close(ctx context.Context, sess *Session, id int64, now time.Time, publish func(notificationID int64, eventName string) error) error {
	_, err := sess.Tx().ExecContext(ctx,
		`UPDATE notifications SET status = 'closed', closed_at = ? WHERE id = ?`, now.Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("close notification %d: %w", id, err)
	}
	sess.AddCallback(func() error { return publish(id, "notification_closed") })
	return nil
}
