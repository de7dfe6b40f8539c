package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/aristath/sentinel/internal/domain"
)

// AuditEventRepository persists domain.AuditEvent rows to the events
// table - a lightweight outcome log distinct from the detailed
// monitor_executions audit row, pruned by the clean_events procedure.
type AuditEventRepository struct {
	db *DB
}

func NewAuditEventRepository(db *DB) *AuditEventRepository {
	return &AuditEventRepository{db: db}
}

// Create records one audit event with a fresh UUID.
func (r *AuditEventRepository) Create(ctx context.Context, eventType domain.AuditEventType, model string, modelID int64, now time.Time, payload map[string]any) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = r.db.conn.ExecContext(ctx,
		`INSERT INTO events (id, event_type, model, model_id, created_at, payload) VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), string(eventType), model, modelID, now.Format(time.RFC3339Nano), encoded)
	return err
}

// DeleteOlderThan removes every event row older than now-retention,
// returning the number of rows deleted - grounds the clean_events
// procedure.
func (r *AuditEventRepository) DeleteOlderThan(ctx context.Context, now time.Time, retention time.Duration) (int64, error) {
	cutoff := now.Add(-retention).Format(time.RFC3339Nano)
	res, err := r.db.conn.ExecContext(ctx, `DELETE FROM events WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
