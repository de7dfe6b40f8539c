package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DurableQueue persists messages in the queue_messages table so
// delivery survives a process restart - the in-flight message a
// crashed executor never deleted is still visible once its
// visibility window elapses, same guarantee as MemoryQueue but
// backed by SQLite instead of process memory. Payloads are encoded as
// JSON, matching the wire format named by the message-queue module.
type DurableQueue struct {
	conn           *sql.DB
	visibilityTime time.Duration
}

// NewDurableQueue wraps conn (expected to be internal/store's
// ProfileCache database connection) as a Queue.
func NewDurableQueue(conn *sql.DB, visibilityTime time.Duration) *DurableQueue {
	return &DurableQueue{conn: conn, visibilityTime: visibilityTime}
}

func (q *DurableQueue) Send(ctx context.Context, msgType MessageType, payload map[string]any) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode message payload: %w", err)
	}
	now := time.Now().UTC()
	_, err = q.conn.ExecContext(ctx,
		`INSERT INTO queue_messages (handle, message_type, payload, visible_at, receive_count, created_at) VALUES (?, ?, ?, ?, 0, ?)`,
		uuid.NewString(), string(msgType), encoded, now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("enqueue message: %w", err)
	}
	return nil
}

// Receive polls the table for the oldest message whose visible_at has
// passed, marking it invisible until visibility_time elapses. Polling
// (rather than a blocking SQL wait) mirrors the teacher worker pool's
// dequeue-or-sleep loop, here driven by the caller-supplied wait
// budget.
func (q *DurableQueue) Receive(ctx context.Context, wait time.Duration) (*Handle, error) {
	deadline := time.Now().Add(wait)
	for {
		handle, err := q.tryReceive(ctx)
		if err != nil {
			return nil, err
		}
		if handle != nil {
			return handle, nil
		}
		if !time.Now().Before(deadline) {
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

func (q *DurableQueue) tryReceive(ctx context.Context) (*Handle, error) {
	tx, err := q.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin receive transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	var handle, msgType string
	var payload []byte
	err = tx.QueryRowContext(ctx,
		`SELECT handle, message_type, payload FROM queue_messages WHERE visible_at <= ? ORDER BY created_at ASC LIMIT 1`,
		now.Format(time.RFC3339Nano)).Scan(&handle, &msgType, &payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query next message: %w", err)
	}

	nextVisible := now.Add(q.visibilityTime)
	_, err = tx.ExecContext(ctx,
		`UPDATE queue_messages SET visible_at = ?, receive_count = receive_count + 1 WHERE handle = ?`,
		nextVisible.Format(time.RFC3339Nano), handle)
	if err != nil {
		return nil, fmt.Errorf("mark message invisible: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit receive: %w", err)
	}

	var decoded map[string]any
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &decoded); err != nil {
			return nil, fmt.Errorf("decode message payload: %w", err)
		}
	}
	return &Handle{ID: handle, Message: Message{Type: MessageType(msgType), Payload: decoded}}, nil
}

func (q *DurableQueue) Heartbeat(ctx context.Context, handle *Handle) error {
	res, err := q.conn.ExecContext(ctx,
		`UPDATE queue_messages SET visible_at = ? WHERE handle = ?`,
		time.Now().UTC().Add(2*q.visibilityTime).Format(time.RFC3339Nano), handle.ID)
	if err != nil {
		return fmt.Errorf("heartbeat message %s: %w", handle.ID, err)
	}
	return checkAffected(res, handle.ID)
}

func (q *DurableQueue) Delete(ctx context.Context, handle *Handle) error {
	res, err := q.conn.ExecContext(ctx, `DELETE FROM queue_messages WHERE handle = ?`, handle.ID)
	if err != nil {
		return fmt.Errorf("delete message %s: %w", handle.ID, err)
	}
	return checkAffected(res, handle.ID)
}

func checkAffected(res sql.Result, handle string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (q *DurableQueue) Size(ctx context.Context) (int, error) {
	var count int
	err := q.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM queue_messages WHERE visible_at <= ?`, time.Now().UTC().Format(time.RFC3339Nano)).Scan(&count)
	return count, err
}
