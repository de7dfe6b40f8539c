package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aristath/sentinel/internal/domain"
)

// VariableRepository persists domain.Variable rows.
type VariableRepository struct {
	db *DB
}

func NewVariableRepository(db *DB) *VariableRepository {
	return &VariableRepository{db: db}
}

// Get loads a monitor's variable by name, creating an empty (nil-value)
// one on first access - mirroring monitors that read a variable before
// ever writing to it.
func (r *VariableRepository) Get(ctx context.Context, monitorID int64, name string, now time.Time) (domain.Variable, error) {
	var v domain.Variable
	var value sql.NullString
	var updatedAt string

	err := r.db.conn.QueryRowContext(ctx,
		`SELECT id, monitor_id, name, value, updated_at FROM variables WHERE monitor_id = ? AND name = ?`,
		monitorID, name).Scan(&v.ID, &v.MonitorID, &v.Name, &value, &updatedAt)
	if err == sql.ErrNoRows {
		return r.create(ctx, monitorID, name, now)
	}
	if err != nil {
		return v, err
	}
	if value.Valid {
		v.Value = &value.String
	}
	v.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return v, nil
}

func (r *VariableRepository) create(ctx context.Context, monitorID int64, name string, now time.Time) (domain.Variable, error) {
	res, err := r.db.conn.ExecContext(ctx,
		`INSERT INTO variables (monitor_id, name, updated_at) VALUES (?, ?, ?)`,
		monitorID, name, now.Format(time.RFC3339Nano))
	if err != nil {
		return domain.Variable{}, fmt.Errorf("create variable %s for monitor %d: %w", name, monitorID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Variable{}, err
	}
	return domain.Variable{ID: id, MonitorID: monitorID, Name: name, UpdatedAt: now}, nil
}

// Set updates a variable's value.
func (r *VariableRepository) Set(ctx context.Context, v domain.Variable) error {
	_, err := r.db.conn.ExecContext(ctx,
		`UPDATE variables SET value = ?, updated_at = ? WHERE id = ?`,
		v.Value, v.UpdatedAt.Format(time.RFC3339Nano), v.ID)
	return err
}

// GetAll loads every variable belonging to a monitor.
func (r *VariableRepository) GetAll(ctx context.Context, monitorID int64) ([]domain.Variable, error) {
	rows, err := r.db.conn.QueryContext(ctx,
		`SELECT id, monitor_id, name, value, updated_at FROM variables WHERE monitor_id = ?`, monitorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Variable
	for rows.Next() {
		var v domain.Variable
		var value sql.NullString
		var updatedAt string
		if err := rows.Scan(&v.ID, &v.MonitorID, &v.Name, &value, &updatedAt); err != nil {
			return nil, err
		}
		if value.Valid {
			v.Value = &value.String
		}
		v.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
		out = append(out, v)
	}
	return out, rows.Err()
}
