package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/sentinel/internal/domain"
)

// MonitorRepository persists domain.Monitor rows.
type MonitorRepository struct {
	db *DB
}

func NewMonitorRepository(db *DB) *MonitorRepository {
	return &MonitorRepository{db: db}
}

func scanMonitor(scanner interface{ Scan(...any) error }) (domain.Monitor, error) {
	var m domain.Monitor
	var searchAt, updateAt, heartbeatAt sql.NullString
	var enabled, queued, running int
	err := scanner.Scan(&m.ID, &m.Name, &enabled, &searchAt, &updateAt, &queued, &running, &heartbeatAt)
	if err != nil {
		return m, err
	}
	m.Enabled = enabled != 0
	m.Queued = queued != 0
	m.Running = running != 0
	if searchAt.Valid {
		m.SearchExecutedAt, _ = time.Parse(time.RFC3339Nano, searchAt.String)
	}
	if updateAt.Valid {
		m.UpdateExecutedAt, _ = time.Parse(time.RFC3339Nano, updateAt.String)
	}
	if heartbeatAt.Valid {
		m.LastHeartbeat, _ = time.Parse(time.RFC3339Nano, heartbeatAt.String)
	}
	return m, nil
}

const monitorColumns = "id, name, enabled, search_executed_at, update_executed_at, queued, running, last_heartbeat"

// Create inserts a new monitor, enabled by default.
func (r *MonitorRepository) Create(ctx context.Context, name string) (domain.Monitor, error) {
	res, err := r.db.conn.ExecContext(ctx,
		`INSERT INTO monitors (name, enabled, queued, running) VALUES (?, 1, 0, 0)`, name)
	if err != nil {
		return domain.Monitor{}, fmt.Errorf("create monitor %q: %w", name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Monitor{}, err
	}
	return domain.Monitor{ID: id, Name: name, Enabled: true}, nil
}

// GetByID loads a monitor by ID. Returns sql.ErrNoRows if not found.
func (r *MonitorRepository) GetByID(ctx context.Context, id int64) (domain.Monitor, error) {
	row := r.db.conn.QueryRowContext(ctx,
		`SELECT `+monitorColumns+` FROM monitors WHERE id = ?`, id)
	return scanMonitor(row)
}

// GetByName loads a monitor by its unique name.
func (r *MonitorRepository) GetByName(ctx context.Context, name string) (domain.Monitor, error) {
	row := r.db.conn.QueryRowContext(ctx,
		`SELECT `+monitorColumns+` FROM monitors WHERE name = ?`, name)
	return scanMonitor(row)
}

// GetAll loads every monitor, in id order.
func (r *MonitorRepository) GetAll(ctx context.Context) ([]domain.Monitor, error) {
	rows, err := r.db.conn.QueryContext(ctx, `SELECT `+monitorColumns+` FROM monitors ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var monitors []domain.Monitor
	for rows.Next() {
		m, err := scanMonitor(rows)
		if err != nil {
			return nil, err
		}
		monitors = append(monitors, m)
	}
	return monitors, rows.Err()
}

// SetSearchExecutedAt stamps the monitor's search_executed_at to now.
func (r *MonitorRepository) SetSearchExecutedAt(ctx context.Context, id int64, now time.Time) error {
	_, err := r.db.conn.ExecContext(ctx,
		`UPDATE monitors SET search_executed_at = ? WHERE id = ?`, now.Format(time.RFC3339Nano), id)
	return err
}

// SetUpdateExecutedAt stamps the monitor's update_executed_at to now.
func (r *MonitorRepository) SetUpdateExecutedAt(ctx context.Context, id int64, now time.Time) error {
	_, err := r.db.conn.ExecContext(ctx,
		`UPDATE monitors SET update_executed_at = ? WHERE id = ?`, now.Format(time.RFC3339Nano), id)
	return err
}

// SetHeartbeat stamps the monitor's last_heartbeat to now - called
// periodically by the executor's heartbeat task while a routine runs.
func (r *MonitorRepository) SetHeartbeat(ctx context.Context, id int64, now time.Time) error {
	_, err := r.db.conn.ExecContext(ctx,
		`UPDATE monitors SET last_heartbeat = ? WHERE id = ?`, now.Format(time.RFC3339Nano), id)
	return err
}

// GetStuck loads every monitor that is running or queued but whose
// last_heartbeat is older than tolerance before now - the query the
// monitors_stuck procedure clears queued/running for. A monitor that has
// never recorded a heartbeat always counts as stuck; search/update
// _executed_at are not consulted.
func (r *MonitorRepository) GetStuck(ctx context.Context, now time.Time, tolerance time.Duration) ([]domain.Monitor, error) {
	cutoff := now.Add(-tolerance).Format(time.RFC3339Nano)
	rows, err := r.db.conn.QueryContext(ctx,
		`SELECT `+monitorColumns+` FROM monitors
		 WHERE (queued = 1 OR running = 1)
		   AND COALESCE(last_heartbeat, '0001-01-01T00:00:00Z') < ?`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var monitors []domain.Monitor
	for rows.Next() {
		m, err := scanMonitor(rows)
		if err != nil {
			return nil, err
		}
		monitors = append(monitors, m)
	}
	return monitors, rows.Err()
}

// SetQueued flips the queued flag - used so the controller never dispatches
// the same monitor twice while it waits in the queue.
func (r *MonitorRepository) SetQueued(ctx context.Context, id int64, value bool) error {
	_, err := r.db.conn.ExecContext(ctx, `UPDATE monitors SET queued = ? WHERE id = ?`, boolToInt(value), id)
	return err
}

// SetRunning flips the running flag.
func (r *MonitorRepository) SetRunning(ctx context.Context, id int64, value bool) error {
	_, err := r.db.conn.ExecContext(ctx, `UPDATE monitors SET running = ? WHERE id = ?`, boolToInt(value), id)
	return err
}

// SetEnabled flips the enabled flag within a Session, queuing the
// "monitor_enabled_changed" event on commit.
func (r *MonitorRepository) SetEnabled(ctx context.Context, sess *Session, id int64, value bool, publish func(eventName string) error) error {
	_, err := sess.Tx().ExecContext(ctx, `UPDATE monitors SET enabled = ? WHERE id = ?`, boolToInt(value), id)
	if err != nil {
		return err
	}
	sess.AddCallback(func() error { return publish("monitor_enabled_changed") })
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var ErrNotFound = errors.New("not found")
