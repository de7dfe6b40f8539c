package executor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/sentinel/internal/monitor"
	"github.com/aristath/sentinel/internal/queue"
	"github.com/aristath/sentinel/internal/store"
)

func countAuditEvents(t *testing.T, db *store.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.Conn().QueryRow(`SELECT COUNT(*) FROM events`).Scan(&n))
	return n
}

func TestHandleProcessMonitorSkipsAlreadyRunningMonitor(t *testing.T) {
	e, db, reg := newTestExecutor(t, queue.NewMemoryQueue(time.Second))

	m, err := store.NewMonitorRepository(db).Create(context.Background(), "mon_running")
	require.NoError(t, err)
	reg.Add(m.ID, "mon_running", monitor.Module{})
	require.NoError(t, store.NewMonitorRepository(db).SetRunning(context.Background(), m.ID, true))

	err = e.handleProcessMonitor(context.Background(), map[string]any{"monitor_id": float64(m.ID), "tasks": []any{}})
	require.NoError(t, err)

	refreshed, err := store.NewMonitorRepository(db).GetByID(context.Background(), m.ID)
	require.NoError(t, err)
	assert.True(t, refreshed.Running, "handler must not touch a monitor already marked running")
}

func TestHandleProcessMonitorRecordsSuccessAuditEvent(t *testing.T) {
	e, db, reg := newTestExecutor(t, queue.NewMemoryQueue(time.Second))

	m, err := store.NewMonitorRepository(db).Create(context.Background(), "mon_ok")
	require.NoError(t, err)
	reg.Add(m.ID, "mon_ok", monitor.Module{})

	before := countAuditEvents(t, db)

	require.NoError(t, e.handleProcessMonitor(context.Background(), map[string]any{
		"monitor_id": float64(m.ID),
		"tasks":      []any{},
	}))

	refreshed, err := store.NewMonitorRepository(db).GetByID(context.Background(), m.ID)
	require.NoError(t, err)
	assert.False(t, refreshed.Running)
	assert.False(t, refreshed.Queued)

	assert.Equal(t, before+1, countAuditEvents(t, db), "expected exactly one new audit event for the run")

	failures, err := store.NewExecutionRepository(db).RecentConsecutiveFailures(context.Background(), m.ID, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, failures, "a successful run must not count as a consecutive failure")
}

func TestHandleProcessMonitorUnregisteredMonitorIsNoop(t *testing.T) {
	e, db, _ := newTestExecutor(t, queue.NewMemoryQueue(time.Second))
	m, err := store.NewMonitorRepository(db).Create(context.Background(), "mon_ghost")
	require.NoError(t, err)

	err = e.handleProcessMonitor(context.Background(), map[string]any{"monitor_id": float64(m.ID), "tasks": []any{}})
	require.NoError(t, err)

	refreshed, err := store.NewMonitorRepository(db).GetByID(context.Background(), m.ID)
	require.NoError(t, err)
	assert.False(t, refreshed.Running)
}

func TestHandleProcessMonitorUnknownIDIsNoop(t *testing.T) {
	e, _, _ := newTestExecutor(t, queue.NewMemoryQueue(time.Second))

	err := e.handleProcessMonitor(context.Background(), map[string]any{"monitor_id": float64(999999), "tasks": []any{}})
	assert.NoError(t, err, "an unknown monitor id must be logged and skipped, not surfaced as a fatal error")
}
