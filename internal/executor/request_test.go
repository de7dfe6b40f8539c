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

func createTestAlert(t *testing.T, e *Executor, db *store.DB, monitorID int64) int64 {
	t.Helper()
	sess, err := db.Begin(context.Background())
	require.NoError(t, err)
	alert, err := store.NewAlertRepository(db).Create(context.Background(), sess, monitorID, time.Now(),
		func(int64, string) error { return nil })
	require.NoError(t, err)
	require.NoError(t, sess.Commit())
	return alert.ID
}

func createTestIssue(t *testing.T, db *store.DB, monitorID int64, alertID int64) int64 {
	t.Helper()
	sess, err := db.Begin(context.Background())
	require.NoError(t, err)
	issue, err := store.NewIssueRepository(db).Create(context.Background(), sess, monitorID, "model-1", map[string]any{}, time.Now(),
		func(int64, string) error { return nil })
	require.NoError(t, err)
	if alertID > 0 {
		if eventName := (&issue).LinkToAlert(alertID); eventName != "" {
			require.NoError(t, store.NewIssueRepository(db).Save(context.Background(), sess, issue, eventName, func(int64, string) error { return nil }))
		}
	}
	require.NoError(t, sess.Commit())
	return issue.ID
}

func TestHandleRequestAlertAcknowledge(t *testing.T) {
	e, db, reg := newTestExecutor(t, queue.NewMemoryQueue(time.Second))
	m, err := store.NewMonitorRepository(db).Create(context.Background(), "mon_req")
	require.NoError(t, err)
	reg.Add(m.ID, "mon_req", monitor.Module{})
	alertID := createTestAlert(t, e, db, m.ID)

	err = e.handleRequest(context.Background(), map[string]any{
		"action": "alert_acknowledge",
		"params": map[string]any{"target_id": float64(alertID)},
	})
	require.NoError(t, err)

	refreshed, err := store.NewAlertRepository(db).GetByID(context.Background(), alertID)
	require.NoError(t, err)
	assert.True(t, refreshed.Acknowledged)
}

func TestHandleRequestAlertLock(t *testing.T) {
	e, db, reg := newTestExecutor(t, queue.NewMemoryQueue(time.Second))
	m, err := store.NewMonitorRepository(db).Create(context.Background(), "mon_req2")
	require.NoError(t, err)
	reg.Add(m.ID, "mon_req2", monitor.Module{})
	alertID := createTestAlert(t, e, db, m.ID)

	require.NoError(t, e.handleRequest(context.Background(), map[string]any{
		"action": "alert_lock",
		"params": map[string]any{"target_id": float64(alertID)},
	}))

	refreshed, err := store.NewAlertRepository(db).GetByID(context.Background(), alertID)
	require.NoError(t, err)
	assert.True(t, refreshed.Locked)
}

func TestHandleRequestAlertSolveSolvesLinkedIssues(t *testing.T) {
	e, db, reg := newTestExecutor(t, queue.NewMemoryQueue(time.Second))
	m, err := store.NewMonitorRepository(db).Create(context.Background(), "mon_req3")
	require.NoError(t, err)
	reg.Add(m.ID, "mon_req3", monitor.Module{})
	alertID := createTestAlert(t, e, db, m.ID)
	issueID := createTestIssue(t, db, m.ID, alertID)

	require.NoError(t, e.handleRequest(context.Background(), map[string]any{
		"action": "alert_solve",
		"params": map[string]any{"target_id": float64(alertID)},
	}))

	refreshedIssue, err := store.NewIssueRepository(db).GetByID(context.Background(), issueID)
	require.NoError(t, err)
	assert.Equal(t, "solved", string(refreshedIssue.Status))
}

func TestHandleRequestIssueDrop(t *testing.T) {
	e, db, reg := newTestExecutor(t, queue.NewMemoryQueue(time.Second))
	m, err := store.NewMonitorRepository(db).Create(context.Background(), "mon_req4")
	require.NoError(t, err)
	reg.Add(m.ID, "mon_req4", monitor.Module{})
	issueID := createTestIssue(t, db, m.ID, 0)

	require.NoError(t, e.handleRequest(context.Background(), map[string]any{
		"action": "issue_drop",
		"params": map[string]any{"target_id": float64(issueID)},
	}))

	refreshed, err := store.NewIssueRepository(db).GetByID(context.Background(), issueID)
	require.NoError(t, err)
	assert.Equal(t, "dropped", string(refreshed.Status))
}

func TestHandleRequestUnknownActionIsNoop(t *testing.T) {
	e, _, _ := newTestExecutor(t, queue.NewMemoryQueue(time.Second))
	err := e.handleRequest(context.Background(), map[string]any{
		"action": "does_not_exist",
		"params": map[string]any{},
	})
	assert.NoError(t, err)
}

func TestHandleRequestPluginActionDispatchesToPluginRegistry(t *testing.T) {
	e, _, _ := newTestExecutor(t, queue.NewMemoryQueue(time.Second))

	var received map[string]any
	e.plugins.Register("plugin.slack.resend_notifications", func(ctx context.Context, params map[string]any) error {
		received = params
		return nil
	})

	require.NoError(t, e.handleRequest(context.Background(), map[string]any{
		"action": "plugin.slack.resend_notifications",
		"params": map[string]any{"notification_id": float64(5)},
	}))

	require.NotNil(t, received)
	assert.Equal(t, float64(5), received["notification_id"])
}
