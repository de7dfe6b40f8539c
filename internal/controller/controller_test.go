package controller

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/sentinel/internal/domain"
	"github.com/aristath/sentinel/internal/monitor"
	"github.com/aristath/sentinel/internal/queue"
	"github.com/aristath/sentinel/internal/registry"
	"github.com/aristath/sentinel/internal/store"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

// failingQueue always errors on Send, used to exercise the
// queue-then-revert-on-failure path (spec.md's S6 invariant).
type failingQueue struct{ queue.Queue }

func (failingQueue) Send(context.Context, queue.MessageType, map[string]any) error {
	return errors.New("queue unavailable")
}

func newTestController(t *testing.T, q queue.Queue) (*Controller, *store.DB, *registry.Registry, *fakeClock) {
	t.Helper()
	db, err := store.New(store.Config{Path: "file::memory:?cache=shared", Profile: store.ProfileLedger, Name: "controller_test"})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })

	reg := registry.New()
	clk := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	everyMinute := "*/1 * * * *"
	procs := &Procedures{clk: clk, cfg: nil, log: zerolog.Nop(), byName: map[string]procedure{}, last: make(map[string]time.Time)}
	c := New(db, q, reg, clk, procs, everyMinute, 2, zerolog.Nop())
	return c, db, reg, clk
}

func registerMonitor(t *testing.T, db *store.DB, reg *registry.Registry, name string, searchCron *string, updateCron *string) domain.Monitor {
	t.Helper()
	m, err := store.NewMonitorRepository(db).Create(context.Background(), name)
	require.NoError(t, err)
	reg.Add(m.ID, name, monitor.Module{
		MonitorOptions: domain.MonitorOptions{SearchCron: searchCron, UpdateCron: updateCron},
		IssueOptions:   domain.IssueOptions{ModelIDKey: "id"},
	})
	reg.MarkReady()
	return m
}

func strPtr(s string) *string { return &s }

func TestRunTickQueuesTriggeredMonitor(t *testing.T) {
	q := queue.NewMemoryQueue(time.Second)
	c, db, reg, _ := newTestController(t, q)
	m := registerMonitor(t, db, reg, "mon_a", strPtr("*/1 * * * *"), nil)

	c.runTick(context.Background())

	refreshed, err := store.NewMonitorRepository(db).GetByID(context.Background(), m.ID)
	require.NoError(t, err)
	assert.True(t, refreshed.Queued)

	size, err := q.Size(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, size)
}

func TestRunTickSkipsDisabledMonitor(t *testing.T) {
	q := queue.NewMemoryQueue(time.Second)
	c, db, reg, _ := newTestController(t, q)
	m := registerMonitor(t, db, reg, "mon_disabled", strPtr("*/1 * * * *"), nil)
	sess, err := db.Begin(context.Background())
	require.NoError(t, err)
	require.NoError(t, store.NewMonitorRepository(db).SetEnabled(context.Background(), sess, m.ID, false, func(string) error { return nil }))
	require.NoError(t, sess.Commit())

	c.runTick(context.Background())

	size, err := q.Size(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, size)
}

func TestRunTickSkipsUnregisteredMonitor(t *testing.T) {
	q := queue.NewMemoryQueue(time.Second)
	c, db, reg, _ := newTestController(t, q)
	_ = reg
	_, err := store.NewMonitorRepository(db).Create(context.Background(), "ghost")
	require.NoError(t, err)
	reg.MarkReady()

	c.runTick(context.Background())

	size, err := q.Size(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, size)
}

func TestRunTickSkipsMonitorWithNoCronTriggered(t *testing.T) {
	q := queue.NewMemoryQueue(time.Second)
	c, db, reg, clk := newTestController(t, q)
	m := registerMonitor(t, db, reg, "mon_idle", nil, nil)
	_ = clk

	c.runTick(context.Background())

	refreshed, err := store.NewMonitorRepository(db).GetByID(context.Background(), m.ID)
	require.NoError(t, err)
	assert.False(t, refreshed.Queued)
}

func TestQueueTaskRevertsQueuedFlagOnSendFailure(t *testing.T) {
	c, db, reg, _ := newTestController(t, failingQueue{})
	m := registerMonitor(t, db, reg, "mon_fail", strPtr("*/1 * * * *"), nil)

	c.queueTask(context.Background(), m.ID, []string{"search"})

	refreshed, err := store.NewMonitorRepository(db).GetByID(context.Background(), m.ID)
	require.NoError(t, err)
	assert.False(t, refreshed.Queued)
}

func TestQueueTaskMarksQueuedOnSuccess(t *testing.T) {
	q := queue.NewMemoryQueue(time.Second)
	c, db, reg, _ := newTestController(t, q)
	m := registerMonitor(t, db, reg, "mon_ok", strPtr("*/1 * * * *"), nil)

	c.queueTask(context.Background(), m.ID, []string{"search"})

	refreshed, err := store.NewMonitorRepository(db).GetByID(context.Background(), m.ID)
	require.NoError(t, err)
	assert.True(t, refreshed.Queued)
}

func TestSleepDurationFallsBackOnInvalidSchedule(t *testing.T) {
	c, _, _, clk := newTestController(t, queue.NewMemoryQueue(time.Second))
	c.schedule = "not a schedule"
	assert.Equal(t, time.Second, c.sleepDuration(clk.now))
}
