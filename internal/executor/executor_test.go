package executor

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/sentinel/internal/config"
	"github.com/aristath/sentinel/internal/events"
	"github.com/aristath/sentinel/internal/monitor"
	"github.com/aristath/sentinel/internal/queue"
	"github.com/aristath/sentinel/internal/registry"
	"github.com/aristath/sentinel/internal/routine"
	"github.com/aristath/sentinel/internal/store"
)

func newTestExecutor(t *testing.T, q queue.Queue) (*Executor, *store.DB, *registry.Registry) {
	t.Helper()
	db, err := store.New(store.Config{Path: "file::memory:?cache=shared", Profile: store.ProfileLedger, Name: "executor_test"})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })

	reg := registry.New()
	reg.MarkReady()
	bus := events.NewBus(reg, q, false, zerolog.Nop())
	engine := routine.New(db, bus, time.Now, 100, zerolog.Nop())
	plugins := NewPluginRegistry()

	cfg := &config.Config{
		ExecutorConcurrency:    1,
		ExecutorSleep:          10 * time.Millisecond,
		QueueWaitMessageTime:   50 * time.Millisecond,
		ExecutorMonitorTimeout: time.Second,
		ExecutorReactionTimeout: 200 * time.Millisecond,
		ExecutorRequestTimeout:  200 * time.Millisecond,
	}
	e := New(db, q, reg, engine, bus, plugins, cfg, zerolog.Nop())
	return e, db, reg
}

func TestRunnerProcessesQueuedMonitorMessage(t *testing.T) {
	q := queue.NewMemoryQueue(time.Second)
	e, db, reg := newTestExecutor(t, q)

	m, err := store.NewMonitorRepository(db).Create(context.Background(), "mon_a")
	require.NoError(t, err)
	reg.Add(m.ID, "mon_a", monitor.Module{})

	require.NoError(t, q.Send(context.Background(), queue.TypeProcessMonitor, map[string]any{
		"monitor_id": m.ID,
		"tasks":      []string{},
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	runDone := make(chan struct{})
	go func() {
		e.Run(ctx)
		close(runDone)
	}()

	require.Eventually(t, func() bool {
		refreshed, err := store.NewMonitorRepository(db).GetByID(context.Background(), m.ID)
		require.NoError(t, err)
		return !refreshed.Running
	}, time.Second, 10*time.Millisecond)

	cancel()
	<-runDone
}

func TestDecodePayloadRejectsMismatchedShape(t *testing.T) {
	var p processMonitorPayload
	err := decodePayload(map[string]any{"monitor_id": "not-a-number"}, &p)
	assert.Error(t, err)
}

func TestDecodePayloadFillsMatchingFields(t *testing.T) {
	var p processMonitorPayload
	require.NoError(t, decodePayload(map[string]any{"monitor_id": float64(7), "tasks": []any{"search"}}, &p))
	assert.Equal(t, int64(7), p.MonitorID)
	assert.Equal(t, []string{"search"}, p.Tasks)
}
