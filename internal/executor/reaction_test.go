package executor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/sentinel/internal/domain"
	"github.com/aristath/sentinel/internal/monitor"
	"github.com/aristath/sentinel/internal/queue"
)

func TestHandleEventRunsEveryRegisteredReaction(t *testing.T) {
	e, _, reg := newTestExecutor(t, queue.NewMemoryQueue(time.Second))

	var calls int32
	var mu sync.Mutex
	var seen []map[string]any

	reg.Add(1, "mon_reactive", monitor.Module{
		ReactionOptions: domain.ReactionOptions{
			"issue_created": {
				func(data map[string]any) error {
					atomic.AddInt32(&calls, 1)
					mu.Lock()
					seen = append(seen, data)
					mu.Unlock()
					return nil
				},
				func(data map[string]any) error {
					atomic.AddInt32(&calls, 1)
					return errors.New("boom")
				},
			},
		},
	})

	err := e.handleEvent(context.Background(), map[string]any{
		"event_source_monitor_id": float64(1),
		"event_name":              "issue_created",
		"event_data":              map[string]any{"model_id": "x"},
	})
	require.NoError(t, err, "a reaction erroring must not fail the whole event")
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls), "both reactions must run even though the second errors")

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 1)
	assert.Equal(t, "x", seen[0]["model_id"])
}

func TestHandleEventUnknownEventNameIsNoop(t *testing.T) {
	e, _, reg := newTestExecutor(t, queue.NewMemoryQueue(time.Second))
	reg.Add(1, "mon_reactive", monitor.Module{ReactionOptions: domain.ReactionOptions{}})

	err := e.handleEvent(context.Background(), map[string]any{
		"event_source_monitor_id": float64(1),
		"event_name":              "nothing_registered",
		"event_data":              map[string]any{},
	})
	assert.NoError(t, err)
}

func TestRunReactionWithTimeoutLogsAndReturnsOnSlowReaction(t *testing.T) {
	e, _, _ := newTestExecutor(t, queue.NewMemoryQueue(time.Second))
	e.reactionTimeout = 10 * time.Millisecond

	var ran atomic.Bool
	slow := func(map[string]any) error {
		time.Sleep(100 * time.Millisecond)
		ran.Store(true)
		return nil
	}

	start := time.Now()
	e.runReactionWithTimeout(context.Background(), eventPayload{EventName: "slow_event"}, 0, slow)
	assert.Less(t, time.Since(start), 50*time.Millisecond, "must give up once reactionTimeout elapses")
}
