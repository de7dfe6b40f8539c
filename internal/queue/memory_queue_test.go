package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryQueueSendReceiveDelete(t *testing.T) {
	q := NewMemoryQueue(50 * time.Millisecond)
	ctx := context.Background()

	require.NoError(t, q.Send(ctx, TypeProcessMonitor, map[string]any{"monitor_id": float64(1)}))

	handle, err := q.Receive(ctx, 10*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, handle)
	assert.Equal(t, TypeProcessMonitor, handle.Message.Type)

	size, err := q.Size(ctx)
	require.NoError(t, err)
	assert.Zero(t, size)

	require.NoError(t, q.Delete(ctx, handle))
	assert.ErrorIs(t, q.Delete(ctx, handle), ErrNotFound)
}

func TestMemoryQueueReceiveTimesOutWhenEmpty(t *testing.T) {
	q := NewMemoryQueue(time.Second)
	handle, err := q.Receive(context.Background(), 20*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, handle)
}

func TestMemoryQueueRedeliversAfterVisibilityTimeout(t *testing.T) {
	q := NewMemoryQueue(20 * time.Millisecond)
	ctx := context.Background()
	require.NoError(t, q.Send(ctx, TypeEvent, map[string]any{"event": "issue_created"}))

	first, err := q.Receive(ctx, 10*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, first)

	// Do not delete; wait past visibility window, it should reappear.
	second, err := q.Receive(ctx, 200*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, "issue_created", second.Message.Payload["event"])

	// The original (now-stale) handle no longer identifies the
	// redelivered message.
	assert.ErrorIs(t, q.Heartbeat(ctx, first), ErrNotFound)
}

func TestMemoryQueueHeartbeatExtendsVisibility(t *testing.T) {
	q := NewMemoryQueue(30 * time.Millisecond)
	ctx := context.Background()
	require.NoError(t, q.Send(ctx, TypeRequest, map[string]any{"action": "drop_issue"}))

	handle, err := q.Receive(ctx, 10*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, handle)

	require.NoError(t, q.Heartbeat(ctx, handle))

	// Heartbeat extends to 2x visibility (60ms); at 40ms the message
	// must still be invisible to other receivers.
	time.Sleep(40 * time.Millisecond)
	other, err := q.Receive(ctx, 5*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, other)

	require.NoError(t, q.Delete(ctx, handle))
}

func TestMemoryQueueFIFOOrdering(t *testing.T) {
	q := NewMemoryQueue(time.Second)
	ctx := context.Background()
	require.NoError(t, q.Send(ctx, TypeProcessMonitor, map[string]any{"monitor_id": float64(1)}))
	require.NoError(t, q.Send(ctx, TypeProcessMonitor, map[string]any{"monitor_id": float64(2)}))

	first, err := q.Receive(ctx, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, float64(1), first.Message.Payload["monitor_id"])

	second, err := q.Receive(ctx, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, float64(2), second.Message.Payload["monitor_id"])
}
