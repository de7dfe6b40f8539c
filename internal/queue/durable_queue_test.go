package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/sentinel/internal/store"
)

func newTestDurableQueue(t *testing.T) *DurableQueue {
	t.Helper()
	db, err := store.New(store.Config{Path: "file::memory:?cache=shared", Profile: store.ProfileCache, Name: "queue_test"})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })
	return NewDurableQueue(db.Conn(), 50*time.Millisecond)
}

func TestDurableQueueSendReceiveDelete(t *testing.T) {
	q := newTestDurableQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Send(ctx, TypeProcessMonitor, map[string]any{"monitor_id": float64(7)}))

	handle, err := q.Receive(ctx, 20*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, handle)
	assert.Equal(t, float64(7), handle.Message.Payload["monitor_id"])

	size, err := q.Size(ctx)
	require.NoError(t, err)
	assert.Zero(t, size)

	require.NoError(t, q.Delete(ctx, handle))
	assert.ErrorIs(t, q.Delete(ctx, handle), ErrNotFound)
}

func TestDurableQueueRedeliversAfterVisibilityTimeout(t *testing.T) {
	q := newTestDurableQueue(t)
	ctx := context.Background()
	require.NoError(t, q.Send(ctx, TypeEvent, map[string]any{"event": "alert_created"}))

	first, err := q.Receive(ctx, 20*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := q.Receive(ctx, 200*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestDurableQueueHeartbeatExtendsVisibility(t *testing.T) {
	q := newTestDurableQueue(t)
	ctx := context.Background()
	require.NoError(t, q.Send(ctx, TypeRequest, map[string]any{"action": "acknowledge_alert"}))

	handle, err := q.Receive(ctx, 20*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, handle)
	require.NoError(t, q.Heartbeat(ctx, handle))

	time.Sleep(40 * time.Millisecond)
	other, err := q.Receive(ctx, 5*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, other)
}
