package events

import (
	"context"
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

func newTestSession(t *testing.T) (*store.DB, *store.Session) {
	t.Helper()
	db, err := store.New(store.Config{Path: "file::memory:?cache=shared", Profile: store.ProfileLedger, Name: "events_test"})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })

	sess, err := db.Begin(context.Background())
	require.NoError(t, err)
	return db, sess
}

func TestCreateEventEnqueuesWhenReactionRegistered(t *testing.T) {
	reg := registry.New()
	reg.Add(1, "has_reaction", monitor.Module{
		ReactionOptions: domain.ReactionOptions{
			"issue_created": {func(map[string]any) error { return nil }},
		},
	})
	q := queue.NewMemoryQueue(time.Second)
	bus := NewBus(reg, q, false, zerolog.Nop())

	_, sess := newTestSession(t)
	bus.CreateEvent(sess, SourceIssue, 10, 1, "issue_created", map[string]any{"model_id": "x"}, nil)
	require.NoError(t, sess.Commit())

	handle, err := q.Receive(context.Background(), 10*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, handle)
	assert.Equal(t, queue.TypeEvent, handle.Message.Type)
	assert.Equal(t, "issue_created", handle.Message.Payload["event_name"])
}

func TestCreateEventSkipsQueueWhenNoReactionRegistered(t *testing.T) {
	reg := registry.New()
	reg.Add(1, "no_reaction", monitor.Module{})
	q := queue.NewMemoryQueue(time.Second)
	bus := NewBus(reg, q, false, zerolog.Nop())

	_, sess := newTestSession(t)
	bus.CreateEvent(sess, SourceIssue, 10, 1, "issue_created", map[string]any{}, nil)
	require.NoError(t, sess.Commit())

	handle, err := q.Receive(context.Background(), 10*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, handle)
}

func TestCreateEventDoesNothingOnRollback(t *testing.T) {
	reg := registry.New()
	reg.Add(1, "has_reaction", monitor.Module{
		ReactionOptions: domain.ReactionOptions{
			"issue_created": {func(map[string]any) error { return nil }},
		},
	})
	q := queue.NewMemoryQueue(time.Second)
	bus := NewBus(reg, q, false, zerolog.Nop())

	_, sess := newTestSession(t)
	bus.CreateEvent(sess, SourceIssue, 10, 1, "issue_created", map[string]any{}, nil)
	require.NoError(t, sess.Rollback())

	handle, err := q.Receive(context.Background(), 10*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, handle)
}

func TestPublishDispatchesImmediatelyWithoutASession(t *testing.T) {
	reg := registry.New()
	reg.Add(1, "has_reaction", monitor.Module{
		ReactionOptions: domain.ReactionOptions{
			"monitor_enabled_changed": {func(map[string]any) error { return nil }},
		},
	})
	q := queue.NewMemoryQueue(time.Second)
	bus := NewBus(reg, q, false, zerolog.Nop())

	require.NoError(t, bus.Publish(SourceMonitor, 1, 1, "monitor_enabled_changed", map[string]any{"enabled": false}, nil))

	handle, err := q.Receive(context.Background(), 10*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, handle)
	assert.Equal(t, "monitor_enabled_changed", handle.Message.Payload["event_name"])
}

func TestSubscribeReceivesEventsWithoutRegisteredReactions(t *testing.T) {
	reg := registry.New()
	reg.Add(1, "no_reaction", monitor.Module{})
	q := queue.NewMemoryQueue(time.Second)
	bus := NewBus(reg, q, false, zerolog.Nop())

	ch, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	require.NoError(t, bus.Publish(SourceIssue, 10, 1, "issue_created", map[string]any{"model_id": "x"}, nil))

	select {
	case envelope := <-ch:
		assert.Equal(t, "issue_created", envelope.EventName)
		assert.Equal(t, int64(10), envelope.EventSourceID)
	case <-time.After(time.Second):
		t.Fatal("expected subscriber to receive the published event")
	}
}

func TestUnsubscribeStopsFurtherDelivery(t *testing.T) {
	reg := registry.New()
	q := queue.NewMemoryQueue(time.Second)
	bus := NewBus(reg, q, false, zerolog.Nop())

	ch, unsubscribe := bus.Subscribe()
	unsubscribe()

	require.NoError(t, bus.Publish(SourceIssue, 10, 1, "issue_created", nil, nil))

	select {
	case _, ok := <-ch:
		assert.False(t, ok, "channel should not receive after unsubscribe, and must not be closed either")
	case <-time.After(50 * time.Millisecond):
		// No delivery, as expected - channel remains open but unread.
	}
}

func TestPublishIsANoOpForAnEmptyEventName(t *testing.T) {
	reg := registry.New()
	q := queue.NewMemoryQueue(time.Second)
	bus := NewBus(reg, q, false, zerolog.Nop())

	require.NoError(t, bus.Publish(SourceIssue, 1, 1, "", nil, nil))

	handle, err := q.Receive(context.Background(), 10*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, handle)
}
