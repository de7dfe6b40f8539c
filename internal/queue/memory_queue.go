package queue

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// pollInterval is how often Receive re-checks the ready list while
// waiting for a message to arrive or an in-flight message's
// visibility window to expire. Modeled on the teacher worker pool's
// empty-queue poll, at half its 100ms interval.
const pollInterval = 50 * time.Millisecond

type inFlightEntry struct {
	msg       Message
	expiresAt time.Time
}

// MemoryQueue is an in-process implementation of Queue, used by tests
// and by single-process deployments that do not need delivery to
// survive a restart. Messages are FIFO; the wire format carries no
// priority field, so unlike the teacher's trading job queue this queue
// does not reorder by urgency.
type MemoryQueue struct {
	mu             sync.Mutex
	ready          *list.List // of Message
	inFlight       map[string]inFlightEntry
	visibilityTime time.Duration
}

// NewMemoryQueue creates an empty in-memory queue. visibilityTime is
// how long a received message stays invisible before it is considered
// abandoned and returned to the ready list.
func NewMemoryQueue(visibilityTime time.Duration) *MemoryQueue {
	return &MemoryQueue{
		ready:          list.New(),
		inFlight:       make(map[string]inFlightEntry),
		visibilityTime: visibilityTime,
	}
}

func (q *MemoryQueue) Send(_ context.Context, msgType MessageType, payload map[string]any) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ready.PushBack(Message{Type: msgType, Payload: payload})
	return nil
}

// reclaimExpiredLocked moves in-flight messages whose visibility
// window has elapsed back onto the ready list. Caller holds q.mu.
func (q *MemoryQueue) reclaimExpiredLocked(now time.Time) {
	for handle, entry := range q.inFlight {
		if now.After(entry.expiresAt) {
			delete(q.inFlight, handle)
			q.ready.PushBack(entry.msg)
		}
	}
}

func (q *MemoryQueue) Receive(ctx context.Context, wait time.Duration) (*Handle, error) {
	deadline := time.Now().Add(wait)
	for {
		q.mu.Lock()
		q.reclaimExpiredLocked(time.Now())
		if front := q.ready.Front(); front != nil {
			msg := q.ready.Remove(front).(Message)
			handle := uuid.NewString()
			q.inFlight[handle] = inFlightEntry{msg: msg, expiresAt: time.Now().Add(q.visibilityTime)}
			q.mu.Unlock()
			return &Handle{ID: handle, Message: msg}, nil
		}
		q.mu.Unlock()

		if !time.Now().Before(deadline) {
			return nil, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

func (q *MemoryQueue) Heartbeat(_ context.Context, handle *Handle) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	entry, ok := q.inFlight[handle.ID]
	if !ok {
		return ErrNotFound
	}
	entry.expiresAt = time.Now().Add(2 * q.visibilityTime)
	q.inFlight[handle.ID] = entry
	return nil
}

func (q *MemoryQueue) Delete(_ context.Context, handle *Handle) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.inFlight[handle.ID]; !ok {
		return ErrNotFound
	}
	delete(q.inFlight, handle.ID)
	return nil
}

func (q *MemoryQueue) Size(_ context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.ready.Len(), nil
}
