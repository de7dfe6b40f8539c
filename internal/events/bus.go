// Package events implements the Reactions Bus (module I): entity state
// transitions call CreateEvent, which either queues a message for the
// executor's event handler to replay against the monitor's registered
// reaction callbacks, or simply logs, depending on whether the monitor
// declared any reactions for that event name.
package events

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"github.com/aristath/sentinel/internal/queue"
	"github.com/aristath/sentinel/internal/registry"
	"github.com/aristath/sentinel/internal/store"
)

// Bus is the Reactions Bus. It is process-wide, constructed once at
// startup and threaded into every entity-mutating call site (mirroring
// the teacher's single shared *Bus wired through internal/di).
type Bus struct {
	reg          *registry.Registry
	q            queue.Queue
	logAllEvents bool
	log          zerolog.Logger

	mu          sync.Mutex
	subscribers map[chan Envelope]struct{}
}

// NewBus builds a Reactions Bus. logAllEvents is Config.LogAllEvents -
// whether an event with no registered reaction should still be logged.
func NewBus(reg *registry.Registry, q queue.Queue, logAllEvents bool, log zerolog.Logger) *Bus {
	return &Bus{
		reg:          reg,
		q:            q,
		logAllEvents: logAllEvents,
		log:          log.With().Str("component", "reactions_bus").Logger(),
	}
}

// CreateEvent builds the §4.I envelope and, as a callback deferred on
// sess, either enqueues it (if monitorID's module registered at least
// one reaction for name) or just logs it (if Config.LogAllEvents).
// Because the callback is deferred on sess, a rolled-back transaction
// never produces an event - the "no event without commit" guarantee.
//
// Use CreateEvent from code that has not already deferred the event
// through a Session callback of its own (e.g. a handler reacting to a
// completed transaction). Use Publish instead when wiring a
// repository's own `publish func(...) error` parameter (IssueRepository,
// AlertRepository, NotificationRepository, MonitorRepository.SetEnabled)
// - those repositories already call sess.AddCallback around the publish
// function they're given, so deferring a second time here would append
// this event's dispatch callback to sess.callbacks *while Session.Commit
// is mid-iteration over that same slice*, and Go's range over a slice
// snapshots its length up front - the new entry would never run.
func (b *Bus) CreateEvent(sess *store.Session, source EventSource, sourceID, monitorID int64, name string, data map[string]any, extra map[string]any) {
	envelope := b.buildEnvelope(source, sourceID, monitorID, name, data, extra)
	sess.AddCallback(func() error {
		return b.dispatch(envelope)
	})
}

// Publish dispatches the §4.I envelope immediately, with no deferral of
// its own. It is the publish function repositories' Create/Save/
// SetEnabled methods expect: those methods already defer it on their
// Session, so by the time Publish runs the transaction has already
// committed.
func (b *Bus) Publish(source EventSource, sourceID, monitorID int64, name string, data map[string]any, extra map[string]any) error {
	if name == "" {
		return nil
	}
	return b.dispatch(b.buildEnvelope(source, sourceID, monitorID, name, data, extra))
}

func (b *Bus) buildEnvelope(source EventSource, sourceID, monitorID int64, name string, data map[string]any, extra map[string]any) Envelope {
	return Envelope{
		EventSource:          source,
		EventSourceID:        sourceID,
		EventSourceMonitorID: monitorID,
		EventName:            name,
		EventData:            data,
		ExtraPayload:         extra,
	}
}

// Subscribe registers a live listener for every event this Bus dispatches,
// regardless of whether the originating monitor declared a reaction for
// it - used by the admin HTTP surface's websocket event stream, which
// wants to show operators everything happening, not just what has a
// reaction wired. The returned func must be called to unregister the
// listener and release its channel; failing to call it leaks the channel.
// Dispatch never blocks on a listener: once its buffer is full, further
// events for it are dropped.
func (b *Bus) Subscribe() (<-chan Envelope, func()) {
	ch := make(chan Envelope, 64)

	b.mu.Lock()
	if b.subscribers == nil {
		b.subscribers = make(map[chan Envelope]struct{})
	}
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		delete(b.subscribers, ch)
		b.mu.Unlock()
	}
	return ch, unsubscribe
}

func (b *Bus) broadcast(envelope Envelope) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subscribers {
		select {
		case ch <- envelope:
		default:
			// Slow subscriber - drop rather than block event dispatch.
		}
	}
}

func (b *Bus) dispatch(envelope Envelope) error {
	b.broadcast(envelope)

	hasReactions := b.hasReactions(envelope.EventSourceMonitorID, envelope.EventName)

	if !hasReactions {
		if b.logAllEvents {
			b.logEvent(envelope)
		}
		return nil
	}

	b.logEvent(envelope)
	return b.q.Send(context.Background(), queue.TypeEvent, envelope.ToPayload())
}

func (b *Bus) hasReactions(monitorID int64, eventName string) bool {
	module, ok := b.reg.GetModule(monitorID)
	if !ok {
		return false
	}
	return len(module.ReactionOptions[eventName]) > 0
}

func (b *Bus) logEvent(envelope Envelope) {
	encoded, err := json.Marshal(envelope.ToPayload())
	if err != nil {
		b.log.Error().Err(err).Str("event_name", envelope.EventName).Msg("failed to encode event payload for logging")
		return
	}
	b.log.Info().
		Str("event_name", envelope.EventName).
		Int64("monitor_id", envelope.EventSourceMonitorID).
		RawJSON("payload", encoded).
		Msg("event")
}
