package executor

import (
	"context"
	"time"
)

// eventPayload is the decoded shape of an "event" message, matching
// events.Envelope's ToPayload keys.
type eventPayload struct {
	EventSourceID        int64          `json:"event_source_id"`
	EventSourceMonitorID int64          `json:"event_source_monitor_id"`
	EventName            string         `json:"event_name"`
	EventData            map[string]any `json:"event_data"`
}

// reactionPayload returns what a reaction callback receives: its
// event_data, with event_source_id merged in under the same key the
// envelope uses. A notifier's reaction (e.g. internal/notify/slack
// re-rendering the alert an alert_solved/alert_locked/... event names)
// otherwise has no way to know which alert fired it.
func (p eventPayload) reactionPayload() map[string]any {
	data := make(map[string]any, len(p.EventData)+1)
	for k, v := range p.EventData {
		data[k] = v
	}
	data["event_source_id"] = p.EventSourceID
	return data
}

// handleEvent runs every reaction callback the monitor registered for
// the event's name, translated from reaction_handler.py's run(): each
// callback gets its own timeout, and one callback's error or timeout
// does not stop the rest from running.
func (e *Executor) handleEvent(ctx context.Context, payload map[string]any) error {
	var p eventPayload
	if err := decodePayload(payload, &p); err != nil {
		e.log.Error().Err(err).Msg("event message missing or malformed payload")
		return nil
	}

	if err := e.reg.WaitMonitorLoaded(ctx, p.EventSourceMonitorID); err != nil {
		return nil
	}

	module, ok := e.reg.GetModule(p.EventSourceMonitorID)
	if !ok {
		e.log.Error().Int64("monitor_id", p.EventSourceMonitorID).Msg("monitor not found, skipping event")
		return nil
	}

	reactions := module.ReactionOptions[p.EventName]
	for i, reaction := range reactions {
		e.runReactionWithTimeout(ctx, p, i, reaction)
	}
	return nil
}

func (e *Executor) runReactionWithTimeout(ctx context.Context, p eventPayload, index int, reaction func(map[string]any) error) {
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- nil
				e.log.Error().Interface("panic", r).Str("event_name", p.EventName).Msg("reaction panicked")
			}
		}()
		done <- reaction(p.reactionPayload())
	}()

	select {
	case err := <-done:
		if err != nil {
			e.log.Error().Err(err).Str("event_name", p.EventName).Int64("monitor_id", p.EventSourceMonitorID).
				Int("reaction_index", index).Msg("error executing reaction")
		}
	case <-time.After(e.reactionTimeout):
		e.log.Error().Str("event_name", p.EventName).Int64("monitor_id", p.EventSourceMonitorID).
			Int("reaction_index", index).Msg("timed out executing reaction")
	case <-ctx.Done():
	}
}
