package events

import "time"

// EventSource names the entity kind that raised an event, the
// "event_source" field of the §4.I payload.
type EventSource string

const (
	SourceIssue        EventSource = "issue"
	SourceAlert        EventSource = "alert"
	SourceNotification EventSource = "notification"
	SourceMonitor      EventSource = "monitor"
)

// Name is one of the exhaustive event names spec.md §4.I enumerates.
type Name string

const (
	IssueCreated          Name = "issue_created"
	IssueLinked           Name = "issue_linked"
	IssueDropped          Name = "issue_dropped"
	IssueSolved           Name = "issue_solved"
	IssueUpdatedSolved    Name = "issue_updated_solved"
	IssueUpdatedNotSolved Name = "issue_updated_not_solved"

	AlertCreated               Name = "alert_created"
	AlertIssuesLinked          Name = "alert_issues_linked"
	AlertAcknowledged          Name = "alert_acknowledged"
	AlertAcknowledgeDismissed  Name = "alert_acknowledge_dismissed"
	AlertLocked                Name = "alert_locked"
	AlertUnlocked              Name = "alert_unlocked"
	AlertPriorityIncreased     Name = "alert_priority_increased"
	AlertPriorityDecreased     Name = "alert_priority_decreased"
	AlertUpdated               Name = "alert_updated"
	AlertSolved                Name = "alert_solved"

	NotificationCreated Name = "notification_created"
	NotificationClosed  Name = "notification_closed"

	MonitorEnabledChanged Name = "monitor_enabled_changed"
)

// Envelope is the event payload shape carried as a queue.Message's
// "event" payload. The executor hands each registered domain.ReactionFunc
// the envelope's EventData with event_source_id merged in, not the
// envelope itself.
type Envelope struct {
	EventSource          EventSource    `json:"event_source"`
	EventSourceID        int64          `json:"event_source_id"`
	EventSourceMonitorID int64          `json:"event_source_monitor_id"`
	EventName            string         `json:"event_name"`
	EventData            map[string]any `json:"event_data"`
	ExtraPayload         map[string]any `json:"extra_payload,omitempty"`
	Timestamp            time.Time      `json:"-"`
}

// ToPayload flattens the envelope into the map[string]any shape
// queue.Queue.Send and the durable queue's JSON column expect.
func (e Envelope) ToPayload() map[string]any {
	return map[string]any{
		"event_source":             string(e.EventSource),
		"event_source_id":          e.EventSourceID,
		"event_source_monitor_id":  e.EventSourceMonitorID,
		"event_name":               e.EventName,
		"event_data":               e.EventData,
		"extra_payload":            e.ExtraPayload,
	}
}
