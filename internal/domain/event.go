package domain

import "time"

// AuditEventType classifies an AuditEvent row - distinct from the
// Reactions Bus's event names (internal/events.Name), which describe
// entity state transitions rather than execution outcomes.
type AuditEventType string

const (
	AuditEventExecutionSuccess AuditEventType = "monitor_execution_success"
	AuditEventExecutionError   AuditEventType = "monitor_execution_error"
)

// AuditEvent is a lightweight, queryable record of something that
// happened to a model instance - written once per monitor execution
// outcome, independent of the detailed MonitorExecution audit row, and
// pruned periodically by the clean_events controller procedure.
type AuditEvent struct {
	ID        string
	Type      AuditEventType
	Model     string
	ModelID   int64
	CreatedAt time.Time
	Payload   map[string]any
}
