// Package queue implements the typed message bus described in the
// message-queue module: process_monitor/event/request envelopes
// delivered with at-least-once semantics via a visibility timeout.
package queue

import (
	"context"
	"errors"
	"time"
)

// MessageType is the envelope's discriminator. The wire format is a
// JSON object with exactly these two fields: type and payload.
type MessageType string

const (
	TypeProcessMonitor MessageType = "process_monitor"
	TypeEvent          MessageType = "event"
	TypeRequest         MessageType = "request"
)

// Message is the envelope carried by the queue.
type Message struct {
	Type    MessageType    `json:"type"`
	Payload map[string]any `json:"payload"`
}

// ProcessMonitorPayload is the payload shape for TypeProcessMonitor.
type ProcessMonitorPayload struct {
	MonitorID int64    `json:"monitor_id"`
	Tasks     []string `json:"tasks"`
}

// RequestPayload is the payload shape for TypeRequest.
type RequestPayload struct {
	Action string         `json:"action"`
	Params map[string]any `json:"params"`
}

// Handle identifies a received-but-not-yet-deleted message. It becomes
// invalid once Delete succeeds.
type Handle struct {
	ID      string
	Message Message
}

// ErrNotFound is returned by Heartbeat/Delete when the handle does not
// refer to a currently in-flight message (already deleted, or its
// visibility window already expired and it was redelivered under a
// different handle).
var ErrNotFound = errors.New("queue: handle not found")

// Queue is the message bus contract consumed by internal/controller,
// internal/executor and internal/events. Send/Receive/Heartbeat/Delete
// mirror the four operations named by the module.
type Queue interface {
	// Send enqueues a message of the given type and payload.
	Send(ctx context.Context, msgType MessageType, payload map[string]any) error

	// Receive waits up to `wait` for a message to become available,
	// returning nil if none arrived in time. The returned handle is
	// invisible to other receivers until the configured visibility
	// time elapses or Heartbeat/Delete is called.
	Receive(ctx context.Context, wait time.Duration) (*Handle, error)

	// Heartbeat extends a handle's invisibility window by
	// 2 x visibility_time, measured from the call time.
	Heartbeat(ctx context.Context, handle *Handle) error

	// Delete acknowledges completion; the handle becomes invalid and
	// the message will not be redelivered.
	Delete(ctx context.Context, handle *Handle) error

	// Size reports the number of messages currently visible (ready to
	// be received), used by diagnostics and tests.
	Size(ctx context.Context) (int, error)
}
