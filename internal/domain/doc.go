// Package domain holds the core's entities and the pure state-machine and
// priority-calculation logic that governs them. Mirroring the teacher's
// internal/domain package, these types carry no infrastructure
// dependencies (no store, no queue, no logger) - persistence lives in
// internal/store, scheduling lives in internal/clock, and event emission
// lives in internal/events. A transition method here returns the event
// name it would raise (or "" for no-op) and leaves it to the caller
// (internal/store's Session) to actually record and publish it.
package domain
