// Package registry is the process-wide, in-memory map from monitor ID
// to loaded monitor.Module that internal/loader publishes into and
// everything else (controller, executor, routine engine) reads from -
// module B of the platform. It exists because the controller and
// executor need a fast synchronous lookup and cannot go through the
// Monitors Loader's module directly (that would mean importing the
// loader's dynamic-registration machinery everywhere).
package registry

import (
	"context"
	"sync"
	"time"

	"github.com/aristath/sentinel/internal/corerr"
	"github.com/aristath/sentinel/internal/monitor"
)

// monitorsReadyTimeout bounds how long WaitReady blocks before giving
// up and returning corerr.ErrLoadTimeout.
const monitorsReadyTimeout = 5 * time.Second

// Info is what the registry stores per monitor.
type Info struct {
	Name   string
	Module monitor.Module
}

// Registry is safe for concurrent use. The zero value is not usable;
// construct with New.
type Registry struct {
	mu       sync.RWMutex
	monitors map[int64]Info

	ready   *gate
	pending *gate
}

// New returns an empty registry with monitors_pending already set, the
// initial "a load is needed" state init() puts the original registry
// into.
func New() *Registry {
	r := &Registry{
		monitors: make(map[int64]Info),
		ready:    newGate(false),
		pending:  newGate(true),
	}
	return r
}

// Add registers or replaces a monitor's loaded module.
func (r *Registry) Add(monitorID int64, name string, module monitor.Module) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.monitors[monitorID] = Info{Name: name, Module: module}
}

// GetModule returns the module registered for monitorID and whether it
// was found.
func (r *Registry) GetModule(monitorID int64) (monitor.Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.monitors[monitorID]
	return info.Module, ok
}

// IsRegistered reports whether monitorID has a loaded module.
func (r *Registry) IsRegistered(monitorID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.monitors[monitorID]
	return ok
}

// All returns every currently registered monitor, in no particular
// order.
func (r *Registry) All() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Info, 0, len(r.monitors))
	for _, info := range r.monitors {
		out = append(out, info)
	}
	return out
}

// MarkLoading clears monitors_ready: the loader is about to rebuild
// the registry and readers should wait.
func (r *Registry) MarkLoading() {
	r.ready.clear()
}

// MarkReady sets monitors_ready: a load has just completed.
func (r *Registry) MarkReady() {
	r.ready.set()
}

// RequestReload sets monitors_pending, the external signal asking the
// loader to run its load loop early.
func (r *Registry) RequestReload() {
	r.pending.set()
}

// ReloadRequested reports and clears monitors_pending in one step, the
// edge-triggered "was a reload requested since I last checked" read
// the loader's load loop performs each tick.
func (r *Registry) ReloadRequested() bool {
	return r.pending.testAndClear()
}

// PendingIsSet peeks at monitors_pending without clearing it, used by
// the loader's sleep-or-wake select loop to decide whether to cut its
// wait short.
func (r *Registry) PendingIsSet() bool {
	return r.pending.isSetNow()
}

// WaitReady blocks until monitors_ready is set or monitorsReadyTimeout
// elapses, returning corerr.ErrLoadTimeout on timeout - the Go
// equivalent of the original's wait_monitors_ready, minus the
// Prometheus counter (no metric is recorded on timeout).
func (r *Registry) WaitReady(ctx context.Context) error {
	return r.ready.wait(ctx, monitorsReadyTimeout)
}

// WaitMonitorLoaded blocks until monitorID is registered or ctx is
// done, polling at a short interval. Used by request handlers that
// must act on a monitor the loader may not have published yet.
func (r *Registry) WaitMonitorLoaded(ctx context.Context, monitorID int64) error {
	const pollInterval = 20 * time.Millisecond
	if r.IsRegistered(monitorID) {
		return nil
	}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return corerr.ErrLoadTimeout
		case <-ticker.C:
			if r.IsRegistered(monitorID) {
				return nil
			}
		}
	}
}
