package registry

import (
	"context"
	"sync"
	"time"

	"github.com/aristath/sentinel/internal/corerr"
)

// gate is a level-triggered boolean condition with a timed wait,
// standing in for Python's asyncio.Event (set/clear/wait) - the
// registry's monitors_ready and monitors_pending states are each one
// of these. Built on sync.Cond rather than a channel because set/clear
// need to flip the same flag repeatedly and channels are one-shot.
type gate struct {
	mu    sync.Mutex
	cond  *sync.Cond
	isSet bool
}

func newGate(initial bool) *gate {
	g := &gate{isSet: initial}
	g.cond = sync.NewCond(&g.mu)
	return g
}

func (g *gate) set() {
	g.mu.Lock()
	g.isSet = true
	g.mu.Unlock()
	g.cond.Broadcast()
}

func (g *gate) clear() {
	g.mu.Lock()
	g.isSet = false
	g.mu.Unlock()
}

func (g *gate) isSetNow() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.isSet
}

// testAndClear reports whether the gate was set, clearing it
// unconditionally - the edge-triggered read the loader uses to notice
// "a reload was requested since I last looked".
func (g *gate) testAndClear() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	was := g.isSet
	g.isSet = false
	return was
}

// wait blocks until the gate is set or timeout elapses, returning
// corerr.ErrLoadTimeout in the timeout case. sync.Cond has no built-in
// deadline, so a watcher goroutine broadcasts once the timer fires to
// unblock Wait().
func (g *gate) wait(ctx context.Context, timeout time.Duration) error {
	done := make(chan struct{})
	timer := time.AfterFunc(timeout, func() {
		close(done)
		g.cond.Broadcast()
	})
	defer timer.Stop()

	stopWatch := make(chan struct{})
	defer close(stopWatch)
	go func() {
		select {
		case <-ctx.Done():
			g.cond.Broadcast()
		case <-stopWatch:
		}
	}()

	g.mu.Lock()
	defer g.mu.Unlock()
	for !g.isSet {
		select {
		case <-done:
			return corerr.ErrLoadTimeout
		default:
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		g.cond.Wait()
	}
	return nil
}
