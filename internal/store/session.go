package store

import (
	"database/sql"
	"fmt"
)

// Callback is deferred work that should only run once the enclosing
// Session's transaction actually commits - almost always "publish this
// event", since an event about a row that got rolled back never happened.
type Callback func() error

// Session wraps a *sql.Tx together with a list of callbacks queued by
// repository methods during the transaction. It mirrors the original's
// CallbackSession: callbacks registered with AddCallback only run after a
// successful Commit, and are discarded (never run) if the session is
// rolled back.
type Session struct {
	tx        *sql.Tx
	callbacks []Callback
}

// Tx exposes the underlying transaction for repository methods.
func (s *Session) Tx() *sql.Tx {
	return s.tx
}

// AddCallback queues a callback to run after a successful Commit. A nil
// callback (e.g. a transition method that returned "no event to raise")
// is silently ignored.
func (s *Session) AddCallback(cb Callback) {
	if cb != nil {
		s.callbacks = append(s.callbacks, cb)
	}
}

// Commit commits the underlying transaction and, only if that succeeds,
// runs every queued callback in order. The first callback error is
// returned, but every callback still runs - the transaction already
// committed, so there is no further abort point to benefit from stopping.
func (s *Session) Commit() error {
	if err := s.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit session: %w", err)
	}

	var firstErr error
	for _, cb := range s.callbacks {
		if err := cb(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Rollback rolls back the underlying transaction and discards every
// queued callback without running it.
func (s *Session) Rollback() error {
	s.callbacks = nil
	return s.tx.Rollback()
}
