// Package corerr defines the error taxonomy shared across the core.
//
// Most failures inside a handler (a bad monitor return value, a transient
// store error, a timeout) are logged and swallowed so the surrounding loop
// keeps going — spec.md §7's "all other exceptions" bucket. BaseError is the
// one category that is NOT swallowed: it marks a fatal-per-message bug that
// must propagate up to the runner/supervisor and be re-raised, mirroring the
// original's BaseSentinelaException.
package corerr

import "errors"

// BaseError is embedded (or wrapped) by errors that must propagate past a
// handler boundary instead of being logged and discarded. Check with
// errors.As.
type BaseError struct {
	Op  string
	Err error
}

func (e *BaseError) Error() string {
	if e.Err == nil {
		return e.Op
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *BaseError) Unwrap() error {
	return e.Err
}

// NewBase wraps err as a BaseError tagged with op, the component/operation
// that detected the fatal condition.
func NewBase(op string, err error) error {
	return &BaseError{Op: op, Err: err}
}

// IsBase reports whether err (or anything it wraps) is a BaseError.
func IsBase(err error) bool {
	var be *BaseError
	return errors.As(err, &be)
}

// ErrLoadTimeout is returned by registry.WaitReady/WaitMonitorLoaded when the
// wait deadline elapses before the monitors loader publishes a ready state.
// It is a BaseError: a timeout waiting for monitors to load indicates the
// loader itself is stuck, not a transient per-message condition.
var ErrLoadTimeout = NewBase("registry", errors.New("timed out waiting for monitors to be ready"))
