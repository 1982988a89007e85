package common

import (
	"github.com/gorealm/gorealm/engine/gwlog"
	"github.com/pkg/errors"
)

var (
	// ErrNotFound is returned when an address, session, party or context lookup misses.
	// It is an expected outcome of disconnect races and never logged as an error.
	ErrNotFound = errors.New("not found")
	// ErrCapacityExceeded is returned when a bounded pool is exhausted
	ErrCapacityExceeded = errors.New("capacity exceeded")
	// ErrExternalDependency is returned when a required collaborator is unavailable
	ErrExternalDependency = errors.New("external dependency unavailable")
	// ErrInvalidState is the cause of contract violation panics. They are never contained and end the process.
	ErrInvalidState = errors.New("invalid state")
)

// IsNotFound returns if the cause of err is ErrNotFound
func IsNotFound(err error) bool {
	return err != nil && errors.Cause(err) == ErrNotFound
}

// IsCapacityExceeded returns if the cause of err is ErrCapacityExceeded
func IsCapacityExceeded(err error) bool {
	return err != nil && errors.Cause(err) == ErrCapacityExceeded
}

// IsExternalDependency returns if the cause of err is ErrExternalDependency
func IsExternalDependency(err error) bool {
	return err != nil && errors.Cause(err) == ErrExternalDependency
}

// IsInvalidState returns if the recovered value r is a contract violation raised by InvalidStatef
func IsInvalidState(r interface{}) bool {
	err, ok := r.(error)
	return ok && errors.Cause(err) == ErrInvalidState
}

// InvalidStatef logs and panics with an error caused by ErrInvalidState
func InvalidStatef(format string, args ...interface{}) {
	err := errors.Wrapf(ErrInvalidState, format, args...)
	gwlog.Errorf("%v", err)
	panic(err)
}
