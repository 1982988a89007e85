package gwutils

import (
	"github.com/gorealm/gorealm/engine/common"
	"github.com/gorealm/gorealm/engine/gwlog"
	"github.com/pkg/errors"
)

// RunPanicless calls a function panic-freely
func RunPanicless(f func()) (paniced bool) {
	return CatchPanic(f) != nil
}

// CatchPanic calls f and returns the recovered panic as an error, nil if f returned normally.
// Contract violations (common.ErrInvalidState) are not caught and keep unwinding.
func CatchPanic(f func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if common.IsInvalidState(r) {
				panic(r)
			}
			gwlog.TraceError("%p panic: %v", f, r)
			if e, ok := r.(error); ok {
				err = e
			} else {
				err = errors.Errorf("%v", r)
			}
		}
	}()

	f()
	return
}

// RepeatUntilPanicless runs the function repeatly until there is no panic
func RepeatUntilPanicless(f func()) {
	for !RunPanicless(f) {
	}
}
