package gwutils

import (
	"fmt"
	"testing"

	"github.com/bmizerany/assert"
	"github.com/gorealm/gorealm/engine/common"
)

func TestRunPanicless(t *testing.T) {
	assert.T(t, RunPanicless(func() {
		panic(1)
	}), "should report panic")
	assert.T(t, RunPanicless(func() {
		panic(fmt.Errorf("bad"))
	}), "should report panic")
	assert.T(t, !RunPanicless(func() {}), "should not report panic")
}

func TestCatchPanic(t *testing.T) {
	err := CatchPanic(func() {
		panic("boom")
	})
	assert.Equal(t, "boom", err.Error())
	assert.Equal(t, nil, CatchPanic(func() {}))
}

func TestRepeatUntilPanicless(t *testing.T) {
	n := 0
	RepeatUntilPanicless(func() {
		n++
		if n < 3 {
			panic(n)
		}
	})
	assert.Equal(t, 3, n)
}

func TestInvalidStateNotCaught(t *testing.T) {
	var recovered interface{}
	func() {
		defer func() {
			recovered = recover()
		}()
		RunPanicless(func() {
			common.InvalidStatef("party %d is not alive", 3)
		})
	}()
	assert.T(t, common.IsInvalidState(recovered), "contract violations must keep unwinding")
	assert.T(t, !common.IsInvalidState("boom"), "plain panics are not contract violations")
}
