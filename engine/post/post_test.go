package post

import (
	"testing"

	"github.com/bmizerany/assert"
)

func TestPost(t *testing.T) {
	var a int
	Post(func() {
		a = 1
	})
	<-Notify()
	Tick()
	assert.Equal(t, 1, a)
}

func TestPostInCallback(t *testing.T) {
	var order []int
	Post(func() {
		order = append(order, 1)
		Post(func() {
			order = append(order, 3)
		})
	})
	Post(func() {
		order = append(order, 2)
	})
	Tick()
	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestPanicDoesNotStopTick(t *testing.T) {
	ran := false
	Post(func() {
		panic("bad callback")
	})
	Post(func() {
		ran = true
	})
	Tick()
	assert.T(t, ran, "callback after a panicking one should still run")
}
