package post

import (
	"sync"

	"github.com/gorealm/gorealm/engine/gwutils"
)

// PostCallback is the type of functions to be posted
type PostCallback func()

var (
	callbacks []PostCallback
	lock      sync.Mutex
	notify    = make(chan struct{}, 1)
)

// Post a callback which will be executed when other things are done in the main routine
//
// Post might be called from other goroutine, so we use a lock to protect the data
func Post(f PostCallback) {
	lock.Lock()
	callbacks = append(callbacks, f)
	lock.Unlock()

	select {
	case notify <- struct{}{}:
	default:
	}
}

// Notify returns the channel which receives a value whenever callbacks are posted,
// so the main routine can select on it instead of polling
func Notify() <-chan struct{} {
	return notify
}

// Tick is called by the main routine to run all posted functions
func Tick() {
	for { // loop until there is no callbacks posted anymore
		lock.Lock()
		if len(callbacks) == 0 {
			lock.Unlock()
			break
		}
		// switch callbacks in locked section
		callbacksCopy := callbacks
		callbacks = make([]PostCallback, 0, len(callbacks))
		lock.Unlock()

		for _, f := range callbacksCopy {
			gwutils.RunPanicless(f)
		}
	}
}
