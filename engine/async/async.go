package async

import (
	"sync"

	"github.com/gorealm/gorealm/engine/consts"
	"github.com/gorealm/gorealm/engine/gwlog"
	"github.com/gorealm/gorealm/engine/gwutils"
	"github.com/gorealm/gorealm/engine/post"
)

var (
	numAsyncJobWorkersRunning sync.WaitGroup
)

// AsyncCallback is called on the main routine with the result of an AsyncRoutine
type AsyncCallback func(res interface{}, err error)

// Callback posts the callback to the main routine
func (ac AsyncCallback) Callback(res interface{}, err error) {
	if ac != nil {
		post.Post(func() {
			ac(res, err)
		})
	}
}

// AsyncRoutine runs in a job worker goroutine and must not touch main routine state
type AsyncRoutine func() (res interface{}, err error)

// AsyncJobWorker runs jobs of one group sequentially
type AsyncJobWorker struct {
	group    string
	jobQueue chan asyncJobItem
}

type asyncJobItem struct {
	routine  AsyncRoutine
	callback AsyncCallback
}

func newAsyncJobWorker(group string) *AsyncJobWorker {
	ajw := &AsyncJobWorker{
		group:    group,
		jobQueue: make(chan asyncJobItem, consts.ASYNC_JOB_QUEUE_MAXLEN),
	}
	numAsyncJobWorkersRunning.Add(1)
	go ajw.loop()
	return ajw
}

func (ajw *AsyncJobWorker) appendJob(routine AsyncRoutine, callback AsyncCallback) {
	ajw.jobQueue <- asyncJobItem{routine, callback}
}

func (ajw *AsyncJobWorker) loop() {
	defer numAsyncJobWorkersRunning.Done()
	for item := range ajw.jobQueue {
		item := item
		var res interface{}
		var err error
		if perr := gwutils.CatchPanic(func() {
			res, err = item.routine()
		}); perr != nil {
			err = perr
		}
		item.callback.Callback(res, err)
	}
	gwlog.Debugf("async job worker %s quit", ajw.group)
}

var (
	asyncJobWorkersLock sync.RWMutex
	asyncJobWorkers     = map[string]*AsyncJobWorker{}
)

func getAsyncJobWorker(group string) (ajw *AsyncJobWorker) {
	asyncJobWorkersLock.RLock()
	ajw = asyncJobWorkers[group]
	asyncJobWorkersLock.RUnlock()

	if ajw == nil {
		asyncJobWorkersLock.Lock()
		ajw = asyncJobWorkers[group]
		if ajw == nil {
			ajw = newAsyncJobWorker(group)
			asyncJobWorkers[group] = ajw
		}
		asyncJobWorkersLock.Unlock()
	}
	return
}

// AppendAsyncJob runs the routine in the worker of the group and posts the callback to the main routine
func AppendAsyncJob(group string, routine AsyncRoutine, callback AsyncCallback) {
	ajw := getAsyncJobWorker(group)
	ajw.appendJob(routine, callback)
}

// Shutdown closes all job queues and waits for the workers to quit
func Shutdown() {
	asyncJobWorkersLock.Lock()
	for _, ajw := range asyncJobWorkers {
		close(ajw.jobQueue)
	}
	asyncJobWorkers = map[string]*AsyncJobWorker{}
	asyncJobWorkersLock.Unlock()

	numAsyncJobWorkersRunning.Wait()
}
