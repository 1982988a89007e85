// Package pending tracks requests sent to other nodes that are waiting for an answer.
//
// Every request is a completion object with its own timeout. Answers, timeouts and
// cancellations all run on the main routine (through goTimer callbacks), so a Table
// must only be used by the main routine.
package pending

import (
	"time"

	"github.com/gorealm/gorealm/engine/common"
	"github.com/gorealm/gorealm/engine/gwlog"
	"github.com/pkg/errors"
	"github.com/xiaonanln/goTimer"
)

var (
	// ErrTimeout is passed to the callback when no answer arrived in time
	ErrTimeout = errors.New("request timeout")
	// ErrCanceled is passed to the callback when the owner of the request went away
	ErrCanceled = errors.New("request canceled")
)

// Key identifies one outstanding request
type Key uint64

// MakeKey builds a key from the request kind and an id unique within the kind
func MakeKey(kind uint16, id uint32) Key {
	return Key(uint64(kind)<<32 | uint64(id))
}

// Callback receives the answer of a request, or ErrTimeout / ErrCanceled
type Callback func(result interface{}, err error)

// Request is one outstanding request
type Request struct {
	Key      Key
	Owner    common.ConnectionID
	Deadline time.Time

	callback Callback
	timer    *timer.Timer
}

// Table keeps all outstanding requests of a node
type Table struct {
	clock    func() time.Time
	requests map[Key]*Request
	byOwner  map[common.ConnectionID]map[Key]*Request
}

// NewTable creates an empty Table. clock is the time source of request deadlines, time.Now if nil.
func NewTable(clock func() time.Time) *Table {
	if clock == nil {
		clock = time.Now
	}
	return &Table{
		clock:    clock,
		requests: map[Key]*Request{},
		byOwner:  map[common.ConnectionID]map[Key]*Request{},
	}
}

// Has returns if a request with the key is outstanding
func (t *Table) Has(key Key) bool {
	_, ok := t.requests[key]
	return ok
}

// Len returns the number of outstanding requests
func (t *Table) Len() int {
	return len(t.requests)
}

// Begin registers a new request. The callback is called exactly once: by Complete, by the timeout or by CancelOwner.
func (t *Table) Begin(key Key, owner common.ConnectionID, timeout time.Duration, cb Callback) *Request {
	if _, ok := t.requests[key]; ok {
		common.InvalidStatef("pending request %d already exists", key)
	}

	req := &Request{
		Key:      key,
		Owner:    owner,
		Deadline: t.clock().Add(timeout),
		callback: cb,
	}
	req.timer = timer.AddCallback(timeout, func() {
		if t.requests[key] == req {
			t.finish(req, nil, ErrTimeout)
		}
	})

	t.requests[key] = req
	owned := t.byOwner[owner]
	if owned == nil {
		owned = map[Key]*Request{}
		t.byOwner[owner] = owned
	}
	owned[key] = req
	return req
}

// Complete delivers the answer of a request. It returns false if the request is unknown (timed out or canceled).
func (t *Table) Complete(key Key, result interface{}) bool {
	req := t.requests[key]
	if req == nil {
		gwlog.Debugf("pending request %d not found, answer dropped", key)
		return false
	}
	t.finish(req, result, nil)
	return true
}

// CancelOwner cancels every request owned by the connection
func (t *Table) CancelOwner(owner common.ConnectionID) int {
	owned := t.byOwner[owner]
	n := 0
	for _, req := range owned {
		t.finish(req, nil, ErrCanceled)
		n++
	}
	return n
}

func (t *Table) finish(req *Request, result interface{}, err error) {
	delete(t.requests, req.Key)
	if owned := t.byOwner[req.Owner]; owned != nil {
		delete(owned, req.Key)
		if len(owned) == 0 {
			delete(t.byOwner, req.Owner)
		}
	}
	if req.timer != nil {
		req.timer.Cancel()
		req.timer = nil
	}
	if err != nil {
		gwlog.Debugf("pending request %d of %d finished: %v", req.Key, req.Owner, err)
	}
	req.callback(result, err)
}
