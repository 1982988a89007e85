// Package gwvar publishes node state through expvar, served at /debug/vars of the http server
package gwvar

import "expvar"

// Bool is a boolean expvar
type Bool struct {
	val *expvar.Int
}

// NewBool publishes a new Bool variable
func NewBool(name string) *Bool {
	return &Bool{
		val: expvar.NewInt(name),
	}
}

// Value returns the current value
func (b *Bool) Value() bool {
	return b.val.Value() > 0
}

// Set sets the value
func (b *Bool) Set(v bool) {
	if v {
		b.val.Set(1)
	} else {
		b.val.Set(0)
	}
}

var (
	// IsUplinkReady is true while a login or world node is registered at the master
	IsUplinkReady = NewBool("IsUplinkReady")
	// RegisteredNodes is the number of nodes registered at the master
	RegisteredNodes = expvar.NewInt("RegisteredNodes")
	// OnlineSessions is the number of client sessions of a login or world node
	OnlineSessions = expvar.NewInt("OnlineSessions")
)
