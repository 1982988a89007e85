package session

import (
	"fmt"
	"time"

	"github.com/gorealm/gorealm/engine/common"
	"github.com/gorealm/gorealm/engine/consts"
	"github.com/gorealm/gorealm/engine/gwlog"
	"github.com/gorealm/gorealm/engine/netutil"
	"github.com/gorealm/gorealm/engine/pending"
	"github.com/gorealm/gorealm/engine/proto"
	"github.com/pkg/errors"
)

// Conn is the connection a session is bound to
type Conn interface {
	SendMessage(ns proto.Namespace, op proto.Opcode, h proto.Header, write func(p *netutil.Packet)) error
	Close() error
	String() string
}

// Flag is a behavior flag of a session
type Flag uint32

const (
	// FlagCheckDisconnectTimer makes Tick close the session once its deadline has passed
	FlagCheckDisconnectTimer Flag = 1 << iota
	// FlagAuthenticated is set once the client passed password verification
	FlagAuthenticated
	// FlagInWorld is set once the client entered a world with a character
	FlagInWorld
	// FlagWatchWorldList makes the login server push every world list update to the client
	FlagWatchWorldList
)

// Session is the application context bound to one connection
type Session struct {
	ID                 common.ConnectionID
	Conn               Conn
	Owner              common.EntityID
	Flags              Flag
	DisconnectDeadline time.Time
	AcceptTime         time.Time

	// Data is the application context attached by the component (a world.Character on world nodes)
	Data interface{}
}

func (s *Session) String() string {
	return fmt.Sprintf("Session<%d|%s>", s.ID, s.Conn)
}

// HasFlag returns if all bits of f are set
func (s *Session) HasFlag(f Flag) bool {
	return s.Flags&f == f
}

// SetFlag sets bits of f
func (s *Session) SetFlag(f Flag) {
	s.Flags |= f
}

// ClearFlag clears bits of f
func (s *Session) ClearFlag(f Flag) {
	s.Flags &^= f
}

// Send sends a message to the client of this session
func (s *Session) Send(ns proto.Namespace, op proto.Opcode, write func(p *netutil.Packet)) error {
	if consts.DEBUG_CLIENTS {
		gwlog.Debugf("%s <<< %s:%d", s, ns, op)
	}
	return s.Conn.SendMessage(ns, op, proto.Header{TargetConnectionID: s.ID}, write)
}

// Table owns all sessions of a node, one per accepted connection.
//
// Table is not thread-safe, it is used by the main routine only.
type Table struct {
	maxConnections int
	clock          func() time.Time
	lastID         common.ConnectionID
	byConn         map[Conn]*Session
	byID           map[common.ConnectionID]*Session
	pendings       *pending.Table
	closeHooks     []func(s *Session)
}

// NewTable creates a session table. clock is the time source of disconnect timers, time.Now if nil.
func NewTable(maxConnections int, clock func() time.Time) *Table {
	if clock == nil {
		clock = time.Now
	}
	return &Table{
		maxConnections: maxConnections,
		clock:          clock,
		byConn:         map[Conn]*Session{},
		byID:           map[common.ConnectionID]*Session{},
		pendings:       pending.NewTable(clock),
	}
}

// Pending returns the requests owned by sessions of this table
func (t *Table) Pending() *pending.Table {
	return t.pendings
}

// AddCloseHook adds a function called for every session removed by OnClose
func (t *Table) AddCloseHook(f func(s *Session)) {
	t.closeHooks = append(t.closeHooks, f)
}

// OnAccept creates the session of a new connection
func (t *Table) OnAccept(conn Conn) (*Session, error) {
	if _, ok := t.byConn[conn]; ok {
		common.InvalidStatef("connection %s accepted twice", conn)
	}
	if len(t.byConn) >= t.maxConnections {
		return nil, errors.Wrapf(common.ErrCapacityExceeded, "session table full (%d)", t.maxConnections)
	}

	s := &Session{
		ID:         t.genID(),
		Conn:       conn,
		AcceptTime: t.clock(),
	}
	t.byConn[conn] = s
	t.byID[s.ID] = s
	if consts.DEBUG_CLIENTS {
		gwlog.Debugf("%s accepted, %d sessions", s, len(t.byConn))
	}
	return s, nil
}

func (t *Table) genID() common.ConnectionID {
	for {
		t.lastID++
		if t.lastID == 0 {
			continue
		}
		if _, ok := t.byID[t.lastID]; !ok {
			return t.lastID
		}
	}
}

// OnClose removes the session of a closed connection and cancels its pending requests
func (t *Table) OnClose(conn Conn) *Session {
	s := t.byConn[conn]
	if s == nil {
		gwlog.Debugf("close of unknown connection %s", conn)
		return nil
	}
	delete(t.byConn, conn)
	delete(t.byID, s.ID)
	t.pendings.CancelOwner(s.ID)
	for _, hook := range t.closeHooks {
		hook(s)
	}
	if consts.DEBUG_CLIENTS {
		gwlog.Debugf("%s closed, %d sessions", s, len(t.byConn))
	}
	return s
}

// Lookup returns the session of a connection
func (t *Table) Lookup(conn Conn) *Session {
	return t.byConn[conn]
}

// LookupID returns the session with the connection id
func (t *Table) LookupID(id common.ConnectionID) *Session {
	if id == 0 {
		return nil
	}
	return t.byID[id]
}

// ResolveSession implements router.SessionResolver
func (t *Table) ResolveSession(id common.ConnectionID) *Session {
	return t.LookupID(id)
}

// Count returns the number of live sessions
func (t *Table) Count() int {
	return len(t.byConn)
}

// Range calls f for every session until f returns false
func (t *Table) Range(f func(s *Session) bool) {
	for _, s := range t.byID {
		if !f(s) {
			return
		}
	}
}

// SetDisconnectTimer arms the disconnect timer of the session, replacing any earlier deadline
func (t *Table) SetDisconnectTimer(s *Session, d time.Duration) {
	s.DisconnectDeadline = t.clock().Add(d)
	s.SetFlag(FlagCheckDisconnectTimer)
}

// ClearDisconnectTimer disarms the disconnect timer of the session
func (t *Table) ClearDisconnectTimer(s *Session) {
	s.ClearFlag(FlagCheckDisconnectTimer)
	s.DisconnectDeadline = time.Time{}
}

// Tick closes the connections of sessions whose disconnect deadline has passed.
// The sessions are removed later by OnClose when their receive routines exit.
func (t *Table) Tick() int {
	now := t.clock()
	var expired []*Session
	for _, s := range t.byID {
		if s.HasFlag(FlagCheckDisconnectTimer) && !now.Before(s.DisconnectDeadline) {
			expired = append(expired, s)
		}
	}
	for _, s := range expired {
		s.ClearFlag(FlagCheckDisconnectTimer)
		gwlog.Infof("%s disconnect timer expired, closing", s)
		if err := s.Conn.Close(); err != nil {
			gwlog.Debugf("%s close failed: %v", s, err)
		}
	}
	return len(expired)
}
