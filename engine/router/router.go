// Package router delivers messages between nodes.
//
// The master is the hub: it keeps a peer per registered node and forwards
// every message whose target is another node. Login and world nodes are
// leaves: they keep one uplink to the master and send everything through it.
// A Router is used by the main routine only.
package router

import (
	"fmt"
	"sort"
	"time"

	"github.com/gorealm/gorealm/engine/common"
	"github.com/gorealm/gorealm/engine/consts"
	"github.com/gorealm/gorealm/engine/gwlog"
	"github.com/gorealm/gorealm/engine/gwutils"
	"github.com/gorealm/gorealm/engine/netutil"
	"github.com/gorealm/gorealm/engine/opmon"
	"github.com/gorealm/gorealm/engine/proto"
	"github.com/gorealm/gorealm/engine/session"
)

const handlerWarnThreshold = time.Millisecond * 100

// Peer is a connection to another node
type Peer interface {
	SendPacket(p *netutil.Packet) error
	Close() error
	String() string
}

// SessionResolver resolves the session of a target connection id
type SessionResolver interface {
	ResolveSession(id common.ConnectionID) *session.Session
}

// Message is one inbound message handed to a Handler.
// Packet is positioned after the header and released when the handler returns.
type Message struct {
	Namespace proto.Namespace
	Opcode    proto.Opcode
	Header    proto.Header
	Packet    *netutil.Packet
	From      Peer
	Session   *session.Session
}

// Handler handles messages of one (namespace, opcode)
type Handler interface {
	HandleMessage(msg *Message)
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(msg *Message)

// HandleMessage calls f(msg)
func (f HandlerFunc) HandleMessage(msg *Message) {
	f(msg)
}

type handlerKey struct {
	ns proto.Namespace
	op proto.Opcode
}

type handlerEntry struct {
	handler Handler
	opname  string
}

// Router routes messages of one node
type Router struct {
	self     common.NodeAddress
	handlers map[handlerKey]handlerEntry
	peers    map[common.NodeAddress]Peer
	uplink   Peer
	resolver SessionResolver
}

// New creates the router of the node at self
func New(self common.NodeAddress) *Router {
	if self.IsNull() || self.IsBroadcast() || self.IsAny() {
		gwlog.Panicf("invalid router address: %s", self)
	}
	return &Router{
		self:     self,
		handlers: map[handlerKey]handlerEntry{},
		peers:    map[common.NodeAddress]Peer{},
	}
}

// Self returns the address of this node
func (r *Router) Self() common.NodeAddress {
	return r.self
}

// IsHub returns if this node forwards messages between other nodes
func (r *Router) IsHub() bool {
	return r.self.Role == common.RoleMaster
}

// SetResolver sets the resolver of TargetConnectionID
func (r *Router) SetResolver(resolver SessionResolver) {
	r.resolver = resolver
}

// RegisterHandler registers the handler of (ns, op), registering a key twice panics
func (r *Router) RegisterHandler(ns proto.Namespace, op proto.Opcode, h Handler) {
	key := handlerKey{ns, op}
	if _, ok := r.handlers[key]; ok {
		common.InvalidStatef("%s: handler of %s:%d registered twice", r, ns, op)
	}
	r.handlers[key] = handlerEntry{
		handler: h,
		opname:  fmt.Sprintf("router.%s.%d", ns, op),
	}
}

// HandleFunc registers a function as the handler of (ns, op)
func (r *Router) HandleFunc(ns proto.Namespace, op proto.Opcode, f func(msg *Message)) {
	r.RegisterHandler(ns, op, HandlerFunc(f))
}

// AddPeer binds a peer to addr. A live peer already bound to addr is replaced and closed.
func (r *Router) AddPeer(addr common.NodeAddress, p Peer) {
	if addr.IsNull() || addr.IsBroadcast() || addr.IsAny() {
		common.InvalidStatef("%s: can not add peer %s at %s", r, p, addr)
	}
	if old := r.peers[addr]; old != nil && old != p {
		gwlog.Warnf("%s: peer %s at %s is replaced by %s", r, old, addr, p)
		old.Close()
	}
	r.peers[addr] = p
	if consts.DEBUG_ROUTER {
		gwlog.Debugf("%s: peer %s added at %s", r, p, addr)
	}
}

// RemovePeer unbinds addr if it is still bound to p
func (r *Router) RemovePeer(addr common.NodeAddress, p Peer) bool {
	if cur := r.peers[addr]; cur == nil || cur != p {
		return false
	}
	delete(r.peers, addr)
	if consts.DEBUG_ROUTER {
		gwlog.Debugf("%s: peer %s removed from %s", r, p, addr)
	}
	return true
}

// Peer returns the peer bound to addr
func (r *Router) Peer(addr common.NodeAddress) Peer {
	return r.peers[addr]
}

// PeerAddrs returns the sorted addresses of live peers of the role
func (r *Router) PeerAddrs(role common.NodeRole) []common.NodeAddress {
	addrs := make([]common.NodeAddress, 0, len(r.peers))
	for addr := range r.peers {
		if addr.Role == role {
			addrs = append(addrs, addr)
		}
	}
	sort.Slice(addrs, func(i, j int) bool {
		return addrs[i].Less(addrs[j])
	})
	return addrs
}

// SetUplink sets the connection to the master, nil when disconnected
func (r *Router) SetUplink(p Peer) {
	r.uplink = p
}

// Uplink returns the connection to the master
func (r *Router) Uplink() Peer {
	return r.uplink
}

// ResolveSession returns the session bound to the connection id, nil if it is gone
func (r *Router) ResolveSession(id common.ConnectionID) *session.Session {
	if r.resolver == nil || id == 0 {
		return nil
	}
	return r.resolver.ResolveSession(id)
}

func (r *Router) newPacket(target common.NodeAddress, connID common.ConnectionID, ns proto.Namespace, op proto.Opcode, write func(p *netutil.Packet)) *netutil.Packet {
	p := netutil.NewPacket()
	proto.AppendHead(p, ns, op, proto.Header{Source: r.self, Target: target, TargetConnectionID: connID})
	if write != nil {
		write(p)
	}
	return p
}

func (r *Router) send(peer Peer, p *netutil.Packet) bool {
	if err := peer.SendPacket(p); err != nil {
		gwlog.Warnf("%s: send to %s failed: %v", r, peer, err)
		return false
	}
	return true
}

// SendTo sends a message to the node at target. It returns false if target can not be resolved.
func (r *Router) SendTo(target common.NodeAddress, connID common.ConnectionID, ns proto.Namespace, op proto.Opcode, write func(p *netutil.Packet)) bool {
	peer := r.peers[target]
	if peer == nil && !r.IsHub() {
		peer = r.uplink
	}
	if peer == nil {
		gwlog.Debugf("%s: %s:%d to %s dropped: target not resolved", r, ns, op, target)
		return false
	}

	p := r.newPacket(target, connID, ns, op, write)
	ok := r.send(peer, p)
	p.Release()
	return ok
}

// SendToRole sends a message to one node of the role, the lowest address if several are known
func (r *Router) SendToRole(role common.NodeRole, ns proto.Namespace, op proto.Opcode, write func(p *netutil.Packet)) bool {
	if addrs := r.PeerAddrs(role); len(addrs) > 0 {
		return r.SendTo(addrs[0], 0, ns, op, write)
	}
	if r.IsHub() || r.uplink == nil {
		gwlog.Debugf("%s: %s:%d to role %s dropped: no node", r, ns, op, role)
		return false
	}
	target := common.NodeAddress{Group: r.self.Group, Index: common.AnyIndex, Role: role}
	p := r.newPacket(target, 0, ns, op, write)
	ok := r.send(r.uplink, p)
	p.Release()
	return ok
}

// Broadcast sends a message to every live node of the role and returns the number of packets written.
// On a leaf node the master fans the single packet out.
func (r *Router) Broadcast(role common.NodeRole, ns proto.Namespace, op proto.Opcode, write func(p *netutil.Packet)) int {
	target := common.NodeAddress{Group: r.self.Group, Index: common.BroadcastIndex, Role: role}
	p := r.newPacket(target, 0, ns, op, write)
	defer p.Release()

	if !r.IsHub() {
		if r.uplink != nil && r.send(r.uplink, p) {
			return 1
		}
		return 0
	}
	return r.fanOut(nil, role, p)
}

func (r *Router) fanOut(from Peer, role common.NodeRole, p *netutil.Packet) int {
	n := 0
	for _, addr := range r.PeerAddrs(role) {
		peer := r.peers[addr]
		if peer == from {
			continue
		}
		// queued packets must not change, so every peer gets its own copy
		cp := p.Clone()
		proto.RewriteTarget(cp, addr)
		if r.send(peer, cp) {
			n++
		}
		cp.Release()
	}
	return n
}

func (r *Router) needsForward(target common.NodeAddress) bool {
	if target.IsNull() || target == r.self {
		return false
	}
	if target.Group == r.self.Group && target.Role == r.self.Role && (target.IsBroadcast() || target.IsAny()) {
		return false
	}
	return true
}

// Dispatch handles one packet received from a peer node and releases it
func (r *Router) Dispatch(from Peer, pkt *netutil.Packet) {
	defer pkt.Release()

	ns, op, h := proto.ReadHead(pkt)
	if consts.DEBUG_ROUTER {
		gwlog.Debugf("%s: dispatch %s:%d %s from %s", r, ns, op, h, from)
	}

	if r.IsHub() && r.needsForward(h.Target) {
		r.forward(from, ns, op, h, pkt)
		return
	}

	msg := Message{
		Namespace: ns,
		Opcode:    op,
		Header:    h,
		Packet:    pkt,
		From:      from,
	}
	if h.TargetConnectionID > 0 {
		msg.Session = r.ResolveSession(h.TargetConnectionID)
		if msg.Session == nil {
			// the client is already gone
			if consts.DEBUG_ROUTER {
				gwlog.Debugf("%s: %s:%d to connection %d dropped: session not found", r, ns, op, h.TargetConnectionID)
			}
			return
		}
	}
	r.handle(&msg)
}

// DispatchClient handles one packet received from the client of a session and releases it
func (r *Router) DispatchClient(s *session.Session, pkt *netutil.Packet) {
	defer pkt.Release()

	ns, op, h := proto.ReadHead(pkt)
	if ns != proto.NS_C2S {
		gwlog.Warnf("%s: %s sent message of namespace %s, dropped", r, s, ns)
		return
	}
	r.handle(&Message{
		Namespace: ns,
		Opcode:    op,
		Header:    h,
		Packet:    pkt,
		Session:   s,
	})
}

func (r *Router) forward(from Peer, ns proto.Namespace, op proto.Opcode, h proto.Header, pkt *netutil.Packet) {
	target := h.Target
	switch {
	case target.IsBroadcast():
		n := r.fanOut(from, target.Role, pkt)
		if consts.DEBUG_ROUTER {
			gwlog.Debugf("%s: %s:%d from %s fanned out to %d %s nodes", r, ns, op, h.Source, n, target.Role)
		}
	case target.IsAny():
		addrs := r.PeerAddrs(target.Role)
		if len(addrs) == 0 {
			gwlog.Debugf("%s: %s:%d from %s dropped: no %s node", r, ns, op, h.Source, target.Role)
			return
		}
		proto.RewriteTarget(pkt, addrs[0])
		r.send(r.peers[addrs[0]], pkt)
	default:
		peer := r.peers[target]
		if peer == nil {
			gwlog.Debugf("%s: %s:%d from %s dropped: target %s not resolved", r, ns, op, h.Source, target)
			return
		}
		r.send(peer, pkt)
	}
}

func (r *Router) handle(msg *Message) {
	entry, ok := r.handlers[handlerKey{msg.Namespace, msg.Opcode}]
	if !ok {
		gwlog.Warnf("%s: unknown message %s:%d from %s, dropped", r, msg.Namespace, msg.Opcode, msg.Header.Source)
		return
	}

	op := opmon.StartOperation(entry.opname)
	gwutils.RunPanicless(func() {
		entry.handler.HandleMessage(msg)
	})
	op.Finish(handlerWarnThreshold)
}

func (r *Router) String() string {
	return fmt.Sprintf("Router<%s>", r.self)
}
