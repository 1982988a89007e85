// Package endpoint runs the network side of a node: accepted connections (clients or other nodes) and
// the uplink to the master. Every connection gets its own receive goroutine; everything it receives
// is pushed as an Event into the single queue of the owning service.
package endpoint

import (
	"fmt"
	"net"

	"github.com/gorealm/gorealm/engine/config"
	"github.com/gorealm/gorealm/engine/consts"
	"github.com/gorealm/gorealm/engine/gwlog"
	"github.com/gorealm/gorealm/engine/netutil"
	"github.com/gorealm/gorealm/engine/proto"
	"golang.org/x/net/websocket"
)

// EventKind is the kind of an Event
type EventKind int

const (
	// EventAccepted is pushed once an accepted connection passed the handshake
	EventAccepted EventKind = iota
	// EventPacket carries one received packet, the receiver must release it
	EventPacket
	// EventClosed is pushed once when an accepted connection is gone
	EventClosed
	// EventUplinkConnected is pushed when the uplink is registered on the master
	EventUplinkConnected
	// EventUplinkLost is pushed when the registered uplink is gone
	EventUplinkLost
)

var eventKindNames = [...]string{
	EventAccepted:        "accepted",
	EventPacket:          "packet",
	EventClosed:          "closed",
	EventUplinkConnected: "uplink-connected",
	EventUplinkLost:      "uplink-lost",
}

func (k EventKind) String() string {
	if int(k) < len(eventKindNames) {
		return eventKindNames[k]
	}
	return fmt.Sprintf("event(%d)", int(k))
}

// Event is one item of a service queue
type Event struct {
	Kind   EventKind
	Conn   *proto.RealmConnection
	Packet *netutil.Packet
}

// NewQueue creates a service queue
func NewQueue() chan Event {
	return make(chan Event, consts.SERVICE_PACKET_QUEUE_SIZE)
}

// Listener accepts connections speaking the realm protocol
type Listener struct {
	Name            string
	Handshake       proto.Handshake
	ReadBufferSize  int
	WriteBufferSize int
	Queue           chan<- Event
}

func (l *Listener) String() string {
	return fmt.Sprintf("Listener<%s>", l.Name)
}

// ServeTCPConnection serves one accepted tcp or kcp connection until it is closed
func (l *Listener) ServeTCPConnection(conn net.Conn) {
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		tcpConn.SetWriteBuffer(l.WriteBufferSize)
		tcpConn.SetReadBuffer(l.ReadBufferSize)
		tcpConn.SetNoDelay(consts.CLIENT_SET_TCP_NO_DELAY)
	}
	l.serve(netutil.NewBufferedConnection(conn, l.ReadBufferSize, l.WriteBufferSize))
}

// ServeWebSocket serves one websocket connection until it is closed
func (l *Listener) ServeWebSocket(ws *websocket.Conn) {
	ws.PayloadType = websocket.BinaryFrame
	l.serve(netutil.NewBufferedConnection(ws, l.ReadBufferSize, l.WriteBufferSize))
}

func (l *Listener) serve(conn netutil.Connection) {
	rc := proto.NewRealmConnection(conn)
	defer rc.Close()

	if err := rc.RecvHandshake(l.Handshake, consts.HANDSHAKE_TIMEOUT); err != nil {
		gwlog.Warnf("%s: %s handshake failed: %v", l, rc, err)
		return
	}
	if err := rc.SendHandshake(l.Handshake); err != nil {
		gwlog.Warnf("%s: %s handshake failed: %v", l, rc, err)
		return
	}

	l.Queue <- Event{Kind: EventAccepted, Conn: rc}
	recvLoop(rc, l.Queue)
	l.Queue <- Event{Kind: EventClosed, Conn: rc}
}

// recvLoop pushes packets of rc into queue until the connection fails
func recvLoop(rc *proto.RealmConnection, queue chan<- Event) {
	for {
		pkt, err := rc.Recv()
		if err != nil {
			if netutil.IsConnectionError(err) || rc.IsClosed() {
				gwlog.Debugf("%s closed: %v", rc, err)
			} else {
				gwlog.Warnf("%s receive failed: %v", rc, err)
			}
			rc.Close()
			return
		}
		queue <- Event{Kind: EventPacket, Conn: rc, Packet: pkt}
	}
}

// NetLibHandshake returns the handshake configured in [netlib]
func NetLibHandshake() proto.Handshake {
	netlib := config.GetNetLib()
	return proto.Handshake{
		ProtocolIdentifier: netlib.ProtocolIdentifier,
		ProtocolVersion:    netlib.ProtocolVersion,
		ProtocolExtension:  netlib.ProtocolExtension,
	}
}

// NewListener creates a listener using the [netlib] config
func NewListener(name string, queue chan<- Event) *Listener {
	netlib := config.GetNetLib()
	return &Listener{
		Name:            name,
		Handshake:       NetLibHandshake(),
		ReadBufferSize:  netlib.ReadBufferSize,
		WriteBufferSize: netlib.WriteBufferSize,
		Queue:           queue,
	}
}
