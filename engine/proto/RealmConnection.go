package proto

import (
	"fmt"
	"net"
	"time"

	"github.com/gorealm/gorealm/engine/common"
	"github.com/gorealm/gorealm/engine/netutil"
	"github.com/pkg/errors"
	"github.com/xiaonanln/go-xnsyncutil/xnsyncutil"
)

var (
	// ErrHandshakeMismatch is returned when the peer speaks an incompatible protocol
	ErrHandshakeMismatch = errors.New("protocol handshake mismatch")
)

// RealmConnection is the network protocol implementation shared by all nodes and clients
type RealmConnection struct {
	packetConn *netutil.PacketConnection
	closed     xnsyncutil.AtomicBool
}

// NewRealmConnection creates a RealmConnection using network connection
func NewRealmConnection(conn netutil.Connection) *RealmConnection {
	return &RealmConnection{
		packetConn: netutil.NewPacketConnection(conn),
	}
}

// SendHandshake sends OP_HANDSHAKE, it must be the first packet on a connection
func (rc *RealmConnection) SendHandshake(hs Handshake) error {
	packet := rc.packetConn.NewPacket()
	AppendHead(packet, NS_SYSTEM, OP_HANDSHAKE, Header{})
	packet.AppendUint32(hs.ProtocolIdentifier)
	packet.AppendUint32(hs.ProtocolVersion)
	packet.AppendUint32(hs.ProtocolExtension)
	return rc.SendPacketRelease(packet)
}

// RecvHandshake waits for the peer's OP_HANDSHAKE and checks it against expect
func (rc *RealmConnection) RecvHandshake(expect Handshake, timeout time.Duration) error {
	if timeout > 0 {
		// read deadlines are swallowed by buffered connections, so close the connection instead
		t := time.AfterFunc(timeout, func() {
			rc.Close()
		})
		defer t.Stop()
	}

	packet, err := rc.packetConn.RecvPacket()
	if err != nil {
		return err
	}
	defer packet.Release()

	if packet.GetPayloadLen() < HEADER_SIZE+12 {
		return errors.Wrapf(ErrHandshakeMismatch, "%s: short handshake", rc)
	}
	ns, op, _ := ReadHead(packet)
	if ns != NS_SYSTEM || op != OP_HANDSHAKE {
		return errors.Wrapf(ErrHandshakeMismatch, "%s: expect handshake, got %s:%d", rc, ns, op)
	}
	var got Handshake
	got.ProtocolIdentifier = packet.ReadUint32()
	got.ProtocolVersion = packet.ReadUint32()
	got.ProtocolExtension = packet.ReadUint32()
	if !got.Matches(expect) {
		return errors.Wrapf(ErrHandshakeMismatch, "%s: got %+v, expect %+v", rc, got, expect)
	}
	return nil
}

// SendRegisterNode sends OP_REGISTER_NODE to claim addr on the master
func (rc *RealmConnection) SendRegisterNode(addr common.NodeAddress, host string, port int) error {
	packet := rc.packetConn.NewPacket()
	AppendHead(packet, NS_SYSTEM, OP_REGISTER_NODE, Header{Source: addr})
	packet.AppendVarStr(host)
	packet.AppendUint32(uint32(port))
	return rc.SendPacketRelease(packet)
}

// SendRegisterNodeAck sends OP_REGISTER_NODE_ACK to a registered node
func (rc *RealmConnection) SendRegisterNodeAck(master common.NodeAddress, addr common.NodeAddress) error {
	packet := rc.packetConn.NewPacket()
	AppendHead(packet, NS_SYSTEM, OP_REGISTER_NODE_ACK, Header{Source: master, Target: addr})
	return rc.SendPacketRelease(packet)
}

// SendMessage builds one message with the write callback and sends it
func (rc *RealmConnection) SendMessage(ns Namespace, op Opcode, h Header, write func(p *netutil.Packet)) error {
	packet := rc.packetConn.NewPacket()
	AppendHead(packet, ns, op, h)
	if write != nil {
		write(packet)
	}
	return rc.SendPacketRelease(packet)
}

// SendPacket send packet to remote
func (rc *RealmConnection) SendPacket(packet *netutil.Packet) error {
	if rc.closed.Load() {
		return errors.Wrapf(net.ErrClosed, "%s: send on closed connection", rc)
	}
	return rc.packetConn.SendPacket(packet)
}

// SendPacketRelease send packet to remote and then release the packet
func (rc *RealmConnection) SendPacketRelease(packet *netutil.Packet) error {
	err := rc.SendPacket(packet)
	packet.Release()
	return err
}

// Recv receives the next packet, the caller reads the head with ReadHead
func (rc *RealmConnection) Recv() (*netutil.Packet, error) {
	pkt, err := rc.packetConn.RecvPacket()
	if err != nil {
		return nil, err
	}
	if pkt.GetPayloadLen() < HEADER_SIZE {
		pkt.Release()
		return nil, errors.Errorf("%s: packet shorter than header: %d", rc, pkt.GetPayloadLen())
	}
	return pkt, nil
}

// Close this connection
func (rc *RealmConnection) Close() error {
	rc.closed.Store(true)
	return rc.packetConn.Close()
}

// IsClosed returns if the connection is closed
func (rc *RealmConnection) IsClosed() bool {
	return rc.closed.Load()
}

// RemoteAddr returns the remote address
func (rc *RealmConnection) RemoteAddr() net.Addr {
	return rc.packetConn.RemoteAddr()
}

// LocalAddr returns the local address
func (rc *RealmConnection) LocalAddr() net.Addr {
	return rc.packetConn.LocalAddr()
}

func (rc *RealmConnection) String() string {
	return fmt.Sprintf("RealmConnection<%s>", rc.RemoteAddr())
}
