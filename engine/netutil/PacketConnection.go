package netutil

import (
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gorealm/gorealm/engine/consts"
	"github.com/gorealm/gorealm/engine/gwlog"
	"github.com/pkg/errors"
)

var (
	errSendQueueFull    = errors.New("send queue full")
	errConnectionClosed = errors.New("connection closed")
)

// PacketConnection is a connection that send and receive data packets upon a network stream connection.
//
// Sent packets are queued and written by the connection's own send routine, so senders never wait for the peer.
type PacketConnection struct {
	conn      Connection
	sendQueue chan *Packet
	closing   chan struct{}
	closeOnce sync.Once
}

// NewPacketConnection creates a packet connection based on network connection
func NewPacketConnection(conn Connection) *PacketConnection {
	pc := &PacketConnection{
		conn:      conn,
		sendQueue: make(chan *Packet, consts.CONNECTION_SEND_QUEUE_SIZE),
		closing:   make(chan struct{}),
	}
	go pc.sendRoutine()
	return pc
}

// NewPacket allocates a new packet (usually for sending)
func (pc *PacketConnection) NewPacket() *Packet {
	return NewPacket()
}

// SendPacket queues the packet for sending. The packet is retained until it is written, so the caller may release it.
// A full send queue means the peer stopped reading: the connection is closed and an error returned.
func (pc *PacketConnection) SendPacket(packet *Packet) error {
	if consts.DEBUG_PACKETS {
		gwlog.Debugf("%s SEND PACKET %p: payload=%v", pc, packet, packet.Payload())
	}

	select {
	case <-pc.closing:
		return errors.Wrapf(errConnectionClosed, "%s", pc)
	default:
	}

	packet.AddRefCount(1)
	select {
	case pc.sendQueue <- packet:
		return nil
	default:
		packet.Release()
		pc.Close()
		return errors.Wrapf(errSendQueueFull, "%s: %d packets queued", pc, consts.CONNECTION_SEND_QUEUE_SIZE)
	}
}

func (pc *PacketConnection) sendRoutine() {
	for {
		select {
		case packet := <-pc.sendQueue:
			if err := pc.writeQueued(packet); err != nil {
				if !IsConnectionError(err) {
					gwlog.Warnf("%s: send failed: %v", pc, err)
				}
				pc.markClosing()
				abortConnection(pc.conn)
				pc.releaseQueued()
				return
			}
		case <-pc.closing:
			pc.flushOnClose()
			return
		}
	}
}

// writeQueued writes the packet and everything queued behind it, then flushes once
func (pc *PacketConnection) writeQueued(packet *Packet) error {
	for {
		_, err := pc.conn.Write(packet.data())
		packet.Release()
		if err != nil {
			return err
		}

		select {
		case packet = <-pc.sendQueue:
		default:
			return pc.conn.Flush()
		}
	}
}

// flushOnClose writes the packets queued before Close and closes the network connection
func (pc *PacketConnection) flushOnClose() {
	select {
	case packet := <-pc.sendQueue:
		pc.writeQueued(packet)
	default:
	}
	pc.conn.Close()
	pc.releaseQueued()
}

func (pc *PacketConnection) releaseQueued() {
	for {
		select {
		case packet := <-pc.sendQueue:
			packet.Release()
		default:
			return
		}
	}
}

// markClosing stops accepting packets. A peer that does not take the remaining packets within
// CONNECTION_CLOSE_FLUSH_TIMEOUT has its connection aborted, which unblocks the send routine.
func (pc *PacketConnection) markClosing() {
	pc.closeOnce.Do(func() {
		close(pc.closing)
		time.AfterFunc(consts.CONNECTION_CLOSE_FLUSH_TIMEOUT, func() {
			abortConnection(pc.conn)
		})
	})
}

// RecvPacket receives the next packet, blocking until it arrives
func (pc *PacketConnection) RecvPacket() (*Packet, error) {
	var sizeField [_SIZE_FIELD_SIZE]byte
	if _, err := io.ReadFull(pc.conn, sizeField[:]); err != nil {
		return nil, err
	}

	payloadLen := NETWORK_ENDIAN.Uint32(sizeField[:])
	if payloadLen > _MAX_PAYLOAD_LENGTH {
		return nil, errors.Wrapf(errPayloadTooLarge, "%s: payload length %d", pc, payloadLen)
	}

	packet := NewPacket()
	packet.AssureCapacity(payloadLen)
	if _, err := io.ReadFull(pc.conn, packet.bytes[_PREPAYLOAD_SIZE:_PREPAYLOAD_SIZE+payloadLen]); err != nil {
		packet.Release()
		return nil, err
	}
	packet.SetPayloadLen(payloadLen)

	if consts.DEBUG_PACKETS {
		gwlog.Debugf("%s RECV PACKET %p: payload=%v", pc, packet, packet.Payload())
	}
	return packet, nil
}

// Close the connection. Packets already queued are still flushed by the send routine before the network
// connection is closed, which also ends a blocked RecvPacket.
func (pc *PacketConnection) Close() error {
	pc.markClosing()
	return nil
}

// RemoteAddr return the remote address
func (pc *PacketConnection) RemoteAddr() net.Addr {
	return pc.conn.RemoteAddr()
}

// LocalAddr returns the local address
func (pc *PacketConnection) LocalAddr() net.Addr {
	return pc.conn.LocalAddr()
}

func (pc *PacketConnection) String() string {
	return fmt.Sprintf("[%s >>> %s]", pc.LocalAddr(), pc.RemoteAddr())
}
