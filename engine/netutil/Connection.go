package netutil

import (
	"net"

	"github.com/xiaonanln/netconnutil"
)

// Connection is a net.Conn whose writes are buffered until Flush
type Connection interface {
	netconnutil.FlushableConn
}

// NetConn wraps an unbuffered net.Conn as a Connection
type NetConn struct {
	net.Conn
}

// Flush is a no-op since writes go straight to the network
func (n NetConn) Flush() error {
	return nil
}

// Abort closes the network connection at once
func (n NetConn) Abort() error {
	return n.Conn.Close()
}

type bufferedConnection struct {
	netconnutil.FlushableConn
	raw net.Conn
}

// Abort closes the network connection without flushing, which also fails a write blocked on a stalled peer
func (bc bufferedConnection) Abort() error {
	return bc.raw.Close()
}

// NewBufferedConnection wraps a network connection with read & write buffers.
// Temporary errors (e.g. read timeouts) are retried by the underlying connection.
func NewBufferedConnection(conn net.Conn, readBufferSize int, writeBufferSize int) Connection {
	raw := conn
	conn = netconnutil.NewNoTempErrorConn(conn)
	return bufferedConnection{
		FlushableConn: netconnutil.NewBufferedConn(conn, readBufferSize, writeBufferSize),
		raw:           raw,
	}
}

type aborter interface {
	Abort() error
}

// abortConnection closes conn without waiting for buffered writes if it supports that
func abortConnection(conn Connection) error {
	if a, ok := conn.(aborter); ok {
		return a.Abort()
	}
	return conn.Close()
}
