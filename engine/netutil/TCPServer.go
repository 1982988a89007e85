package netutil

import (
	"net"
	"time"

	"github.com/gorealm/gorealm/engine/gwlog"
	"github.com/xtaci/kcp-go"
)

const (
	_RESTART_SERVER_INTERVAL = 3 * time.Second
)

// TCPServerDelegate is the implementations that a TCP server should provide
type TCPServerDelegate interface {
	ServeTCPConnection(net.Conn)
}

// ServeTCPForever serves on specified address as TCP server, for ever ...
func ServeTCPForever(listenAddr string, delegate TCPServerDelegate) {
	for {
		err := serveTCPForeverOnce(listenAddr, delegate)
		gwlog.Errorf("server@%s failed with error: %v, will restart after %s", listenAddr, err, _RESTART_SERVER_INTERVAL)
		time.Sleep(_RESTART_SERVER_INTERVAL)
	}
}

func serveTCPForeverOnce(listenAddr string, delegate TCPServerDelegate) (err error) {
	defer func() {
		if r := recover(); r != nil {
			gwlog.TraceError("serveTCPImpl: paniced with error %s", r)
		}
	}()

	return ServeTCP(listenAddr, delegate)
}

// ServeTCP serves on specified address as TCP server
func ServeTCP(listenAddr string, delegate TCPServerDelegate) error {
	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return err
	}
	gwlog.Infof("Listening on TCP: %s ...", listenAddr)
	return serveListener(ln, delegate)
}

func serveListener(ln net.Listener, delegate TCPServerDelegate) error {
	defer ln.Close()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if IsTemporaryError(err) {
				continue
			} else {
				return err
			}
		}

		gwlog.Infof("Connection from: %s", conn.RemoteAddr())
		go delegate.ServeTCPConnection(conn)
	}
}

// ServeKCPForever serves on specified address as KCP server, for ever ...
//
// KCP sessions are configured in turbo stream mode and handed to the delegate like TCP connections.
func ServeKCPForever(listenAddr string, readBufferSize int, writeBufferSize int, delegate TCPServerDelegate) {
	for {
		err := serveKCP(listenAddr, readBufferSize, writeBufferSize, delegate)
		gwlog.Errorf("kcp server@%s failed with error: %v, will restart after %s", listenAddr, err, _RESTART_SERVER_INTERVAL)
		time.Sleep(_RESTART_SERVER_INTERVAL)
	}
}

func serveKCP(listenAddr string, readBufferSize int, writeBufferSize int, delegate TCPServerDelegate) error {
	kcpListener, err := kcp.ListenWithOptions(listenAddr, nil, 10, 3)
	if err != nil {
		return err
	}
	defer kcpListener.Close()

	gwlog.Infof("Listening on KCP: %s ...", listenAddr)
	for {
		conn, err := kcpListener.AcceptKCP()
		if err != nil {
			return err
		}

		gwlog.Infof("KCP connection from %s", conn.RemoteAddr())
		conn.SetReadBuffer(readBufferSize)
		conn.SetWriteBuffer(writeBufferSize)
		// turn on turbo mode according to https://github.com/skywind3000/kcp/blob/master/README.en.md#protocol-configuration
		conn.SetStreamMode(true)
		conn.SetWriteDelay(true)
		conn.SetNoDelay(1, 10, 2, 1)
		go delegate.ServeTCPConnection(conn)
	}
}
