package netutil

import (
	"fmt"
	"io"
	"net"
	"os"

	"github.com/gorealm/gorealm/engine/common"
	"github.com/gorealm/gorealm/engine/consts"
	"github.com/gorealm/gorealm/engine/gwlog"
	"github.com/pkg/errors"
)

// IsConnectionError check if the error is a connection error (close)
func IsConnectionError(_err interface{}) bool {
	err, ok := _err.(error)
	if !ok {
		return false
	}

	err = errors.Cause(err)
	if err == io.EOF || err == io.ErrUnexpectedEOF || err == io.ErrClosedPipe {
		return true
	}

	neterr, ok := err.(net.Error)
	if !ok {
		return false
	}
	if neterr.Timeout() {
		return false
	}

	return true
}

// IsTemporaryError checks if the error is a timeout error which can be retried
func IsTemporaryError(err error) bool {
	neterr, ok := errors.Cause(err).(net.Error)
	return ok && neterr.Timeout()
}

// ConnectTCP connects to host:port in TCP
func ConnectTCP(host string, port int) (net.Conn, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	conn, err := net.Dial("tcp", addr)
	return conn, err
}

// ServeForever runs the function forever
//
// ServeForever will restart the function call if function panics or returns
func ServeForever(f func()) {
	for {
		runServe(f)
		if consts.DEBUG_MODE { // we just quit in debug mode
			os.Exit(2)
		}
	}
}

func runServe(f func()) {
	defer func() {
		err := recover()
		if err != nil {
			if common.IsInvalidState(err) {
				gwlog.Fatalf("ServeForever: func %p broke a contract: %v", f, err)
			}
			gwlog.TraceError("ServeForever: func %p quited with error %v", f, err)
		}
	}()

	f()
	gwlog.Debugf("ServeForever: func %p returns", f)
}
