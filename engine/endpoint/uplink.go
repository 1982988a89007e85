package endpoint

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/gorealm/gorealm/engine/common"
	"github.com/gorealm/gorealm/engine/consts"
	"github.com/gorealm/gorealm/engine/gwlog"
	"github.com/gorealm/gorealm/engine/netutil"
	"github.com/gorealm/gorealm/engine/proto"
	"github.com/pkg/errors"
)

var errRegisterRejected = errors.New("node registration rejected")

// Uplink keeps the connection of a leaf node to the master, reconnecting until the context is done
type Uplink struct {
	Self       common.NodeAddress
	MasterHost string
	MasterPort int
	// AdvertiseHost and AdvertisePort are where clients reach this node, sent along with the registration
	AdvertiseHost   string
	AdvertisePort   int
	Handshake       proto.Handshake
	ReadBufferSize  int
	WriteBufferSize int
	Queue           chan<- Event

	// Dial connects to the master, netutil.ConnectTCP when nil
	Dial func(host string, port int) (net.Conn, error)
}

func (u *Uplink) String() string {
	return fmt.Sprintf("Uplink<%s -> %s:%d>", u.Self, u.MasterHost, u.MasterPort)
}

// Run connects and serves the uplink until ctx is done
func (u *Uplink) Run(ctx context.Context) {
	for {
		rc, err := u.connect()
		if err != nil {
			gwlog.Errorf("%s: connect failed: %v", u, err)
		} else {
			done := make(chan struct{})
			go func() {
				select {
				case <-ctx.Done():
					rc.Close()
				case <-done:
				}
			}()
			u.Queue <- Event{Kind: EventUplinkConnected, Conn: rc}
			recvLoop(rc, u.Queue)
			close(done)
			u.Queue <- Event{Kind: EventUplinkLost, Conn: rc}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(consts.UPLINK_RECONNECT_INTERVAL):
		}
	}
}

func (u *Uplink) connect() (*proto.RealmConnection, error) {
	dial := u.Dial
	if dial == nil {
		dial = netutil.ConnectTCP
	}
	conn, err := dial(u.MasterHost, u.MasterPort)
	if err != nil {
		return nil, err
	}
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		tcpConn.SetNoDelay(true)
	}

	rc := proto.NewRealmConnection(netutil.NewBufferedConnection(conn, u.ReadBufferSize, u.WriteBufferSize))
	if err := u.register(rc); err != nil {
		rc.Close()
		return nil, err
	}
	gwlog.Infof("%s: registered as %s", u, u.Self)
	return rc, nil
}

func (u *Uplink) register(rc *proto.RealmConnection) error {
	if err := rc.SendHandshake(u.Handshake); err != nil {
		return err
	}
	if err := rc.RecvHandshake(u.Handshake, consts.HANDSHAKE_TIMEOUT); err != nil {
		return err
	}
	if err := rc.SendRegisterNode(u.Self, u.AdvertiseHost, u.AdvertisePort); err != nil {
		return err
	}

	// the master answers right away, close the connection if it does not
	t := time.AfterFunc(consts.HANDSHAKE_TIMEOUT, func() {
		rc.Close()
	})
	pkt, err := rc.Recv()
	t.Stop()
	if err != nil {
		return err
	}
	defer pkt.Release()
	ns, op, h := proto.ReadHead(pkt)
	if ns != proto.NS_SYSTEM || op != proto.OP_REGISTER_NODE_ACK || h.Target != u.Self {
		return errors.Wrapf(errRegisterRejected, "got %s:%d %s", ns, op, h)
	}
	return nil
}
