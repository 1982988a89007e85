package endpoint

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/bmizerany/assert"
	"github.com/gorealm/gorealm/engine/common"
	"github.com/gorealm/gorealm/engine/consts"
	"github.com/gorealm/gorealm/engine/netutil"
	"github.com/gorealm/gorealm/engine/proto"
)

var testHandshake = proto.Handshake{ProtocolIdentifier: 18258, ProtocolVersion: 1}

func newTestConn(conn net.Conn) *proto.RealmConnection {
	return proto.NewRealmConnection(netutil.NewBufferedConnection(conn, consts.BUFFERED_READ_BUFFSIZE, consts.BUFFERED_WRITE_BUFFSIZE))
}

func nextEvent(t *testing.T, queue <-chan Event) Event {
	select {
	case ev := <-queue:
		return ev
	case <-time.After(time.Second * 5):
		t.Fatalf("no event")
	}
	return Event{}
}

func TestListenerServe(t *testing.T) {
	queue := NewQueue()
	l := &Listener{
		Name:            "test",
		Handshake:       testHandshake,
		ReadBufferSize:  consts.BUFFERED_READ_BUFFSIZE,
		WriteBufferSize: consts.BUFFERED_WRITE_BUFFSIZE,
		Queue:           queue,
	}
	serverConn, clientConn := net.Pipe()
	go l.ServeTCPConnection(serverConn)

	client := newTestConn(clientConn)
	assert.Equal(t, nil, client.SendHandshake(testHandshake))
	assert.Equal(t, nil, client.RecvHandshake(testHandshake, time.Second))

	ev := nextEvent(t, queue)
	assert.Equal(t, EventAccepted, ev.Kind)
	server := ev.Conn

	err := client.SendMessage(proto.NS_C2S, proto.OP_C2S_HEARTBEAT, proto.Header{}, func(p *netutil.Packet) {
		p.AppendUint32(77)
	})
	assert.Equal(t, nil, err)
	ev = nextEvent(t, queue)
	assert.Equal(t, EventPacket, ev.Kind)
	assert.Equal(t, server, ev.Conn)
	ns, op := proto.PeekHead(ev.Packet)
	assert.Equal(t, proto.NS_C2S, ns)
	assert.Equal(t, proto.OP_C2S_HEARTBEAT, op)
	proto.ReadHead(ev.Packet)
	assert.Equal(t, uint32(77), ev.Packet.ReadUint32())
	ev.Packet.Release()

	client.Close()
	ev = nextEvent(t, queue)
	assert.Equal(t, EventClosed, ev.Kind)
	assert.Equal(t, server, ev.Conn)
}

func TestListenerHandshakeMismatch(t *testing.T) {
	queue := NewQueue()
	l := &Listener{Name: "test", Handshake: testHandshake, ReadBufferSize: 1024, WriteBufferSize: 1024, Queue: queue}
	serverConn, clientConn := net.Pipe()
	done := make(chan struct{})
	go func() {
		l.ServeTCPConnection(serverConn)
		close(done)
	}()

	client := newTestConn(clientConn)
	client.SendHandshake(proto.Handshake{ProtocolIdentifier: 1, ProtocolVersion: 1})
	_, err := client.Recv()
	assert.NotEqual(t, nil, err)

	<-done
	assert.Equal(t, 0, len(queue))
}

func TestUplinkRegister(t *testing.T) {
	self := common.NodeAddress{Group: 1, Index: 3, Role: common.RoleWorld}
	master := common.NodeAddress{Group: 1, Role: common.RoleMaster}
	masterConn, nodeConn := net.Pipe()

	queue := NewQueue()
	u := &Uplink{
		Self:            self,
		MasterHost:      "master",
		MasterPort:      13000,
		AdvertiseHost:   "10.0.0.3",
		AdvertisePort:   15003,
		Handshake:       testHandshake,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		Queue:           queue,
		Dial: func(host string, port int) (net.Conn, error) {
			return nodeConn, nil
		},
	}

	registered := make(chan common.NodeAddress, 1)
	go func() {
		rc := newTestConn(masterConn)
		if err := rc.RecvHandshake(testHandshake, time.Second); err != nil {
			return
		}
		rc.SendHandshake(testHandshake)
		pkt, err := rc.Recv()
		if err != nil {
			return
		}
		ns, op, h := proto.ReadHead(pkt)
		if ns == proto.NS_SYSTEM && op == proto.OP_REGISTER_NODE && pkt.ReadVarStr() == "10.0.0.3" && pkt.ReadUint32() == 15003 {
			registered <- h.Source
			rc.SendRegisterNodeAck(master, h.Source)
		}
		pkt.Release()
	}()

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		u.Run(ctx)
		close(stopped)
	}()

	assert.Equal(t, self, <-registered)
	ev := nextEvent(t, queue)
	assert.Equal(t, EventUplinkConnected, ev.Kind)

	cancel()
	ev = nextEvent(t, queue)
	assert.Equal(t, EventUplinkLost, ev.Kind)
	<-stopped
}
