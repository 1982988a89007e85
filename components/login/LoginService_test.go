package login

import (
	"fmt"
	"testing"
	"time"

	"github.com/bmizerany/assert"
	"github.com/gorealm/gorealm/engine/common"
	"github.com/gorealm/gorealm/engine/config"
	"github.com/gorealm/gorealm/engine/netutil"
	"github.com/gorealm/gorealm/engine/proto"
	"github.com/gorealm/gorealm/engine/session"
)

type sentMessage struct {
	ns     proto.Namespace
	op     proto.Opcode
	header proto.Header
	packet *netutil.Packet
}

type fakeConn struct {
	name   string
	sent   []sentMessage
	closed bool
}

func (c *fakeConn) SendMessage(ns proto.Namespace, op proto.Opcode, h proto.Header, write func(p *netutil.Packet)) error {
	p := netutil.NewPacket()
	if write != nil {
		write(p)
	}
	c.sent = append(c.sent, sentMessage{ns, op, h, p})
	return nil
}

func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

func (c *fakeConn) String() string {
	return fmt.Sprintf("fakeConn<%s>", c.name)
}

func (c *fakeConn) pop(t *testing.T) sentMessage {
	if len(c.sent) == 0 {
		t.Fatalf("%s received nothing", c)
	}
	m := c.sent[0]
	c.sent = c.sent[1:]
	return m
}

type fakeUplink struct {
	sent []*netutil.Packet
}

func (u *fakeUplink) SendPacket(pkt *netutil.Packet) error {
	cp := netutil.NewPacket()
	cp.AppendBytes(pkt.Payload())
	u.sent = append(u.sent, cp)
	return nil
}

func (u *fakeUplink) Close() error   { return nil }
func (u *fakeUplink) String() string { return "fakeUplink" }

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func newTestLogin(maxConns int) (*LoginService, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	cfg := &config.LoginConfig{
		MaxConnectionCount:         maxConns,
		WorldListBroadcastInterval: time.Second,
		DisconnectTimeout:          time.Minute,
	}
	return newLoginService(cfg, clock.Now), clock
}

func clientSend(ls *LoginService, s *session.Session, op proto.Opcode) {
	p := netutil.NewPacket()
	proto.AppendHead(p, proto.NS_C2S, op, proto.Header{})
	ls.router.DispatchClient(s, p)
}

func sendWorldList(ls *LoginService, uplink *fakeUplink, worlds ...proto.WorldInfo) {
	p := netutil.NewPacket()
	proto.AppendHead(p, proto.NS_M2L, proto.OP_M2L_WORLD_LIST, proto.Header{Source: common.MasterAddress, Target: common.LoginAddress})
	p.AppendData(&proto.WorldList{Worlds: worlds})
	ls.router.Dispatch(uplink, p)
}

func TestAcceptCapacity(t *testing.T) {
	ls, clock := newTestLogin(1)
	c1 := &fakeConn{name: "c1"}
	s1 := ls.onAccepted(c1)
	assert.NotEqual(t, (*session.Session)(nil), s1)
	assert.Equal(t, clock.now.Add(time.Minute), s1.DisconnectDeadline)

	c2 := &fakeConn{name: "c2"}
	assert.Equal(t, (*session.Session)(nil), ls.onAccepted(c2))
	assert.T(t, c2.closed)
	m := c2.pop(t)
	assert.Equal(t, proto.OP_S2C_DISCONNECT, m.op)
	assert.Equal(t, proto.RESULT_CAPACITY_EXCEEDED, m.packet.ReadOneByte())
}

func TestHeartbeatKeepsSession(t *testing.T) {
	ls, clock := newTestLogin(10)
	c := &fakeConn{name: "c"}
	s := ls.onAccepted(c)

	clock.now = clock.now.Add(time.Second * 50)
	clientSend(ls, s, proto.OP_C2S_HEARTBEAT)
	clock.now = clock.now.Add(time.Second * 50)
	assert.Equal(t, 0, ls.sessions.Tick())
	assert.T(t, !c.closed)

	clock.now = clock.now.Add(time.Second * 10)
	assert.Equal(t, 1, ls.sessions.Tick())
	assert.T(t, c.closed)
}

func TestWorldList(t *testing.T) {
	ls, _ := newTestLogin(10)
	uplink := &fakeUplink{}
	ls.router.SetUplink(uplink)

	ls.requestWorldList()
	assert.Equal(t, 1, len(uplink.sent))
	ns, op, h := proto.ReadHead(uplink.sent[0])
	assert.Equal(t, proto.NS_L2M, ns)
	assert.Equal(t, proto.OP_L2M_GET_WORLD_LIST, op)
	assert.Equal(t, common.MasterAddress, h.Target)

	watcher := &fakeConn{name: "watcher"}
	ws := ls.onAccepted(watcher)
	other := &fakeConn{name: "other"}
	ls.onAccepted(other)

	clientSend(ls, ws, proto.OP_C2S_GET_WORLD_LIST)
	m := watcher.pop(t)
	assert.Equal(t, proto.OP_S2C_WORLD_LIST, m.op)
	assert.Equal(t, ws.ID, m.header.TargetConnectionID)

	sendWorldList(ls, uplink,
		proto.WorldInfo{Index: 1, Host: "10.0.0.1", Port: 15001, PlayerCount: 90, MaxPlayerCount: 100},
		proto.WorldInfo{Index: 2, Host: "10.0.0.2", Port: 15002, PlayerCount: 10, MaxPlayerCount: 100},
	)
	m = watcher.pop(t)
	assert.Equal(t, proto.OP_S2C_WORLD_LIST, m.op)
	var list proto.WorldList
	m.packet.ReadData(&list)
	assert.Equal(t, 2, len(list.Worlds))
	assert.Equal(t, "10.0.0.2", list.Worlds[1].Host)
	assert.Equal(t, 0, len(other.sent))

	clientSend(ls, ws, proto.OP_C2S_CONNECT)
	m = watcher.pop(t)
	assert.Equal(t, proto.OP_S2C_CONNECT_ACK, m.op)
	assert.Equal(t, uint32(ws.ID), m.packet.ReadUint32())
	assert.Equal(t, uint8(2), m.packet.ReadOneByte())
}

func TestRequestWorldListWithoutUplink(t *testing.T) {
	ls, _ := newTestLogin(10)
	// dropped silently while the master is not connected
	ls.requestWorldList()
}
