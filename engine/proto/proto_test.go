package proto

import (
	"net"
	"testing"
	"time"

	"github.com/bmizerany/assert"
	"github.com/gorealm/gorealm/engine/common"
	"github.com/gorealm/gorealm/engine/consts"
	"github.com/gorealm/gorealm/engine/netutil"
)

var testHandshake = Handshake{ProtocolIdentifier: 0x4352, ProtocolVersion: 3, ProtocolExtension: 1}

func pipe() (*RealmConnection, *RealmConnection) {
	c1, c2 := net.Pipe()
	return NewRealmConnection(netutil.NetConn{Conn: c1}), NewRealmConnection(netutil.NetConn{Conn: c2})
}

func TestHeadLayout(t *testing.T) {
	p := netutil.NewPacket()
	defer p.Release()

	h := Header{
		Source:             common.NodeAddress{Group: 1, Index: 2, Role: common.RoleWorld},
		Target:             common.NodeAddress{Group: 1, Index: 0, Role: common.RoleMaster},
		TargetConnectionID: 42,
	}
	AppendHead(p, NS_W2M, OP_W2M_VERIFY_PASSWORD, h)
	assert.Equal(t, uint32(HEADER_SIZE), p.GetPayloadLen())

	other := common.NodeAddress{Group: 1, Index: 5, Role: common.RoleLogin}
	RewriteTarget(p, other)

	ns, op, got := ReadHead(p)
	assert.Equal(t, NS_W2M, ns)
	assert.Equal(t, OP_W2M_VERIFY_PASSWORD, op)
	assert.Equal(t, h.Source, got.Source)
	assert.Equal(t, other, got.Target)
	assert.Equal(t, common.ConnectionID(42), got.TargetConnectionID)
}

func TestHandshake(t *testing.T) {
	a, b := pipe()
	defer a.Close()
	defer b.Close()

	go a.SendHandshake(testHandshake)
	assert.Equal(t, nil, b.RecvHandshake(testHandshake, time.Second))
}

func TestHandshakeMismatch(t *testing.T) {
	a, b := pipe()
	defer a.Close()
	defer b.Close()

	wrong := testHandshake
	wrong.ProtocolVersion++
	go a.SendHandshake(wrong)
	err := b.RecvHandshake(testHandshake, time.Second)
	assert.T(t, err != nil, "mismatched version should fail")
}

func TestSendMessage(t *testing.T) {
	a, b := pipe()
	defer b.Close()

	req := VerifyPasswordRequest{ConnectionID: 9, AccountID: 1001, Credentials: "secret"}
	assert.Equal(t, nil, a.SendMessage(NS_W2M, OP_W2M_VERIFY_PASSWORD, Header{TargetConnectionID: 9}, req.Write))

	pkt, err := b.Recv()
	assert.Equal(t, nil, err)
	ns, op, h := ReadHead(pkt)
	assert.Equal(t, NS_W2M, ns)
	assert.Equal(t, OP_W2M_VERIFY_PASSWORD, op)
	assert.Equal(t, common.ConnectionID(9), h.TargetConnectionID)
	var got VerifyPasswordRequest
	got.Read(pkt)
	assert.Equal(t, req, got)
	pkt.Release()

	a.Close()
	assert.T(t, a.IsClosed(), "closed")
	assert.T(t, a.SendMessage(NS_W2M, OP_W2M_VERIFY_PASSWORD, Header{}, nil) != nil, "send on closed connection fails")
}

func TestSendToStalledPeer(t *testing.T) {
	a, b := pipe()
	defer b.Close()

	// b never reads
	done := make(chan error, 1)
	go func() {
		var err error
		for i := 0; i < consts.CONNECTION_SEND_QUEUE_SIZE*2 && err == nil; i++ {
			err = a.SendMessage(NS_S2C, OP_S2C_SYNC, Header{}, func(p *netutil.Packet) {
				p.AppendByte(1)
				p.AppendVarStr("record")
			})
		}
		done <- err
	}()

	select {
	case err := <-done:
		assert.T(t, err != nil, "a full send queue should fail the send")
	case <-time.After(time.Second * 2):
		t.Fatalf("sending to a stalled peer blocked")
	}
	assert.T(t, a.SendMessage(NS_S2C, OP_S2C_SYNC, Header{}, nil) != nil, "connection is closed once its queue overflows")
}

func TestNamespaceString(t *testing.T) {
	assert.Equal(t, "L2M", NS_L2M.String())
	assert.Equal(t, "NS(200)", Namespace(200).String())
}
