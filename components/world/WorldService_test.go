package world

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
	"github.com/gorealm/gorealm/engine/syncmask"
	rworld "github.com/gorealm/gorealm/engine/world"
)

const testWorldData = `
worlds:
  - {index: 1, name: Bloody Ice, type: open, capacity: 300}
  - {index: 2, name: Desert Scream, type: open, capacity: 300}
  - {index: 3, name: Ruina Station, type: open, capacity: 1}
  - {index: 7, name: Green Despair, type: dungeon, capacity: 7, dungeons: [1, 2, 3]}
  - {index: 9, name: Lakeside Quest, type: quest_dungeon, capacity: 7, dungeons: [10, 11]}
`

type fakeConn struct {
	name   string
	sent   []*netutil.Packet
	closed bool
}

func (c *fakeConn) SendMessage(ns proto.Namespace, op proto.Opcode, h proto.Header, write func(p *netutil.Packet)) error {
	p := netutil.NewPacket()
	proto.AppendHead(p, ns, op, h)
	if write != nil {
		write(p)
	}
	c.sent = append(c.sent, p)
	return nil
}

func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

func (c *fakeConn) String() string {
	return fmt.Sprintf("fakeConn<%s>", c.name)
}

// expect pops the next message sent to the client and checks its opcode
func (c *fakeConn) expect(t *testing.T, op proto.Opcode) *netutil.Packet {
	if len(c.sent) == 0 {
		t.Fatalf("%s: expect %d, got nothing", c, op)
	}
	p := c.sent[0]
	c.sent = c.sent[1:]
	ns, gotOp, _ := proto.ReadHead(p)
	if ns != proto.NS_S2C || gotOp != op {
		t.Fatalf("%s: expect %d, got %s:%d", c, op, ns, gotOp)
	}
	return p
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

type client struct {
	s    *session.Session
	conn *fakeConn
}

func newTestWorld(t *testing.T) (*WorldService, *fakeUplink) {
	table, err := rworld.ParseWorldData([]byte(testWorldData))
	assert.Equal(t, nil, err)
	cfg := &config.WorldConfig{
		MaxConnectionCount: 10,
		MaxPartyCount:      16,
		MaxInstanceCount:   4,
		SyncCoalesceTicks:  5,
		DisconnectTimeout:  time.Minute,
	}
	ws := newWorldService(3, cfg, table, time.Now)
	uplink := &fakeUplink{}
	ws.router.SetUplink(uplink)
	return ws, uplink
}

func (ws *WorldService) testConnect(name string) *client {
	conn := &fakeConn{name: name}
	return &client{s: ws.onAccepted(conn), conn: conn}
}

func (ws *WorldService) testSend(cl *client, op proto.Opcode, write func(p *netutil.Packet)) {
	p := netutil.NewPacket()
	proto.AppendHead(p, proto.NS_C2S, op, proto.Header{})
	if write != nil {
		write(p)
	}
	ws.router.DispatchClient(cl.s, p)
}

func (ws *WorldService) testEnter(t *testing.T, name string, characterIndex uint32) (*client, *rworld.Character) {
	cl := ws.testConnect(name)
	cl.s.SetFlag(session.FlagAuthenticated)
	ws.testSend(cl, proto.OP_C2S_ENTER_WORLD, func(p *netutil.Packet) {
		p.AppendUint32(characterIndex)
		p.AppendByte(1)
		p.AppendVarStr(name)
		p.AppendInt32(10)
	})
	ack := cl.conn.expect(t, proto.OP_S2C_ENTER_WORLD_ACK)
	assert.Equal(t, proto.RESULT_OK, ack.ReadOneByte())
	return cl, characterOf(cl.s)
}

func (ws *WorldService) testDungeon(t *testing.T, cl *client, op proto.Opcode, worldIndex uint8, dungeonIndex int32) uint8 {
	ws.testSend(cl, op, func(p *netutil.Packet) {
		p.AppendByte(worldIndex)
		p.AppendInt32(dungeonIndex)
	})
	return cl.conn.expect(t, proto.OP_S2C_DUNGEON_ACK).ReadOneByte()
}

func (ws *WorldService) testParty(t *testing.T, cl *client, op proto.Opcode, write func(p *netutil.Packet)) (uint8, common.EntityID) {
	ws.testSend(cl, op, write)
	ack := cl.conn.expect(t, proto.OP_S2C_PARTY_ACK)
	return ack.ReadOneByte(), common.EntityIDFromSerial(ack.ReadUint32())
}

func TestVerifyPassword(t *testing.T) {
	ws, uplink := newTestWorld(t)
	cl := ws.testConnect("c")

	ws.testSend(cl, proto.OP_C2S_VERIFY_PASSWORD, func(p *netutil.Packet) {
		p.AppendUint32(7)
		p.AppendVarStr("secret")
	})
	assert.Equal(t, 1, len(uplink.sent))
	ns, op, h := proto.ReadHead(uplink.sent[0])
	assert.Equal(t, proto.NS_W2M, ns)
	assert.Equal(t, proto.OP_W2M_VERIFY_PASSWORD, op)
	assert.Equal(t, common.MasterAddress, h.Target)
	var req proto.VerifyPasswordRequest
	req.Read(uplink.sent[0])
	assert.Equal(t, cl.s.ID, req.ConnectionID)
	assert.Equal(t, uint32(7), req.AccountID)
	assert.Equal(t, "secret", req.Credentials)

	// a second request while the first is pending is rejected
	ws.testSend(cl, proto.OP_C2S_VERIFY_PASSWORD, func(p *netutil.Packet) {
		p.AppendUint32(7)
		p.AppendVarStr("secret")
	})
	assert.Equal(t, proto.RESULT_REJECTED, cl.conn.expect(t, proto.OP_S2C_VERIFY_PASSWORD_ACK).ReadOneByte())

	ack := netutil.NewPacket()
	proto.AppendHead(ack, proto.NS_M2W, proto.OP_M2W_VERIFY_PASSWORD_ACK, proto.Header{
		Source: common.MasterAddress, Target: common.WorldAddress(3), TargetConnectionID: cl.s.ID,
	})
	(&proto.VerifyPasswordResult{ConnectionID: cl.s.ID, Success: true}).Write(ack)
	ws.router.Dispatch(uplink, ack)

	assert.Equal(t, proto.RESULT_OK, cl.conn.expect(t, proto.OP_S2C_VERIFY_PASSWORD_ACK).ReadOneByte())
	assert.T(t, cl.s.HasFlag(session.FlagAuthenticated))
	assert.Equal(t, 0, ws.sessions.Pending().Len())
}

func TestVerifyPasswordWithoutMaster(t *testing.T) {
	ws, _ := newTestWorld(t)
	ws.router.SetUplink(nil)
	cl := ws.testConnect("c")
	ws.testSend(cl, proto.OP_C2S_VERIFY_PASSWORD, func(p *netutil.Packet) {
		p.AppendUint32(7)
		p.AppendVarStr("secret")
	})
	assert.Equal(t, proto.RESULT_REJECTED, cl.conn.expect(t, proto.OP_S2C_VERIFY_PASSWORD_ACK).ReadOneByte())
	assert.Equal(t, 0, ws.sessions.Pending().Len())
}

func TestEnterWorld(t *testing.T) {
	ws, _ := newTestWorld(t)
	enter := func(cl *client, characterIndex uint32, worldID uint8) uint8 {
		ws.testSend(cl, proto.OP_C2S_ENTER_WORLD, func(p *netutil.Packet) {
			p.AppendUint32(characterIndex)
			p.AppendByte(worldID)
			p.AppendVarStr("hero")
			p.AppendInt32(10)
		})
		return cl.conn.expect(t, proto.OP_S2C_ENTER_WORLD_ACK).ReadOneByte()
	}

	cl := ws.testConnect("c")
	assert.Equal(t, proto.RESULT_REJECTED, enter(cl, 100, 1))
	cl.s.SetFlag(session.FlagAuthenticated)
	assert.Equal(t, proto.RESULT_NOT_FOUND, enter(cl, 100, 7))
	assert.Equal(t, proto.RESULT_OK, enter(cl, 100, 1))

	c := characterOf(cl.s)
	assert.Equal(t, uint32(100), c.CharacterIndex)
	assert.Equal(t, common.EntityCharacter, c.ID.EntityType)
	assert.Equal(t, uint8(3), c.ID.WorldIndex)
	assert.Equal(t, c.ID, cl.s.Owner)
	assert.Equal(t, ws.worlds.GetGlobalContext(1), ws.worlds.CurrentWorld(c))

	other := ws.testConnect("other")
	other.s.SetFlag(session.FlagAuthenticated)
	assert.Equal(t, proto.RESULT_REJECTED, enter(other, 100, 1))

	// the Info record is pushed on the next sync tick
	assert.Equal(t, 1, ws.sync.Tick())
	sync := cl.conn.expect(t, proto.OP_S2C_SYNC)
	assert.Equal(t, uint16(syncmask.Info), sync.ReadUint16())
	var rec characterInfoRecord
	assert.Equal(t, nil, netutil.MSG_PACKER.UnpackMsg(sync.ReadVarBytes(), &rec))
	assert.Equal(t, uint32(100), rec.CharacterIndex)
	assert.Equal(t, uint8(1), rec.WorldID)
	assert.Equal(t, 0, ws.sync.Tick())
}

func TestSoloDungeon(t *testing.T) {
	ws, _ := newTestWorld(t)
	cl, c := ws.testEnter(t, "solo", 100)

	assert.Equal(t, proto.RESULT_OK, ws.testDungeon(t, cl, proto.OP_C2S_OPEN_DUNGEON, 7, 2))
	assert.Equal(t, common.EntityParty, c.PartyID.EntityType)
	p := ws.parties.GetParty(c.PartyID)
	assert.Equal(t, 1, p.MemberCount())
	ctx := ws.worlds.GetPartyContext(p.ID)
	assert.Equal(t, ctx, ws.worlds.CurrentWorld(c))
	assert.Equal(t, uint8(7), ctx.Data.WorldIndex)
	assert.Equal(t, 2, ctx.DungeonIndex)
	assert.Equal(t, uint8(7), c.WorldID)

	// one instance at a time
	assert.Equal(t, proto.RESULT_REJECTED, ws.testDungeon(t, cl, proto.OP_C2S_OPEN_DUNGEON, 7, 1))
	// solo dungeon parties can not be left
	result, _ := ws.testParty(t, cl, proto.OP_C2S_LEAVE_PARTY, nil)
	assert.Equal(t, proto.RESULT_REJECTED, result)

	partyID := c.PartyID
	assert.Equal(t, proto.RESULT_OK, ws.testDungeon(t, cl, proto.OP_C2S_CLOSE_DUNGEON, 0, 0))
	assert.T(t, c.PartyID.IsNull())
	assert.Equal(t, (*rworld.Context)(nil), ws.worlds.GetPartyContext(partyID))
	assert.Equal(t, 0, ws.parties.Count())
	assert.Equal(t, uint8(1), c.WorldID)
	assert.Equal(t, ws.worlds.GetGlobalContext(1), ws.worlds.CurrentWorld(c))

	assert.Equal(t, proto.RESULT_NOT_FOUND, ws.testDungeon(t, cl, proto.OP_C2S_CLOSE_DUNGEON, 0, 0))
}

func TestOpenDungeonRejected(t *testing.T) {
	ws, _ := newTestWorld(t)
	cl, c := ws.testEnter(t, "hero", 100)

	assert.Equal(t, proto.RESULT_NOT_FOUND, ws.testDungeon(t, cl, proto.OP_C2S_OPEN_DUNGEON, 1, 1))
	assert.Equal(t, proto.RESULT_NOT_FOUND, ws.testDungeon(t, cl, proto.OP_C2S_OPEN_DUNGEON, 7, 9))
	assert.Equal(t, 0, ws.parties.Count())
	assert.T(t, c.PartyID.IsNull())

	// fill the instance pool with other characters
	for i := 0; i < 4; i++ {
		other, _ := ws.testEnter(t, fmt.Sprintf("other%d", i), uint32(200+i))
		assert.Equal(t, proto.RESULT_OK, ws.testDungeon(t, other, proto.OP_C2S_OPEN_DUNGEON, 7, 1))
	}
	assert.Equal(t, proto.RESULT_CAPACITY_EXCEEDED, ws.testDungeon(t, cl, proto.OP_C2S_OPEN_DUNGEON, 7, 1))
	assert.Equal(t, 4, ws.parties.Count())
	assert.T(t, c.PartyID.IsNull())
}

func TestQuestDungeon(t *testing.T) {
	ws, _ := newTestWorld(t)
	cl, c := ws.testEnter(t, "hero", 100)
	assert.Equal(t, proto.RESULT_OK, ws.testDungeon(t, cl, proto.OP_C2S_OPEN_DUNGEON, 9, 10))
	assert.Equal(t, rworld.QuestDungeon, ws.worlds.CurrentWorld(c).Data.Type)
	assert.Equal(t, proto.RESULT_REJECTED, ws.testDungeon(t, cl, proto.OP_C2S_OPEN_DUNGEON, 7, 1))
	assert.Equal(t, 1, ws.worlds.InstanceCount())
}

func TestPartyDungeon(t *testing.T) {
	ws, _ := newTestWorld(t)
	a, ca := ws.testEnter(t, "alice", 100)
	b, cb := ws.testEnter(t, "bob", 101)

	result, partyID := ws.testParty(t, a, proto.OP_C2S_CREATE_PARTY, nil)
	assert.Equal(t, proto.RESULT_OK, result)
	assert.Equal(t, partyID, ca.PartyID)

	result, _ = ws.testParty(t, a, proto.OP_C2S_INVITE_PARTY, func(p *netutil.Packet) {
		p.AppendUint32(101)
	})
	assert.Equal(t, proto.RESULT_OK, result)
	invited := b.conn.expect(t, proto.OP_S2C_PARTY_INVITED)
	assert.Equal(t, uint32(100), invited.ReadUint32())
	assert.Equal(t, "alice", invited.ReadVarStr())
	assert.Equal(t, partyID.Serial(), invited.ReadUint32())

	result, joined := ws.testParty(t, b, proto.OP_C2S_ACCEPT_PARTY, nil)
	assert.Equal(t, proto.RESULT_OK, result)
	assert.Equal(t, partyID, joined)
	assert.Equal(t, partyID, cb.PartyID)
	assert.Equal(t, 2, ws.parties.GetParty(partyID).MemberCount())

	assert.Equal(t, proto.RESULT_OK, ws.testDungeon(t, a, proto.OP_C2S_OPEN_DUNGEON, 7, 1))
	// another dungeon is not joinable while the party's instance is open
	assert.Equal(t, proto.RESULT_REJECTED, ws.testDungeon(t, b, proto.OP_C2S_OPEN_DUNGEON, 7, 2))
	assert.Equal(t, proto.RESULT_OK, ws.testDungeon(t, b, proto.OP_C2S_OPEN_DUNGEON, 7, 1))
	ctx := ws.worlds.GetPartyContext(partyID)
	assert.Equal(t, 2, ctx.Occupants())
	assert.Equal(t, ctx, ws.worlds.CurrentWorld(ca))
	assert.Equal(t, ctx, ws.worlds.CurrentWorld(cb))

	assert.Equal(t, proto.RESULT_OK, ws.testDungeon(t, a, proto.OP_C2S_CLOSE_DUNGEON, 0, 0))
	assert.Equal(t, ctx, ws.worlds.GetPartyContext(partyID))
	assert.Equal(t, 1, ctx.Occupants())
	assert.Equal(t, partyID, ca.PartyID)

	result, _ = ws.testParty(t, b, proto.OP_C2S_LEAVE_PARTY, nil)
	assert.Equal(t, proto.RESULT_OK, result)
	assert.T(t, cb.PartyID.IsNull())
	assert.Equal(t, uint8(1), cb.WorldID)
	assert.Equal(t, (*rworld.Context)(nil), ws.worlds.GetPartyContext(partyID))
	p := ws.parties.GetParty(partyID)
	assert.Equal(t, 1, p.MemberCount())
	assert.Equal(t, uint32(100), p.LeaderCharacterIndex)
}

func TestPartyRosterCoalesced(t *testing.T) {
	ws, _ := newTestWorld(t)
	a, _ := ws.testEnter(t, "alice", 100)
	b, _ := ws.testEnter(t, "bob", 101)

	_, partyID := ws.testParty(t, a, proto.OP_C2S_CREATE_PARTY, nil)
	ws.testParty(t, a, proto.OP_C2S_INVITE_PARTY, func(p *netutil.Packet) {
		p.AppendUint32(101)
	})
	b.conn.expect(t, proto.OP_S2C_PARTY_INVITED)
	result, _ := ws.testParty(t, b, proto.OP_C2S_ACCEPT_PARTY, nil)
	assert.Equal(t, proto.RESULT_OK, result)

	// the roster rides along with the urgent Info records
	assert.Equal(t, 2, ws.sync.Tick())
	sync := a.conn.expect(t, proto.OP_S2C_SYNC)
	assert.Equal(t, uint16(syncmask.Info|syncmask.PartyInfo), sync.ReadUint16())
	sync.ReadVarBytes()
	var roster partyInfoRecord
	assert.Equal(t, nil, netutil.MSG_PACKER.UnpackMsg(sync.ReadVarBytes(), &roster))
	assert.Equal(t, []uint32{100, 101}, roster.Members)
	b.conn.expect(t, proto.OP_S2C_SYNC)

	result, _ = ws.testParty(t, b, proto.OP_C2S_LEAVE_PARTY, nil)
	assert.Equal(t, proto.RESULT_OK, result)

	// bob's own Info goes out at once, alice's roster waits for the coalescing window
	assert.Equal(t, 1, ws.sync.Tick())
	sync = b.conn.expect(t, proto.OP_S2C_SYNC)
	assert.Equal(t, uint16(syncmask.Info), sync.ReadUint16())
	for i := 2; i < 5; i++ {
		assert.Equal(t, 0, ws.sync.Tick())
	}
	assert.Equal(t, 0, len(a.conn.sent))

	assert.Equal(t, 1, ws.sync.Tick())
	sync = a.conn.expect(t, proto.OP_S2C_SYNC)
	assert.Equal(t, uint16(syncmask.PartyInfo), sync.ReadUint16())
	roster = partyInfoRecord{}
	assert.Equal(t, nil, netutil.MSG_PACKER.UnpackMsg(sync.ReadVarBytes(), &roster))
	assert.Equal(t, partyID.Serial(), roster.PartyID)
	assert.Equal(t, uint32(100), roster.Leader)
	assert.Equal(t, []uint32{100}, roster.Members)
	assert.Equal(t, 0, ws.sync.Tick())
}

func TestInviteCreatesParty(t *testing.T) {
	ws, _ := newTestWorld(t)
	a, ca := ws.testEnter(t, "alice", 100)
	b, cb := ws.testEnter(t, "bob", 101)

	result, partyID := ws.testParty(t, a, proto.OP_C2S_INVITE_PARTY, func(p *netutil.Packet) {
		p.AppendUint32(101)
	})
	assert.Equal(t, proto.RESULT_OK, result)
	assert.T(t, partyID.IsNull())
	b.conn.expect(t, proto.OP_S2C_PARTY_INVITED)

	result, partyID = ws.testParty(t, b, proto.OP_C2S_ACCEPT_PARTY, nil)
	assert.Equal(t, proto.RESULT_OK, result)
	assert.Equal(t, partyID, cb.PartyID)
	assert.Equal(t, partyID, ca.PartyID)
	p := ws.parties.GetParty(partyID)
	assert.Equal(t, uint32(100), p.LeaderCharacterIndex)
	assert.Equal(t, 2, p.MemberCount())

	// the inviter is told about the new party too
	ack := a.conn.expect(t, proto.OP_S2C_PARTY_ACK)
	assert.Equal(t, proto.RESULT_OK, ack.ReadOneByte())
	assert.Equal(t, partyID.Serial(), ack.ReadUint32())

	// no invitation left
	result, _ = ws.testParty(t, b, proto.OP_C2S_ACCEPT_PARTY, nil)
	assert.Equal(t, proto.RESULT_NOT_FOUND, result)
}

func TestInviteUnknownCharacter(t *testing.T) {
	ws, _ := newTestWorld(t)
	a, _ := ws.testEnter(t, "alice", 100)
	result, _ := ws.testParty(t, a, proto.OP_C2S_INVITE_PARTY, func(p *netutil.Packet) {
		p.AppendUint32(555)
	})
	assert.Equal(t, proto.RESULT_NOT_FOUND, result)
}

func TestDisconnect(t *testing.T) {
	ws, _ := newTestWorld(t)
	a, ca := ws.testEnter(t, "alice", 100)
	b, cb := ws.testEnter(t, "bob", 101)

	assert.Equal(t, proto.RESULT_OK, ws.testDungeon(t, a, proto.OP_C2S_OPEN_DUNGEON, 7, 3))
	result, _ := ws.testParty(t, b, proto.OP_C2S_CREATE_PARTY, nil)
	assert.Equal(t, proto.RESULT_OK, result)
	assert.Equal(t, 2, ws.parties.Count())
	assert.Equal(t, 2, ws.sync.Len())

	ws.sessions.OnClose(a.conn)
	assert.Equal(t, 1, ws.parties.Count())
	assert.Equal(t, 0, ws.worlds.InstanceCount())
	assert.T(t, ca.PartyID.IsNull())
	assert.Equal(t, 1, ws.sync.Len())

	ws.sessions.OnClose(b.conn)
	assert.Equal(t, 0, ws.parties.Count())
	assert.T(t, cb.PartyID.IsNull())
	assert.Equal(t, 0, len(ws.characters))
	assert.Equal(t, 0, ws.sync.Len())
	assert.Equal(t, 0, ws.worlds.GetGlobalContext(1).Occupants())
}

func TestEnterFullWorld(t *testing.T) {
	ws, _ := newTestWorld(t)
	enter := func(name string, characterIndex uint32) *client {
		cl := ws.testConnect(name)
		cl.s.SetFlag(session.FlagAuthenticated)
		ws.testSend(cl, proto.OP_C2S_ENTER_WORLD, func(p *netutil.Packet) {
			p.AppendUint32(characterIndex)
			p.AppendByte(3)
			p.AppendVarStr(name)
			p.AppendInt32(10)
		})
		return cl
	}

	a := enter("alice", 100)
	assert.Equal(t, proto.RESULT_OK, a.conn.expect(t, proto.OP_S2C_ENTER_WORLD_ACK).ReadOneByte())
	b := enter("bob", 101)
	assert.Equal(t, proto.RESULT_CAPACITY_EXCEEDED, b.conn.expect(t, proto.OP_S2C_ENTER_WORLD_ACK).ReadOneByte())
	assert.T(t, characterOf(b.s) == nil)
	assert.Equal(t, 1, len(ws.characters))
	assert.Equal(t, 1, len(ws.usedLocalIndex))

	// the place is free again once alice is gone
	ws.sessions.OnClose(a.conn)
	c := enter("carol", 102)
	assert.Equal(t, proto.RESULT_OK, c.conn.expect(t, proto.OP_S2C_ENTER_WORLD_ACK).ReadOneByte())
	assert.Equal(t, 1, ws.worlds.GetGlobalContext(3).Occupants())
}

func TestReportLoad(t *testing.T) {
	ws, uplink := newTestWorld(t)
	ws.testEnter(t, "alice", 100)
	ws.reportLoad(12.5)

	assert.Equal(t, 1, len(uplink.sent))
	ns, op, h := proto.ReadHead(uplink.sent[0])
	assert.Equal(t, proto.NS_W2M, ns)
	assert.Equal(t, proto.OP_W2M_WORLD_LOAD_REPORT, op)
	assert.Equal(t, common.WorldAddress(3), h.Source)
	var info proto.WorldInfo
	uplink.sent[0].ReadData(&info)
	assert.Equal(t, 1, info.PlayerCount)
	assert.Equal(t, 10, info.MaxPlayerCount)
	assert.Equal(t, 12.5, info.CPUPercent)
}
