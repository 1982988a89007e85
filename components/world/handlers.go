package world

import (
	"github.com/gorealm/gorealm/engine/common"
	"github.com/gorealm/gorealm/engine/consts"
	"github.com/gorealm/gorealm/engine/gwlog"
	"github.com/gorealm/gorealm/engine/netutil"
	"github.com/gorealm/gorealm/engine/party"
	"github.com/gorealm/gorealm/engine/pending"
	"github.com/gorealm/gorealm/engine/proto"
	"github.com/gorealm/gorealm/engine/router"
	"github.com/gorealm/gorealm/engine/session"
	"github.com/gorealm/gorealm/engine/syncmask"
	rworld "github.com/gorealm/gorealm/engine/world"
	"github.com/pkg/errors"
)

const pendingVerifyPassword uint16 = 1

// characterInfoRecord is the Info sub-record pushed to clients
type characterInfoRecord struct {
	CharacterIndex uint32 `msgpack:"c"`
	Name           string `msgpack:"n"`
	Level          int32  `msgpack:"l"`
	WorldID        uint8  `msgpack:"w"`
	DungeonIndex   int    `msgpack:"d"`
	PartyID        uint32 `msgpack:"p"`
}

// partyInfoRecord is the PartyInfo sub-record: the roster of the party as its members see it
type partyInfoRecord struct {
	PartyID uint32   `msgpack:"p"`
	Leader  uint32   `msgpack:"l"`
	Members []uint32 `msgpack:"m"`
}

func resultOf(err error) uint8 {
	switch {
	case err == nil:
		return proto.RESULT_OK
	case common.IsNotFound(err):
		return proto.RESULT_NOT_FOUND
	case common.IsCapacityExceeded(err):
		return proto.RESULT_CAPACITY_EXCEEDED
	default:
		return proto.RESULT_REJECTED
	}
}

func characterOf(s *session.Session) *rworld.Character {
	c, _ := s.Data.(*rworld.Character)
	return c
}

// requireCharacter wraps a handler of client messages that need (or must not have) a character in world
func (ws *WorldService) requireCharacter(inWorld bool, f func(s *session.Session, c *rworld.Character, pkt *netutil.Packet)) func(msg *router.Message) {
	return func(msg *router.Message) {
		s := msg.Session
		c := characterOf(s)
		if inWorld != (c != nil) {
			gwlog.Warnf("%s: %s sent %s:%d in wrong state", ws, s, msg.Namespace, msg.Opcode)
			return
		}
		f(s, c, msg.Packet)
	}
}

func (ws *WorldService) handleConnect(msg *router.Message) {
	s := msg.Session
	ws.sessions.SetDisconnectTimer(s, ws.cfg.DisconnectTimeout)
	s.Send(proto.NS_S2C, proto.OP_S2C_CONNECT_ACK, func(p *netutil.Packet) {
		p.AppendUint32(uint32(s.ID))
		p.AppendByte(ws.index)
	})
}

func (ws *WorldService) handleHeartbeat(msg *router.Message) {
	ws.sessions.SetDisconnectTimer(msg.Session, ws.cfg.DisconnectTimeout)
}

func (ws *WorldService) sendVerifyPasswordAck(s *session.Session, result uint8) {
	s.Send(proto.NS_S2C, proto.OP_S2C_VERIFY_PASSWORD_ACK, func(p *netutil.Packet) {
		p.AppendByte(result)
	})
}

func (ws *WorldService) handleVerifyPassword(msg *router.Message) {
	s := msg.Session
	req := proto.VerifyPasswordRequest{ConnectionID: s.ID}
	req.AccountID = msg.Packet.ReadUint32()
	req.Credentials = msg.Packet.ReadVarStr()

	key := pending.MakeKey(pendingVerifyPassword, uint32(s.ID))
	if s.HasFlag(session.FlagAuthenticated) || ws.sessions.Pending().Has(key) {
		ws.sendVerifyPasswordAck(s, proto.RESULT_REJECTED)
		return
	}
	if !ws.router.SendTo(common.MasterAddress, 0, proto.NS_W2M, proto.OP_W2M_VERIFY_PASSWORD, req.Write) {
		ws.sendVerifyPasswordAck(s, proto.RESULT_REJECTED)
		return
	}

	id := s.ID
	ws.sessions.Pending().Begin(key, id, consts.VERIFY_PASSWORD_TIMEOUT, func(result interface{}, err error) {
		if errors.Cause(err) == pending.ErrCanceled {
			return
		}
		s := ws.sessions.LookupID(id)
		if s == nil {
			return
		}
		if err != nil || !result.(bool) {
			ws.sendVerifyPasswordAck(s, proto.RESULT_REJECTED)
			return
		}
		s.SetFlag(session.FlagAuthenticated)
		ws.sendVerifyPasswordAck(s, proto.RESULT_OK)
	})
}

func (ws *WorldService) handleVerifyPasswordAck(msg *router.Message) {
	if msg.Session == nil {
		return
	}
	var res proto.VerifyPasswordResult
	res.Read(msg.Packet)
	ws.sessions.Pending().Complete(pending.MakeKey(pendingVerifyPassword, uint32(msg.Session.ID)), res.Success)
}

func (ws *WorldService) allocLocalIndex() (uint16, error) {
	if len(ws.usedLocalIndex) >= 0xFFFF {
		return 0, errors.Wrap(common.ErrCapacityExceeded, "character index pool full")
	}
	for {
		ws.lastLocalIndex++
		if ws.lastLocalIndex != 0 && !ws.usedLocalIndex[ws.lastLocalIndex] {
			ws.usedLocalIndex[ws.lastLocalIndex] = true
			return ws.lastLocalIndex, nil
		}
	}
}

func (ws *WorldService) sendEnterWorldAck(s *session.Session, result uint8, c *rworld.Character) {
	s.Send(proto.NS_S2C, proto.OP_S2C_ENTER_WORLD_ACK, func(p *netutil.Packet) {
		p.AppendByte(result)
		if c != nil {
			p.AppendUint32(c.ID.Serial())
			p.AppendByte(c.WorldID)
		}
	})
}

func (ws *WorldService) handleEnterWorld(s *session.Session, _ *rworld.Character, pkt *netutil.Packet) {
	characterIndex := pkt.ReadUint32()
	worldID := pkt.ReadOneByte()
	name := pkt.ReadVarStr()
	level := pkt.ReadInt32()

	if !s.HasFlag(session.FlagAuthenticated) || ws.characters[characterIndex] != nil ||
		name == "" || len(name) > consts.CHARACTER_MAX_NAME_LENGTH {
		ws.sendEnterWorldAck(s, proto.RESULT_REJECTED, nil)
		return
	}
	if ws.worlds.GetGlobalContext(worldID) == nil {
		ws.sendEnterWorldAck(s, proto.RESULT_NOT_FOUND, nil)
		return
	}
	localIndex, err := ws.allocLocalIndex()
	if err != nil {
		ws.sendEnterWorldAck(s, resultOf(err), nil)
		return
	}

	c := &rworld.Character{
		ID:             common.EntityID{LocalIndex: localIndex, WorldIndex: ws.index, EntityType: common.EntityCharacter},
		CharacterIndex: characterIndex,
		NodeIndex:      ws.index,
		Name:           name,
		Level:          level,
		WorldID:        worldID,
		DungeonIndex:   -1,
		ReturnWorldID:  worldID,
		Records:        map[syncmask.Mask][]byte{},
	}
	if err := ws.worlds.EnterWorld(c); err != nil {
		delete(ws.usedLocalIndex, localIndex)
		gwlog.Debugf("%s: %s can not enter world %d: %v", ws, c, worldID, err)
		ws.sendEnterWorldAck(s, resultOf(err), nil)
		return
	}
	s.Data = c
	s.Owner = c.ID
	s.SetFlag(session.FlagInWorld)
	ws.characters[characterIndex] = s
	ws.sync.Track(c)
	ws.markInfo(c)
	gwlog.Infof("%s: %s entered world %d", ws, c, worldID)
	ws.sendEnterWorldAck(s, proto.RESULT_OK, c)
}

// markInfo rebuilds the Info record of the character and schedules it for the next flush
func (ws *WorldService) markInfo(c *rworld.Character) {
	rec := characterInfoRecord{
		CharacterIndex: c.CharacterIndex,
		Name:           c.Name,
		Level:          c.Level,
		WorldID:        c.WorldID,
		DungeonIndex:   c.DungeonIndex,
		PartyID:        c.PartyID.Serial(),
	}
	data, err := netutil.MSG_PACKER.PackMsg(&rec, nil)
	if err != nil {
		gwlog.Panicf("%s: pack info of %s failed: %v", ws, c, err)
	}
	c.Records[syncmask.Info] = data
	c.Sync.Mark(syncmask.Info, syncmask.High)
}

// markPartyInfo rebuilds the roster of the party for its members in this world. Roster changes are not
// urgent, so they are coalesced over several sync ticks.
func (ws *WorldService) markPartyInfo(p *party.Party) {
	rec := partyInfoRecord{
		PartyID: p.ID.Serial(),
		Leader:  p.LeaderCharacterIndex,
	}
	for _, slot := range p.Members {
		rec.Members = append(rec.Members, slot.Info.CharacterIndex)
	}
	data, err := netutil.MSG_PACKER.PackMsg(&rec, nil)
	if err != nil {
		gwlog.Panicf("%s: pack roster of %s failed: %v", ws, p, err)
	}
	for _, idx := range rec.Members {
		s := ws.characters[idx]
		if s == nil {
			continue
		}
		c := characterOf(s)
		c.Records[syncmask.PartyInfo] = data
		c.Sync.Mark(syncmask.PartyInfo, syncmask.Low)
	}
}

// leaveWorld drops all state of a character whose client is gone
func (ws *WorldService) leaveWorld(c *rworld.Character) {
	ws.sync.Untrack(c)
	ws.parties.DeclineInvitation(c.CharacterIndex)
	if !c.PartyID.IsNull() {
		ws.leaveParty(c)
	}
	ws.worlds.LeaveWorld(c)
	delete(ws.characters, c.CharacterIndex)
	delete(ws.usedLocalIndex, c.ID.LocalIndex)
	gwlog.Infof("%s: %s left", ws, c)
}

// leaveParty takes the character out of its party, and out of the party's instance if it is inside
func (ws *WorldService) leaveParty(c *rworld.Character) {
	p := ws.parties.GetParty(c.PartyID)
	if p == nil {
		c.PartyID = common.NullEntityID
		return
	}
	if cur := ws.worlds.CurrentWorld(c); cur != nil && !cur.IsGlobal() {
		ws.worlds.CloseInstance(c)
		c.WorldID = c.ReturnWorldID
		c.DungeonIndex = -1
	}
	if p.Type == party.SoloDungeon {
		// a solo dungeon party without its instance
		if ws.parties.GetParty(p.ID) == p {
			ws.parties.DestroyParty(p)
		}
	} else {
		ws.parties.RemoveMember(p, c.CharacterIndex)
		if ws.parties.GetParty(p.ID) == p {
			ws.markPartyInfo(p)
		}
	}
	c.PartyID = common.NullEntityID
}

func (ws *WorldService) sendDungeonAck(s *session.Session, result uint8, c *rworld.Character) {
	s.Send(proto.NS_S2C, proto.OP_S2C_DUNGEON_ACK, func(p *netutil.Packet) {
		p.AppendByte(result)
		p.AppendByte(c.WorldID)
		p.AppendInt32(int32(c.DungeonIndex))
		p.AppendUint32(c.PartyID.Serial())
	})
}

func (ws *WorldService) handleOpenDungeon(s *session.Session, c *rworld.Character, pkt *netutil.Packet) {
	worldIndex := pkt.ReadOneByte()
	dungeonIndex := int(pkt.ReadInt32())

	if wd := ws.worlds.WorldTable().Get(worldIndex); wd == nil || !wd.Type.IsDungeon() {
		ws.sendDungeonAck(s, proto.RESULT_NOT_FOUND, c)
		return
	}
	// one instance at a time: the current one must be closed first
	if cur := ws.worlds.CurrentWorld(c); cur == nil || !cur.IsGlobal() {
		ws.sendDungeonAck(s, proto.RESULT_REJECTED, c)
		return
	}
	if !c.PartyID.IsNull() {
		ctx := ws.worlds.GetPartyContext(c.PartyID)
		p := ws.parties.GetParty(c.PartyID)
		if ctx != nil && (p.Type != party.Normal || ctx.Data.WorldIndex != worldIndex || ctx.DungeonIndex != dungeonIndex) {
			ws.sendDungeonAck(s, proto.RESULT_REJECTED, c)
			return
		}
	}

	ctx, err := ws.worlds.OpenInstance(c, worldIndex, dungeonIndex)
	if err != nil {
		gwlog.Debugf("%s: %s open dungeon %d/%d failed: %v", ws, c, worldIndex, dungeonIndex, err)
		ws.sendDungeonAck(s, resultOf(err), c)
		return
	}
	c.ReturnWorldID = c.WorldID
	c.WorldID = worldIndex
	c.DungeonIndex = dungeonIndex
	ws.markInfo(c)
	if consts.DEBUG_INSTANCES {
		gwlog.Debugf("%s: %s entered %s", ws, c, ctx)
	}
	ws.sendDungeonAck(s, proto.RESULT_OK, c)
}

func (ws *WorldService) handleCloseDungeon(s *session.Session, c *rworld.Character, _ *netutil.Packet) {
	cur := ws.worlds.CurrentWorld(c)
	if cur == nil || cur.IsGlobal() || !ws.worlds.CloseInstance(c) {
		ws.sendDungeonAck(s, proto.RESULT_NOT_FOUND, c)
		return
	}
	c.WorldID = c.ReturnWorldID
	c.DungeonIndex = -1
	ws.markInfo(c)
	ws.sendDungeonAck(s, proto.RESULT_OK, c)
}

func (ws *WorldService) sendPartyAck(s *session.Session, result uint8, partyID common.EntityID) {
	s.Send(proto.NS_S2C, proto.OP_S2C_PARTY_ACK, func(p *netutil.Packet) {
		p.AppendByte(result)
		p.AppendUint32(partyID.Serial())
	})
}

func (ws *WorldService) handleCreateParty(s *session.Session, c *rworld.Character, _ *netutil.Packet) {
	if !c.PartyID.IsNull() {
		ws.sendPartyAck(s, proto.RESULT_REJECTED, c.PartyID)
		return
	}
	p, err := ws.parties.CreateParty(c.MemberInfo(), ws.index, party.Normal)
	if err != nil {
		ws.sendPartyAck(s, resultOf(err), common.NullEntityID)
		return
	}
	c.PartyID = p.ID
	ws.markInfo(c)
	ws.markPartyInfo(p)
	ws.sendPartyAck(s, proto.RESULT_OK, p.ID)
}

func (ws *WorldService) handleInviteParty(s *session.Session, c *rworld.Character, pkt *netutil.Packet) {
	inviteeIndex := pkt.ReadUint32()
	is := ws.characters[inviteeIndex]
	if is == nil {
		ws.sendPartyAck(s, proto.RESULT_NOT_FOUND, c.PartyID)
		return
	}
	invitee := characterOf(is)
	if invitee == c || !invitee.PartyID.IsNull() {
		ws.sendPartyAck(s, proto.RESULT_REJECTED, c.PartyID)
		return
	}

	inviter := party.Slot{NodeIndex: ws.index, Info: c.MemberInfo()}
	if !c.PartyID.IsNull() {
		p := ws.parties.GetParty(c.PartyID)
		if p.Type != party.Normal || p.LeaderCharacterIndex != c.CharacterIndex {
			ws.sendPartyAck(s, proto.RESULT_REJECTED, c.PartyID)
			return
		}
		inviter = *p.GetMember(c.CharacterIndex)
	}
	member := party.Slot{NodeIndex: ws.index, Info: invitee.MemberInfo()}
	if _, err := ws.parties.Invite(c.PartyID, inviter, member, ws.clock()); err != nil {
		ws.sendPartyAck(s, resultOf(err), c.PartyID)
		return
	}

	is.Send(proto.NS_S2C, proto.OP_S2C_PARTY_INVITED, func(p *netutil.Packet) {
		p.AppendUint32(c.CharacterIndex)
		p.AppendVarStr(c.Name)
		p.AppendUint32(c.PartyID.Serial())
	})
	ws.sendPartyAck(s, proto.RESULT_OK, c.PartyID)
}

func (ws *WorldService) handleAcceptParty(s *session.Session, c *rworld.Character, _ *netutil.Packet) {
	inv := ws.parties.GetInvitation(c.CharacterIndex)
	if inv == nil || !c.PartyID.IsNull() {
		ws.parties.DeclineInvitation(c.CharacterIndex)
		ws.sendPartyAck(s, proto.RESULT_NOT_FOUND, c.PartyID)
		return
	}

	var inviter *rworld.Character
	if inv.PartyID.IsNull() {
		// the party is created now, led by the inviter who must still be around without a party
		if is := ws.characters[inv.Inviter.Info.CharacterIndex]; is != nil {
			inviter = characterOf(is)
		}
		if inviter == nil || !inviter.PartyID.IsNull() {
			ws.parties.DeclineInvitation(c.CharacterIndex)
			ws.sendPartyAck(s, proto.RESULT_NOT_FOUND, common.NullEntityID)
			return
		}
	}

	p, err := ws.parties.AcceptInvitation(c.CharacterIndex, ws.clock())
	if err != nil {
		ws.sendPartyAck(s, resultOf(err), common.NullEntityID)
		return
	}
	c.PartyID = p.ID
	ws.markInfo(c)
	ws.sendPartyAck(s, proto.RESULT_OK, p.ID)

	if inviter != nil {
		inviter.PartyID = p.ID
		ws.markInfo(inviter)
		ws.sendPartyAck(ws.characters[inviter.CharacterIndex], proto.RESULT_OK, p.ID)
	}
	ws.markPartyInfo(p)
}

func (ws *WorldService) handleLeaveParty(s *session.Session, c *rworld.Character, _ *netutil.Packet) {
	if c.PartyID.IsNull() || party.IsSoloDungeon(c.PartyID) {
		ws.sendPartyAck(s, proto.RESULT_REJECTED, c.PartyID)
		return
	}
	ws.leaveParty(c)
	ws.markInfo(c)
	ws.sendPartyAck(s, proto.RESULT_OK, common.NullEntityID)
}
