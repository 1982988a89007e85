// Package world implements the world node: characters, parties and dungeon instances.
package world

import (
	"fmt"
	"time"

	"github.com/gorealm/gorealm/engine/common"
	"github.com/gorealm/gorealm/engine/config"
	"github.com/gorealm/gorealm/engine/consts"
	"github.com/gorealm/gorealm/engine/endpoint"
	"github.com/gorealm/gorealm/engine/gwlog"
	"github.com/gorealm/gorealm/engine/gwvar"
	"github.com/gorealm/gorealm/engine/netutil"
	"github.com/gorealm/gorealm/engine/party"
	"github.com/gorealm/gorealm/engine/post"
	"github.com/gorealm/gorealm/engine/proto"
	"github.com/gorealm/gorealm/engine/router"
	"github.com/gorealm/gorealm/engine/session"
	"github.com/gorealm/gorealm/engine/syncmask"
	rworld "github.com/gorealm/gorealm/engine/world"
	"github.com/pkg/errors"
	"github.com/xiaonanln/go-xnsyncutil/xnsyncutil"
	"github.com/xiaonanln/goTimer"
)

// WorldService hosts the characters of one world node
type WorldService struct {
	index    uint8
	cfg      *config.WorldConfig
	clock    func() time.Time
	router   *router.Router
	sessions *session.Table
	queue    chan endpoint.Event

	parties *party.Manager
	worlds  *rworld.Manager
	sync    *syncmask.Dispatcher

	characters     map[uint32]*session.Session
	usedLocalIndex map[uint16]bool
	lastLocalIndex uint16
	lastCPUPercent float64

	terminating xnsyncutil.AtomicBool
	terminated  *xnsyncutil.OneTimeCond
}

func newWorldService(index uint8, cfg *config.WorldConfig, table *rworld.WorldTable, clock func() time.Time) *WorldService {
	ws := &WorldService{
		index:          index,
		cfg:            cfg,
		clock:          clock,
		router:         router.New(common.WorldAddress(index)),
		sessions:       session.NewTable(cfg.MaxConnectionCount, clock),
		queue:          endpoint.NewQueue(),
		parties:        party.NewManager(index, cfg.MaxPartyCount),
		characters:     map[uint32]*session.Session{},
		usedLocalIndex: map[uint16]bool{},
		terminated:     xnsyncutil.NewOneTimeCond(),
	}
	ws.worlds = rworld.NewManager(table, ws.parties, cfg.MaxInstanceCount)
	ws.sync = syncmask.NewDispatcher(cfg.SyncCoalesceTicks, syncmask.FlusherFunc(ws.flushSync))
	ws.sessions.AddCloseHook(ws.onSessionClosed)
	ws.router.SetResolver(ws.sessions)

	ws.router.HandleFunc(proto.NS_C2S, proto.OP_C2S_CONNECT, ws.handleConnect)
	ws.router.HandleFunc(proto.NS_C2S, proto.OP_C2S_HEARTBEAT, ws.handleHeartbeat)
	ws.router.HandleFunc(proto.NS_C2S, proto.OP_C2S_VERIFY_PASSWORD, ws.handleVerifyPassword)
	ws.router.HandleFunc(proto.NS_C2S, proto.OP_C2S_ENTER_WORLD, ws.requireCharacter(false, ws.handleEnterWorld))
	ws.router.HandleFunc(proto.NS_C2S, proto.OP_C2S_OPEN_DUNGEON, ws.requireCharacter(true, ws.handleOpenDungeon))
	ws.router.HandleFunc(proto.NS_C2S, proto.OP_C2S_CLOSE_DUNGEON, ws.requireCharacter(true, ws.handleCloseDungeon))
	ws.router.HandleFunc(proto.NS_C2S, proto.OP_C2S_CREATE_PARTY, ws.requireCharacter(true, ws.handleCreateParty))
	ws.router.HandleFunc(proto.NS_C2S, proto.OP_C2S_INVITE_PARTY, ws.requireCharacter(true, ws.handleInviteParty))
	ws.router.HandleFunc(proto.NS_C2S, proto.OP_C2S_ACCEPT_PARTY, ws.requireCharacter(true, ws.handleAcceptParty))
	ws.router.HandleFunc(proto.NS_C2S, proto.OP_C2S_LEAVE_PARTY, ws.requireCharacter(true, ws.handleLeaveParty))
	ws.router.HandleFunc(proto.NS_M2W, proto.OP_M2W_VERIFY_PASSWORD_ACK, ws.handleVerifyPasswordAck)
	return ws
}

func (ws *WorldService) String() string {
	return fmt.Sprintf("WorldService<%d>", ws.index)
}

func (ws *WorldService) serveRoutine() {
	ticker := time.Tick(consts.SERVICE_TICK_INTERVAL)
	for {
		select {
		case ev := <-ws.queue:
			ws.handleEvent(ev)
		case <-ticker:
			timer.Tick()
		case <-post.Notify():
		}
		post.Tick()
	}
}

func (ws *WorldService) handleEvent(ev endpoint.Event) {
	switch ev.Kind {
	case endpoint.EventAccepted:
		ws.onAccepted(ev.Conn)
		gwvar.OnlineSessions.Set(int64(ws.sessions.Count()))
	case endpoint.EventPacket:
		if ws.router.Uplink() != nil && ws.router.Uplink() == router.Peer(ev.Conn) {
			ws.router.Dispatch(ev.Conn, ev.Packet)
		} else if s := ws.sessions.Lookup(ev.Conn); s != nil {
			ws.router.DispatchClient(s, ev.Packet)
		} else {
			ev.Packet.Release()
		}
	case endpoint.EventClosed:
		ws.sessions.OnClose(ev.Conn)
		gwvar.OnlineSessions.Set(int64(ws.sessions.Count()))
	case endpoint.EventUplinkConnected:
		ws.router.SetUplink(ev.Conn)
		gwvar.IsUplinkReady.Set(true)
		ws.reportLoad(ws.lastCPUPercent)
	case endpoint.EventUplinkLost:
		gwlog.Warnf("%s: uplink %s lost", ws, ev.Conn)
		ws.router.SetUplink(nil)
		gwvar.IsUplinkReady.Set(false)
	}
}

func (ws *WorldService) onAccepted(conn session.Conn) *session.Session {
	if ws.terminating.Load() {
		conn.Close()
		return nil
	}
	s, err := ws.sessions.OnAccept(conn)
	if err != nil {
		gwlog.Warnf("%s: reject %s: %v", ws, conn, err)
		conn.SendMessage(proto.NS_S2C, proto.OP_S2C_DISCONNECT, proto.Header{}, func(p *netutil.Packet) {
			p.AppendByte(proto.RESULT_CAPACITY_EXCEEDED)
		})
		conn.Close()
		return nil
	}
	ws.sessions.SetDisconnectTimer(s, ws.cfg.DisconnectTimeout)
	return s
}

// tick runs the periodic work of the main routine
func (ws *WorldService) tick() {
	ws.sessions.Tick()
	for _, inv := range ws.parties.ExpireInvitations(ws.clock()) {
		gwlog.Debugf("%s: invitation of %d into %s expired", ws, inv.Member.Info.CharacterIndex, inv.PartyID)
	}
}

// reportLoad sends the load of this node to the master
func (ws *WorldService) reportLoad(cpuPercent float64) {
	ws.lastCPUPercent = cpuPercent
	info := proto.WorldInfo{
		Index:          ws.index,
		PlayerCount:    len(ws.characters),
		MaxPlayerCount: ws.cfg.MaxConnectionCount,
		CPUPercent:     cpuPercent,
	}
	ws.router.SendTo(common.MasterAddress, 0, proto.NS_W2M, proto.OP_W2M_WORLD_LOAD_REPORT, func(p *netutil.Packet) {
		p.AppendData(&info)
	})
}

// flushSync sends the dirty sub-records of a character to its client
func (ws *WorldService) flushSync(target syncmask.Target, mask syncmask.Mask) error {
	c := target.(*rworld.Character)
	s := ws.characters[c.CharacterIndex]
	if s == nil {
		return errors.Wrapf(common.ErrNotFound, "session of %s", c)
	}
	return s.Send(proto.NS_S2C, proto.OP_S2C_SYNC, func(p *netutil.Packet) {
		p.AppendUint16(uint16(mask))
		mask.Each(func(bit syncmask.Mask) {
			p.AppendVarBytes(c.Records[bit])
		})
	})
}

func (ws *WorldService) onSessionClosed(s *session.Session) {
	c, ok := s.Data.(*rworld.Character)
	if !ok {
		return
	}
	ws.leaveWorld(c)
	s.Data = nil
}

func (ws *WorldService) terminate() {
	ws.terminating.Store(true)
	ws.sessions.Range(func(s *session.Session) bool {
		s.Conn.Close()
		return true
	})
	ws.terminated.Signal()
}
