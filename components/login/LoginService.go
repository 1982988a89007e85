// Package login implements the login node: clients connect here first to pick a world.
package login

import (
	"fmt"
	"time"

	"github.com/gorealm/gorealm/engine/common"
	"github.com/gorealm/gorealm/engine/config"
	"github.com/gorealm/gorealm/engine/consts"
	"github.com/gorealm/gorealm/engine/endpoint"
	"github.com/gorealm/gorealm/engine/gwlog"
	"github.com/gorealm/gorealm/engine/gwvar"
	"github.com/gorealm/gorealm/engine/lbc"
	"github.com/gorealm/gorealm/engine/netutil"
	"github.com/gorealm/gorealm/engine/post"
	"github.com/gorealm/gorealm/engine/proto"
	"github.com/gorealm/gorealm/engine/router"
	"github.com/gorealm/gorealm/engine/session"
	"github.com/xiaonanln/go-xnsyncutil/xnsyncutil"
	"github.com/xiaonanln/goTimer"
)

// LoginService serves clients choosing a world
type LoginService struct {
	cfg       *config.LoginConfig
	router    *router.Router
	sessions  *session.Table
	queue     chan endpoint.Event
	worldList proto.WorldList
	loads     *lbc.LoadTable

	terminating xnsyncutil.AtomicBool
	terminated  *xnsyncutil.OneTimeCond
}

func newLoginService(cfg *config.LoginConfig, clock func() time.Time) *LoginService {
	ls := &LoginService{
		cfg:        cfg,
		router:     router.New(common.LoginAddress),
		sessions:   session.NewTable(cfg.MaxConnectionCount, clock),
		queue:      endpoint.NewQueue(),
		loads:      lbc.NewLoadTable(),
		terminated: xnsyncutil.NewOneTimeCond(),
	}
	ls.router.SetResolver(ls.sessions)
	ls.router.HandleFunc(proto.NS_C2S, proto.OP_C2S_CONNECT, ls.handleConnect)
	ls.router.HandleFunc(proto.NS_C2S, proto.OP_C2S_HEARTBEAT, ls.handleHeartbeat)
	ls.router.HandleFunc(proto.NS_C2S, proto.OP_C2S_GET_WORLD_LIST, ls.handleGetWorldList)
	ls.router.HandleFunc(proto.NS_M2L, proto.OP_M2L_WORLD_LIST, ls.handleWorldList)
	return ls
}

func (ls *LoginService) String() string {
	return fmt.Sprintf("LoginService<%s>", common.LoginAddress)
}

func (ls *LoginService) serveRoutine() {
	ticker := time.Tick(consts.SERVICE_TICK_INTERVAL)
	for {
		select {
		case ev := <-ls.queue:
			ls.handleEvent(ev)
		case <-ticker:
			timer.Tick()
		case <-post.Notify():
		}
		post.Tick()
	}
}

func (ls *LoginService) handleEvent(ev endpoint.Event) {
	switch ev.Kind {
	case endpoint.EventAccepted:
		ls.onAccepted(ev.Conn)
		gwvar.OnlineSessions.Set(int64(ls.sessions.Count()))
	case endpoint.EventPacket:
		if ls.router.Uplink() != nil && ls.router.Uplink() == router.Peer(ev.Conn) {
			ls.router.Dispatch(ev.Conn, ev.Packet)
		} else if s := ls.sessions.Lookup(ev.Conn); s != nil {
			ls.router.DispatchClient(s, ev.Packet)
		} else {
			ev.Packet.Release()
		}
	case endpoint.EventClosed:
		ls.sessions.OnClose(ev.Conn)
		gwvar.OnlineSessions.Set(int64(ls.sessions.Count()))
	case endpoint.EventUplinkConnected:
		ls.router.SetUplink(ev.Conn)
		gwvar.IsUplinkReady.Set(true)
		ls.requestWorldList()
	case endpoint.EventUplinkLost:
		gwlog.Warnf("%s: uplink %s lost", ls, ev.Conn)
		ls.router.SetUplink(nil)
		gwvar.IsUplinkReady.Set(false)
	}
}

func (ls *LoginService) onAccepted(conn session.Conn) *session.Session {
	if ls.terminating.Load() {
		conn.Close()
		return nil
	}
	s, err := ls.sessions.OnAccept(conn)
	if err != nil {
		gwlog.Warnf("%s: reject %s: %v", ls, conn, err)
		conn.SendMessage(proto.NS_S2C, proto.OP_S2C_DISCONNECT, proto.Header{}, func(p *netutil.Packet) {
			p.AppendByte(proto.RESULT_CAPACITY_EXCEEDED)
		})
		conn.Close()
		return nil
	}
	ls.sessions.SetDisconnectTimer(s, ls.cfg.DisconnectTimeout)
	return s
}

func (ls *LoginService) requestWorldList() {
	if ls.router.Uplink() == nil {
		return
	}
	ls.router.SendTo(common.MasterAddress, 0, proto.NS_L2M, proto.OP_L2M_GET_WORLD_LIST, nil)
}

func (ls *LoginService) handleConnect(msg *router.Message) {
	s := msg.Session
	ls.sessions.SetDisconnectTimer(s, ls.cfg.DisconnectTimeout)

	var recommended uint8
	if info, ok := ls.loads.LeastLoaded(); ok {
		recommended = info.Index
	}
	s.Send(proto.NS_S2C, proto.OP_S2C_CONNECT_ACK, func(p *netutil.Packet) {
		p.AppendUint32(uint32(s.ID))
		p.AppendByte(recommended)
	})
}

func (ls *LoginService) handleHeartbeat(msg *router.Message) {
	ls.sessions.SetDisconnectTimer(msg.Session, ls.cfg.DisconnectTimeout)
}

func (ls *LoginService) handleGetWorldList(msg *router.Message) {
	msg.Session.SetFlag(session.FlagWatchWorldList)
	ls.sendWorldList(msg.Session)
}

func (ls *LoginService) handleWorldList(msg *router.Message) {
	var list proto.WorldList
	msg.Packet.ReadData(&list)
	ls.worldList = list

	ls.loads = lbc.NewLoadTable()
	for _, info := range list.Worlds {
		ls.loads.Update(info)
	}

	ls.sessions.Range(func(s *session.Session) bool {
		if s.HasFlag(session.FlagWatchWorldList) {
			ls.sendWorldList(s)
		}
		return true
	})
}

func (ls *LoginService) sendWorldList(s *session.Session) {
	if err := s.Send(proto.NS_S2C, proto.OP_S2C_WORLD_LIST, func(p *netutil.Packet) {
		p.AppendData(&ls.worldList)
	}); err != nil {
		gwlog.Debugf("%s: send world list to %s failed: %v", ls, s, err)
	}
}

func (ls *LoginService) terminate() {
	ls.terminating.Store(true)
	ls.sessions.Range(func(s *session.Session) bool {
		s.Conn.Close()
		return true
	})
	ls.terminated.Signal()
}
