// Package master implements the master node: the routing hub every login and world node registers on.
package master

import (
	"fmt"
	"io"
	"time"

	"github.com/gorealm/gorealm/engine/async"
	"github.com/gorealm/gorealm/engine/auth"
	"github.com/gorealm/gorealm/engine/common"
	"github.com/gorealm/gorealm/engine/consts"
	"github.com/gorealm/gorealm/engine/endpoint"
	"github.com/gorealm/gorealm/engine/gwlog"
	"github.com/gorealm/gorealm/engine/gwvar"
	"github.com/gorealm/gorealm/engine/lbc"
	"github.com/gorealm/gorealm/engine/netutil"
	"github.com/gorealm/gorealm/engine/opmon"
	"github.com/gorealm/gorealm/engine/post"
	"github.com/gorealm/gorealm/engine/proto"
	"github.com/gorealm/gorealm/engine/router"
	"github.com/xiaonanln/go-xnsyncutil/xnsyncutil"
	"github.com/xiaonanln/goTimer"
)

// Self is the address of the master
var Self = common.MasterAddress

type nodeInfo struct {
	addr common.NodeAddress
	host string
	port int
}

// MasterService routes messages between nodes and serves the world list and credential checks
type MasterService struct {
	router   *router.Router
	queue    chan endpoint.Event
	nodes    map[router.Peer]*nodeInfo
	loads    *lbc.LoadTable
	verifier auth.Verifier

	terminating xnsyncutil.AtomicBool
	terminated  *xnsyncutil.OneTimeCond
}

func newMasterService(verifier auth.Verifier) *MasterService {
	ms := &MasterService{
		router:     router.New(Self),
		queue:      endpoint.NewQueue(),
		nodes:      map[router.Peer]*nodeInfo{},
		loads:      lbc.NewLoadTable(),
		verifier:   verifier,
		terminated: xnsyncutil.NewOneTimeCond(),
	}
	ms.router.HandleFunc(proto.NS_SYSTEM, proto.OP_REGISTER_NODE, ms.handleRegisterNode)
	ms.router.HandleFunc(proto.NS_L2M, proto.OP_L2M_GET_WORLD_LIST, ms.handleGetWorldList)
	ms.router.HandleFunc(proto.NS_W2M, proto.OP_W2M_WORLD_LOAD_REPORT, ms.handleWorldLoadReport)
	ms.router.HandleFunc(proto.NS_W2M, proto.OP_W2M_VERIFY_PASSWORD, ms.handleVerifyPassword)
	return ms
}

func (ms *MasterService) String() string {
	return fmt.Sprintf("MasterService<%s>", Self)
}

func (ms *MasterService) serveRoutine() {
	ticker := time.Tick(consts.SERVICE_TICK_INTERVAL)
	for {
		select {
		case ev := <-ms.queue:
			ms.handleEvent(ev)
		case <-ticker:
			timer.Tick()
		case <-post.Notify():
		}
		post.Tick()
	}
}

func (ms *MasterService) handleEvent(ev endpoint.Event) {
	switch ev.Kind {
	case endpoint.EventAccepted:
		if ms.terminating.Load() {
			ev.Conn.Close()
			return
		}
		ms.nodes[ev.Conn] = nil
	case endpoint.EventPacket:
		ms.onPacket(ev.Conn, ev.Packet)
	case endpoint.EventClosed:
		ms.onClosed(ev.Conn)
	default:
		gwlog.Errorf("%s: unexpected event %s", ms, ev.Kind)
	}
}

func (ms *MasterService) onPacket(from router.Peer, pkt *netutil.Packet) {
	if ms.nodes[from] == nil {
		// nothing but the registration is accepted from unregistered connections
		if ns, op := proto.PeekHead(pkt); ns != proto.NS_SYSTEM || op != proto.OP_REGISTER_NODE {
			gwlog.Warnf("%s: %s:%d from unregistered %s, closing", ms, ns, op, from)
			pkt.Release()
			from.Close()
			return
		}
	}
	ms.router.Dispatch(from, pkt)
}

func (ms *MasterService) onClosed(from router.Peer) {
	node := ms.nodes[from]
	delete(ms.nodes, from)
	gwvar.RegisteredNodes.Set(int64(len(ms.nodes)))
	if node == nil {
		return
	}
	if ms.router.RemovePeer(node.addr, from) && node.addr.Role == common.RoleWorld {
		ms.loads.Remove(node.addr.Index)
	}
	gwlog.Infof("%s: %s at %s disconnected", ms, from, node.addr)
}

func (ms *MasterService) handleRegisterNode(msg *router.Message) {
	addr := msg.Header.Source
	host := msg.Packet.ReadVarStr()
	port := int(msg.Packet.ReadUint32())

	if ms.nodes[msg.From] != nil {
		gwlog.Warnf("%s: %s registers twice", ms, msg.From)
		return
	}
	if addr.IsNull() || addr.IsBroadcast() || addr.IsAny() || addr.Group != Self.Group ||
		(addr.Role != common.RoleLogin && addr.Role != common.RoleWorld) {
		gwlog.Errorf("%s: %s can not register as %s, closing", ms, msg.From, addr)
		msg.From.Close()
		return
	}

	ms.nodes[msg.From] = &nodeInfo{addr: addr, host: host, port: port}
	gwvar.RegisteredNodes.Set(int64(len(ms.nodes)))
	ms.router.AddPeer(addr, msg.From)
	ms.router.SendTo(addr, 0, proto.NS_SYSTEM, proto.OP_REGISTER_NODE_ACK, nil)
	gwlog.Infof("%s: %s registered as %s (%s:%d)", ms, msg.From, addr, host, port)
}

func (ms *MasterService) handleGetWorldList(msg *router.Message) {
	list := ms.loads.WorldList()
	ms.router.SendTo(msg.Header.Source, 0, proto.NS_M2L, proto.OP_M2L_WORLD_LIST, func(p *netutil.Packet) {
		p.AppendData(&list)
	})
}

func (ms *MasterService) handleWorldLoadReport(msg *router.Message) {
	node := ms.nodes[msg.From]
	if node == nil || node.addr.Role != common.RoleWorld {
		gwlog.Warnf("%s: load report from %s dropped: not a world", ms, msg.From)
		return
	}

	var info proto.WorldInfo
	msg.Packet.ReadData(&info)
	info.Index = node.addr.Index
	info.Host = node.host
	info.Port = node.port
	ms.loads.Update(info)
}

func (ms *MasterService) handleVerifyPassword(msg *router.Message) {
	var req proto.VerifyPasswordRequest
	req.Read(msg.Packet)
	source := msg.Header.Source

	async.AppendAsyncJob(consts.ASYNC_JOB_GROUP_AUTH, func() (interface{}, error) {
		return ms.verifier.VerifyPassword(req.AccountID, req.Credentials)
	}, func(res interface{}, err error) {
		result := proto.VerifyPasswordResult{ConnectionID: req.ConnectionID}
		if err != nil {
			gwlog.Errorf("%s: verify password of account %d failed: %v", ms, req.AccountID, err)
		} else {
			result.Success = res.(bool)
		}
		ms.router.SendTo(source, req.ConnectionID, proto.NS_M2W, proto.OP_M2W_VERIFY_PASSWORD_ACK, result.Write)
	})
}

func (ms *MasterService) terminate() {
	ms.terminating.Store(true)
	for peer := range ms.nodes {
		peer.Close()
	}
	async.Shutdown()
	if closer, ok := ms.verifier.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			gwlog.Errorf("%s: close verifier failed: %v", ms, err)
		}
	}
	if consts.OPMON_DUMP_INTERVAL > 0 {
		gwlog.Infof("%s", opmon.Dump())
	}
	ms.terminated.Signal()
}
