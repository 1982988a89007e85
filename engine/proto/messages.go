package proto

import (
	"github.com/gorealm/gorealm/engine/common"
	"github.com/gorealm/gorealm/engine/netutil"
)

// AppendHead writes namespace, opcode and header to the packet
func AppendHead(p *netutil.Packet, ns Namespace, op Opcode, h Header) {
	p.AppendByte(byte(ns))
	p.AppendUint16(uint16(op))
	p.AppendNodeAddress(h.Source)
	p.AppendNodeAddress(h.Target)
	p.AppendUint32(uint32(h.TargetConnectionID))
}

// ReadHead reads namespace, opcode and header from the packet
func ReadHead(p *netutil.Packet) (ns Namespace, op Opcode, h Header) {
	ns = Namespace(p.ReadOneByte())
	op = Opcode(p.ReadUint16())
	h.Source = p.ReadNodeAddress()
	h.Target = p.ReadNodeAddress()
	h.TargetConnectionID = common.ConnectionID(p.ReadUint32())
	return
}

// RewriteTarget patches the target of an encoded message in place, used by the master when fanning out
func RewriteTarget(p *netutil.Packet, target common.NodeAddress) {
	payload := p.Payload()
	payload[6] = target.Group
	payload[7] = target.Index
	payload[8] = byte(target.Role)
}

// VerifyPasswordRequest asks the credential store to check a password for a client connection
type VerifyPasswordRequest struct {
	ConnectionID common.ConnectionID
	AccountID    uint32
	Credentials  string
}

// Write appends the request to the packet
func (r *VerifyPasswordRequest) Write(p *netutil.Packet) {
	p.AppendUint32(uint32(r.ConnectionID))
	p.AppendUint32(r.AccountID)
	p.AppendVarStr(r.Credentials)
}

// Read reads the request from the packet
func (r *VerifyPasswordRequest) Read(p *netutil.Packet) {
	r.ConnectionID = common.ConnectionID(p.ReadUint32())
	r.AccountID = p.ReadUint32()
	r.Credentials = p.ReadVarStr()
}

// VerifyPasswordResult answers a VerifyPasswordRequest
type VerifyPasswordResult struct {
	ConnectionID common.ConnectionID
	Success      bool
}

// Write appends the result to the packet
func (r *VerifyPasswordResult) Write(p *netutil.Packet) {
	p.AppendUint32(uint32(r.ConnectionID))
	p.AppendBool(r.Success)
}

// Read reads the result from the packet
func (r *VerifyPasswordResult) Read(p *netutil.Packet) {
	r.ConnectionID = common.ConnectionID(p.ReadUint32())
	r.Success = p.ReadBool()
}

// WorldInfo describes one world node in the world list
type WorldInfo struct {
	Index          uint8   `msgpack:"i"`
	Host           string  `msgpack:"h"`
	Port           int     `msgpack:"p"`
	PlayerCount    int     `msgpack:"n"`
	MaxPlayerCount int     `msgpack:"m"`
	CPUPercent     float64 `msgpack:"cp"`
}

// WorldList is the payload of OP_M2L_WORLD_LIST and OP_S2C_WORLD_LIST
type WorldList struct {
	Worlds []WorldInfo `msgpack:"w"`
}

// PeekHead returns namespace and opcode of an encoded message without moving the read position
func PeekHead(p *netutil.Packet) (Namespace, Opcode) {
	payload := p.Payload()
	return Namespace(payload[0]), Opcode(netutil.NETWORK_ENDIAN.Uint16(payload[1:3]))
}
