package proto

import (
	"fmt"

	"github.com/gorealm/gorealm/engine/common"
)

// Namespace groups a closed set of opcodes exchanged between two kinds of peers
type Namespace uint8

const (
	// NS_INVALID is the invalid namespace
	NS_INVALID Namespace = iota
	// NS_SYSTEM is the namespace of connection level messages (handshake, node registration)
	NS_SYSTEM
	// NS_L2M is the namespace of messages from login to master
	NS_L2M
	// NS_M2L is the namespace of messages from master to login
	NS_M2L
	// NS_W2M is the namespace of messages from world to master
	NS_W2M
	// NS_M2W is the namespace of messages from master to world
	NS_M2W
	// NS_C2S is the namespace of messages from game clients
	NS_C2S
	// NS_S2C is the namespace of messages to game clients
	NS_S2C
)

var namespaceNames = [...]string{
	NS_INVALID: "INVALID",
	NS_SYSTEM:  "SYSTEM",
	NS_L2M:     "L2M",
	NS_M2L:     "M2L",
	NS_W2M:     "W2M",
	NS_M2W:     "M2W",
	NS_C2S:     "C2S",
	NS_S2C:     "S2C",
}

func (ns Namespace) String() string {
	if int(ns) < len(namespaceNames) {
		return namespaceNames[ns]
	}
	return fmt.Sprintf("NS(%d)", uint8(ns))
}

// Opcode identifies a message within its namespace
type Opcode uint16

// NS_SYSTEM opcodes
const (
	// OP_HANDSHAKE carries the protocol identifier, version and extension; it is the first packet of every connection
	OP_HANDSHAKE Opcode = 1 + iota
	// OP_REGISTER_NODE is sent by a node to the master to claim its address
	OP_REGISTER_NODE
	// OP_REGISTER_NODE_ACK is sent by the master when the address is accepted
	OP_REGISTER_NODE_ACK
)

// NS_L2M opcodes
const (
	// OP_L2M_GET_WORLD_LIST asks the master for the current world list
	OP_L2M_GET_WORLD_LIST Opcode = 1 + iota
)

// NS_M2L opcodes
const (
	// OP_M2L_WORLD_LIST answers OP_L2M_GET_WORLD_LIST
	OP_M2L_WORLD_LIST Opcode = 1 + iota
)

// NS_W2M opcodes
const (
	// OP_W2M_VERIFY_PASSWORD asks the master to check account credentials for a client connection
	OP_W2M_VERIFY_PASSWORD Opcode = 1 + iota
	// OP_W2M_WORLD_LOAD_REPORT reports the load of a world node
	OP_W2M_WORLD_LOAD_REPORT
)

// NS_M2W opcodes
const (
	// OP_M2W_VERIFY_PASSWORD_ACK answers OP_W2M_VERIFY_PASSWORD, targeted at the client connection
	OP_M2W_VERIFY_PASSWORD_ACK Opcode = 1 + iota
)

// NS_C2S opcodes
const (
	OP_C2S_CONNECT Opcode = 1 + iota
	OP_C2S_HEARTBEAT
	OP_C2S_GET_WORLD_LIST
	OP_C2S_ENTER_WORLD
	OP_C2S_OPEN_DUNGEON
	OP_C2S_CLOSE_DUNGEON
	OP_C2S_CREATE_PARTY
	OP_C2S_INVITE_PARTY
	OP_C2S_ACCEPT_PARTY
	OP_C2S_LEAVE_PARTY
	OP_C2S_VERIFY_PASSWORD
)

// NS_S2C opcodes
const (
	OP_S2C_CONNECT_ACK Opcode = 1 + iota
	OP_S2C_WORLD_LIST
	OP_S2C_ENTER_WORLD_ACK
	OP_S2C_DUNGEON_ACK
	OP_S2C_PARTY_ACK
	OP_S2C_PARTY_INVITED
	OP_S2C_VERIFY_PASSWORD_ACK
	OP_S2C_SYNC
	OP_S2C_DISCONNECT
)

// Result codes carried by S2C acks
const (
	RESULT_OK uint8 = iota
	RESULT_NOT_FOUND
	RESULT_CAPACITY_EXCEEDED
	RESULT_REJECTED
)

// Header precedes the payload of every message
type Header struct {
	Source             common.NodeAddress
	Target             common.NodeAddress
	TargetConnectionID common.ConnectionID
}

func (h Header) String() string {
	return fmt.Sprintf("Header<%s -> %s #%d>", h.Source, h.Target, h.TargetConnectionID)
}

// HEADER_SIZE is the number of bytes of namespace + opcode + header at the start of each payload
const HEADER_SIZE = 1 + 2 + 3 + 3 + 4

// Handshake carries the framing compatibility check values
type Handshake struct {
	ProtocolIdentifier uint32
	ProtocolVersion    uint32
	ProtocolExtension  uint32
}

// Matches returns if the two handshakes are compatible
func (h Handshake) Matches(o Handshake) bool {
	return h.ProtocolIdentifier == o.ProtocolIdentifier && h.ProtocolVersion == o.ProtocolVersion && h.ProtocolExtension == o.ProtocolExtension
}
