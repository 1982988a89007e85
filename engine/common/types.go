package common

import (
	"fmt"
)

// NodeRole is the role of a server process in the routing fabric
type NodeRole uint8

const (
	// RoleNone is the role of unaddressed nodes
	RoleNone NodeRole = iota
	// RoleLogin is the role of login servers
	RoleLogin
	// RoleMaster is the role of the master server which routes messages between nodes
	RoleMaster
	// RoleWorld is the role of world simulation servers
	RoleWorld
	// RoleAuth is the role of credential services
	RoleAuth
)

var nodeRoleNames = [...]string{
	RoleNone:   "none",
	RoleLogin:  "login",
	RoleMaster: "master",
	RoleWorld:  "world",
	RoleAuth:   "auth",
}

func (r NodeRole) String() string {
	if int(r) < len(nodeRoleNames) {
		return nodeRoleNames[r]
	}
	return fmt.Sprintf("role(%d)", uint8(r))
}

const (
	// BroadcastIndex in a target address asks the master to deliver to every node of the target role
	BroadcastIndex = 0xFF
	// AnyIndex in a target address asks the master to deliver to one node of the target role
	AnyIndex = 0xFE
)

// NodeAddress identifies one running server process
type NodeAddress struct {
	Group uint8
	Index uint8
	Role  NodeRole
}

// NullNodeAddress is the unaddressed sentinel
var NullNodeAddress = NodeAddress{}

// RealmGroup is the group of every node of a realm
const RealmGroup = 1

var (
	// MasterAddress is the address of the master
	MasterAddress = NodeAddress{Group: RealmGroup, Index: 0, Role: RoleMaster}
	// LoginAddress is the address of the login server
	LoginAddress = NodeAddress{Group: RealmGroup, Index: 0, Role: RoleLogin}
)

// WorldAddress returns the address of world node index
func WorldAddress(index uint8) NodeAddress {
	return NodeAddress{Group: RealmGroup, Index: index, Role: RoleWorld}
}

// IsNull returns if the address is the unaddressed sentinel
func (a NodeAddress) IsNull() bool {
	return a.Group == 0
}

// IsBroadcast returns if the address targets every node of its role
func (a NodeAddress) IsBroadcast() bool {
	return a.Index == BroadcastIndex
}

// IsAny returns if the address targets any one node of its role
func (a NodeAddress) IsAny() bool {
	return a.Index == AnyIndex
}

// Less orders addresses by group, role, then index
func (a NodeAddress) Less(b NodeAddress) bool {
	if a.Group != b.Group {
		return a.Group < b.Group
	}
	if a.Role != b.Role {
		return a.Role < b.Role
	}
	return a.Index < b.Index
}

func (a NodeAddress) String() string {
	if a.IsNull() {
		return "Node<null>"
	}
	if a.IsBroadcast() {
		return fmt.Sprintf("Node<%d|*|%s>", a.Group, a.Role)
	}
	if a.IsAny() {
		return fmt.Sprintf("Node<%d|?|%s>", a.Group, a.Role)
	}
	return fmt.Sprintf("Node<%d|%d|%s>", a.Group, a.Index, a.Role)
}

// ConnectionID is the numeric identity of one accepted connection on a node, 0 means none
type ConnectionID uint32

// EntityType is the kind of entities
type EntityType uint8

const (
	// EntityNone is the type of null entities
	EntityNone EntityType = iota
	// EntityCharacter is the type of player characters
	EntityCharacter
	// EntityMob is the type of monsters
	EntityMob
	// EntityItem is the type of items on the ground
	EntityItem
	// EntityNpc is the type of NPCs
	EntityNpc
	// EntityParty is the type of parties
	EntityParty
)

var entityTypeNames = [...]string{
	EntityNone:      "none",
	EntityCharacter: "character",
	EntityMob:       "mob",
	EntityItem:      "item",
	EntityNpc:       "npc",
	EntityParty:     "party",
}

func (t EntityType) String() string {
	if int(t) < len(entityTypeNames) {
		return entityTypeNames[t]
	}
	return fmt.Sprintf("entity(%d)", uint8(t))
}

// EntityID identifies an entity; LocalIndex is only unique within (EntityType, WorldIndex)
type EntityID struct {
	LocalIndex uint16
	WorldIndex uint8
	EntityType EntityType
}

// NullEntityID means no entity
var NullEntityID = EntityID{}

// IsNull returns if the EntityID is the null entity
func (id EntityID) IsNull() bool {
	return id == NullEntityID
}

// Serial packs the EntityID into 32 bits for the wire
func (id EntityID) Serial() uint32 {
	return uint32(id.LocalIndex) | uint32(id.WorldIndex)<<16 | uint32(id.EntityType)<<24
}

// EntityIDFromSerial unpacks an EntityID packed by Serial
func EntityIDFromSerial(v uint32) EntityID {
	return EntityID{
		LocalIndex: uint16(v),
		WorldIndex: uint8(v >> 16),
		EntityType: EntityType(v >> 24),
	}
}

func (id EntityID) String() string {
	if id.IsNull() {
		return "Entity<null>"
	}
	return fmt.Sprintf("Entity<%s|%d|%d>", id.EntityType, id.WorldIndex, id.LocalIndex)
}
