// Package world manages the live instances of map templates.
//
// Open worlds have one global context created at boot. Dungeon worlds are
// instantiated per party: a party owns at most one context, destroyed with the
// party (solo dungeon parties) or when its last occupant leaves (normal parties).
package world

import (
	"fmt"

	"github.com/gorealm/gorealm/engine/common"
	"github.com/gorealm/gorealm/engine/consts"
	"github.com/gorealm/gorealm/engine/gwlog"
	"github.com/gorealm/gorealm/engine/party"
	"github.com/gorealm/gorealm/engine/syncmask"
	"github.com/pkg/errors"
)

// Context is a live instance of a WorldData
type Context struct {
	Data          *WorldData
	DungeonIndex  int
	OwningPartyID common.EntityID

	occupants common.EntityIDSet
}

// IsGlobal returns if the context is the shared context of an open world
func (ctx *Context) IsGlobal() bool {
	return ctx.OwningPartyID.IsNull()
}

// Occupants returns the number of characters in the context
func (ctx *Context) Occupants() int {
	return len(ctx.occupants)
}

// HasOccupant returns if the character is in the context
func (ctx *Context) HasOccupant(id common.EntityID) bool {
	return ctx.occupants.Contains(id)
}

// IsFull returns if the context holds as many characters as its world allows. Capacity 0 is unlimited.
func (ctx *Context) IsFull() bool {
	return ctx.Data.Capacity > 0 && len(ctx.occupants) >= ctx.Data.Capacity
}

func (ctx *Context) String() string {
	if ctx.IsGlobal() {
		return fmt.Sprintf("Context<%d>", ctx.Data.WorldIndex)
	}
	return fmt.Sprintf("Context<%d|%d|%s>", ctx.Data.WorldIndex, ctx.DungeonIndex, ctx.OwningPartyID)
}

// Character is the part of a player character the instance manager works with
type Character struct {
	ID             common.EntityID
	CharacterIndex uint32
	NodeIndex      uint8
	Name           string
	Level          int32
	PartyID        common.EntityID
	WorldID        uint8
	DungeonIndex   int
	// ReturnWorldID is the open world the character goes back to when it leaves a dungeon
	ReturnWorldID uint8
	Sync          syncmask.State

	// Records are the serialized sub-records pushed by the sync dispatcher, by mask bit
	Records map[syncmask.Mask][]byte
}

// SyncState implements syncmask.Target
func (c *Character) SyncState() *syncmask.State {
	return &c.Sync
}

// MemberInfo returns the party member information of the character
func (c *Character) MemberInfo() party.MemberInfo {
	return party.MemberInfo{
		CharacterIndex: c.CharacterIndex,
		Level:          c.Level,
		Name:           c.Name,
	}
}

func (c *Character) String() string {
	return fmt.Sprintf("Character<%d|%s>", c.CharacterIndex, c.Name)
}

// Manager owns the global and party contexts of a world node
type Manager struct {
	table         *WorldTable
	parties       *party.Manager
	maxInstances  int
	globals       map[uint8]*Context
	partyContexts map[common.EntityID]*Context
}

// NewManager creates the global context of every open world and binds party contexts to the lifetime of parties
func NewManager(table *WorldTable, parties *party.Manager, maxInstances int) *Manager {
	m := &Manager{
		table:         table,
		parties:       parties,
		maxInstances:  maxInstances,
		globals:       map[uint8]*Context{},
		partyContexts: map[common.EntityID]*Context{},
	}
	for _, idx := range table.Indices() {
		wd := table.Get(idx)
		if wd.Type == Open {
			m.globals[idx] = &Context{Data: wd, DungeonIndex: -1, occupants: common.EntityIDSet{}}
		}
	}
	parties.AddDestroyHook(m.onPartyDestroyed)
	return m
}

// WorldTable returns the map templates
func (m *Manager) WorldTable() *WorldTable {
	return m.table
}

// GetGlobalContext returns the global context of an open world, nil if the world is not open
func (m *Manager) GetGlobalContext(worldID uint8) *Context {
	return m.globals[worldID]
}

// GetPartyContext returns the context owned by the party, nil if none
func (m *Manager) GetPartyContext(partyID common.EntityID) *Context {
	return m.partyContexts[partyID]
}

// InstanceCount returns the number of party contexts
func (m *Manager) InstanceCount() int {
	return len(m.partyContexts)
}

// FreeInstanceCount returns how many party contexts can still be opened
func (m *Manager) FreeInstanceCount() int {
	return m.maxInstances - len(m.partyContexts)
}

// EnterWorld puts a character arriving at the node into the global context of its world
func (m *Manager) EnterWorld(c *Character) error {
	g := m.globals[c.WorldID]
	if g == nil {
		return errors.Wrapf(common.ErrNotFound, "world %d is not open", c.WorldID)
	}
	if g.IsFull() {
		return errors.Wrapf(common.ErrCapacityExceeded, "%s is full (%d)", g, g.Data.Capacity)
	}
	g.occupants.Add(c.ID)
	return nil
}

// LeaveWorld takes a character leaving the node out of the global context it is in. Party contexts are left
// through CloseInstance.
func (m *Manager) LeaveWorld(c *Character) {
	if g := m.globals[c.WorldID]; g != nil {
		g.occupants.Del(c.ID)
	}
}

// CurrentWorld resolves the context the character is in: its party context if that instantiates the
// character's world, else the global context of the character's world.
func (m *Manager) CurrentWorld(c *Character) *Context {
	if !c.PartyID.IsNull() {
		if ctx := m.partyContexts[c.PartyID]; ctx != nil && ctx.Data.WorldIndex == c.WorldID {
			return ctx
		}
	}
	return m.globals[c.WorldID]
}

// OpenInstance opens a dungeon instance for the character's party, creating a solo dungeon party first if the
// character has none. A member of a normal party whose instance of the same dungeon is already open joins it.
func (m *Manager) OpenInstance(c *Character, worldIndex uint8, dungeonIndex int) (*Context, error) {
	wd := m.table.Get(worldIndex)
	if wd == nil || !wd.Type.IsDungeon() {
		common.InvalidStatef("%s: world %d is not a dungeon", c, worldIndex)
	}
	if cur := m.CurrentWorld(c); cur != nil && cur.Data.Type == QuestDungeon {
		common.InvalidStatef("%s: can not open a dungeon inside quest dungeon %s", c, cur)
	}

	var p *party.Party
	if !c.PartyID.IsNull() {
		if p = m.parties.GetParty(c.PartyID); p == nil {
			common.InvalidStatef("%s: party %s is not alive", c, c.PartyID)
		}
		if ctx := m.partyContexts[c.PartyID]; ctx != nil {
			if p.Type == party.Normal && ctx.Data == wd && ctx.DungeonIndex == dungeonIndex {
				if ctx.IsFull() {
					return nil, errors.Wrapf(common.ErrCapacityExceeded, "%s is full (%d)", ctx, wd.Capacity)
				}
				m.leaveGlobal(c)
				ctx.occupants.Add(c.ID)
				return ctx, nil
			}
			common.InvalidStatef("%s: party %s already owns %s", c, c.PartyID, ctx)
		}
	}

	if !wd.HasDungeon(dungeonIndex) {
		return nil, errors.Wrapf(common.ErrNotFound, "%s has no dungeon %d", wd, dungeonIndex)
	}

	created := false
	if p == nil {
		var err error
		if p, err = m.parties.CreateParty(c.MemberInfo(), c.NodeIndex, party.SoloDungeon); err != nil {
			return nil, err
		}
		created = true
	}

	ctx, err := m.createPartyContext(wd, dungeonIndex, p.ID)
	if err != nil {
		if created {
			m.parties.DestroyParty(p)
		}
		return nil, err
	}
	m.leaveGlobal(c)
	c.PartyID = p.ID
	ctx.occupants.Add(c.ID)
	return ctx, nil
}

func (m *Manager) leaveGlobal(c *Character) {
	if cur := m.CurrentWorld(c); cur != nil && cur.IsGlobal() {
		cur.occupants.Del(c.ID)
	}
}

// returnGlobal puts a character back into the open world it came from. Coming back is never refused, even if the
// world filled up meanwhile.
func (m *Manager) returnGlobal(c *Character) {
	if g := m.globals[c.ReturnWorldID]; g != nil {
		g.occupants.Add(c.ID)
	}
}

func (m *Manager) createPartyContext(wd *WorldData, dungeonIndex int, partyID common.EntityID) (*Context, error) {
	if len(m.partyContexts) >= m.maxInstances {
		return nil, errors.Wrapf(common.ErrCapacityExceeded, "instance pool full (%d)", m.maxInstances)
	}
	ctx := &Context{
		Data:          wd,
		DungeonIndex:  dungeonIndex,
		OwningPartyID: partyID,
		occupants:     common.EntityIDSet{},
	}
	m.partyContexts[partyID] = ctx
	if consts.DEBUG_INSTANCES {
		gwlog.Debugf("%s opened, %d instances", ctx, len(m.partyContexts))
	}
	return ctx, nil
}

func (m *Manager) destroyPartyContext(ctx *Context) {
	delete(m.partyContexts, ctx.OwningPartyID)
	if consts.DEBUG_INSTANCES {
		gwlog.Debugf("%s closed, %d instances", ctx, len(m.partyContexts))
	}
}

// CloseInstance takes the character out of its party's instance. A solo dungeon instance is destroyed together
// with its party and the character is left without a party; a normal party's instance is destroyed when its last
// occupant leaves. It returns false if the party has no instance.
func (m *Manager) CloseInstance(c *Character) bool {
	if c.PartyID.IsNull() || c.PartyID.EntityType != common.EntityParty {
		common.InvalidStatef("%s: close instance without a party", c)
	}
	ctx := m.partyContexts[c.PartyID]
	if ctx == nil {
		return false
	}
	p := m.parties.GetParty(c.PartyID)
	if p == nil {
		common.InvalidStatef("%s: party %s of %s is not alive", c, c.PartyID, ctx)
	}

	m.returnGlobal(c)
	if p.Type == party.SoloDungeon {
		m.destroyPartyContext(ctx)
		m.parties.DestroyParty(p)
		c.PartyID = common.NullEntityID
		return true
	}

	ctx.occupants.Del(c.ID)
	if len(ctx.occupants) == 0 {
		m.destroyPartyContext(ctx)
	}
	return true
}

func (m *Manager) onPartyDestroyed(p *party.Party) {
	if ctx := m.partyContexts[p.ID]; ctx != nil {
		m.destroyPartyContext(ctx)
	}
}
