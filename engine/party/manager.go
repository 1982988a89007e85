package party

import (
	"time"

	"github.com/gorealm/gorealm/engine/common"
	"github.com/gorealm/gorealm/engine/consts"
	"github.com/gorealm/gorealm/engine/gwlog"
	"github.com/pkg/errors"
)

// Invitation is an unanswered invitation into a party.
// PartyID is null when the inviter has no party yet; the party is created on acceptance.
type Invitation struct {
	PartyID   common.EntityID
	Inviter   Slot
	Member    Slot
	Timestamp time.Time
}

// Manager owns all parties of a world node
type Manager struct {
	worldServerIndex uint8
	parties          []*Party
	freeList         []int
	count            int
	invitations      map[uint32]*Invitation
	destroyHooks     []func(p *Party)
}

// NewManager creates a party manager with room for maxParties parties
func NewManager(worldServerIndex uint8, maxParties int) *Manager {
	if maxParties <= 0 || maxParties >= soloDungeonBit {
		gwlog.Panicf("invalid max party count: %d", maxParties)
	}
	m := &Manager{
		worldServerIndex: worldServerIndex,
		parties:          make([]*Party, maxParties),
		freeList:         make([]int, maxParties),
		invitations:      map[uint32]*Invitation{},
	}
	// pop from the tail, so the lowest slot is used first
	for i := range m.freeList {
		m.freeList[i] = maxParties - 1 - i
	}
	return m
}

// AddDestroyHook adds a function called for every destroyed party
func (m *Manager) AddDestroyHook(f func(p *Party)) {
	m.destroyHooks = append(m.destroyHooks, f)
}

// Count returns the number of live parties
func (m *Manager) Count() int {
	return m.count
}

// CreateParty creates a party led by leader
func (m *Manager) CreateParty(leader MemberInfo, leaderNode uint8, partyType Type) (*Party, error) {
	if len(m.freeList) == 0 {
		return nil, errors.Wrapf(common.ErrCapacityExceeded, "party pool full (%d)", len(m.parties))
	}
	index := m.freeList[len(m.freeList)-1]
	m.freeList = m.freeList[:len(m.freeList)-1]

	localIndex := uint16(index + 1)
	if partyType == SoloDungeon {
		localIndex |= soloDungeonBit
	}
	p := &Party{
		ID: common.EntityID{
			LocalIndex: localIndex,
			WorldIndex: m.worldServerIndex,
			EntityType: common.EntityParty,
		},
		LeaderCharacterIndex: leader.CharacterIndex,
		WorldServerIndex:     m.worldServerIndex,
		Type:                 partyType,
		Members:              make([]Slot, 0, consts.PARTY_MAX_MEMBER_COUNT),
	}
	p.Members = append(p.Members, Slot{SlotIndex: 0, NodeIndex: leaderNode, Info: leader})
	m.parties[index] = p
	m.count++
	if consts.DEBUG_INSTANCES {
		gwlog.Debugf("%s created, leader %d", p, leader.CharacterIndex)
	}
	return p, nil
}

// GetParty returns the live party with the id, nil if not found
func (m *Manager) GetParty(id common.EntityID) *Party {
	if id.EntityType != common.EntityParty || id.WorldIndex != m.worldServerIndex {
		return nil
	}
	index := int(id.LocalIndex&^soloDungeonBit) - 1
	if index < 0 || index >= len(m.parties) {
		return nil
	}
	p := m.parties[index]
	if p == nil || p.ID != id {
		return nil
	}
	return p
}

// AddMember adds a character to a normal party
func (m *Manager) AddMember(p *Party, info MemberInfo, node uint8) (*Slot, error) {
	m.checkLive(p)
	if p.Type == SoloDungeon {
		return nil, errors.Wrapf(ErrSoloParty, "%s", p)
	}
	if p.GetMember(info.CharacterIndex) != nil {
		common.InvalidStatef("%s: character %d is already a member", p, info.CharacterIndex)
	}
	if p.IsFull() {
		return nil, errors.Wrapf(common.ErrCapacityExceeded, "%s is full", p)
	}
	p.Members = append(p.Members, Slot{SlotIndex: len(p.Members), NodeIndex: node, Info: info})
	return &p.Members[len(p.Members)-1], nil
}

// RemoveMember removes a character from a normal party. A leaving leader hands over to the first remaining member,
// the last leaving member destroys the party. It returns false if the character is not a member.
func (m *Manager) RemoveMember(p *Party, characterIndex uint32) bool {
	m.checkLive(p)
	if p.Type == SoloDungeon {
		common.InvalidStatef("%s: solo dungeon parties are destroyed together with their instance", p)
	}

	i := -1
	for j := range p.Members {
		if p.Members[j].Info.CharacterIndex == characterIndex {
			i = j
			break
		}
	}
	if i < 0 {
		return false
	}

	p.Members = append(p.Members[:i], p.Members[i+1:]...)
	for j := range p.Members {
		p.Members[j].SlotIndex = j
	}

	if len(p.Members) == 0 {
		m.DestroyParty(p)
		return true
	}
	if p.LeaderCharacterIndex == characterIndex {
		p.LeaderCharacterIndex = p.Members[0].Info.CharacterIndex
	}
	return true
}

// SetLeader hands the leadership to another member
func (m *Manager) SetLeader(p *Party, characterIndex uint32) error {
	m.checkLive(p)
	if p.GetMember(characterIndex) == nil {
		return errors.Wrapf(common.ErrNotFound, "%s: character %d is not a member", p, characterIndex)
	}
	p.LeaderCharacterIndex = characterIndex
	return nil
}

// DestroyParty destroys the party, its pending invitations and calls destroy hooks
func (m *Manager) DestroyParty(p *Party) {
	m.checkLive(p)
	index := int(p.ID.LocalIndex&^soloDungeonBit) - 1
	m.parties[index] = nil
	m.freeList = append(m.freeList, index)
	m.count--

	for invitee, inv := range m.invitations {
		if inv.PartyID == p.ID {
			delete(m.invitations, invitee)
		}
	}
	for _, hook := range m.destroyHooks {
		hook(p)
	}
	if consts.DEBUG_INSTANCES {
		gwlog.Debugf("%s destroyed", p)
	}
}

func (m *Manager) checkLive(p *Party) {
	if p == nil || m.GetParty(p.ID) != p {
		common.InvalidStatef("party %v is not alive", p)
	}
}

// Invite records an invitation of member into the inviter's party. partyID is null if the inviter has no party yet.
// A newer invitation of the same character replaces the older one.
func (m *Manager) Invite(partyID common.EntityID, inviter Slot, member Slot, now time.Time) (*Invitation, error) {
	if !partyID.IsNull() {
		p := m.GetParty(partyID)
		if p == nil {
			return nil, errors.Wrapf(common.ErrNotFound, "party %s", partyID)
		}
		if p.Type == SoloDungeon {
			return nil, errors.Wrapf(ErrSoloParty, "%s", p)
		}
		if p.GetMember(inviter.Info.CharacterIndex) == nil {
			return nil, errors.Wrapf(common.ErrNotFound, "%s: inviter %d is not a member", p, inviter.Info.CharacterIndex)
		}
		if p.IsFull() {
			return nil, errors.Wrapf(common.ErrCapacityExceeded, "%s is full", p)
		}
	}

	inv := &Invitation{
		PartyID:   partyID,
		Inviter:   inviter,
		Member:    member,
		Timestamp: now,
	}
	m.invitations[member.Info.CharacterIndex] = inv
	return inv, nil
}

// GetInvitation returns the invitation of the character
func (m *Manager) GetInvitation(characterIndex uint32) *Invitation {
	return m.invitations[characterIndex]
}

// AcceptInvitation adds the invited character to the party, creating the party if the inviter had none
func (m *Manager) AcceptInvitation(characterIndex uint32, now time.Time) (*Party, error) {
	inv := m.invitations[characterIndex]
	if inv == nil || now.Sub(inv.Timestamp) >= consts.PARTY_INVITATION_TIMEOUT {
		delete(m.invitations, characterIndex)
		return nil, errors.Wrapf(common.ErrNotFound, "invitation of character %d", characterIndex)
	}

	var p *Party
	if inv.PartyID.IsNull() {
		var err error
		if p, err = m.CreateParty(inv.Inviter.Info, inv.Inviter.NodeIndex, Normal); err != nil {
			return nil, err
		}
	} else if p = m.GetParty(inv.PartyID); p == nil {
		delete(m.invitations, characterIndex)
		return nil, errors.Wrapf(common.ErrNotFound, "party %s", inv.PartyID)
	}

	if _, err := m.AddMember(p, inv.Member.Info, inv.Member.NodeIndex); err != nil {
		if inv.PartyID.IsNull() {
			m.DestroyParty(p)
		}
		return nil, err
	}
	delete(m.invitations, characterIndex)
	return p, nil
}

// DeclineInvitation drops the invitation of the character
func (m *Manager) DeclineInvitation(characterIndex uint32) *Invitation {
	inv := m.invitations[characterIndex]
	delete(m.invitations, characterIndex)
	return inv
}

// ExpireInvitations drops invitations older than PARTY_INVITATION_TIMEOUT and returns them
func (m *Manager) ExpireInvitations(now time.Time) []*Invitation {
	var expired []*Invitation
	for invitee, inv := range m.invitations {
		if now.Sub(inv.Timestamp) >= consts.PARTY_INVITATION_TIMEOUT {
			expired = append(expired, inv)
			delete(m.invitations, invitee)
		}
	}
	return expired
}
