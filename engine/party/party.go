package party

import (
	"fmt"

	"github.com/gorealm/gorealm/engine/common"
	"github.com/gorealm/gorealm/engine/consts"
	"github.com/pkg/errors"
)

// Type is the type of parties
type Type int

const (
	// Normal parties are formed by invitations and live as long as they have members
	Normal Type = iota
	// SoloDungeon parties are created for one character entering a dungeon alone and live as long as the dungeon instance
	SoloDungeon
)

func (t Type) String() string {
	if t == SoloDungeon {
		return "solo"
	}
	return "normal"
}

// soloDungeonBit marks solo dungeon parties in the LocalIndex of their ids
const soloDungeonBit = 0x8000

// ErrSoloParty is returned when a membership change is requested on a solo dungeon party
var ErrSoloParty = errors.New("solo dungeon party has a fixed member")

// MemberInfo is the public information of a party member shown to the other members
type MemberInfo struct {
	CharacterIndex   uint32
	Level            int32
	BattleStyleIndex uint8
	OverlordLevel    uint16
	MythRebirth      int32
	MythHolyPower    int32
	MythLevel        int32
	ForceWingGrade   uint8
	ForceWingLevel   uint8
	Name             string
}

// Slot is one member of a party
type Slot struct {
	SlotIndex int
	NodeIndex uint8
	Info      MemberInfo
}

// ItemSlot is one slot of the shared party inventory
type ItemSlot struct {
	SlotIndex   uint16
	ItemID      uint64
	ItemOptions uint64
}

// QuestSlot is one shared party quest; QuestIndex 0 means the slot is empty
type QuestSlot struct {
	QuestIndex int32
	NpcFlags   uint64
	Counters   []int32
}

// Party is a group of characters sharing membership, inventory and quests
type Party struct {
	ID                   common.EntityID
	LeaderCharacterIndex uint32
	WorldServerIndex     uint8
	Type                 Type
	Members              []Slot
	Inventory            []ItemSlot
	QuestSlots           [consts.PARTY_MAX_QUEST_SLOT_COUNT]QuestSlot

	questFlags [consts.PARTY_MAX_QUEST_FLAG_COUNT / 64]uint64
}

func (p *Party) String() string {
	return fmt.Sprintf("Party<%s|%s|%d members>", p.ID, p.Type, len(p.Members))
}

// MemberCount returns the number of members
func (p *Party) MemberCount() int {
	return len(p.Members)
}

// IsFull returns if no member can be added
func (p *Party) IsFull() bool {
	return len(p.Members) >= consts.PARTY_MAX_MEMBER_COUNT
}

// GetMember returns the slot of the character, nil if it is not a member
func (p *Party) GetMember(characterIndex uint32) *Slot {
	for i := range p.Members {
		if p.Members[i].Info.CharacterIndex == characterIndex {
			return &p.Members[i]
		}
	}
	return nil
}

// Leader returns the slot of the leader
func (p *Party) Leader() *Slot {
	return p.GetMember(p.LeaderCharacterIndex)
}

// PutItem stores an item in the shared inventory
func (p *Party) PutItem(item ItemSlot) error {
	if p.findItem(item.SlotIndex) >= 0 {
		return errors.Errorf("%s: inventory slot %d is occupied", p, item.SlotIndex)
	}
	if len(p.Inventory) >= consts.PARTY_MAX_INVENTORY_SLOT_COUNT {
		return errors.Wrapf(common.ErrCapacityExceeded, "%s: inventory full", p)
	}
	p.Inventory = append(p.Inventory, item)
	return nil
}

// TakeItem removes the item at slotIndex from the shared inventory
func (p *Party) TakeItem(slotIndex uint16) (ItemSlot, bool) {
	i := p.findItem(slotIndex)
	if i < 0 {
		return ItemSlot{}, false
	}
	item := p.Inventory[i]
	p.Inventory = append(p.Inventory[:i], p.Inventory[i+1:]...)
	return item, true
}

func (p *Party) findItem(slotIndex uint16) int {
	for i := range p.Inventory {
		if p.Inventory[i].SlotIndex == slotIndex {
			return i
		}
	}
	return -1
}

func checkQuestSlotIndex(slotIndex int) {
	if slotIndex < 0 || slotIndex >= consts.PARTY_MAX_QUEST_SLOT_COUNT {
		common.InvalidStatef("invalid party quest slot index: %d", slotIndex)
	}
}

// BeginQuest puts a quest into an empty quest slot
func (p *Party) BeginQuest(slotIndex int, questIndex int32) error {
	checkQuestSlotIndex(slotIndex)
	if p.QuestSlots[slotIndex].QuestIndex != 0 {
		return errors.Errorf("%s: quest slot %d is occupied", p, slotIndex)
	}
	p.QuestSlots[slotIndex] = QuestSlot{QuestIndex: questIndex}
	return nil
}

// ClearQuestSlot empties a quest slot and returns what it held
func (p *Party) ClearQuestSlot(slotIndex int) QuestSlot {
	checkQuestSlotIndex(slotIndex)
	slot := p.QuestSlots[slotIndex]
	p.QuestSlots[slotIndex] = QuestSlot{}
	return slot
}

func checkQuestIndex(questIndex int32) {
	if questIndex < 0 || questIndex >= consts.PARTY_MAX_QUEST_FLAG_COUNT {
		common.InvalidStatef("invalid party quest index: %d", questIndex)
	}
}

// SetQuestFlag marks the quest as done by the party
func (p *Party) SetQuestFlag(questIndex int32) {
	checkQuestIndex(questIndex)
	p.questFlags[questIndex/64] |= 1 << uint(questIndex%64)
}

// ClearQuestFlag unmarks the quest
func (p *Party) ClearQuestFlag(questIndex int32) {
	checkQuestIndex(questIndex)
	p.questFlags[questIndex/64] &^= 1 << uint(questIndex%64)
}

// IsQuestFlagSet returns if the quest is marked
func (p *Party) IsQuestFlagSet(questIndex int32) bool {
	checkQuestIndex(questIndex)
	return p.questFlags[questIndex/64]&(1<<uint(questIndex%64)) != 0
}

// IsSoloDungeon returns if the party id belongs to a solo dungeon party.
// It only looks at the id, the party does not need to be resolved.
func IsSoloDungeon(id common.EntityID) bool {
	return id.EntityType == common.EntityParty && id.LocalIndex&soloDungeonBit != 0
}
