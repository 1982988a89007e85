// Package syncmask tracks which sub-records of a character changed and pushes them to the client.
//
// Mutators mark bits with a priority. Dispatcher.Tick, called by the main routine, flushes
// High priority changes on the next tick and coalesces Low priority changes over several ticks.
package syncmask

import (
	"strings"

	"github.com/gorealm/gorealm/engine/consts"
	"github.com/gorealm/gorealm/engine/gwlog"
)

// Mask has one bit per sub-record of a character
type Mask uint32

const (
	Info Mask = 1 << iota
	InventoryInfo
	EquipmentInfo
	EssenceAbilityInfo
	HonorMedalInfo
	TransformInfo
	SkillSlotInfo
	QuestInfo
	PartyInfo

	maskEnd
)

// All has every known bit set
const All = maskEnd - 1

var maskNames = [...]string{
	"Info",
	"InventoryInfo",
	"EquipmentInfo",
	"EssenceAbilityInfo",
	"HonorMedalInfo",
	"TransformInfo",
	"SkillSlotInfo",
	"QuestInfo",
	"PartyInfo",
}

// Each calls f for every set bit in ascending bit order, which is the order sub-records are serialized in
func (m Mask) Each(f func(bit Mask)) {
	for bit := Mask(1); bit < maskEnd; bit <<= 1 {
		if m&bit != 0 {
			f(bit)
		}
	}
}

func (m Mask) String() string {
	if m == 0 {
		return "0"
	}
	var names []string
	for i, name := range maskNames {
		if m&(1<<uint(i)) != 0 {
			names = append(names, name)
		}
	}
	if m&^All != 0 {
		names = append(names, "?")
	}
	return strings.Join(names, "|")
}

// Priority is the urgency of pending changes; both bits may be set
type Priority uint8

const (
	Low Priority = 1 << iota
	High
)

// State is the sync state embedded in every character
type State struct {
	Mask     Mask
	Priority Priority
	waited   int
}

// Mark records changed sub-records. Marks merge until the next flush.
func (s *State) Mark(m Mask, p Priority) {
	s.Mask |= m
	s.Priority |= p
}

// IsDirty returns if any sub-record waits for a flush
func (s *State) IsDirty() bool {
	return s.Mask != 0
}

// Target is anything carrying a sync State, usually a character
type Target interface {
	SyncState() *State
}

// Flusher serializes the sub-records in mask of target and sends them
type Flusher interface {
	Flush(target Target, mask Mask) error
}

// FlusherFunc adapts a function to Flusher
type FlusherFunc func(target Target, mask Mask) error

// Flush calls f(target, mask)
func (f FlusherFunc) Flush(target Target, mask Mask) error {
	return f(target, mask)
}

// Dispatcher flushes the sync states of tracked targets
type Dispatcher struct {
	coalesceTicks int
	flusher       Flusher
	targets       map[Target]struct{}
}

// NewDispatcher creates a dispatcher. Low priority changes wait coalesceTicks ticks, High priority changes one.
func NewDispatcher(coalesceTicks int, flusher Flusher) *Dispatcher {
	if coalesceTicks < 1 {
		coalesceTicks = 1
	}
	return &Dispatcher{
		coalesceTicks: coalesceTicks,
		flusher:       flusher,
		targets:       map[Target]struct{}{},
	}
}

// Track starts flushing the target
func (d *Dispatcher) Track(target Target) {
	d.targets[target] = struct{}{}
}

// Untrack stops flushing the target; pending changes stay in its State
func (d *Dispatcher) Untrack(target Target) {
	delete(d.targets, target)
}

// Len returns the number of tracked targets
func (d *Dispatcher) Len() int {
	return len(d.targets)
}

// Tick flushes every target that is due and returns the number of successful flushes
func (d *Dispatcher) Tick() int {
	n := 0
	for target := range d.targets {
		if d.tickTarget(target) {
			n++
		}
	}
	return n
}

// FlushNow flushes the target regardless of priority
func (d *Dispatcher) FlushNow(target Target) bool {
	st := target.SyncState()
	if !st.IsDirty() {
		return false
	}
	return d.flush(target, st)
}

func (d *Dispatcher) tickTarget(target Target) bool {
	st := target.SyncState()
	if !st.IsDirty() {
		st.Priority = 0
		st.waited = 0
		return false
	}
	if st.Priority&High == 0 {
		st.waited++
		if st.waited < d.coalesceTicks {
			return false
		}
	}
	return d.flush(target, st)
}

func (d *Dispatcher) flush(target Target, st *State) bool {
	snapshot, prio := st.Mask, st.Priority
	// bits marked by the flusher itself survive to the next flush
	st.Mask &^= snapshot
	st.Priority = 0
	st.waited = 0

	if err := d.flusher.Flush(target, snapshot); err != nil {
		st.Mask |= snapshot
		st.Priority |= prio
		gwlog.Warnf("sync flush of %v failed: %v", target, err)
		return false
	}
	if consts.DEBUG_SYNC {
		gwlog.Debugf("sync flushed %v: %s", target, snapshot)
	}
	return true
}
