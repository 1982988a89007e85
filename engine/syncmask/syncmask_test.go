package syncmask

import (
	"testing"

	"github.com/bmizerany/assert"
	"github.com/pkg/errors"
)

type character struct {
	name string
	sync State
}

func (c *character) SyncState() *State {
	return &c.sync
}

type recorder struct {
	flushes []Mask
	fail    bool
	onFlush func(target Target)
}

func (r *recorder) Flush(target Target, mask Mask) error {
	if r.onFlush != nil {
		r.onFlush(target)
	}
	if r.fail {
		return errors.New("send failed")
	}
	r.flushes = append(r.flushes, mask)
	return nil
}

func TestMaskOrderAndString(t *testing.T) {
	var order []Mask
	(QuestInfo | Info | HonorMedalInfo).Each(func(bit Mask) {
		order = append(order, bit)
	})
	assert.Equal(t, []Mask{Info, HonorMedalInfo, QuestInfo}, order)
	assert.Equal(t, "Info|QuestInfo", (Info | QuestInfo).String())
	assert.Equal(t, "0", Mask(0).String())
	assert.Equal(t, Mask(0x1FF), All)
}

func TestMarkMerges(t *testing.T) {
	var st State
	st.Mark(Info, Low)
	st.Mark(InventoryInfo, Low)
	st.Mark(Info, High)
	assert.Equal(t, Info|InventoryInfo, st.Mask)
	assert.Equal(t, Low|High, st.Priority)
	assert.T(t, st.IsDirty(), "state should be dirty")
}

func TestHighPriorityFlushesNextTick(t *testing.T) {
	r := &recorder{}
	d := NewDispatcher(5, r)
	c := &character{name: "c"}
	d.Track(c)

	c.sync.Mark(EssenceAbilityInfo, High)
	assert.Equal(t, 1, d.Tick())
	assert.Equal(t, []Mask{EssenceAbilityInfo}, r.flushes)
	assert.T(t, !c.sync.IsDirty(), "flushed bits are cleared")
	assert.Equal(t, 0, d.Tick())
}

func TestLowPriorityCoalesces(t *testing.T) {
	r := &recorder{}
	d := NewDispatcher(3, r)
	c := &character{name: "c"}
	d.Track(c)

	c.sync.Mark(Info, Low)
	assert.Equal(t, 0, d.Tick())
	c.sync.Mark(InventoryInfo, Low)
	assert.Equal(t, 0, d.Tick())
	assert.Equal(t, 1, d.Tick())
	// both marks surfaced in one flush
	assert.Equal(t, []Mask{Info | InventoryInfo}, r.flushes)

	// a High mark cuts the wait short
	c.sync.Mark(TransformInfo, Low)
	assert.Equal(t, 0, d.Tick())
	c.sync.Mark(SkillSlotInfo, High)
	assert.Equal(t, 1, d.Tick())
	assert.Equal(t, TransformInfo|SkillSlotInfo, r.flushes[1])
}

func TestMarksDuringFlushSurvive(t *testing.T) {
	r := &recorder{}
	d := NewDispatcher(1, r)
	c := &character{name: "c"}
	d.Track(c)

	first := true
	r.onFlush = func(target Target) {
		if first {
			first = false
			target.SyncState().Mark(HonorMedalInfo|Info, High)
		}
	}
	c.sync.Mark(Info, High)
	assert.Equal(t, 1, d.Tick())
	assert.Equal(t, HonorMedalInfo|Info, c.sync.Mask)
	assert.Equal(t, 1, d.Tick())
	assert.Equal(t, []Mask{Info, HonorMedalInfo | Info}, r.flushes)
	assert.T(t, !c.sync.IsDirty(), "all flushed")
}

func TestFailedFlushRestoresBits(t *testing.T) {
	r := &recorder{fail: true}
	d := NewDispatcher(1, r)
	c := &character{name: "c"}
	d.Track(c)

	c.sync.Mark(QuestInfo, High)
	assert.Equal(t, 0, d.Tick())
	assert.Equal(t, QuestInfo, c.sync.Mask)
	assert.Equal(t, High, c.sync.Priority)

	r.fail = false
	assert.Equal(t, 1, d.Tick())
	assert.Equal(t, []Mask{QuestInfo}, r.flushes)
}

func TestTrackUntrackAndFlushNow(t *testing.T) {
	r := &recorder{}
	d := NewDispatcher(10, FlusherFunc(r.Flush))
	c1 := &character{name: "c1"}
	c2 := &character{name: "c2"}
	d.Track(c1)
	d.Track(c2)
	assert.Equal(t, 2, d.Len())

	c1.sync.Mark(Info, High)
	c2.sync.Mark(Info, High)
	d.Untrack(c2)
	assert.Equal(t, 1, d.Tick())
	assert.T(t, c2.sync.IsDirty(), "untracked target keeps its changes")

	assert.T(t, d.FlushNow(c2), "flush now")
	assert.T(t, !d.FlushNow(c2), "nothing left")
	assert.Equal(t, 2, len(r.flushes))
}
