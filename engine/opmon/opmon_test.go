package opmon

import (
	"strings"
	"testing"
	"time"

	"github.com/bmizerany/assert"
)

func TestOperation(t *testing.T) {
	Take()

	for i := 0; i < 3; i++ {
		op := StartOperation("b.op")
		op.Finish(time.Hour)
	}
	op := StartOperation("a.op")
	time.Sleep(time.Millisecond)
	d := op.Finish(time.Hour)
	assert.T(t, d >= time.Millisecond, "duration too short")

	stats := Take()
	assert.Equal(t, 2, len(stats))
	assert.Equal(t, "a.op", stats[0].Name)
	assert.Equal(t, uint64(1), stats[0].Count)
	assert.Equal(t, stats[0].TotalDuration, stats[0].MaxDuration)
	assert.Equal(t, "b.op", stats[1].Name)
	assert.Equal(t, uint64(3), stats[1].Count)

	assert.Equal(t, 0, len(Take()))
}

func TestDump(t *testing.T) {
	Take()
	StartOperation("dump.op").Finish(time.Hour)
	s := Dump()
	assert.T(t, strings.HasPrefix(s, "dump.op"), s)
	assert.Equal(t, "", Dump())
	assert.Equal(t, time.Duration(0), Stats{}.Avg())
}
