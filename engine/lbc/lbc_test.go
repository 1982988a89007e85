package lbc

import (
	"testing"

	"github.com/bmizerany/assert"
	"github.com/gorealm/gorealm/engine/proto"
)

func TestLoadTable(t *testing.T) {
	lt := NewLoadTable()
	_, ok := lt.LeastLoaded()
	assert.T(t, !ok, "empty table")

	lt.Update(proto.WorldInfo{Index: 2, PlayerCount: 50, MaxPlayerCount: 100, CPUPercent: 10})
	lt.Update(proto.WorldInfo{Index: 1, PlayerCount: 10, MaxPlayerCount: 100, CPUPercent: 90})
	lt.Update(proto.WorldInfo{Index: 3, PlayerCount: 10, MaxPlayerCount: 100, CPUPercent: 20})
	assert.Equal(t, 3, lt.Len())

	list := lt.WorldList()
	assert.Equal(t, uint8(1), list.Worlds[0].Index)
	assert.Equal(t, uint8(2), list.Worlds[1].Index)
	assert.Equal(t, uint8(3), list.Worlds[2].Index)

	best, ok := lt.LeastLoaded()
	assert.T(t, ok, "least loaded")
	assert.Equal(t, uint8(3), best.Index)

	// newer report replaces the older one
	lt.Update(proto.WorldInfo{Index: 3, PlayerCount: 99, MaxPlayerCount: 100})
	best, _ = lt.LeastLoaded()
	assert.Equal(t, uint8(1), best.Index)

	lt.Remove(1)
	lt.Remove(1)
	assert.Equal(t, 2, lt.Len())
}
