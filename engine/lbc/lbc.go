// Package lbc collects the load of world nodes for the world list.
package lbc

import (
	"context"
	"os"
	"sort"
	"time"

	"github.com/gorealm/gorealm/engine/gwlog"
	"github.com/gorealm/gorealm/engine/gwutils"
	"github.com/gorealm/gorealm/engine/post"
	"github.com/gorealm/gorealm/engine/proto"
	"github.com/shirou/gopsutil/process"
)

// Initialize samples the cpu percent of this process every collectInterval and calls report on the main routine
func Initialize(ctx context.Context, collectInterval time.Duration, report func(cpuPercent float64)) {
	pid := os.Getpid()
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		gwlog.Fatalf("lbc: can not find world process: pid = %v", pid)
	}
	gwlog.Infof("lbc: found world process: %s", p)

	go gwutils.RepeatUntilPanicless(func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(collectInterval):
			}

			pcnt, err := p.CPUPercentWithContext(ctx)
			if err != nil {
				gwlog.Panicf("lbc: get process cpu percent failed: %s", err)
			}
			gwlog.Debugf("lbc: cpu percent is %.3f%%", pcnt)
			post.Post(func() {
				report(pcnt)
			})
		}
	})
}

// LoadTable keeps the last load report of every world node, on the master
type LoadTable struct {
	worlds map[uint8]proto.WorldInfo
}

// NewLoadTable creates an empty LoadTable
func NewLoadTable() *LoadTable {
	return &LoadTable{
		worlds: map[uint8]proto.WorldInfo{},
	}
}

// Update stores the report of a world
func (t *LoadTable) Update(info proto.WorldInfo) {
	t.worlds[info.Index] = info
}

// Remove forgets a world, when it disconnects
func (t *LoadTable) Remove(worldIndex uint8) {
	delete(t.worlds, worldIndex)
}

// Len returns the number of reporting worlds
func (t *LoadTable) Len() int {
	return len(t.worlds)
}

// WorldList returns the reports ordered by world index
func (t *LoadTable) WorldList() proto.WorldList {
	list := proto.WorldList{Worlds: make([]proto.WorldInfo, 0, len(t.worlds))}
	for _, info := range t.worlds {
		list.Worlds = append(list.Worlds, info)
	}
	sort.Slice(list.Worlds, func(i, j int) bool {
		return list.Worlds[i].Index < list.Worlds[j].Index
	})
	return list
}

// LeastLoaded returns the world with the lowest player ratio, then cpu
func (t *LoadTable) LeastLoaded() (proto.WorldInfo, bool) {
	list := t.WorldList().Worlds
	if len(list) == 0 {
		return proto.WorldInfo{}, false
	}
	best := list[0]
	for _, info := range list[1:] {
		if loadLess(info, best) {
			best = info
		}
	}
	return best, true
}

func loadRatio(info proto.WorldInfo) float64 {
	if info.MaxPlayerCount <= 0 {
		return 1
	}
	return float64(info.PlayerCount) / float64(info.MaxPlayerCount)
}

func loadLess(a, b proto.WorldInfo) bool {
	ra, rb := loadRatio(a), loadRatio(b)
	if ra != rb {
		return ra < rb
	}
	return a.CPUPercent < b.CPUPercent
}
