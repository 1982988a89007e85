// Package opmon records how long message handlers and other hot operations take.
package opmon

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gorealm/gorealm/engine/consts"
	"github.com/gorealm/gorealm/engine/gwlog"
)

var (
	operationPool = sync.Pool{
		New: func() interface{} {
			return &Operation{}
		},
	}

	monitor = newMonitor()
)

func init() {
	if consts.OPMON_DUMP_INTERVAL > 0 {
		go func() {
			for {
				time.Sleep(consts.OPMON_DUMP_INTERVAL)
				gwlog.Infof("opmon:\n%s", Dump())
			}
		}()
	}
}

// Stats is the accumulated statistics of one operation name
type Stats struct {
	Name          string
	Count         uint64
	TotalDuration time.Duration
	MaxDuration   time.Duration
}

// Avg returns the average duration
func (s Stats) Avg() time.Duration {
	if s.Count == 0 {
		return 0
	}
	return s.TotalDuration / time.Duration(s.Count)
}

type opMonitor struct {
	sync.Mutex
	stats map[string]*Stats
}

func newMonitor() *opMonitor {
	return &opMonitor{
		stats: map[string]*Stats{},
	}
}

func (m *opMonitor) record(name string, duration time.Duration) {
	m.Lock()
	st := m.stats[name]
	if st == nil {
		st = &Stats{Name: name}
		m.stats[name] = st
	}
	st.Count++
	st.TotalDuration += duration
	if duration > st.MaxDuration {
		st.MaxDuration = duration
	}
	m.Unlock()
}

// take returns the sorted statistics and resets the monitor
func (m *opMonitor) take() []Stats {
	m.Lock()
	stats := m.stats
	m.stats = map[string]*Stats{}
	m.Unlock()

	res := make([]Stats, 0, len(stats))
	for _, st := range stats {
		res = append(res, *st)
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].Name < res[j].Name
	})
	return res
}

// Take returns the statistics recorded since the last Take or Dump and resets them
func Take() []Stats {
	return monitor.take()
}

// Dump formats the statistics recorded since the last Take or Dump and resets them
func Dump() string {
	var sb strings.Builder
	WriteStats(&sb, Take())
	return sb.String()
}

// WriteStats writes one line per operation
func WriteStats(w io.Writer, stats []Stats) {
	for _, st := range stats {
		fmt.Fprintf(w, "%-40sx%-10d AVG %-10s MAX %-10s\n", st.Name, st.Count, st.Avg(), st.MaxDuration)
	}
}

// Operation is one running operation
type Operation struct {
	name      string
	startTime time.Time
}

// StartOperation starts timing an operation
func StartOperation(name string) *Operation {
	op := operationPool.Get().(*Operation)
	op.name = name
	op.startTime = time.Now()
	return op
}

// Finish records the duration of the operation and warns if it took longer than warnThreshold.
// The operation must not be used after Finish.
func (op *Operation) Finish(warnThreshold time.Duration) time.Duration {
	takeTime := time.Since(op.startTime)
	monitor.record(op.name, takeTime)
	if takeTime >= warnThreshold {
		gwlog.Warnf("opmon: operation %s takes %s > %s", op.name, takeTime, warnThreshold)
	}
	operationPool.Put(op)
	return takeTime
}
