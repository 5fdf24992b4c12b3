package kernel

import (
	"github.com/silvernodes/silvernode-sched/process"
	"go.uber.org/atomic"
)

// Mirror records, per pid, the last highest active priority a process
// published, or process.NoWork. Each slot is written only by its process and
// read by the kernel without locking.
type Mirror struct {
	slots []atomic.Uint64
}

func NewMirror(maxProcs int) *Mirror {
	m := new(Mirror)
	m.slots = make([]atomic.Uint64, maxProcs)
	for i := range m.slots {
		m.slots[i].Store(process.NoWork)
	}
	return m
}

func (m *Mirror) Len() int {
	return len(m.slots)
}

func (m *Mirror) Publish(pid int, prio uint64) {
	if pid < 0 || pid >= len(m.slots) {
		return
	}
	m.slots[pid].Store(prio)
}

func (m *Mirror) Load(pid int) uint64 {
	if pid < 0 || pid >= len(m.slots) {
		return process.NoWork
	}
	return m.slots[pid].Load()
}

func (m *Mirror) Clear(pid int) {
	m.Publish(pid, process.NoWork)
}

// Best returns the pid holding the most urgent published priority. Ties go
// to the lower pid.
func (m *Mirror) Best() (int, uint64, bool) {
	best, bestPid := process.NoWork, -1
	for pid := range m.slots {
		if v := m.slots[pid].Load(); v < best {
			best, bestPid = v, pid
		}
	}
	return bestPid, best, bestPid >= 0
}
