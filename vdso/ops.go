package vdso

import (
	"github.com/silvernodes/silvernode-sched/process"
	"github.com/silvernodes/silvernode-sched/shm"
)

// Ops is the scheduler capability handed to the kernel and to each process.
// The same operations exist on both sides of the privilege boundary.
type Ops interface {
	Spawn(f process.Future, prio int, kind process.CoroutineKind) (process.CoroutineId, error)
	PollKernel(hart int, budget int) (int, error)
	PollUser(tid int, budget int) (int, error)
	CurrentCid(tid int) (process.CoroutineId, error)
	Reprio(cid process.CoroutineId, prio int) error
	Wake(cid process.CoroutineId) error
	AddVirtualCore() (int, error)
	UpdatePrio(prio uint64) error
	Space() *shm.Space
}

type binding struct {
	cells *Cells
	space *shm.Space
}

// Bind ties resolved cells to the address space every call will run in.
func Bind(cells *Cells, space *shm.Space) Ops {
	return &binding{cells: cells, space: space}
}

func (b *binding) Spawn(f process.Future, prio int, kind process.CoroutineKind) (process.CoroutineId, error) {
	return b.cells.Spawn(b.space, f, prio, kind)
}

func (b *binding) PollKernel(hart int, budget int) (int, error) {
	return b.cells.PollKernel(b.space, hart, budget)
}

func (b *binding) PollUser(tid int, budget int) (int, error) {
	return b.cells.PollUser(b.space, tid, budget)
}

func (b *binding) CurrentCid(tid int) (process.CoroutineId, error) {
	return b.cells.CurrentCid(b.space, tid)
}

func (b *binding) Reprio(cid process.CoroutineId, prio int) error {
	return b.cells.Reprio(b.space, cid, prio)
}

func (b *binding) Wake(cid process.CoroutineId) error {
	return b.cells.Wake(b.space, cid)
}

func (b *binding) AddVirtualCore() (int, error) {
	return b.cells.AddVirtualCore(b.space)
}

func (b *binding) UpdatePrio(prio uint64) error {
	return b.cells.UpdatePrio(b.space, prio)
}

func (b *binding) Space() *shm.Space {
	return b.space
}
