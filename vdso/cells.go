package vdso

import (
	"fmt"

	"github.com/silvernodes/silvernode-sched/process"
	"github.com/silvernodes/silvernode-sched/shm"
	"github.com/silvernodes/silvernode-sched/utils/errutil"
)

var (
	ErrUnresolved = errutil.NewWithCode(errutil.CodeUnresolved, "entry point cell not resolved")
	ErrResolved   = errutil.NewWithCode(errutil.CodeResolved, "entry point cells already resolved")
)

// Resolver is the loader's symbol lookup.
type Resolver interface {
	ResolveSymbol(name string) (interface{}, error)
}

// Cells are the entry point cells a caller reaches the module through. They
// are filled once, at kernel boot or process creation; calling a cell before
// that returns ErrUnresolved.
type Cells struct {
	resolved   bool
	spawn      SpawnFunc
	pollKernel PollFunc
	pollUser   PollFunc
	currentCid CurrentFunc
	reprio     ReprioFunc
	wake       WakeFunc
	addCore    AddCoreFunc
	updatePrio UpdatePrioFunc
}

func resolveCell[T any](r Resolver, name string, cell *T) error {
	v, err := r.ResolveSymbol(name)
	if err != nil {
		return err
	}
	fn, ok := v.(T)
	if !ok {
		return errutil.NewWithCode(errutil.CodeBadSymbol, fmt.Sprintf("symbol %s has type %T, want %T", name, v, *cell))
	}
	*cell = fn
	return nil
}

// Resolve fills every cell or none of them.
func (c *Cells) Resolve(r Resolver) error {
	if c.resolved {
		return ErrResolved
	}
	var next Cells
	steps := []func() error{
		func() error { return resolveCell(r, SymSpawn, &next.spawn) },
		func() error { return resolveCell(r, SymPollKernel, &next.pollKernel) },
		func() error { return resolveCell(r, SymPollUser, &next.pollUser) },
		func() error { return resolveCell(r, SymCurrentCid, &next.currentCid) },
		func() error { return resolveCell(r, SymReprio, &next.reprio) },
		func() error { return resolveCell(r, SymWake, &next.wake) },
		func() error { return resolveCell(r, SymAddVirtualCore, &next.addCore) },
		func() error { return resolveCell(r, SymUpdatePrio, &next.updatePrio) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return errutil.Extend("resolve entry points", err)
		}
	}
	next.resolved = true
	*c = next
	return nil
}

func (c *Cells) Resolved() bool {
	return c.resolved
}

func (c *Cells) Spawn(space *shm.Space, f process.Future, prio int, kind process.CoroutineKind) (process.CoroutineId, error) {
	if c.spawn == nil {
		return 0, errutil.Extend(SymSpawn, ErrUnresolved)
	}
	return c.spawn(space, f, prio, kind)
}

func (c *Cells) PollKernel(space *shm.Space, hart int, budget int) (int, error) {
	if c.pollKernel == nil {
		return 0, errutil.Extend(SymPollKernel, ErrUnresolved)
	}
	return c.pollKernel(space, hart, budget)
}

func (c *Cells) PollUser(space *shm.Space, tid int, budget int) (int, error) {
	if c.pollUser == nil {
		return 0, errutil.Extend(SymPollUser, ErrUnresolved)
	}
	return c.pollUser(space, tid, budget)
}

func (c *Cells) CurrentCid(space *shm.Space, tid int) (process.CoroutineId, error) {
	if c.currentCid == nil {
		return 0, errutil.Extend(SymCurrentCid, ErrUnresolved)
	}
	return c.currentCid(space, tid)
}

func (c *Cells) Reprio(space *shm.Space, cid process.CoroutineId, prio int) error {
	if c.reprio == nil {
		return errutil.Extend(SymReprio, ErrUnresolved)
	}
	return c.reprio(space, cid, prio)
}

func (c *Cells) Wake(space *shm.Space, cid process.CoroutineId) error {
	if c.wake == nil {
		return errutil.Extend(SymWake, ErrUnresolved)
	}
	return c.wake(space, cid)
}

func (c *Cells) AddVirtualCore(space *shm.Space) (int, error) {
	if c.addCore == nil {
		return -1, errutil.Extend(SymAddVirtualCore, ErrUnresolved)
	}
	return c.addCore(space)
}

func (c *Cells) UpdatePrio(space *shm.Space, prio uint64) error {
	if c.updatePrio == nil {
		return errutil.Extend(SymUpdatePrio, ErrUnresolved)
	}
	return c.updatePrio(space, prio)
}
