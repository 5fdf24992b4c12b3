package vdso

import (
	"github.com/silvernodes/silvernode-sched/process"
	"github.com/silvernodes/silvernode-sched/shm"
	"github.com/silvernodes/silvernode-sched/utils/errutil"
)

// Exported symbol names.
const (
	SymSpawn          = "spawn"
	SymPollKernel     = "poll_kernel"
	SymPollUser       = "poll_user"
	SymCurrentCid     = "current_cid"
	SymReprio         = "reprio"
	SymWake           = "wake"
	SymAddVirtualCore = "add_virtual_core"
	SymUpdatePrio     = "update_prio"
)

// Entry point types. The first argument is always the caller's address
// space, the one the call executes in.
type (
	SpawnFunc      func(space *shm.Space, f process.Future, prio int, kind process.CoroutineKind) (process.CoroutineId, error)
	PollFunc       func(space *shm.Space, index int, budget int) (int, error)
	CurrentFunc    func(space *shm.Space, tid int) (process.CoroutineId, error)
	ReprioFunc     func(space *shm.Space, cid process.CoroutineId, prio int) error
	WakeFunc       func(space *shm.Space, cid process.CoroutineId) error
	AddCoreFunc    func(space *shm.Space) (int, error)
	UpdatePrioFunc func(space *shm.Space, prio uint64) error
)

func (m *Module) spawn(space *shm.Space, f process.Future, prio int, kind process.CoroutineKind) (process.CoroutineId, error) {
	inst, err := m.instance(space)
	if err != nil {
		return 0, err
	}
	cid, err := inst.executor.Spawn(f, prio, kind)
	if err != nil {
		return 0, err
	}
	inst.executor.Publish()
	return cid, nil
}

// pollKernel is the hart-indexed run loop of the kernel instance.
func (m *Module) pollKernel(space *shm.Space, hart int, budget int) (int, error) {
	inst, err := m.instance(space)
	if err != nil {
		return 0, err
	}
	if !inst.kernel {
		return 0, errutil.Extendf(process.ErrBadThread, "poll_kernel from user %s", space)
	}
	return inst.executor.Drain(hart, budget)
}

// pollUser is the thread-indexed run loop of a process instance. It
// republishes when it stops, so the kernel sees the state the slice left.
func (m *Module) pollUser(space *shm.Space, tid int, budget int) (int, error) {
	inst, err := m.instance(space)
	if err != nil {
		return 0, err
	}
	if inst.kernel {
		return 0, errutil.Extendf(process.ErrBadThread, "poll_user from kernel %s", space)
	}
	n, err := inst.executor.Drain(tid, budget)
	inst.executor.Publish()
	return n, err
}

func (m *Module) currentCid(space *shm.Space, tid int) (process.CoroutineId, error) {
	inst, err := m.instance(space)
	if err != nil {
		return 0, err
	}
	return inst.executor.Current(tid)
}

func (m *Module) reprio(space *shm.Space, cid process.CoroutineId, prio int) error {
	inst, err := m.instance(space)
	if err != nil {
		return err
	}
	return inst.executor.Reprio(cid, prio)
}

func (m *Module) wake(space *shm.Space, cid process.CoroutineId) error {
	inst, err := m.instance(space)
	if err != nil {
		return err
	}
	return inst.executor.Wake(cid)
}

func (m *Module) addVirtualCore(space *shm.Space) (int, error) {
	inst, err := m.instance(space)
	if err != nil {
		return -1, err
	}
	return inst.executor.AddVirtualCore()
}

// updatePrio stores into the priority word with one atomic store, then
// feeds the hook.
func (m *Module) updatePrio(space *shm.Space, prio uint64) error {
	if err := space.Store(space.Layout().PrioWord, prio); err != nil {
		return errutil.Extend("update_prio", err)
	}
	if m.hook != nil {
		m.hook(space, prio)
	}
	return nil
}

// SymbolTable maps exported names to entry points.
type SymbolTable map[string]interface{}

func (t SymbolTable) ResolveSymbol(name string) (interface{}, error) {
	v, ok := t[name]
	if !ok {
		return nil, errutil.NewWithCode(errutil.CodeBadSymbol, "undefined symbol: "+name)
	}
	return v, nil
}

// Symbols is the module's export table.
func (m *Module) Symbols() SymbolTable {
	return SymbolTable{
		SymSpawn:          SpawnFunc(m.spawn),
		SymPollKernel:     PollFunc(m.pollKernel),
		SymPollUser:       PollFunc(m.pollUser),
		SymCurrentCid:     CurrentFunc(m.currentCid),
		SymReprio:         ReprioFunc(m.reprio),
		SymWake:           WakeFunc(m.wake),
		SymAddVirtualCore: AddCoreFunc(m.addVirtualCore),
		SymUpdatePrio:     UpdatePrioFunc(m.updatePrio),
	}
}
