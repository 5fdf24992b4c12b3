package kernel

import (
	"context"
	"fmt"
	"sync"

	"github.com/silvernodes/silvernode-sched/ctx"
	"github.com/silvernodes/silvernode-sched/log"
	"github.com/silvernodes/silvernode-sched/metrics"
	"github.com/silvernodes/silvernode-sched/process"
	"github.com/silvernodes/silvernode-sched/shm"
	"github.com/silvernodes/silvernode-sched/utils/errutil"
	"github.com/silvernodes/silvernode-sched/utils/stlutil"
	"github.com/silvernodes/silvernode-sched/vdso"
	"golang.org/x/sync/errgroup"
)

type BootOptions struct {
	Layout   shm.Layout
	Logger   *log.Logger
	Metrics  *metrics.Metrics
	Switcher Switcher
	// Resolver overrides the module's own export table as the loader's
	// symbol lookup.
	Resolver vdso.Resolver
}

type Kernel struct {
	conf     *ctx.SchedConf
	layout   shm.Layout
	log      *log.Logger
	metrics  *metrics.Metrics
	module   *vdso.Module
	resolver vdso.Resolver

	space *shm.Space
	inst  *vdso.Instance
	cells *vdso.Cells
	ops   vdso.Ops
	exec  *process.Executor

	sched    *SharedScheduler
	mirror   *Mirror
	harts    []*Hart
	waiting  waitList
	switcher Switcher
	timer    *Timer

	procs  *stlutil.Map[int, *Task]
	spaces *stlutil.Map[int64, int]
	pids   []bool // pid slots in use
	pidMu  sync.Mutex
}

// Boot brings up the kernel side of the scheduler: map the kernel space,
// install the module's kernel instance, resolve the kernel's entry point
// cells and build the fused scheduler. Nothing may call through the cells
// before Boot returns.
func Boot(conf *ctx.SchedConf, opts BootOptions) (*Kernel, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	k := new(Kernel)
	k.conf = conf
	k.layout = opts.Layout
	if k.layout == (shm.Layout{}) {
		k.layout = shm.DefaultLayout()
	}
	k.log = opts.Logger
	if k.log == nil {
		k.log = log.Discard()
	}
	k.metrics = opts.Metrics
	k.procs = stlutil.NewMap[int, *Task]()
	k.spaces = stlutil.NewMap[int64, int]()
	k.mirror = NewMirror(conf.MaxProcs)
	k.pids = make([]bool, conf.MaxProcs)

	k.module = vdso.NewModule(vdso.Options{
		PrioNum:       conf.PrioNum,
		QueueCapacity: conf.QueueCapacity,
		MaxThreads:    conf.MaxThreads,
		Observer: func(space *shm.Space) process.Observer {
			return k.metrics.Observer(space.Name())
		},
		Logger: k.log.Sub("vdso"),
	})
	k.module.SetPriorityHook(k.onPublish)
	k.resolver = opts.Resolver
	if k.resolver == nil {
		k.resolver = k.module.Symbols()
	}

	k.space = shm.NewSpace("kernel", k.layout)
	if err := k.space.MapControl(); err != nil {
		return nil, errutil.Extend("map kernel control page", err)
	}
	inst, err := k.module.Install(k.space, true)
	if err != nil {
		return nil, errutil.Extend("install kernel instance", err)
	}
	k.inst = inst
	k.exec = inst.Executor()
	k.cells = new(vdso.Cells)
	if err := k.cells.Resolve(k.resolver); err != nil {
		return nil, errutil.Extend("resolve kernel cells", err)
	}
	k.ops = vdso.Bind(k.cells, k.space)

	k.sched = NewSharedScheduler(inst, k.ops, k.log.Sub("sched"))
	k.sched.OnAdd(k.kickOne)
	k.harts = make([]*Hart, conf.Harts)
	for i := range k.harts {
		id, err := k.ops.AddVirtualCore()
		if err != nil {
			return nil, errutil.Extendf(err, "virtual core for hart %d", i)
		}
		k.harts[i] = cohart(id, k)
	}
	k.switcher = opts.Switcher
	if k.switcher == nil {
		chunk := conf.Slice / 4
		if chunk <= 0 {
			chunk = 1
		}
		k.switcher = &userSwitcher{chunk: chunk}
	}
	k.log.Info("booted: %d harts, %d levels, queue capacity %d", conf.Harts, conf.PrioNum, conf.QueueCapacity)
	return k, nil
}

func (k *Kernel) Conf() *ctx.SchedConf {
	return k.conf
}

func (k *Kernel) Scheduler() *SharedScheduler {
	return k.sched
}

func (k *Kernel) Mirror() *Mirror {
	return k.mirror
}

func (k *Kernel) Module() *vdso.Module {
	return k.module
}

func (k *Kernel) Ops() vdso.Ops {
	return k.ops
}

func (k *Kernel) Executor() *process.Executor {
	return k.exec
}

func (k *Kernel) Harts() []*Hart {
	return k.harts
}

func (k *Kernel) Process(pid int) (*Task, bool) {
	return k.procs.Get(pid)
}

func (k *Kernel) NumProcesses() int {
	return k.procs.Len()
}

// onPublish mirrors a process's new priority and makes its task runnable
// when the process gained work. A queued task is re-sampled so it moves to
// the new level; a running one is left to afterSwitch.
func (k *Kernel) onPublish(space *shm.Space, prio uint64) {
	pid, ok := k.spaces.Get(space.Id())
	if !ok {
		return
	}
	k.mirror.Publish(pid, prio)
	k.metrics.Published(space.Name(), prio)
	if prio == process.NoWork {
		return
	}
	t, ok := k.procs.Get(pid)
	if !ok {
		return
	}
	switch t.State() {
	case TaskBlocked:
		k.makeRunnable(t)
	case TaskReady:
		k.requeue(t)
	}
}

func (k *Kernel) kickOne() {
	if id, ok := k.waiting.pop(); ok {
		k.harts[id].wake()
	}
}

// allocPid takes the lowest unused slot of the process table.
func (k *Kernel) allocPid() (int, error) {
	k.pidMu.Lock()
	defer k.pidMu.Unlock()

	for pid, used := range k.pids {
		if !used {
			k.pids[pid] = true
			return pid, nil
		}
	}
	return -1, errutil.New(fmt.Sprintf("process table full (%d)", k.conf.MaxProcs))
}

func (k *Kernel) freePid(pid int) {
	k.pidMu.Lock()
	k.pids[pid] = false
	k.pidMu.Unlock()
}

// CreateProcess maps a new address space with the shared control layout,
// installs a private scheduler instance in it and resolves the process's own
// entry point cells. The task starts blocked; Submit or a user interrupt
// makes it runnable.
func (k *Kernel) CreateProcess(name string) (*Task, error) {
	pid, err := k.allocPid()
	if err != nil {
		return nil, err
	}
	space := shm.NewSpace(name, k.layout)
	if err := space.MapControl(); err != nil {
		k.freePid(pid)
		return nil, errutil.Extendf(err, "map control page of %s", name)
	}
	k.spaces.Set(space.Id(), pid)
	if _, err := k.module.Install(space, false); err != nil {
		k.spaces.Remove(space.Id())
		k.freePid(pid)
		return nil, errutil.Extendf(err, "install instance for %s", name)
	}
	cells := new(vdso.Cells)
	if err := cells.Resolve(k.resolver); err != nil {
		k.discard(pid, space)
		return nil, errutil.Extendf(err, "resolve cells for %s", name)
	}
	ops := vdso.Bind(cells, space)
	tid, err := ops.AddVirtualCore()
	if err != nil {
		k.discard(pid, space)
		return nil, err
	}
	t := NewTask(pid, name, space, ops, tid, k.conf.Slice)
	t.SetState(TaskBlocked)
	k.procs.Set(pid, t)
	k.log.Info("process %s created", t)
	return t, nil
}

func (k *Kernel) discard(pid int, space *shm.Space) {
	k.module.Uninstall(space)
	k.spaces.Remove(space.Id())
	k.mirror.Clear(pid)
	k.freePid(pid)
}

// Submit spawns a user coroutine inside process pid and makes its task
// runnable.
func (k *Kernel) Submit(pid int, f process.Future, prio int) (process.CoroutineId, error) {
	t, ok := k.procs.Get(pid)
	if !ok {
		return 0, errutil.NewWithCode(errutil.CodeNotFound, fmt.Sprintf("no process %d", pid))
	}
	cid, err := t.Spawn(f, prio, process.UserNormal)
	if err != nil {
		return 0, err
	}
	k.notify(t)
	return cid, nil
}

// Exit retires a process and frees its pid. A running task is retired once
// its slice ends.
func (k *Kernel) Exit(pid int) error {
	t, ok := k.procs.Take(pid)
	if !ok {
		return errutil.NewWithCode(errutil.CodeNotFound, fmt.Sprintf("no process %d", pid))
	}
	t.SetState(TaskExited)
	k.sched.Remove(t)
	err := k.module.Uninstall(t.Space())
	k.spaces.Remove(t.Space().Id())
	k.mirror.Clear(pid)
	k.freePid(pid)
	k.log.Info("process %s exited", t)
	return err
}

// afterSwitch decides what a task becomes once it hands the hart back: it
// is queued again if its process still publishes work or was sent a user
// interrupt meanwhile, and blocked otherwise.
func (k *Kernel) afterSwitch(t *Task) {
	if t.State() == TaskExited {
		return
	}
	v, err := t.Space().Load(k.layout.PrioWord)
	if err != nil {
		k.log.Error("%s: %v", t, err)
		return
	}
	if v != process.NoWork || t.woken.Swap(false) {
		if t.casState(TaskRunning, TaskReady) {
			k.requeue(t)
		}
		return
	}
	if !t.casState(TaskRunning, TaskBlocked) {
		return
	}
	// a wake or publish may have seen it running just before it blocked
	if t.woken.Swap(false) || k.hasWork(t) {
		k.makeRunnable(t)
	}
}

func (k *Kernel) hasWork(t *Task) bool {
	v, err := t.Space().Load(k.layout.PrioWord)
	return err == nil && v != process.NoWork
}

// notify tells a task it has new work. A running task is requeued by
// afterSwitch, a blocked one right away and a queued one re-sampled.
func (k *Kernel) notify(t *Task) {
	switch {
	case t.casState(TaskBlocked, TaskReady):
		k.requeue(t)
		return
	case t.State() == TaskReady:
		k.requeue(t)
		return
	}
	t.woken.Store(true)
	// afterSwitch may have blocked it since the first try
	k.makeRunnable(t)
}

func (k *Kernel) makeRunnable(t *Task) {
	if t.casState(TaskBlocked, TaskReady) {
		k.requeue(t)
	}
}

func (k *Kernel) requeue(t *Task) {
	if err := k.sched.AddTask(t); err != nil {
		k.log.Error("requeue %s: %v", t, err)
	}
}

// Spawn creates a kernel coroutine.
func (k *Kernel) Spawn(f process.Future, prio int, kind process.CoroutineKind) (process.CoroutineId, error) {
	return k.sched.Spawn(f, prio, kind)
}

// Serve runs every hart's idle loop and the timer until ctx is cancelled.
func (k *Kernel) Serve(c context.Context) error {
	g, gctx := errgroup.WithContext(c)
	if k.conf.TimerMs > 0 {
		k.timer = Schedule(k.tick, k.conf.TimerMs, 0, k.conf.TimerMs, nil)
	}
	for _, h := range k.harts {
		h := h
		g.Go(func() error {
			return h.Run(gctx)
		})
	}
	err := g.Wait()
	if k.timer != nil {
		k.timer.Cancel()
		k.timer.Wait()
	}
	return err
}

func (k *Kernel) tick() {
	for _, h := range k.harts {
		k.OnTimer(h.id)
	}
	k.sampleDepth()
}

func (k *Kernel) sampleDepth() {
	if k.metrics == nil {
		return
	}
	k.metrics.Depth(k.space.Name(), k.exec)
	k.procs.ForEach(func(_ int, t *Task) {
		if inst, err := k.module.Instance(t.Space()); err == nil {
			k.metrics.Depth(t.Space().Name(), inst.Executor())
		}
	})
}
