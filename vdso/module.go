package vdso

import (
	"fmt"

	"github.com/silvernodes/silvernode-sched/log"
	"github.com/silvernodes/silvernode-sched/process"
	"github.com/silvernodes/silvernode-sched/shm"
	"github.com/silvernodes/silvernode-sched/utils/errutil"
	"github.com/silvernodes/silvernode-sched/utils/stlutil"
	"go.uber.org/atomic"
)

var ErrNoInstance = errutil.NewWithCode(errutil.CodeNoInstance, "no scheduler instance in address space")

type Options struct {
	PrioNum       int
	QueueCapacity int
	MaxThreads    int
	// Observer, when set, gives each instance its own event sink.
	Observer func(space *shm.Space) process.Observer
	Logger   *log.Logger
}

// PriorityHook sees every priority published by any instance, after it was
// stored into that space's priority word.
type PriorityHook func(space *shm.Space, prio uint64)

// Instance is the private data of the module inside one address space.
type Instance struct {
	handle   uint64
	kernel   bool
	space    *shm.Space
	executor *process.Executor
}

func (i *Instance) Handle() uint64 {
	return i.handle
}

func (i *Instance) Kernel() bool {
	return i.kernel
}

func (i *Instance) Space() *shm.Space {
	return i.space
}

func (i *Instance) Executor() *process.Executor {
	return i.executor
}

// Module is the one scheduler implementation shared by the kernel and every
// process. Its entry points never hold per-instance state themselves: each
// call finds its instance by reading the caller's heap-pointer cell.
type Module struct {
	opts      Options
	instances *stlutil.Map[uint64, *Instance]
	next      atomic.Uint64
	hook      PriorityHook
	log       *log.Logger
}

func NewModule(opts Options) *Module {
	m := new(Module)
	m.opts = opts
	m.instances = stlutil.NewMap[uint64, *Instance]()
	m.log = opts.Logger
	if m.log == nil {
		m.log = log.Discard()
	}
	return m
}

// SetPriorityHook must be called before any instance is installed.
func (m *Module) SetPriorityHook(hook PriorityHook) {
	m.hook = hook
}

// Install creates the private instance for a space whose control page is
// already mapped, and stores its handle in the heap-pointer cell.
func (m *Module) Install(space *shm.Space, kernel bool) (*Instance, error) {
	layout := space.Layout()
	if h, err := space.Load(layout.HeapPtr); err != nil {
		return nil, errutil.Extend("install: heap cell", err)
	} else if h != 0 {
		return nil, errutil.NewWithCode(errutil.CodeResolved, fmt.Sprintf("install: %s already has instance %d", space, h))
	}
	word, err := space.Word(layout.BitmapWord)
	if err != nil {
		return nil, errutil.Extend("install: bitmap word", err)
	}
	var observer process.Observer
	if m.opts.Observer != nil {
		observer = m.opts.Observer(space)
	}
	exec, err := process.NewExecutor(process.Options{
		PrioNum:       m.opts.PrioNum,
		QueueCapacity: m.opts.QueueCapacity,
		MaxThreads:    m.opts.MaxThreads,
		Bitmap:        process.NewBitmap(word, m.opts.PrioNum),
		Generator:     process.NewGenerator(),
		Observer:      observer,
		Logger:        m.log.Sub("executor").With("space", space.Name()),
	})
	if err != nil {
		return nil, err
	}
	inst := new(Instance)
	inst.handle = m.next.Inc()
	inst.kernel = kernel
	inst.space = space
	inst.executor = exec
	exec.SetPublisher(process.PublisherFunc(func(prio uint64) {
		if err := m.updatePrio(space, prio); err != nil {
			m.log.Warn("publish priority for %s: %v", space, err)
		}
	}))
	m.instances.Set(inst.handle, inst)
	if err := space.Store(layout.HeapPtr, inst.handle); err != nil {
		m.instances.Remove(inst.handle)
		return nil, errutil.Extend("install: heap cell", err)
	}
	if err := m.updatePrio(space, process.NoWork); err != nil {
		return nil, err
	}
	m.log.Debug("instance %d installed in %s", inst.handle, space)
	return inst, nil
}

// Uninstall drops the instance of a space; later calls from it fail with
// ErrNoInstance.
func (m *Module) Uninstall(space *shm.Space) error {
	inst, err := m.instance(space)
	if err != nil {
		return err
	}
	m.instances.Remove(inst.handle)
	if err := space.Store(space.Layout().HeapPtr, 0); err != nil {
		return err
	}
	if m.hook != nil {
		m.hook(space, process.NoWork)
	}
	return nil
}

// instance dereferences the space's heap-pointer cell.
func (m *Module) instance(space *shm.Space) (*Instance, error) {
	if space == nil {
		return nil, ErrNoInstance
	}
	h, err := space.Load(space.Layout().HeapPtr)
	if err != nil {
		return nil, errutil.Extend("heap cell", err)
	}
	inst, ok := m.instances.Get(h)
	if h == 0 || !ok || inst.space != space {
		return nil, errutil.Extendf(ErrNoInstance, "%s", space)
	}
	return inst, nil
}

func (m *Module) Instance(space *shm.Space) (*Instance, error) {
	return m.instance(space)
}

func (m *Module) NumInstances() int {
	return m.instances.Len()
}
