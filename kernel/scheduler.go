package kernel

import (
	"fmt"
	"sync"

	"github.com/silvernodes/silvernode-sched/log"
	"github.com/silvernodes/silvernode-sched/process"
	"github.com/silvernodes/silvernode-sched/utils/errutil"
	"github.com/silvernodes/silvernode-sched/utils/stlutil"
	"github.com/silvernodes/silvernode-sched/vdso"
)

// SharedScheduler fuses per-level process task lists with the kernel's own
// coroutine executor into one priority ordered decision. Both domains set
// bits in the same kernel bitmap.
type SharedScheduler struct {
	prioNum int
	tasks   []*stlutil.List[*Task]
	exec    *process.Executor
	ops     vdso.Ops
	bitmap  *process.Bitmap
	kick    func()
	log     *log.Logger
	sync.Mutex
}

// NewSharedScheduler builds the fused scheduler on the kernel instance. ops
// is the kernel's binding to the same instance; kernel coroutines are
// spawned and woken through it.
func NewSharedScheduler(inst *vdso.Instance, ops vdso.Ops, logger *log.Logger) *SharedScheduler {
	s := new(SharedScheduler)
	s.exec = inst.Executor()
	s.prioNum = s.exec.PrioNum()
	s.tasks = make([]*stlutil.List[*Task], s.prioNum)
	for i := range s.tasks {
		s.tasks[i] = stlutil.NewList[*Task](8)
	}
	s.ops = ops
	s.bitmap = s.exec.Bitmap()
	s.kick = func() {}
	s.log = logger
	if s.log == nil {
		s.log = log.Discard()
	}
	return s
}

// OnAdd installs a callback run after every successful add, outside the
// lock. The kernel uses it to kick an idle hart.
func (s *SharedScheduler) OnAdd(kick func()) {
	if kick != nil {
		s.kick = kick
	}
}

func (s *SharedScheduler) Bitmap() *process.Bitmap {
	return s.bitmap
}

func (s *SharedScheduler) PrioNum() int {
	return s.prioNum
}

func (s *SharedScheduler) Add(e Entity) error {
	switch v := e.(type) {
	case TaskEntity:
		return s.AddTask(v.Task)
	case CoroutineEntity:
		_, err := s.Spawn(v.Future, v.Prio, v.Kind)
		return err
	case WakeEntity:
		return s.Wake(v.Cid)
	}
	return errutil.New(fmt.Sprintf("add: unknown entity %T", e))
}

// readLevel samples the task's published priority through its own page
// table. A fault is returned as is; "no work" or an out of range value
// maps to the least urgent level.
func (s *SharedScheduler) readLevel(t *Task) (int, error) {
	space := t.Space()
	v, err := space.Load(space.Layout().PrioWord)
	if err != nil {
		return -1, errutil.Extendf(err, "read priority of %s", t)
	}
	if v >= uint64(s.prioNum) {
		return s.prioNum - 1, nil
	}
	return int(v), nil
}

// AddTask queues a runnable task at the level its process last published.
// A task already queued is moved when the level changed. On a priority read
// failure nothing is queued.
func (s *SharedScheduler) AddTask(t *Task) error {
	level, err := s.readLevel(t)
	if err != nil {
		return err
	}
	s.Lock()
	if t.State() != TaskReady {
		// fetched or blocked again since the caller looked
		s.Unlock()
		return nil
	}
	if t.queued.Load() {
		if old := t.Level(); old != level {
			s.tasks[old].Remove(t)
			t.level.Store(int32(level))
			s.tasks[level].PushBack(t)
		}
	} else {
		t.queued.Store(true)
		t.level.Store(int32(level))
		s.tasks[level].PushBack(t)
	}
	s.bitmap.Set(level)
	s.Unlock()
	s.kick()
	return nil
}

func (s *SharedScheduler) Spawn(f process.Future, prio int, kind process.CoroutineKind) (process.CoroutineId, error) {
	s.Lock()
	cid, err := s.ops.Spawn(f, prio, kind)
	s.Unlock()
	if err != nil {
		return 0, err
	}
	s.kick()
	return cid, nil
}

func (s *SharedScheduler) Wake(cid process.CoroutineId) error {
	s.Lock()
	err := s.ops.Wake(cid)
	s.Unlock()
	if err != nil {
		return err
	}
	s.kick()
	return nil
}

// Fetch picks the next thing for hart to run. Per level it tries one kernel
// coroutine, then rotates the task list once: a task that is not ready by
// now (another hart changed it after it was queued) goes to the back, an
// exited one is dropped. A level's bit is cleared only when neither side
// produced anything in this pass.
func (s *SharedScheduler) Fetch(hart int) (Choice, bool) {
	s.Lock()
	defer s.Unlock()

	for level := 0; level < s.prioNum; level++ {
		if c := s.exec.FetchLevel(level, hart); c != nil {
			s.heal(level)
			return Choice{Coroutine: c, Level: level}, true
		}
		list := s.tasks[level]
		for n := list.Len(); n > 0; n-- {
			t, ok := list.PopFront()
			if !ok {
				break
			}
			if t.casState(TaskReady, TaskRunning) {
				t.queued.Store(false)
				s.heal(level)
				return Choice{Task: t, Level: level}, true
			}
			if t.State() == TaskExited {
				t.queued.Store(false)
				continue
			}
			list.PushBack(t)
		}
		s.bitmap.Clear(level)
		if s.exec.QueueLen(level) > 0 {
			s.bitmap.Set(level)
		}
	}
	return Choice{}, false
}

func (s *SharedScheduler) heal(level int) {
	if s.exec.QueueLen(level) > 0 || s.tasks[level].Len() > 0 {
		s.bitmap.Set(level)
	}
}

// Remove drops a task from whatever list holds it.
func (s *SharedScheduler) Remove(t *Task) bool {
	s.Lock()
	defer s.Unlock()

	level := t.Level()
	if level < 0 || level >= s.prioNum || !t.queued.Load() {
		return false
	}
	if s.tasks[level].Remove(t) {
		t.queued.Store(false)
		return true
	}
	return false
}

func (s *SharedScheduler) TaskCount(level int) int {
	if level < 0 || level >= s.prioNum {
		return 0
	}
	return s.tasks[level].Len()
}

// Queued reports whether t is currently in a task list.
func (s *SharedScheduler) Queued(t *Task) bool {
	s.Lock()
	defer s.Unlock()

	for _, list := range s.tasks {
		if list.Contains(t) {
			return true
		}
	}
	return false
}
