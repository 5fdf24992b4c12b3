package kernel

import (
	"fmt"

	"github.com/silvernodes/silvernode-sched/process"
	"github.com/silvernodes/silvernode-sched/shm"
	"github.com/silvernodes/silvernode-sched/vdso"
	"go.uber.org/atomic"
)

type TaskState uint32

const (
	TaskReady TaskState = iota
	TaskRunning
	TaskBlocked
	TaskExited
)

func (s TaskState) String() string {
	switch s {
	case TaskReady:
		return "Ready"
	case TaskRunning:
		return "Running"
	case TaskBlocked:
		return "Blocked"
	case TaskExited:
		return "Exited"
	}
	return "Unknown"
}

// Task is an OS-level schedulable process. Its priority is not kept here:
// it lives in the process's own address space and is sampled on Add.
type Task struct {
	pid   int
	name  string
	space *shm.Space
	ops   vdso.Ops
	tid   int
	slice int

	state  atomic.Uint32
	queued atomic.Bool // sits in some level's task list
	level  atomic.Int32
	woken  atomic.Bool // user interrupt arrived while running
}

func NewTask(pid int, name string, space *shm.Space, ops vdso.Ops, tid int, slice int) *Task {
	t := new(Task)
	t.pid = pid
	t.name = name
	t.space = space
	t.ops = ops
	t.tid = tid
	t.slice = slice
	t.level.Store(-1)
	return t
}

func (t *Task) Pid() int {
	return t.pid
}

func (t *Task) Name() string {
	return t.name
}

func (t *Task) Space() *shm.Space {
	return t.space
}

func (t *Task) Ops() vdso.Ops {
	return t.ops
}

func (t *Task) Tid() int {
	return t.tid
}

func (t *Task) Slice() int {
	return t.slice
}

func (t *Task) State() TaskState {
	return TaskState(t.state.Load())
}

func (t *Task) SetState(s TaskState) {
	t.state.Store(uint32(s))
}

func (t *Task) casState(old, new TaskState) bool {
	return t.state.CAS(uint32(old), uint32(new))
}

// Level is the list the task was last queued on, or -1.
func (t *Task) Level() int {
	return int(t.level.Load())
}

// Spawn runs a coroutine inside the task's process.
func (t *Task) Spawn(f process.Future, prio int, kind process.CoroutineKind) (process.CoroutineId, error) {
	return t.ops.Spawn(f, prio, kind)
}

func (t *Task) String() string {
	return fmt.Sprintf("task(%d:%s)", t.pid, t.name)
}

// Entity is what SharedScheduler.Add accepts.
type Entity interface {
	entity()
}

type TaskEntity struct {
	Task *Task
}

// CoroutineEntity spawns a kernel coroutine.
type CoroutineEntity struct {
	Future process.Future
	Prio   int
	Kind   process.CoroutineKind
}

// WakeEntity re-enqueues a suspended kernel coroutine.
type WakeEntity struct {
	Cid process.CoroutineId
}

func (TaskEntity) entity()      {}
func (CoroutineEntity) entity() {}
func (WakeEntity) entity()      {}

// Choice is the result of a fetch: exactly one of Task and Coroutine is set.
type Choice struct {
	Task      *Task
	Coroutine *process.Coroutine
	Level     int
}

func (c Choice) IsTask() bool {
	return c.Task != nil
}
