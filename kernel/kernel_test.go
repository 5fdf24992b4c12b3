package kernel

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/silvernodes/silvernode-sched/ctx"
	"github.com/silvernodes/silvernode-sched/metrics"
	"github.com/silvernodes/silvernode-sched/process"
	"github.com/silvernodes/silvernode-sched/shm"
	"github.com/silvernodes/silvernode-sched/utils/errutil"
	"github.com/silvernodes/silvernode-sched/vdso"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

func testConf() *ctx.SchedConf {
	c := ctx.NewSchedConf()
	c.Harts = 2
	c.MaxProcs = 8
	c.Slice = 8
	c.TimerMs = 5
	return c
}

func boot(t *testing.T) *Kernel {
	k, err := Boot(testConf(), BootOptions{})
	require.NoError(t, err)
	return k
}

// ready makes a process runnable at level prio.
func ready(t *testing.T, k *Kernel, task *Task, prio uint64) {
	require.NoError(t, task.Ops().UpdatePrio(prio))
	k.makeRunnable(task)
	require.Equal(t, TaskReady, task.State())
}

type parked struct {
	polls int
	waker *process.Waker
}

func (p *parked) Poll(w *process.Waker) process.PollState {
	p.polls++
	if p.polls == 1 {
		p.waker = w
		return process.Pending
	}
	return process.Ready
}

func TestBoot(t *testing.T) {
	k := boot(t)
	assert.Len(t, k.Harts(), 2)
	assert.Equal(t, 2, k.Executor().VirtualCores())
	assert.Equal(t, 1, k.Module().NumInstances())
	inst, err := k.Module().Instance(k.Ops().Space())
	require.NoError(t, err)
	assert.True(t, inst.Kernel())

	t.Run("bad conf", func(t *testing.T) {
		c := testConf()
		c.Harts = c.MaxThreads + 1
		_, err := Boot(c, BootOptions{})
		assert.Equal(t, errutil.CodeBadConf, errutil.CodeOf(err))
	})
	t.Run("bad symbols", func(t *testing.T) {
		_, err := Boot(testConf(), BootOptions{Resolver: vdso.SymbolTable{}})
		assert.Equal(t, errutil.CodeBadSymbol, errutil.CodeOf(err))
	})
}

func TestAddTaskPriorityFault(t *testing.T) {
	k := boot(t)
	ok, err := k.CreateProcess("ok")
	require.NoError(t, err)
	ready(t, k, ok, 2)

	// control page never mapped
	bad := NewTask(7, "bad", shm.NewSpace("bad", shm.DefaultLayout()), nil, 0, 4)
	err = k.Scheduler().AddTask(bad)
	require.Error(t, err)
	assert.True(t, errutil.Is(err, shm.ErrPageFault))
	assert.False(t, k.Scheduler().Queued(bad))

	total := 0
	for level := 0; level < k.Scheduler().PrioNum(); level++ {
		total += k.Scheduler().TaskCount(level)
	}
	assert.Equal(t, 1, total)
	assert.Equal(t, 1, k.Scheduler().TaskCount(2))
}

func TestNoWorkMapsToLowestLevel(t *testing.T) {
	k := boot(t)
	task, err := k.CreateProcess("idle")
	require.NoError(t, err)
	k.makeRunnable(task)
	assert.Equal(t, k.Scheduler().PrioNum()-1, task.Level())
	assert.Equal(t, 1, k.Scheduler().TaskCount(k.Scheduler().PrioNum()-1))
}

func TestFusedFetchOrder(t *testing.T) {
	tests := []struct {
		name      string
		taskPrio  uint64
		coPrio    int
		taskFirst bool
	}{
		{"task more urgent", 1, 2, true},
		{"coroutine more urgent", 3, 0, false},
		{"same level coroutine first", 2, 2, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k := boot(t)
			task, err := k.CreateProcess("p")
			require.NoError(t, err)
			ready(t, k, task, tt.taskPrio)
			_, err = k.Spawn(process.Once(func() {}), tt.coPrio, process.KernelSyscall)
			require.NoError(t, err)

			first, ok := k.Scheduler().Fetch(0)
			require.True(t, ok)
			second, ok := k.Scheduler().Fetch(0)
			require.True(t, ok)
			assert.Equal(t, tt.taskFirst, first.IsTask())
			assert.Equal(t, !tt.taskFirst, second.IsTask())

			_, ok = k.Scheduler().Fetch(0)
			assert.False(t, ok)
			assert.Equal(t, TaskRunning, task.State())
		})
	}
}

func TestFetchSkipsBlockedDropsExited(t *testing.T) {
	k := boot(t)
	a, err := k.CreateProcess("a")
	require.NoError(t, err)
	b, err := k.CreateProcess("b")
	require.NoError(t, err)
	ready(t, k, a, 3)
	ready(t, k, b, 3)
	a.SetState(TaskBlocked)

	choice, ok := k.Scheduler().Fetch(0)
	require.True(t, ok)
	assert.Same(t, b, choice.Task)
	assert.Equal(t, 1, k.Scheduler().TaskCount(3))
	assert.True(t, k.Scheduler().Queued(a))

	a.SetState(TaskExited)
	_, ok = k.Scheduler().Fetch(0)
	assert.False(t, ok)
	assert.Equal(t, 0, k.Scheduler().TaskCount(3))
	assert.False(t, k.Scheduler().Bitmap().Test(3))
}

func TestTaskQueuedOnce(t *testing.T) {
	k := boot(t)
	task, err := k.CreateProcess("p")
	require.NoError(t, err)
	ready(t, k, task, 1)
	require.NoError(t, k.Scheduler().AddTask(task))
	require.NoError(t, k.Scheduler().Add(TaskEntity{Task: task}))
	assert.Equal(t, 1, k.Scheduler().TaskCount(1))
}

func TestSchedulerAddEntities(t *testing.T) {
	k := boot(t)
	p := new(parked)
	require.NoError(t, k.Scheduler().Add(CoroutineEntity{Future: p, Prio: 1, Kind: process.KernelSyscall}))

	choice, ok := k.Scheduler().Fetch(0)
	require.True(t, ok)
	require.False(t, choice.IsTask())
	state, err := k.Executor().ExecuteOnce(0, choice.Coroutine)
	require.NoError(t, err)
	require.Equal(t, process.Pending, state)

	_, ok = k.Scheduler().Fetch(0)
	require.False(t, ok)
	require.NoError(t, k.Scheduler().Add(WakeEntity{Cid: p.waker.Id()}))
	choice, ok = k.Scheduler().Fetch(0)
	require.True(t, ok)
	assert.Equal(t, p.waker.Id(), choice.Coroutine.Id())
}

func TestKernelSchedulerCoroutineRequeued(t *testing.T) {
	k := boot(t)
	polls := 0
	_, err := k.Spawn(process.FutureFunc(func(*process.Waker) process.PollState {
		polls++
		if polls < 3 {
			return process.Pending
		}
		return process.Ready
	}), 0, process.KernelScheduler)
	require.NoError(t, err)

	h := k.Harts()[0]
	for i := 0; i < 3; i++ {
		choice, ok := k.Scheduler().Fetch(h.Id())
		require.True(t, ok, "round %d", i)
		require.NoError(t, h.dispatch(choice))
	}
	assert.Equal(t, 3, polls)
	_, ok := k.Scheduler().Fetch(h.Id())
	assert.False(t, ok)
	assert.True(t, k.Executor().IsEmpty())
}

// drain runs everything fetchable on hart 0.
func drain(t *testing.T, k *Kernel) int {
	h := k.Harts()[0]
	n := 0
	for ; n < 16; n++ {
		choice, ok := k.Scheduler().Fetch(h.Id())
		if !ok {
			break
		}
		require.NoError(t, h.dispatch(choice))
	}
	return n
}

func TestUserInterruptWakesTask(t *testing.T) {
	k := boot(t)
	task, err := k.CreateProcess("p")
	require.NoError(t, err)
	p := new(parked)
	cid, err := k.Submit(task.Pid(), p, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, task.Level())

	assert.Equal(t, 1, drain(t, k))
	assert.Equal(t, 1, p.polls)
	assert.Equal(t, TaskBlocked, task.State())
	assert.Equal(t, process.NoWork, k.Mirror().Load(task.Pid()))

	require.NoError(t, k.OnUserInterrupt(task.Pid(), cid))
	assert.Equal(t, TaskReady, task.State())
	assert.Equal(t, 2, task.Level())
	assert.Equal(t, uint64(2), k.Mirror().Load(task.Pid()))

	drain(t, k)
	assert.Equal(t, 2, p.polls)
	assert.Equal(t, TaskBlocked, task.State())
	inst, err := k.Module().Instance(task.Space())
	require.NoError(t, err)
	assert.True(t, inst.Executor().IsEmpty())

	err = k.OnUserInterrupt(99, cid)
	assert.Equal(t, errutil.CodeNotFound, errutil.CodeOf(err))
}

func TestInterruptWhileRunning(t *testing.T) {
	k := boot(t)
	task, err := k.CreateProcess("p")
	require.NoError(t, err)
	ready(t, k, task, 1)
	choice, ok := k.Scheduler().Fetch(0)
	require.True(t, ok)
	require.Same(t, task, choice.Task)

	k.notify(task)
	assert.Equal(t, TaskRunning, task.State())
	require.NoError(t, task.Ops().UpdatePrio(process.NoWork))
	k.afterSwitch(task)
	assert.Equal(t, TaskReady, task.State())
	assert.True(t, k.Scheduler().Queued(task))
}

func TestOnTimerPreempts(t *testing.T) {
	k := boot(t)
	low, err := k.CreateProcess("low")
	require.NoError(t, err)
	high, err := k.CreateProcess("high")
	require.NoError(t, err)
	ready(t, k, low, 5)
	choice, ok := k.Scheduler().Fetch(0)
	require.True(t, ok)
	h := k.Harts()[0]
	h.current.Store(choice.Task)

	k.OnTimer(0)
	assert.False(t, h.Preempted())

	require.NoError(t, high.Ops().UpdatePrio(1))
	assert.Equal(t, uint64(1), k.Mirror().Load(high.Pid()))
	k.OnTimer(0)
	assert.True(t, h.Preempted())
	assert.False(t, h.Preempted())
}

func TestProcessLifecycle(t *testing.T) {
	c := testConf()
	c.MaxProcs = 2
	k, err := Boot(c, BootOptions{})
	require.NoError(t, err)

	a, err := k.CreateProcess("a")
	require.NoError(t, err)
	_, err = k.CreateProcess("b")
	require.NoError(t, err)
	_, err = k.CreateProcess("c")
	assert.Error(t, err)
	assert.Equal(t, 2, k.NumProcesses())
	assert.Equal(t, 3, k.Module().NumInstances())

	ready(t, k, a, 2)
	require.NoError(t, k.Exit(a.Pid()))
	assert.Equal(t, TaskExited, a.State())
	assert.False(t, k.Scheduler().Queued(a))
	assert.Equal(t, 2, k.Module().NumInstances())
	_, ok := k.Process(a.Pid())
	assert.False(t, ok)

	err = k.Exit(a.Pid())
	assert.Equal(t, errutil.CodeNotFound, errutil.CodeOf(err))
	_, err = k.Submit(a.Pid(), process.Once(func() {}), 0)
	assert.Equal(t, errutil.CodeNotFound, errutil.CodeOf(err))
}

func TestQueuedTaskMovesToUrgentLevel(t *testing.T) {
	k := boot(t)
	a, err := k.CreateProcess("a")
	require.NoError(t, err)
	b, err := k.CreateProcess("b")
	require.NoError(t, err)
	ready(t, k, a, 5)
	ready(t, k, b, 3)

	_, err = k.Submit(a.Pid(), process.Once(func() {}), 0)
	require.NoError(t, err)
	assert.Equal(t, 0, a.Level())
	assert.Equal(t, 0, k.Scheduler().TaskCount(5))
	assert.Equal(t, 1, k.Scheduler().TaskCount(0))

	choice, ok := k.Scheduler().Fetch(0)
	require.True(t, ok)
	assert.Same(t, a, choice.Task)
	assert.Equal(t, 0, choice.Level)

	// running tasks are not queued again
	require.NoError(t, k.Scheduler().AddTask(a))
	assert.False(t, k.Scheduler().Queued(a))
	choice, ok = k.Scheduler().Fetch(0)
	require.True(t, ok)
	assert.Same(t, b, choice.Task)
}

func TestPidReuse(t *testing.T) {
	c := testConf()
	c.MaxProcs = 2
	k, err := Boot(c, BootOptions{})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		a, err := k.CreateProcess("a")
		require.NoError(t, err, "round %d", i)
		b, err := k.CreateProcess("b")
		require.NoError(t, err, "round %d", i)
		assert.Equal(t, 0, a.Pid())
		assert.Equal(t, 1, b.Pid())
		require.NoError(t, k.Exit(a.Pid()))
		require.NoError(t, k.Exit(b.Pid()))
		assert.Equal(t, 0, k.NumProcesses())
	}

	a, err := k.CreateProcess("a")
	require.NoError(t, err)
	b, err := k.CreateProcess("b")
	require.NoError(t, err)
	require.NoError(t, b.Ops().UpdatePrio(1))
	require.NoError(t, k.Exit(a.Pid()))
	c2, err := k.CreateProcess("c")
	require.NoError(t, err)
	assert.Equal(t, a.Pid(), c2.Pid())
	assert.Equal(t, process.NoWork, k.Mirror().Load(c2.Pid()))
	assert.Equal(t, uint64(1), k.Mirror().Load(b.Pid()))
	assert.Equal(t, 3, k.Module().NumInstances())
}

// handoff parks on its first poll and passes its waker out.
type handoff struct {
	polls  atomic.Int32
	wakers chan *process.Waker
}

func (h *handoff) Poll(w *process.Waker) process.PollState {
	if h.polls.Inc() == 1 {
		h.wakers <- w
		return process.Pending
	}
	return process.Ready
}

func TestWakerWakesBlockedTask(t *testing.T) {
	k := boot(t)
	task, err := k.CreateProcess("p")
	require.NoError(t, err)

	c, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- k.Serve(c)
	}()
	defer func() {
		cancel()
		<-done
	}()

	f := &handoff{wakers: make(chan *process.Waker, 1)}
	_, err = k.Submit(task.Pid(), f, 2)
	require.NoError(t, err)
	var w *process.Waker
	select {
	case w = <-f.wakers:
	case <-time.After(5 * time.Second):
		t.Fatal("future never polled")
	}
	require.Eventually(t, func() bool {
		return task.State() == TaskBlocked
	}, 5*time.Second, time.Millisecond)
	assert.Equal(t, process.NoWork, k.Mirror().Load(task.Pid()))

	require.NoError(t, w.Wake())
	require.Eventually(t, func() bool {
		return f.polls.Load() == 2
	}, 5*time.Second, time.Millisecond)
	require.Eventually(t, func() bool {
		return task.State() == TaskBlocked
	}, 5*time.Second, time.Millisecond)
	inst, err := k.Module().Instance(task.Space())
	require.NoError(t, err)
	assert.True(t, inst.Executor().IsEmpty())
}

func TestSampleDepth(t *testing.T) {
	m := metrics.New()
	k, err := Boot(testConf(), BootOptions{Metrics: m})
	require.NoError(t, err)
	task, err := k.CreateProcess("p")
	require.NoError(t, err)
	_, err = k.Submit(task.Pid(), process.Once(func() {}), 1)
	require.NoError(t, err)
	_, err = k.Spawn(process.Once(func() {}), 2, process.KernelSyscall)
	require.NoError(t, err)

	k.sampleDepth()
	n, err := testutil.GatherAndCount(m.Registry(), "silvernode_sched_queue_depth")
	require.NoError(t, err)
	assert.Equal(t, 2*k.Conf().PrioNum, n)
}

func TestServe(t *testing.T) {
	k := boot(t)
	var count atomic.Int32
	const perProc = 20

	var tasks []*Task
	for _, name := range []string{"a", "b"} {
		task, err := k.CreateProcess(name)
		require.NoError(t, err)
		tasks = append(tasks, task)
	}

	c, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- k.Serve(c)
	}()

	for i := 0; i < perProc; i++ {
		for _, task := range tasks {
			_, err := k.Submit(task.Pid(), process.Once(func() { count.Inc() }), i%8)
			require.NoError(t, err)
		}
		_, err := k.Spawn(process.Once(func() { count.Inc() }), i%8, process.KernelSyscall)
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		return count.Load() == 3*perProc
	}, 5*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop")
	}
	for _, h := range k.Harts() {
		assert.Greater(t, h.Rounds(), uint64(0))
	}
}
