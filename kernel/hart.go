package kernel

import (
	"context"
	"sync"
	"time"

	"github.com/silvernodes/silvernode-sched/log"
	"github.com/silvernodes/silvernode-sched/process"
	"go.uber.org/atomic"
)

// Switcher performs the full context switch into a process task and returns
// when the task gives the hart back.
type Switcher interface {
	Switch(h *Hart, t *Task) error
}

type SwitcherFunc func(h *Hart, t *Task) error

func (f SwitcherFunc) Switch(h *Hart, t *Task) error {
	return f(h, t)
}

// waitList holds the ids of harts parked with nothing to run.
type waitList struct {
	harts []int
	sync.Mutex
}

func (w *waitList) park(id int) {
	w.Lock()
	defer w.Unlock()

	for _, h := range w.harts {
		if h == id {
			return
		}
	}
	w.harts = append(w.harts, id)
}

func (w *waitList) unpark(id int) {
	w.Lock()
	defer w.Unlock()

	for i, h := range w.harts {
		if h == id {
			w.harts = append(w.harts[:i], w.harts[i+1:]...)
			return
		}
	}
}

func (w *waitList) pop() (int, bool) {
	w.Lock()
	defer w.Unlock()

	if len(w.harts) == 0 {
		return -1, false
	}
	id := w.harts[0]
	w.harts = w.harts[1:]
	return id, true
}

func (w *waitList) len() int {
	w.Lock()
	defer w.Unlock()

	return len(w.harts)
}

type Hart struct {
	id      int
	kernel  *Kernel
	log     *log.Logger
	kick    chan struct{}
	current atomic.Value // *Task
	preempt atomic.Bool
	rounds  atomic.Uint64
}

func cohart(id int, k *Kernel) *Hart {
	h := new(Hart)
	h.id = id
	h.kernel = k
	h.log = k.log.Sub("hart").With("hart", id)
	h.kick = make(chan struct{}, 1)
	h.current.Store((*Task)(nil))
	return h
}

func (h *Hart) Id() int {
	return h.id
}

// Current is the task the hart has switched to, or nil.
func (h *Hart) Current() *Task {
	return h.current.Load().(*Task)
}

// Preempted reports and clears a pending preemption request.
func (h *Hart) Preempted() bool {
	return h.preempt.Swap(false)
}

func (h *Hart) Rounds() uint64 {
	return h.rounds.Load()
}

func (h *Hart) wake() {
	select {
	case h.kick <- struct{}{}:
	default:
	}
}

// Run is the idle loop. The scheduler lock is held only inside Fetch; the
// task switch and the coroutine poll happen without it.
func (h *Hart) Run(ctx context.Context) error {
	k := h.kernel
	idle := k.conf.TimerInterval()
	if idle <= 0 {
		idle = 10 * time.Millisecond
	}
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		h.rounds.Inc()
		choice, ok := k.sched.Fetch(h.id)
		if !ok {
			k.waiting.park(h.id)
			// re-check after parking so an add racing with the park is not lost
			if choice, ok = k.sched.Fetch(h.id); !ok {
				k.metrics.IdleRound(h.id)
				select {
				case <-ctx.Done():
					k.waiting.unpark(h.id)
					return nil
				case <-h.kick:
				case <-time.After(idle):
				}
				k.waiting.unpark(h.id)
				continue
			}
			k.waiting.unpark(h.id)
		}
		if err := h.dispatch(choice); err != nil {
			h.log.Error("dispatch: %v", err)
		}
	}
}

func (h *Hart) dispatch(choice Choice) error {
	k := h.kernel
	if choice.IsTask() {
		t := choice.Task
		h.current.Store(t)
		h.preempt.Store(false)
		k.metrics.TaskSwitched(h.id)
		err := k.switcher.Switch(h, t)
		h.current.Store((*Task)(nil))
		k.afterSwitch(t)
		return err
	}
	c := choice.Coroutine
	state, err := k.exec.ExecuteOnce(h.id, c)
	if err != nil {
		return err
	}
	if state == process.Pending && c.Kind() == process.KernelScheduler {
		return k.sched.Wake(c.Id())
	}
	return nil
}

// userSwitcher enters the process and runs its user run loop for one time
// slice, in chunks so a timer preemption request is honoured between them.
type userSwitcher struct {
	chunk int
}

func (u *userSwitcher) Switch(h *Hart, t *Task) error {
	left := t.Slice()
	for left > 0 {
		chunk := u.chunk
		if chunk > left {
			chunk = left
		}
		n, err := t.Ops().PollUser(t.Tid(), chunk)
		if err != nil {
			return err
		}
		left -= chunk
		if n < chunk || h.Preempted() {
			break
		}
	}
	return nil
}
