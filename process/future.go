package process

type PollState uint8

const (
	Pending PollState = iota
	Ready
)

func (p PollState) String() string {
	if p == Ready {
		return "Ready"
	}
	return "Pending"
}

// Future is advanced one step per Poll. A Future that returns Pending must
// have arranged for w.Wake to be called, unless it is a KernelScheduler
// coroutine, which the run loop re-queues by itself.
type Future interface {
	Poll(w *Waker) PollState
}

type FutureFunc func(w *Waker) PollState

func (f FutureFunc) Poll(w *Waker) PollState {
	return f(w)
}

// Once wraps a plain function as a future that completes on its first poll.
func Once(task func()) Future {
	return FutureFunc(func(*Waker) PollState {
		task()
		return Ready
	})
}

// Waker re-enqueues its coroutine on the executor that owns it.
type Waker struct {
	id       CoroutineId
	executor *Executor
}

func (w *Waker) Id() CoroutineId {
	return w.id
}

func (w *Waker) Wake() error {
	return w.executor.Wake(w.id)
}
