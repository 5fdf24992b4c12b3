package process

import (
	"sync"

	"go.uber.org/atomic"
)

type coState uint32

const (
	stateReady coState = iota
	stateRunning
	stateNotified // woken while running
	statePending
	stateDone
)

// Coroutine is shared by the ready queue, the registry and the current slot
// of the thread running it. state, prio and slots change only under mu;
// state is additionally readable without it.
type Coroutine struct {
	id     CoroutineId
	kind   CoroutineKind
	future Future
	waker  *Waker

	mu    sync.Mutex
	prio  int
	slots uint64 // levels whose queue holds an entry of this coroutine
	state atomic.Uint32
}

func newCoroutine(e *Executor, id CoroutineId, future Future, prio int, kind CoroutineKind) *Coroutine {
	c := new(Coroutine)
	c.id = id
	c.kind = kind
	c.future = future
	c.prio = prio
	c.slots = uint64(1) << uint(prio)
	c.waker = &Waker{id: id, executor: e}
	c.state.Store(uint32(stateReady))
	return c
}

func (c *Coroutine) Id() CoroutineId {
	return c.id
}

func (c *Coroutine) Kind() CoroutineKind {
	return c.kind
}

func (c *Coroutine) Priority() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.prio
}

func (c *Coroutine) Done() bool {
	return c.loadState() == stateDone
}

func (c *Coroutine) loadState() coState {
	return coState(c.state.Load())
}

func (c *Coroutine) setState(s coState) {
	c.state.Store(uint32(s))
}

// entry is what the ready queues hold. A coroutine has at most one entry
// per level; only the one at its current priority is live, the others were
// left behind by a reprio and are dropped on pop.
type entry struct {
	co *Coroutine
}
