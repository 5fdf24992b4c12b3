package process

import (
	"fmt"
	"math/bits"

	"github.com/silvernodes/silvernode-sched/log"
	"github.com/silvernodes/silvernode-sched/utils/errutil"
	"github.com/silvernodes/silvernode-sched/utils/stlutil"
	"go.uber.org/atomic"
)

var (
	ErrQueueFull     = errutil.NewWithCode(errutil.CodeQueueFull, "ready queue full")
	ErrBadPriority   = errutil.NewWithCode(errutil.CodeBadPriority, "priority out of range")
	ErrBadThread     = errutil.NewWithCode(errutil.CodeBadThread, "thread index out of range")
	ErrNoVirtualCore = errutil.NewWithCode(errutil.CodeNoVirtualCore, "no free virtual core")
	ErrNotFound      = errutil.NewWithCode(errutil.CodeNotFound, "coroutine not found")
)

type Options struct {
	PrioNum       int
	QueueCapacity int
	MaxThreads    int
	Bitmap        *Bitmap
	Generator     *Generator
	Observer      Observer
	Logger        *log.Logger
}

// Executor is the per address space coroutine runtime. Every live coroutine
// is registered in tasks and, at any quiescent point, is in exactly one of
// a ready queue, the pending set, or a currents slot.
type Executor struct {
	prioNum   int
	queues    []*Queue[entry]
	tasks     *stlutil.Map[CoroutineId, *Coroutine]
	currents  []atomic.Uint64
	cores     atomic.Int32
	bitmap    *Bitmap
	gen       *Generator
	observer  Observer
	publisher Publisher
	log       *log.Logger
}

func NewExecutor(opts Options) (*Executor, error) {
	if opts.PrioNum <= 0 || opts.PrioNum > 64 {
		return nil, errutil.Extendf(ErrBadPriority, "prio num %d", opts.PrioNum)
	}
	if opts.QueueCapacity <= 0 {
		return nil, errutil.NewWithCode(errutil.CodeBadConf, fmt.Sprintf("queue capacity %d", opts.QueueCapacity))
	}
	if opts.MaxThreads <= 0 {
		return nil, errutil.Extendf(ErrBadThread, "max threads %d", opts.MaxThreads)
	}
	e := new(Executor)
	e.prioNum = opts.PrioNum
	e.queues = make([]*Queue[entry], opts.PrioNum)
	for i := range e.queues {
		e.queues[i] = NewQueue[entry](opts.QueueCapacity)
	}
	e.tasks = stlutil.NewMap[CoroutineId, *Coroutine]()
	e.currents = make([]atomic.Uint64, opts.MaxThreads)
	e.bitmap = opts.Bitmap
	if e.bitmap == nil {
		e.bitmap = NewBitmap(nil, opts.PrioNum)
	}
	e.gen = opts.Generator
	if e.gen == nil {
		e.gen = _gen
	}
	e.observer = opts.Observer
	if e.observer == nil {
		e.observer = nopObserver{}
	}
	e.log = opts.Logger
	if e.log == nil {
		e.log = log.Discard()
	}
	return e, nil
}

// SetPublisher must be called before the executor is shared.
func (e *Executor) SetPublisher(p Publisher) {
	e.publisher = p
}

func (e *Executor) PrioNum() int {
	return e.prioNum
}

func (e *Executor) Bitmap() *Bitmap {
	return e.bitmap
}

func (e *Executor) checkPrio(prio int) error {
	if prio < 0 || prio >= e.prioNum {
		return errutil.Extendf(ErrBadPriority, "priority %d not in [0, %d)", prio, e.prioNum)
	}
	return nil
}

func (e *Executor) checkThread(tid int) error {
	if tid < 0 || tid >= int(e.cores.Load()) {
		return errutil.Extendf(ErrBadThread, "thread %d not in [0, %d)", tid, e.cores.Load())
	}
	return nil
}

// AddVirtualCore registers one more thread slot and returns its index.
func (e *Executor) AddVirtualCore() (int, error) {
	for {
		n := e.cores.Load()
		if int(n) >= len(e.currents) {
			return -1, errutil.Extendf(ErrNoVirtualCore, "all %d slots taken", len(e.currents))
		}
		if e.cores.CAS(n, n+1) {
			e.log.Debug("virtual core %d added", n)
			return int(n), nil
		}
	}
}

func (e *Executor) VirtualCores() int {
	return int(e.cores.Load())
}

// Spawn registers the future and makes it visible to Fetch at once. A full
// level is reported as ErrQueueFull and leaves nothing registered.
func (e *Executor) Spawn(future Future, prio int, kind CoroutineKind) (CoroutineId, error) {
	if err := e.checkPrio(prio); err != nil {
		return 0, err
	}
	if future == nil {
		return 0, errutil.New("spawn: nil future")
	}
	id, err := e.gen.TryGenerate()
	if err != nil {
		return 0, err
	}
	c := newCoroutine(e, id, future, prio, kind)
	e.tasks.Set(id, c)
	if !e.queues[prio].Push(entry{co: c}) {
		e.tasks.Remove(id)
		e.observer.Rejected(prio)
		return 0, errutil.Extendf(ErrQueueFull, "spawn at level %d", prio)
	}
	e.bitmap.Set(prio)
	e.observer.Spawned(prio)
	return id, nil
}

// FetchLevel pops at most one runnable coroutine from one level and records
// it as running on tid. The bitmap is left to the caller.
func (e *Executor) FetchLevel(level int, tid int) *Coroutine {
	q := e.queues[level]
	for {
		en, ok := q.Pop()
		if !ok {
			return nil
		}
		c := en.co
		c.mu.Lock()
		c.slots &^= uint64(1) << uint(level)
		if c.prio != level || c.loadState() != stateReady {
			// left behind by a reprio
			c.mu.Unlock()
			continue
		}
		c.setState(stateRunning)
		c.mu.Unlock()
		e.currents[tid].Store(uint64(c.id))
		e.observer.Fetched(level)
		return c
	}
}

// Fetch scans levels from most to least urgent and returns the first
// runnable coroutine, or nil if every queue is empty. Levels found empty get
// their bitmap bit cleared.
func (e *Executor) Fetch(tid int) (*Coroutine, error) {
	if err := e.checkThread(tid); err != nil {
		return nil, err
	}
	for level := 0; level < e.prioNum; level++ {
		c := e.FetchLevel(level, tid)
		if c == nil {
			e.clearIfEmpty(level)
			continue
		}
		if e.queues[level].Len() > 0 {
			e.bitmap.Set(level)
		}
		e.publish()
		return c, nil
	}
	return nil, nil
}

// clearIfEmpty clears a level's bit and restores it if a concurrent push
// slipped in between the observation and the clear.
func (e *Executor) clearIfEmpty(level int) {
	if !e.bitmap.Test(level) {
		return
	}
	e.bitmap.Clear(level)
	if e.queues[level].Len() > 0 {
		e.bitmap.Set(level)
	}
}

// ExecuteOnce polls c a single time on thread tid. A completed coroutine is
// dropped from the registry; a pending one stays out of every queue until
// woken, or is re-queued at once if it was woken while running.
func (e *Executor) ExecuteOnce(tid int, c *Coroutine) (PollState, error) {
	if err := e.checkThread(tid); err != nil {
		return Pending, err
	}
	state := Pending
	errutil.Try(func() {
		state = c.future.Poll(c.waker)
	}, func(err error) {
		e.log.Error("%s panicked, retiring it: %v", c.id, err)
		state = Ready
	})
	e.currents[tid].CAS(uint64(c.id), 0)

	c.mu.Lock()
	if state == Ready {
		c.setState(stateDone)
		prio := c.prio
		c.mu.Unlock()
		e.tasks.Remove(c.id)
		e.observer.Completed(prio)
		e.publish()
		return Ready, nil
	}
	if c.loadState() != stateNotified {
		c.setState(statePending)
		c.mu.Unlock()
		return Pending, nil
	}
	err := e.requeueLocked(c)
	c.mu.Unlock()
	if err == nil {
		e.publish()
	}
	return Pending, err
}

// enqueueLocked makes c reachable from its current level. An entry it left
// there earlier is reused, so a coroutine never holds more than one slot
// per level. c.mu is held.
func (e *Executor) enqueueLocked(c *Coroutine) bool {
	bit := uint64(1) << uint(c.prio)
	if c.slots&bit == 0 {
		if !e.queues[c.prio].Push(entry{co: c}) {
			return false
		}
		c.slots |= bit
	}
	e.bitmap.Set(c.prio)
	return true
}

// requeueLocked moves a coroutine back into its level's queue. c.mu is held.
func (e *Executor) requeueLocked(c *Coroutine) error {
	c.setState(stateReady)
	if !e.enqueueLocked(c) {
		c.setState(statePending)
		e.observer.Rejected(c.prio)
		return errutil.Extendf(ErrQueueFull, "wake %s at level %d", c.id, c.prio)
	}
	e.observer.Woken(c.prio)
	return nil
}

// Wake re-enqueues a pending coroutine at its current priority and
// republishes. Waking an id that is unknown or already finished does
// nothing.
func (e *Executor) Wake(cid CoroutineId) error {
	c, ok := e.tasks.Get(cid)
	if !ok {
		return nil
	}
	c.mu.Lock()
	switch c.loadState() {
	case statePending:
		err := e.requeueLocked(c)
		c.mu.Unlock()
		if err != nil {
			return err
		}
		e.publish()
		return nil
	case stateRunning:
		c.setState(stateNotified)
	}
	c.mu.Unlock()
	return nil
}

// Reprio changes a coroutine's priority. A queued coroutine is re-queued at
// the new level right away, reusing an entry it already left there; the
// old level's entry becomes stale and is skipped when popped.
func (e *Executor) Reprio(cid CoroutineId, prio int) error {
	if err := e.checkPrio(prio); err != nil {
		return err
	}
	c, ok := e.tasks.Get(cid)
	if !ok {
		return errutil.Extendf(ErrNotFound, "reprio %s", cid)
	}
	c.mu.Lock()
	if c.prio == prio {
		c.mu.Unlock()
		return nil
	}
	old := c.prio
	if c.loadState() == stateReady {
		c.prio = prio
		if !e.enqueueLocked(c) {
			c.prio = old
			c.mu.Unlock()
			e.observer.Rejected(prio)
			return errutil.Extendf(ErrQueueFull, "reprio %s to level %d", cid, prio)
		}
	} else {
		c.prio = prio
	}
	c.mu.Unlock()
	e.publish()
	return nil
}

func (e *Executor) Current(tid int) (CoroutineId, error) {
	if err := e.checkThread(tid); err != nil {
		return 0, err
	}
	return CoroutineId(e.currents[tid].Load()), nil
}

func (e *Executor) Get(cid CoroutineId) (*Coroutine, bool) {
	return e.tasks.Get(cid)
}

// IsEmpty reports whether no coroutine is live. Queues only ever hold
// registered coroutines or stale entries of them.
func (e *Executor) IsEmpty() bool {
	return e.tasks.Len() == 0
}

// HighestActive is the most urgent level that is ready or currently
// executing. Bits of levels found empty on the way are cleared.
func (e *Executor) HighestActive() (int, bool) {
	best, ok := e.lowestReady()
	for i := range e.currents {
		cid := CoroutineId(e.currents[i].Load())
		if cid == 0 {
			continue
		}
		if c, exist := e.tasks.Get(cid); exist {
			if p := c.Priority(); !ok || p < best {
				best, ok = p, true
			}
		}
	}
	return best, ok
}

func (e *Executor) lowestReady() (int, bool) {
	set := e.bitmap.Bits()
	for set != 0 {
		level := bits.TrailingZeros64(set)
		set &^= uint64(1) << uint(level)
		if level >= e.prioNum {
			continue
		}
		if e.queues[level].Len() > 0 {
			return level, true
		}
		e.clearIfEmpty(level)
		if e.bitmap.Test(level) {
			return level, true
		}
	}
	return 0, false
}

func (e *Executor) publish() {
	if e.publisher == nil {
		return
	}
	if prio, ok := e.HighestActive(); ok {
		e.publisher.PublishPriority(uint64(prio))
	} else {
		e.publisher.PublishPriority(NoWork)
	}
}

// Publish pushes the current highest active priority to the publisher.
func (e *Executor) Publish() {
	e.publish()
}

type Stats struct {
	Queued    int // queue entries, stale ones included
	Ready     int
	Pending   int
	Executing int
	Live      int
}

// Stats is only consistent while no other goroutine uses the executor.
func (e *Executor) Stats() Stats {
	var s Stats
	for _, q := range e.queues {
		s.Queued += q.Len()
	}
	for i := range e.currents {
		if e.currents[i].Load() != 0 {
			s.Executing++
		}
	}
	e.tasks.ForEach(func(_ CoroutineId, c *Coroutine) {
		s.Live++
		switch c.loadState() {
		case stateReady:
			s.Ready++
		case statePending:
			s.Pending++
		}
	})
	return s
}

func (e *Executor) QueueLen(level int) int {
	if level < 0 || level >= e.prioNum {
		return 0
	}
	return e.queues[level].Len()
}
