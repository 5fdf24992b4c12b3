package kernel

import (
	"fmt"

	"github.com/silvernodes/silvernode-sched/process"
	"github.com/silvernodes/silvernode-sched/utils/errutil"
)

// OnTimer is the timer trap of one hart. If some other process published
// more urgent work than the task the hart is running, the task is asked to
// give the hart back at its next chunk boundary. An idle hart is kicked so
// that it re-fetches.
func (k *Kernel) OnTimer(hart int) {
	if hart < 0 || hart >= len(k.harts) {
		return
	}
	h := k.harts[hart]
	t := h.Current()
	if t == nil {
		if k.sched.Bitmap().Bits() != 0 {
			h.wake()
		}
		return
	}
	pid, prio, ok := k.mirror.Best()
	if !ok || pid == t.Pid() {
		return
	}
	if prio < uint64(t.Level()) {
		h.preempt.Store(true)
		h.log.Debug("preempt %s for pid %d at %d", t, pid, prio)
	}
}

// OnUserInterrupt delivers a wake for coroutine cid to process pid and makes
// its task runnable.
func (k *Kernel) OnUserInterrupt(pid int, cid process.CoroutineId) error {
	t, ok := k.procs.Get(pid)
	if !ok {
		return errutil.NewWithCode(errutil.CodeNotFound, fmt.Sprintf("user interrupt for unknown process %d", pid))
	}
	if err := t.Ops().Wake(cid); err != nil {
		return err
	}
	k.notify(t)
	return nil
}
