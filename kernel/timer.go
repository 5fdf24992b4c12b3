package kernel

import (
	"time"

	"github.com/silvernodes/silvernode-sched/utils/errutil"
	"go.uber.org/atomic"
)

// Timer fires a trap handler periodically, the way the timer interrupt
// re-enters the scheduler on every hart.
type Timer struct {
	terminated atomic.Bool
	stop       chan struct{}
	stopped    chan struct{}
}

func cotimer() *Timer {
	s := new(Timer)
	s.stop = make(chan struct{})
	s.stopped = make(chan struct{})
	return s
}

// Schedule runs task every interval ms after an initial delay, repeat times
// (0 = until cancelled), then calls callback. With interval <= 0 the task
// runs once.
func Schedule(task func(), interval int, repeat int, delay int, callback func()) *Timer {
	s := cotimer()
	go s.schedule(task, interval, repeat, delay, callback)
	return s
}

func (s *Timer) schedule(task func(), interval int, repeat int, delay int, callback func()) {
	defer close(s.stopped)
	if interval <= 0 {
		repeat = 1
	}
	if delay > 0 && !s.sleep(delay) {
		return
	}
	for num := 0; ; {
		errutil.Try(task, nil)
		if repeat > 0 {
			num++
			if num >= repeat {
				if callback != nil {
					callback()
				}
				return
			}
		}
		if !s.sleep(interval) {
			return
		}
	}
}

// sleep waits ms milliseconds and reports false if the timer was cancelled
// meanwhile.
func (s *Timer) sleep(ms int) bool {
	t := time.NewTimer(time.Millisecond * time.Duration(ms))
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-s.stop:
		return false
	}
}

func (s *Timer) Cancel() {
	if s.terminated.CAS(false, true) {
		close(s.stop)
	}
}

// Wait blocks until the timer goroutine has exited.
func (s *Timer) Wait() {
	<-s.stopped
}
