package process

import "math"

// NoWork is published when an executor has nothing ready or running.
const NoWork uint64 = math.MaxUint64

// Observer receives scheduling events, e.g. for metrics. Calls happen on the
// hot path and must not block.
type Observer interface {
	Spawned(level int)
	Fetched(level int)
	Woken(level int)
	Completed(level int)
	Rejected(level int)
}

// Publisher receives the executor's highest active priority, or NoWork,
// whenever it may have changed.
type Publisher interface {
	PublishPriority(prio uint64)
}

type PublisherFunc func(prio uint64)

func (f PublisherFunc) PublishPriority(prio uint64) {
	f(prio)
}

type nopObserver struct{}

func (nopObserver) Spawned(int)   {}
func (nopObserver) Fetched(int)   {}
func (nopObserver) Woken(int)     {}
func (nopObserver) Completed(int) {}
func (nopObserver) Rejected(int)  {}
