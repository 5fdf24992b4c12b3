package shm

import (
	"go.uber.org/atomic"
)

// Word is a translated, pinned control word.
type Word struct {
	va uint64
	w  *atomic.Uint64
}

// NewLocalWord returns a word not backed by any space.
func NewLocalWord() *Word {
	return &Word{w: new(atomic.Uint64)}
}

func (w *Word) Addr() uint64 {
	return w.va
}

func (w *Word) Load() uint64 {
	return w.w.Load()
}

func (w *Word) Store(v uint64) {
	w.w.Store(v)
}

func (w *Word) CAS(old, new uint64) bool {
	return w.w.CAS(old, new)
}

func (w *Word) Or(mask uint64) uint64 {
	for {
		old := w.w.Load()
		if old&mask == mask || w.w.CAS(old, old|mask) {
			return old
		}
	}
}

func (w *Word) AndNot(mask uint64) uint64 {
	for {
		old := w.w.Load()
		if old&mask == 0 || w.w.CAS(old, old&^mask) {
			return old
		}
	}
}
