package process

import (
	"go.uber.org/atomic"
)

type slot[T any] struct {
	seq atomic.Uint64
	val T
}

// Queue is a bounded lock-free multi-producer multi-consumer ring. Each slot
// carries a sequence number: a producer may fill slot pos%size only when its
// sequence equals pos, a consumer may drain it only when it equals pos+1.
type Queue[T any] struct {
	size  uint64
	slots []slot[T]
	head  atomic.Uint64
	tail  atomic.Uint64
}

func NewQueue[T any](capacity int) *Queue[T] {
	if capacity <= 0 {
		capacity = 1
	}
	q := new(Queue[T])
	q.size = uint64(capacity)
	q.slots = make([]slot[T], capacity)
	for i := range q.slots {
		q.slots[i].seq.Store(uint64(i))
	}
	return q
}

// Push never blocks; it reports false when the ring is full.
func (q *Queue[T]) Push(v T) bool {
	pos := q.tail.Load()
	for {
		s := &q.slots[pos%q.size]
		seq := s.seq.Load()
		dif := int64(seq - pos)
		if dif == 0 {
			if q.tail.CAS(pos, pos+1) {
				s.val = v
				s.seq.Store(pos + 1)
				return true
			}
			pos = q.tail.Load()
		} else if dif < 0 {
			return false
		} else {
			pos = q.tail.Load()
		}
	}
}

func (q *Queue[T]) Pop() (T, bool) {
	var zero T
	pos := q.head.Load()
	for {
		s := &q.slots[pos%q.size]
		seq := s.seq.Load()
		dif := int64(seq - (pos + 1))
		if dif == 0 {
			if q.head.CAS(pos, pos+1) {
				v := s.val
				s.val = zero
				s.seq.Store(pos + q.size)
				return v, true
			}
			pos = q.head.Load()
		} else if dif < 0 {
			return zero, false
		} else {
			pos = q.head.Load()
		}
	}
}

// Len is exact when the queue is quiescent and approximate otherwise.
func (q *Queue[T]) Len() int {
	tail := q.tail.Load()
	head := q.head.Load()
	if tail <= head {
		return 0
	}
	n := tail - head
	if n > q.size {
		n = q.size
	}
	return int(n)
}

func (q *Queue[T]) Cap() int {
	return int(q.size)
}
