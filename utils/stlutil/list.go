package stlutil

import (
	"sync"
)

// List is a locked FIFO-capable slice. PushBack and PopFront give the
// round-robin order the per-level task lists rely on.
type List[T comparable] struct {
	array []T
	sync.RWMutex
}

func NewList[T comparable](capacity int) *List[T] {
	list := List[T]{}
	list.array = make([]T, 0, capacity)
	return &list
}

func (l *List[T]) PushBack(item T) {
	l.Lock()
	defer l.Unlock()

	l.array = append(l.array, item)
}

func (l *List[T]) PopFront() (T, bool) {
	l.Lock()
	defer l.Unlock()

	var zero T
	if len(l.array) == 0 {
		return zero, false
	}
	item := l.array[0]
	l.array[0] = zero
	l.array = l.array[1:]
	return item, true
}

func (l *List[T]) Remove(item T) bool {
	l.Lock()
	defer l.Unlock()

	for index, one := range l.array {
		if one == item {
			l.array = append(l.array[:index], l.array[index+1:]...)
			return true
		}
	}
	return false
}

func (l *List[T]) IndexOf(item T) int {
	l.RLock()
	defer l.RUnlock()

	for index, one := range l.array {
		if one == item {
			return index
		}
	}
	return -1
}

func (l *List[T]) Contains(item T) bool {
	return l.IndexOf(item) >= 0
}

func (l *List[T]) Len() int {
	l.RLock()
	defer l.RUnlock()

	return len(l.array)
}
