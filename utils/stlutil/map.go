package stlutil

import (
	"sync"
)

// Map is a mutex guarded map. Every method holds the lock only for the
// lookup or insertion itself, never across a caller supplied callback
// except ForEach.
type Map[K comparable, V any] struct {
	_map map[K]V
	sync.RWMutex
}

func NewMap[K comparable, V any]() *Map[K, V] {
	dict := Map[K, V]{}
	dict._map = make(map[K]V)
	return &dict
}

func (d *Map[K, V]) Remove(key K) bool {
	d.Lock()
	defer d.Unlock()

	_, exist := d._map[key]
	if exist {
		delete(d._map, key)
		return true
	}
	return false
}

func (d *Map[K, V]) Take(key K) (V, bool) {
	d.Lock()
	defer d.Unlock()

	v, exist := d._map[key]
	if exist {
		delete(d._map, key)
	}
	return v, exist
}

func (d *Map[K, V]) Set(key K, value V) {
	d.Lock()
	defer d.Unlock()

	d._map[key] = value
}

func (d *Map[K, V]) Get(key K) (V, bool) {
	d.RLock()
	defer d.RUnlock()

	v, exist := d._map[key]
	return v, exist
}

func (d *Map[K, V]) Len() int {
	d.RLock()
	defer d.RUnlock()

	return len(d._map)
}

func (d *Map[K, V]) ForEach(fun func(K, V)) {
	d.RLock()
	defer d.RUnlock()

	for k, v := range d._map {
		fun(k, v)
	}
}
