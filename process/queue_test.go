package process

import (
	"sync"
	"testing"

	"github.com/silvernodes/silvernode-sched/shm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueBounded(t *testing.T) {
	q := NewQueue[int](3)
	for i := 0; i < 3; i++ {
		require.True(t, q.Push(i))
	}
	assert.False(t, q.Push(99))
	assert.Equal(t, 3, q.Len())

	for want := 0; want < 3; want++ {
		v, ok := q.Pop()
		require.True(t, ok)
		assert.Equal(t, want, v)
	}
	_, ok := q.Pop()
	assert.False(t, ok)

	// wraps around the ring
	for i := 10; i < 16; i++ {
		require.True(t, q.Push(i))
		v, ok := q.Pop()
		require.True(t, ok)
		assert.Equal(t, i, v)
	}
	assert.Equal(t, 0, q.Len())
}

func TestQueueConcurrent(t *testing.T) {
	const producers, each = 4, 500
	q := NewQueue[int](64)
	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := make(map[int]int)
	count := 0
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < each; i++ {
				for !q.Push(p*each + i) {
				}
			}
		}(p)
	}
	total := producers * each
	consumed := make(chan struct{})
	for c := 0; c < 2; c++ {
		go func() {
			for {
				mu.Lock()
				n := count
				mu.Unlock()
				if n >= total {
					consumed <- struct{}{}
					return
				}
				if v, ok := q.Pop(); ok {
					mu.Lock()
					seen[v]++
					count++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()
	<-consumed
	<-consumed
	assert.Len(t, seen, total)
	for v, n := range seen {
		assert.Equal(t, 1, n, "value %d", v)
	}
}

func TestBitmap(t *testing.T) {
	b := NewBitmap(shm.NewLocalWord(), 8)
	_, ok := b.Lowest()
	assert.False(t, ok)

	assert.True(t, b.Set(5))
	assert.False(t, b.Set(5))
	b.Set(2)
	low, ok := b.Lowest()
	require.True(t, ok)
	assert.Equal(t, 2, low)

	b.Clear(2)
	assert.False(t, b.Test(2))
	assert.Equal(t, uint64(1)<<5, b.Bits())
}
