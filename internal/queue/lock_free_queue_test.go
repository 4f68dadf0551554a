package queue

import (
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type request struct {
	ID     uint64
	Method string
}

func TestLockFreeQueue(t *testing.T) {
	t.Run("Empty Queue", func(t *testing.T) {
		q := NewLockFreeQueue[*request]()

		assert.True(t, q.IsEmpty())
		assert.Equal(t, 0, q.Length())

		item, ok := q.Dequeue()
		assert.False(t, ok)
		assert.Nil(t, item)

		_, ok = q.Peek()
		assert.False(t, ok)
	})

	t.Run("FIFO order", func(t *testing.T) {
		q := NewLockFreeQueue[*request]()

		r1 := &request{ID: 1, Method: "move_to"}
		r2 := &request{ID: 2, Method: "position"}
		q.Enqueue(r1)
		q.Enqueue(r2)
		assert.Equal(t, 2, q.Length())

		head, ok := q.Peek()
		require.True(t, ok)
		assert.Same(t, r1, head)
		assert.Equal(t, 2, q.Length(), "peek must not consume")

		got, ok := q.Dequeue()
		require.True(t, ok)
		assert.Same(t, r1, got)

		got, ok = q.Dequeue()
		require.True(t, ok)
		assert.Same(t, r2, got)

		assert.True(t, q.IsEmpty())
		_, ok = q.Dequeue()
		assert.False(t, ok)
	})

	t.Run("zero values are items", func(t *testing.T) {
		q := NewLockFreeQueue[int]()
		q.Enqueue(0)

		v, ok := q.Dequeue()
		assert.True(t, ok)
		assert.Equal(t, 0, v)
	})

	t.Run("Concurrency", func(t *testing.T) {
		q := NewLockFreeQueue[int]()

		var wg sync.WaitGroup
		for i := 0; i < 1000; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				q.Enqueue(i)
			}(i)
		}
		wg.Wait()
		assert.Equal(t, 1000, q.Length())

		var mu sync.Mutex
		seen := make([]int, 0, 1000)
		wg.Add(1000)
		for i := 0; i < 1000; i++ {
			go func() {
				defer wg.Done()
				if v, ok := q.Dequeue(); ok {
					mu.Lock()
					seen = append(seen, v)
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		assert.True(t, q.IsEmpty())
		require.Len(t, seen, 1000)
		sort.Ints(seen)
		for i, v := range seen {
			assert.Equal(t, i, v)
		}
	})
}

func BenchmarkLockFreeQueue_100(b *testing.B) {
	q := NewLockFreeQueue[int]()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		done := make(chan struct{})
		go func() {
			for {
				if v, ok := q.Dequeue(); ok && v == 100 {
					close(done)
					return
				}
			}
		}()

		for j := 1; j <= 100; j++ {
			q.Enqueue(j)
		}
		<-done
	}
}
