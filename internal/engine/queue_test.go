package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rostersync/internal/ir"
)

func TestOpQueue_FIFO(t *testing.T) {
	q := newOpQueue()

	for _, h := range []string{"A", "B", "C"} {
		require.True(t, q.Enqueue(ir.DeleteStudent{Hashed: h}))
	}
	assert.Equal(t, 3, q.Len())

	for _, want := range []string{"A", "B", "C"} {
		op, ok := q.TryDequeue()
		require.True(t, ok)
		assert.Equal(t, want, op.(ir.DeleteStudent).Hashed)
	}

	_, ok := q.TryDequeue()
	assert.False(t, ok, "dequeue from empty queue should return false")
}

func TestOpQueue_WaitSignals(t *testing.T) {
	q := newOpQueue()

	go func() {
		time.Sleep(5 * time.Millisecond)
		q.Enqueue(ir.DeleteStudent{Hashed: "h1"})
	}()

	select {
	case <-q.Wait():
	case <-time.After(time.Second):
		t.Fatal("no signal after enqueue")
	}

	op, ok := q.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, "h1", op.(ir.DeleteStudent).Hashed)
}

func TestOpQueue_Close(t *testing.T) {
	q := newOpQueue()
	q.Enqueue(ir.DeleteStudent{Hashed: "h1"})

	q.Close()
	q.Close() // idempotent

	assert.True(t, q.Closed())
	assert.False(t, q.Enqueue(ir.DeleteStudent{Hashed: "h2"}), "enqueue after close should fail")

	// Closed signal channel never blocks
	select {
	case <-q.Wait():
	default:
		t.Fatal("closed queue should signal")
	}

	// Queued work survives close
	_, ok := q.TryDequeue()
	assert.True(t, ok)
}

func TestOpQueue_ConcurrentEnqueue(t *testing.T) {
	q := newOpQueue()
	const producers = 10
	const each = 100

	var wg sync.WaitGroup
	for i := 0; i < producers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < each; j++ {
				q.Enqueue(ir.DeleteStudent{Hashed: "h"})
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, producers*each, q.Len())
}
