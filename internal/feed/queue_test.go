package feed

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func msg(seq uint64) IncrementalMessage {
	return IncrementalMessage{Type: TypeIncremental, Seq: seq, Orders: []OrderRecord{}}
}

func seqs(ms []IncrementalMessage) []uint64 {
	out := make([]uint64, len(ms))
	for i, m := range ms {
		out[i] = m.Seq
	}
	return out
}

func TestQueue_FIFO(t *testing.T) {
	q := NewQueue("test", 0)
	for i := uint64(1); i <= 5; i++ {
		q.Deliver(msg(i))
	}
	assert.Equal(t, 5, q.Len())

	got := q.Drain(nil)
	assert.Equal(t, []uint64{1, 2, 3, 4, 5}, seqs(got))
	assert.Equal(t, 0, q.Len())
	assert.Zero(t, q.Dropped())
}

func TestQueue_DropOldest(t *testing.T) {
	q := NewQueue("test", 3)
	for i := uint64(1); i <= 5; i++ {
		q.Deliver(msg(i))
	}
	got := q.Drain(nil)
	assert.Equal(t, []uint64{3, 4, 5}, seqs(got), "oldest messages go first")
	assert.Equal(t, uint64(2), q.Dropped())
}

func TestQueue_Notify(t *testing.T) {
	q := NewQueue("test", 0)
	q.Deliver(msg(1))
	q.Deliver(msg(2))

	select {
	case _, ok := <-q.Notify():
		require.True(t, ok)
	default:
		t.Fatal("expected a pending notification")
	}
	// 通知会合并，两条消息只踢一次
	select {
	case <-q.Notify():
		t.Fatal("notifications should coalesce")
	default:
	}
	assert.Len(t, q.Drain(nil), 2)
}

func TestQueue_Close(t *testing.T) {
	q := NewQueue("test", 0)
	q.Deliver(msg(1))
	q.Close()
	q.Close()
	q.Deliver(msg(2))

	assert.Equal(t, []uint64{1}, seqs(q.Drain(nil)))
	// pending token from the first Deliver comes first
	_, ok := <-q.Notify()
	assert.True(t, ok)
	_, ok = <-q.Notify()
	assert.False(t, ok)
}

func TestQueue_ConcurrentProducerConsumer(t *testing.T) {
	q := NewQueue("test", 0)
	const n = 10000

	var got []IncrementalMessage
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for range q.Notify() {
			got = q.Drain(got)
		}
		got = q.Drain(got)
	}()

	for i := uint64(1); i <= n; i++ {
		q.Deliver(msg(i))
	}
	q.Close()
	wg.Wait()

	require.Len(t, got, n)
	for i, m := range got {
		require.Equal(t, uint64(i+1), m.Seq)
	}
}
