package feed

import (
	"sync"
	"sync/atomic"

	"matchfeed.com/pkg/metrics"
)

// Queue is a FIFO hand-off between the engine and one consumer. Deliver never
// blocks. With capacity 0 it grows without bound; with a positive capacity a
// full queue drops its oldest message and counts the drop, the consumer then
// sees the gap in sequence numbers.
type Queue struct {
	name     string
	capacity int

	mu     sync.Mutex
	buf    []IncrementalMessage
	closed bool

	notify  chan struct{} // buffered=1, 有新消息时踢一下消费者
	dropped atomic.Uint64
}

func NewQueue(name string, capacity int) *Queue {
	if capacity < 0 {
		capacity = 0
	}
	return &Queue{
		name:     name,
		capacity: capacity,
		notify:   make(chan struct{}, 1),
	}
}

func (q *Queue) Deliver(msg IncrementalMessage) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	if q.capacity > 0 && len(q.buf) >= q.capacity {
		q.buf[0] = IncrementalMessage{}
		q.buf = q.buf[1:]
		q.dropped.Add(1)
		metrics.FeedQueueDropped.WithLabelValues(q.name).Inc()
	}
	q.buf = append(q.buf, msg)
	depth := len(q.buf)
	select {
	case q.notify <- struct{}{}:
	default:
	}
	q.mu.Unlock()

	metrics.FeedQueueDepth.WithLabelValues(q.name).Set(float64(depth))
}

// Drain moves every queued message into dst, oldest first.
func (q *Queue) Drain(dst []IncrementalMessage) []IncrementalMessage {
	q.mu.Lock()
	dst = append(dst, q.buf...)
	clear(q.buf)
	q.buf = q.buf[:0]
	q.mu.Unlock()

	metrics.FeedQueueDepth.WithLabelValues(q.name).Set(0)
	return dst
}

// Notify fires at least once after any Deliver; it is closed by Close.
// A notification already pending is received before the close is seen.
func (q *Queue) Notify() <-chan struct{} { return q.notify }

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buf)
}

func (q *Queue) Dropped() uint64 { return q.dropped.Load() }

// Close stops accepting messages. Already queued ones can still be drained.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.notify)
}
