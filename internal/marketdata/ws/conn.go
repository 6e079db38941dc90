package ws

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"matchfeed.com/pkg/metrics"
)

const defaultSendBuf = 1024

// Conn is one websocket subscriber. Stream topics are queued in order up to
// sendBuf payloads (oldest dropped beyond that); latest-only topics keep just
// the newest payload per topic.
type Conn struct {
	id string

	ws  *websocket.Conn
	hub *Hub

	mu      sync.Mutex
	pending [][]byte          // stream topics, publish order
	latest  map[string][]byte // LatestOnly：topic -> last payload
	sendBuf int

	notify    chan struct{} // 缓冲 1：合并唤醒
	done      chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool
	dropped   atomic.Uint64
}

func NewConn(h *Hub, ws *websocket.Conn, sendBuf int) *Conn {
	if sendBuf <= 0 {
		sendBuf = defaultSendBuf
	}
	return &Conn{
		id:      uuid.NewString(),
		ws:      ws,
		hub:     h,
		latest:  make(map[string][]byte, 8),
		sendBuf: sendBuf,
		notify:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

func (c *Conn) ID() string { return c.id }

// Dropped counts stream payloads discarded because the client fell behind.
func (c *Conn) Dropped() uint64 { return c.dropped.Load() }

// Offer queues payload for writing and never blocks. It returns false once
// the connection is closed.
func (c *Conn) Offer(topic string, payload []byte, latestOnly bool) bool {
	if c.closed.Load() {
		return false
	}

	c.mu.Lock()
	if latestOnly {
		c.latest[topic] = payload
	} else {
		if len(c.pending) >= c.sendBuf {
			// 慢客户端：丢最旧的，客户端通过 seq 断档自行重同步
			c.pending[0] = nil
			c.pending = c.pending[1:]
			c.dropped.Add(1)
			metrics.WSDroppedTotal.WithLabelValues("slow_client").Inc()
		}
		c.pending = append(c.pending, payload)
	}
	c.mu.Unlock()

	select {
	case c.notify <- struct{}{}:
	default:
	}
	return true
}

// flush takes up to max queued payloads, stream first then snapshots.
func (c *Conn) flush(max int) [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.pending) + len(c.latest)
	if n == 0 {
		return nil
	}
	out := make([][]byte, 0, min(n, max))

	k := min(len(c.pending), max)
	out = append(out, c.pending[:k]...)
	clear(c.pending[:k])
	c.pending = c.pending[k:]
	if len(c.pending) == 0 {
		c.pending = nil
	}

	for t, v := range c.latest {
		if len(out) >= max {
			break
		}
		out = append(out, v)
		delete(c.latest, t)
	}

	// 还有剩余时再唤醒一次 writePump
	if len(c.pending)+len(c.latest) > 0 {
		select {
		case c.notify <- struct{}{}:
		default:
		}
	}
	return out
}

func (c *Conn) close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.done)
	})
}
