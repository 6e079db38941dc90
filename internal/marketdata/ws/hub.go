package ws

import (
	"strings"
	"sync"

	"go.uber.org/zap"

	"matchfeed.com/pkg/logger"
	"matchfeed.com/pkg/metrics"
)

// Hub routes published payloads to the connections subscribed to a topic.
//
// Topics matching one of the latest-only prefixes are coalesced per
// connection and their last payload is replayed to new subscribers
// (snapshots). Every other topic is streamed in publish order.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[*Conn]struct{} // topic -> set(conn)
	last map[string][]byte             // latest-only topic -> last payload

	latestOnly []string
	log        *zap.Logger
}

func NewHub(latestOnlyPrefixes ...string) *Hub {
	return &Hub{
		subs:       make(map[string]map[*Conn]struct{}, 64),
		last:       make(map[string][]byte, 64),
		latestOnly: latestOnlyPrefixes,
		log:        logger.Named("ws"),
	}
}

func (h *Hub) isLatestOnly(topic string) bool {
	for _, p := range h.latestOnly {
		if strings.HasPrefix(topic, p) {
			return true
		}
	}
	return false
}

func (h *Hub) Subscribe(c *Conn, topics []string) {
	h.log.Debug("subscribe", zap.String("conn", c.id), zap.Strings("topics", topics))
	metrics.WSSubOpsTotal.WithLabelValues(OpSub).Inc()

	type replay struct {
		topic string
		data  []byte
	}

	// 记录订阅和取快照在同一把锁里，避免订阅后立刻 publish 却取不到
	h.mu.Lock()
	snaps := make([]replay, 0, len(topics))
	for _, t := range topics {
		set := h.subs[t]
		if set == nil {
			set = make(map[*Conn]struct{}, 16)
			h.subs[t] = set
		}
		set[c] = struct{}{}
		if b := h.last[t]; b != nil {
			snaps = append(snaps, replay{t, b})
		}
	}
	h.mu.Unlock()

	// 立即回放最新快照，新订阅者不必等下一个周期
	for _, s := range snaps {
		if c.Offer(s.topic, s.data, true) {
			metrics.WSReplayTotal.Inc()
		}
	}
}

func (h *Hub) Unsubscribe(c *Conn, topics []string) {
	metrics.WSSubOpsTotal.WithLabelValues(OpUnsub).Inc()
	h.mu.Lock()
	for _, t := range topics {
		if set := h.subs[t]; set != nil {
			delete(set, c)
			if len(set) == 0 {
				delete(h.subs, t)
			}
		}
	}
	h.mu.Unlock()
}

func (h *Hub) RemoveConn(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for topic, m := range h.subs {
		delete(m, c)
		if len(m) == 0 {
			delete(h.subs, topic)
		}
	}
}

// Subscribers reports how many connections listen on topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[topic])
}

// Publish 把 payload 广播给 topic 的所有订阅者。
// 对每个 conn 都是非阻塞 Offer，慢客户端不会卡住广播。
func (h *Hub) Publish(topic string, payload []byte) {
	cp := make([]byte, len(payload))
	copy(cp, payload)
	latest := h.isLatestOnly(topic)

	h.mu.Lock()
	if latest {
		h.last[topic] = cp
	}
	conns := make([]*Conn, 0, len(h.subs[topic]))
	for c := range h.subs[topic] {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		_ = c.Offer(topic, cp, latest)
	}
}
