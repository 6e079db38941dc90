package ws

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strs(b [][]byte) []string {
	out := make([]string, len(b))
	for i, v := range b {
		out[i] = string(v)
	}
	return out
}

func TestConn_StreamKeepsOrderAndDropsOldest(t *testing.T) {
	c := NewConn(NewHub(), nil, 3)
	for _, p := range []string{"1", "2", "3", "4", "5"} {
		require.True(t, c.Offer("md:inc:X", []byte(p), false))
	}
	assert.Equal(t, []string{"3", "4", "5"}, strs(c.flush(maxFlush)))
	assert.Equal(t, uint64(2), c.Dropped())
	assert.Nil(t, c.flush(maxFlush))
}

func TestConn_LatestOnlyCoalesces(t *testing.T) {
	c := NewConn(NewHub(), nil, 0)
	c.Offer("md:rec:X", []byte("a"), true)
	c.Offer("md:rec:X", []byte("b"), true)
	c.Offer("md:inc:X", []byte("i1"), false)

	assert.Equal(t, []string{"i1", "b"}, strs(c.flush(maxFlush)))
	assert.Zero(t, c.Dropped())
}

func TestConn_FlushHonoursMax(t *testing.T) {
	c := NewConn(NewHub(), nil, 0)
	for i := 0; i < 5; i++ {
		c.Offer("t", []byte{byte('a' + i)}, false)
	}
	assert.Equal(t, []string{"a", "b"}, strs(c.flush(2)))
	// 剩余数据会重新唤醒
	select {
	case <-c.notify:
	default:
		t.Fatal("expected re-notify while data is pending")
	}
	assert.Equal(t, []string{"c", "d", "e"}, strs(c.flush(10)))
}

func TestConn_OfferAfterClose(t *testing.T) {
	c := NewConn(NewHub(), nil, 0)
	c.close()
	c.close()
	assert.False(t, c.Offer("t", []byte("x"), false))
}

func TestHub_ReplaysLatestOnlyTopics(t *testing.T) {
	h := NewHub("md:rec:")
	h.Publish("md:rec:BTC-USD", []byte("snap-1"))
	h.Publish("md:rec:BTC-USD", []byte("snap-2"))
	h.Publish("md:inc:BTC-USD", []byte("inc-7"))

	c := NewConn(h, nil, 0)
	h.Subscribe(c, []string{"md:rec:BTC-USD", "md:inc:BTC-USD"})
	// 只回放快照，增量消息不保留
	assert.Equal(t, []string{"snap-2"}, strs(c.flush(maxFlush)))

	h.Publish("md:inc:BTC-USD", []byte("inc-8"))
	assert.Equal(t, []string{"inc-8"}, strs(c.flush(maxFlush)))
}

func TestHub_UnsubscribeAndRemove(t *testing.T) {
	h := NewHub()
	a := NewConn(h, nil, 0)
	b := NewConn(h, nil, 0)
	h.Subscribe(a, []string{"x", "y"})
	h.Subscribe(b, []string{"x"})
	assert.Equal(t, 2, h.Subscribers("x"))

	h.Unsubscribe(b, []string{"x"})
	assert.Equal(t, 1, h.Subscribers("x"))

	h.RemoveConn(a)
	assert.Zero(t, h.Subscribers("x"))
	assert.Zero(t, h.Subscribers("y"))

	h.Publish("x", []byte("nobody"))
	assert.Nil(t, a.flush(maxFlush))
}
