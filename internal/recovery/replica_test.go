package recovery

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"matchfeed.com/internal/engine"
	"matchfeed.com/internal/feed"
	"matchfeed.com/internal/matching"
)

func rec(id uint64, side matching.Side, price, qty int64) feed.OrderRecord {
	return feed.OrderRecord{ID: id, Side: side, Price: price, Qty: qty}
}

func inc(session string, seq uint64, price int64, orders ...feed.OrderRecord) feed.IncrementalMessage {
	if orders == nil {
		orders = []feed.OrderRecord{}
	}
	return feed.IncrementalMessage{Type: feed.TypeIncremental, Session: session, Seq: seq, Price: price, Orders: orders}
}

func TestReplica_Fold(t *testing.T) {
	r := NewReplica()
	r.Fold(inc("s", 1, 100, rec(1, matching.Buy, 100, 5)))
	r.Fold(inc("s", 2, 105, rec(2, matching.Sell, 105, 3)))
	r.Fold(inc("s", 3, 100, rec(1, matching.Buy, 100, 5), rec(3, matching.Buy, 100, 1)))

	lv := r.Levels()
	require.Len(t, lv, 2)
	assert.Equal(t, int64(100), lv[0].Price)
	assert.Len(t, lv[0].Orders, 2, "a message replaces the whole level")
	assert.Equal(t, matching.Sell, lv[1].Side)

	// 空列表：两边都删
	r.Fold(inc("s", 4, 105))
	assert.Equal(t, 1, r.LevelCount())
	assert.Equal(t, uint64(4), r.LastSeq())
}

func TestReplica_PriceMovesSide(t *testing.T) {
	r := NewReplica()
	r.Fold(inc("s", 1, 100, rec(1, matching.Buy, 100, 1)))
	r.Fold(inc("s", 2, 100, rec(2, matching.Sell, 100, 1)))
	lv := r.Levels()
	require.Len(t, lv, 1)
	assert.Equal(t, matching.Sell, lv[0].Side)
}

func TestReplica_GapStaleReset(t *testing.T) {
	r := NewReplica()
	res := r.Fold(inc("a", 1, 10, rec(1, matching.Buy, 10, 1)))
	assert.False(t, res.Gap)

	res = r.Fold(inc("a", 4, 11, rec(2, matching.Buy, 11, 1)))
	assert.True(t, res.Gap)
	assert.Equal(t, uint64(2), res.Want)
	assert.Equal(t, uint64(1), r.Gaps())

	res = r.Fold(inc("a", 3, 12, rec(3, matching.Buy, 12, 1)))
	assert.True(t, res.Stale)
	assert.Equal(t, 2, r.LevelCount(), "stale message must not be applied")

	res = r.Fold(inc("b", 1, 50, rec(1, matching.Sell, 50, 1)))
	assert.True(t, res.Reset)
	assert.False(t, res.Gap)
	assert.Equal(t, "b", r.Session())
	assert.Zero(t, r.Gaps())
	require.Len(t, r.Levels(), 1)
	assert.Equal(t, int64(50), r.Levels()[0].Price)
}

func TestReplica_SnapshotSortedByPrice(t *testing.T) {
	r := NewReplica()
	// 按订单列表排序会把 9 排到 10 后面，这里必须按价格
	r.Fold(inc("s", 1, 10, rec(1, matching.Buy, 10, 1)))
	r.Fold(inc("s", 2, 9, rec(2, matching.Buy, 9, 100)))
	r.Fold(inc("s", 3, 30, rec(3, matching.Sell, 30, 1)))
	r.Fold(inc("s", 4, 20, rec(4, matching.Sell, 20, 1)))

	now := time.Unix(1700000000, 0)
	s := r.Snapshot(now)
	assert.Equal(t, uint64(4), s.LastSeq)
	assert.Equal(t, "s", s.Session)
	assert.Equal(t, now, s.CreatedAt)
	var prices []int64
	for _, lv := range s.Levels {
		prices = append(prices, lv[0].Price)
	}
	assert.Equal(t, []int64{9, 10, 20, 30}, prices)
}

func TestReplica_SnapshotIsIndependent(t *testing.T) {
	r := NewReplica()
	r.Fold(inc("s", 1, 10, rec(1, matching.Buy, 10, 1)))
	s := r.Snapshot(time.Now())
	s.Levels[0][0].Qty = 99
	assert.Equal(t, int64(1), r.Levels()[0].Orders[0].Qty)
}

// Folding every message 1..N must give the engine's book right after message N.
func TestRecoveryEquivalence(t *testing.T) {
	for _, seed := range []int64{1, 2, 3, 42} {
		r := NewReplica()
		var lastSeq uint64
		var lastMsg feed.IncrementalMessage
		e := engine.New(engine.Config{}, feed.SinkFunc(func(m feed.IncrementalMessage) {
			r.Fold(m)
			lastSeq = m.Seq
			lastMsg = m
		}))
		rnd := rand.New(rand.NewSource(seed))

		var ids []uint64
		for i := 0; i < 1500; i++ {
			switch op := rnd.Intn(10); {
			case op < 5 || len(ids) == 0:
				side := matching.Sell
				if rnd.Intn(2) == 0 {
					side = matching.Buy
				}
				o, err := e.Insert(side, int64(90+rnd.Intn(20)), int64(1+rnd.Intn(30)))
				require.NoError(t, err)
				if o.Qty > 0 {
					ids = append(ids, o.ID)
				}
			case op < 7:
				k := rnd.Intn(len(ids))
				_ = e.Delete(ids[k])
				ids = append(ids[:k], ids[k+1:]...)
			default:
				k := rnd.Intn(len(ids))
				o, err := e.Update(ids[k], int64(90+rnd.Intn(20)), int64(1+rnd.Intn(30)))
				if err != nil {
					// 被成交掉的 id
					ids = append(ids[:k], ids[k+1:]...)
					continue
				}
				if o.Qty > 0 {
					ids[k] = o.ID
				} else {
					ids = append(ids[:k], ids[k+1:]...)
				}
			}
			require.Equal(t, e.Sequence(), r.LastSeq())
			require.Equal(t, e.Levels(), r.Levels(), "seed %d op %d seq %d", seed, i, lastSeq)
		}
		assert.Zero(t, r.Gaps())

		// 用快照重建
		fresh := NewReplica()
		fresh.Restore(r.Snapshot(time.Now()))
		assert.Equal(t, e.Levels(), fresh.Levels(), "snapshot must rebuild the book")
		assert.Equal(t, e.Sequence(), fresh.LastSeq())

		// 快照之后的增量接着折叠
		_, err := e.Insert(matching.Buy, 1, 1)
		require.NoError(t, err)
		assert.False(t, fresh.Fold(lastMsg).Gap)
		assert.Equal(t, e.Levels(), fresh.Levels())
	}
}
