package recovery

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"matchfeed.com/internal/feed"
	"matchfeed.com/internal/matching"
	"matchfeed.com/pkg/xredis"
)

// 内存版 redis，实现 store 和 lease 用到的命令
type fakeRedis struct {
	vals map[string]string
	ttls map[string]time.Duration
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{vals: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) Set(_ context.Context, key string, value interface{}, ttl time.Duration) *redis.StatusCmd {
	switch v := value.(type) {
	case []byte:
		f.vals[key] = string(v)
	case string:
		f.vals[key] = v
	}
	f.ttls[key] = ttl
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	v, ok := f.vals[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) SetNX(_ context.Context, key string, value interface{}, ttl time.Duration) *redis.BoolCmd {
	if _, ok := f.vals[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.vals[key] = value.(string)
	f.ttls[key] = ttl
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Expire(_ context.Context, key string, ttl time.Duration) *redis.BoolCmd {
	f.ttls[key] = ttl
	return redis.NewBoolResult(true, nil)
}

func TestRedisStore_SaveLoad(t *testing.T) {
	ctx := context.Background()
	rdb := newFakeRedis()
	s := NewRedisStore(rdb, "md:snapshot:", time.Minute)

	_, ok, err := s.Load(ctx, "BTC-USD")
	require.NoError(t, err)
	assert.False(t, ok)

	snap := feed.RecoverySnapshot{
		Type:      feed.TypeRecovery,
		Session:   "s",
		LastSeq:   12,
		CreatedAt: time.Unix(1700000000, 0).UTC(),
		Levels:    [][]feed.OrderRecord{{{ID: 1, Side: matching.Buy, Price: 10, Qty: 2}}},
	}
	require.NoError(t, s.Save(ctx, "BTC-USD", snap))
	assert.Equal(t, time.Minute, rdb.ttls["md:snapshot:BTC-USD"])

	got, ok, err := s.Load(ctx, "BTC-USD")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, snap.LastSeq, got.LastSeq)
	assert.Equal(t, snap.Levels, got.Levels)
	assert.True(t, snap.CreatedAt.Equal(got.CreatedAt))
}

func TestRedisStore_Lease(t *testing.T) {
	ctx := context.Background()
	rdb := newFakeRedis()

	leader := NewRedisStore(rdb, "", 0).WithLease(xredis.NewLease(rdb, "md:lease:BTC-USD", time.Minute))
	follower := NewRedisStore(rdb, "", 0).WithLease(xredis.NewLease(rdb, "md:lease:BTC-USD", time.Minute))

	require.NoError(t, leader.Save(ctx, "BTC-USD", feed.RecoverySnapshot{Session: "a", LastSeq: 1}))
	assert.ErrorIs(t, follower.Save(ctx, "BTC-USD", feed.RecoverySnapshot{Session: "b", LastSeq: 9}), ErrNotLeader)

	got, ok, err := leader.Load(ctx, "BTC-USD")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a", got.Session)
}
