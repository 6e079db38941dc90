package xredis

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 内存版 redis，只实现 Lease 用到的三个命令
type fakeLeaseRedis struct {
	vals    map[string]string
	expires map[string]time.Duration
}

func newFakeLeaseRedis() *fakeLeaseRedis {
	return &fakeLeaseRedis{vals: map[string]string{}, expires: map[string]time.Duration{}}
}

func (f *fakeLeaseRedis) SetNX(_ context.Context, key string, value interface{}, ttl time.Duration) *redis.BoolCmd {
	if _, ok := f.vals[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.vals[key] = value.(string)
	f.expires[key] = ttl
	return redis.NewBoolResult(true, nil)
}

func (f *fakeLeaseRedis) Get(_ context.Context, key string) *redis.StringCmd {
	v, ok := f.vals[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeLeaseRedis) Expire(_ context.Context, key string, ttl time.Duration) *redis.BoolCmd {
	f.expires[key] = ttl
	return redis.NewBoolResult(true, nil)
}

func TestLease(t *testing.T) {
	ctx := context.Background()
	rdb := newFakeLeaseRedis()

	a := NewLease(rdb, "lease:BTC-USD", 10*time.Second)
	b := NewLease(rdb, "lease:BTC-USD", 10*time.Second)
	require.NotEqual(t, a.ID(), b.ID())

	ok, err := a.TryAcquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.TryAcquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "second holder must not get the lease")

	// 续期
	ok, err = a.TryAcquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	// 过期后别人可以拿
	delete(rdb.vals, "lease:BTC-USD")
	ok, err = b.TryAcquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}
