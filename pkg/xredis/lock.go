package xredis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// LeaseClient is the subset of *redis.Client a Lease needs.
type LeaseClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// Lease is a best-effort single-holder lock on one key. Whoever holds it is
// the only writer for that key; it expires on its own if the holder dies.
type Lease struct {
	rdb LeaseClient
	key string
	ttl time.Duration
	id  string
}

func NewLease(rdb LeaseClient, key string, ttl time.Duration) *Lease {
	return &Lease{
		rdb: rdb,
		key: key,
		ttl: ttl,
		id:  fmt.Sprintf("%s-%d", uuid.NewString(), time.Now().UnixNano()),
	}
}

func (l *Lease) ID() string { return l.id }

// TryAcquire takes the lease or renews it when already held.
func (l *Lease) TryAcquire(ctx context.Context) (bool, error) {
	ok, err := l.rdb.SetNX(ctx, l.key, l.id, l.ttl).Result()
	if err != nil {
		return false, err
	}
	if ok {
		return true, nil
	}
	// 不是原子的：Get 和 Expire 之间锁可能过期被别人拿走，下一轮续期会发现
	val, err := l.rdb.Get(ctx, l.key).Result()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, err
	}
	if val != l.id {
		return false, nil
	}
	if err := l.rdb.Expire(ctx, l.key, l.ttl).Err(); err != nil {
		return false, err
	}
	return true, nil
}
