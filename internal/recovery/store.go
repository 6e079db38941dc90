package recovery

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"matchfeed.com/internal/feed"
	"matchfeed.com/pkg/metrics"
	"matchfeed.com/pkg/xredis"
)

// ErrNotLeader is returned by Save when another process holds the write lease.
var ErrNotLeader = errors.New("recovery: snapshot lease held by another writer")

// RedisClient is the subset of *redis.Client the store uses.
type RedisClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
}

// RedisStore keeps the newest snapshot per instrument as JSON under
// <prefix><instrument>.
type RedisStore struct {
	rdb    RedisClient
	prefix string
	ttl    time.Duration
	codec  feed.JSONCodec
	lease  *xredis.Lease
}

func NewRedisStore(rdb RedisClient, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "md:snapshot:"
	}
	return &RedisStore{rdb: rdb, prefix: prefix, ttl: ttl}
}

// WithLease makes Save a no-op (ErrNotLeader) unless l is held, so several
// processes can share one Redis without overwriting each other.
func (s *RedisStore) WithLease(l *xredis.Lease) *RedisStore {
	s.lease = l
	return s
}

func (s *RedisStore) Key(instrument string) string { return s.prefix + instrument }

func (s *RedisStore) Save(ctx context.Context, instrument string, snap feed.RecoverySnapshot) error {
	if s.lease != nil {
		ok, err := s.lease.TryAcquire(ctx)
		if err != nil {
			metrics.RedisErrors.WithLabelValues("lease").Inc()
			return err
		}
		if !ok {
			return ErrNotLeader
		}
	}
	b, err := s.codec.EncodeSnapshot(snap)
	if err != nil {
		return err
	}
	start := time.Now()
	err = s.rdb.Set(ctx, s.Key(instrument), b, s.ttl).Err()
	observe("set", start, err)
	return err
}

// Load returns the stored snapshot; ok is false when there is none.
func (s *RedisStore) Load(ctx context.Context, instrument string) (feed.RecoverySnapshot, bool, error) {
	start := time.Now()
	b, err := s.rdb.Get(ctx, s.Key(instrument)).Bytes()
	if errors.Is(err, redis.Nil) {
		observe("get", start, nil)
		return feed.RecoverySnapshot{}, false, nil
	}
	observe("get", start, err)
	if err != nil {
		return feed.RecoverySnapshot{}, false, err
	}
	v, err := s.codec.Decode(b)
	if err != nil {
		return feed.RecoverySnapshot{}, false, err
	}
	snap, ok := v.(feed.RecoverySnapshot)
	if !ok {
		return feed.RecoverySnapshot{}, false, feed.ErrUnknownType
	}
	return snap, true, nil
}

func observe(cmd string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
		metrics.RedisErrors.WithLabelValues(cmd).Inc()
	}
	metrics.RedisCmdDuration.WithLabelValues(cmd, status).Observe(time.Since(start).Seconds())
}
