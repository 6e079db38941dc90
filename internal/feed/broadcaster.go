package feed

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"matchfeed.com/pkg/logger"
	"matchfeed.com/pkg/metrics"
)

// Publisher is the broadcast transport. gateway.Broker satisfies it.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

type BreakerConfig struct {
	// Half-Open 状态允许通过的探测请求数
	MaxRequests uint32 `mapstructure:"max_requests"`
	// Closed 状态计数窗口
	Interval time.Duration `mapstructure:"interval"`
	// Open 状态持续时间，到期进入 Half-Open
	Timeout time.Duration `mapstructure:"timeout"`
	// 连续失败多少次熔断
	ConsecutiveFailures uint32 `mapstructure:"consecutive_failures"`
}

type BroadcasterConfig struct {
	Instrument     string
	PublishTimeout time.Duration
	QueueCapacity  int // 0 = unbounded
	Breaker        BreakerConfig
}

// Broadcaster is the fire-and-forget transport sink. Deliver only enqueues;
// Run publishes in order on its own goroutine. Failures are logged and counted,
// never reported back to the engine.
type Broadcaster struct {
	cfg   BroadcasterConfig
	pub   Publisher
	codec JSONCodec
	cb    *gobreaker.CircuitBreaker[struct{}]
	q     *Queue
	log   *zap.Logger

	incTopic string
	recTopic string

	sent   atomic.Uint64
	failed atomic.Uint64
}

func NewBroadcaster(cfg BroadcasterConfig, pub Publisher) *Broadcaster {
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = time.Second
	}
	if cfg.Breaker.MaxRequests == 0 {
		cfg.Breaker.MaxRequests = 1
	}
	if cfg.Breaker.Timeout <= 0 {
		cfg.Breaker.Timeout = 3 * time.Second
	}
	if cfg.Breaker.Interval <= 0 {
		cfg.Breaker.Interval = 10 * time.Second
	}
	if cfg.Breaker.ConsecutiveFailures == 0 {
		cfg.Breaker.ConsecutiveFailures = 10
	}

	b := &Broadcaster{
		cfg:      cfg,
		pub:      pub,
		q:        NewQueue("broadcast", cfg.QueueCapacity),
		log:      logger.Named("feed"),
		incTopic: IncrementalTopic(cfg.Instrument),
		recTopic: RecoveryTopic(cfg.Instrument),
	}

	name := "feed:" + cfg.Instrument
	trip := cfg.Breaker.ConsecutiveFailures
	b.cb = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.Breaker.MaxRequests,
		Interval:    cfg.Breaker.Interval,
		Timeout:     cfg.Breaker.Timeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= trip
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.CBState.WithLabelValues(name, from.String()).Set(0)
			metrics.CBState.WithLabelValues(name, to.String()).Set(1)
			b.log.Warn("broadcast breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	metrics.CBState.WithLabelValues(name, gobreaker.StateClosed.String()).Set(1)
	return b
}

func (b *Broadcaster) Deliver(msg IncrementalMessage) { b.q.Deliver(msg) }

// Run publishes queued messages until ctx is done or Close is called. What is
// still queued at that point gets one last attempt.
func (b *Broadcaster) Run(ctx context.Context) error {
	batch := make([]IncrementalMessage, 0, 256)
	for {
		select {
		case <-ctx.Done():
			b.flush(context.Background(), batch[:0])
			return ctx.Err()
		case _, ok := <-b.q.Notify():
			batch = b.flush(ctx, batch[:0])
			if !ok {
				return nil
			}
		}
	}
}

func (b *Broadcaster) flush(ctx context.Context, batch []IncrementalMessage) []IncrementalMessage {
	batch = b.q.Drain(batch)
	for i := range batch {
		b.publishIncremental(ctx, batch[i])
		batch[i] = IncrementalMessage{}
	}
	return batch
}

func (b *Broadcaster) publishIncremental(ctx context.Context, m IncrementalMessage) {
	payload, err := b.codec.EncodeIncremental(m)
	if err != nil {
		metrics.FeedPublishErrors.WithLabelValues("encode").Inc()
		b.log.Error("encode incremental", zap.Uint64("seq", m.Seq), zap.Error(err))
		return
	}
	if err := b.publish(ctx, b.incTopic, payload); err != nil {
		b.log.Warn("publish incremental failed",
			zap.String("topic", b.incTopic), zap.Uint64("seq", m.Seq), zap.Error(err))
		return
	}
	metrics.FeedMessagesTotal.WithLabelValues(TypeIncremental).Inc()
}

// PublishSnapshot sends a recovery snapshot straight away, bypassing the queue.
func (b *Broadcaster) PublishSnapshot(ctx context.Context, s RecoverySnapshot) error {
	payload, err := b.codec.EncodeSnapshot(s)
	if err != nil {
		metrics.FeedPublishErrors.WithLabelValues("encode").Inc()
		return err
	}
	if err := b.publish(ctx, b.recTopic, payload); err != nil {
		b.log.Warn("publish snapshot failed",
			zap.String("topic", b.recTopic), zap.Uint64("last_seq", s.LastSeq), zap.Error(err))
		return err
	}
	metrics.FeedMessagesTotal.WithLabelValues(TypeRecovery).Inc()
	return nil
}

func (b *Broadcaster) publish(ctx context.Context, topic string, payload []byte) error {
	_, err := b.cb.Execute(func() (struct{}, error) {
		pctx, cancel := context.WithTimeout(ctx, b.cfg.PublishTimeout)
		defer cancel()
		return struct{}{}, b.pub.Publish(pctx, topic, payload)
	})
	if err != nil {
		b.failed.Add(1)
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.CBRejectTotal.WithLabelValues(b.cb.Name(), err.Error()).Inc()
			metrics.FeedPublishErrors.WithLabelValues("breaker").Inc()
		} else {
			metrics.FeedPublishErrors.WithLabelValues("transport").Inc()
		}
		return err
	}
	b.sent.Add(1)
	return nil
}

// Close stops accepting messages; Run returns after publishing what is left.
func (b *Broadcaster) Close() { b.q.Close() }

func (b *Broadcaster) Sent() uint64    { return b.sent.Load() }
func (b *Broadcaster) Failed() uint64  { return b.failed.Load() }
func (b *Broadcaster) Dropped() uint64 { return b.q.Dropped() }

func (b *Broadcaster) State() gobreaker.State { return b.cb.State() }
