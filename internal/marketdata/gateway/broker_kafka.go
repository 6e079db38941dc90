package gateway

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"matchfeed.com/pkg/logger"
)

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	// 为空时每个进程生成唯一 group，保证每个网关都能收到全量消息
	GroupID      string        `mapstructure:"group_id"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	// Sync 为 true 时 Publish 等待 broker ack，错误会回到调用方
	Sync bool `mapstructure:"sync"`
}

// KafkaBroker maps each feed topic onto a Kafka topic of the same name
// (':' replaced by '.'). Messages are keyed by topic so one instrument stays
// on one partition and keeps its order.
type KafkaBroker struct {
	cfg KafkaConfig
	w   *kafka.Writer
	log *zap.Logger

	mu      sync.Mutex
	readers []*kafka.Reader

	failed atomic.Uint64
}

func NewKafkaBroker(cfg KafkaConfig) (*KafkaBroker, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka: no brokers configured")
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 10 * time.Millisecond
	}
	if cfg.GroupID == "" {
		cfg.GroupID = "md-gateway-" + uuid.NewString()
	}
	b := &KafkaBroker{cfg: cfg, log: logger.Named("kafka")}
	b.w = &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           cfg.BatchTimeout,
		Async:                  !cfg.Sync,
		AllowAutoTopicCreation: true,
		Completion: func(msgs []kafka.Message, err error) {
			if err != nil {
				b.failed.Add(uint64(len(msgs)))
				b.log.Warn("async write failed", zap.Int("messages", len(msgs)), zap.Error(err))
			}
		},
	}
	return b, nil
}

func (b *KafkaBroker) Publish(ctx context.Context, topic string, payload []byte) error {
	return b.w.WriteMessages(ctx, kafka.Message{
		Topic: topicToSubject(topic),
		Key:   []byte(topic),
		Value: payload,
	})
}

// Failed counts messages whose asynchronous write was rejected.
func (b *KafkaBroker) Failed() uint64 { return b.failed.Load() }

func (b *KafkaBroker) Subscribe(ctx context.Context, topics []string) (<-chan Message, error) {
	out := make(chan Message, 8192)
	var wg sync.WaitGroup

	for _, t := range topics {
		r := kafka.NewReader(kafka.ReaderConfig{
			Brokers:     b.cfg.Brokers,
			Topic:       topicToSubject(t),
			GroupID:     b.cfg.GroupID,
			MinBytes:    1,
			MaxBytes:    10e6,
			MaxWait:     100 * time.Millisecond,
			StartOffset: kafka.LastOffset,
		})
		b.mu.Lock()
		b.readers = append(b.readers, r)
		b.mu.Unlock()

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer r.Close()
			for {
				m, err := r.ReadMessage(ctx)
				if err != nil {
					if ctx.Err() == nil {
						b.log.Warn("read failed", zap.String("topic", r.Config().Topic), zap.Error(err))
					}
					return
				}
				select {
				case out <- Message{Topic: subjectToTopic(m.Topic), Payload: m.Value}:
				default:
				}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(out)
	}()
	return out, nil
}

func (b *KafkaBroker) Close() error {
	b.mu.Lock()
	readers := b.readers
	b.readers = nil
	b.mu.Unlock()

	errs := []error{b.w.Close()}
	for _, r := range readers {
		errs = append(errs, r.Close())
	}
	return errors.Join(errs...)
}
