package influxsink

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"matchfeed.com/internal/matching"
	"matchfeed.com/pkg/logger"
	"matchfeed.com/pkg/metrics"
)

type Config struct {
	URL    string `mapstructure:"url"`
	Token  string `mapstructure:"token"`
	Org    string `mapstructure:"org"`
	Bucket string `mapstructure:"bucket"`

	// 写入优化项
	BatchSize     uint          `mapstructure:"batch_size"`     // 建议从 1000~5000 起步
	FlushInterval time.Duration `mapstructure:"flush_interval"` // 例如 1s
	UseGzip       bool          `mapstructure:"use_gzip"`
	Buffer        int           `mapstructure:"buffer"` // 引擎到写入协程的队列长度
}

type tradeEvent struct {
	t  matching.Trade
	at time.Time
}

// pointWriter is the subset of api.WriteAPI the sink needs.
type pointWriter interface {
	WritePoint(p *write.Point)
}

// Sink stores every fill as a "trade" point. Trade never blocks the engine:
// fills beyond the buffer are dropped and counted.
type Sink struct {
	instrument string
	tick       decimal.Decimal

	client influxdb2.Client
	write  pointWriter
	in     chan tradeEvent
	log    *zap.Logger

	written atomic.Uint64
	dropped atomic.Uint64
}

func New(cfg Config, instrument string, tick decimal.Decimal) *Sink {
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 2000
	}
	if cfg.FlushInterval == 0 {
		cfg.FlushInterval = time.Second
	}

	opt := influxdb2.DefaultOptions().
		SetBatchSize(cfg.BatchSize).
		SetFlushInterval(uint(cfg.FlushInterval.Milliseconds())).
		SetUseGZip(cfg.UseGzip)

	c := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opt)
	w := c.WriteAPI(cfg.Org, cfg.Bucket)

	s := newSink(w, instrument, tick, cfg.Buffer)
	s.client = c

	// 必须消费 Errors()，否则异步写入错误可能导致阻塞
	go func() {
		for err := range w.Errors() {
			s.log.Warn("influx write error", zap.Error(err))
		}
	}()
	return s
}

func newSink(w pointWriter, instrument string, tick decimal.Decimal, buffer int) *Sink {
	if buffer <= 0 {
		buffer = 4096
	}
	if tick.IsZero() {
		tick = decimal.New(1, 0)
	}
	return &Sink{
		instrument: instrument,
		tick:       tick,
		write:      w,
		in:         make(chan tradeEvent, buffer),
		log:        logger.Named("influxsink"),
	}
}

// Trade implements engine.TradeSink.
func (s *Sink) Trade(t matching.Trade, at time.Time) {
	select {
	case s.in <- tradeEvent{t: t, at: at}:
	default:
		s.dropped.Add(1)
		metrics.FeedQueueDropped.WithLabelValues("influx").Inc()
	}
}

func (s *Sink) point(ev tradeEvent) *write.Point {
	// measurement：trade
	// tags：instrument/side（注意 tag cardinality，订单号放 field）
	tags := map[string]string{
		"instrument": s.instrument,
		"side":       ev.t.Side.String(),
	}
	price, _ := decimal.NewFromInt(ev.t.Price).Mul(s.tick).Float64()
	fields := map[string]interface{}{
		"price":       price,
		"price_ticks": ev.t.Price,
		"qty":         ev.t.Qty,
		"maker":       int64(ev.t.MakerID),
		"taker":       int64(ev.t.TakerID),
	}
	return write.NewPoint("trade", tags, fields, ev.at)
}

// Run drains buffered fills into the write API until ctx ends.
func (s *Sink) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			// 把剩下的也写掉
			for {
				select {
				case ev := <-s.in:
					s.write.WritePoint(s.point(ev))
					s.written.Add(1)
				default:
					return ctx.Err()
				}
			}
		case ev := <-s.in:
			s.write.WritePoint(s.point(ev))
			s.written.Add(1)
		}
	}
}

func (s *Sink) Written() uint64 { return s.written.Load() }
func (s *Sink) Dropped() uint64 { return s.dropped.Load() }

// Close flushes the client buffer.
func (s *Sink) Close() {
	if s.client != nil {
		s.client.Close()
	}
}

func (cfg Config) String() string {
	return fmt.Sprintf("url=%s org=%s bucket=%s batch=%d flush=%s gzip=%v",
		cfg.URL, cfg.Org, cfg.Bucket, cfg.BatchSize, cfg.FlushInterval, cfg.UseGzip)
}
