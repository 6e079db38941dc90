package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"matchfeed.com/internal/engine"
	"matchfeed.com/internal/feed"
	"matchfeed.com/internal/marketdata/gateway"
	"matchfeed.com/internal/marketdata/storage/influxsink"
	"matchfeed.com/internal/marketdata/ws"
	"matchfeed.com/internal/recovery"
	"matchfeed.com/pkg/config"
	"matchfeed.com/pkg/logger"
	"matchfeed.com/pkg/metrics"
	"matchfeed.com/pkg/ratelimit"
	"matchfeed.com/pkg/safe"
	"matchfeed.com/pkg/wal"
	"matchfeed.com/pkg/xredis"
)

func main() {
	// ========= 0) 全局上下文 & 优雅退出 =========
	// 收到 SIGINT/SIGTERM 时取消 ctx，所有组件跟着退出
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := &Cfg{}
	v, err := config.Load(serviceName, cfg, defaults())
	if err != nil {
		panic(fmt.Sprintf("加载配置出错 %+v", err))
	}
	logger.InitWithFile(cfg.Name, cfg.Log.Level, cfg.Log.File)
	defer logger.Sync()
	metrics.MustRegister()
	logger.Info(ctx, "服务开始启动", zap.String("instrument", cfg.Instrument))

	if err := run(ctx, cfg, v); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error(ctx, "exchange exited with error", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
	logger.Info(ctx, "exchange stopped")
}

func run(ctx context.Context, cfg *Cfg, v *viper.Viper) error {
	tick, err := decimal.NewFromString(cfg.TickSize)
	if err != nil {
		return fmt.Errorf("tick_size %q: %w", cfg.TickSize, err)
	}

	// ========= 1) 广播通道 =========
	broker, err := newBroker(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = broker.Close() }()

	bc := feed.NewBroadcaster(feed.BroadcasterConfig{
		Instrument:     cfg.Instrument,
		PublishTimeout: cfg.Feed.PublishTimeout,
		QueueCapacity:  cfg.Feed.QueueCapacity,
		Breaker:        cfg.Feed.Breaker,
	}, broker)
	recQ := feed.NewQueue("recovery", cfg.Recovery.QueueCapacity)

	// ========= 2) 成交落库（可选） =========
	var trades *influxsink.Sink
	var tradeSinks []engine.TradeSink
	if cfg.Trades.Influx.Enabled {
		trades = influxsink.New(cfg.Trades.Influx.Config, cfg.Instrument, tick)
		defer trades.Close()
		tradeSinks = append(tradeSinks, trades)
		logger.Info(ctx, "influx trade sink enabled", zap.Stringer("influx", cfg.Trades.Influx.Config))
	}

	// ========= 3) 引擎 + journal 回放 =========
	eng := engine.New(engine.Config{
		Instrument: cfg.Instrument,
		TickSize:   tick,
		TradeSinks: tradeSinks,
	}, bc, recQ)

	var journal engine.Journal
	if p := cfg.Engine.Journal.Path; p != "" {
		w, err := openJournal(p, cfg.Engine.Journal.BufSize, eng)
		if err != nil {
			return err
		}
		journal = w
	}
	actor := engine.NewActor(eng, engine.ActorConfig{
		MailboxSize: cfg.Engine.MailboxSize,
		BatchMax:    cfg.Engine.BatchMax,
		Journal:     journal,
	})

	// ========= 4) 恢复快照 =========
	var store recovery.SnapshotStore
	if cfg.Redis.Enabled {
		rdb, err := xredis.NewRedis(ctx, &cfg.Redis.Config)
		if err != nil {
			return fmt.Errorf("init redis: %w", err)
		}
		defer func() { _ = rdb.Close() }()
		lease := xredis.NewLease(rdb, cfg.Redis.LeaseKey+cfg.Instrument, cfg.Redis.LeaseTTL)
		store = recovery.NewRedisStore(rdb, cfg.Redis.Prefix, cfg.Redis.TTL).WithLease(lease)
		logger.Info(ctx, "redis snapshot store enabled", zap.String("lease", lease.ID()))
	}
	agg := recovery.New(recovery.Config{
		Instrument: cfg.Instrument,
		Period:     cfg.Recovery.Period,
	}, recQ, bc, store)

	// 快照周期支持热更新
	config.Watch(v, serviceName, func(next Cfg) {
		if next.Recovery.Period > 0 && next.Recovery.Period != agg.Period() {
			agg.SetPeriod(next.Recovery.Period)
			logger.Info(ctx, "recovery period changed", zap.Duration("period", next.Recovery.Period))
		}
	})

	// ========= 5) websocket 网关 =========
	hub := ws.NewHub(feed.RecoveryTopic(""))
	wsSrv := ws.NewServer(ctx, hub)
	wsSrv.SendBuf = cfg.WS.SendBuf
	if cfg.WS.ConnRate > 0 {
		wsSrv.ConnLimit = ratelimit.NewStore(rate.Limit(cfg.WS.ConnRate), cfg.WS.ConnBurst, 10*time.Minute)
		wsSrv.ConnLimit.StartJanitor(ctx, time.Minute)
	}
	if cfg.WS.MsgRate > 0 {
		wsSrv.MsgLimit = ratelimit.NewStore(rate.Limit(cfg.WS.MsgRate), cfg.WS.MsgBurst, 10*time.Minute)
		wsSrv.MsgLimit.StartJanitor(ctx, time.Minute)
	}
	gw := gateway.NewGateway(hub, broker)
	topics := []string{feed.IncrementalTopic(cfg.Instrument), feed.RecoveryTopic(cfg.Instrument)}

	var httpLimit *ratelimit.Store
	if cfg.HTTP.Rate > 0 {
		httpLimit = ratelimit.NewStore(rate.Limit(cfg.HTTP.Rate), cfg.HTTP.Burst, 10*time.Minute)
		httpLimit.StartJanitor(ctx, time.Minute)
	}
	httpSrv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           newMux(wsSrv, actor, agg, httpLimit),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return safe.Run(func() error { return actor.Run(gctx) }) })
	g.Go(func() error { return safe.Run(func() error { return bc.Run(gctx) }) })
	g.Go(func() error { return agg.Run(gctx) })
	g.Go(func() error { return safe.Run(func() error { return gw.Run(gctx, topics) }) })
	if trades != nil {
		g.Go(func() error { return safe.Run(func() error { return trades.Run(gctx) }) })
	}
	g.Go(func() error {
		logger.Info(ctx, "http listening", zap.String("addr", cfg.HTTP.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpSrv.Shutdown(sctx)
	})

	if cfg.Console {
		// stdin 读取会一直阻塞，不放进 errgroup
		safe.GoCtx(gctx, func(ctx context.Context) { runConsole(ctx, os.Stdin, os.Stdout, actor) })
	}

	return g.Wait()
}

func newBroker(cfg *Cfg) (gateway.Broker, error) {
	switch cfg.Feed.Broker {
	case "", "mem":
		return gateway.NewMemBroker(), nil
	case "nats":
		b, err := gateway.NewNatsBroker(cfg.Feed.NatsURL)
		if err != nil {
			return nil, fmt.Errorf("connect nats %s: %w", cfg.Feed.NatsURL, err)
		}
		return b, nil
	case "kafka":
		return gateway.NewKafkaBroker(cfg.Feed.Kafka)
	}
	return nil, fmt.Errorf("unknown feed.broker %q", cfg.Feed.Broker)
}

// openJournal replays what is already on disk into eng, then opens the file
// for appending.
func openJournal(path string, bufSize int, eng *engine.Engine) (*wal.Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	if _, err := engine.ReplayJournal(path, eng); err != nil {
		return nil, err
	}
	return wal.OpenWrite(path, bufSize)
}
