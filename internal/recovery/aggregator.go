package recovery

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"matchfeed.com/internal/feed"
	"matchfeed.com/pkg/logger"
	"matchfeed.com/pkg/metrics"
	"matchfeed.com/pkg/safe"
)

const DefaultPeriod = 5 * time.Second

type Config struct {
	Instrument string
	Period     time.Duration // snapshot period, DefaultPeriod when zero
	Clock      func() time.Time
}

// Publisher sends snapshots to the broadcast transport. *feed.Broadcaster satisfies it.
type Publisher interface {
	PublishSnapshot(ctx context.Context, s feed.RecoverySnapshot) error
}

// SnapshotStore keeps the newest snapshot for consumers outside the process.
type SnapshotStore interface {
	Save(ctx context.Context, instrument string, s feed.RecoverySnapshot) error
}

// Aggregator folds the incremental stream into a Replica and publishes it on
// a period. It only ever reads its input queue; engine state is never touched.
type Aggregator struct {
	cfg   Config
	in    *feed.Queue
	pub   Publisher
	store SnapshotStore
	log   *zap.Logger

	mu      sync.Mutex
	replica *Replica

	period   atomic.Int64
	periodCh chan struct{} // buffered=1

	published atomic.Uint64
}

// New builds an aggregator reading from in. pub and store may be nil.
func New(cfg Config, in *feed.Queue, pub Publisher, store SnapshotStore) *Aggregator {
	if cfg.Period <= 0 {
		cfg.Period = DefaultPeriod
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	a := &Aggregator{
		cfg:      cfg,
		in:       in,
		pub:      pub,
		store:    store,
		log:      logger.Named("recovery"),
		replica:  NewReplica(),
		periodCh: make(chan struct{}, 1),
	}
	a.period.Store(int64(cfg.Period))
	return a
}

// Run starts the fold and snapshot drivers and blocks until ctx is done or one
// of them fails.
func (a *Aggregator) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return safe.Run(func() error { return a.foldLoop(ctx) }) })
	g.Go(func() error { return safe.Run(func() error { return a.snapshotLoop(ctx) }) })
	return g.Wait()
}

func (a *Aggregator) foldLoop(ctx context.Context) error {
	if a.in == nil {
		<-ctx.Done()
		return ctx.Err()
	}
	batch := make([]feed.IncrementalMessage, 0, 256)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-a.in.Notify():
			batch = a.in.Drain(batch[:0])
			for i := range batch {
				a.Apply(batch[i])
				batch[i] = feed.IncrementalMessage{}
			}
			if !ok {
				// 输入关闭：副本不再变化，snapshot driver 继续按周期发布
				<-ctx.Done()
				return ctx.Err()
			}
		}
	}
}

func (a *Aggregator) snapshotLoop(ctx context.Context) error {
	ticker := time.NewTicker(a.Period())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-a.periodCh:
			ticker.Reset(a.Period())
		case <-ticker.C:
			if err := a.PublishNow(ctx); err != nil && ctx.Err() == nil {
				// 发布失败不退出，下个周期再发
				a.log.Warn("publish snapshot", zap.Error(err))
			}
		}
	}
}

// Apply folds one message into the replica.
func (a *Aggregator) Apply(m feed.IncrementalMessage) {
	a.mu.Lock()
	res := a.replica.Fold(m)
	last := a.replica.LastSeq()
	a.mu.Unlock()

	switch {
	case res.Reset:
		metrics.RecoverySessionResets.Inc()
		a.log.Info("new engine session, replica reset", zap.String("session", m.Session))
	case res.Stale:
		a.log.Debug("stale message ignored", zap.Uint64("seq", m.Seq), zap.Uint64("last", last))
		return
	}
	if res.Gap {
		metrics.RecoveryGaps.Inc()
		a.log.Warn("sequence gap",
			zap.String("instrument", a.cfg.Instrument),
			zap.Uint64("want", res.Want),
			zap.Uint64("got", m.Seq))
	}
	metrics.RecoveryLastApplied.Set(float64(last))
}

// Snapshot returns the current replica as a recovery snapshot.
func (a *Aggregator) Snapshot() feed.RecoverySnapshot {
	now := a.cfg.Clock()
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.replica.Snapshot(now)
}

// PublishNow publishes and stores one snapshot outside the periodic schedule.
func (a *Aggregator) PublishNow(ctx context.Context) error {
	snap := a.Snapshot()
	var errs []error
	if a.pub != nil {
		if err := a.pub.PublishSnapshot(ctx, snap); err != nil {
			errs = append(errs, err)
		} else {
			a.published.Add(1)
			metrics.RecoverySnapshots.Inc()
		}
	}
	if a.store != nil {
		if err := a.store.Save(ctx, a.cfg.Instrument, snap); err != nil && !errors.Is(err, ErrNotLeader) {
			errs = append(errs, err)
		}
	}
	a.log.Debug("snapshot",
		zap.Uint64("last_seq", snap.LastSeq),
		zap.Int("levels", len(snap.Levels)),
		zap.Uint64("gaps", snap.Gaps))
	return errors.Join(errs...)
}

// SetPeriod changes the snapshot period; the next tick comes d from now.
func (a *Aggregator) SetPeriod(d time.Duration) {
	if d <= 0 {
		d = DefaultPeriod
	}
	if time.Duration(a.period.Swap(int64(d))) == d {
		return
	}
	a.log.Info("snapshot period changed", zap.Duration("period", d))
	select {
	case a.periodCh <- struct{}{}:
	default:
	}
}

func (a *Aggregator) Period() time.Duration { return time.Duration(a.period.Load()) }

// Published is the number of snapshots handed to the publisher successfully.
func (a *Aggregator) Published() uint64 { return a.published.Load() }
