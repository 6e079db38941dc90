package engine

import (
	"sync/atomic"
	"time"

	"matchfeed.com/internal/feed"
	"matchfeed.com/internal/matching"
	"matchfeed.com/pkg/metrics"
)

// TradeSink receives every fill. Like feed sinks it must not block.
type TradeSink interface {
	Trade(t matching.Trade, at time.Time)
}

// Sequencer turns book callbacks into numbered incremental messages and hands
// each one to every sink in order. Numbers start at 1 and never skip.
type Sequencer struct {
	session string
	seq     atomic.Uint64 // 只有引擎写，其他 goroutine 可以读
	sinks   []feed.Sink
	trades  []TradeSink
	now     func() time.Time
}

func newSequencer(session string, now func() time.Time, sinks []feed.Sink, trades []TradeSink) *Sequencer {
	return &Sequencer{session: session, sinks: sinks, trades: trades, now: now}
}

func (s *Sequencer) LevelChanged(price int64, orders []matching.Order) {
	n := s.seq.Add(1)
	msg := feed.NewIncremental(s.session, n, price, orders)
	for _, sink := range s.sinks {
		sink.Deliver(msg)
	}
	metrics.EngineSequence.Set(float64(n))
}

func (s *Sequencer) Traded(t matching.Trade) {
	metrics.EngineTradesTotal.Inc()
	metrics.EngineTradedQty.Add(float64(t.Qty))
	if len(s.trades) == 0 {
		return
	}
	at := s.now()
	for _, ts := range s.trades {
		ts.Trade(t, at)
	}
}

func (s *Sequencer) Seq() uint64 { return s.seq.Load() }
