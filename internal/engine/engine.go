package engine

import (
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"matchfeed.com/internal/feed"
	"matchfeed.com/internal/matching"
	"matchfeed.com/pkg/logger"
	"matchfeed.com/pkg/metrics"
)

type Config struct {
	Instrument string
	// TickSize is the decimal value of one price tick, used only for display.
	TickSize decimal.Decimal
	// Clock stamps order arrival; defaults to time.Now.
	Clock func() time.Time
	// Session identifies this engine instance on the feed; a fresh uuid when empty.
	Session    string
	TradeSinks []TradeSink
}

// Engine is the order book and the feed sequencer behind one synchronous API.
// Every call runs to completion before returning, and every message it
// produced has already been handed to the sinks. It is single-writer: use it
// from one goroutine, or through an Actor.
type Engine struct {
	cfg  Config
	book *matching.OrderBook
	seq  *Sequencer
	log  *zap.Logger

	// pinned 非零时覆盖时钟，journal 回放和 actor 用它固定到达时间
	pinned int64
}

func New(cfg Config, sinks ...feed.Sink) *Engine {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Session == "" {
		cfg.Session = uuid.NewString()
	}
	if cfg.TickSize.IsZero() {
		cfg.TickSize = decimal.New(1, 0)
	}

	e := &Engine{cfg: cfg, log: logger.Named("engine")}
	e.seq = newSequencer(cfg.Session, cfg.Clock, sinks, cfg.TradeSinks)
	e.book = matching.NewOrderBook(
		matching.WithEmitter(e.seq),
		matching.WithClock(e.now),
	)
	e.log.Info("engine started",
		zap.String("instrument", cfg.Instrument),
		zap.String("session", cfg.Session))
	return e
}

func (e *Engine) now() time.Time {
	if e.pinned != 0 {
		return time.Unix(0, e.pinned)
	}
	return e.cfg.Clock()
}

func (e *Engine) Insert(side matching.Side, price, qty int64) (matching.Order, error) {
	o, err := e.book.Insert(side, price, qty)
	e.observe()
	if err != nil {
		return o, err
	}
	if e.log.Core().Enabled(zap.DebugLevel) {
		e.log.Debug("insert", zap.Uint64("id", o.ID), zap.Stringer("side", side),
			zap.Int64("price", price), zap.Int64("qty", qty), zap.Int64("remaining", o.Qty))
	}
	return o, nil
}

// Update changes price and/or quantity. A price change retires the id and the
// returned order carries the new one.
func (e *Engine) Update(id uint64, price, qty int64) (matching.Order, error) {
	o, err := e.book.Update(id, price, qty)
	e.observe()
	return o, err
}

func (e *Engine) Delete(id uint64) error {
	err := e.book.Delete(id)
	e.observe()
	return err
}

func (e *Engine) Find(id uint64) (matching.Order, bool) { return e.book.Find(id) }

// Levels returns every non-empty level, ascending by price.
func (e *Engine) Levels() []matching.Level { return e.book.Levels() }

func (e *Engine) BestBid() (int64, bool) { return e.book.BestBid() }
func (e *Engine) BestAsk() (int64, bool) { return e.book.BestAsk() }

// Resting is the number of orders in the book.
func (e *Engine) Resting() int { return e.book.Len() }

// Sequence is the last message sequence number handed to the sinks. Safe to
// call from any goroutine.
func (e *Engine) Sequence() uint64 { return e.seq.Seq() }

func (e *Engine) Session() string    { return e.cfg.Session }
func (e *Engine) Instrument() string { return e.cfg.Instrument }

// Dump writes a human readable view of the book.
func (e *Engine) Dump(w io.Writer) { dumpBook(w, e.book, e.cfg.TickSize) }

// apply runs one command at the command's own arrival time.
func (e *Engine) apply(cmd Command) (Result, error) {
	e.pinned = cmd.TS
	defer func() { e.pinned = 0 }()

	var (
		res Result
		err error
	)
	switch cmd.Type {
	case CmdInsert:
		res.Order, err = e.Insert(cmd.Side, cmd.Price, cmd.Qty)
	case CmdUpdate:
		res.Order, err = e.Update(cmd.OrderID, cmd.Price, cmd.Qty)
	case CmdDelete:
		err = e.Delete(cmd.OrderID)
	case CmdFind:
		res.Order, res.Found = e.Find(cmd.OrderID)
	default:
		err = ErrBadCommand
	}
	res.Seq = e.Sequence()
	return res, err
}

func (e *Engine) observe() {
	metrics.EngineRestingOrders.Set(float64(e.book.Len()))
}
