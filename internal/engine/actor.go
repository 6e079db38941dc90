package engine

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"matchfeed.com/pkg/logger"
	"matchfeed.com/pkg/metrics"
)

type ActorConfig struct {
	MailboxSize int // mailbox 容量
	BatchMax    int // 一次最多处理多少条
	// Journal, when set, receives every mutating command before it is applied.
	Journal Journal
}

type reply struct {
	res Result
	err error
}

type request struct {
	cmd   Command
	view  func(e *Engine) // 非 nil 时是只读查询，不走 journal
	reply chan reply      // buffered=1, nil 表示调用方不等结果
}

// Actor owns an Engine on a single goroutine. Callers submit commands through
// a bounded mailbox that never blocks: a full mailbox answers ErrEngineBusy.
type Actor struct {
	eng   *Engine
	in    chan request
	cfg   ActorConfig
	codec BinaryCmdCodec
	log   *zap.Logger

	done     chan struct{}
	stopOnce sync.Once

	mailboxFull atomic.Uint64
}

func NewActor(eng *Engine, cfg ActorConfig) *Actor {
	if cfg.MailboxSize <= 0 {
		cfg.MailboxSize = 4096
	}
	if cfg.BatchMax <= 0 {
		cfg.BatchMax = 256
	}
	return &Actor{
		eng:  eng,
		in:   make(chan request, cfg.MailboxSize),
		cfg:  cfg,
		log:  logger.Named("actor"),
		done: make(chan struct{}),
	}
}

func (a *Actor) enqueue(r request) error {
	select {
	case <-a.done:
		return ErrStopped
	default:
	}
	// chan 满了直接走 default，不阻塞调用方
	select {
	case a.in <- r:
		return nil
	default:
		a.mailboxFull.Add(1)
		metrics.EngineMailboxFull.Inc()
		return ErrEngineBusy
	}
}

// TrySubmit enqueues cmd without waiting for its result.
func (a *Actor) TrySubmit(cmd Command) error {
	return a.enqueue(request{cmd: cmd})
}

// Do enqueues cmd and waits for the engine's answer. ctx only bounds the wait:
// once enqueued the command still runs.
func (a *Actor) Do(ctx context.Context, cmd Command) (Result, error) {
	r := request{cmd: cmd, reply: make(chan reply, 1)}
	if err := a.enqueue(r); err != nil {
		return Result{}, err
	}
	select {
	case rep := <-r.reply:
		return rep.res, rep.err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case <-a.done:
		// 停机前可能已经回复
		select {
		case rep := <-r.reply:
			return rep.res, rep.err
		default:
			return Result{}, ErrStopped
		}
	}
}

// Inspect runs fn on the engine goroutine between commands, so fn may read
// the book (Dump, Levels) safely. fn must not keep e.
func (a *Actor) Inspect(ctx context.Context, fn func(e *Engine)) error {
	r := request{view: fn, reply: make(chan reply, 1)}
	if err := a.enqueue(r); err != nil {
		return err
	}
	select {
	case rep := <-r.reply:
		return rep.err
	case <-ctx.Done():
		return ctx.Err()
	case <-a.done:
		select {
		case rep := <-r.reply:
			return rep.err
		default:
			return ErrStopped
		}
	}
}

func (a *Actor) MailboxFull() uint64 { return a.mailboxFull.Load() }

// Done is closed once Run has returned.
func (a *Actor) Done() <-chan struct{} { return a.done }

// Run processes the mailbox until ctx is done or the journal fails.
func (a *Actor) Run(ctx context.Context) error {
	defer a.stop()

	// 复用 batch slice，避免每轮分配
	batch := make([]request, 0, a.cfg.BatchMax)
	var rec [cmdRecordLen]byte
	for {
		// 先阻塞拿 1 条，再尽量多拿几条（不阻塞）
		select {
		case <-ctx.Done():
			return ctx.Err()
		case r := <-a.in:
			batch = append(batch[:0], r)
		}
	fill:
		for len(batch) < a.cfg.BatchMax {
			select {
			case r := <-a.in:
				batch = append(batch, r)
			default:
				break fill
			}
		}

		// phase 1: 打时间戳，写 journal，整批 flush 一次
		journaled := false
		for i := range batch {
			cmd := &batch[i].cmd
			if !cmd.Type.mutating() {
				continue
			}
			if cmd.TS == 0 {
				cmd.TS = a.eng.cfg.Clock().UnixNano()
			}
			if a.cfg.Journal == nil {
				continue
			}
			payload, err := a.codec.Encode(rec[:0], *cmd)
			if err == nil {
				err = a.cfg.Journal.Append(payload)
			}
			if err != nil {
				return a.fail(batch, err)
			}
			journaled = true
		}
		if journaled {
			if err := a.cfg.Journal.Flush(); err != nil {
				return a.fail(batch, err)
			}
		}

		// phase 2: apply + 回复
		for i := range batch {
			r := batch[i]
			if r.view != nil {
				r.view(a.eng)
				r.reply <- reply{}
				batch[i] = request{}
				continue
			}
			res, err := a.eng.apply(r.cmd)
			metrics.EngineCommandsTotal.WithLabelValues(r.cmd.Type.String(), resultLabel(err)).Inc()
			if r.reply != nil {
				r.reply <- reply{res: res, err: err}
			}
			batch[i] = request{}
		}
	}
}

// journal 写失败视为致命：这一批都不 apply，actor 退出
func (a *Actor) fail(batch []request, err error) error {
	a.log.Error("journal write failed, stopping engine", zap.Error(err))
	for _, r := range batch {
		if r.reply != nil {
			r.reply <- reply{err: err}
		}
	}
	return err
}

func (a *Actor) stop() {
	a.stopOnce.Do(func() {
		if a.cfg.Journal != nil {
			if err := a.cfg.Journal.Close(); err != nil {
				a.log.Warn("close journal", zap.Error(err))
			}
		}
		close(a.done)
	})
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	return "error"
}
