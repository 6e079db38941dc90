package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"matchfeed.com/internal/engine"
	"matchfeed.com/internal/feed"
	"matchfeed.com/internal/marketdata/ws"
	"matchfeed.com/pkg/common"
	"matchfeed.com/pkg/middleware"
	"matchfeed.com/pkg/ratelimit"
)

type bookInspector interface {
	Inspect(ctx context.Context, fn func(e *engine.Engine)) error
	Done() <-chan struct{}
}

type snapshotter interface {
	Snapshot() feed.RecoverySnapshot
}

// newMux wires the HTTP routes. limit, when set, rate limits every route by
// client IP and path.
func newMux(wsSrv *ws.Server, book bookInspector, snaps snapshotter, limit *ratelimit.Store) http.Handler {
	mux := http.NewServeMux()
	if wsSrv != nil {
		mux.HandleFunc("/ws", wsSrv.ServeWS)
	}
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-book.Done():
			http.Error(w, "engine stopped", http.StatusServiceUnavailable)
		default:
			_, _ = w.Write([]byte("ok"))
		}
	})

	// 人看的盘口视图，在引擎协程里渲染
	mux.HandleFunc("/book", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		var buf bytes.Buffer
		if err := book.Inspect(ctx, func(e *engine.Engine) { e.Dump(&buf) }); err != nil {
			common.FailErr(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write(buf.Bytes())
	})

	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		var st bookStats
		if err := book.Inspect(ctx, func(e *engine.Engine) { st = statsOf(e) }); err != nil {
			common.FailErr(w, r, err)
			return
		}
		common.Success(w, st)
	})

	// 最近一次折叠出来的副本，慢消费者可以直接拉
	mux.HandleFunc("/snapshot", func(w http.ResponseWriter, r *http.Request) {
		b, err := feed.JSONCodec{}.EncodeSnapshot(snaps.Snapshot())
		if err != nil {
			common.FailErr(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(b)
	})

	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	mws := []func(http.Handler) http.Handler{middleware.Recover, middleware.ReqID}
	if limit != nil {
		mws = append(mws, middleware.RateLimit(limit))
	}
	return middleware.Chain(mux, mws...)
}

type bookStats struct {
	Instrument string `json:"instrument"`
	Session    string `json:"session"`
	Seq        uint64 `json:"seq"`
	Resting    int    `json:"resting"`
	Levels     int    `json:"levels"`
	BestBid    *int64 `json:"best_bid"`
	BestAsk    *int64 `json:"best_ask"`
}

func statsOf(e *engine.Engine) bookStats {
	st := bookStats{
		Instrument: e.Instrument(),
		Session:    e.Session(),
		Seq:        e.Sequence(),
		Resting:    e.Resting(),
		Levels:     len(e.Levels()),
	}
	if p, ok := e.BestBid(); ok {
		st.BestBid = &p
	}
	if p, ok := e.BestAsk(); ok {
		st.BestAsk = &p
	}
	return st
}
