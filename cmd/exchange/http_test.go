package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"matchfeed.com/internal/engine"
	"matchfeed.com/internal/feed"
	"matchfeed.com/internal/matching"
	"matchfeed.com/internal/recovery"
)

func TestMux_BookSnapshotHealth(t *testing.T) {
	q := feed.NewQueue("test", 0)
	eng := engine.New(engine.Config{Instrument: "BTC-USD"}, q)
	a := engine.NewActor(eng, engine.ActorConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan struct{})
	go func() { _ = a.Run(ctx); close(runDone) }()

	_, err := a.Do(ctx, engine.Command{Type: engine.CmdInsert, Side: matching.Buy, Price: 100, Qty: 4})
	require.NoError(t, err)

	agg := recovery.New(recovery.Config{Instrument: "BTC-USD"}, nil, nil, nil)
	for _, m := range q.Drain(nil) {
		agg.Apply(m)
	}
	mux := newMux(nil, a, agg, nil)

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	rec := get("/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = get("/book")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "4(ID: 1)")

	rec = get("/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
	assert.JSONEq(t, `{"code":200,"message":"OK","data":{"instrument":"BTC-USD","session":"`+eng.Session()+
		`","seq":1,"resting":1,"levels":1,"best_bid":100,"best_ask":null}}`, rec.Body.String())

	rec = get("/snapshot")
	require.Equal(t, http.StatusOK, rec.Code)
	v, err := feed.JSONCodec{}.Decode(rec.Body.Bytes())
	require.NoError(t, err)
	snap := v.(feed.RecoverySnapshot)
	assert.Equal(t, uint64(1), snap.LastSeq)
	require.Len(t, snap.Levels, 1)
	assert.Equal(t, int64(4), snap.Levels[0][0].Qty)

	cancel()
	<-runDone
	assert.Equal(t, http.StatusServiceUnavailable, get("/healthz").Code)
	assert.Equal(t, http.StatusInternalServerError, get("/book").Code)
}
