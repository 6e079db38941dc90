package influxsink

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"matchfeed.com/internal/matching"
)

type fakeWriter struct {
	mu  sync.Mutex
	pts []*write.Point
}

func (f *fakeWriter) WritePoint(p *write.Point) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pts = append(f.pts, p)
}

func (f *fakeWriter) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pts)
}

func TestSink_PointShape(t *testing.T) {
	s := newSink(&fakeWriter{}, "BTC-USD", decimal.RequireFromString("0.01"), 0)
	at := time.Unix(0, 1700000000000000000)
	p := s.point(tradeEvent{t: matching.Trade{TakerID: 9, MakerID: 3, Side: matching.Sell, Price: 10050, Qty: 2}, at: at})

	assert.Equal(t, "trade", p.Name())
	assert.Equal(t, at, p.Time())

	tags := map[string]string{}
	for _, tg := range p.TagList() {
		tags[tg.Key] = tg.Value
	}
	assert.Equal(t, map[string]string{"instrument": "BTC-USD", "side": "sell"}, tags)

	fields := map[string]interface{}{}
	for _, f := range p.FieldList() {
		fields[f.Key] = f.Value
	}
	assert.InDelta(t, 100.50, fields["price"], 1e-9)
	assert.Equal(t, int64(10050), fields["price_ticks"])
	assert.Equal(t, int64(2), fields["qty"])
	assert.Equal(t, int64(3), fields["maker"])
	assert.Equal(t, int64(9), fields["taker"])
}

func TestSink_TradeNeverBlocks(t *testing.T) {
	s := newSink(&fakeWriter{}, "X", decimal.Zero, 2)
	for i := 0; i < 5; i++ {
		s.Trade(matching.Trade{Price: 1, Qty: 1, Side: matching.Buy}, time.Now())
	}
	assert.Equal(t, uint64(3), s.Dropped())
}

func TestSink_RunWritesAndFlushesOnCancel(t *testing.T) {
	w := &fakeWriter{}
	s := newSink(w, "X", decimal.Zero, 16)
	for i := 0; i < 10; i++ {
		s.Trade(matching.Trade{Price: int64(i + 1), Qty: 1, Side: matching.Buy}, time.Now())
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return w.len() == 10 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, uint64(10), s.Written())
	s.Close()
}
