package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"matchfeed.com/internal/marketdata/ws"
)

func TestTopicSubjectMapping(t *testing.T) {
	assert.Equal(t, "md.inc.BTC-USD", topicToSubject("md:inc:BTC-USD"))
	assert.Equal(t, "md:rec:BTC-USD", subjectToTopic("md.rec.BTC-USD"))
}

func TestMemBroker_FanoutAndCleanup(t *testing.T) {
	b := NewMemBroker()
	ctx, cancel := context.WithCancel(context.Background())

	c1, err := b.Subscribe(ctx, []string{"a"})
	require.NoError(t, err)
	c2, err := b.Subscribe(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, 2, b.Subscribers("a"))

	require.NoError(t, b.Publish(ctx, "a", []byte("x")))
	assert.Equal(t, "x", string((<-c1).Payload))
	assert.Equal(t, "x", string((<-c2).Payload))

	cancel()
	_, ok := <-c1
	assert.False(t, ok, "channel closed after ctx done")
	assert.Eventually(t, func() bool { return b.Subscribers("a") == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, b.Publish(context.Background(), "b", []byte("y")))
	m := <-c2
	assert.Equal(t, "b", m.Topic)
}

func TestMemBroker_SlowSubscriberDrops(t *testing.T) {
	b := NewMemBroker()
	ch, err := b.Subscribe(context.Background(), []string{"a"})
	require.NoError(t, err)

	for i := 0; i < memSubBuf+10; i++ {
		require.NoError(t, b.Publish(context.Background(), "a", []byte{1}))
	}
	assert.Len(t, ch, memSubBuf)
}

func TestGateway_BridgesBrokerToHub(t *testing.T) {
	b := NewMemBroker()
	hub := ws.NewHub("md:rec:")
	g := NewGateway(hub, b)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- g.Run(ctx, []string{"md:rec:BTC-USD", "md:inc:BTC-USD"}) }()

	select {
	case <-g.Ready():
	case <-time.After(time.Second):
		t.Fatal("gateway never subscribed")
	}

	require.NoError(t, b.Publish(ctx, "md:rec:BTC-USD", []byte(`{"type":"rec"}`)))
	require.NoError(t, b.Publish(ctx, "md:inc:BTC-USD", []byte(`{"type":"inc"}`)))
	require.Eventually(t, func() bool { return g.Forwarded() == 2 }, time.Second, 5*time.Millisecond)

	// 网关转发后 hub 保留了最新快照，新连接订阅即可拿到
	c := ws.NewConn(hub, nil, 0)
	hub.Subscribe(c, []string{"md:rec:BTC-USD"})
	assert.Equal(t, 1, hub.Subscribers("md:rec:BTC-USD"))

	cancel()
	err := <-done
	assert.True(t, errors.Is(err, context.Canceled) || err == nil, "err=%v", err)
}

type failingBroker struct{ MemBroker }

func (*failingBroker) Subscribe(context.Context, []string) (<-chan Message, error) {
	return nil, errors.New("down")
}

func TestGateway_SubscribeError(t *testing.T) {
	g := NewGateway(ws.NewHub(), &failingBroker{})
	err := g.Run(context.Background(), []string{"md:inc:X"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "md:inc:X")
}

func TestKafkaBroker_RequiresBrokers(t *testing.T) {
	_, err := NewKafkaBroker(KafkaConfig{})
	require.Error(t, err)

	b, err := NewKafkaBroker(KafkaConfig{Brokers: []string{"localhost:9092"}})
	require.NoError(t, err)
	assert.Contains(t, b.cfg.GroupID, "md-gateway-")
	assert.True(t, b.w.Async)
	require.NoError(t, b.Close())
}
