package gateway

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"matchfeed.com/internal/marketdata/ws"
	"matchfeed.com/pkg/logger"
)

type Gateway struct {
	hub    *ws.Hub
	broker Broker
	log    *zap.Logger

	ready     chan struct{}
	forwarded atomic.Uint64
}

func NewGateway(hub *ws.Hub, broker Broker) *Gateway {
	return &Gateway{
		hub:    hub,
		broker: broker,
		log:    logger.Named("gateway"),
		ready:  make(chan struct{}),
	}
}

// Ready is closed once Run has subscribed to the broker.
func (g *Gateway) Ready() <-chan struct{} { return g.ready }

// Forwarded counts payloads handed to the hub.
func (g *Gateway) Forwarded() uint64 { return g.forwarded.Load() }

// Run 订阅 broker 消息并转发到本地 hub，直到 ctx 结束或订阅关闭。
func (g *Gateway) Run(ctx context.Context, topics []string) error {
	ch, err := g.broker.Subscribe(ctx, topics)
	if err != nil {
		return fmt.Errorf("gateway subscribe %s: %w", strings.Join(topics, ","), err)
	}
	close(g.ready)
	g.log.Info("gateway subscribed", zap.Strings("topics", topics))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			g.hub.Publish(m.Topic, m.Payload)
			g.forwarded.Add(1)
		}
	}
}
