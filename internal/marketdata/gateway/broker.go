package gateway

import (
	"context"
	"strings"
)

type Message struct {
	Topic   string
	Payload []byte
}

// Broker carries feed payloads between the engine process and the websocket
// gateways. Delivery is at-most-once: slow subscribers lose messages.
type Broker interface {
	// publish
	Publish(ctx context.Context, topic string, payload []byte) error
	// 订阅，ctx 结束时关闭返回的 channel
	Subscribe(ctx context.Context, topics []string) (<-chan Message, error)
	// 关闭
	Close() error
}

// NATS subjects and Kafka topics don't allow ':'.
func topicToSubject(topic string) string { return strings.ReplaceAll(topic, ":", ".") }
func subjectToTopic(subj string) string  { return strings.ReplaceAll(subj, ".", ":") }
