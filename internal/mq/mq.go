// Package mq provides a broker-agnostic message queue used by the audit
// event pipeline. RabbitMQ and Google Cloud Pub/Sub backends are
// supported.
package mq

import (
	"context"
	"fmt"

	"github.com/aura-assist/gateway/config"
)

// Message is a broker-agnostic payload delivered to subscribers.
type Message struct {
	ID         string
	Data       []byte
	Attributes map[string]string
}

// Handler processes a message. Return an error to signal a retry/nack.
type Handler func(ctx context.Context, msg Message) error

// Backend defines the broker operations the audit pipeline uses.
type Backend interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
	Subscribe(ctx context.Context, channel string, handler Handler) error
	Close() error
}

// NewBackend constructs the queue backend selected by
// cfg.Audit.QueueBackend, or nil when auditing to a queue is disabled.
func NewBackend(ctx context.Context, cfg config.Config) (Backend, error) {
	switch cfg.Audit.QueueBackend {
	case "":
		return nil, nil
	case "rabbitmq":
		return NewRabbitMQClient(cfg.RabbitMQ)
	case "pubsub":
		return NewPubSubClient(ctx, cfg.PubSub)
	default:
		return nil, fmt.Errorf("unknown queue backend %q", cfg.Audit.QueueBackend)
	}
}
