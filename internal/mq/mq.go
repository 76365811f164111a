// Package mq provides broker-agnostic publish/subscribe over RabbitMQ or Google Cloud Pub/Sub.
package mq

import (
	"context"
	"fmt"

	"github.com/taskboard/apiserver/config"
)

// Message is a broker-agnostic payload.
type Message struct {
	ID          string
	Data        []byte
	ContentType string
	Attributes  map[string]string
}

// Handler processes a delivered message. Returning an error requeues it.
type Handler func(ctx context.Context, msg Message) error

// Backend is implemented by every broker client.
type Backend interface {
	Publish(ctx context.Context, channel string, msg Message) (string, error)
	Subscribe(ctx context.Context, channel string, handler Handler) error
	Close() error
}

// Open connects to the broker selected by cfg.EventsBackend.
func Open(ctx context.Context, cfg config.Config) (Backend, error) {
	switch cfg.EventsBackend {
	case config.EventsBackendRabbitMQ:
		return NewRabbitMQClient(cfg.RabbitMQ)
	case config.EventsBackendPubSub:
		return NewPubSubClient(ctx, cfg.PubSub)
	default:
		return nil, fmt.Errorf("events backend %q has no broker", cfg.EventsBackend)
	}
}
