package mq

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dwitter/apiserver/config"
)

// Message represents a broker-agnostic payload delivered to subscribers.
type Message struct {
	ID         string
	Data       []byte
	Attributes map[string]string
}

// Handler processes a message. Return an error to signal a retry/nack where
// the backend supports redelivery.
type Handler func(ctx context.Context, msg Message) error

// Backend defines the broker-agnostic operations used by the app. Every
// subscriber of a channel receives every message published on it.
type Backend interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
	Subscribe(ctx context.Context, channel string, handler Handler) error
	Close() error
}

// MQ wraps a backend with a stable API.
type MQ struct {
	backend Backend
}

// New constructs an MQ wrapper for the provided backend.
func New(backend Backend) *MQ {
	return &MQ{backend: backend}
}

// Open connects the broker selected by cfg.Notify.Broker. It returns nil
// when no broker is configured.
func Open(ctx context.Context, cfg config.Config) (*MQ, error) {
	var (
		backend Backend
		err     error
	)
	switch cfg.Notify.Broker {
	case config.BrokerNone:
		return nil, nil
	case config.BrokerRabbitMQ:
		backend, err = NewRabbitMQClient(cfg.RabbitMQ)
	case config.BrokerPubSub:
		backend, err = NewPubSubClient(ctx, cfg.PubSub)
	case config.BrokerRedis:
		backend, err = NewRedisClient(ctx, cfg.Redis)
	default:
		return nil, fmt.Errorf("unknown notify broker %q", cfg.Notify.Broker)
	}
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.Notify.Broker, err)
	}
	return New(backend), nil
}

// Publish sends a message to the named channel.
func (m *MQ) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	return m.backend.Publish(ctx, channel, data, attrs)
}

// PublishJSON marshals value and publishes it with a JSON content type.
func (m *MQ) PublishJSON(ctx context.Context, channel string, value any, attrs map[string]string) (string, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("marshal message: %w", err)
	}

	merged := map[string]string{"content_type": "application/json"}
	for key, v := range attrs {
		merged[key] = v
	}
	return m.backend.Publish(ctx, channel, data, merged)
}

// Subscribe consumes messages from the named channel until ctx is done.
func (m *MQ) Subscribe(ctx context.Context, channel string, handler Handler) error {
	return m.backend.Subscribe(ctx, channel, handler)
}

// Close closes the underlying backend.
func (m *MQ) Close() error {
	return m.backend.Close()
}
