package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dwitter/apiserver/config"
	"github.com/go-redis/redis/v8"
)

// redisEnvelope carries the id and attributes Redis pub/sub has no room for.
type redisEnvelope struct {
	ID         string            `json:"id"`
	Data       []byte            `json:"data"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// RedisClient implements Backend over Redis PUBLISH/SUBSCRIBE. Delivery is
// at-most-once: subscribers that are not connected miss the message.
type RedisClient struct {
	client *redis.Client
}

// NewRedisClient parses cfg.URL, applies overrides and pings the server.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*RedisClient, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.DB >= 0 {
		opts.DB = cfg.DB
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisClient{client: client}, nil
}

// Publish sends a message to the named channel.
func (r *RedisClient) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if strings.TrimSpace(channel) == "" {
		return "", errors.New("redis channel is required")
	}

	envelope := redisEnvelope{ID: newMessageID(), Data: data, Attributes: attrs}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return "", err
	}
	if err := r.client.Publish(ctx, channel, payload).Err(); err != nil {
		return "", err
	}
	return envelope.ID, nil
}

// Subscribe receives messages from the named channel until ctx is done.
// Redis does not redeliver, so handler errors only skip the message.
func (r *RedisClient) Subscribe(ctx context.Context, channel string, handler Handler) error {
	if strings.TrimSpace(channel) == "" {
		return errors.New("redis channel is required")
	}

	sub := r.client.Subscribe(ctx, channel)
	defer sub.Close()

	// Wait for the subscription to be confirmed before consuming.
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return errors.New("redis subscription closed")
			}
			var envelope redisEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &envelope); err != nil {
				continue
			}
			_ = handler(ctx, Message{
				ID:         envelope.ID,
				Data:       envelope.Data,
				Attributes: envelope.Attributes,
			})
		}
	}
}

// Close closes the underlying client.
func (r *RedisClient) Close() error {
	return r.client.Close()
}
