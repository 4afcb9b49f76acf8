package notify

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/dwitter/apiserver/internal/mq"
	"github.com/dwitter/apiserver/types"
	"github.com/sirupsen/logrus"
)

// Publisher is the part of mq.MQ the broker sink needs.
type Publisher interface {
	PublishJSON(ctx context.Context, channel string, value any, attrs map[string]string) (string, error)
}

// Subscriber is the part of mq.MQ the relay needs.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string, handler mq.Handler) error
}

// BrokerSink publishes events on a broker channel.
type BrokerSink struct {
	publisher Publisher
	channel   string
}

func NewBrokerSink(publisher Publisher, channel string) *BrokerSink {
	return &BrokerSink{publisher: publisher, channel: channel}
}

func (s *BrokerSink) Name() string { return "broker" }

func (s *BrokerSink) Deliver(ctx context.Context, event types.Event) error {
	_, err := s.publisher.PublishJSON(ctx, s.channel, event, map[string]string{
		"event":    event.Name,
		"event_id": event.ID,
	})
	return err
}

// Relay feeds events received from the broker into a local sink, usually
// the Hub, so every instance pushes every event to its own clients.
type Relay struct {
	subscriber Subscriber
	channel    string
	target     Sink
	logger     logrus.FieldLogger
	backoff    time.Duration
}

func NewRelay(subscriber Subscriber, channel string, target Sink, logger logrus.FieldLogger) *Relay {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Relay{
		subscriber: subscriber,
		channel:    channel,
		target:     target,
		logger:     logger.WithField("component", "relay"),
		backoff:    time.Second,
	}
}

// Run subscribes until ctx is done, resubscribing after broker failures.
func (r *Relay) Run(ctx context.Context) error {
	backoff := r.backoff
	for {
		err := r.subscriber.Subscribe(ctx, r.channel, r.handle)
		if ctx.Err() != nil {
			return nil
		}
		r.logger.WithError(err).WithField("retry_in", backoff).Warn("broker subscription ended")

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (r *Relay) handle(ctx context.Context, msg mq.Message) error {
	var event types.Event
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		r.logger.WithError(err).WithField("message_id", msg.ID).Warn("discarding undecodable event")
		return nil
	}
	if event.Name == "" {
		return errors.New("event without name")
	}
	return r.target.Deliver(ctx, event)
}
