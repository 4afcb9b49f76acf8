package notify

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/dwitter/apiserver/internal/metrics"
	"github.com/dwitter/apiserver/types"
	"github.com/sirupsen/logrus"
)

const (
	defaultQueueSize       = 256
	defaultDeliveryTimeout = 5 * time.Second
)

// Sink delivers an event to one destination.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, event types.Event) error
}

// DispatcherOptions configures a Dispatcher. Zero values pick defaults.
type DispatcherOptions struct {
	QueueSize       int
	DeliveryTimeout time.Duration
	Logger          logrus.FieldLogger
	Metrics         *metrics.Metrics
}

// Dispatcher fans events out to sinks from a single background worker.
// Emit never blocks the caller; delivery failures are logged and counted.
type Dispatcher struct {
	sinks   []Sink
	timeout time.Duration
	logger  logrus.FieldLogger
	metrics *metrics.Metrics

	mu     sync.RWMutex
	closed bool
	queue  chan types.Event
	done   chan struct{}
}

// NewDispatcher starts the worker. Call Close to drain and stop it.
func NewDispatcher(opts DispatcherOptions, sinks ...Sink) *Dispatcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.DeliveryTimeout <= 0 {
		opts.DeliveryTimeout = defaultDeliveryTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}

	d := &Dispatcher{
		sinks:   sinks,
		timeout: opts.DeliveryTimeout,
		logger:  opts.Logger.WithField("component", "dispatcher"),
		metrics: opts.Metrics,
		queue:   make(chan types.Event, opts.QueueSize),
		done:    make(chan struct{}),
	}
	go d.run()
	return d
}

// Emit enqueues event. A full queue or a closed dispatcher drops it.
func (d *Dispatcher) Emit(event types.Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.drop(event, "dispatcher closed")
		return
	}
	select {
	case d.queue <- event:
	default:
		d.drop(event, "queue full")
	}
}

// Close stops accepting events and waits for queued ones to be delivered
// or for ctx to end.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for event := range d.queue {
		for _, sink := range d.sinks {
			d.deliver(sink, event)
		}
	}
}

func (d *Dispatcher) deliver(sink Sink, event types.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			d.metrics.EventDelivered(sink.Name(), fmt.Errorf("panic: %v", r))
			d.logger.WithFields(logrus.Fields{
				"sink":     sink.Name(),
				"event_id": event.ID,
				"stack":    string(debug.Stack()),
			}).Errorf("sink panicked: %v", r)
		}
	}()

	err := sink.Deliver(ctx, event)
	d.metrics.EventDelivered(sink.Name(), err)
	if err != nil {
		d.logger.WithError(err).WithFields(logrus.Fields{
			"sink":     sink.Name(),
			"event":    event.Name,
			"event_id": event.ID,
		}).Warn("event delivery failed")
	}
}

func (d *Dispatcher) drop(event types.Event, reason string) {
	d.metrics.EventDropped()
	d.logger.WithFields(logrus.Fields{
		"event":    event.Name,
		"event_id": event.ID,
		"reason":   reason,
	}).Warn("event dropped")
}
