package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dwitter/apiserver/config"
	"github.com/dwitter/apiserver/internal/mq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBrokerSinkAndRelay_OverRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	backend, err := mq.NewRedisClient(context.Background(), config.RedisConfig{URL: "redis://" + mr.Addr(), DB: -1})
	require.NoError(t, err)
	broker := mq.New(backend)
	t.Cleanup(func() { _ = broker.Close() })

	logger, _ := quietLogger()
	local := &recordingSink{name: "hub"}
	relay := NewRelay(broker, "tweets", local, logger)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan error, 1)
	go func() { stopped <- relay.Run(ctx) }()

	require.Eventually(t, func() bool {
		return mr.PubSubNumSub("tweets")["tweets"] == 1
	}, 2*time.Second, 10*time.Millisecond)

	event := newEvent("over the wire")
	require.NoError(t, NewBrokerSink(broker, "tweets").Deliver(context.Background(), event))

	require.Eventually(t, func() bool { return len(local.received()) == 1 }, 2*time.Second, 10*time.Millisecond)
	got := local.received()[0]
	assert.Equal(t, event.ID, got.ID)
	assert.Equal(t, "over the wire", got.Data.Text)
	assert.True(t, event.OccurredAt.Equal(got.OccurredAt))

	cancel()
	select {
	case err := <-stopped:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not stop")
	}
}

type flakySubscriber struct {
	calls int
	ok    chan struct{}
}

func (f *flakySubscriber) Subscribe(ctx context.Context, _ string, _ mq.Handler) error {
	f.calls++
	if f.calls < 3 {
		return errors.New("connection reset")
	}
	close(f.ok)
	<-ctx.Done()
	return ctx.Err()
}

func TestRelay_ResubscribesAfterFailure(t *testing.T) {
	logger, hook := quietLogger()
	sub := &flakySubscriber{ok: make(chan struct{})}
	relay := NewRelay(sub, "tweets", &recordingSink{name: "hub"}, logger)
	relay.backoff = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stopped := make(chan error, 1)
	go func() { stopped <- relay.Run(ctx) }()

	select {
	case <-sub.ok:
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not resubscribe")
	}
	cancel()
	assert.NoError(t, <-stopped)
	assert.Len(t, hook.AllEntries(), 2)
}

func TestRelay_DiscardsUndecodableMessages(t *testing.T) {
	logger, _ := quietLogger()
	local := &recordingSink{name: "hub"}
	relay := NewRelay(nil, "tweets", local, logger)

	assert.NoError(t, relay.handle(context.Background(), mq.Message{ID: "1", Data: []byte("not json")}))
	assert.Error(t, relay.handle(context.Background(), mq.Message{ID: "2", Data: []byte(`{}`)}))
	assert.Empty(t, local.received())
}
