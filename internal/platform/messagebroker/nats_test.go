package messagebroker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YahyawiAF/co-admin-system-sub001/internal/platform/logger"
)

func TestNewNatsClient_UnreachableServer(t *testing.T) {
	client, err := NewNatsClient("nats://127.0.0.1:1", "status-service-test", logger.Discard())
	assert.Error(t, err)
	assert.Nil(t, client)
}

func TestNatsClient_ClosedConnection(t *testing.T) {
	client := &NatsClient{logger: logger.Discard()}

	err := client.Publish(context.Background(), "status.notification", []byte("{}"))
	require.ErrorIs(t, err, ErrNotConnected)

	_, err = client.Subscribe(context.Background(), "dlr.status.*", "q", nil)
	require.ErrorIs(t, err, ErrNotConnected)

	require.ErrorIs(t, client.Ping(context.Background()), ErrNotConnected)

	client.Close()
}

func TestNatsClient_PublishHonoursCancelledContext(t *testing.T) {
	client := &NatsClient{logger: logger.Discard()}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, client.Publish(ctx, "status.notification", nil), context.Canceled)
}

type fakeDrainable struct {
	valid atomic.Bool
}

func (f *fakeDrainable) IsValid() bool { return f.valid.Load() }

func TestWaitDrained(t *testing.T) {
	t.Run("returns once the subscription is gone", func(t *testing.T) {
		sub := &fakeDrainable{}
		sub.valid.Store(true)
		time.AfterFunc(30*time.Millisecond, func() { sub.valid.Store(false) })

		start := time.Now()
		require.NoError(t, WaitDrained(context.Background(), sub))
		assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	})

	t.Run("already drained", func(t *testing.T) {
		assert.NoError(t, WaitDrained(context.Background(), &fakeDrainable{}))
	})

	t.Run("gives up with the context", func(t *testing.T) {
		sub := &fakeDrainable{}
		sub.valid.Store(true)
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		assert.ErrorIs(t, WaitDrained(ctx, sub), context.DeadlineExceeded)
	})
}
