package eventbus_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YahyawiAF/co-admin-system-sub001/internal/platform/eventbus"
)

type numbered struct {
	N int
}

type tagged struct {
	Tags []string
}

func (t tagged) Clone() tagged {
	t.Tags = append([]string(nil), t.Tags...)
	return t
}

var (
	kindNumbered = eventbus.NewKind[numbered]("test.numbered")
	kindOther    = eventbus.NewKind[numbered]("test.other")
	kindTagged   = eventbus.NewKind[tagged]("test.tagged")
)

func newTestBus(t *testing.T, opts eventbus.Options) *eventbus.Bus {
	t.Helper()
	bus := eventbus.New(opts, slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = bus.Close(ctx)
	})
	return bus
}

// collector records payloads in arrival order.
type collector struct {
	mu   sync.Mutex
	got  []int
	done chan struct{}
	want int
}

func newCollector(want int) *collector {
	return &collector{done: make(chan struct{}), want: want}
}

func (c *collector) handle(_ context.Context, p numbered) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.got = append(c.got, p.N)
	if len(c.got) == c.want {
		close(c.done)
	}
	return nil
}

func (c *collector) wait(t *testing.T) []int {
	t.Helper()
	select {
	case <-c.done:
	case <-time.After(2 * time.Second):
		c.mu.Lock()
		defer c.mu.Unlock()
		t.Fatalf("timed out waiting for %d deliveries, got %d", c.want, len(c.got))
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int(nil), c.got...)
}

func TestPublish_NoSubscribers(t *testing.T) {
	bus := newTestBus(t, eventbus.Options{})
	assert.False(t, eventbus.Publish(context.Background(), bus, kindNumbered, numbered{N: 1}))
}

func TestPublish_DeliversInPublishOrder(t *testing.T) {
	bus := newTestBus(t, eventbus.Options{})
	c := newCollector(3)
	_, err := eventbus.Subscribe(bus, kindNumbered, "collector", c.handle)
	require.NoError(t, err)

	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		assert.True(t, eventbus.Publish(ctx, bus, kindNumbered, numbered{N: i}))
	}

	assert.Equal(t, []int{1, 2, 3}, c.wait(t))
}

func TestPublish_OrderHoldsUnderConcurrentPublishersOfOtherKinds(t *testing.T) {
	bus := newTestBus(t, eventbus.Options{QueueSize: 16, EnqueueTimeout: time.Second})
	const n = 200
	c := newCollector(n)
	_, err := eventbus.Subscribe(bus, kindNumbered, "ordered", c.handle)
	require.NoError(t, err)
	_, err = eventbus.Subscribe(bus, kindOther, "noise", func(context.Context, numbered) error {
		time.Sleep(time.Microsecond)
		return nil
	})
	require.NoError(t, err)

	ctx := context.Background()
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < n; i++ {
				eventbus.Publish(ctx, bus, kindOther, numbered{N: i})
			}
		}()
	}
	for i := 0; i < n; i++ {
		eventbus.Publish(ctx, bus, kindNumbered, numbered{N: i})
	}
	wg.Wait()

	got := c.wait(t)
	for i, v := range got {
		require.Equal(t, i, v, "delivery %d out of order", i)
	}
}

func TestPublish_EverySubscriberSeesSameOrder(t *testing.T) {
	bus := newTestBus(t, eventbus.Options{QueueSize: 512})
	const n = 100
	first, second := newCollector(n), newCollector(n)
	_, err := eventbus.Subscribe(bus, kindNumbered, "first", first.handle)
	require.NoError(t, err)
	_, err = eventbus.Subscribe(bus, kindNumbered, "second", second.handle)
	require.NoError(t, err)

	ctx := context.Background()
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < n/4; i++ {
				eventbus.Publish(ctx, bus, kindNumbered, numbered{N: w*1000 + i})
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, first.wait(t), second.wait(t))
}

func TestPublish_FailingHandlersAreIsolated(t *testing.T) {
	bus := newTestBus(t, eventbus.Options{})
	_, err := eventbus.Subscribe(bus, kindNumbered, "erroring", func(context.Context, numbered) error {
		return errors.New("boom")
	})
	require.NoError(t, err)
	_, err = eventbus.Subscribe(bus, kindNumbered, "panicking", func(context.Context, numbered) error {
		panic("handler bug")
	})
	require.NoError(t, err)
	c := newCollector(2)
	_, err = eventbus.Subscribe(bus, kindNumbered, "healthy", c.handle)
	require.NoError(t, err)

	ctx := context.Background()
	assert.True(t, eventbus.Publish(ctx, bus, kindNumbered, numbered{N: 1}))
	assert.True(t, eventbus.Publish(ctx, bus, kindNumbered, numbered{N: 2}))

	assert.Equal(t, []int{1, 2}, c.wait(t))
}

func TestPublish_SlowHandlerDoesNotStallOtherSubscribers(t *testing.T) {
	bus := newTestBus(t, eventbus.Options{QueueSize: 1, EnqueueTimeout: 50 * time.Millisecond})
	release := make(chan struct{})
	_, err := eventbus.Subscribe(bus, kindNumbered, "blocked", func(context.Context, numbered) error {
		<-release
		return nil
	})
	require.NoError(t, err)
	c := newCollector(5)
	_, err = eventbus.Subscribe(bus, kindNumbered, "fast", c.handle)
	require.NoError(t, err)

	ctx := context.Background()
	start := time.Now()
	for i := 1; i <= 5; i++ {
		eventbus.Publish(ctx, bus, kindNumbered, numbered{N: i})
	}
	elapsed := time.Since(start)
	close(release)

	assert.Equal(t, []int{1, 2, 3, 4, 5}, c.wait(t))
	// Each drop waits at most EnqueueTimeout.
	assert.Less(t, elapsed, time.Second)
}

func TestPublish_StuckSubscriberDoesNotConvoyConcurrentPublishers(t *testing.T) {
	const enqueueTimeout = 100 * time.Millisecond
	bus := newTestBus(t, eventbus.Options{QueueSize: 1, EnqueueTimeout: enqueueTimeout})
	release := make(chan struct{})
	defer close(release)
	_, err := eventbus.Subscribe(bus, kindNumbered, "stuck", func(context.Context, numbered) error {
		<-release
		return nil
	})
	require.NoError(t, err)

	const publishers = 30
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		worst time.Duration
	)
	for i := 0; i < publishers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			start := time.Now()
			eventbus.Publish(context.Background(), bus, kindNumbered, numbered{N: n})
			elapsed := time.Since(start)
			mu.Lock()
			if elapsed > worst {
				worst = elapsed
			}
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	// One timed wait at most; later publishers drop without waiting.
	assert.Less(t, worst, 3*enqueueTimeout)
}

func TestPublish_WaitsAgainOnceWorkerResumes(t *testing.T) {
	const enqueueTimeout = 20 * time.Millisecond
	bus := newTestBus(t, eventbus.Options{QueueSize: 1, EnqueueTimeout: enqueueTimeout})
	backlog := make(chan struct{})
	held := make(chan struct{})
	defer close(held)
	started := make(chan struct{}, 1)
	_, err := eventbus.Subscribe(bus, kindNumbered, "gated", func(_ context.Context, p numbered) error {
		if p.N < 100 {
			<-backlog
			return nil
		}
		if p.N == 100 {
			select {
			case started <- struct{}{}:
			default:
			}
		}
		<-held
		return nil
	})
	require.NoError(t, err)

	ctx := context.Background()
	for i := 1; i <= 5; i++ {
		eventbus.Publish(ctx, bus, kindNumbered, numbered{N: i})
	}
	close(backlog)

	require.Eventually(t, func() bool {
		eventbus.Publish(ctx, bus, kindNumbered, numbered{N: 100})
		select {
		case <-started:
			return true
		case <-time.After(200 * time.Millisecond):
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)

	// 100 is being handled and 101 fills the queue, so 102 waits out the
	// timeout instead of being dropped on the spot.
	eventbus.Publish(ctx, bus, kindNumbered, numbered{N: 101})
	start := time.Now()
	eventbus.Publish(ctx, bus, kindNumbered, numbered{N: 102})
	assert.GreaterOrEqual(t, time.Since(start), enqueueTimeout)
}

func TestPublish_HandlerContextOutlivesPublisher(t *testing.T) {
	bus := newTestBus(t, eventbus.Options{HandlerTimeout: time.Second})
	errs := make(chan error, 1)
	_, err := eventbus.Subscribe(bus, kindNumbered, "ctx", func(ctx context.Context, _ numbered) error {
		time.Sleep(20 * time.Millisecond)
		errs <- ctx.Err()
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		return nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	eventbus.Publish(ctx, bus, kindNumbered, numbered{N: 1})
	cancel()

	select {
	case err := <-errs:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("handler not invoked")
	}
}

func TestSubscribe_KindMismatch(t *testing.T) {
	bus := newTestBus(t, eventbus.Options{})
	_, err := eventbus.Subscribe(bus, kindNumbered, "a", func(context.Context, numbered) error { return nil })
	require.NoError(t, err)

	clash := eventbus.NewKind[tagged](kindNumbered.String())
	_, err = eventbus.Subscribe(bus, clash, "b", func(context.Context, tagged) error { return nil })
	assert.ErrorIs(t, err, eventbus.ErrKindMismatch)
	assert.False(t, eventbus.Publish(context.Background(), bus, clash, tagged{}))
}

func TestUnsubscribe_StopsFurtherDeliveries(t *testing.T) {
	bus := newTestBus(t, eventbus.Options{})
	var mu sync.Mutex
	var calls int
	sub, err := eventbus.Subscribe(bus, kindNumbered, "counted", func(context.Context, numbered) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, bus.Subscribers(kindNumbered.String()))

	sub.Unsubscribe()
	sub.Unsubscribe()

	assert.Equal(t, 0, bus.Subscribers(kindNumbered.String()))
	assert.False(t, eventbus.Publish(context.Background(), bus, kindNumbered, numbered{N: 1}))

	mu.Lock()
	defer mu.Unlock()
	assert.Zero(t, calls)
}

func TestPublish_SubscribersReceiveIndependentClones(t *testing.T) {
	bus := newTestBus(t, eventbus.Options{})
	mutated := make(chan struct{})
	seen := make(chan []string, 1)

	_, err := eventbus.Subscribe(bus, kindTagged, "mutator", func(_ context.Context, p tagged) error {
		p.Tags[0] = "changed"
		close(mutated)
		return nil
	})
	require.NoError(t, err)
	_, err = eventbus.Subscribe(bus, kindTagged, "reader", func(_ context.Context, p tagged) error {
		<-mutated
		seen <- p.Tags
		return nil
	})
	require.NoError(t, err)

	original := tagged{Tags: []string{"a"}}
	eventbus.Publish(context.Background(), bus, kindTagged, original)

	select {
	case tags := <-seen:
		assert.Equal(t, []string{"a"}, tags)
	case <-time.After(2 * time.Second):
		t.Fatal("reader not invoked")
	}
	assert.Equal(t, []string{"a"}, original.Tags)
}

func TestClose_DrainsQueuesAndRejectsPublishes(t *testing.T) {
	bus := eventbus.New(eventbus.Options{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	c := newCollector(3)
	_, err := eventbus.Subscribe(bus, kindNumbered, "drained", func(ctx context.Context, p numbered) error {
		time.Sleep(5 * time.Millisecond)
		return c.handle(ctx, p)
	})
	require.NoError(t, err)

	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		eventbus.Publish(ctx, bus, kindNumbered, numbered{N: i})
	}

	closeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, bus.Close(closeCtx))

	assert.Equal(t, []int{1, 2, 3}, c.wait(t))
	assert.False(t, eventbus.Publish(ctx, bus, kindNumbered, numbered{N: 4}))

	_, err = eventbus.Subscribe(bus, kindNumbered, "late", c.handle)
	assert.ErrorIs(t, err, eventbus.ErrBusClosed)
}
