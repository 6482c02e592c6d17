// Package eventbus is a typed, in-process publish/subscribe bus.
//
// Every subscription owns a bounded queue drained by a single worker
// goroutine, so a slow handler only delays its own subscription. Publishes of
// one kind are enqueued under a per-kind lock, which gives every subscriber of
// that kind the same delivery order.
package eventbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrBusClosed     = errors.New("eventbus: bus closed")
	ErrKindMismatch  = errors.New("eventbus: kind registered with a different payload type")
	ErrHandlerPanic  = errors.New("eventbus: handler panicked")
	ErrEmptyKindName = errors.New("eventbus: empty kind name")
)

const (
	DefaultQueueSize      = 256
	DefaultEnqueueTimeout = 100 * time.Millisecond
	DefaultHandlerTimeout = 5 * time.Second
)

// Options tunes queueing and timeouts. Zero values fall back to the defaults.
type Options struct {
	// QueueSize bounds each subscription's pending deliveries.
	QueueSize int
	// EnqueueTimeout is how long Publish waits on a full queue before the
	// delivery to that subscriber is dropped. Once a wait has timed out, later
	// publishes drop without waiting until the subscriber's worker takes its
	// next delivery.
	EnqueueTimeout time.Duration
	// HandlerTimeout bounds the context passed to each handler call.
	HandlerTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.QueueSize <= 0 {
		o.QueueSize = DefaultQueueSize
	}
	if o.EnqueueTimeout <= 0 {
		o.EnqueueTimeout = DefaultEnqueueTimeout
	}
	if o.HandlerTimeout <= 0 {
		o.HandlerTimeout = DefaultHandlerTimeout
	}
	return o
}

type Bus struct {
	opts   Options
	logger *slog.Logger

	mu     sync.RWMutex
	topics map[string]*topic
	closed bool
	nextID atomic.Uint64

	workers sync.WaitGroup
}

type topic struct {
	name        string
	payloadType reflect.Type

	// publishMu serializes enqueueing so subscribers agree on order.
	publishMu sync.Mutex
	// subs is replaced, never mutated, under Bus.mu.
	subs []*subscriber
}

type delivery struct {
	ctx     context.Context
	payload any
}

type subscriber struct {
	id     uint64
	name   string
	topic  *topic
	queue  chan delivery
	stop   chan struct{}
	once   sync.Once
	invoke func(ctx context.Context, payload any) error
	clone  func(payload any) any

	// overflowing is set when an enqueue wait times out and cleared when the
	// worker next takes a delivery off the queue.
	overflowing atomic.Bool
}

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	bus *Bus
	sub *subscriber
}

// New creates a bus. The logger receives dropped deliveries and handler failures.
func New(opts Options, logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		opts:   opts.withDefaults(),
		logger: logger.With("component", "eventbus"),
		topics: make(map[string]*topic),
	}
}

// Subscribe registers handler for every future publish of kind. Each publish
// is enqueued to subscribers in registration order; each handler runs on its
// own worker.
func Subscribe[P any](b *Bus, kind Kind[P], name string, handler Handler[P]) (*Subscription, error) {
	if kind.name == "" {
		return nil, ErrEmptyKindName
	}
	if handler == nil {
		return nil, fmt.Errorf("eventbus: nil handler for %s", kind.name)
	}
	if name == "" {
		name = kind.name
	}

	payloadType := reflect.TypeOf((*P)(nil)).Elem()

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBusClosed
	}

	t, ok := b.topics[kind.name]
	if !ok {
		t = &topic{name: kind.name, payloadType: payloadType}
		b.topics[kind.name] = t
	} else if t.payloadType != payloadType {
		return nil, fmt.Errorf("%w: %s is %s, got %s", ErrKindMismatch, kind.name, t.payloadType, payloadType)
	}

	s := &subscriber{
		id:    b.nextID.Add(1),
		name:  name,
		topic: t,
		queue: make(chan delivery, b.opts.QueueSize),
		stop:  make(chan struct{}),
		invoke: func(ctx context.Context, payload any) error {
			return handler(ctx, payload.(P))
		},
		clone: clonerFor[P](),
	}

	subs := make([]*subscriber, 0, len(t.subs)+1)
	subs = append(subs, t.subs...)
	t.subs = append(subs, s)

	b.workers.Add(1)
	go b.run(s)

	b.logger.Debug("Subscriber registered", "kind", kind.name, "subscriber", name, "subscriber_id", s.id)
	return &Subscription{bus: b, sub: s}, nil
}

// Publish enqueues payload for every subscriber of kind and reports whether
// any subscriber existed. It never returns handler errors. It blocks only
// while a subscriber queue is full, at most EnqueueTimeout per subscriber, and
// not at all for a subscriber whose previous wait already timed out.
func Publish[P any](ctx context.Context, b *Bus, kind Kind[P], payload P) bool {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		eventsPublishedCounter.WithLabelValues(kind.name, "rejected").Inc()
		b.logger.WarnContext(ctx, "Publish on closed bus", "kind", kind.name)
		return false
	}
	t := b.topics[kind.name]
	b.mu.RUnlock()

	if t == nil {
		eventsPublishedCounter.WithLabelValues(kind.name, "no_subscribers").Inc()
		return false
	}
	if t.payloadType != reflect.TypeOf((*P)(nil)).Elem() {
		eventsPublishedCounter.WithLabelValues(kind.name, "rejected").Inc()
		b.logger.ErrorContext(ctx, "Publish with mismatched payload type",
			"kind", kind.name, "expected", t.payloadType.String(), "got", reflect.TypeOf((*P)(nil)).Elem().String())
		return false
	}

	t.publishMu.Lock()
	defer t.publishMu.Unlock()

	// Read under publishMu so a concurrent Unsubscribe or Close is observed.
	b.mu.RLock()
	subs := t.subs
	b.mu.RUnlock()

	if len(subs) == 0 {
		eventsPublishedCounter.WithLabelValues(kind.name, "no_subscribers").Inc()
		return false
	}

	for _, s := range subs {
		b.enqueue(ctx, s, s.clone(payload))
	}
	eventsPublishedCounter.WithLabelValues(kind.name, "dispatched").Inc()
	return true
}

func (b *Bus) enqueue(ctx context.Context, s *subscriber, payload any) {
	d := delivery{ctx: ctx, payload: payload}

	select {
	case <-s.stop:
		b.dropped(ctx, s, "subscriber stopped")
		return
	default:
	}

	select {
	case s.queue <- d:
		return
	default:
	}

	if s.overflowing.Load() {
		b.dropped(ctx, s, "queue overflowing")
		return
	}

	timer := time.NewTimer(b.opts.EnqueueTimeout)
	defer timer.Stop()
	select {
	case s.queue <- d:
	case <-s.stop:
		b.dropped(ctx, s, "subscriber stopped")
	case <-timer.C:
		s.overflowing.Store(true)
		b.dropped(ctx, s, "queue full")
	}
}

func (b *Bus) dropped(ctx context.Context, s *subscriber, reason string) {
	deliveriesDroppedCounter.WithLabelValues(s.topic.name, s.name).Inc()
	b.logger.WarnContext(ctx, "Delivery dropped",
		"kind", s.topic.name, "subscriber", s.name, "reason", reason,
		"enqueue_timeout", b.opts.EnqueueTimeout.String())
}

func (b *Bus) run(s *subscriber) {
	defer b.workers.Done()
	for {
		select {
		case d := <-s.queue:
			s.overflowing.Store(false)
			b.handle(s, d)
		case <-s.stop:
			for {
				select {
				case d := <-s.queue:
					b.handle(s, d)
				default:
					return
				}
			}
		}
	}
}

func (b *Bus) handle(s *subscriber, d delivery) {
	// The publisher's request may already be finished; keep its values only.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(d.ctx), b.opts.HandlerTimeout)
	defer cancel()

	start := time.Now()
	err := safeInvoke(ctx, s, d.payload)
	handlerDurationHist.WithLabelValues(s.topic.name, s.name).Observe(time.Since(start).Seconds())
	if err == nil {
		return
	}

	reason := "error"
	switch {
	case errors.Is(err, ErrHandlerPanic):
		reason = "panic"
	case errors.Is(err, context.DeadlineExceeded):
		reason = "timeout"
	}
	handlerFailuresCounter.WithLabelValues(s.topic.name, s.name, reason).Inc()
	b.logger.ErrorContext(ctx, "Event handler failed",
		"kind", s.topic.name, "subscriber", s.name, "reason", reason, "error", err)
}

func safeInvoke(ctx context.Context, s *subscriber, payload any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()
	return s.invoke(ctx, payload)
}

// Unsubscribe removes the subscription. Deliveries already queued are still
// handled; nothing published afterwards reaches the handler. Safe to call
// more than once.
func (s *Subscription) Unsubscribe() {
	if s == nil || s.sub == nil {
		return
	}
	b, sub := s.bus, s.sub
	t := sub.topic

	b.mu.Lock()
	subs := make([]*subscriber, 0, len(t.subs))
	for _, other := range t.subs {
		if other != sub {
			subs = append(subs, other)
		}
	}
	t.subs = subs
	b.mu.Unlock()

	t.publishMu.Lock()
	sub.once.Do(func() { close(sub.stop) })
	t.publishMu.Unlock()
}

// Kind returns the subscribed kind name.
func (s *Subscription) Kind() string { return s.sub.topic.name }

// Name returns the subscriber name used in logs and metrics.
func (s *Subscription) Name() string { return s.sub.name }

// Subscribers returns how many subscriptions kind currently has.
func (b *Bus) Subscribers(kind string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if t, ok := b.topics[kind]; ok {
		return len(t.subs)
	}
	return 0
}

// Close stops accepting publishes, lets every worker drain its queue and waits
// for them or for ctx.
func (b *Bus) Close(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	pending := make(map[*topic][]*subscriber, len(b.topics))
	for _, t := range b.topics {
		pending[t] = t.subs
	}
	b.mu.Unlock()

	for t, subs := range pending {
		t.publishMu.Lock()
		for _, s := range subs {
			s.once.Do(func() { close(s.stop) })
		}
		t.publishMu.Unlock()
	}

	done := make(chan struct{})
	go func() {
		b.workers.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.logger.Info("Event bus closed")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("eventbus: waiting for workers: %w", ctx.Err())
	}
}

func clonerFor[P any]() func(any) any {
	var zero P
	if _, ok := any(zero).(Cloner[P]); ok {
		return func(payload any) any { return payload.(Cloner[P]).Clone() }
	}
	return func(payload any) any { return payload }
}
