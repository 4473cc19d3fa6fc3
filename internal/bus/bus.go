// Package bus is the single-consumer FIFO message bus every domain event
// flows through. Handlers for a message run sequentially on the consumer
// goroutine in registration order, so handlers never race with each other on
// shared state.
package bus

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/fletcherlabs/fletcher/internal/events"
)

// Handler processes one bus message. A returned error is logged and does not
// stop the consumer loop.
type Handler func(ctx context.Context, msg events.Message) error

// Bus queues published messages and dispatches them FIFO from Run.
type Bus struct {
	logger *zap.Logger

	mu       sync.Mutex
	cond     *sync.Cond
	queue    []events.Message
	closed   bool
	handlers map[events.Kind][]Handler
}

func New(logger *zap.Logger) *Bus {
	b := &Bus{
		logger:   logger,
		handlers: make(map[events.Kind][]Handler),
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Subscribe registers a handler for one message kind. Handlers for the same
// kind are invoked in registration order.
func (b *Bus) Subscribe(kind events.Kind, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[kind] = append(b.handlers[kind], h)
}

// UnsubscribeAll drops every registered handler.
func (b *Bus) UnsubscribeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = make(map[events.Kind][]Handler)
}

// Publish enqueues a message. The queue is unbounded so handlers can publish
// follow-up events without deadlocking the consumer. Publishing after the bus
// closed is a no-op.
func (b *Bus) Publish(msg events.Message) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.queue = append(b.queue, msg)
	queueDepth.Set(float64(len(b.queue)))
	b.mu.Unlock()

	messagesPublished.WithLabelValues(string(msg.Kind())).Inc()
	b.cond.Signal()
}

// Run consumes the queue until ctx is cancelled. It must be called exactly
// once; the FIFO ordering guarantee depends on there being a single consumer.
func (b *Bus) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		b.mu.Lock()
		b.closed = true
		b.mu.Unlock()
		b.cond.Broadcast()
	})
	defer stop()

	for {
		b.mu.Lock()
		for len(b.queue) == 0 && !b.closed {
			b.cond.Wait()
		}
		if b.closed {
			b.mu.Unlock()
			return ctx.Err()
		}
		msg := b.queue[0]
		b.queue = b.queue[1:]
		queueDepth.Set(float64(len(b.queue)))
		handlers := make([]Handler, len(b.handlers[msg.Kind()]))
		copy(handlers, b.handlers[msg.Kind()])
		b.mu.Unlock()

		for _, h := range handlers {
			if err := h(ctx, msg); err != nil {
				handlerErrors.WithLabelValues(string(msg.Kind())).Inc()
				b.logger.Error("bus-handler-failed",
					zap.String("kind", string(msg.Kind())),
					zap.Error(err))
			}
		}
		messagesProcessed.WithLabelValues(string(msg.Kind())).Inc()
	}
}
