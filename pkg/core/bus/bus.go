// Package bus implements the engine's in-process typed publish/subscribe
// EventBus: synchronous handlers run first, in registration order, then
// asynchronous handlers run concurrently; Publish returns only after every
// handler for that event has finished.
package bus

import (
	"context"
	"log/slog"
	"sync"

	"github.com/relaytone/xiaozhi-engine/pkg/core/events"
)

// Handler receives one event. It must not busy-wait and should honor ctx
// cancellation on any blocking call it makes.
type Handler func(ctx context.Context, evt events.Event)

// Subscription is an opaque handle returned by Subscribe, passed back to
// Unsubscribe. Subscriptions are not deduplicated: subscribing the same
// handler twice registers it twice, by design — the caller is responsible
// for not doing that if it doesn't want two invocations.
type Subscription struct {
	eventType string
	id        uint64
}

type registration struct {
	id      uint64
	handler Handler
	async   bool
}

// EventBus is safe for concurrent Subscribe/Unsubscribe/Publish calls.
type EventBus struct {
	mu     sync.RWMutex
	subs   map[string][]registration
	nextID uint64
	logger *slog.Logger
}

// New constructs an EventBus. logger must not be nil; pass slog.Default()
// if the caller has no preference.
func New(logger *slog.Logger) *EventBus {
	return &EventBus{
		subs:   make(map[string][]registration),
		logger: logger,
	}
}

// Subscribe registers handler for eventType. When async is false the
// handler runs synchronously during Publish, in the order it was
// registered relative to other synchronous handlers of the same type; when
// async is true it runs concurrently with the other asynchronous handlers
// of that type, after all synchronous handlers have completed.
func (b *EventBus) Subscribe(eventType string, handler Handler, async bool) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.subs[eventType] = append(b.subs[eventType], registration{id: id, handler: handler, async: async})
	return Subscription{eventType: eventType, id: id}
}

// Unsubscribe removes a previously returned Subscription. Unsubscribing an
// already-removed or unknown subscription is a no-op.
func (b *EventBus) Unsubscribe(sub Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	regs := b.subs[sub.eventType]
	for i, r := range regs {
		if r.id == sub.id {
			b.subs[sub.eventType] = append(regs[:i:i], regs[i+1:]...)
			return
		}
	}
}

// Publish dispatches evt to every handler registered for evt.EventType().
// Synchronous handlers run first, in registration order; a panic in one is
// recovered, logged, and does not prevent the remaining handlers — sync or
// async — from running. Publish returns once every handler has finished.
func (b *EventBus) Publish(ctx context.Context, evt events.Event) {
	eventType := evt.EventType()

	b.mu.RLock()
	regs := make([]registration, len(b.subs[eventType]))
	copy(regs, b.subs[eventType])
	b.mu.RUnlock()

	var asyncHandlers []Handler
	for _, r := range regs {
		if r.async {
			asyncHandlers = append(asyncHandlers, r.handler)
			continue
		}
		b.invoke(ctx, eventType, r.handler, evt)
	}

	if len(asyncHandlers) == 0 {
		return
	}

	var wg sync.WaitGroup
	wg.Add(len(asyncHandlers))
	for _, h := range asyncHandlers {
		h := h
		go func() {
			defer wg.Done()
			b.invoke(ctx, eventType, h, evt)
		}()
	}
	wg.Wait()
}

func (b *EventBus) invoke(ctx context.Context, eventType string, h Handler, evt events.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.ErrorContext(ctx, "event handler panicked",
				"event_type", eventType, "panic", r)
		}
	}()
	h(ctx, evt)
}
