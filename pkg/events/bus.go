package events

import (
	"context"
	"sync"

	"github.com/prfowler23/estimatepro-2.5-sub004/pkg/observability"
)

// EventBus delivers events to in-process subscribers. Delivery is
// synchronous and in subscription order, so UI-facing listeners observe a
// consistent ordering of local events.
type EventBus struct {
	mu       sync.RWMutex
	handlers map[EventType][]*busSubscription
	nextID   uint64
	logger   observability.Logger
	closed   bool
}

type busSubscription struct {
	id      uint64
	bus     *EventBus
	event   EventType
	handler Handler
	once    sync.Once
}

// Cancel removes the subscription. Safe to call more than once.
func (s *busSubscription) Cancel() {
	s.once.Do(func() {
		s.bus.remove(s.event, s.id)
	})
}

// NewEventBus creates a bus
func NewEventBus(logger observability.Logger) *EventBus {
	return &EventBus{
		handlers: make(map[EventType][]*busSubscription),
		logger:   logger,
	}
}

// Publish delivers an event to every subscriber of its type, in order.
// Handler errors are logged and do not stop delivery to later handlers.
func (b *EventBus) Publish(ctx context.Context, event *Event) {
	b.mu.RLock()
	subs := make([]*busSubscription, len(b.handlers[event.Type]))
	copy(subs, b.handlers[event.Type])
	b.mu.RUnlock()

	for _, sub := range subs {
		if err := sub.handler(ctx, event); err != nil {
			b.logger.Warn("Event handler failed", map[string]interface{}{
				"event_type":  event.Type,
				"estimate_id": event.EstimateID,
				"error":       err.Error(),
			})
		}
	}
}

// Subscribe registers a handler for one event type
func (b *EventBus) Subscribe(eventType EventType, handler Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &busSubscription{
		id:      b.nextID,
		bus:     b,
		event:   eventType,
		handler: handler,
	}
	if !b.closed {
		b.handlers[eventType] = append(b.handlers[eventType], sub)
	}
	return sub
}

// Close drops every subscription
func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = make(map[EventType][]*busSubscription)
	b.closed = true
}

func (b *EventBus) remove(eventType EventType, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.handlers[eventType]
	for i, sub := range subs {
		if sub.id == id {
			b.handlers[eventType] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}
