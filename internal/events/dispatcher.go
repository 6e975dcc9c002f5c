package events

import (
	"context"
	"sync"
)

// EventHandler consumes one published event.
type EventHandler func(context.Context, Event) error

// Dispatcher routes published events to their subscribers. The sweep and the
// rule engine publish through it; the automation bridge and collaborator
// adapters subscribe.
type Dispatcher interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(eventType EventType, handler EventHandler)
}

type inMemoryDispatcher struct {
	mu        sync.RWMutex
	listeners map[EventType][]EventHandler
}

// NewInMemoryDispatcher builds the in-process dispatcher used by the single
// binary deployment.
func NewInMemoryDispatcher() Dispatcher {
	return &inMemoryDispatcher{
		listeners: make(map[EventType][]EventHandler),
	}
}

// Publish invokes every subscriber for the event's type in registration
// order. A handler error never short-circuits the rest: a failing rule
// trigger must not keep a breach event from its other subscribers. Handlers
// own their error reporting.
func (d *inMemoryDispatcher) Publish(ctx context.Context, event Event) error {
	d.mu.RLock()
	handlers := append([]EventHandler{}, d.listeners[event.Type]...)
	d.mu.RUnlock()

	for _, handler := range handlers {
		_ = handler(ctx, event)
	}
	return nil
}

// Subscribe registers a handler for one event type.
func (d *inMemoryDispatcher) Subscribe(eventType EventType, handler EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners[eventType] = append(d.listeners[eventType], handler)
}
