package eventhub

import (
	"context"
	"errors"
	"reflect"
	"sync"
)

// Handler handles a published event.
type Handler func(ctx context.Context, event any) error

// ErrNilEvent is returned when a nil event is published.
var ErrNilEvent = errors.New("eventhub: nil event")

// ErrInvalidEventType is returned when the event type cannot be determined.
var ErrInvalidEventType = errors.New("eventhub: invalid event type")

type subscription struct {
	id      uint64
	handler Handler
}

// Hub is a process-wide publish/subscribe hub. Subscriptions are explicit
// and return a function that removes them.
type Hub struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers map[string][]subscription
}

// New constructs an empty hub.
func New() *Hub {
	return &Hub{handlers: make(map[string][]subscription)}
}

// Publish dispatches an event to all handlers of its type, in subscription
// order. The first handler error is returned after every handler ran.
func (h *Hub) Publish(ctx context.Context, event any) error {
	if h == nil {
		return nil
	}
	if event == nil {
		return ErrNilEvent
	}
	eventType := EventType(event)
	if eventType == "" {
		return ErrInvalidEventType
	}

	h.mu.RLock()
	subs := append([]subscription(nil), h.handlers[eventType]...)
	h.mu.RUnlock()

	var firstErr error
	for _, sub := range subs {
		if err := sub.handler(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// SubscribeType registers a handler for an event type name.
func (h *Hub) SubscribeType(eventType string, handler Handler) (unsubscribe func()) {
	if h == nil || eventType == "" || handler == nil {
		return func() {}
	}

	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.handlers[eventType] = append(h.handlers[eventType], subscription{id: id, handler: handler})
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { h.remove(eventType, id) })
	}
}

// Subscribers returns the number of handlers registered for T.
func Subscribers[T any](h *Hub) int {
	if h == nil {
		return 0
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.handlers[EventTypeOf[T]()])
}

// Subscribe registers a typed handler for events of type T.
func Subscribe[T any](h *Hub, handler func(ctx context.Context, event T) error) (unsubscribe func()) {
	if handler == nil {
		return func() {}
	}
	return h.SubscribeType(EventTypeOf[T](), func(ctx context.Context, event any) error {
		switch evt := event.(type) {
		case T:
			return handler(ctx, evt)
		case *T:
			if evt == nil {
				return ErrNilEvent
			}
			return handler(ctx, *evt)
		}
		return ErrInvalidEventType
	})
}

func (h *Hub) remove(eventType string, id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs := h.handlers[eventType]
	for i, sub := range subs {
		if sub.id != id {
			continue
		}
		next := make([]subscription, 0, len(subs)-1)
		next = append(next, subs[:i]...)
		next = append(next, subs[i+1:]...)
		if len(next) == 0 {
			delete(h.handlers, eventType)
		} else {
			h.handlers[eventType] = next
		}
		return
	}
}

// EventType returns the fully-qualified type name for an event instance.
func EventType(event any) string {
	if event == nil {
		return ""
	}
	t := reflect.TypeOf(event)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.String()
}

// EventTypeOf returns the fully-qualified type name for a type parameter.
func EventTypeOf[T any]() string {
	return reflect.TypeOf((*T)(nil)).Elem().String()
}
