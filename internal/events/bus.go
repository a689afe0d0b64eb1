package events

import (
	"github.com/kelindar/event"
)

// Bus wraps a kelindar/event dispatcher for in-process broadcasting.
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// Publish publishes an event to all subscribers of its type.
// Unknown event types are ignored.
func (b *Bus) Publish(ev Event) {
	switch e := ev.(type) {
	case LEDFrameEvent:
		event.Publish(b.dispatcher, e)
	case FlashStateEvent:
		event.Publish(b.dispatcher, e)
	case InputsStateEvent:
		event.Publish(b.dispatcher, e)
	case StatusMessageEvent:
		event.Publish(b.dispatcher, e)
	case LogEntryEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe registers handler; its parameter type selects the events it
// receives. Returns an unsubscribe function.
// Usage: unsub := bus.Subscribe(func(e FlashStateEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(LEDFrameEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(FlashStateEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(InputsStateEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(StatusMessageEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(LogEntryEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		return func() {}
	}
}
