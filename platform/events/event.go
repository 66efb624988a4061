// Package events defines the event contract and in-process bus used for
// cross-module notifications such as dispatched calls and workflow state
// changes. It lives in the platform layer and knows nothing about the
// modules that publish or subscribe.
package events

import (
	"context"
	"time"
)

// Event is anything a module can put on the bus. EventName doubles as the
// subscription key, so it must be stable and unique per event type.
type Event interface {
	EventName() string
	OccurredAt() time.Time
}

// BaseEvent carries the timestamp shared by every concrete event. Embed it
// and construct it with NewBaseEvent.
type BaseEvent struct {
	Timestamp time.Time `json:"timestamp"`
}

// OccurredAt reports when the event was created.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// NewBaseEvent stamps a BaseEvent with the current time.
func NewBaseEvent() BaseEvent {
	return BaseEvent{Timestamp: time.Now()}
}

// Handler consumes events it subscribed to. A returned error is logged by
// the bus; it does not stop delivery to other handlers.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc lets a plain function act as a Handler.
type HandlerFunc func(ctx context.Context, event Event) error

// Handle invokes the wrapped function.
func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Bus is what modules publish to and subscribe on. Publish is
// fire-and-forget with handlers running concurrently; PublishSync runs
// handlers inline and surfaces the first failure, for callers that must
// know the side effects landed. Subscribe keys on Event.EventName.
type Bus interface {
	Publish(ctx context.Context, event Event)
	PublishSync(ctx context.Context, event Event) error
	Subscribe(eventName string, handler Handler)
}
