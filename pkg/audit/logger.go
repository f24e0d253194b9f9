package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Logger is the interface every audit sink implements. Log must not
// block the request path for long; sinks that can stall should buffer.
type Logger interface {
	Log(ctx context.Context, event *Event) error
	Close() error
}

// NewEvent creates an event with an ID and timestamp filled in.
func NewEvent(eventType EventType, actorID string) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Type:      eventType,
		ActorID:   actorID,
	}
}

// NopLogger discards every event.
type NopLogger struct{}

func (NopLogger) Log(context.Context, *Event) error { return nil }
func (NopLogger) Close() error                      { return nil }
