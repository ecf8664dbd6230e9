package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/taskrelay/internal/platform/jsoncodec"
)

// ErrInvalidEvent is returned for events that cannot be dispatched.
var ErrInvalidEvent = errors.New("invalid event")

// TaskRequestEvent asks for a task to be created without depending on the
// scheduler. The payload is kept encoded so handlers decode only what they
// understand.
type TaskRequestEvent struct {
	ID        uuid.UUID `json:"id"`
	Type      string    `json:"type"`
	Source    string    `json:"source,omitempty"`
	Payload   []byte    `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
}

// EventOption customises a new event.
type EventOption func(*TaskRequestEvent)

// WithSource records which component emitted the event.
func WithSource(source string) EventOption {
	return func(e *TaskRequestEvent) { e.Source = source }
}

// NewTaskRequestEvent encodes payload into a new event of eventType.
func NewTaskRequestEvent(eventType string, payload any, opts ...EventOption) (*TaskRequestEvent, error) {
	data, err := jsoncodec.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", eventType, err)
	}

	e := &TaskRequestEvent{
		ID:        uuid.New(),
		Type:      eventType,
		Payload:   data,
		CreatedAt: time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// UnmarshalPayload decodes the event payload into v.
func (e *TaskRequestEvent) UnmarshalPayload(v any) error {
	return jsoncodec.Unmarshal(e.Payload, v)
}

// Validate checks that e names a type and carries well-formed JSON.
func (e *TaskRequestEvent) Validate() error {
	switch {
	case e == nil:
		return fmt.Errorf("%w: nil event", ErrInvalidEvent)
	case e.Type == "":
		return fmt.Errorf("%w: event %s has no type", ErrInvalidEvent, e.ID)
	case !jsoncodec.Valid(e.Payload):
		return fmt.Errorf("%w: event %s payload is not valid JSON", ErrInvalidEvent, e.ID)
	}
	return nil
}

// EventHandler processes events. Returning an error reports the failure to
// the emitter; it does not stop other handlers.
type EventHandler interface {
	HandleEvent(ctx context.Context, event *TaskRequestEvent) error
}

// EventHandlerFunc adapts a function to EventHandler.
type EventHandlerFunc func(ctx context.Context, event *TaskRequestEvent) error

// HandleEvent calls f.
func (f EventHandlerFunc) HandleEvent(ctx context.Context, event *TaskRequestEvent) error {
	return f(ctx, event)
}

// EventEmitter publishes events to handlers it does not know about.
type EventEmitter interface {
	EmitEvent(ctx context.Context, event *TaskRequestEvent) error
}
