package service

import (
	"errors"

	"github.com/phrazzld/taskrelay/internal/stream"
)

// Common dispatcher errors. Callers check for them with errors.Is.
var (
	// ErrUnknownService indicates no service is registered under the name.
	ErrUnknownService = errors.New("unknown service")

	// ErrUnknownTask indicates the service has no handler for the task name.
	ErrUnknownTask = errors.New("unknown task")

	// ErrDuplicateService indicates a second registration for the same name.
	ErrDuplicateService = errors.New("service already registered")

	// ErrNotImplemented is returned by handlers that exist only as placeholders.
	ErrNotImplemented = errors.New("task not implemented")
)

// Error is a handler failure carrying what the client should see. The
// dispatcher reports it as a fatal error event with these fields.
type Error struct {
	Type               string
	Message            string
	UserVisibleMessage string
	Code               string
	Details            any
	Err                error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Type + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Type + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Object converts e into a stream error payload.
func (e *Error) Object() stream.ErrorObject {
	return stream.ErrorObject{
		Type:               e.Type,
		Message:            e.Message,
		UserVisibleMessage: e.UserVisibleMessage,
		Code:               e.Code,
		Details:            e.Details,
	}
}
