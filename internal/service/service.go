package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-viper/mapstructure/v2"

	"github.com/phrazzld/taskrelay/internal/stream"
)

// Call carries everything a handler needs for one invocation: the caller,
// the validated context and the stream to report on.
type Call struct {
	Service   string
	Task      string
	TaskID    string
	UserID    string
	SessionID string
	Namespace string

	// Context is the validated, defaulted task context.
	Context map[string]any

	Stream stream.Emitter
	Logger *slog.Logger
}

// Decode binds the call context onto v, a pointer to an options struct
// whose fields carry mapstructure tags.
func (c *Call) Decode(v any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           v,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return fmt.Errorf("failed to create options decoder: %w", err)
	}
	if err := dec.Decode(c.Context); err != nil {
		return &Error{
			Type:    "invalid_options",
			Message: fmt.Sprintf("could not bind options for %s.%s", c.Service, c.Task),
			Err:     err,
		}
	}
	return nil
}

// Bind decodes the call context into a new T.
func Bind[T any](c *Call) (T, error) {
	var opts T
	err := c.Decode(&opts)
	return opts, err
}

// HandlerFunc runs one task of a service.
type HandlerFunc func(ctx context.Context, call *Call) error

// Service is a named set of task handlers. Handler names are matched
// case-insensitively.
type Service interface {
	Name() string
	Handlers() map[string]HandlerFunc
}

// Cleaner is implemented by services holding per-instance resources. The
// dispatcher calls Cleanup after every call on a multi-instance service.
type Cleaner interface {
	Cleanup(ctx context.Context) error
}

// Lifecycle decides how instances are created.
type Lifecycle int

const (
	// Singleton services are created once and shared by all callers.
	Singleton Lifecycle = iota
	// MultiInstance services are created fresh for every call.
	MultiInstance
)

func (l Lifecycle) String() string {
	if l == MultiInstance {
		return "multi_instance"
	}
	return "singleton"
}

// Constructor creates a service instance.
type Constructor func() (Service, error)
