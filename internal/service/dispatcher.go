package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/phrazzld/taskrelay/internal/stream"
	"github.com/phrazzld/taskrelay/internal/task"
)

// Dispatcher resolves a service instance for each call and invokes the
// handler registered for the task name.
type Dispatcher struct {
	factory *Factory
	logger  *slog.Logger
}

// NewDispatcher creates a Dispatcher backed by factory.
func NewDispatcher(factory *Factory, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		factory: factory,
		logger:  logger.With("component", "dispatcher"),
	}
}

// Dispatch runs call. MIC_CHECK is answered for every service without
// consulting it. Unknown services and tasks are reported on the call's
// stream as fatal errors and returned. Failures carrying an *Error are
// reported with its fields; other handler errors are returned untouched.
func (d *Dispatcher) Dispatch(ctx context.Context, call *Call) error {
	if call.Logger == nil {
		call.Logger = d.logger.With("service", call.Service, "task", call.Task, "user_id", call.UserID)
	}
	taskName := strings.ToUpper(call.Task)

	if taskName == MicCheckTask {
		return MicCheck(ctx, call)
	}

	svc, release, err := d.factory.Acquire(call.Service)
	if err != nil {
		d.logger.Error("failed to resolve service", "service", call.Service, "error", err)
		_ = call.Stream.FatalError(ctx, stream.ErrorObject{
			Type:    "unknown_service",
			Message: err.Error(),
		})
		return err
	}
	defer release(context.WithoutCancel(ctx))

	handler, ok := lookup(svc.Handlers(), taskName)
	if !ok {
		err := fmt.Errorf("%w: %s has no task %s", ErrUnknownTask, svc.Name(), call.Task)
		d.logger.Error("task not found on service", "service", svc.Name(), "task", call.Task)
		_ = call.Stream.FatalError(ctx, stream.ErrorObject{
			Type:    "unknown_task",
			Message: err.Error(),
		})
		return err
	}

	err = handler(ctx, call)
	var taskErr *Error
	if errors.As(err, &taskErr) {
		_ = call.Stream.FatalError(ctx, taskErr.Object())
	}
	return err
}

func lookup(handlers map[string]HandlerFunc, taskName string) (HandlerFunc, bool) {
	if h, ok := handlers[taskName]; ok {
		return h, true
	}
	for name, h := range handlers {
		if strings.EqualFold(name, taskName) {
			return h, true
		}
	}
	return nil, false
}

// Execute implements task.Executor.
func (d *Dispatcher) Execute(ctx context.Context, t *task.Task) error {
	call := &Call{
		Service:   t.ServiceName,
		Task:      t.TaskName,
		TaskID:    t.ID,
		UserID:    t.UserID,
		SessionID: t.SessionID,
		Namespace: t.Namespace,
		Context:   t.Payload,
		Stream:    t.Stream,
		Logger: d.logger.With(
			"task_id", t.ID,
			"service", t.ServiceName,
			"task", t.TaskName,
			"user_id", t.UserID,
		),
	}
	return d.Dispatch(ctx, call)
}

var _ task.Executor = (*Dispatcher)(nil)
