package request

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/phrazzld/taskrelay/internal/schema"
	"github.com/phrazzld/taskrelay/internal/stream"
	"github.com/phrazzld/taskrelay/internal/task"
)

// GlobalErrorStream is the stream that receives problems not attributable
// to a single task object.
const GlobalErrorStream = "global_error"

// StatusReceived is the acknowledgement status of an accepted submission.
const StatusReceived = "received"

// ErrNoData is returned when a submission carries no task objects.
var ErrNoData = errors.New("no task objects provided")

// Submitter admits tasks. *task.Scheduler implements it.
type Submitter interface {
	Submit(ctx context.Context, t *task.Task) error
}

// Opener creates the stream named name on the caller's transport.
type Opener func(name string) stream.Emitter

// Submission is one inbound request: a target service, the caller and the
// raw task objects.
type Submission struct {
	Service   string
	UserID    string
	SessionID string
	Namespace string
	Priority  *int
	Sync      bool

	// Data is a single task object or a list of them.
	Data any
}

// Ack is returned to the client once the task objects were processed.
type Ack struct {
	Status                 string   `json:"status"`
	ResponseListenerEvents []string `json:"response_listener_events"`
}

// Gateway validates task objects and hands them to the scheduler. Every
// rejected object is reported on a stream, so the client always hears back
// on the names listed in the Ack.
type Gateway struct {
	validator *schema.Validator
	scheduler Submitter
	logger    *slog.Logger
	newID     func() string
}

// NewGateway creates a Gateway.
func NewGateway(validator *schema.Validator, scheduler Submitter, logger *slog.Logger) *Gateway {
	return &Gateway{
		validator: validator,
		scheduler: scheduler,
		logger:    logger.With("component", "request_gateway"),
		newID:     uuid.NewString,
	}
}

// Submit processes every task object of sub. Problems with individual
// objects are reported on their streams; the returned error is reserved for
// submissions without any task object.
func (g *Gateway) Submit(ctx context.Context, sub Submission, open Opener) (Ack, error) {
	items := Items(sub.Data)
	if len(items) == 0 {
		_ = open(GlobalErrorStream).FatalError(ctx, stream.ErrorObject{
			Type:    "no_data_provided",
			Message: "No data provided",
		})
		return Ack{}, ErrNoData
	}

	names := AssignListenerEvents(items, g.newID)
	for i, item := range items {
		g.process(ctx, sub, item, names[i], open)
	}

	return Ack{Status: StatusReceived, ResponseListenerEvents: names}, nil
}

func (g *Gateway) process(ctx context.Context, sub Submission, item any, name string, open Opener) {
	log := g.logger.With("service", sub.Service, "user_id", sub.UserID, "response_listener_event", name)

	obj, problems := ParseObject(item)
	if len(problems) > 0 {
		log.Warn("malformed task object", "errors", problems)
		_ = open(GlobalErrorStream).FatalError(ctx, stream.ErrorObject{
			Type:    "structure_validation_error",
			Message: "Request structure validation failed",
			Details: map[string]any{"errors": problems, "response_listener_event": name},
		})
		return
	}

	result := g.validator.Validate(obj.TaskData, sub.Service, obj.Task, sub.UserID)
	if event := result.ResponseListenerEvent(); event != "" {
		name = event
	}
	s := open(name)

	if !result.Valid() {
		log.Info("task failed validation", "task", obj.Task, "index", obj.Index)
		_ = s.FatalError(ctx, stream.ErrorObject{
			Type:               "validation_error",
			Message:            "Task validation failed. See details.",
			UserVisibleMessage: "Your request was invalid. Please try again.",
			Details:            result.Errors,
		})
		return
	}

	opts := []task.Option{
		task.WithUser(sub.UserID),
		task.WithSession(sub.SessionID),
		task.WithNamespace(sub.Namespace),
	}
	if sub.Priority != nil {
		opts = append(opts, task.WithPriority(*sub.Priority))
	}
	if sub.Sync {
		opts = append(opts, task.Sync())
	}
	t := task.New(sub.Service, obj.Task, result.Context, s, opts...)

	if err := g.scheduler.Submit(ctx, t); err != nil {
		log.Warn("task not admitted", "task", obj.Task, "error", err)
		reportRejection(ctx, s, err)
		return
	}
	log.Debug("task admitted", "task", obj.Task, "task_id", t.ID)
}

// reportRejection tells the client why its task was not admitted.
func reportRejection(ctx context.Context, s stream.Emitter, err error) {
	switch {
	case errors.Is(err, task.ErrQuotaExceeded):
		_ = s.SendCancelled(ctx)
	case errors.Is(err, task.ErrQueueFull):
		_ = s.FatalError(ctx, stream.ErrorObject{
			Type:               "queue_full",
			Message:            err.Error(),
			UserVisibleMessage: "The server is busy. Please try again shortly.",
		})
	case errors.Is(err, task.ErrSchedulerStopped):
		_ = s.FatalError(ctx, stream.ErrorObject{
			Type:               "service_unavailable",
			Message:            err.Error(),
			UserVisibleMessage: "The server is shutting down. Please try again shortly.",
		})
	default:
		_ = s.FatalError(ctx, stream.ErrorObject{
			Type:    "submission_error",
			Message: fmt.Sprintf("could not submit task: %v", err),
		})
	}
}
