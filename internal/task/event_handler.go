package task

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/phrazzld/taskrelay/internal/events"
	"github.com/phrazzld/taskrelay/internal/schema"
	"github.com/phrazzld/taskrelay/internal/stream"
)

// EventTypeBackgroundTask is the event type handled by TaskEventHandler.
const EventTypeBackgroundTask = "background_task"

// BackgroundTaskPayload is the payload of a background task request event.
type BackgroundTaskPayload struct {
	Service  string         `json:"service"`
	Task     string         `json:"task"`
	UserID   string         `json:"user_id,omitempty"`
	Priority *int           `json:"priority,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
}

// BackgroundSubmitter accepts background tasks.
type BackgroundSubmitter interface {
	SubmitBackground(ctx context.Context, t *Task) error
}

// ContextValidator applies a task schema to decoded task data.
type ContextValidator interface {
	Validate(data map[string]any, service, task, userID string) schema.Result
}

// TaskEventHandler implements events.EventHandler by turning background task
// request events into background tasks. Their output goes to a recorder
// stream since no client is attached.
type TaskEventHandler struct {
	submitter BackgroundSubmitter
	validator ContextValidator
	logger    *slog.Logger

	// onRecorded, when set, receives each task's recorder once it is
	// submitted.
	onRecorded func(t *Task, rec *stream.Recorder)
}

// NewTaskEventHandler creates a handler submitting to submitter.
func NewTaskEventHandler(submitter BackgroundSubmitter, logger *slog.Logger) *TaskEventHandler {
	return &TaskEventHandler{
		submitter: submitter,
		logger:    logger.With("component", "task_event_handler"),
	}
}

// OnRecorded registers fn to receive the recorder of every submitted task.
func (h *TaskEventHandler) OnRecorded(fn func(t *Task, rec *stream.Recorder)) {
	h.onRecorded = fn
}

// ValidateWith makes the handler re-apply v to every payload before
// submission. Event payloads travel as JSON, so numbers arrive as float64;
// re-validating an already validated context restores the coerced values
// without changing anything else.
func (h *TaskEventHandler) ValidateWith(v ContextValidator) {
	h.validator = v
}

// HandleEvent submits a background task for events of type
// EventTypeBackgroundTask and ignores everything else.
func (h *TaskEventHandler) HandleEvent(ctx context.Context, event *events.TaskRequestEvent) error {
	if event.Type != EventTypeBackgroundTask {
		h.logger.Debug("ignoring event with unsupported type",
			"event_type", event.Type,
			"event_id", event.ID)
		return nil
	}

	var payload BackgroundTaskPayload
	if err := event.UnmarshalPayload(&payload); err != nil {
		h.logger.Error("failed to unmarshal payload", "error", err, "event_id", event.ID)
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	if payload.Service == "" || payload.Task == "" {
		h.logger.Error("background task event without service or task", "event_id", event.ID)
		return errors.New("background task event requires service and task")
	}

	if h.validator != nil {
		res := h.validator.Validate(payload.Data, payload.Service, payload.Task, cmp.Or(payload.UserID, SystemUser))
		if !res.Valid() {
			h.logger.Error("background task data failed validation", "errors", res.Errors, "event_id", event.ID)
			return fmt.Errorf("background task data failed validation: %v", res.Errors)
		}
		payload.Data = res.Context
	}

	s, rec := stream.NewRecorded("background-" + event.ID.String())
	opts := []Option{WithUser(payload.UserID), WithCallback(h.logOutcome(rec))}
	if payload.Priority != nil {
		opts = append(opts, WithPriority(*payload.Priority))
	}
	t := New(payload.Service, payload.Task, payload.Data, s, opts...)

	if err := h.submitter.SubmitBackground(ctx, t); err != nil {
		h.logger.Error("failed to submit background task",
			"error", err,
			"service", payload.Service,
			"task", payload.Task,
			"event_id", event.ID)
		return fmt.Errorf("failed to submit task: %w", err)
	}
	if h.onRecorded != nil {
		h.onRecorded(t, rec)
	}

	h.logger.Info("background task submitted",
		"task_id", t.ID,
		"service", payload.Service,
		"task", payload.Task,
		"event_id", event.ID)
	return nil
}

func (h *TaskEventHandler) logOutcome(rec *stream.Recorder) Callback {
	return func(_ context.Context, t *Task, err error) {
		h.logger.Info("background task finished",
			"task_id", t.ID,
			"service", t.ServiceName,
			"task", t.TaskName,
			"error", err,
			"events", len(rec.Events()),
			"errors", len(rec.Errors()))
	}
}

var _ events.EventHandler = (*TaskEventHandler)(nil)
