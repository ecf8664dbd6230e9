package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/phrazzld/taskrelay/internal/api/shared"
	"github.com/phrazzld/taskrelay/internal/platform/logger"
	"github.com/phrazzld/taskrelay/internal/request"
	"github.com/phrazzld/taskrelay/internal/stream"
)

// ListenerEventHeader names the stream an SSE response carries.
const ListenerEventHeader = "X-Response-Listener-Event"

// SystemUserID owns HTTP tasks submitted without a caller identity.
const SystemUserID = "system"

// Gateway accepts task submissions. *request.Gateway implements it.
type Gateway interface {
	Submit(ctx context.Context, sub request.Submission, open request.Opener) (request.Ack, error)
}

// StreamSettings tune the SSE carrier.
type StreamSettings struct {
	Keepalive  time.Duration
	BufferSize int
}

// TaskRequest is the body of POST /api/tasks/{service}.
type TaskRequest struct {
	Task     string         `json:"task"`
	TaskName string         `json:"taskName"`
	TaskData map[string]any `json:"taskData"`
	Priority *int           `json:"priority,omitempty" validate:"omitempty,gte=0"`
	Sync     bool           `json:"sync,omitempty"`
}

// object rebuilds the task object the gateway expects. A missing taskData
// stays missing so the structure check reports it.
func (r *TaskRequest) object() map[string]any {
	obj := map[string]any{"task": r.Task, "taskName": r.TaskName}
	if r.TaskData != nil {
		obj["taskData"] = r.TaskData
	}
	return obj
}

// TaskHandler runs one task per request and streams its events back as
// server-sent events.
type TaskHandler struct {
	gateway  Gateway
	settings StreamSettings
	logger   *slog.Logger
}

// NewTaskHandler creates a TaskHandler.
func NewTaskHandler(gateway Gateway, settings StreamSettings, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{
		gateway:  gateway,
		settings: settings,
		logger:   logger.With("component", "task_handler"),
	}
}

// ExecuteTask handles POST /api/tasks/{service}.
func (h *TaskHandler) ExecuteTask(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	serviceName := chi.URLParam(r, "service")

	var req TaskRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if err := shared.ValidateRequest(&req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, SanitizeValidationError(err), err)
		return
	}

	userID, ok := shared.GetUserID(r.Context())
	if !ok {
		userID = SystemUserID
	}
	sink := stream.NewSSESink(h.settings.BufferSize)

	// One task object per request, so every event goes to the same stream.
	var s stream.Emitter
	open := func(name string) stream.Emitter {
		if s == nil {
			s = stream.New(name, sink, log)
		}
		return s
	}

	ack, err := h.gateway.Submit(r.Context(), request.Submission{
		Service:  serviceName,
		UserID:   userID,
		Priority: req.Priority,
		Sync:     req.Sync,
		Data:     req.object(),
	}, open)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	if len(ack.ResponseListenerEvents) > 0 {
		w.Header().Set(ListenerEventHeader, ack.ResponseListenerEvents[0])
	}

	if err := sink.Serve(r.Context(), w, h.settings.Keepalive); err != nil {
		log.Debug("event stream closed early", "service", serviceName, "error", err)
	}
}
