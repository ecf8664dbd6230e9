package api

import (
	"log/slog"
	"net/http"

	"github.com/phrazzld/taskrelay/internal/api/shared"
	"github.com/phrazzld/taskrelay/internal/events"
	"github.com/phrazzld/taskrelay/internal/platform/logger"
	"github.com/phrazzld/taskrelay/internal/schema"
	"github.com/phrazzld/taskrelay/internal/task"
)

// BackgroundRequest is the body of POST /api/background.
type BackgroundRequest struct {
	Service  string         `json:"service" validate:"required"`
	Task     string         `json:"task" validate:"required"`
	Priority *int           `json:"priority,omitempty" validate:"omitempty,gte=0"`
	Data     map[string]any `json:"data"`
}

// BackgroundResponse acknowledges an accepted background task.
type BackgroundResponse struct {
	Status  string `json:"status"`
	EventID string `json:"event_id"`
}

// ValidationErrorResponse carries field errors of a rejected task.
type ValidationErrorResponse struct {
	Error   string         `json:"error"`
	Details map[string]any `json:"details"`
}

// BackgroundHandler accepts fire-and-forget tasks. They run in the
// background lane and nothing streams back to the caller.
type BackgroundHandler struct {
	validator *schema.Validator
	emitter   events.EventEmitter
	logger    *slog.Logger
}

// NewBackgroundHandler creates a BackgroundHandler.
func NewBackgroundHandler(validator *schema.Validator, emitter events.EventEmitter, logger *slog.Logger) *BackgroundHandler {
	return &BackgroundHandler{
		validator: validator,
		emitter:   emitter,
		logger:    logger.With("component", "background_handler"),
	}
}

// SubmitBackground handles POST /api/background.
func (h *BackgroundHandler) SubmitBackground(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	var req BackgroundRequest
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

	data := req.Data
	if data == nil {
		data = map[string]any{}
	}
	result := h.validator.Validate(data, req.Service, req.Task, userID)
	if !result.Valid() {
		log.Info("background task failed validation", "service", req.Service, "task", req.Task)
		shared.RespondWithJSON(w, r, http.StatusBadRequest, ValidationErrorResponse{
			Error:   "Task validation failed",
			Details: result.Errors,
		})
		return
	}

	event, err := events.NewTaskRequestEvent(task.EventTypeBackgroundTask, task.BackgroundTaskPayload{
		Service:  req.Service,
		Task:     req.Task,
		UserID:   userID,
		Priority: req.Priority,
		Data:     result.Context,
	}, events.WithSource("api"))
	if err != nil {
		HandleAPIError(w, r, err, "Failed to create background task")
		return
	}

	if err := h.emitter.EmitEvent(r.Context(), event); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	log.Info("background task accepted", "service", req.Service, "task", req.Task, "event_id", event.ID)
	shared.RespondWithJSON(w, r, http.StatusAccepted, BackgroundResponse{
		Status:  "accepted",
		EventID: event.ID.String(),
	})
}
