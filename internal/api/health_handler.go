package api

import (
	"net/http"

	"github.com/phrazzld/taskrelay/internal/api/shared"
	"github.com/phrazzld/taskrelay/internal/task"
)

// StatsProvider reports scheduler state. *task.Scheduler implements it.
type StatsProvider interface {
	Stats() task.Stats
}

// HealthHandler reports whether the scheduler accepts work.
type HealthHandler struct {
	stats StatsProvider
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(stats StatsProvider) *HealthHandler {
	return &HealthHandler{stats: stats}
}

// Health handles GET /health.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	st := h.stats.Stats()
	if !st.Started || st.Stopped {
		shared.RespondWithJSON(w, r, http.StatusServiceUnavailable, map[string]any{"status": "unavailable"})
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, map[string]any{
		"status":  "ok",
		"running": st.Running,
	})
}
