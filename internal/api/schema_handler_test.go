package api_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/taskrelay/internal/api"
	"github.com/phrazzld/taskrelay/internal/platform/jsoncodec"
	"github.com/phrazzld/taskrelay/internal/task"
)

func TestGetSchema(t *testing.T) {
	t.Parallel()
	h := api.NewSchemaHandler(newValidator(t).Registry())

	rec := httptest.NewRecorder()
	h.GetSchema(rec, httptest.NewRequest(http.MethodGet, "/api/schema", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var doc map[string]any
	require.NoError(t, jsoncodec.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Contains(t, doc, "definitions")
	tasks, ok := doc["tasks"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, tasks, "SHOP")
}

type fixedStats task.Stats

func (f fixedStats) Stats() task.Stats { return task.Stats(f) }

func TestHealth(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		stats      task.Stats
		wantStatus int
	}{
		{name: "running", stats: task.Stats{Started: true, Running: 1}, wantStatus: http.StatusOK},
		{name: "not started", stats: task.Stats{}, wantStatus: http.StatusServiceUnavailable},
		{name: "stopped", stats: task.Stats{Started: true, Stopped: true}, wantStatus: http.StatusServiceUnavailable},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			rec := httptest.NewRecorder()
			api.NewHealthHandler(fixedStats(tc.stats)).Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
			assert.Equal(t, tc.wantStatus, rec.Code)
		})
	}
}
