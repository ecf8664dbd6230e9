package api_test

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/taskrelay/internal/api"
	"github.com/phrazzld/taskrelay/internal/api/middleware"
	"github.com/phrazzld/taskrelay/internal/stream"
)

func dialSocket(t *testing.T, sched *echoScheduler) *websocket.Conn {
	t.Helper()
	return dialSocketAs(t, sched, "user-9")
}

// dialSocketAs connects with the given identity; an empty userID connects
// anonymously.
func dialSocketAs(t *testing.T, sched *echoScheduler, userID string) *websocket.Conn {
	t.Helper()
	h := api.NewSocketHandler(newGateway(t, sched), api.SocketSettings{
		WriteTimeout: time.Second,
		PingInterval: time.Minute,
	}, discardLogger())

	r := chi.NewRouter()
	r.Use(middleware.Identity)
	r.Handle("/api/socket", h)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/socket"
	if userID != "" {
		url += "?user_id=" + userID
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) stream.Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var f stream.Frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func TestSocketPing(t *testing.T) {
	t.Parallel()
	conn := dialSocket(t, &echoScheduler{})

	require.NoError(t, conn.WriteJSON(map[string]any{
		"event": api.FramePing,
		"data":  map[string]any{"timestamp": 1234},
	}))

	f := readFrame(t, conn)
	assert.Equal(t, api.FramePong, f.Event)
	assert.Equal(t, "pong", f.Data["status"])
	assert.EqualValues(t, 1234, f.Data["timestamp"])
	assert.NotNil(t, f.Data["server_timestamp"])
}

func TestSocketSubmission(t *testing.T) {
	t.Parallel()
	sched := &echoScheduler{}
	conn := dialSocket(t, sched)

	require.NoError(t, conn.WriteJSON(map[string]any{
		"id":    "req-1",
		"event": "shop",
		"data": []any{map[string]any{
			"task":     "search",
			"taskData": map[string]any{"keyword": "lamp", "response_listener_event": "listener-s"},
		}},
	}))

	// The ack and the task events race; collect until the stream ends.
	var ack *stream.Frame
	var events []stream.Frame
	for ack == nil || len(events) < 2 {
		f := readFrame(t, conn)
		if f.Event == api.FrameAck {
			ack = &f
			continue
		}
		events = append(events, f)
	}

	assert.Equal(t, "req-1", ack.Data["id"])
	assert.Equal(t, "received", ack.Data["status"])
	assert.Equal(t, []any{"listener-s"}, ack.Data["response_listener_events"])

	require.Len(t, events, 2)
	assert.Equal(t, "listener-s", events[0].Event)
	assert.Equal(t, "found lamp", events[0].Data["text"])
	assert.Equal(t, true, events[1].Data["end"])

	tasks := sched.submitted()
	require.Len(t, tasks, 1)
	assert.Equal(t, "user-9", tasks[0].UserID)
	assert.Equal(t, api.SocketNamespace, tasks[0].Namespace)
	assert.NotEmpty(t, tasks[0].SessionID)
}

func TestSocketSubmissionWithoutIdentityRunsAsSystem(t *testing.T) {
	t.Parallel()
	sched := &echoScheduler{}
	conn := dialSocketAs(t, sched, "")

	require.NoError(t, conn.WriteJSON(map[string]any{
		"event": "shop",
		"data":  []any{map[string]any{"task": "search", "taskData": map[string]any{"keyword": "lamp"}}},
	}))

	require.Eventually(t, func() bool { return len(sched.submitted()) == 1 }, 5*time.Second, 5*time.Millisecond)
	submitted := sched.submitted()[0]
	assert.Equal(t, api.SystemUserID, submitted.UserID)
	assert.Equal(t, api.SystemUserID, submitted.Payload["user_id"])
}

func TestSocketSubmissionWithoutData(t *testing.T) {
	t.Parallel()
	conn := dialSocket(t, &echoScheduler{})

	require.NoError(t, conn.WriteJSON(map[string]any{"event": "shop", "data": "nothing"}))

	var ack *stream.Frame
	var globalErr *stream.Frame
	for ack == nil || globalErr == nil {
		f := readFrame(t, conn)
		switch f.Event {
		case api.FrameAck:
			ack = &f
		case "global_error":
			if _, ok := f.Data["error"]; ok {
				globalErr = &f
			}
		}
	}

	assert.Equal(t, "error", ack.Data["status"])
	assert.Equal(t, "No task objects provided", ack.Data["error"])
	errObj, ok := globalErr.Data["error"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "no_data_provided", errObj["type"])
}
