package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/phrazzld/taskrelay/internal/api/shared"
	"github.com/phrazzld/taskrelay/internal/platform/ids"
	"github.com/phrazzld/taskrelay/internal/platform/logger"
	"github.com/phrazzld/taskrelay/internal/request"
	"github.com/phrazzld/taskrelay/internal/stream"
)

// Socket frame names handled besides service submissions.
const (
	FramePing = "ping"
	FramePong = "pong"
	FrameAck  = "ack"
)

// SocketNamespace is recorded on tasks submitted over the socket.
const SocketNamespace = "/UserSession"

const maxSocketMessageBytes = 1 << 20

// inboundFrame is a client message. Event names the target service and Data
// holds one task object or a list of them. ID is echoed on the ack.
type inboundFrame struct {
	ID    string `json:"id,omitempty"`
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// SocketSettings tune the websocket carrier.
type SocketSettings struct {
	WriteTimeout time.Duration
	PingInterval time.Duration
}

// SocketHandler serves the bidirectional task socket. Each submission is
// acknowledged with an ack frame listing its response listener events;
// task events follow as frames named after those events.
type SocketHandler struct {
	gateway  Gateway
	settings SocketSettings
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewSocketHandler creates a SocketHandler. Origins are not checked here;
// that is left to the fronting gateway.
func NewSocketHandler(gateway Gateway, settings SocketSettings, logger *slog.Logger) *SocketHandler {
	if settings.WriteTimeout <= 0 {
		settings.WriteTimeout = 10 * time.Second
	}
	if settings.PingInterval <= 0 {
		settings.PingInterval = 30 * time.Second
	}
	return &SocketHandler{
		gateway:  gateway,
		settings: settings,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: logger.With("component", "socket_handler"),
	}
}

// ServeHTTP upgrades the connection and processes frames until the client
// goes away.
func (h *SocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()
	conn.SetReadLimit(maxSocketMessageBytes)

	userID, ok := shared.GetUserID(r.Context())
	if !ok {
		userID = SystemUserID
	}
	sessionID := ids.NewTaskID()
	log = log.With("session_id", sessionID, "user_id", userID)
	log.Info("socket connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	out := stream.NewSocketConn(conn, h.settings.WriteTimeout)
	go h.keepalive(ctx, out, log)

	for {
		var f inboundFrame
		if err := conn.ReadJSON(&f); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn("socket read failed", "error", err)
			} else {
				log.Info("socket disconnected")
			}
			return
		}
		h.handleFrame(ctx, out, f, userID, sessionID, log)
	}
}

func (h *SocketHandler) handleFrame(ctx context.Context, out *stream.SocketConn, f inboundFrame, userID, sessionID string, log *slog.Logger) {
	if f.Event == FramePing {
		h.pong(ctx, out, f, log)
		return
	}

	open := func(name string) stream.Emitter {
		return stream.New(name, stream.NewSocketSink(name, out), log)
	}

	data := map[string]any{}
	if f.ID != "" {
		data["id"] = f.ID
	}

	if f.Event == "" {
		_ = open(request.GlobalErrorStream).SendError(ctx, stream.ErrorObject{
			Type:    "missing_event",
			Message: "Frame has no event name",
		})
		return
	}

	ack, err := h.gateway.Submit(ctx, request.Submission{
		Service:   f.Event,
		UserID:    userID,
		SessionID: sessionID,
		Namespace: SocketNamespace,
		Data:      f.Data,
	}, open)
	if err != nil {
		data["status"] = "error"
		data["error"] = GetSafeErrorMessage(err)
	} else {
		data["status"] = ack.Status
		data["response_listener_events"] = ack.ResponseListenerEvents
	}

	if err := out.WriteFrame(ctx, stream.Frame{Event: FrameAck, Data: data}); err != nil {
		log.Warn("failed to acknowledge submission", "event", f.Event, "error", err)
	}
}

func (h *SocketHandler) pong(ctx context.Context, out *stream.SocketConn, f inboundFrame, log *slog.Logger) {
	var ts any
	if m, ok := f.Data.(map[string]any); ok {
		ts = m["timestamp"]
	}
	err := out.WriteFrame(ctx, stream.Frame{Event: FramePong, Data: map[string]any{
		"status":           FramePong,
		"timestamp":        ts,
		"server_timestamp": time.Now().UnixMilli(),
	}})
	if err != nil {
		log.Debug("failed to answer ping", "error", err)
	}
}

// keepalive pings the client so intermediaries keep the connection open.
func (h *SocketHandler) keepalive(ctx context.Context, out *stream.SocketConn, log *slog.Logger) {
	ticker := time.NewTicker(h.settings.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := out.Ping(); err != nil {
				if !errors.Is(err, websocket.ErrCloseSent) {
					log.Debug("socket ping failed", "error", err)
				}
				return
			}
		}
	}
}
