package stream

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Frame is a message on the bidirectional socket: the event name is the
// stream name and Data the event payload.
type Frame struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data"`
}

// FrameWriter sends frames to one connected socket client.
type FrameWriter interface {
	WriteFrame(ctx context.Context, f Frame) error
}

// SocketConn serialises writes to a websocket connection, which supports
// at most one concurrent writer.
type SocketConn struct {
	conn         *websocket.Conn
	writeTimeout time.Duration

	mu sync.Mutex
}

var _ FrameWriter = (*SocketConn)(nil)

// NewSocketConn wraps conn.
func NewSocketConn(conn *websocket.Conn, writeTimeout time.Duration) *SocketConn {
	return &SocketConn{conn: conn, writeTimeout: writeTimeout}
}

// WriteFrame writes f as a JSON text message.
func (c *SocketConn) WriteFrame(ctx context.Context, f Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	deadline := time.Time{}
	if c.writeTimeout > 0 {
		deadline = time.Now().Add(c.writeTimeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}
	if err := c.conn.WriteJSON(f); err != nil {
		return fmt.Errorf("failed to write socket frame: %w", err)
	}
	return nil
}

// Ping sends a websocket ping control frame.
func (c *SocketConn) Ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	deadline := time.Now().Add(10 * time.Second)
	if c.writeTimeout > 0 {
		deadline = time.Now().Add(c.writeTimeout)
	}
	return c.conn.WriteControl(websocket.PingMessage, nil, deadline)
}

// SocketSink delivers events as frames named after the stream.
type SocketSink struct {
	event string
	out   FrameWriter
}

var _ Sink = (*SocketSink)(nil)

// NewSocketSink creates a sink emitting frames named event.
func NewSocketSink(event string, out FrameWriter) *SocketSink {
	return &SocketSink{event: event, out: out}
}

// Write sends ev as one frame.
func (s *SocketSink) Write(ctx context.Context, ev Event) error {
	return s.out.WriteFrame(ctx, Frame{Event: s.event, Data: ev.Payload()})
}

// Close is a no-op; the connection outlives individual streams.
func (s *SocketSink) Close() error {
	return nil
}
