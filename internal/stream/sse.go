package stream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/phrazzld/taskrelay/internal/platform/jsoncodec"
)

var keepaliveFrame = []byte(`{"keepalive":true}`)

// SSESink buffers encoded events until Serve writes them to an HTTP
// response as server-sent events. Events written before Serve starts are
// held in a backlog so a handler can emit a rejection on the same goroutine
// that later calls Serve.
type SSESink struct {
	ch   chan []byte
	done chan struct{}

	mu      sync.Mutex
	serving bool
	backlog [][]byte

	closeOnce   sync.Once
	abandonOnce sync.Once
}

var _ Sink = (*SSESink)(nil)

// NewSSESink creates a sink holding up to buffer undelivered events once
// Serve is running.
func NewSSESink(buffer int) *SSESink {
	if buffer < 1 {
		buffer = 1
	}
	return &SSESink{
		ch:   make(chan []byte, buffer),
		done: make(chan struct{}),
	}
}

// Write queues ev for delivery. While Serve runs it blocks as long as the
// buffer is full, and it fails once the consumer has abandoned the stream.
func (s *SSESink) Write(ctx context.Context, ev Event) error {
	data, err := jsoncodec.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	select {
	case <-s.done:
		return ErrStreamClosed
	default:
	}

	s.mu.Lock()
	if !s.serving {
		s.backlog = append(s.backlog, data)
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	select {
	case s.ch <- data:
		return nil
	case <-s.done:
		return ErrStreamClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close marks the end of the event sequence.
func (s *SSESink) Close() error {
	s.closeOnce.Do(func() { close(s.ch) })
	return nil
}

// Abandon tells producers that nobody is reading anymore.
func (s *SSESink) Abandon() {
	s.abandonOnce.Do(func() { close(s.done) })
}

// Serve writes queued events to w until the stream ends or ctx is done.
// A keepalive frame is written whenever no event arrived for keepalive.
func (s *SSESink) Serve(ctx context.Context, w http.ResponseWriter, keepalive time.Duration) error {
	defer s.Abandon()

	flusher, ok := w.(http.Flusher)
	if !ok {
		return errors.New("streaming unsupported by response writer")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	if keepalive <= 0 {
		keepalive = 30 * time.Second
	}
	s.mu.Lock()
	s.serving = true
	backlog := s.backlog
	s.backlog = nil
	s.mu.Unlock()

	for _, data := range backlog {
		if err := writeFrame(w, data); err != nil {
			return err
		}
	}
	flusher.Flush()

	ticker := time.NewTicker(keepalive)
	defer ticker.Stop()

	for {
		select {
		case data, ok := <-s.ch:
			if !ok {
				return nil
			}
			if err := writeFrame(w, data); err != nil {
				return err
			}
			flusher.Flush()
			ticker.Reset(keepalive)
		case <-ticker.C:
			if err := writeFrame(w, keepaliveFrame); err != nil {
				return err
			}
			flusher.Flush()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func writeFrame(w http.ResponseWriter, data []byte) error {
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("failed to write event frame: %w", err)
	}
	return nil
}
