package stream

import (
	"context"
	"strings"
	"sync"
)

// Recorder is a Sink that keeps every event in memory. It backs
// background tasks that have no client attached and is handy in tests.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	closed chan struct{}
	once   sync.Once
}

var _ Sink = (*Recorder)(nil)

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{closed: make(chan struct{})}
}

// NewRecorded returns a Stream writing into a fresh Recorder.
func NewRecorded(name string) (*Stream, *Recorder) {
	rec := NewRecorder()
	return New(name, rec, nil), rec
}

// Write records ev.
func (r *Recorder) Write(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

// Close marks the recording complete.
func (r *Recorder) Close() error {
	r.once.Do(func() { close(r.closed) })
	return nil
}

// Wait blocks until the stream ended or ctx is done.
func (r *Recorder) Wait(ctx context.Context) error {
	select {
	case <-r.closed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Kinds returns the kind of each recorded event in order.
func (r *Recorder) Kinds() []Kind {
	events := r.Events()
	kinds := make([]Kind, len(events))
	for i, ev := range events {
		kinds[i] = ev.Kind
	}
	return kinds
}

// Text concatenates all text chunks.
func (r *Recorder) Text() string {
	var b strings.Builder
	for _, ev := range r.Events() {
		if ev.Kind == KindText {
			b.WriteString(ev.Text)
		}
	}
	return b.String()
}

// Data returns the payloads of all data events.
func (r *Recorder) Data() []any {
	var out []any
	for _, ev := range r.Events() {
		if ev.Kind == KindData {
			out = append(out, ev.Data)
		}
	}
	return out
}

// Errors returns the payloads of all error events.
func (r *Recorder) Errors() []ErrorObject {
	var out []ErrorObject
	for _, ev := range r.Events() {
		if ev.Kind == KindError && ev.Error != nil {
			out = append(out, *ev.Error)
		}
	}
	return out
}

// Statuses returns the payloads of all status events.
func (r *Recorder) Statuses() []Info {
	var out []Info
	for _, ev := range r.Events() {
		if ev.Kind == KindInfo && ev.Info != nil {
			out = append(out, *ev.Info)
		}
	}
	return out
}
