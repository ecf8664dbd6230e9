package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/phrazzld/taskrelay/internal/redact"
)

var (
	// ErrContractViolation is returned when a caller breaks the protocol,
	// for example a status outside confirm/processing.
	ErrContractViolation = errors.New("stream contract violation")

	// ErrStreamClosed is returned by a sink whose consumer has gone away.
	ErrStreamClosed = errors.New("stream closed")
)

// Cancellation messages sent by SendCancelled.
const (
	CancelledType               = "task_cancelled"
	CancelledMessage            = "Task was cancelled due to exceeding task limit or system error."
	CancelledUserVisibleMessage = "Your request was cancelled. Please try again."
)

// Emitter is the interface tasks use to report progress and results.
type Emitter interface {
	// Name is the stream name (the task's response listener event).
	Name() string

	SendChunk(ctx context.Context, text string) error
	SendChunkFinal(ctx context.Context, text string) error

	// SendData sends a data object. A top-level "data" key inside a map is
	// hoisted so clients never see {"data": {"data": ...}}.
	SendData(ctx context.Context, data any) error
	SendDataFinal(ctx context.Context, data any) error

	SendStatus(ctx context.Context, status Status, systemMessage string, opts ...StatusOption) error

	SendError(ctx context.Context, e ErrorObject) error
	FatalError(ctx context.Context, e ErrorObject) error
	SendCancelled(ctx context.Context) error

	SendBroker(ctx context.Context, b Broker) error
	SendBrokers(ctx context.Context, brokers []Broker) error

	// SendEnd terminates the stream. Only the first call emits anything.
	SendEnd(ctx context.Context) error
	Ended() bool
}

// StatusOption customises a status update.
type StatusOption func(*Info)

// WithUserVisibleMessage attaches a message meant for end users.
func WithUserVisibleMessage(msg string) StatusOption {
	return func(i *Info) { i.UserVisibleMessage = msg }
}

// WithMetadata attaches arbitrary metadata to a status update.
func WithMetadata(md map[string]any) StatusOption {
	return func(i *Info) { i.Metadata = md }
}

// Sink delivers encoded events to a carrier. Write calls for one stream are
// serialised; Close is called once, right after the end event is written.
type Sink interface {
	Write(ctx context.Context, ev Event) error
	Close() error
}

// Stream implements Emitter on top of a Sink and enforces the protocol:
// payload normalisation, status checks and the single end marker.
type Stream struct {
	name   string
	sink   Sink
	logger *slog.Logger

	mu    sync.Mutex
	ended bool
}

var _ Emitter = (*Stream)(nil)

// New creates a Stream writing to sink.
func New(name string, sink Sink, logger *slog.Logger) *Stream {
	if logger == nil {
		logger = slog.Default()
	}
	return &Stream{
		name:   name,
		sink:   sink,
		logger: logger.With("stream", name),
	}
}

// Name returns the stream name.
func (s *Stream) Name() string {
	return s.name
}

// Ended reports whether the end marker has been sent.
func (s *Stream) Ended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}

func (s *Stream) emit(ctx context.Context, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended {
		s.logger.Debug("dropping event after end", "kind", ev.Kind)
		return nil
	}
	if ev.Kind == KindEnd {
		s.ended = true
	}

	err := s.sink.Write(ctx, ev)
	if ev.Kind == KindEnd {
		if cerr := s.sink.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	if err != nil {
		s.logger.Warn("failed to deliver stream event", "kind", ev.Kind, "error", err)
		return fmt.Errorf("failed to send %s event: %w", ev.Kind, err)
	}
	return nil
}

// SendChunk sends a text fragment.
func (s *Stream) SendChunk(ctx context.Context, text string) error {
	return s.emit(ctx, Event{Kind: KindText, Text: text})
}

// SendChunkFinal sends a text fragment and ends the stream.
func (s *Stream) SendChunkFinal(ctx context.Context, text string) error {
	if err := s.SendChunk(ctx, text); err != nil {
		return err
	}
	return s.SendEnd(ctx)
}

// SendData sends a data object.
func (s *Stream) SendData(ctx context.Context, data any) error {
	return s.emit(ctx, Event{Kind: KindData, Data: Serialize(s.hoist(data))})
}

// SendDataFinal sends a data object and ends the stream.
func (s *Stream) SendDataFinal(ctx context.Context, data any) error {
	if err := s.SendData(ctx, data); err != nil {
		return err
	}
	return s.SendEnd(ctx)
}

func (s *Stream) hoist(data any) any {
	m, ok := data.(map[string]any)
	if !ok {
		return data
	}
	nested, ok := m["data"]
	if !ok {
		return data
	}
	s.logger.Warn("data object contains a nested 'data' key; hoisting it")

	nestedMap, ok := nested.(map[string]any)
	if !ok {
		return nested
	}
	out := make(map[string]any, len(m)+len(nestedMap))
	for k, v := range m {
		if k != "data" {
			out[k] = v
		}
	}
	for k, v := range nestedMap {
		out[k] = v
	}
	return out
}

// SendStatus sends a progress update. Only confirm and processing are
// accepted and a system message is mandatory; violations are logged and
// returned without emitting anything.
func (s *Stream) SendStatus(ctx context.Context, status Status, systemMessage string, opts ...StatusOption) error {
	if !status.Valid() {
		err := fmt.Errorf("%w: status must be one of confirm, processing (got %q); use errors and end for failures and completion",
			ErrContractViolation, status)
		s.logger.Error("invalid status update", "error", err)
		return err
	}
	if systemMessage == "" {
		err := fmt.Errorf("%w: system message is required for status updates", ErrContractViolation)
		s.logger.Error("invalid status update", "error", err)
		return err
	}

	info := &Info{Status: status, SystemMessage: systemMessage}
	for _, opt := range opts {
		opt(info)
	}
	if info.Metadata != nil {
		info.Metadata, _ = Serialize(info.Metadata).(map[string]any)
	}
	return s.emit(ctx, Event{Kind: KindInfo, Info: info})
}

// SendError sends a non-terminal error.
func (s *Stream) SendError(ctx context.Context, e ErrorObject) error {
	return s.emit(ctx, Event{Kind: KindError, Error: normalizeError(e)})
}

// FatalError sends an error and ends the stream.
func (s *Stream) FatalError(ctx context.Context, e ErrorObject) error {
	if err := s.SendError(ctx, e); err != nil {
		return err
	}
	return s.SendEnd(ctx)
}

// SendCancelled reports that the task was cancelled and ends the stream.
func (s *Stream) SendCancelled(ctx context.Context) error {
	return s.FatalError(ctx, ErrorObject{
		Type:               CancelledType,
		Message:            CancelledMessage,
		UserVisibleMessage: CancelledUserVisibleMessage,
	})
}

func normalizeError(e ErrorObject) *ErrorObject {
	out := e
	out.Message = redact.String(e.Message)
	if out.UserVisibleMessage == "" {
		out.UserVisibleMessage = DefaultUserVisibleMessage
	}
	if e.Details != nil {
		out.Details = Serialize(e.Details)
	}
	return &out
}

// SendBroker sends one broker value.
func (s *Stream) SendBroker(ctx context.Context, b Broker) error {
	b.Value = Serialize(b.Value)
	return s.emit(ctx, Event{Kind: KindBroker, Broker: &b})
}

// SendBrokers sends each broker value in order.
func (s *Stream) SendBrokers(ctx context.Context, brokers []Broker) error {
	for _, b := range brokers {
		if err := s.SendBroker(ctx, b); err != nil {
			return err
		}
	}
	return nil
}

// SendEnd terminates the stream.
func (s *Stream) SendEnd(ctx context.Context) error {
	return s.emit(ctx, Event{Kind: KindEnd})
}
