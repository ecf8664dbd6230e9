package task

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/phrazzld/taskrelay/internal/stream"
)

// Priorities. Lower values are more urgent.
const (
	DefaultPriority    = 10
	BackgroundPriority = 100
)

// SystemUser owns tasks submitted without a user. It is exempt from quotas.
const SystemUser = "system"

// Class selects which of the two bounded queues a task is admitted to.
type Class int

const (
	Interactive Class = iota
	Background
)

func (c Class) String() string {
	if c == Background {
		return "background"
	}
	return "interactive"
}

// Lane partitions a queue by worker pool. Long lane tasks belong to
// services classified as long-running.
type Lane int

const (
	ShortLane Lane = iota
	LongLane
)

func (l Lane) String() string {
	if l == LongLane {
		return "long"
	}
	return "short"
}

type state int

const (
	stateNew state = iota
	stateQueued
	stateRunning
	stateDone
)

// Callback is invoked after a task finished, with its execution error.
type Callback func(ctx context.Context, t *Task, err error)

// Task is one schedulable unit of work.
type Task struct {
	ID          string
	ServiceName string
	TaskName    string
	UserID      string
	Priority    int
	Payload     map[string]any
	SessionID   string
	Namespace   string
	Stream      stream.Emitter
	IsSync      bool
	Callback    Callback
	SubmitTime  time.Time

	explicitPriority bool

	// guarded by the scheduler's mutex
	class     Class
	lane      Lane
	seq       uint64
	state     state
	cancelled bool
	cancel    context.CancelCauseFunc
	index     int

	// guarded by the queue's mutex
	enqueued time.Time

	released atomic.Bool
}

// Option configures a Task.
type Option func(*Task)

// WithUser sets the owning user.
func WithUser(userID string) Option {
	return func(t *Task) { t.UserID = userID }
}

// WithPriority sets the priority explicitly.
func WithPriority(p int) Option {
	return func(t *Task) {
		t.Priority = p
		t.explicitPriority = true
	}
}

// WithSession records the transport session the task arrived on.
func WithSession(id string) Option {
	return func(t *Task) { t.SessionID = id }
}

// WithNamespace records the transport namespace.
func WithNamespace(ns string) Option {
	return func(t *Task) { t.Namespace = ns }
}

// Sync marks the task as synchronous work that occupies an executor slot.
func Sync() Option {
	return func(t *Task) { t.IsSync = true }
}

// WithCallback registers a completion callback.
func WithCallback(cb Callback) Option {
	return func(t *Task) { t.Callback = cb }
}

// New creates a task for serviceName.taskName bound to s.
func New(serviceName, taskName string, payload map[string]any, s stream.Emitter, opts ...Option) *Task {
	t := &Task{
		ServiceName: serviceName,
		TaskName:    taskName,
		UserID:      SystemUser,
		Priority:    DefaultPriority,
		Payload:     payload,
		Stream:      s,
		index:       -1,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.UserID == "" {
		t.UserID = SystemUser
	}
	return t
}

// Class returns the queue class the task was admitted to.
func (t *Task) Class() Class {
	return t.class
}

// Lane returns the worker lane the task was routed to.
func (t *Task) Lane() Lane {
	return t.lane
}

// less orders by (priority, submit time, admission sequence).
func (t *Task) less(o *Task) bool {
	if t.Priority != o.Priority {
		return t.Priority < o.Priority
	}
	if !t.SubmitTime.Equal(o.SubmitTime) {
		return t.SubmitTime.Before(o.SubmitTime)
	}
	return t.seq < o.seq
}

// Executor runs a dequeued task.
type Executor interface {
	Execute(ctx context.Context, t *Task) error
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, t *Task) error

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, t *Task) error {
	return f(ctx, t)
}
