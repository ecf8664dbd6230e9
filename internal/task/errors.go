package task

import "errors"

// Scheduler errors.
var (
	ErrQueueClosed      = errors.New("task queue is closed")
	ErrQueueFull        = errors.New("task queue is full")
	ErrQuotaExceeded    = errors.New("user task quota exceeded")
	ErrSchedulerStopped = errors.New("scheduler is stopped")
	ErrAlreadyStarted   = errors.New("scheduler already started")
	ErrTaskTimeout      = errors.New("task timed out")
	ErrSyncTimeout      = errors.New("synchronous task timed out")
	ErrTaskCancelled    = errors.New("task cancelled")
	ErrTaskPanic        = errors.New("task panicked")
	ErrNoStream         = errors.New("task has no stream")
)
