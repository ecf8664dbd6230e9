package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/phrazzld/taskrelay/internal/platform/ids"
	"github.com/phrazzld/taskrelay/internal/stream"
)

// Config holds scheduler limits.
type Config struct {
	InteractiveCapacity int
	BackgroundCapacity  int

	ShortWorkers int
	LongWorkers  int

	// DefaultUserQuota is the number of outstanding tasks allowed per user
	// unless UserQuotas or SetUserLimit say otherwise.
	DefaultUserQuota int
	UserQuotas       map[string]int

	// PollInterval bounds each wait on a queue.
	PollInterval time.Duration

	TaskTimeout time.Duration
	SyncTimeout time.Duration
	SyncSlots   int64

	// LongRunningServices are routed to the long worker pool.
	LongRunningServices []string
}

// DefaultConfig returns a Config with reasonable defaults.
func DefaultConfig() Config {
	return Config{
		InteractiveCapacity: 1000,
		BackgroundCapacity:  1000,
		ShortWorkers:        50,
		LongWorkers:         50,
		DefaultUserQuota:    5,
		PollInterval:        time.Second,
		TaskTimeout:         600 * time.Second,
		SyncTimeout:         30 * time.Second,
		SyncSlots:           50,
	}
}

// Stats is a point-in-time view of the scheduler.
type Stats struct {
	Running     int            `json:"running"`
	Interactive LaneDepth      `json:"interactive"`
	Background  LaneDepth      `json:"background"`
	Outstanding map[string]int `json:"outstanding"`
	Workers     LaneDepth      `json:"workers"`
	Started     bool           `json:"started"`
	Stopped     bool           `json:"stopped"`
}

// LaneDepth counts per lane.
type LaneDepth struct {
	Short int `json:"short"`
	Long  int `json:"long"`
}

// Scheduler admits tasks into two bounded priority queues and runs them on
// two fixed worker pools, enforcing per-user quotas.
type Scheduler struct {
	cfg      Config
	executor Executor
	logger   *slog.Logger
	metrics  *Metrics
	tracer   trace.Tracer
	sync     *semaphore.Weighted

	queues      [2]*TaskQueue
	longRunning map[string]bool

	mu          sync.Mutex
	outstanding map[string]int
	userTasks   map[string]map[string]*Task
	limits      map[string]int
	running     int
	seq         uint64
	started     bool
	stopped     bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler that runs tasks with executor.
// metrics may be nil.
func NewScheduler(cfg Config, executor Executor, metrics *Metrics, logger *slog.Logger) *Scheduler {
	def := DefaultConfig()
	if cfg.InteractiveCapacity <= 0 {
		cfg.InteractiveCapacity = def.InteractiveCapacity
	}
	if cfg.BackgroundCapacity <= 0 {
		cfg.BackgroundCapacity = def.BackgroundCapacity
	}
	if cfg.ShortWorkers <= 0 {
		logger.Warn("invalid short worker count specified, using 1", "specified_count", cfg.ShortWorkers)
		cfg.ShortWorkers = 1
	}
	if cfg.LongWorkers <= 0 {
		logger.Warn("invalid long worker count specified, using 1", "specified_count", cfg.LongWorkers)
		cfg.LongWorkers = 1
	}
	if cfg.DefaultUserQuota < 0 {
		cfg.DefaultUserQuota = 0
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = def.TaskTimeout
	}
	if cfg.SyncTimeout <= 0 {
		cfg.SyncTimeout = def.SyncTimeout
	}
	if cfg.SyncSlots <= 0 {
		cfg.SyncSlots = def.SyncSlots
	}

	longRunning := make(map[string]bool, len(cfg.LongRunningServices))
	for _, name := range cfg.LongRunningServices {
		longRunning[strings.ToUpper(name)] = true
	}

	limits := make(map[string]int, len(cfg.UserQuotas))
	for user, n := range cfg.UserQuotas {
		limits[user] = max(n, 0)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cfg:         cfg,
		executor:    executor,
		logger:      logger.With("component", "scheduler"),
		metrics:     metrics,
		tracer:      otel.Tracer("github.com/phrazzld/taskrelay/internal/task"),
		sync:        semaphore.NewWeighted(cfg.SyncSlots),
		queues:      [2]*TaskQueue{NewTaskQueue(Interactive, cfg.InteractiveCapacity), NewTaskQueue(Background, cfg.BackgroundCapacity)},
		longRunning: longRunning,
		outstanding: make(map[string]int),
		userTasks:   make(map[string]map[string]*Task),
		limits:      limits,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start launches the worker pools.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrSchedulerStopped
	}
	if s.started {
		return ErrAlreadyStarted
	}
	s.started = true

	id := 0
	for range s.cfg.ShortWorkers {
		s.wg.Add(1)
		go s.worker(id, ShortLane)
		id++
	}
	for range s.cfg.LongWorkers {
		s.wg.Add(1)
		go s.worker(id, LongLane)
		id++
	}

	s.logger.Info("scheduler started",
		"short_workers", s.cfg.ShortWorkers,
		"long_workers", s.cfg.LongWorkers,
		"interactive_capacity", s.cfg.InteractiveCapacity,
		"background_capacity", s.cfg.BackgroundCapacity)
	return nil
}

// Submit admits t to the interactive queue.
func (s *Scheduler) Submit(ctx context.Context, t *Task) error {
	return s.submit(ctx, t, Interactive)
}

// SubmitBackground admits t to the background queue. Unless a priority was
// set explicitly it runs at BackgroundPriority.
func (s *Scheduler) SubmitBackground(ctx context.Context, t *Task) error {
	if !t.explicitPriority {
		t.Priority = BackgroundPriority
	}
	return s.submit(ctx, t, Background)
}

func (s *Scheduler) submit(ctx context.Context, t *Task, class Class) error {
	if t.Stream == nil {
		return ErrNoStream
	}
	if t.ID == "" {
		t.ID = ids.NewTaskID()
	}
	if t.UserID == "" {
		t.UserID = SystemUser
	}
	if t.SubmitTime.IsZero() {
		t.SubmitTime = time.Now()
	}
	t.class = class
	t.lane = s.laneFor(t.ServiceName)

	logger := s.logger.With("task_id", t.ID, "service", t.ServiceName, "user_id", t.UserID)

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		s.metrics.recordRejected("stopped")
		return ErrSchedulerStopped
	}

	q := s.queues[class]
	if q.Full() {
		s.mu.Unlock()
		s.metrics.recordRejected("queue_full")
		logger.Warn("task rejected, queue full", "class", class)
		return fmt.Errorf("%w: %s capacity %d reached", ErrQueueFull, class, q.capacity)
	}

	if t.UserID != SystemUser {
		limit := s.limitLocked(t.UserID)
		if count := s.outstanding[t.UserID]; count >= limit {
			victims := s.markCancelledLocked(t.UserID)
			s.mu.Unlock()

			s.metrics.recordRejected("quota_exceeded")
			logger.Warn("user exceeded task quota, cancelling outstanding tasks",
				"limit", limit,
				"cancelled_count", len(victims))
			s.cancelTasks(ctx, victims)
			return fmt.Errorf("%w: user %s has %d outstanding tasks (limit %d)",
				ErrQuotaExceeded, t.UserID, count, limit)
		}
	}

	s.seq++
	t.seq = s.seq
	if err := q.Enqueue(t); err != nil {
		s.mu.Unlock()
		return err
	}
	t.state = stateQueued
	s.outstanding[t.UserID]++
	if s.userTasks[t.UserID] == nil {
		s.userTasks[t.UserID] = make(map[string]*Task)
	}
	s.userTasks[t.UserID][t.ID] = t
	s.mu.Unlock()

	s.metrics.recordSubmitted(t)
	s.metrics.setQueueDepth(q)
	logger.Debug("task admitted", "class", class, "lane", t.lane, "priority", t.Priority)
	return nil
}

func (s *Scheduler) laneFor(service string) Lane {
	if s.longRunning[strings.ToUpper(service)] {
		return LongLane
	}
	return ShortLane
}

// SetUserLimit overrides the quota for one user. Negative limits clamp to 0.
func (s *Scheduler) SetUserLimit(userID string, limit int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.limits[userID] = max(limit, 0)
}

func (s *Scheduler) limitLocked(userID string) int {
	if n, ok := s.limits[userID]; ok {
		return n
	}
	return s.cfg.DefaultUserQuota
}

// markCancelledLocked flags the user's tasks, pulls queued ones out of their
// queue and interrupts running ones. Caller holds s.mu.
func (s *Scheduler) markCancelledLocked(userID string) []*Task {
	tasks := s.userTasks[userID]
	victims := make([]*Task, 0, len(tasks))
	for _, t := range tasks {
		if t.cancelled || t.state == stateDone {
			continue
		}
		t.cancelled = true
		if t.state == stateRunning && t.cancel != nil {
			t.cancel(ErrTaskCancelled)
		}
		victims = append(victims, t)
	}
	return victims
}

// cancelTasks notifies the streams of cancelled tasks. Tasks that were still
// queued are released here; running ones are released by their worker.
func (s *Scheduler) cancelTasks(ctx context.Context, victims []*Task) {
	for _, t := range victims {
		if s.queues[t.class].Remove(t) {
			s.release(t)
		}
		if err := t.Stream.SendCancelled(ctx); err != nil {
			s.logger.Debug("failed to notify cancelled task", "task_id", t.ID, "error", err)
		}
		s.metrics.recordCancelled()
	}
	for _, q := range s.queues {
		s.metrics.setQueueDepth(q)
	}
}

// release returns the task's slot in its user's quota. It is effective once
// per task.
func (s *Scheduler) release(t *Task) {
	if !t.released.CompareAndSwap(false, true) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t.state = stateDone
	s.outstanding[t.UserID]--
	delete(s.userTasks[t.UserID], t.ID)
	if s.outstanding[t.UserID] <= 0 {
		delete(s.outstanding, t.UserID)
		delete(s.userTasks, t.UserID)
	}
}

// worker processes tasks from its lane, preferring the interactive queue.
func (s *Scheduler) worker(id int, lane Lane) {
	defer s.wg.Done()

	logger := s.logger.With("worker_id", id, "lane", lane)
	logger.Debug("starting worker")

	for {
		t, err := s.next(lane)
		if err != nil {
			logger.Debug("stopping worker", "reason", err)
			return
		}
		if t == nil {
			continue
		}
		s.run(t, id)
	}
}

// next returns the next task for lane. The interactive queue goes first,
// except when a background task of the lane has already waited a full poll
// interval: then one background task is taken without waiting, so
// continuous interactive load delays background work by at most one task
// per worker.
func (s *Scheduler) next(lane Lane) (*Task, error) {
	bg := s.queues[Background]
	if bg.OldestWait(lane, time.Now()) >= s.cfg.PollInterval {
		if t, err := s.pop(bg, lane, 0); err != nil || t != nil {
			return t, err
		}
	}
	for _, q := range s.queues {
		if t, err := s.pop(q, lane, s.cfg.PollInterval); err != nil || t != nil {
			return t, err
		}
	}
	return nil, nil
}

func (s *Scheduler) pop(q *TaskQueue, lane Lane, wait time.Duration) (*Task, error) {
	t, err := q.Dequeue(s.ctx, lane, wait)
	if err != nil {
		return nil, err
	}
	if t != nil {
		s.metrics.setQueueDepth(q)
	}
	return t, nil
}

// run executes one dequeued task and settles its accounting.
func (s *Scheduler) run(t *Task, workerID int) {
	logger := s.logger.With(
		"task_id", t.ID,
		"service", t.ServiceName,
		"task", t.TaskName,
		"user_id", t.UserID,
		"worker_id", workerID,
	)

	s.mu.Lock()
	if t.cancelled {
		s.mu.Unlock()
		_ = t.Stream.SendCancelled(context.WithoutCancel(s.ctx))
		s.release(t)
		return
	}
	base, cancel := context.WithCancelCause(s.ctx)
	t.cancel = cancel
	t.state = stateRunning
	s.running++
	s.metrics.setRunning(s.running)
	s.mu.Unlock()

	ctx, span := s.tracer.Start(base, "task.execute", trace.WithAttributes(
		attribute.String("task.id", t.ID),
		attribute.String("task.service", t.ServiceName),
		attribute.String("task.name", t.TaskName),
		attribute.String("task.user_id", t.UserID),
		attribute.String("task.class", t.class.String()),
		attribute.Bool("task.sync", t.IsSync),
	))

	logger.Info("processing task")
	started := time.Now()
	err := s.execute(ctx, t)
	elapsed := time.Since(started)
	cancel(nil)

	outcome := s.settle(ctx, t, err, logger)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
	span.End()

	if t.Callback != nil {
		s.callback(t, err, logger)
	}

	s.mu.Lock()
	s.running--
	s.metrics.setRunning(s.running)
	t.cancel = nil
	s.mu.Unlock()

	s.metrics.recordCompleted(t, outcome, elapsed)
	s.release(t)
}

// execute runs the task in its own goroutine under the task timeout. Sync
// tasks also need an executor slot and are bounded by the sync timeout.
func (s *Scheduler) execute(parent context.Context, t *Task) error {
	ctx, cancel := context.WithTimeoutCause(parent, s.cfg.TaskTimeout, ErrTaskTimeout)
	defer cancel()

	if t.IsSync {
		var syncCancel context.CancelFunc
		ctx, syncCancel = context.WithTimeoutCause(ctx, s.cfg.SyncTimeout, ErrSyncTimeout)
		defer syncCancel()

		if err := s.sync.Acquire(ctx, 1); err != nil {
			return context.Cause(ctx)
		}
	}

	done := make(chan error, 1)
	go func() {
		if t.IsSync {
			defer s.sync.Release(1)
		}
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("%w: %v", ErrTaskPanic, r)
			}
		}()
		done <- s.executor.Execute(ctx, t)
	}()

	select {
	case err := <-done:
		if err == nil && ctx.Err() != nil {
			return context.Cause(ctx)
		}
		return err
	case <-ctx.Done():
		return context.Cause(ctx)
	}
}

// settle reports the outcome on the task's stream and guarantees it ends.
func (s *Scheduler) settle(ctx context.Context, t *Task, err error, logger *slog.Logger) string {
	// the task context may be cancelled already; stream writes use the
	// scheduler's context instead
	out := context.WithoutCancel(ctx)

	var outcome string
	switch {
	case err == nil:
		outcome = "success"
		logger.Info("task completed successfully")
	case errors.Is(err, ErrTaskCancelled):
		outcome = "cancelled"
		logger.Info("task cancelled")
		_ = t.Stream.SendCancelled(out)
	case errors.Is(err, ErrTaskTimeout), errors.Is(err, ErrSyncTimeout):
		outcome = "timeout"
		logger.Error("task timed out", "error", err)
		limit := s.cfg.TaskTimeout
		if errors.Is(err, ErrSyncTimeout) {
			limit = s.cfg.SyncTimeout
		}
		_ = t.Stream.FatalError(out, stream.ErrorObject{
			Type:               "task_timeout",
			Message:            fmt.Sprintf("Task %s.%s exceeded its time limit of %s", t.ServiceName, t.TaskName, limit),
			UserVisibleMessage: "Your request took too long to complete. Please try again.",
		})
	case errors.Is(err, context.Canceled):
		outcome = "cancelled"
		logger.Warn("task interrupted by shutdown")
		_ = t.Stream.SendCancelled(out)
	default:
		outcome = "error"
		logger.Error("task execution failed", "error", err)
		_ = t.Stream.FatalError(out, stream.ErrorObject{
			Type:    "execution_error",
			Message: err.Error(),
		})
	}

	_ = t.Stream.SendEnd(out)
	return outcome
}

func (s *Scheduler) callback(t *Task, err error, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("task callback panicked", "panic", r)
		}
	}()
	t.Callback(s.ctx, t, err)
}

// Stats returns a snapshot of queue depths, running tasks and per-user
// outstanding counts.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Stats{
		Running: s.running,
		Interactive: LaneDepth{
			Short: s.queues[Interactive].LaneLen(ShortLane),
			Long:  s.queues[Interactive].LaneLen(LongLane),
		},
		Background: LaneDepth{
			Short: s.queues[Background].LaneLen(ShortLane),
			Long:  s.queues[Background].LaneLen(LongLane),
		},
		Outstanding: maps.Clone(s.outstanding),
		Workers:     LaneDepth{Short: s.cfg.ShortWorkers, Long: s.cfg.LongWorkers},
		Started:     s.started,
		Stopped:     s.stopped,
	}
}

// Shutdown stops admission, stops the workers and drains both queues
// without running them. Drained tasks are reported as cancelled. It waits
// for workers to exit until ctx is done.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.mu.Unlock()

	s.logger.Info("shutting down scheduler")
	s.cancel()

	var drained []*Task
	for _, q := range s.queues {
		drained = append(drained, q.Close()...)
		s.metrics.setQueueDepth(q)
	}
	for _, t := range drained {
		_ = t.Stream.SendCancelled(context.WithoutCancel(ctx))
		s.release(t)
	}
	if len(drained) > 0 {
		s.logger.Info("drained queued tasks", "count", len(drained))
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler shutdown incomplete: %w", ctx.Err())
	}
}
