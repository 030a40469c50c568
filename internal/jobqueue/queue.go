package jobqueue

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rsamf/mink/internal/errors"
	"github.com/rsamf/mink/internal/logger"
)

// Config sizes the queue.
type Config struct {
	Workers int // concurrent handlers, default 2
	Size    int // pending capacity, default 64
}

// Queue manages pending pipeline runs and the workers executing them
type Queue struct {
	handler Handler
	log     logger.Logger

	tasks    chan *Task
	workers  int
	capacity int

	mu        sync.Mutex
	active    map[string]*Task // pending or running, keyed by job id
	stats     StatsSnapshot
	isRunning bool
	stopped   bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	observer  func(Event)
	now       func() time.Time
}

// Option configures a Queue.
type Option func(*Queue)

// WithObserver registers fn to be called on every task status change. fn runs
// on the worker goroutine and must not block.
func WithObserver(fn func(Event)) Option {
	return func(q *Queue) { q.observer = fn }
}

// New creates a stopped queue feeding handler.
func New(cfg Config, handler Handler, log logger.Logger, opts ...Option) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.Size <= 0 {
		cfg.Size = 64
	}
	if log == nil {
		log = logger.Global().Module("jobqueue")
	}

	q := &Queue{
		handler:  handler,
		log:      log,
		tasks:    make(chan *Task, cfg.Size),
		workers:  cfg.Workers,
		capacity: cfg.Size,
		active:   make(map[string]*Task, cfg.Size),
		now:      time.Now,
	}
	q.stats.Capacity = cfg.Size
	q.stats.Workers = cfg.Workers
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Start launches the workers. Their context derives from ctx; cancelling it
// or calling Stop ends them. A stopped queue cannot be restarted.
func (q *Queue) Start(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped {
		return ErrQueueStopped
	}
	if q.isRunning {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	q.cancel = cancel
	q.isRunning = true

	for i := range q.workers {
		q.wg.Add(1)
		go q.worker(runCtx, i)
	}

	q.log.Info("job queue started",
		logger.Int("workers", q.workers),
		logger.Int("capacity", q.capacity))
	return nil
}

// Enqueue schedules a run for jobID. It never blocks: a full queue rejects
// the task with ErrQueueFull.
func (q *Queue) Enqueue(jobID string) (*Task, error) {
	if jobID == "" {
		return nil, ErrEmptyJobID
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.isRunning {
		return nil, ErrQueueStopped
	}
	if _, dup := q.active[jobID]; dup {
		return nil, ErrDuplicateTask
	}

	task := &Task{JobID: jobID, EnqueuedAt: q.now(), Status: TaskPending}
	select {
	case q.tasks <- task:
	default:
		q.stats.Rejected++
		q.log.Warn("job queue full, rejecting task",
			logger.String("job_id", jobID),
			logger.Int("capacity", q.capacity))
		return nil, errors.New(ErrQueueFull).
			Category(errors.CategoryJobQueue).
			JobContext(jobID).
			Context("capacity", q.capacity).
			Build()
	}

	q.active[jobID] = task
	q.stats.Enqueued++
	q.stats.Pending++
	q.log.Debug("task enqueued", logger.String("job_id", jobID), logger.Int("pending", q.stats.Pending))
	q.emitLocked(Event{JobID: jobID, Status: TaskPending, Depth: q.stats.Pending})
	return task, nil
}

func (q *Queue) worker(ctx context.Context, id int) {
	defer q.wg.Done()
	log := q.log.With(logger.Int("worker", id))

	for {
		select {
		case <-ctx.Done():
			return
		case task := <-q.tasks:
			q.execute(ctx, log, task)
		}
	}
}

func (q *Queue) execute(ctx context.Context, log logger.Logger, task *Task) {
	q.mu.Lock()
	if ctx.Err() != nil {
		q.finishLocked(task, TaskCancelled, ctx.Err())
		q.mu.Unlock()
		return
	}
	task.Status = TaskRunning
	task.StartedAt = q.now()
	q.stats.Pending--
	q.stats.Running++
	q.emitLocked(Event{
		JobID:  task.JobID,
		Status: TaskRunning,
		Waited: task.StartedAt.Sub(task.EnqueuedAt),
		Depth:  q.stats.Pending,
	})
	q.mu.Unlock()

	err := q.safeHandle(ctx, task.JobID)

	q.mu.Lock()
	defer q.mu.Unlock()
	q.stats.Running--
	if err != nil {
		log.Error("task failed", logger.String("job_id", task.JobID), logger.Error(err))
		q.finishLocked(task, TaskFailed, err)
		return
	}
	log.Debug("task completed", logger.String("job_id", task.JobID))
	q.finishLocked(task, TaskCompleted, nil)
}

// safeHandle converts a handler panic into an error so one bad run cannot
// take a worker down.
func (q *Queue) safeHandle(ctx context.Context, jobID string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("task handler panicked: %v", r).
				Category(errors.CategoryJobQueue).
				JobContext(jobID).
				Context("stack", string(debug.Stack())).
				Build()
		}
	}()
	return q.handler.Handle(ctx, jobID)
}

// finishLocked must be called with q.mu held.
func (q *Queue) finishLocked(task *Task, status TaskStatus, err error) {
	if task.Status == TaskPending {
		q.stats.Pending--
	}
	task.Status = status
	task.LastError = err
	task.FinishedAt = q.now()
	delete(q.active, task.JobID)

	var elapsed time.Duration
	if !task.StartedAt.IsZero() {
		elapsed = task.FinishedAt.Sub(task.StartedAt)
	}

	switch status {
	case TaskCompleted:
		q.stats.Completed++
	case TaskFailed:
		q.stats.Failed++
	case TaskCancelled:
		q.stats.Cancelled++
	}
	q.emitLocked(Event{JobID: task.JobID, Status: status, Duration: elapsed, Depth: q.stats.Pending, Err: err})
}

func (q *Queue) emitLocked(ev Event) {
	if q.observer != nil {
		q.observer(ev)
	}
}

// Stop refuses new tasks, cancels running handlers and waits up to timeout
// for the workers to return. Tasks still pending are dropped and returned so
// the caller can account for them.
func (q *Queue) Stop(timeout time.Duration) ([]string, error) {
	q.mu.Lock()
	if !q.isRunning {
		q.stopped = true
		q.mu.Unlock()
		return nil, nil
	}
	q.isRunning = false
	q.stopped = true
	q.cancel()
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-time.After(timeout):
		err = errors.New(ErrStopTimeout).
			Category(errors.CategoryJobQueue).
			Context("timeout", timeout.String()).
			Build()
	}

	var dropped []string
	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		select {
		case task := <-q.tasks:
			q.finishLocked(task, TaskCancelled, context.Canceled)
			dropped = append(dropped, task.JobID)
		default:
			q.log.Info("job queue stopped",
				logger.Int("dropped", len(dropped)),
				logger.Bool("timed_out", err != nil))
			return dropped, err
		}
	}
}

// Stats returns a snapshot of the queue statistics
func (q *Queue) Stats() StatsSnapshot {
	q.mu.Lock()
	defer q.mu.Unlock()

	s := q.stats
	if s.Capacity > 0 {
		s.Utilization = float64(s.Pending) / float64(s.Capacity) * 100
	}
	return s
}

// Active reports whether jobID is pending or running.
func (q *Queue) Active(jobID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.active[jobID]
	return ok
}
