// Package jobqueue provides a bounded in-process task queue that decouples
// pipeline runs from the request cycle. A fixed pool of workers pulls job ids
// and hands them to a Handler; tasks are never retried because every run
// drives its job to a terminal status by itself.
package jobqueue

import (
	"context"
	"time"

	"github.com/rsamf/mink/internal/errors"
)

// Common errors that can be returned by queue operations
var (
	ErrEmptyJobID    = errors.NewStd("cannot enqueue empty job id")
	ErrQueueStopped  = errors.NewStd("job queue has been stopped")
	ErrQueueFull     = errors.NewStd("job queue is full")
	ErrDuplicateTask = errors.NewStd("job already queued or running")
	ErrStopTimeout   = errors.NewStd("timed out waiting for running tasks")
)

// Handler processes one job. The context is cancelled when the queue stops.
type Handler interface {
	Handle(ctx context.Context, jobID string) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, jobID string) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, jobID string) error { return f(ctx, jobID) }

// TaskStatus represents the current status of a task in the queue
type TaskStatus int

const (
	// TaskPending indicates the task is waiting for a worker
	TaskPending TaskStatus = iota
	// TaskRunning indicates a worker is executing the task
	TaskRunning
	// TaskCompleted indicates the handler returned nil
	TaskCompleted
	// TaskFailed indicates the handler returned an error or panicked
	TaskFailed
	// TaskCancelled indicates the queue stopped before the task ran
	TaskCancelled
)

// String returns a string representation of the task status
func (s TaskStatus) String() string {
	switch s {
	case TaskPending:
		return "pending"
	case TaskRunning:
		return "running"
	case TaskCompleted:
		return "completed"
	case TaskFailed:
		return "failed"
	case TaskCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Task is a queued pipeline run.
type Task struct {
	JobID      string
	EnqueuedAt time.Time
	StartedAt  time.Time
	FinishedAt time.Time
	Status     TaskStatus
	LastError  error
}

// Event is emitted on every task status change.
type Event struct {
	JobID    string
	Status   TaskStatus
	Waited   time.Duration // time spent pending, set once running
	Duration time.Duration // run time, set once finished
	Depth    int           // pending tasks after the change
	Err      error
}

// StatsSnapshot provides a point-in-time snapshot of queue statistics
type StatsSnapshot struct {
	Enqueued    int     `json:"enqueued"`
	Completed   int     `json:"completed"`
	Failed      int     `json:"failed"`
	Rejected    int     `json:"rejected"`
	Cancelled   int     `json:"cancelled"`
	Pending     int     `json:"pending"`
	Running     int     `json:"running"`
	Capacity    int     `json:"capacity"`
	Workers     int     `json:"workers"`
	Utilization float64 `json:"utilization"` // pending / capacity, percent
}
