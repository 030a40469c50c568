// Package worker runs extraction units in supervised goroutines. A unit that
// fails, panics or outlives its context never takes the caller down with it:
// the caller always receives exactly one result on a one-shot channel, an
// empty slice standing in for anything that went wrong.
package worker

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rsamf/mink/internal/errors"
	"github.com/rsamf/mink/internal/logger"
)

// Outcome classifies how a unit finished.
type Outcome string

const (
	OutcomeOK        Outcome = "ok"
	OutcomeFailed    Outcome = "failed"
	OutcomePanicked  Outcome = "panicked"
	OutcomeCancelled Outcome = "cancelled"
)

// Report describes one finished unit. It is handed to the supervisor's
// report hook, typically a metrics recorder.
type Report struct {
	Name    string
	JobID   string
	Outcome Outcome
	Items   int
	Elapsed time.Duration
	Err     error
}

// Result is what a unit delivered and how it ended. Items is never nil.
type Result[T any] struct {
	Items   []T
	Outcome Outcome
	Err     error
}

// CutShort reports whether the unit was stopped by its context rather than
// finishing on its own.
func (r Result[T]) CutShort() bool {
	return r.Outcome == OutcomeCancelled
}

// Func is the body of a unit.
type Func[T any] func(ctx context.Context) ([]T, error)

// Supervisor owns the logger and report hook shared by the units it starts.
type Supervisor struct {
	log      logger.Logger
	onReport func(Report)
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithReportHook registers fn to be called once per finished unit.
func WithReportHook(fn func(Report)) Option {
	return func(s *Supervisor) { s.onReport = fn }
}

// NewSupervisor creates a supervisor logging through log.
func NewSupervisor(log logger.Logger, opts ...Option) *Supervisor {
	if log == nil {
		log = logger.Global().Module("worker")
	}
	s := &Supervisor{log: log}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var (
	defaultOnce       sync.Once
	defaultSupervisor *Supervisor
)

func getDefault() *Supervisor {
	defaultOnce.Do(func() {
		defaultSupervisor = NewSupervisor(nil)
	})
	return defaultSupervisor
}

// RunIsolated starts fn under the package supervisor. See Run.
func RunIsolated[T any](ctx context.Context, name string, fn Func[T]) <-chan []T {
	return Run(getDefault(), ctx, name, fn)
}

// Run starts fn in its own goroutine and returns a channel that receives
// fn's result exactly once and is then closed. An error, a panic or the
// cancellation of ctx is logged and delivered as an empty, non-nil slice.
// When ctx ends first the channel is served immediately; fn keeps running
// until it observes the cancellation itself.
func Run[T any](s *Supervisor, ctx context.Context, name string, fn Func[T]) <-chan []T {
	out := make(chan []T, 1)
	results := Start(s, ctx, name, fn)
	go func() {
		defer close(out)
		out <- (<-results).Items
	}()
	return out
}

// Start is Run for callers that need the outcome as well as the items.
func Start[T any](s *Supervisor, ctx context.Context, name string, fn Func[T]) <-chan Result[T] {
	out := make(chan Result[T], 1)
	jobID := jobIDFrom(ctx)
	log := s.log.With(logger.String("unit", name))
	if jobID != "" {
		log = log.With(logger.String("job_id", jobID))
	}

	go func() {
		defer close(out)
		start := time.Now()

		done := make(chan unitResult[T], 1)
		go func() {
			done <- invoke(ctx, fn)
		}()

		var res unitResult[T]
		select {
		case res = <-done:
		case <-ctx.Done():
			// a unit that finished as the deadline hit still counts
			select {
			case res = <-done:
			default:
				res = unitResult[T]{outcome: OutcomeCancelled, err: ctx.Err()}
			}
		}

		rep := Report{
			Name:    name,
			JobID:   jobID,
			Outcome: res.outcome,
			Elapsed: time.Since(start),
			Err:     res.err,
		}

		switch res.outcome {
		case OutcomeOK:
			if res.items == nil {
				res.items = []T{}
			}
			rep.Items = len(res.items)
			log.Info("unit finished",
				logger.Int("items", rep.Items),
				logger.Duration("elapsed", rep.Elapsed))
		case OutcomePanicked:
			log.Error("unit panicked, delivering empty result",
				logger.Error(res.err),
				logger.String("stack", res.stack))
			res.items = []T{}
		default:
			log.Warn("unit did not produce a result, delivering empty result",
				logger.String("outcome", string(res.outcome)),
				logger.Error(res.err),
				logger.Duration("elapsed", rep.Elapsed))
			res.items = []T{}
		}
		// reported before delivery so metrics never lag behind the caller
		if s.onReport != nil {
			s.onReport(rep)
		}
		out <- Result[T]{Items: res.items, Outcome: res.outcome, Err: res.err}
	}()

	return out
}

type unitResult[T any] struct {
	items   []T
	outcome Outcome
	err     error
	stack   string
}

func invoke[T any](ctx context.Context, fn Func[T]) (res unitResult[T]) {
	defer func() {
		if r := recover(); r != nil {
			err := errors.Newf("worker unit panicked: %v", r).
				Category(errors.CategoryWorker).
				Build()
			res = unitResult[T]{outcome: OutcomePanicked, err: err, stack: string(debug.Stack())}
		}
	}()

	items, err := fn(ctx)
	switch {
	case err == nil:
		return unitResult[T]{items: items, outcome: OutcomeOK}
	case ctx.Err() != nil:
		return unitResult[T]{outcome: OutcomeCancelled, err: err}
	default:
		return unitResult[T]{outcome: OutcomeFailed, err: err}
	}
}

type jobIDKey struct{}

// WithJobID tags ctx so units started with it log and report the job id.
func WithJobID(ctx context.Context, jobID string) context.Context {
	return context.WithValue(ctx, jobIDKey{}, jobID)
}

func jobIDFrom(ctx context.Context) string {
	if v, ok := ctx.Value(jobIDKey{}).(string); ok {
		return v
	}
	return ""
}
