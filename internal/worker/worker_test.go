package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/rsamf/mink/internal/errors"
	"github.com/rsamf/mink/internal/logger"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type reports struct {
	mu   sync.Mutex
	list []Report
}

func (r *reports) add(rep Report) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.list = append(r.list, rep)
}

func (r *reports) all() []Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Report(nil), r.list...)
}

func newTestSupervisor() (*Supervisor, *reports) {
	r := &reports{}
	return NewSupervisor(logger.NewDiscardLogger(), WithReportHook(r.add)), r
}

// drain reads the single value and asserts the channel is closed afterwards.
func drain[T any](t *testing.T, ch <-chan []T) []T {
	t.Helper()
	var got []T
	select {
	case v, ok := <-ch:
		require.True(t, ok, "unit must deliver a value before closing")
		got = v
	case <-time.After(5 * time.Second):
		require.FailNow(t, "unit never delivered")
	}
	select {
	case _, ok := <-ch:
		assert.False(t, ok, "channel must be closed after one value")
	case <-time.After(5 * time.Second):
		require.FailNow(t, "channel never closed")
	}
	return got
}

func TestRun_DeliversResult(t *testing.T) {
	s, reps := newTestSupervisor()

	ch := Run(s, WithJobID(context.Background(), "job-1"), "transcription", func(context.Context) ([]string, error) {
		return []string{"a", "b"}, nil
	})

	assert.Equal(t, []string{"a", "b"}, drain(t, ch))

	require.Eventually(t, func() bool { return len(reps.all()) == 1 }, time.Second, 5*time.Millisecond)
	rep := reps.all()[0]
	assert.Equal(t, OutcomeOK, rep.Outcome)
	assert.Equal(t, "transcription", rep.Name)
	assert.Equal(t, "job-1", rep.JobID)
	assert.Equal(t, 2, rep.Items)
}

func TestRun_NilResultBecomesEmpty(t *testing.T) {
	s, _ := newTestSupervisor()

	got := drain(t, Run(s, context.Background(), "ocr", func(context.Context) ([]int, error) {
		return nil, nil
	}))
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestRun_ErrorBecomesEmpty(t *testing.T) {
	s, reps := newTestSupervisor()

	got := drain(t, Run(s, context.Background(), "ocr", func(context.Context) ([]int, error) {
		return []int{1}, errors.NewStd("tesseract exited 1")
	}))
	assert.NotNil(t, got)
	assert.Empty(t, got, "partial results are discarded on error")

	require.Eventually(t, func() bool { return len(reps.all()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, OutcomeFailed, reps.all()[0].Outcome)
	assert.EqualError(t, reps.all()[0].Err, "tesseract exited 1")
}

func TestRun_PanicIsContained(t *testing.T) {
	s, reps := newTestSupervisor()

	got := drain(t, Run(s, context.Background(), "ocr", func(context.Context) ([]int, error) {
		var m map[string]int
		m["boom"] = 1
		return nil, nil
	}))
	assert.NotNil(t, got)
	assert.Empty(t, got)

	require.Eventually(t, func() bool { return len(reps.all()) == 1 }, time.Second, 5*time.Millisecond)
	rep := reps.all()[0]
	assert.Equal(t, OutcomePanicked, rep.Outcome)
	assert.True(t, errors.IsCategory(rep.Err, errors.CategoryWorker))
}

func TestRun_SiblingSurvivesPanic(t *testing.T) {
	s, _ := newTestSupervisor()

	crashing := Run(s, context.Background(), "ocr", func(context.Context) ([]string, error) {
		panic("model weights missing")
	})
	healthy := Run(s, context.Background(), "transcription", func(context.Context) ([]string, error) {
		return []string{"hello"}, nil
	})

	assert.Empty(t, drain(t, crashing))
	assert.Equal(t, []string{"hello"}, drain(t, healthy))
}

func TestRun_CancelDeliversPromptly(t *testing.T) {
	s, reps := newTestSupervisor()

	ctx, cancel := context.WithCancel(context.Background())
	release := make(chan struct{})
	returned := make(chan struct{})

	ch := Run(s, ctx, "transcription", func(context.Context) ([]string, error) {
		// Ignores ctx on purpose; the supervisor must not wait for it.
		defer close(returned)
		<-release
		return []string{"late"}, nil
	})

	cancel()
	got := drain(t, ch)
	assert.Empty(t, got)

	require.Eventually(t, func() bool { return len(reps.all()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, OutcomeCancelled, reps.all()[0].Outcome)
	require.ErrorIs(t, reps.all()[0].Err, context.Canceled)

	close(release)
	<-returned
}

func TestRun_CancelObservedByUnit(t *testing.T) {
	s, reps := newTestSupervisor()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	got := drain(t, Run(s, ctx, "ocr", func(ctx context.Context) ([]int, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}))
	assert.Empty(t, got)

	require.Eventually(t, func() bool { return len(reps.all()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, OutcomeCancelled, reps.all()[0].Outcome)
}

func TestRunIsolated_DefaultSupervisor(t *testing.T) {
	got := drain(t, RunIsolated(context.Background(), "echo", func(context.Context) ([]int, error) {
		return []int{42}, nil
	}))
	assert.Equal(t, []int{42}, got)
}

func receive[T any](t *testing.T, ch <-chan Result[T]) Result[T] {
	t.Helper()
	select {
	case res := <-ch:
		return res
	case <-time.After(5 * time.Second):
		require.FailNow(t, "unit never delivered")
	}
	return Result[T]{}
}

func TestStart_ReportsOutcome(t *testing.T) {
	s, _ := newTestSupervisor()

	ok := receive(t, Start(s, t.Context(), "transcription", func(context.Context) ([]string, error) {
		return []string{"a"}, nil
	}))
	assert.Equal(t, OutcomeOK, ok.Outcome)
	assert.False(t, ok.CutShort())
	assert.Equal(t, []string{"a"}, ok.Items)

	failed := receive(t, Start(s, t.Context(), "ocr", func(context.Context) ([]string, error) {
		return nil, errors.NewStd("tesseract exited 1")
	}))
	assert.Equal(t, OutcomeFailed, failed.Outcome)
	assert.False(t, failed.CutShort(), "a failing unit finished on its own")
	assert.NotNil(t, failed.Items)
	require.Error(t, failed.Err)
}

func TestStart_CancelledIsCutShort(t *testing.T) {
	s, _ := newTestSupervisor()

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()

	res := receive(t, Start(s, ctx, "ocr", func(ctx context.Context) ([]int, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}))
	assert.True(t, res.CutShort())
	require.ErrorIs(t, res.Err, context.DeadlineExceeded)
	assert.Empty(t, res.Items)
}

func TestStart_ResultSurvivesLaterDeadline(t *testing.T) {
	s, reps := newTestSupervisor()

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()

	ch := Start(s, ctx, "transcription", func(context.Context) ([]string, error) {
		return []string{"done in time"}, nil
	})
	require.Eventually(t, func() bool { return len(reps.all()) == 1 }, time.Second, 2*time.Millisecond)
	<-ctx.Done()

	res := receive(t, ch)
	assert.Equal(t, OutcomeOK, res.Outcome)
	assert.False(t, res.CutShort())
	assert.Equal(t, []string{"done in time"}, res.Items)
}

func TestStart_ReportsBeforeDelivery(t *testing.T) {
	var reported atomic.Bool
	s := NewSupervisor(logger.NewDiscardLogger(), WithReportHook(func(Report) { reported.Store(true) }))

	res := receive(t, Start(s, t.Context(), "ocr", func(context.Context) ([]int, error) {
		return []int{1}, nil
	}))
	assert.Equal(t, []int{1}, res.Items)
	assert.True(t, reported.Load(), "the report hook runs before the result is delivered")
}
