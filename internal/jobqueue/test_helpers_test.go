// test_helpers_test.go - Shared test helpers for jobqueue package
package jobqueue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rsamf/mink/internal/logger"
)

// --- Channel Wait Helpers ---

// waitForChannel waits for a signal on the channel or fails after timeout.
func waitForChannel(t *testing.T, ch <-chan struct{}, timeout time.Duration, msg string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(timeout):
		require.Fail(t, msg)
	}
}

// --- Recording handler ---

// recordingHandler records handled job ids and signals each one.
type recordingHandler struct {
	mu      sync.Mutex
	handled []string
	signal  chan struct{}
	block   chan struct{} // when set, Handle waits for it or for ctx
	fn      func(ctx context.Context, jobID string) error
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{signal: make(chan struct{}, 128)}
}

func (h *recordingHandler) Handle(ctx context.Context, jobID string) error {
	h.mu.Lock()
	h.handled = append(h.handled, jobID)
	h.mu.Unlock()
	defer func() { h.signal <- struct{}{} }()

	if h.block != nil {
		select {
		case <-h.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if h.fn != nil {
		return h.fn(ctx, jobID)
	}
	return nil
}

func (h *recordingHandler) jobs() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.handled...)
}

func newTestQueue(t *testing.T, cfg Config, h Handler, opts ...Option) *Queue {
	t.Helper()
	q := New(cfg, h, logger.NewDiscardLogger(), opts...)
	require.NoError(t, q.Start(context.Background()))
	t.Cleanup(func() { _, _ = q.Stop(DefaultTestTimeout) })
	return q
}

// --- Common Test Constants ---

const (
	// DefaultTestTimeout is the standard timeout for most async test operations.
	DefaultTestTimeout = 5 * time.Second

	// ShortTestTimeout is for operations expected to complete quickly.
	ShortTestTimeout = 1 * time.Second
)
