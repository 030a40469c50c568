// Package spinner draws a one-line progress indicator on a terminal.
package spinner

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// frames is a braille arrow sweeping left to right and back.
var frames = []string{
	"⣀⣀", "⣄⣀", "⣤⣀", "⣦⣄", "⣶⣤", "⣿⣦", "⣿⣷", "⣿⣿",
	"⣷⣿", "⣦⣿", "⣤⣷", "⣄⣦", "⣀⣤", "⣀⣄",
}

// Spinner redraws a frame and label on w until stopped. Safe for use from
// multiple goroutines.
type Spinner struct {
	w     io.Writer
	mu    sync.Mutex
	index int
	label string
	stop  chan struct{}
	done  chan struct{}
}

// New creates a spinner writing to w.
func New(w io.Writer) *Spinner {
	return &Spinner{w: w}
}

// SetLabel changes the text shown after the frame.
func (s *Spinner) SetLabel(label string) {
	s.mu.Lock()
	s.label = label
	s.mu.Unlock()
}

// Tick draws the next frame.
func (s *Spinner) Tick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	// hide cursor, return to column 0, clear line
	_, _ = fmt.Fprintf(s.w, "\033[?25l\r\033[K%s %s", frames[s.index], s.label)
	s.index = (s.index + 1) % len(frames)
}

// Start ticks every interval in the background until Stop.
func (s *Spinner) Start(interval time.Duration) {
	s.mu.Lock()
	if s.stop != nil {
		s.mu.Unlock()
		return
	}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stop, s.done
	s.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			s.Tick()
			select {
			case <-stop:
				return
			case <-ticker.C:
			}
		}
	}()
}

// Stop halts the background ticker, clears the line and restores the cursor.
func (s *Spinner) Stop() {
	s.mu.Lock()
	stop, done := s.stop, s.done
	s.stop, s.done = nil, nil
	s.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
	_, _ = fmt.Fprint(s.w, "\r\033[K\033[?25h")
}
