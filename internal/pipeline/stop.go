package pipeline

import (
	"sync"
	"sync/atomic"
)

// StopSignal is a process-wide set-once flag. Any stage may trip it; once
// tripped it never clears. Reads are lock-free; tripping twice is a no-op.
type StopSignal struct {
	tripped atomic.Bool
	once    sync.Once
	done    chan struct{}
}

// NewStopSignal creates an untripped StopSignal.
func NewStopSignal() *StopSignal {
	return &StopSignal{done: make(chan struct{})}
}

// Trip sets the signal. Idempotent: every call after the first has no
// observable effect.
func (s *StopSignal) Trip() {
	s.once.Do(func() {
		s.tripped.Store(true)
		close(s.done)
	})
}

// Stopped reports whether the signal has been tripped.
func (s *StopSignal) Stopped() bool { return s.tripped.Load() }

// Done returns a channel that is closed when the signal trips. Use it in
// select statements alongside other wait sources.
func (s *StopSignal) Done() <-chan struct{} { return s.done }
