package pipeline

import "sync"

// WordBuffer is the ordered token hand-off between the recognition stage
// (single producer) and the search stage (single consumer). Appends go at the
// tail, takes come off the head, and a condition variable carries the
// "tokens available or terminated" predicate.
//
// Termination is a distinguished marker, not a token: once Terminate is
// called the marker conceptually sits at the head of the buffer, so the
// consumer observes it before any tokens appended later and never blocks
// again. All methods are safe for concurrent use.
type WordBuffer struct {
	mu   sync.Mutex
	cond *sync.Cond

	words      []string
	terminated bool
}

// NewWordBuffer creates an empty WordBuffer.
func NewWordBuffer() *WordBuffer {
	b := &WordBuffer{}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Append adds tokens at the tail in order and wakes any waiting consumer.
// Appending after Terminate is allowed but the tokens will never be
// consumed.
func (b *WordBuffer) Append(tokens ...string) {
	if len(tokens) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.words = append(b.words, tokens...)
	b.cond.Broadcast()
}

// Terminate places the termination marker at the head of the buffer and
// wakes all waiters. Idempotent.
func (b *WordBuffer) Terminate() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.terminated = true
	b.cond.Broadcast()
}

// Terminated reports whether the termination marker has been placed.
func (b *WordBuffer) Terminated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.terminated
}

// Len returns the number of buffered tokens.
func (b *WordBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.words)
}

// AwaitWords blocks until at least need tokens are buffered or the
// termination marker has been placed, whichever comes first. It returns true
// when the buffer is terminated; tokens behind the marker are never
// reported. The wait loop re-evaluates its predicate on every wakeup, so
// partial appends and spurious wakeups are handled.
func (b *WordBuffer) AwaitWords(need int) (terminated bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for !b.terminated && len(b.words) < need {
		b.cond.Wait()
	}
	return b.terminated
}

// TakeUpTo removes and returns up to max tokens from the head, preserving
// order. Returns nil once the buffer is terminated: the marker sits ahead of
// any remaining tokens.
func (b *WordBuffer) TakeUpTo(max int) []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.terminated || max <= 0 || len(b.words) == 0 {
		return nil
	}
	n := max
	if n > len(b.words) {
		n = len(b.words)
	}
	taken := make([]string, n)
	copy(taken, b.words[:n])
	b.words = b.words[n:]
	return taken
}
