// Package mock provides a scriptable recognizer for tests.
package mock

import (
	"context"
	"sync"

	"github.com/earworm-audio/earworm/pkg/audio"
	"github.com/earworm-audio/earworm/pkg/provider/recognizer"
)

// Result scripts the outcome of a single Recognize call.
type Result struct {
	Text string
	Err  error
}

// Recognizer is a scripted implementation of [recognizer.Provider]. Each
// Recognize call consumes the next queued Result; once the script is
// exhausted, calls return ErrUnknownValue.
type Recognizer struct {
	mu      sync.Mutex
	script  []Result
	Calls   int
	LastPCM []int16
}

var _ recognizer.Provider = (*Recognizer)(nil)

// New creates a Recognizer with the given script.
func New(script ...Result) *Recognizer {
	return &Recognizer{script: script}
}

// Queue appends results to the script.
func (r *Recognizer) Queue(results ...Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.script = append(r.script, results...)
}

// Recognize consumes the next scripted result.
func (r *Recognizer) Recognize(_ context.Context, clip audio.Clip) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Calls++
	r.LastPCM = clip.PCM
	if len(r.script) == 0 {
		return "", recognizer.ErrUnknownValue
	}
	next := r.script[0]
	r.script = r.script[1:]
	return next.Text, next.Err
}
