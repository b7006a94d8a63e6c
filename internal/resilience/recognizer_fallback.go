package resilience

import (
	"context"
	"errors"

	"github.com/earworm-audio/earworm/pkg/audio"
	"github.com/earworm-audio/earworm/pkg/provider/recognizer"
)

// RecognizerFallback implements [recognizer.Provider] with automatic failover
// across multiple speech backends. Each backend has its own circuit breaker.
//
// The recognizer error contract needs care here: [recognizer.ErrUnknownValue]
// and [recognizer.ErrMalformedResult] describe the clip, not the backend, so
// they neither count against a breaker nor trigger failover.
type RecognizerFallback struct {
	group *FallbackGroup[recognizer.Provider]
}

// Compile-time interface assertion.
var _ recognizer.Provider = (*RecognizerFallback)(nil)

// NewRecognizerFallback creates a [RecognizerFallback] with primary as the
// preferred backend.
func NewRecognizerFallback(primary recognizer.Provider, primaryName string, cfg FallbackConfig) *RecognizerFallback {
	return &RecognizerFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional recognizer as a fallback.
func (f *RecognizerFallback) AddFallback(name string, provider recognizer.Provider) {
	f.group.AddFallback(name, provider)
}

// recResult carries a recognition outcome through the fallback machinery.
// A recoverable per-clip sentinel rides in verdictErr so it reports as a
// success to the breaker instead of triggering failover.
type recResult struct {
	text       string
	verdictErr error
}

// Recognize transcribes the clip with the first healthy backend. Clip-level
// results (including the recoverable sentinel errors) are returned as-is;
// backend faults fail over.
func (f *RecognizerFallback) Recognize(ctx context.Context, clip audio.Clip) (string, error) {
	res, err := ExecuteWithResult(f.group, func(p recognizer.Provider) (recResult, error) {
		text, err := p.Recognize(ctx, clip)
		if errors.Is(err, recognizer.ErrUnknownValue) || errors.Is(err, recognizer.ErrMalformedResult) {
			return recResult{verdictErr: err}, nil
		}
		return recResult{text: text}, err
	})
	if err != nil {
		return "", err
	}
	return res.text, res.verdictErr
}
