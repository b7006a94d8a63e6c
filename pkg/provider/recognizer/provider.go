// Package recognizer defines the Provider interface for speech recognition
// backends.
//
// Unlike a streaming STT session, an Earworm recognizer is a batch capability:
// it receives one captured phrase clip at a time and returns the recognized
// text. The fault taxonomy is part of the contract — the pipeline treats
// [ErrUnknownValue] and [ErrMalformedResult] as recoverable per-clip faults
// and every other error as fatal to the run.
package recognizer

import (
	"context"
	"errors"

	"github.com/earworm-audio/earworm/pkg/audio"
)

// ErrUnknownValue is returned when the backend could not interpret the audio
// at all (silence, noise, unintelligible speech). Recoverable: the pipeline
// logs it and moves on to the next clip.
var ErrUnknownValue = errors.New("recognizer: could not interpret audio")

// ErrMalformedResult is returned when the backend produced a result payload
// the provider could not decode. Recoverable, same as [ErrUnknownValue].
var ErrMalformedResult = errors.New("recognizer: malformed result payload")

// Provider is the abstraction over any batch speech recognition backend.
//
// Implementations must be safe for concurrent use, although the pipeline
// issues calls strictly sequentially from a single goroutine.
type Provider interface {
	// Recognize transcribes one phrase clip and returns the recognized text.
	// An empty string with a nil error means the clip contained no speech.
	//
	// Errors matching ErrUnknownValue or ErrMalformedResult are recoverable;
	// any other error is treated as an unrecoverable capability fault and
	// stops the pipeline.
	Recognize(ctx context.Context, clip audio.Clip) (string, error)
}
