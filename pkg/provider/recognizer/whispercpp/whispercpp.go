// Package whispercpp implements the recognizer provider on the whisper.cpp
// CGO bindings. The whisper.cpp static library (libwhisper.a) and headers
// (whisper.h) must be available at link time via LIBRARY_PATH and
// C_INCLUDE_PATH environment variables.
package whispercpp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/earworm-audio/earworm/pkg/audio"
	"github.com/earworm-audio/earworm/pkg/provider/recognizer"
)

const defaultLanguage = "en"

// Compile-time assertion that Recognizer satisfies recognizer.Provider.
var _ recognizer.Provider = (*Recognizer)(nil)

// Recognizer runs whisper.cpp inference in-process. The model is loaded once
// at startup; each Recognize call uses a fresh whisper context, which are not
// individually thread-safe but may be created concurrently from the shared
// model.
type Recognizer struct {
	model    whisperlib.Model
	language string

	// The pipeline calls Recognize sequentially, but nothing in the Provider
	// contract promises that, so serialize inference.
	mu sync.Mutex
}

// Option is a functional option for configuring a Recognizer.
type Option func(*Recognizer)

// WithLanguage sets the BCP-47 language code for transcription (e.g., "en",
// "de"). Defaults to "en".
func WithLanguage(lang string) Option {
	return func(r *Recognizer) { r.language = lang }
}

// New creates a Recognizer that loads the whisper.cpp model from the given
// file path. The caller must call Close when the recognizer is no longer
// needed.
func New(modelPath string, opts ...Option) (*Recognizer, error) {
	if modelPath == "" {
		return nil, errors.New("whispercpp: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whispercpp: load model %q: %w", modelPath, err)
	}

	r := &Recognizer{model: model, language: defaultLanguage}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// Close releases the whisper model.
func (r *Recognizer) Close() error {
	if r.model != nil {
		return r.model.Close()
	}
	return nil
}

// Recognize runs inference over one phrase clip and returns the recognized
// text. A clip the model hears nothing in yields [recognizer.ErrUnknownValue].
func (r *Recognizer) Recognize(ctx context.Context, clip audio.Clip) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("whispercpp: %w", err)
	}
	if clip.Empty() {
		return "", fmt.Errorf("whispercpp: empty clip: %w", recognizer.ErrUnknownValue)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	wctx, err := r.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whispercpp: create context: %w", err)
	}
	if err := wctx.SetLanguage(r.language); err != nil {
		slog.Warn("whispercpp: failed to set language, using default", "language", r.language, "err", err)
	}

	if err := wctx.Process(clip.Float32(), nil, nil, nil); err != nil {
		return "", fmt.Errorf("whispercpp: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whispercpp: read segment: %w", err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}

	text := strings.Join(parts, " ")
	if text == "" {
		return "", fmt.Errorf("whispercpp: no speech in clip: %w", recognizer.ErrUnknownValue)
	}
	return text, nil
}
