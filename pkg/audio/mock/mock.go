// Package mock provides a scripted audio source for tests.
package mock

import (
	"sync"

	"github.com/earworm-audio/earworm/pkg/audio"
)

// Source is a scripted implementation of [audio.Source]. Clips queued with
// Emit are delivered to the consumer in order; Close closes the stream.
type Source struct {
	ch   chan audio.Clip
	once sync.Once
}

var _ audio.Source = (*Source)(nil)

// NewSource creates a Source with room for buffered clips.
func NewSource() *Source {
	return &Source{ch: make(chan audio.Clip, 64)}
}

// Emit queues a clip for the consumer.
func (s *Source) Emit(clip audio.Clip) { s.ch <- clip }

// EmitPCM queues a clip built from raw samples at 16 kHz.
func (s *Source) EmitPCM(pcm []int16) {
	s.Emit(audio.Clip{PCM: pcm, SampleRate: 16000})
}

// Clips returns the scripted stream.
func (s *Source) Clips() <-chan audio.Clip { return s.ch }

// Close closes the stream. Safe to call multiple times.
func (s *Source) Close() error {
	s.once.Do(func() { close(s.ch) })
	return nil
}
