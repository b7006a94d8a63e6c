package audio

import "time"

const (
	// defaultNoiseFloor is the RMS energy level (in 16-bit PCM units) below
	// which a frame is considered silent when no calibration has been run.
	defaultNoiseFloor = 300.0

	// defaultSilenceThreshold is the consecutive-silence duration that ends a
	// phrase once speech has been heard.
	defaultSilenceThreshold = 500 * time.Millisecond

	// defaultMaxPhrase caps the length of a single phrase. Continuous speech
	// is cut into clips of at most this duration so the recognizer is never
	// handed an unbounded buffer.
	defaultMaxPhrase = 5 * time.Second
)

// SegmenterOption is a functional option for configuring a [Segmenter].
type SegmenterOption func(*Segmenter)

// WithNoiseFloor sets the RMS energy level below which a frame counts as
// silence. Usually set from a calibration pass rather than directly.
func WithNoiseFloor(rms float64) SegmenterOption {
	return func(s *Segmenter) { s.noiseFloor = rms }
}

// WithSilenceThreshold sets the consecutive-silence duration that closes a
// phrase. Defaults to 500 ms.
func WithSilenceThreshold(d time.Duration) SegmenterOption {
	return func(s *Segmenter) { s.silenceThreshold = d }
}

// WithMaxPhrase sets the maximum phrase duration before a forced cut.
// Defaults to 5 s.
func WithMaxPhrase(d time.Duration) SegmenterOption {
	return func(s *Segmenter) { s.maxPhrase = d }
}

// Segmenter turns a continuous stream of PCM frames into discrete spoken
// phrases using an RMS energy gate. Frames quieter than the noise floor are
// treated as silence; a phrase starts on the first loud frame and ends after
// silenceThreshold of consecutive quiet, or when maxPhrase audio has
// accumulated.
//
// Segmenter is not safe for concurrent use; feed it from a single goroutine.
type Segmenter struct {
	sampleRate       int
	noiseFloor       float64
	silenceThreshold time.Duration
	maxPhrase        time.Duration

	buf       []int16
	hadSpeech bool
	silence   time.Duration
}

// NewSegmenter creates a Segmenter for frames captured at sampleRate Hz.
func NewSegmenter(sampleRate int, opts ...SegmenterOption) *Segmenter {
	s := &Segmenter{
		sampleRate:       sampleRate,
		noiseFloor:       defaultNoiseFloor,
		silenceThreshold: defaultSilenceThreshold,
		maxPhrase:        defaultMaxPhrase,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// SetNoiseFloor replaces the silence gate level, typically after an ambient
// noise calibration pass.
func (s *Segmenter) SetNoiseFloor(rms float64) { s.noiseFloor = rms }

// Feed consumes one frame of samples and returns a completed phrase clip, or
// an empty Clip when the current phrase is still open.
func (s *Segmenter) Feed(frame []int16) Clip {
	frameDur := time.Duration(len(frame)) * time.Second / time.Duration(s.sampleRate)

	if RMS(frame) < s.noiseFloor {
		if !s.hadSpeech {
			return Clip{}
		}
		s.buf = append(s.buf, frame...)
		s.silence += frameDur
		if s.silence >= s.silenceThreshold {
			return s.cut()
		}
		return Clip{}
	}

	s.hadSpeech = true
	s.silence = 0
	s.buf = append(s.buf, frame...)
	if time.Duration(len(s.buf))*time.Second/time.Duration(s.sampleRate) >= s.maxPhrase {
		return s.cut()
	}
	return Clip{}
}

// Flush closes the current phrase, if any, and returns it. Use when the
// input stream ends mid-phrase.
func (s *Segmenter) Flush() Clip {
	if !s.hadSpeech {
		s.buf = nil
		s.silence = 0
		return Clip{}
	}
	return s.cut()
}

func (s *Segmenter) cut() Clip {
	clip := Clip{PCM: s.buf, SampleRate: s.sampleRate}
	s.buf = nil
	s.hadSpeech = false
	s.silence = 0
	return clip
}
