package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/earworm-audio/earworm/pkg/audio"
	"github.com/earworm-audio/earworm/pkg/provider/recognizer"
)

// scriptedRecognizer returns text/err and counts calls.
type scriptedRecognizer struct {
	text  string
	err   error
	calls int
}

func (r *scriptedRecognizer) Recognize(context.Context, audio.Clip) (string, error) {
	r.calls++
	return r.text, r.err
}

func TestRecognizerFallback_PrimaryHealthy(t *testing.T) {
	primary := &scriptedRecognizer{text: "fake plastic trees"}
	secondary := &scriptedRecognizer{text: "wrong"}

	f := NewRecognizerFallback(primary, "vosk", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	f.AddFallback("whisper", secondary)

	text, err := f.Recognize(context.Background(), audio.Clip{PCM: []int16{1}, SampleRate: 16000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "fake plastic trees" {
		t.Fatalf("text = %q, want primary's result", text)
	}
	if secondary.calls != 0 {
		t.Errorf("secondary consulted %d times with a healthy primary", secondary.calls)
	}
}

func TestRecognizerFallback_BackendFaultFailsOver(t *testing.T) {
	primary := &scriptedRecognizer{err: errTest}
	secondary := &scriptedRecognizer{text: "high and dry"}

	f := NewRecognizerFallback(primary, "vosk", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	f.AddFallback("whisper", secondary)

	text, err := f.Recognize(context.Background(), audio.Clip{PCM: []int16{1}, SampleRate: 16000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "high and dry" {
		t.Fatalf("text = %q, want fallback's result", text)
	}
}

func TestRecognizerFallback_UnknownValueDoesNotFailOver(t *testing.T) {
	primary := &scriptedRecognizer{err: recognizer.ErrUnknownValue}
	secondary := &scriptedRecognizer{text: "should never be heard"}

	f := NewRecognizerFallback(primary, "vosk", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 2},
	})
	f.AddFallback("whisper", secondary)

	// The sentinel is a verdict about the clip: it passes through unchanged
	// and never opens the primary's breaker.
	for i := 0; i < 5; i++ {
		_, err := f.Recognize(context.Background(), audio.Clip{PCM: []int16{1}, SampleRate: 16000})
		if !errors.Is(err, recognizer.ErrUnknownValue) {
			t.Fatalf("call %d: error = %v, want ErrUnknownValue", i, err)
		}
	}
	if secondary.calls != 0 {
		t.Errorf("secondary consulted %d times for silent clips", secondary.calls)
	}
	if primary.calls != 5 {
		t.Errorf("primary calls = %d, want 5 (breaker must stay closed)", primary.calls)
	}
}

func TestRecognizerFallback_MalformedResultDoesNotFailOver(t *testing.T) {
	primary := &scriptedRecognizer{err: recognizer.ErrMalformedResult}
	secondary := &scriptedRecognizer{text: "should never be heard"}

	f := NewRecognizerFallback(primary, "vosk", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	f.AddFallback("whisper", secondary)

	_, err := f.Recognize(context.Background(), audio.Clip{PCM: []int16{1}, SampleRate: 16000})
	if !errors.Is(err, recognizer.ErrMalformedResult) {
		t.Fatalf("error = %v, want ErrMalformedResult", err)
	}
	if secondary.calls != 0 {
		t.Errorf("secondary consulted for a malformed-result verdict")
	}
}

func TestRecognizerFallback_AllFail(t *testing.T) {
	primary := &scriptedRecognizer{err: errTest}
	secondary := &scriptedRecognizer{err: errTest}

	f := NewRecognizerFallback(primary, "vosk", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	f.AddFallback("whisper", secondary)

	_, err := f.Recognize(context.Background(), audio.Clip{PCM: []int16{1}, SampleRate: 16000})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("error = %v, want ErrAllFailed", err)
	}
}
