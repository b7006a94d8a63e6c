package audio

import (
	"testing"
	"time"
)

func TestClipDuration(t *testing.T) {
	t.Parallel()
	clip := Clip{PCM: make([]int16, 8000), SampleRate: 16000}
	if got := clip.Duration(); got != 500*time.Millisecond {
		t.Errorf("Duration = %v, want 500ms", got)
	}
	if got := (Clip{PCM: make([]int16, 100)}).Duration(); got != 0 {
		t.Errorf("Duration without sample rate = %v, want 0", got)
	}
}

func TestClipEmpty(t *testing.T) {
	t.Parallel()
	if !(Clip{}).Empty() {
		t.Error("zero clip should be empty")
	}
	if (Clip{PCM: []int16{1}}).Empty() {
		t.Error("clip with samples should not be empty")
	}
}

func TestRMS(t *testing.T) {
	t.Parallel()
	if got := RMS(nil); got != 0 {
		t.Errorf("RMS(nil) = %v, want 0", got)
	}
	// Constant amplitude: RMS equals the amplitude.
	if got := RMS([]int16{100, -100, 100, -100}); got != 100 {
		t.Errorf("RMS = %v, want 100", got)
	}
}

func TestClipFloat32(t *testing.T) {
	t.Parallel()
	clip := Clip{PCM: []int16{0, 16384, -32768}}
	got := clip.Float32()
	want := []float32{0, 0.5, -1}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Float32[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestClipBytes(t *testing.T) {
	t.Parallel()
	clip := Clip{PCM: []int16{0x1234, -2}}
	got := clip.Bytes()
	want := []byte{0x34, 0x12, 0xfe, 0xff}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Bytes[%d] = %#x, want %#x", i, got[i], want[i])
		}
	}
}
